package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/vburojevic/tracesink/internal/manager"
	"github.com/vburojevic/tracesink/internal/observe"
)

// RunCmd hosts a lifecycle manager until interrupted.
type RunCmd struct {
	File string `arg:"" help:"Configuration file (.yaml or .json)" type:"existingfile"`
}

func (c *RunCmd) Run(globals *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := observe.NewLogger(globals.Verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	metrics, err := observe.NewMetrics()
	if err != nil {
		return err
	}

	global, err := loadConfig(c.File)
	if err != nil {
		return err
	}

	mgr := manager.New(manager.Options{
		Console: globals.Stdout,
		Logger:  logger,
		Metrics: metrics,
	})
	defer mgr.Shutdown()

	defects := mgr.ApplyConfiguration(global)
	for _, defect := range defects {
		fmt.Fprintf(globals.Stderr, "defect: %v\n", defect)
	}
	if len(mgr.DestinationNames()) == 0 {
		return fmt.Errorf("no usable destinations in %s", c.File)
	}

	<-ctx.Done()
	return nil
}
