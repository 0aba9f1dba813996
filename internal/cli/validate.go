package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/vburojevic/tracesink/internal/config"
)

// ValidateCmd loads a configuration file, validates every destination
// descriptor and prints a summary table plus per-descriptor defects.
type ValidateCmd struct {
	File string `arg:"" help:"Configuration file (.yaml or .json)" type:"existingfile"`
}

func (c *ValidateCmd) Run(globals *Globals) error {
	global, err := loadConfig(c.File)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(global.Destinations))
	for name := range global.Destinations {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(globals.Stdout)
	table.Header("Name", "Type", "Rotation", "Retention", "Sources", "Filters")

	defects := 0
	for _, name := range names {
		d := global.Destinations[name]
		d.Normalize()
		if err := config.Validate(d); err != nil {
			defects++
			fmt.Fprintf(globals.Stderr, "defect: %v\n", err)
			continue
		}
		table.Append([]string{
			d.Name,
			string(d.Type),
			rotationColumn(d),
			retentionColumn(d),
			strconv.Itoa(len(d.Subscriptions)),
			strconv.Itoa(len(d.Filters)),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}

	if defects > 0 {
		return fmt.Errorf("%d invalid destination descriptor(s)", defects)
	}
	return nil
}

// loadConfig routes by extension: YAML files load through viper, JSON
// documents through the declarative document parser.
func loadConfig(path string) (config.Global, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return config.Global{}, err
		}
		return config.ParseDocument(data)
	}
	return config.LoadFromFile(path)
}

func rotationColumn(d *config.Destination) string {
	if !d.Type.Has(config.CapFileBacked) || d.RotationInterval == 0 {
		return "-"
	}
	return d.RotationInterval.String()
}

func retentionColumn(d *config.Destination) string {
	if !d.Type.Has(config.CapFileBacked) {
		return "-"
	}
	parts := []string{}
	if d.MaximumAge != 0 {
		parts = append(parts, "age<="+d.MaximumAge.String())
	}
	if d.MaximumSizeBytes != 0 {
		parts = append(parts, fmt.Sprintf("size<=%dB", d.MaximumSizeBytes))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
