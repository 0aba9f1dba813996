package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vburojevic/tracesink/internal/config"
	"github.com/vburojevic/tracesink/internal/domain"
	"github.com/vburojevic/tracesink/internal/observe"
)

const dialTimeout = 5 * time.Second

// Network forwards events as newline-delimited JSON over TCP.
type Network struct {
	base
	notFileBacked
	conn net.Conn
	enc  *json.Encoder
}

// NewNetwork dials the configured endpoint. A dial failure is fatal to
// this destination only.
func NewNetwork(cfg *config.Destination, log *zap.Logger, metrics *observe.Metrics) (*Network, error) {
	addr := net.JoinHostPort(cfg.Hostname, strconv.Itoa(cfg.Port))
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrResourceUnavailable, addr, err)
	}
	return &Network{
		base: newBase(cfg, log, metrics),
		conn: conn,
		enc:  json.NewEncoder(conn),
	}, nil
}

func (n *Network) Write(event *domain.TraceEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || !n.accepts(event) {
		return nil
	}
	if err := n.enc.Encode(event); err != nil {
		n.log.Error("network write failed", zap.Error(err))
		return err
	}
	n.metrics.EventWritten(context.Background(), n.cfg.Name)
	return nil
}

func (n *Network) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	return n.conn.Close()
}
