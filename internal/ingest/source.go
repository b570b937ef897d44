// Package ingest holds the inbound sources that turn device and upstream messages into
// snapshots for the pipeline.
package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"archaeoscan-gateway/internal/data"
	"archaeoscan-gateway/internal/metrics"
)

// Health is the connection state of a source.
type Health string

const (
	Connected    Health = "connected"
	Reconnecting Health = "reconnecting"
	Offline      Health = "offline"
)

// Submitter accepts parsed snapshots. Push sources use Submit and drop on overload;
// pull sources use SubmitWait so they only fetch when the pipeline has room.
type Submitter interface {
	Submit(snap *data.Snapshot) error
	SubmitWait(ctx context.Context, snap *data.Snapshot) error
}

// Source is a long-running inbound connection.
type Source interface {
	Name() string
	// Run blocks until ctx is cancelled or the source gives up.
	Run(ctx context.Context) error
	Health() Health
}

// healthState is embedded by sources to publish their state.
type healthState struct {
	name    string
	v       atomic.Value
	metrics *metrics.Metrics
}

func (h *healthState) init(name string, m *metrics.Metrics) {
	h.name = name
	h.metrics = m
	h.set(Offline)
}

func (h *healthState) set(s Health) {
	h.v.Store(s)
	h.metrics.SetSourceConnected(h.name, s == Connected)
}

func (h *healthState) Health() Health {
	s, _ := h.v.Load().(Health)
	if s == "" {
		return Offline
	}
	return s
}

func (h *healthState) Name() string { return h.name }

// handlePayload parses raw and hands the snapshot to the pipeline. Payloads without numeric
// readings are skipped.
func handlePayload(ctx context.Context, raw []byte, source string, sub Submitter, wait bool, log *zap.Logger) {
	snap, err := data.Parse(raw, source, time.Now())
	if err != nil {
		if errors.Is(err, data.ErrNoReadings) {
			log.Debug("payload without readings", zap.Int("bytes", len(raw)))
		} else {
			log.Warn("unparseable payload", zap.Error(err))
		}
		return
	}
	if wait {
		err = sub.SubmitWait(ctx, snap)
	} else {
		err = sub.Submit(snap)
	}
	if err != nil && ctx.Err() == nil {
		log.Warn("snapshot rejected", zap.Int("readings", len(snap.Readings)), zap.Error(err))
	}
}
