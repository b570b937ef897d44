package status

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Broadcaster pushes a typed message to dashboard clients.
type Broadcaster interface {
	Broadcast(kind string, payload interface{})
}

// Reporter broadcasts the system status on a cron schedule.
type Reporter struct {
	cron    *cron.Cron
	tracker *Tracker
	hub     Broadcaster
	logger  *zap.Logger
}

func NewReporter(spec string, tracker *Tracker, hub Broadcaster, logger *zap.Logger) (*Reporter, error) {
	r := &Reporter{
		cron:    cron.New(cron.WithSeconds()),
		tracker: tracker,
		hub:     hub,
		logger:  logger.With(zap.String("component", "status")),
	}
	if _, err := r.cron.AddFunc(spec, r.Beat); err != nil {
		return nil, fmt.Errorf("status heartbeat %q: %w", spec, err)
	}
	return r, nil
}

// Beat broadcasts the current status once.
func (r *Reporter) Beat() {
	st := r.tracker.Status()
	r.hub.Broadcast("status", st)
	r.logger.Debug("status heartbeat",
		zap.String("connection", string(st.Connection)),
		zap.Float64("battery", st.Battery),
		zap.Int("alerts", len(st.Alerts)))
}

func (r *Reporter) Start() {
	r.logger.Info("status heartbeat started")
	r.cron.Start()
}

func (r *Reporter) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("status heartbeat stopped")
}
