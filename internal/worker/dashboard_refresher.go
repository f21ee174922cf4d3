package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DashboardNotifier is the part of *realtime.Broadcaster the refresher needs.
type DashboardNotifier interface {
	RefreshDashboards(ctx context.Context, reason string) error
}

// RefreshRecorder counts scheduled refreshes. *observability.Metrics implements it.
type RefreshRecorder interface {
	RecordDashboardRefresh()
}

// DashboardRefresher periodically tells staff dashboards to re-fetch, so
// time-based figures stay current without ticket traffic.
type DashboardRefresher struct {
	cron     *cron.Cron
	notifier DashboardNotifier
	metrics  RefreshRecorder
	logger   *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDashboardRefresher runs the refresh on a cron schedule (standard syntax
// or descriptors such as "@every 1m").
func NewDashboardRefresher(schedule string, notifier DashboardNotifier, metrics RefreshRecorder, logger *zap.Logger) (*DashboardRefresher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &DashboardRefresher{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.Named("dashboard_refresher"),
		ctx:      context.Background(),
	}
	if _, err := r.cron.AddFunc(schedule, r.Tick); err != nil {
		return nil, fmt.Errorf("invalid dashboard refresh schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start runs the schedule until ctx is done or Stop is called.
func (r *DashboardRefresher) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.cron.Start()
	r.logger.Info("dashboard refresher started", zap.Int("jobs", len(r.cron.Entries())))
	go func() {
		<-r.ctx.Done()
		r.Stop()
	}()
}

// Stop halts the schedule and waits for a running tick.
func (r *DashboardRefresher) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	<-r.cron.Stop().Done()
}

// Tick publishes one refresh trigger.
func (r *DashboardRefresher) Tick() {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()

	if err := r.notifier.RefreshDashboards(ctx, "scheduled"); err != nil {
		r.logger.Warn("dashboard refresh failed", zap.Error(err))
		return
	}
	if r.metrics != nil {
		r.metrics.RecordDashboardRefresh()
	}
}
