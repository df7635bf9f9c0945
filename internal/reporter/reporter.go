package reporter

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/balaji-balu/vps-screener/internal/fleet"
)

type Summarizer interface {
	Summarize() fleet.Summary
}

// Reporter periodically logs how many nodes are known and stale, and
// refreshes the node gauges as a side effect of Summarize.
type Reporter struct {
	cron   *cron.Cron
	svc    Summarizer
	logger *zap.Logger
}

func New(svc Summarizer, schedule string, logger *zap.Logger) (*Reporter, error) {
	r := &Reporter{
		cron:   cron.New(),
		svc:    svc,
		logger: logger,
	}
	if _, err := r.cron.AddFunc(schedule, r.Report); err != nil {
		return nil, fmt.Errorf("summary schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Reporter) Report() {
	sum := r.svc.Summarize()
	r.logger.Info("fleet summary", zap.Int("known", sum.Known), zap.Int("stale", sum.Stale))
}

// Run blocks until ctx is done, then waits for a running report to finish.
func (r *Reporter) Run(ctx context.Context) error {
	r.cron.Start()
	<-ctx.Done()
	<-r.cron.Stop().Done()
	return nil
}
