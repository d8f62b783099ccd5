// Package monitor refreshes every watched course on a fixed interval and
// notifies subscribers when seats or waitlist seats open up.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/fetcher"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/metrics"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/model"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/notify"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/repository"
)

// Refresher reads the current availability of a resolved course.
type Refresher interface {
	Refresh(ctx context.Context, info model.CourseInfo) (model.Status, error)
}

// Options configures a Poller.
type Options struct {
	Interval time.Duration
	// Concurrency bounds parallel fetches within one tick.
	Concurrency int
	// DegradedAfter is the failure streak that triggers a one-time notice.
	// Zero disables the notice.
	DegradedAfter int
}

// Poller runs ticks against the watchlist.
//
// A tick has two phases. The fetch phase reads the list of watched courses,
// then refreshes each one without holding the watchlist lock; it only reads
// CourseInfo, which never changes. The apply phase takes the lock once,
// feeds every result to its record's state machine and collects the
// notifications, skipping courses evicted in the meantime. Notifications
// are delivered after the lock is released.
type Poller struct {
	watchlist *repository.WatchlistRepository
	refresher Refresher
	sink      notify.Sink
	metrics   *metrics.Metrics
	opts      Options
	now       func() time.Time
}

// NewPoller constructs a Poller. m may be nil.
func NewPoller(
	watchlist *repository.WatchlistRepository,
	refresher Refresher,
	sink notify.Sink,
	m *metrics.Metrics,
	opts Options,
) *Poller {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Poller{
		watchlist: watchlist,
		refresher: refresher,
		sink:      sink,
		metrics:   m,
		opts:      opts,
		now:       time.Now,
	}
}

// Run ticks immediately and then once per interval until ctx is cancelled.
// Ticks never overlap; a tick that overruns the interval delays the next one
// rather than queueing several.
func (p *Poller) Run(ctx context.Context) error {
	slog.Info("poller started",
		"interval", p.opts.Interval,
		"concurrency", p.opts.Concurrency,
		"degraded_after", p.opts.DegradedAfter)

	p.Tick(ctx)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller stopped")
			return nil
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

type fetchResult struct {
	status model.Status
	err    error
}

// Tick refreshes every watched course once and delivers the resulting
// notifications. Failures are isolated per course.
func (p *Poller) Tick(ctx context.Context) {
	start := p.now()
	logger := slog.With("tick", uuid.NewString())

	targets := p.watchlist.Targets()
	if len(targets) == 0 {
		p.metrics.ObserveTick(time.Since(start).Seconds(), 0)
		return
	}

	results := p.fetchAll(ctx, targets)
	if ctx.Err() != nil {
		// Shutdown interrupted the fetches; their failures say nothing
		// about the courses.
		logger.Debug("tick abandoned", "error", ctx.Err())
		return
	}

	notifications := p.apply(logger, targets, results)

	for _, n := range notifications {
		p.metrics.ObserveNotification(string(n.Kind))
		logger.Info("notifying", "kind", string(n.Kind), "crn", n.CRN, "subscribers", len(n.Mentions))
		if err := p.sink.Deliver(ctx, n); err != nil {
			logger.Error("notification delivery failed", "crn", n.CRN, "id", n.ID, "error", err)
		}
	}

	p.metrics.ObserveTick(time.Since(start).Seconds(), p.watchlist.Len())
	logger.Debug("tick complete",
		"courses", len(targets),
		"notifications", len(notifications),
		"duration", time.Since(start))
}

func (p *Poller) fetchAll(ctx context.Context, targets []model.CourseInfo) []fetchResult {
	results := make([]fetchResult, len(targets))

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, info := range targets {
		g.Go(func() error {
			status, err := p.refresher.Refresh(ctx, info)
			results[i] = fetchResult{status: status, err: err}
			p.metrics.ObserveFetch(outcome(err))
			// Errors stay in results so one course never cancels the others.
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *Poller) apply(logger *slog.Logger, targets []model.CourseInfo, results []fetchResult) []model.Notification {
	var notifications []model.Notification
	at := p.now()

	p.watchlist.Apply(targets, func(rec *model.Record, i int) {
		res := results[i]
		if res.err != nil {
			escalate := rec.ObserveFailure(p.opts.DegradedAfter)
			logger.Warn("course refresh failed",
				"crn", rec.CRN(),
				"term", rec.Info().Term,
				"consecutive_failures", rec.Failures(),
				"error", res.err)
			if escalate {
				notifications = append(notifications,
					model.DegradedNotification(rec.Info(), rec.Failures(), rec.Subscribers()))
			}
			return
		}

		for _, axis := range rec.Observe(res.status, at) {
			notifications = append(notifications,
				model.OpeningNotification(rec.Info(), axis, rec.Subscribers()))
		}
	})

	return notifications
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, fetcher.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, fetcher.ErrParse):
		return metrics.OutcomeParse
	default:
		return metrics.OutcomeTransport
	}
}
