package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/fx"

	"igdownloader/pkg/config"
	"igdownloader/pkg/logger"
	"igdownloader/pkg/ratelimit"
	"igdownloader/pkg/scraper"
)

// clientIdleTimeout is how long an HTTP client may stay quiet before its bucket is dropped
const clientIdleTimeout = 10 * time.Minute

// CacheSweeper drops expired cache entries
type CacheSweeper interface {
	SweepCache() int
}

// SchedulerModule runs the periodic housekeeping jobs
var SchedulerModule = fx.Module("scheduler",
	fx.Provide(
		fx.Annotate(
			func(o *scraper.Orchestrator) *scraper.Orchestrator { return o },
			fx.As(new(CacheSweeper)),
		),
		newScheduler,
	),
	fx.Invoke(func(gocron.Scheduler) {}),
)

type schedulerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Sweeper   CacheSweeper
	Clients   *ratelimit.ClientLimiter `optional:"true"`
	Logger    logger.Logger
}

func newScheduler(p schedulerParams) (gocron.Scheduler, error) {
	s, err := NewScheduler(p.Config.Cache.SweepInterval, p.Sweeper, p.Clients, p.Logger)
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			logger.LogComponentStart(p.Logger, "scheduler", map[string]interface{}{
				"sweep_interval": p.Config.Cache.SweepInterval.String(),
			})
			return nil
		},
		OnStop: func(context.Context) error {
			logger.LogComponentStop(p.Logger, "scheduler", "shutdown")
			return s.Shutdown()
		},
	})
	return s, nil
}

// NewScheduler registers the cache sweep and, when clients is set, the idle
// client prune. The scheduler is returned unstarted.
func NewScheduler(sweepInterval time.Duration, sweeper CacheSweeper, clients *ratelimit.ClientLimiter, log logger.Logger) (gocron.Scheduler, error) {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(sweepInterval),
		gocron.NewTask(func() {
			if removed := sweeper.SweepCache(); removed > 0 {
				log.WithField("removed", removed).Debug("Swept expired cache entries")
			}
		}),
		gocron.WithName("cache-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule cache sweep: %w", err)
	}

	if clients != nil {
		_, err = s.NewJob(
			gocron.DurationJob(time.Minute),
			gocron.NewTask(func() {
				if removed := clients.Prune(clientIdleTimeout); removed > 0 {
					log.DebugWithFields("Pruned idle client limiters", map[string]interface{}{
						"removed":   removed,
						"remaining": clients.Len(),
					})
				}
			}),
			gocron.WithName("client-prune"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to schedule client prune: %w", err)
		}
	}

	return s, nil
}
