package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"idle-economy/internal/repository"
	"idle-economy/internal/services"

	"github.com/go-co-op/gocron/v2"
)

// EvaluateJob runs event evaluation for players seen within a window. It is
// an ordinary caller of the event engine.
type EvaluateJob struct {
	repo   *repository.Repository
	events *services.EventService
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewEvaluateJob(repo *repository.Repository, events *services.EventService, window time.Duration, logger *slog.Logger) *EvaluateJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &EvaluateJob{repo: repo, events: events, window: window, logger: logger, now: time.Now}
}

// Run evaluates every recently active player and returns how many
// evaluations succeeded. One player's failure does not stop the others.
func (j *EvaluateJob) Run(ctx context.Context) (int, error) {
	now := j.now()
	players, err := j.repo.RecentlyEvaluatedPlayers(ctx, now.Add(-j.window).UTC())
	if err != nil {
		return 0, err
	}

	done, failed := 0, 0
	for _, id := range players {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if _, err := j.events.Evaluate(ctx, id, now); err != nil {
			failed++
			j.logger.Error("scheduled evaluation failed", "player_id", id, "error", err)
			continue
		}
		done++
	}
	if failed > 0 {
		return done, fmt.Errorf("%d of %d evaluations failed", failed, len(players))
	}
	return done, nil
}

// OfferExpiryJob closes market offers past their expiry.
type OfferExpiryJob struct {
	market *services.MarketService
	now    func() time.Time
}

func NewOfferExpiryJob(market *services.MarketService) *OfferExpiryJob {
	return &OfferExpiryJob{market: market, now: time.Now}
}

func (j *OfferExpiryJob) Run(ctx context.Context) (int, error) {
	return j.market.ExpireOffers(ctx, j.now())
}

// Runner is a job the scheduler can drive.
type Runner interface {
	Run(ctx context.Context) (int, error)
}

// Scheduler drives runners on fixed intervals through gocron.
type Scheduler struct {
	sched  gocron.Scheduler
	logger *slog.Logger
}

func NewScheduler(logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{sched: sched, logger: logger}, nil
}

// Every registers r to run each interval. Overlapping runs are skipped.
func (s *Scheduler) Every(name string, interval time.Duration, r Runner) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			n, err := r.Run(ctx)
			if err != nil {
				s.logger.Error("job failed", "job", name, "processed", n, "error", err)
				return
			}
			s.logger.Debug("job finished", "job", name, "processed", n)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
