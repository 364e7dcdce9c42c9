package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/dyaksa-edu/cbt-portal/internal/repository"
	"github.com/dyaksa-edu/cbt-portal/internal/service"
)

// SweeperWorker times out abandoned attempts. A live session terminates its
// own attempt at zero, but an attempt with no attached session (closed tab,
// dead client) would otherwise hang in_progress forever. The terminal
// transition is first-writer-wins, so sweeping an attempt a session is
// finishing at the same moment is harmless.
type SweeperWorker struct {
	attemptRepo    *repository.AttemptRepository
	attemptService *service.AttemptService
	interval       time.Duration
	log            zerolog.Logger
}

func NewSweeperWorker(
	attemptRepo *repository.AttemptRepository,
	attemptService *service.AttemptService,
	interval time.Duration,
	log zerolog.Logger,
) *SweeperWorker {
	return &SweeperWorker{
		attemptRepo:    attemptRepo,
		attemptService: attemptService,
		interval:       interval,
		log:            log.With().Str("component", "sweeper_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *SweeperWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SweeperWorker) sweep(ctx context.Context) {
	overdue, err := w.attemptRepo.ListOverdue(ctx, time.Now())
	if err != nil {
		w.log.Error().Err(err).Msg("Overdue scan failed")
		return
	}
	if len(overdue) == 0 {
		return
	}

	swept := 0
	for _, attempt := range overdue {
		if _, err := w.attemptService.Finalize(ctx, attempt.ID, model.AttemptStatusTimedOut, model.ReasonTimeUp); err != nil {
			w.log.Error().Err(err).
				Str("attempt_id", attempt.ID.String()).
				Msg("Timeout finalize failed")
			continue
		}
		swept++
	}

	w.log.Info().Int("overdue", len(overdue)).Int("swept", swept).Msg("Sweep complete")
}
