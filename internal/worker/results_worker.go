package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dyaksa-edu/cbt-portal/internal/config"
	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/dyaksa-edu/cbt-portal/internal/repository"
	"github.com/dyaksa-edu/cbt-portal/internal/scoring"
)

// ResultsWorker consumes persist_results_queue, lands each graded result
// exactly once and folds it into the exam's running analytics. It is the
// single consumer of the queue, which serializes the folds per exam.
type ResultsWorker struct {
	resultRepo *repository.ResultRepository
	rdb        *redis.Client
	log        zerolog.Logger
}

// NewResultsWorker creates a new ResultsWorker.
func NewResultsWorker(resultRepo *repository.ResultRepository, rdb *redis.Client, log zerolog.Logger) *ResultsWorker {
	return &ResultsWorker{
		resultRepo: resultRepo,
		rdb:        rdb,
		log:        log.With().Str("component", "results_worker").Logger(),
	}
}

type resultPayload struct {
	AttemptID         string  `json:"attempt_id"`
	ExamID            string  `json:"exam_id"`
	StudentID         int     `json:"student_id"`
	Score             int     `json:"score"`
	TotalQuestions    int     `json:"total_questions"`
	CorrectAnswers    int     `json:"correct_answers"`
	Passed            bool    `json:"passed"`
	CompletionSeconds float64 `json:"completion_seconds"`
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *ResultsWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *ResultsWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistResultsQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var payload resultPayload
	if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
		w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
		return
	}

	if err := w.persistResult(ctx, &payload); err != nil {
		w.log.Error().Err(err).
			Str("attempt_id", payload.AttemptID).
			Msg("Persist error, retrying in 5s")
		if pushErr := w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, result[1]).Err(); pushErr != nil {
			w.log.Error().Err(pushErr).
				Str("attempt_id", payload.AttemptID).
				Msg("CRITICAL: Failed to requeue result. Data loss occurred.")
		}
		time.Sleep(5 * time.Second)
	}
}

// persistResult lands the row, folds analytics only on a fresh insert and
// clears the attempt's autosave hash. A duplicate payload (re-delivery,
// requeue race) hits the write-once insert and is skipped without a fold.
func (w *ResultsWorker) persistResult(ctx context.Context, p *resultPayload) error {
	attemptID, err := uuid.Parse(p.AttemptID)
	if err != nil {
		w.log.Error().Str("attempt_id", p.AttemptID).Msg("Dropping result with invalid UUID")
		return nil
	}
	examID, err := uuid.Parse(p.ExamID)
	if err != nil {
		w.log.Error().Str("exam_id", p.ExamID).Msg("Dropping result with invalid UUID")
		return nil
	}

	created, err := w.resultRepo.Create(ctx, &model.Result{
		AttemptID:      attemptID,
		ExamID:         examID,
		StudentID:      p.StudentID,
		Score:          p.Score,
		TotalQuestions: p.TotalQuestions,
		CorrectAnswers: p.CorrectAnswers,
		Passed:         p.Passed,
	})
	if err != nil {
		return err
	}

	if created {
		if err := w.resultRepo.ApplySample(ctx, examID, scoring.Sample{
			Score:             p.Score,
			Passed:            p.Passed,
			CompletionSeconds: p.CompletionSeconds,
		}); err != nil {
			// The row already landed, so a requeue would see a duplicate
			// insert and never reach the fold again. Log instead of retry.
			w.log.Error().Err(err).
				Str("exam_id", p.ExamID).
				Str("attempt_id", p.AttemptID).
				Msg("CRITICAL: Analytics fold failed for landed result")
		}
	}

	// The attempt is over; its autosave buffer and strike counter are no
	// longer needed.
	w.rdb.Del(ctx,
		config.CacheKey.AttemptAnswersKey(p.AttemptID),
		config.CacheKey.AttemptStrikesKey(p.AttemptID),
	)
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *ResultsWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistResultsQueue).Result()
		if err != nil {
			break
		}

		var payload resultPayload
		if err := json.Unmarshal([]byte(result), &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persistResult(ctx, &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
