package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"kitchenboard/internal/repository"
)

// DefaultRetention is how long finished one-off tasks stay after their due date.
const DefaultRetention = 7 * 24 * time.Hour

// RetentionSweeper deletes finished, non-recurring tasks whose due date is
// older than the retention window, together with their dependent rows.
type RetentionSweeper struct {
	tasks  *repository.TaskRepository
	now    func() time.Time
	window time.Duration
	log    zerolog.Logger
}

func NewRetentionSweeper(tasks *repository.TaskRepository, now func() time.Time, window time.Duration, log zerolog.Logger) *RetentionSweeper {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = DefaultRetention
	}
	return &RetentionSweeper{
		tasks:  tasks,
		now:    now,
		window: window,
		log:    log.With().Str("component", "retention").Logger(),
	}
}

// Run removes expired tasks and returns how many were deleted.
func (s *RetentionSweeper) Run(ctx context.Context) int64 {
	log := runLogger(ctx, s.log)
	cutoff := s.now().Add(-s.window)

	ids, err := s.tasks.ListExpired(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("clean up old tasks")
		return 0
	}

	var removed int64
	for _, id := range ids {
		n, err := s.tasks.DeleteWithDependents(ctx, id)
		if err != nil {
			log.Error().Err(err).Uint("task_id", id).Msg("delete old task")
			continue
		}
		removed += n
	}
	if removed > 0 {
		log.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("cleaned up old completed tasks")
	}
	return removed
}
