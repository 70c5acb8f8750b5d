package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kitchenboard/internal/model"
	"kitchenboard/internal/repository"
)

// RecurrenceProcessor spawns the next occurrence of finished recurring tasks.
// Daily tasks renew every day, weekly ones on the week-start day and monthly
// ones on the first of the month. Each cadence is processed at most once per
// calendar period.
type RecurrenceProcessor struct {
	tasks     *repository.TaskRepository
	now       func() time.Time
	loc       *time.Location
	weekStart time.Weekday
	log       zerolog.Logger

	mu        sync.Mutex
	processed map[string]string // recurrence -> last period key
}

func NewRecurrenceProcessor(tasks *repository.TaskRepository, now func() time.Time, loc *time.Location, weekStart time.Weekday, log zerolog.Logger) *RecurrenceProcessor {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &RecurrenceProcessor{
		tasks:     tasks,
		now:       now,
		loc:       loc,
		weekStart: weekStart,
		log:       log.With().Str("component", "recurrence").Logger(),
		processed: make(map[string]string),
	}
}

// Run renews every cadence that is due in the current period.
func (p *RecurrenceProcessor) Run(ctx context.Context) {
	log := runLogger(ctx, p.log)
	now := p.now().In(p.loc)

	for _, recurrence := range []string{model.RecurrenceDaily, model.RecurrenceWeekly, model.RecurrenceMonthly} {
		if !p.triggers(recurrence, now) {
			continue
		}
		key := PeriodKey(recurrence, now)
		if p.lastProcessed(recurrence) == key {
			continue
		}
		if err := p.processType(ctx, log, recurrence, now); err != nil {
			log.Error().Err(err).Str("recurrence", recurrence).Msg("process recurring tasks")
			continue
		}
		p.setProcessed(recurrence, key)
	}
}

func (p *RecurrenceProcessor) triggers(recurrence string, now time.Time) bool {
	switch recurrence {
	case model.RecurrenceWeekly:
		return now.Weekday() == p.weekStart
	case model.RecurrenceMonthly:
		return now.Day() == 1
	default:
		return true
	}
}

func (p *RecurrenceProcessor) processType(ctx context.Context, log zerolog.Logger, recurrence string, now time.Time) error {
	finished, err := p.tasks.ListFinishedByRecurrence(ctx, recurrence)
	if err != nil {
		return err
	}
	if len(finished) == 0 {
		return nil
	}

	log.Info().Str("recurrence", recurrence).Int("tasks", len(finished)).Msg("processing recurring tasks")
	dueDate := NextDueDate(recurrence, now)
	created := 0
	for _, task := range finished {
		clone, err := p.recreate(ctx, task, dueDate, now)
		if err != nil {
			log.Error().Err(err).Uint("task_id", task.ID).Msg("recreate task")
			continue
		}
		created++
		log.Info().Str("title", task.Title).Uint("old_id", task.ID).Uint("new_id", clone.ID).Msg("recreated task")
	}
	log.Info().Str("recurrence", recurrence).Int("created", created).Msg("finished recurring tasks")
	return nil
}

// recreate clones task as a fresh planned occurrence, copies its assignees
// and tags, and retires the original by setting its cadence to once.
func (p *RecurrenceProcessor) recreate(ctx context.Context, task model.Task, dueDate, now time.Time) (*model.Task, error) {
	due := dueDate.UTC()
	clone := &model.Task{
		Title:         task.Title,
		Description:   task.Description,
		Priority:      task.Priority,
		RestaurantID:  task.RestaurantID,
		CreatedBy:     task.CreatedBy,
		Status:        model.StatusPlanned,
		DueDate:       &due,
		Recurrence:    task.Recurrence,
		EstimatedTime: task.EstimatedTime,
		CreatedAt:     now.UTC(),
	}

	err := p.tasks.Transaction(ctx, func(tx *repository.TaskRepository) error {
		if err := tx.Create(ctx, clone); err != nil {
			return err
		}
		assignees, err := tx.AssigneeIDs(ctx, task.ID)
		if err != nil {
			return err
		}
		for _, userID := range assignees {
			if err := tx.AddAssignee(ctx, clone.ID, userID); err != nil {
				return err
			}
		}
		tags, err := tx.TagIDs(ctx, task.ID)
		if err != nil {
			return err
		}
		for _, tagID := range tags {
			if err := tx.AddTag(ctx, clone.ID, tagID); err != nil {
				return err
			}
		}
		return tx.SetRecurrence(ctx, task.ID, model.RecurrenceOnce)
	})
	if err != nil {
		return nil, err
	}
	return clone, nil
}

func (p *RecurrenceProcessor) lastProcessed(recurrence string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed[recurrence]
}

func (p *RecurrenceProcessor) setProcessed(recurrence, key string) {
	p.mu.Lock()
	p.processed[recurrence] = key
	p.mu.Unlock()
}
