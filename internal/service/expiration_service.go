package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kitchenboard/internal/notifier"
	"kitchenboard/internal/repository"
)

// reminderInterval is the minimum gap between two reminders for one task.
const reminderInterval = 24 * time.Hour

// DueState classifies how close a task is to its due date.
type DueState int

const (
	NotDue DueState = iota
	NearDue
	Overdue
)

// Classify reports whether a task created at createdAt and due at dueDate is
// overdue, near due (at least two thirds of its time elapsed) or neither. A
// task whose due date does not come after its creation counts as overdue.
func Classify(createdAt, dueDate, now time.Time) DueState {
	if now.After(dueDate) {
		return Overdue
	}
	total := dueDate.Sub(createdAt)
	if total <= 0 {
		return Overdue
	}
	if 3*now.Sub(createdAt) >= 2*total {
		return NearDue
	}
	return NotDue
}

// ExpirationChecker reminds assignees of tasks that are close to or past
// their due date, at most once per reminderInterval per task.
type ExpirationChecker struct {
	tasks    *repository.TaskRepository
	notifier notifier.Notifier
	now      func() time.Time
	log      zerolog.Logger

	mu       sync.Mutex
	lastSent map[uint]time.Time
}

func NewExpirationChecker(tasks *repository.TaskRepository, n notifier.Notifier, now func() time.Time, log zerolog.Logger) *ExpirationChecker {
	if now == nil {
		now = time.Now
	}
	return &ExpirationChecker{
		tasks:    tasks,
		notifier: n,
		now:      now,
		log:      log.With().Str("component", "expiration").Logger(),
		lastSent: make(map[uint]time.Time),
	}
}

// Run performs one sweep over open tasks. Errors are logged, never returned.
func (c *ExpirationChecker) Run(ctx context.Context) {
	log := runLogger(ctx, c.log)
	now := c.now()

	tasks, err := c.tasks.ListOpenWithDueDate(ctx)
	if err != nil {
		log.Error().Err(err).Msg("check expiring tasks")
		return
	}

	for _, task := range tasks {
		state := Classify(task.CreatedAt, task.DueDate, now)
		if state == NotDue {
			continue
		}
		c.remind(ctx, log, task, state == Overdue, now)
	}

	c.forgetFinished(ctx, log)
}

func (c *ExpirationChecker) remind(ctx context.Context, log zerolog.Logger, task repository.DueTask, overdue bool, now time.Time) {
	log = log.With().Uint("task_id", task.ID).Logger()

	assignees, err := c.tasks.ListAssignees(ctx, task.ID)
	if err != nil {
		log.Error().Err(err).Msg("load assignees")
		return
	}
	if len(assignees) == 0 || !c.shouldSend(task.ID, now) {
		return
	}

	restaurant := task.RestaurantName
	if restaurant == "" {
		restaurant = "Restaurant"
	}
	urgency := "2/3 time passed"
	if overdue {
		urgency = "overdue"
	}

	for _, user := range assignees {
		notice := notifier.ExpirationNotice{
			RecipientEmail:      user.Email,
			RecipientTelegramID: user.TelegramID,
			TaskTitle:           task.Title,
			TaskID:              task.ID,
			DueDate:             task.DueDate,
			AssignedTo:          user.DisplayName(),
			RestaurantName:      restaurant,
			Overdue:             overdue,
		}
		if err := c.notifier.SendExpirationNotification(ctx, notice); err != nil {
			log.Warn().Err(err).Str("recipient", user.Email).Msg("send reminder")
			continue
		}
		log.Info().Str("urgency", urgency).Str("recipient", user.Email).Str("title", task.Title).Msg("reminder sent")
	}

	c.markSent(task.ID, now)
}

func (c *ExpirationChecker) shouldSend(taskID uint, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastSent[taskID]
	return !ok || now.Sub(last) >= reminderInterval
}

func (c *ExpirationChecker) markSent(taskID uint, now time.Time) {
	c.mu.Lock()
	c.lastSent[taskID] = now
	c.mu.Unlock()
}

// forgetFinished drops markers of tasks that have since been completed or verified.
func (c *ExpirationChecker) forgetFinished(ctx context.Context, log zerolog.Logger) {
	c.mu.Lock()
	ids := make([]uint, 0, len(c.lastSent))
	for id := range c.lastSent {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	finished, err := c.tasks.FinishedIDs(ctx, ids)
	if err != nil {
		log.Error().Err(err).Msg("clean up reminder markers")
		return
	}

	c.mu.Lock()
	for _, id := range finished {
		delete(c.lastSent, id)
	}
	c.mu.Unlock()
}

// LastSent returns when the last reminder for taskID went out.
func (c *ExpirationChecker) LastSent(taskID uint) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.lastSent[taskID]
	return at, ok
}
