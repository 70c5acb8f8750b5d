package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"kitchenboard/internal/model"
	"kitchenboard/internal/repository"
)

// ReminderService builds human-readable task summaries for chat messages.
type ReminderService struct {
	taskRepo *repository.TaskRepository
	loc      *time.Location
}

func NewReminderService(taskRepo *repository.TaskRepository, loc *time.Location) *ReminderService {
	if loc == nil {
		loc = time.Local
	}
	return &ReminderService{taskRepo: taskRepo, loc: loc}
}

// OpenTasksSummary lists the open tasks assigned to user, soonest due first.
func (s *ReminderService) OpenTasksSummary(ctx context.Context, user model.User, now time.Time) (string, error) {
	tasks, err := s.taskRepo.ListOpenForUser(ctx, user.ID)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Your tasks</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.In(s.loc).Format("02.01.2006")))

	if len(tasks) == 0 {
		builder.WriteString("— no open tasks\n")
	}
	for _, task := range tasks {
		builder.WriteString(formatTask(task, now, s.loc))
	}

	return strings.TrimSpace(builder.String()), nil
}

func formatTask(task model.Task, now time.Time, loc *time.Location) string {
	var sb strings.Builder

	icon := "🟢"
	if task.DueDate != nil {
		switch Classify(task.CreatedAt, *task.DueDate, now) {
		case Overdue:
			icon = "⚠️"
		case NearDue:
			icon = "⏳"
		}
	}
	if task.Recurrence != "" && task.Recurrence != model.RecurrenceOnce {
		icon += "♻️"
	}

	title := html.EscapeString(strings.TrimSpace(task.Title))
	sb.WriteString(fmt.Sprintf("%s #%d %s <i>(%s)</i>", icon, task.ID, title, task.Status))

	if task.DueDate != nil {
		d := task.DueDate.In(loc)
		if now.After(d) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s — <b>overdue</b>", d.Format("2006-01-02 15:04")))
		} else {
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s", d.Format("2006-01-02 15:04")))
		}
	}

	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}
