package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kitchenboard/internal/model"
	"kitchenboard/internal/repository"
)

var (
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotAssignee is returned when a user acts on a task not assigned to them.
	ErrNotAssignee = errors.New("user is not assigned to task")
	// ErrForbidden is returned when a user lacks the role for an action.
	ErrForbidden = errors.New("not allowed")
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	RestaurantID  uint
	CreatedBy     uint
	Title         string
	Description   string
	Priority      string
	DueDate       *time.Time
	Recurrence    string
	EstimatedTime *int
	AssigneeIDs   []uint
	Tags          []string
}

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo *repository.TaskRepository
	tagRepo  *repository.TagRepository
	now      func() time.Time
}

func NewTaskService(taskRepo *repository.TaskRepository, tagRepo *repository.TagRepository, now func() time.Time) *TaskService {
	if now == nil {
		now = time.Now
	}
	return &TaskService{taskRepo: taskRepo, tagRepo: tagRepo, now: now}
}

func (s *TaskService) CreateTask(ctx context.Context, input TaskInput) (*model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}

	recurrence := input.Recurrence
	switch recurrence {
	case "":
		recurrence = model.RecurrenceOnce
	case model.RecurrenceOnce, model.RecurrenceDaily, model.RecurrenceWeekly, model.RecurrenceMonthly:
	default:
		return nil, fmt.Errorf("unknown recurrence %q", recurrence)
	}

	priority := input.Priority
	if priority == "" {
		priority = "medium"
	}

	status := model.StatusPlanned
	if len(input.AssigneeIDs) > 0 {
		status = model.StatusAssigned
	}

	var tagIDs []uint
	seen := make(map[uint]bool)
	for _, name := range input.Tags {
		tag, err := s.tagRepo.GetOrCreate(ctx, input.RestaurantID, strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		if tag != nil && !seen[tag.ID] {
			seen[tag.ID] = true
			tagIDs = append(tagIDs, tag.ID)
		}
	}

	var due *time.Time
	if input.DueDate != nil {
		d := input.DueDate.UTC()
		due = &d
	}

	task := model.Task{
		RestaurantID:  input.RestaurantID,
		CreatedBy:     input.CreatedBy,
		Title:         title,
		Description:   input.Description,
		Priority:      priority,
		Status:        status,
		DueDate:       due,
		Recurrence:    recurrence,
		EstimatedTime: input.EstimatedTime,
		CreatedAt:     s.now().UTC(),
	}

	err := s.taskRepo.Transaction(ctx, func(tx *repository.TaskRepository) error {
		if err := tx.Create(ctx, &task); err != nil {
			return err
		}
		for _, userID := range input.AssigneeIDs {
			if err := tx.AddAssignee(ctx, task.ID, userID); err != nil {
				return err
			}
		}
		for _, tagID := range tagIDs {
			if err := tx.AddTag(ctx, task.ID, tagID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TaskService) ListOpenForUser(ctx context.Context, userID uint) ([]model.Task, error) {
	return s.taskRepo.ListOpenForUser(ctx, userID)
}

// UpdateStatus moves a task to status and records the change in its history.
func (s *TaskService) UpdateStatus(ctx context.Context, taskID, actorID uint, status string) (*model.Task, error) {
	if status == "" {
		return nil, ErrInvalidTransition
	}
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == status {
		return task, nil
	}

	err = s.taskRepo.Transaction(ctx, func(tx *repository.TaskRepository) error {
		return s.changeStatus(ctx, tx, task, actorID, status)
	})
	if err != nil {
		return nil, err
	}
	return s.taskRepo.FindByID(ctx, taskID)
}

func (s *TaskService) changeStatus(ctx context.Context, tx *repository.TaskRepository, task *model.Task, actorID uint, status string) error {
	now := s.now().UTC()
	fields := map[string]interface{}{"status": status}
	switch status {
	case model.StatusCompleted:
		fields["completed_at"] = now
	case model.StatusVerified:
		fields["verified_at"] = now
		fields["verified_by"] = actorID
	}

	if err := tx.AddStatusHistory(ctx, &model.TaskStatusHistory{
		TaskID:    task.ID,
		OldStatus: task.Status,
		NewStatus: status,
		ChangedBy: actorID,
		ChangedAt: now,
	}); err != nil {
		return err
	}
	return tx.Update(ctx, task.ID, fields)
}

// Complete marks a task done on behalf of one of its assignees.
func (s *TaskService) Complete(ctx context.Context, taskID, userID uint) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	ok, err := s.taskRepo.IsAssignee(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAssignee
	}
	if !task.IsOpen() {
		return nil, fmt.Errorf("%w: task already %s", ErrInvalidTransition, task.Status)
	}
	return s.UpdateStatus(ctx, taskID, userID, model.StatusCompleted)
}

// Verify confirms a completed task of the verifier's restaurant, optionally
// leaving a comment. Status change and comment are written together.
func (s *TaskService) Verify(ctx context.Context, taskID uint, verifier model.User, comment string) (*model.Task, error) {
	if !verifier.CanManage() {
		return nil, ErrForbidden
	}
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.RestaurantID != verifier.RestaurantID {
		return nil, repository.ErrNotFound
	}
	if task.Status != model.StatusCompleted {
		return nil, fmt.Errorf("%w: cannot verify %s task", ErrInvalidTransition, task.Status)
	}

	comment = strings.TrimSpace(comment)
	err = s.taskRepo.Transaction(ctx, func(tx *repository.TaskRepository) error {
		if err := s.changeStatus(ctx, tx, task, verifier.ID, model.StatusVerified); err != nil {
			return err
		}
		if comment == "" {
			return nil
		}
		return tx.AddComment(ctx, &model.Comment{TaskID: taskID, UserID: verifier.ID, Content: comment})
	})
	if err != nil {
		return nil, err
	}
	return s.taskRepo.FindByID(ctx, taskID)
}
