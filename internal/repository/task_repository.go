package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"kitchenboard/internal/model"
)

// DueTask is an open task with a due date, joined with its restaurant name.
type DueTask struct {
	ID             uint
	Title          string
	Status         string
	DueDate        time.Time
	CreatedAt      time.Time
	RestaurantName string
}

// TaskRepository handles CRUD for tasks and their associations.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Transaction runs fn against a repository bound to a single transaction.
func (r *TaskRepository) Transaction(ctx context.Context, fn func(tx *TaskRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&TaskRepository{db: tx})
	})
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

// ListOpenWithDueDate returns every unfinished task that has a due date.
func (r *TaskRepository) ListOpenWithDueDate(ctx context.Context) ([]DueTask, error) {
	var tasks []DueTask
	err := r.db.WithContext(ctx).Table("tasks AS t").
		Select("t.id, t.title, t.status, t.due_date, t.created_at, COALESCE(r.name, '') AS restaurant_name").
		Joins("LEFT JOIN restaurants r ON r.id = t.restaurant_id").
		Where("t.due_date IS NOT NULL AND t.status NOT IN ?", model.FinishedStatuses).
		Order("t.id ASC").
		Scan(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}
	return tasks, nil
}

// ListOpenForUser returns unfinished tasks assigned to userID, soonest due first.
func (r *TaskRepository) ListOpenForUser(ctx context.Context, userID uint) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Joins("JOIN task_assignments ta ON ta.task_id = tasks.id").
		Where("ta.user_id = ? AND tasks.status NOT IN ?", userID, model.FinishedStatuses).
		Order("tasks.due_date IS NULL, tasks.due_date ASC, tasks.id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list user tasks: %w", err)
	}
	return tasks, nil
}

// ListAssignees returns the users assigned to taskID.
func (r *TaskRepository) ListAssignees(ctx context.Context, taskID uint) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Joins("JOIN task_assignments ta ON ta.user_id = users.id").
		Where("ta.task_id = ?", taskID).
		Order("users.id ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	return users, nil
}

// FinishedIDs returns the subset of ids whose task is completed or verified.
func (r *TaskRepository) FinishedIDs(ctx context.Context, ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var finished []uint
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id IN ? AND status IN ?", ids, model.FinishedStatuses).
		Pluck("id", &finished).Error
	if err != nil {
		return nil, fmt.Errorf("list finished ids: %w", err)
	}
	return finished, nil
}

// ListFinishedByRecurrence returns completed or verified tasks with the given cadence.
func (r *TaskRepository) ListFinishedByRecurrence(ctx context.Context, recurrence string) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Where("recurrence = ? AND status IN ?", recurrence, model.FinishedStatuses).
		Order("id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list finished %s tasks: %w", recurrence, err)
	}
	return tasks, nil
}

func (r *TaskRepository) AssigneeIDs(ctx context.Context, taskID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&model.TaskAssignment{}).
		Where("task_id = ?", taskID).Order("user_id").Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list assignee ids: %w", err)
	}
	return ids, nil
}

func (r *TaskRepository) TagIDs(ctx context.Context, taskID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&model.TaskTag{}).
		Where("task_id = ?", taskID).Order("tag_id").Pluck("tag_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list tag ids: %w", err)
	}
	return ids, nil
}

func (r *TaskRepository) AddAssignee(ctx context.Context, taskID, userID uint) error {
	link := model.TaskAssignment{TaskID: taskID, UserID: userID}
	if err := r.db.WithContext(ctx).Create(&link).Error; err != nil {
		return fmt.Errorf("add assignee: %w", err)
	}
	return nil
}

func (r *TaskRepository) AddTag(ctx context.Context, taskID, tagID uint) error {
	link := model.TaskTag{TaskID: taskID, TagID: tagID}
	if err := r.db.WithContext(ctx).Create(&link).Error; err != nil {
		return fmt.Errorf("add tag: %w", err)
	}
	return nil
}

func (r *TaskRepository) IsAssignee(ctx context.Context, taskID, userID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.TaskAssignment{}).
		Where("task_id = ? AND user_id = ?", taskID, userID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check assignee: %w", err)
	}
	return count > 0, nil
}

// SetRecurrence overwrites the cadence of a task.
func (r *TaskRepository) SetRecurrence(ctx context.Context, taskID uint, recurrence string) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).Update("recurrence", recurrence)
	if res.Error != nil {
		return fmt.Errorf("set recurrence: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Update writes the given column set on taskID.
func (r *TaskRepository) Update(ctx context.Context, taskID uint, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TaskRepository) AddStatusHistory(ctx context.Context, entry *model.TaskStatusHistory) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("add status history: %w", err)
	}
	return nil
}

func (r *TaskRepository) AddComment(ctx context.Context, comment *model.Comment) error {
	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}

// ListExpired returns finished one-off tasks whose due date is before cutoff.
func (r *TaskRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("status IN ? AND due_date IS NOT NULL AND due_date < ? AND recurrence = ?",
			model.FinishedStatuses, cutoff.UTC(), model.RecurrenceOnce).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list expired tasks: %w", err)
	}
	return ids, nil
}

// dependents are the tables holding rows keyed by task_id.
var dependents = []interface{}{
	&model.TaskTag{},
	&model.TaskAssignment{},
	&model.TaskChecklist{},
	&model.Comment{},
	&model.Photo{},
	&model.TaskStatusHistory{},
}

// DeleteWithDependents removes a task and every row referring to it in one
// transaction. It returns the number of task rows removed.
func (r *TaskRepository) DeleteWithDependents(ctx context.Context, taskID uint) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, dep := range dependents {
			if err := tx.Where("task_id = ?", taskID).Delete(dep).Error; err != nil {
				return fmt.Errorf("delete %T: %w", dep, err)
			}
		}
		res := tx.Delete(&model.Task{}, taskID)
		if res.Error != nil {
			return fmt.Errorf("delete task: %w", res.Error)
		}
		removed = res.RowsAffected
		return nil
	})
	return removed, err
}
