package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"kitchenboard/internal/model"
	"kitchenboard/internal/notifier"
	"kitchenboard/internal/repository"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []notifier.ExpirationNotice
	failOn map[string]error
}

func (f *fakeNotifier) SendExpirationNotification(_ context.Context, n notifier.ExpirationNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failOn[n.RecipientEmail]; ok {
		return err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) Sent() []notifier.ExpirationNotice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notifier.ExpirationNotice(nil), f.sent...)
}

func (f *fakeNotifier) recipients() []string {
	var out []string
	for _, n := range f.Sent() {
		out = append(out, n.RecipientEmail)
	}
	return out
}

type fixture struct {
	db         *gorm.DB
	tasks      *repository.TaskRepository
	restaurant model.Restaurant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	restaurant := model.Restaurant{Name: "Downtown Pizza"}
	require.NoError(t, db.Create(&restaurant).Error)
	return &fixture{db: db, tasks: repository.NewTaskRepository(db), restaurant: restaurant}
}

func (f *fixture) user(t *testing.T, email, name string) model.User {
	t.Helper()
	u := model.User{RestaurantID: f.restaurant.ID, Email: email, Name: name}
	require.NoError(t, f.db.Create(&u).Error)
	return u
}

func (f *fixture) manager(t *testing.T, email, name string) model.User {
	t.Helper()
	u := model.User{RestaurantID: f.restaurant.ID, Email: email, Name: name, Role: model.RoleManager}
	require.NoError(t, f.db.Create(&u).Error)
	return u
}

func (f *fixture) tag(t *testing.T, name string) model.Tag {
	t.Helper()
	tag := model.Tag{RestaurantID: f.restaurant.ID, Name: name}
	require.NoError(t, f.db.Create(&tag).Error)
	return tag
}

func (f *fixture) task(t *testing.T, task model.Task, assignees ...model.User) model.Task {
	t.Helper()
	if task.RestaurantID == 0 {
		task.RestaurantID = f.restaurant.ID
	}
	require.NoError(t, f.db.Create(&task).Error)
	for _, u := range assignees {
		require.NoError(t, f.db.Create(&model.TaskAssignment{TaskID: task.ID, UserID: u.ID}).Error)
	}
	return task
}

func (f *fixture) setStatus(t *testing.T, taskID uint, status string) {
	t.Helper()
	require.NoError(t, f.db.Model(&model.Task{}).Where("id = ?", taskID).Update("status", status).Error)
}

func (f *fixture) countTasks(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&model.Task{}).Count(&n).Error)
	return n
}

func ptr[T any](v T) *T { return &v }
