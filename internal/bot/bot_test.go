package bot

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"kitchenboard/internal/model"
	"kitchenboard/internal/repository"
	"kitchenboard/internal/service"
)

var now = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	acks     int
	updates  chan tgbotapi.Update
	stopOnce sync.Once
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 16)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := c.(tgbotapi.CallbackConfig); ok {
		f.acks++
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.stopOnce.Do(func() { close(f.updates) })
}

func (f *fakeAPI) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type env struct {
	db         *gorm.DB
	api        *fakeAPI
	bot        *Bot
	restaurant model.Restaurant
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "bot.db"), zerolog.Nop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	restaurant := model.Restaurant{Name: "Downtown Pizza"}
	require.NoError(t, db.Create(&restaurant).Error)

	taskRepo := repository.NewTaskRepository(db)
	clock := func() time.Time { return now }
	api := newFakeAPI()
	b := New(api,
		repository.NewUserRepository(db),
		service.NewTaskService(taskRepo, repository.NewTagRepository(db), clock),
		service.NewReminderService(taskRepo, time.UTC),
		time.UTC,
		clock,
		zerolog.Nop(),
	)
	return &env{db: db, api: api, bot: b, restaurant: restaurant}
}

func (e *env) user(t *testing.T, email string, telegramID *int64) model.User {
	t.Helper()
	u := model.User{RestaurantID: e.restaurant.ID, Email: email, Name: "John", TelegramID: telegramID}
	require.NoError(t, e.db.Create(&u).Error)
	return u
}

func (e *env) manager(t *testing.T, email string, telegramID int64) model.User {
	t.Helper()
	u := model.User{RestaurantID: e.restaurant.ID, Email: email, Name: "Anna", Role: model.RoleManager, TelegramID: &telegramID}
	require.NoError(t, e.db.Create(&u).Error)
	return u
}

func (e *env) task(t *testing.T, title string, assignees ...model.User) model.Task {
	t.Helper()
	due := now.Add(48 * time.Hour)
	task := model.Task{RestaurantID: e.restaurant.ID, Title: title, Status: model.StatusAssigned, DueDate: &due, CreatedAt: now}
	require.NoError(t, e.db.Create(&task).Error)
	for _, u := range assignees {
		require.NoError(t, e.db.Create(&model.TaskAssignment{TaskID: task.ID, UserID: u.ID}).Error)
	}
	return task
}

func command(from int64, text string) tgbotapi.Update {
	name := strings.SplitN(text, " ", 2)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: from, FirstName: "John"},
		Chat:     &tgbotapi.Chat{ID: from, Type: "private"},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func int64Ptr(v int64) *int64 { return &v }

func TestBot_LinkByEmail(t *testing.T) {
	e := newEnv(t)
	e.user(t, "john@restaurant.com", nil)
	ctx := context.Background()

	e.bot.handleUpdate(ctx, command(555, "/link John@Restaurant.com"))
	assert.Contains(t, e.api.last(t).Text, "Linked to John")

	user, err := repository.NewUserRepository(e.db).FindByTelegramID(ctx, 555)
	require.NoError(t, err)
	assert.Equal(t, "john@restaurant.com", user.Email)

	e.bot.handleUpdate(ctx, command(555, "/link nobody@restaurant.com"))
	assert.Contains(t, e.api.last(t).Text, "No staff account")

	e.bot.handleUpdate(ctx, command(555, "/link"))
	assert.Contains(t, e.api.last(t).Text, "/link john@restaurant.com")
}

func TestBot_LinkRefusesAccountOfAnotherChat(t *testing.T) {
	e := newEnv(t)
	e.user(t, "maria@restaurant.com", nil)
	ctx := context.Background()

	e.bot.handleUpdate(ctx, command(555, "/link maria@restaurant.com"))
	assert.Contains(t, e.api.last(t).Text, "Linked to")

	e.bot.handleUpdate(ctx, command(777, "/link maria@restaurant.com"))
	assert.Contains(t, e.api.last(t).Text, "already linked to another chat")

	users := repository.NewUserRepository(e.db)
	user, err := users.FindByTelegramID(ctx, 555)
	require.NoError(t, err)
	assert.Equal(t, "maria@restaurant.com", user.Email)

	_, err = users.FindByTelegramID(ctx, 777)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	e.bot.handleUpdate(ctx, command(777, "/tasks"))
	assert.Contains(t, e.api.last(t).Text, "not linked yet")
}

func TestBot_RequiresLinkedAccount(t *testing.T) {
	e := newEnv(t)

	e.bot.handleUpdate(context.Background(), command(555, "/tasks"))

	assert.Contains(t, e.api.last(t).Text, "not linked yet")
}

func TestBot_Start(t *testing.T) {
	e := newEnv(t)
	e.user(t, "john@restaurant.com", int64Ptr(555))

	e.bot.handleUpdate(context.Background(), command(555, "/start"))
	msg := e.api.last(t)
	assert.Contains(t, msg.Text, "john@restaurant.com")
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)

	e.bot.handleUpdate(context.Background(), command(777, "/start"))
	assert.Contains(t, e.api.last(t).Text, "/link &lt;email&gt;")
}

func TestBot_TasksListsOpenAssignments(t *testing.T) {
	e := newEnv(t)
	john := e.user(t, "john@restaurant.com", int64Ptr(555))
	other := e.user(t, "maria@restaurant.com", nil)
	mine := e.task(t, "Clean <grill>", john)
	e.task(t, "Not mine", other)

	e.bot.handleUpdate(context.Background(), command(555, "/tasks"))

	msg := e.api.last(t)
	assert.Contains(t, msg.Text, "Clean &lt;grill&gt;")
	assert.NotContains(t, msg.Text, "Not mine")

	keyboard, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, keyboard.InlineKeyboard, 1)
	require.NotNil(t, keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "done:"+itoa(mine.ID), *keyboard.InlineKeyboard[0][0].CallbackData)
}

func TestBot_Done(t *testing.T) {
	e := newEnv(t)
	john := e.user(t, "john@restaurant.com", int64Ptr(555))
	other := e.user(t, "maria@restaurant.com", nil)
	mine := e.task(t, "Restock fridge", john)
	theirs := e.task(t, "Mop floor", other)
	ctx := context.Background()

	e.bot.handleUpdate(ctx, command(555, "/done "+itoa(mine.ID)))
	assert.Contains(t, e.api.last(t).Text, "completed")

	var stored model.Task
	require.NoError(t, e.db.First(&stored, mine.ID).Error)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	e.bot.handleUpdate(ctx, command(555, "/done "+itoa(mine.ID)))
	assert.Contains(t, e.api.last(t).Text, "already finished")

	e.bot.handleUpdate(ctx, command(555, "/done "+itoa(theirs.ID)))
	assert.Contains(t, e.api.last(t).Text, "not assigned to you")

	e.bot.handleUpdate(ctx, command(555, "/done 9999"))
	assert.Contains(t, e.api.last(t).Text, "not found")

	e.bot.handleUpdate(ctx, command(555, "/done abc"))
	assert.Contains(t, e.api.last(t).Text, "must be a number")
}

func TestBot_DoneCallback(t *testing.T) {
	e := newEnv(t)
	john := e.user(t, "john@restaurant.com", int64Ptr(555))
	task := e.task(t, "Restock fridge", john)

	e.bot.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: 555},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 555, Type: "private"}},
		Data:    "done:" + itoa(task.ID),
	}})

	assert.Equal(t, 1, e.api.acks)
	assert.Contains(t, e.api.last(t).Text, "completed")
}

func TestBot_NewTask(t *testing.T) {
	e := newEnv(t)
	e.manager(t, "anna@restaurant.com", 900)
	john := e.user(t, "john@restaurant.com", int64Ptr(555))
	ctx := context.Background()

	e.bot.handleUpdate(ctx, command(900, "/newtask Deep clean <fryer> | 2026-03-10 | weekly | John@Restaurant.com"))
	assert.Contains(t, e.api.last(t).Text, "Deep clean &lt;fryer&gt;")

	var task model.Task
	require.NoError(t, e.db.Where("title = ?", "Deep clean <fryer>").First(&task).Error)
	assert.Equal(t, model.RecurrenceWeekly, task.Recurrence)
	assert.Equal(t, model.StatusAssigned, task.Status)
	require.NotNil(t, task.DueDate)
	assert.True(t, time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC).Equal(*task.DueDate))

	var assignments []model.TaskAssignment
	require.NoError(t, e.db.Where("task_id = ?", task.ID).Find(&assignments).Error)
	require.Len(t, assignments, 1)
	assert.Equal(t, john.ID, assignments[0].UserID)

	e.bot.handleUpdate(ctx, command(555, "/tasks"))
	assert.Contains(t, e.api.last(t).Text, "Deep clean")
}

func TestBot_NewTaskRejections(t *testing.T) {
	e := newEnv(t)
	e.manager(t, "anna@restaurant.com", 900)
	e.user(t, "john@restaurant.com", int64Ptr(555))

	outsider := model.Restaurant{Name: "Uptown Grill"}
	require.NoError(t, e.db.Create(&outsider).Error)
	require.NoError(t, e.db.Create(&model.User{RestaurantID: outsider.ID, Email: "chef@uptown.com", Name: "Chef"}).Error)

	tests := []struct {
		name string
		from int64
		text string
		want string
	}{
		{"worker", 555, "/newtask Mop floor", "Only managers"},
		{"no title", 900, "/newtask  | 2026-03-10", "title is required"},
		{"bad due date", 900, "/newtask Mop floor | next week", "cannot read due date"},
		{"bad recurrence", 900, "/newtask Mop floor | - | hourly", "unknown recurrence"},
		{"unknown assignee", 900, "/newtask Mop floor | - | once | ghost@restaurant.com", "No staff account uses ghost@restaurant.com"},
		{"other restaurant", 900, "/newtask Mop floor | - | once | chef@uptown.com", "No staff account uses chef@uptown.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e.bot.handleUpdate(context.Background(), command(tt.from, tt.text))
			assert.Contains(t, e.api.last(t).Text, tt.want)
		})
	}

	var count int64
	require.NoError(t, e.db.Model(&model.Task{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestBot_Verify(t *testing.T) {
	e := newEnv(t)
	anna := e.manager(t, "anna@restaurant.com", 900)
	john := e.user(t, "john@restaurant.com", int64Ptr(555))
	task := e.task(t, "Restock fridge", john)
	ctx := context.Background()

	e.bot.handleUpdate(ctx, command(900, "/verify "+itoa(task.ID)))
	assert.Contains(t, e.api.last(t).Text, "not waiting for verification")

	e.bot.handleUpdate(ctx, command(555, "/done "+itoa(task.ID)))
	e.bot.handleUpdate(ctx, command(555, "/verify "+itoa(task.ID)))
	assert.Contains(t, e.api.last(t).Text, "Only managers")

	e.bot.handleUpdate(ctx, command(900, "/verify "+itoa(task.ID)+" Shelves look great"))
	assert.Contains(t, e.api.last(t).Text, "verified")

	var stored model.Task
	require.NoError(t, e.db.First(&stored, task.ID).Error)
	assert.Equal(t, model.StatusVerified, stored.Status)
	require.NotNil(t, stored.VerifiedBy)
	assert.Equal(t, anna.ID, *stored.VerifiedBy)

	var comment model.Comment
	require.NoError(t, e.db.Where("task_id = ?", task.ID).First(&comment).Error)
	assert.Equal(t, "Shelves look great", comment.Content)
	assert.Equal(t, anna.ID, comment.UserID)

	e.bot.handleUpdate(ctx, command(900, "/verify 9999"))
	assert.Contains(t, e.api.last(t).Text, "Task not found")

	e.bot.handleUpdate(ctx, command(900, "/verify"))
	assert.Contains(t, e.api.last(t).Text, "/verify 12")
}

func TestBot_IgnoresGroupChats(t *testing.T) {
	e := newEnv(t)
	upd := command(555, "/help")
	upd.Message.Chat.Type = "group"

	e.bot.handleUpdate(context.Background(), upd)

	assert.Empty(t, e.api.sent)
}

func TestBot_StartStopsOnCancel(t *testing.T) {
	e := newEnv(t)
	e.api.updates <- command(555, "/help")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.bot.Start(ctx) }()

	require.Eventually(t, func() bool {
		e.api.mu.Lock()
		defer e.api.mu.Unlock()
		return len(e.api.sent) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bot did not stop after cancel")
	}
	assert.Contains(t, e.api.last(t).Text, "/done")
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
