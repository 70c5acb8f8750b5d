package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"kitchenboard/internal/model"
	"kitchenboard/internal/repository"
	"kitchenboard/internal/service"
)

const cbDonePrefix = "done:"

const (
	menuLabelTasks = "📋 Tasks"
	menuLabelHelp  = "ℹ️ Help"
)

const helpText = "ℹ️ <b>Commands</b>\n" +
	"• /link &lt;email&gt; — connect this chat to your staff account\n" +
	"• /tasks — show your open tasks\n" +
	"• /done &lt;id&gt; — mark a task as completed (for example, /done 12)\n" +
	"• /help — this message\n\n" +
	"<b>Managers</b>\n" +
	"• " + newTaskUsage + "\n" +
	"• /verify &lt;id&gt; [comment] — confirm a completed task"

const newTaskUsage = "/newtask &lt;title&gt; | &lt;due YYYY-MM-DD [HH:MM]&gt; | &lt;once|daily|weekly|monthly&gt; | &lt;emails&gt;"

const dueLayout = "2006-01-02 15:04"

// API is the subset of the Telegram client the bot relies on.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api       API
	users     *repository.UserRepository
	tasks     *service.TaskService
	reminders *service.ReminderService
	loc       *time.Location
	now       func() time.Time
	log       zerolog.Logger
}

func New(api API, users *repository.UserRepository, tasks *service.TaskService, reminders *service.ReminderService, loc *time.Location, now func() time.Time, log zerolog.Logger) *Bot {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Bot{
		api:       api,
		users:     users,
		tasks:     tasks,
		reminders: reminders,
		loc:       loc,
		now:       now,
		log:       log,
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info().Msg("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}

	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			b.log.Error().Err(err).Msg("handle callback")
		}
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Error().Err(err).Msg("handle message")
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.IsCommand() {
		b.log.Info().
			Int64("telegram_id", msg.From.ID).
			Str("command", msg.Command()).
			Msg("command received")
		return b.handleCommand(ctx, msg)
	}

	switch strings.TrimSpace(msg.Text) {
	case menuLabelTasks:
		return b.handleTasks(ctx, msg)
	case menuLabelHelp:
		return b.sendText(msg.Chat.ID, helpText)
	}

	return b.sendText(msg.Chat.ID, "I did not understand that. Try /help for the list of commands.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.sendText(msg.Chat.ID, helpText)
	case "link":
		return b.handleLink(ctx, msg)
	case "tasks":
		return b.handleTasks(ctx, msg)
	case "done":
		return b.handleDone(ctx, msg)
	case "newtask":
		return b.handleNewTask(ctx, msg)
	case "verify":
		return b.handleVerify(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unsupported command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}

	user, err := b.users.FindByTelegramID(ctx, msg.From.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		text := fmt.Sprintf("👋 Hi, %s!\nI send reminders about restaurant tasks that are close to their due date.\n\n"+
			"Connect your staff account first: /link &lt;email&gt;\n\n%s", escape(name), helpText)
		return b.sendText(msg.Chat.ID, text)
	case err != nil:
		return err
	}

	text := fmt.Sprintf("👋 Hi, %s!\nThis chat is linked to <b>%s</b>.\n\n%s", escape(name), escape(user.Email), helpText)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleLink(ctx context.Context, msg *tgbotapi.Message) error {
	email := strings.TrimSpace(msg.CommandArguments())
	if email == "" || !strings.Contains(email, "@") {
		return b.sendText(msg.Chat.ID, "Send your staff email: /link john@restaurant.com")
	}

	user, err := b.users.LinkTelegram(ctx, email, msg.From.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return b.sendText(msg.Chat.ID, "No staff account uses that email. Ask your manager to check it.")
	case errors.Is(err, repository.ErrAlreadyLinked):
		b.log.Warn().
			Int64("telegram_id", msg.From.ID).
			Msg("link refused, account bound to another chat")
		return b.sendText(msg.Chat.ID, "That account is already linked to another chat. Ask your manager to reset it.")
	case err != nil:
		return err
	}

	b.log.Info().
		Uint("user_id", user.ID).
		Int64("telegram_id", msg.From.ID).
		Msg("telegram linked")
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Linked to %s. Due-date reminders will arrive here.", escape(user.DisplayName())))
}

func (b *Bot) handleTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, ok, err := b.linkedUser(ctx, msg.Chat.ID, msg.From.ID)
	if !ok {
		return err
	}

	text, err := b.reminders.OpenTasksSummary(ctx, *user, b.now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not load tasks: %s", escape(err.Error())))
	}

	open, err := b.tasks.ListOpenForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return b.sendText(msg.Chat.ID, text)
	}
	return b.sendWithReplyMarkup(msg.Chat.ID, text, doneKeyboard(open))
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, "Give the task ID: /done 12")
	}

	taskID, err := strconv.ParseUint(args, 10, 64)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Task ID must be a number.")
	}

	return b.complete(ctx, msg.Chat.ID, msg.From.ID, uint(taskID))
}

func (b *Bot) handleNewTask(ctx context.Context, msg *tgbotapi.Message) error {
	user, ok, err := b.linkedUser(ctx, msg.Chat.ID, msg.From.ID)
	if !ok {
		return err
	}
	if !user.CanManage() {
		return b.sendText(msg.Chat.ID, "Only managers can create tasks.")
	}

	args, err := parseNewTask(msg.CommandArguments(), b.loc)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not read the task: %s.\nUsage: %s", escape(err.Error()), newTaskUsage))
	}

	var assignees []uint
	for _, email := range args.emails {
		assignee, err := b.users.FindByEmail(ctx, email)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err != nil || assignee.RestaurantID != user.RestaurantID {
			return b.sendText(msg.Chat.ID, fmt.Sprintf("No staff account uses %s.", escape(email)))
		}
		assignees = append(assignees, assignee.ID)
	}

	task, err := b.tasks.CreateTask(ctx, service.TaskInput{
		RestaurantID: user.RestaurantID,
		CreatedBy:    user.ID,
		Title:        args.title,
		DueDate:      args.due,
		Recurrence:   args.recurrence,
		AssigneeIDs:  assignees,
	})
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not create task: %s", escape(err.Error())))
	}

	b.log.Info().
		Uint("task_id", task.ID).
		Uint("created_by", user.ID).
		Int("assignees", len(assignees)).
		Msg("task created")
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🆕 Task #%d «%s» created.", task.ID, escape(task.Title)))
}

func (b *Bot) handleVerify(ctx context.Context, msg *tgbotapi.Message) error {
	parts := strings.SplitN(strings.TrimSpace(msg.CommandArguments()), " ", 2)
	if parts[0] == "" {
		return b.sendText(msg.Chat.ID, "Give the task ID: /verify 12 [comment]")
	}
	taskID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Task ID must be a number.")
	}
	var comment string
	if len(parts) == 2 {
		comment = parts[1]
	}

	user, ok, err := b.linkedUser(ctx, msg.Chat.ID, msg.From.ID)
	if !ok {
		return err
	}

	task, err := b.tasks.Verify(ctx, uint(taskID), *user, comment)
	switch {
	case errors.Is(err, service.ErrForbidden):
		return b.sendText(msg.Chat.ID, "Only managers can verify tasks.")
	case errors.Is(err, repository.ErrNotFound):
		return b.sendText(msg.Chat.ID, "Task not found.")
	case errors.Is(err, service.ErrInvalidTransition):
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Task #%d is not waiting for verification.", taskID))
	case err != nil:
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}

	return b.sendText(msg.Chat.ID, fmt.Sprintf("☑️ Task «%s» verified.", escape(task.Title)))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn().Err(err).Msg("callback ack")
	}

	if !strings.HasPrefix(cb.Data, cbDonePrefix) {
		return nil
	}
	taskID, err := parseTaskID(cb.Data, cbDonePrefix)
	if err != nil {
		return nil
	}

	b.log.Info().
		Int64("telegram_id", cb.From.ID).
		Uint("task_id", taskID).
		Msg("callback complete")
	return b.complete(ctx, cb.Message.Chat.ID, cb.From.ID, taskID)
}

func (b *Bot) complete(ctx context.Context, chatID, telegramID int64, taskID uint) error {
	user, ok, err := b.linkedUser(ctx, chatID, telegramID)
	if !ok {
		return err
	}

	task, err := b.tasks.Complete(ctx, taskID, user.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return b.sendText(chatID, "Task not found.")
	case errors.Is(err, service.ErrNotAssignee):
		return b.sendText(chatID, "This task is not assigned to you.")
	case errors.Is(err, service.ErrInvalidTransition):
		return b.sendText(chatID, fmt.Sprintf("Task #%d is already finished.", taskID))
	case err != nil:
		return b.sendText(chatID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}

	return b.sendText(chatID, fmt.Sprintf("✅ Task «%s» completed. A manager will verify it.", escape(task.Title)))
}

// linkedUser resolves the staff account for a Telegram user. When none is
// linked it replies with instructions and reports ok=false.
func (b *Bot) linkedUser(ctx context.Context, chatID, telegramID int64) (*model.User, bool, error) {
	user, err := b.users.FindByTelegramID(ctx, telegramID)
	if err == nil {
		return user, true, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, b.sendText(chatID, "This chat is not linked yet. Use /link &lt;email&gt; first.")
	}
	return nil, false, err
}

func (b *Bot) sendText(chatID int64, text string) error {
	return b.sendWithReplyMarkup(chatID, text, mainMenuKeyboard())
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

type newTaskArgs struct {
	title      string
	due        *time.Time
	recurrence string
	emails     []string
}

// parseNewTask reads "title | due | recurrence | emails". Everything after
// the title is optional; "-" skips a field. A date without a time is due at
// the end of that day.
func parseNewTask(raw string, loc *time.Location) (newTaskArgs, error) {
	var args newTaskArgs
	fields := strings.Split(raw, "|")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
		if fields[i] == "-" {
			fields[i] = ""
		}
	}

	args.title = fields[0]
	if args.title == "" {
		return args, errors.New("title is required")
	}
	if len(fields) > 4 {
		return args, errors.New("too many fields")
	}

	if len(fields) > 1 && fields[1] != "" {
		due, err := time.ParseInLocation(dueLayout, fields[1], loc)
		if err != nil {
			day, dayErr := time.ParseInLocation("2006-01-02", fields[1], loc)
			if dayErr != nil {
				return args, fmt.Errorf("cannot read due date %q", fields[1])
			}
			due = day.Add(24*time.Hour - time.Second)
		}
		args.due = &due
	}
	if len(fields) > 2 {
		args.recurrence = strings.ToLower(fields[2])
	}
	if len(fields) > 3 {
		for _, email := range strings.Split(fields[3], ",") {
			if email = strings.TrimSpace(email); email != "" {
				args.emails = append(args.emails, email)
			}
		}
	}
	return args, nil
}

func parseTaskID(data, prefix string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(data, prefix), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func doneKeyboard(tasks []model.Task) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(tasks))
	for _, task := range tasks {
		label := fmt.Sprintf("✅ #%d %s", task.ID, shortTitle(task.Title, 24))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbDonePrefix+strconv.FormatUint(uint64(task.ID), 10)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelTasks),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func shortTitle(title string, maxLen int) string {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) <= maxLen {
		return title
	}
	runes := []rune(title)
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}
