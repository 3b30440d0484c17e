package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dayplanner/internal/config"
	"dayplanner/internal/model"
	"dayplanner/internal/repository"
	"dayplanner/internal/service"
)

const cbCompletePrefix = "done:"

const (
	menuLabelToday    = "📋 Today"
	menuLabelTomorrow = "🗓 Tomorrow"
	menuLabelSync     = "🔄 Sync calendar"
	menuLabelHelp     = "ℹ️ Help"
)

const helpText = `<b>Commands</b>
/today - today's schedule
/tomorrow - prepare and show tomorrow
/sync - pull calendar changes into today
/done N - mark task N of today as done
/calendar URL - link your private ICS feed (/calendar off to unlink)
/tz ZONE - set your timezone, e.g. Europe/Berlin`

// Bot aggregates Telegram API with services.
type Bot struct {
	api        *tgbotapi.BotAPI
	userRepo   *repository.UserRepository
	schedules  *repository.ScheduleRepository
	reconciler *service.Reconciler
	config     *config.Config
}

func New(token string, userRepo *repository.UserRepository, schedules *repository.ScheduleRepository, reconciler *service.Reconciler, cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{
		api:        api,
		userRepo:   userRepo,
		schedules:  schedules,
		reconciler: reconciler,
		config:     cfg,
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	command, args := msg.Command(), strings.TrimSpace(msg.CommandArguments())
	if !msg.IsCommand() {
		command = menuCommand(msg.Text)
	}
	if command != "" {
		log.Printf("[info] command from %d: /%s", msg.From.ID, command)
	}

	switch command {
	case "start":
		return b.sendWithReplyMarkup(msg.Chat.ID, "👋 Hi! I keep your daily schedule in sync with your calendar.\n\n"+helpText, mainMenuKeyboard())
	case "help":
		return b.sendText(msg.Chat.ID, helpText)
	case "today":
		return b.showDay(ctx, msg.Chat.ID, user, 0)
	case "tomorrow":
		return b.showDay(ctx, msg.Chat.ID, user, 1)
	case "sync":
		return b.handleSync(ctx, msg.Chat.ID, user)
	case "done":
		return b.handleDone(ctx, msg.Chat.ID, user, args)
	case "calendar":
		return b.handleCalendar(ctx, msg.Chat.ID, user, args)
	case "tz":
		return b.handleTimezone(ctx, msg.Chat.ID, user, args)
	default:
		return b.sendText(msg.Chat.ID, "I didn't get that. Try /help.")
	}
}

func (b *Bot) showDay(ctx context.Context, chatID int64, user *model.User, offset int) error {
	day := b.localDay(user, offset)
	res, err := b.reconciler.Autogenerate(ctx, user.ID, day, "")
	if err != nil {
		return b.reportError(chatID, err)
	}
	if res.CalendarAuthRequired {
		if err := b.sendText(chatID, "⚠️ Your calendar feed rejected access. Link it again with /calendar."); err != nil {
			return err
		}
	}
	return b.sendSchedule(chatID, res.Schedule)
}

func (b *Bot) handleSync(ctx context.Context, chatID int64, user *model.User) error {
	res, err := b.reconciler.SyncFromCalendar(ctx, user.ID, b.localDay(user, 0))
	if err != nil {
		return b.reportError(chatID, err)
	}
	if res.Degraded {
		return b.sendText(chatID, "⏳ The calendar did not answer in time. Your schedule is unchanged.")
	}
	text := fmt.Sprintf("🔄 Synced: %d updated, %d new.", res.Stats.Updated, res.Stats.Inserted)
	if err := b.sendText(chatID, text); err != nil {
		return err
	}
	return b.sendSchedule(chatID, res.Schedule)
}

func (b *Bot) handleDone(ctx context.Context, chatID int64, user *model.User, args string) error {
	n, err := strconv.Atoi(args)
	if err != nil || n <= 0 {
		return b.sendText(chatID, "Usage: /done N, where N is the task number from /today.")
	}
	day := b.localDay(user, 0)
	key, _ := model.NormalizeDate(day)
	doc, err := b.schedules.FindOne(ctx, user.ID, key)
	if err != nil {
		return b.reportError(chatID, err)
	}
	task, ok := taskByNumber(doc, n)
	if !ok {
		return b.sendText(chatID, fmt.Sprintf("There is no task %d today.", n))
	}
	return b.complete(ctx, chatID, user, day, task.ID)
}

func (b *Bot) complete(ctx context.Context, chatID int64, user *model.User, day, taskID string) error {
	doc, err := b.reconciler.SetCompleted(ctx, user.ID, day, taskID, true)
	if err != nil {
		return b.reportError(chatID, err)
	}
	return b.sendSchedule(chatID, doc)
}

func (b *Bot) handleCalendar(ctx context.Context, chatID int64, user *model.User, args string) error {
	switch {
	case args == "":
		return b.sendText(chatID, "Usage: /calendar https://.../basic.ics")
	case strings.EqualFold(args, "off"):
		if err := b.userRepo.SetCalendar(ctx, user.ID, ""); err != nil {
			return err
		}
		return b.sendText(chatID, "Calendar unlinked.")
	}
	u, err := url.Parse(args)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http" && u.Scheme != "webcal") || u.Host == "" {
		return b.sendText(chatID, "That does not look like a calendar feed URL.")
	}
	if u.Scheme == "webcal" {
		u.Scheme = "https"
	}
	if err := b.userRepo.SetCalendar(ctx, user.ID, u.String()); err != nil {
		return err
	}
	return b.sendText(chatID, "📅 Calendar linked. Use /sync to pull today's events.")
}

func (b *Bot) handleTimezone(ctx context.Context, chatID int64, user *model.User, args string) error {
	if _, err := time.LoadLocation(args); err != nil || args == "" {
		return b.sendText(chatID, "Unknown timezone. Example: /tz Europe/Berlin")
	}
	if err := b.userRepo.SetTimezone(ctx, user.ID, args); err != nil {
		return err
	}
	return b.sendText(chatID, "🕒 Timezone set to "+escape(args)+".")
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.Message == nil || cb.From == nil || !strings.HasPrefix(cb.Data, cbCompletePrefix) {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("answer callback: %v", err)
	}
	day, taskID, ok := strings.Cut(strings.TrimPrefix(cb.Data, cbCompletePrefix), ":")
	if !ok {
		return nil
	}
	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		return err
	}
	return b.complete(ctx, cb.Message.Chat.ID, user, day, taskID)
}

// SendDailySchedules sends every Telegram user their schedule for today plus offset days.
func (b *Bot) SendDailySchedules(ctx context.Context, offset int) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for i := range users {
		user := &users[i]
		if user.TelegramID == nil {
			continue
		}
		res, err := b.reconciler.Autogenerate(ctx, user.ID, b.localDay(user, offset), "")
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", user.ID, err))
			continue
		}
		if err := b.sendSchedule(*user.TelegramID, res.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("send to %d: %w", *user.TelegramID, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	if name == "" {
		name = from.UserName
	}
	return b.userRepo.UpsertFromTelegram(ctx, from.ID, name)
}

func (b *Bot) localDay(user *model.User, offset int) string {
	loc := b.config.Location()
	if user.Timezone != "" {
		if l, err := time.LoadLocation(user.Timezone); err == nil {
			loc = l
		}
	}
	return time.Now().In(loc).AddDate(0, 0, offset).Format(model.DayLayout)
}

func (b *Bot) reportError(chatID int64, err error) error {
	switch {
	case errors.Is(err, model.ErrAuth):
		return b.sendText(chatID, "⚠️ No working calendar link. Set one with /calendar.")
	case errors.Is(err, model.ErrScheduleNotFound):
		return b.sendText(chatID, "No schedule yet. Open /today first.")
	case errors.Is(err, model.ErrValidation):
		return b.sendText(chatID, "⚠️ "+escape(err.Error()))
	default:
		log.Printf("[error] bot request: %v", err)
		return b.sendText(chatID, "Something went wrong, please try again later.")
	}
}

func (b *Bot) sendSchedule(chatID int64, doc *model.Schedule) error {
	text := formatSchedule(doc)
	markup := scheduleKeyboard(doc)
	if markup == nil {
		return b.sendText(chatID, text)
	}
	return b.sendWithReplyMarkup(chatID, text, *markup)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

// formatSchedule renders the schedule with sections as headers and tasks numbered from 1.
func formatSchedule(doc *model.Schedule) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 <b>Schedule for %s</b>\n", doc.Day()))
	if doc.Metadata.TotalTasks == 0 && len(doc.Tasks) == 0 {
		sb.WriteString("— nothing planned\n")
		return strings.TrimSpace(sb.String())
	}

	n := 0
	for _, t := range doc.Tasks {
		if t.Sectional() {
			sb.WriteString(fmt.Sprintf("\n<b>%s</b>\n", escape(t.Text)))
			continue
		}
		n++
		icon := "⬜"
		if t.Completed {
			icon = "✅"
		}
		sb.WriteString(fmt.Sprintf("%d. %s %s", n, icon, escape(t.Text)))
		if t.StartTime != "" {
			sb.WriteString(fmt.Sprintf(" <i>%s", t.StartTime))
			if t.EndTime != "" && t.EndTime != t.StartTime {
				sb.WriteString("–" + t.EndTime)
			}
			sb.WriteString("</i>")
		}
		if t.FromGCal {
			sb.WriteString(" 📅")
		}
		if t.IsRecurring != nil {
			sb.WriteString(" ♻️")
		}
		sb.WriteByte('\n')
	}
	return strings.TrimSpace(sb.String())
}

// taskByNumber resolves the 1-based task number shown by formatSchedule.
func taskByNumber(doc *model.Schedule, n int) (model.Task, bool) {
	i := 0
	for _, t := range doc.Tasks {
		if t.Sectional() {
			continue
		}
		i++
		if i == n {
			return t, true
		}
	}
	return model.Task{}, false
}

func scheduleKeyboard(doc *model.Schedule) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	n := 0
	for _, t := range doc.Tasks {
		if t.Sectional() {
			continue
		}
		n++
		if t.Completed {
			continue
		}
		data := cbCompletePrefix + doc.Day() + ":" + t.ID
		if len(data) > 64 {
			continue
		}
		label := fmt.Sprintf("✅ %d. %s", n, shortTitle(t.Text, 24))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data)))
	}
	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func shortTitle(title string, maxLen int) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen-1]) + "…"
}

func menuCommand(text string) string {
	switch strings.TrimSpace(text) {
	case menuLabelToday:
		return "today"
	case menuLabelTomorrow:
		return "tomorrow"
	case menuLabelSync:
		return "sync"
	case menuLabelHelp:
		return "help"
	default:
		return ""
	}
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelToday),
			tgbotapi.NewKeyboardButton(menuLabelTomorrow),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelSync),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func escape(s string) string {
	return html.EscapeString(s)
}
