package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"golang.org/x/sync/errgroup"

	"github.com/Nik4ant/SfuTelegramBot/internal/ics"
	appLog "github.com/Nik4ant/SfuTelegramBot/internal/log"
	"github.com/Nik4ant/SfuTelegramBot/internal/model"
	"github.com/Nik4ant/SfuTelegramBot/internal/profile"
)

// Reply texts.
const (
	msgFailure    = "Что-то пошло не так. Попробуйте позже"
	msgWelcome    = "Добро пожаловать! Авторизуйтесь для начала работы:\n/login <логин>\n/group <группа>\n/subgroup <номер подгруппы>"
	msgNeedLogin  = "Сначала заполните профиль: /login, /group и /subgroup"
	msgNotAdmin   = "Команда доступна только администратору"
	msgUnknown    = "Неизвестная команда. Список команд: /start"
	msgChooseWeek = "Выберите неделю."

	btnToday     = "Что сегодня?"
	btnTimetable = "Расписание"
	btnThisWeek  = "Эта неделя"
	btnEven      = "Четная неделя"
	btnOdd       = "Нечетная неделя"
	btnBack      = "Назад"
)

// API is the part of the Telegram client the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) (tgbotapi.UpdatesChannel, error)
	StopReceivingUpdates()
}

// Timetable answers schedule requests.
type Timetable interface {
	Today(ctx context.Context, group, subgroup string, theme model.Theme) (string, error)
	Week(ctx context.Context, group, subgroup string, sel model.WeekSelector, theme model.Theme) ([]string, error)
	Calendar(ctx context.Context, group, subgroup string, weeks int) ([]byte, error)
	ClearCache() error
}

// Profiles stores who the users are.
type Profiles interface {
	Authenticated(ctx context.Context, telegramID int64) (profile.Profile, error)
	SetLogin(ctx context.Context, telegramID int64, login string) error
	SetGroup(ctx context.Context, telegramID int64, group string) error
	SetSubgroup(ctx context.Context, telegramID int64, subgroup string) error
	SetTheme(ctx context.Context, telegramID int64, theme model.Theme) error
	Touch(ctx context.Context, telegramID int64) error
	RemoveInactive(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Options struct {
	AdminIDs []int64
	// Workers bounds how many updates are handled at once.
	Workers int
}

// Bot is a thin command layer over the timetable service.
type Bot struct {
	api       API
	timetable Timetable
	profiles  Profiles
	admins    map[int64]bool
	workers   int
}

func New(api API, tt Timetable, profiles Profiles, opts Options) *Bot {
	admins := make(map[int64]bool, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		admins[id] = true
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	return &Bot{api: api, timetable: tt, profiles: profiles, admins: admins, workers: opts.Workers}
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := b.api.GetUpdatesChan(u)
	if err != nil {
		return fmt.Errorf("bot: get updates: %w", err)
	}
	appLog.Info("telegram bot polling")

	var g errgroup.Group
	g.SetLimit(b.workers)
	defer g.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			appLog.Info("telegram bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			msg := update.Message
			g.Go(func() error {
				b.Handle(ctx, msg)
				return nil
			})
		}
	}
}

// Handle answers a single message.
func (b *Bot) Handle(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	userID := int64(msg.From.ID)
	chatID := msg.Chat.ID

	if err := b.profiles.Touch(ctx, userID); err != nil {
		appLog.Warn("profile touch failed", "telegram_id", userID, "err", err)
	}

	cmd, args := route(msg)
	appLog.Debug("bot command", "telegram_id", userID, "command", cmd)

	switch cmd {
	case "start", "help":
		b.reply(chatID, msgWelcome, menuKeyboard())
	case "login":
		b.setLogin(ctx, chatID, userID, args)
	case "group":
		b.setGroup(ctx, chatID, userID, args)
	case "subgroup":
		b.setSubgroup(ctx, chatID, userID, args)
	case "theme":
		b.setTheme(ctx, chatID, userID, args)
	case "today":
		b.today(ctx, chatID, userID)
	case "timetable":
		b.reply(chatID, msgChooseWeek, weekKeyboard())
	case "back":
		b.reply(chatID, "Главное меню", menuKeyboard())
	case "week":
		b.week(ctx, chatID, userID, model.WeekCurrent)
	case "odd":
		b.week(ctx, chatID, userID, model.WeekOdd)
	case "even":
		b.week(ctx, chatID, userID, model.WeekEven)
	case "calendar":
		b.calendar(ctx, chatID, userID, args)
	case "clearcache":
		b.clearCache(chatID, userID)
	case "cleandb":
		b.cleanDB(ctx, chatID, userID)
	default:
		b.reply(chatID, msgUnknown, nil)
	}
}

// route maps a slash command or a keyboard button to a command name.
func route(msg *tgbotapi.Message) (cmd, args string) {
	if msg.IsCommand() {
		return strings.ToLower(msg.Command()), strings.TrimSpace(msg.CommandArguments())
	}
	switch strings.TrimSpace(msg.Text) {
	case btnToday:
		return "today", ""
	case btnTimetable:
		return "timetable", ""
	case btnThisWeek:
		return "week", ""
	case btnOdd:
		return "odd", ""
	case btnEven:
		return "even", ""
	case btnBack:
		return "back", ""
	}
	return "", ""
}

func menuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnToday)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnTimetable)),
	)
}

func weekKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnThisWeek)),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnOdd),
			tgbotapi.NewKeyboardButton(btnEven),
		),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnBack)),
	)
}

func (b *Bot) setLogin(ctx context.Context, chatID, userID int64, args string) {
	login, err := profile.FormatLogin(args)
	if err != nil {
		b.reply(chatID, "Введите логин после команды, например: /login NSurname-UG24", nil)
		return
	}
	if err := b.profiles.SetLogin(ctx, userID, login); err != nil {
		b.fail(chatID, "set login", err)
		return
	}
	b.reply(chatID, "Логин сохранён: "+login, nil)
}

func (b *Bot) setGroup(ctx context.Context, chatID, userID int64, args string) {
	group, err := profile.SanitizeGroup(args)
	if err != nil {
		b.reply(chatID, "Введите группу после команды, например: /group КИ23-01Б", nil)
		return
	}
	if err := b.profiles.SetGroup(ctx, userID, group); err != nil {
		b.fail(chatID, "set group", err)
		return
	}
	b.reply(chatID, "Группа сохранена: "+group, nil)
}

func (b *Bot) setSubgroup(ctx context.Context, chatID, userID int64, args string) {
	if !profile.ValidSubgroup(args) {
		b.reply(chatID, "Номер подгруппы должен состоять из цифр, например: /subgroup 1", nil)
		return
	}
	if err := b.profiles.SetSubgroup(ctx, userID, strings.TrimSpace(args)); err != nil {
		b.fail(chatID, "set subgroup", err)
		return
	}
	b.reply(chatID, "Подгруппа сохранена", menuKeyboard())
}

func (b *Bot) setTheme(ctx context.Context, chatID, userID int64, args string) {
	theme, err := model.ParseTheme(args)
	if err != nil || args == "" {
		b.reply(chatID, "Доступные темы: /theme dark, /theme light", nil)
		return
	}
	if err := b.profiles.SetTheme(ctx, userID, theme); err != nil {
		b.fail(chatID, "set theme", err)
		return
	}
	b.reply(chatID, "Тема сохранена", nil)
}

// user returns the complete profile or tells the user what is missing.
func (b *Bot) user(ctx context.Context, chatID, userID int64) (profile.Profile, bool) {
	p, err := b.profiles.Authenticated(ctx, userID)
	if errors.Is(err, profile.ErrIncomplete) {
		b.reply(chatID, msgNeedLogin, nil)
		return p, false
	}
	if err != nil {
		b.fail(chatID, "load profile", err)
		return p, false
	}
	return p, true
}

func (b *Bot) today(ctx context.Context, chatID, userID int64) {
	p, ok := b.user(ctx, chatID, userID)
	if !ok {
		return
	}
	path, err := b.timetable.Today(ctx, p.Group, p.Subgroup, p.Theme)
	if err != nil {
		b.fail(chatID, "today", err)
		return
	}
	b.sendPhoto(chatID, path)
}

func (b *Bot) week(ctx context.Context, chatID, userID int64, sel model.WeekSelector) {
	p, ok := b.user(ctx, chatID, userID)
	if !ok {
		return
	}
	paths, err := b.timetable.Week(ctx, p.Group, p.Subgroup, sel, p.Theme)
	if err != nil {
		b.fail(chatID, "week", err)
		return
	}
	for _, path := range paths {
		if !b.sendPhoto(chatID, path) {
			return
		}
	}
}

func (b *Bot) calendar(ctx context.Context, chatID, userID int64, args string) {
	p, ok := b.user(ctx, chatID, userID)
	if !ok {
		return
	}
	weeks := ics.DefaultWeeks
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n < 1 || n > ics.MaxWeeks {
			b.reply(chatID, fmt.Sprintf("Укажите число недель от 1 до %d", ics.MaxWeeks), nil)
			return
		}
		weeks = n
	}
	body, err := b.timetable.Calendar(ctx, p.Group, p.Subgroup, weeks)
	if err != nil {
		b.fail(chatID, "calendar", err)
		return
	}
	doc := tgbotapi.NewDocumentUpload(chatID, tgbotapi.FileBytes{Name: "timetable.ics", Bytes: body})
	if _, err := b.api.Send(doc); err != nil {
		appLog.Error("send calendar failed", err, "chat_id", chatID)
	}
}

func (b *Bot) clearCache(chatID, userID int64) {
	if !b.admins[userID] {
		b.reply(chatID, msgNotAdmin, nil)
		return
	}
	if err := b.timetable.ClearCache(); err != nil {
		b.fail(chatID, "clear cache", err)
		return
	}
	b.reply(chatID, "Кэш очищен", nil)
}

func (b *Bot) cleanDB(ctx context.Context, chatID, userID int64) {
	if !b.admins[userID] {
		b.reply(chatID, msgNotAdmin, nil)
		return
	}
	n, err := b.profiles.RemoveInactive(ctx, profile.DefaultRetention)
	if err != nil {
		b.fail(chatID, "clean db", err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Удалено неактивных профилей: %d", n), nil)
}

func (b *Bot) sendPhoto(chatID int64, path string) bool {
	if _, err := b.api.Send(tgbotapi.NewPhotoUpload(chatID, path)); err != nil {
		appLog.Error("send photo failed", err, "chat_id", chatID, "path", path)
		return false
	}
	return true
}

func (b *Bot) reply(chatID int64, text string, markup interface{}) {
	m := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		m.ReplyMarkup = markup
	}
	if _, err := b.api.Send(m); err != nil {
		appLog.Error("send message failed", err, "chat_id", chatID)
	}
}

// fail logs the cause and shows the user a generic message.
func (b *Bot) fail(chatID int64, op string, err error) {
	appLog.Error("bot request failed", err, "op", op, "chat_id", chatID)
	b.reply(chatID, msgFailure, nil)
}
