package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nik4ant/SfuTelegramBot/internal/model"
	"github.com/Nik4ant/SfuTelegramBot/internal/profile"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	updates chan tgbotapi.Update
	stopped bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) (tgbotapi.UpdatesChannel, error) {
	return f.updates, nil
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeAPI) take() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

type fakeTimetable struct {
	err      error
	cleared  int
	lastSel  model.WeekSelector
	lastWeek int
}

func (f *fakeTimetable) Today(_ context.Context, group, subgroup string, theme model.Theme) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "/img/" + group + "_" + subgroup + "_" + theme.String() + ".png", nil
}

func (f *fakeTimetable) Week(_ context.Context, _, _ string, sel model.WeekSelector, _ model.Theme) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastSel = sel
	paths := make([]string, model.DaysPerWeek)
	for i := range paths {
		paths[i] = "/img/day" + string(rune('0'+i)) + ".png"
	}
	return paths, nil
}

func (f *fakeTimetable) Calendar(_ context.Context, _, _ string, weeks int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastWeek = weeks
	return []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"), nil
}

func (f *fakeTimetable) ClearCache() error {
	f.cleared++
	return f.err
}

const (
	userID  = 1001
	adminID = 7
)

func newTestBot(t *testing.T) (*Bot, *fakeAPI, *fakeTimetable, *profile.Store) {
	t.Helper()
	store, err := profile.Open(filepath.Join(t.TempDir(), "database.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	api := &fakeAPI{updates: make(chan tgbotapi.Update)}
	tt := &fakeTimetable{}
	return New(api, tt, store, Options{AdminIDs: []int64{adminID}}), api, tt, store
}

func message(from int, text string) *tgbotapi.Message {
	m := &tgbotapi.Message{
		From: &tgbotapi.User{ID: from},
		Chat: &tgbotapi.Chat{ID: int64(from)},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		m.Entities = &[]tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return m
}

func texts(sent []tgbotapi.Chattable) []string {
	var out []string
	for _, c := range sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func register(t *testing.T, b *Bot, api *fakeAPI, id int) {
	t.Helper()
	ctx := context.Background()
	b.Handle(ctx, message(id, "/login ivanov-ii"))
	b.Handle(ctx, message(id, "/group КИ23-01Б"))
	b.Handle(ctx, message(id, "/subgroup 1"))
	api.take()
}

func TestHandle_Registration(t *testing.T) {
	b, api, _, store := newTestBot(t)
	ctx := context.Background()

	b.Handle(ctx, message(userID, "/today"))
	assert.Equal(t, []string{msgNeedLogin}, texts(api.take()))

	b.Handle(ctx, message(userID, "/login"))
	assert.Contains(t, texts(api.take())[0], "/login NSurname-UG24")

	b.Handle(ctx, message(userID, "/subgroup первая"))
	assert.Contains(t, texts(api.take())[0], "из цифр")

	register(t, b, api, userID)
	p, err := store.Authenticated(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "ivanov-ii", p.Login)
	assert.Equal(t, "КИ23-01Б", p.Group)
	assert.Equal(t, "1", p.Subgroup)
}

func TestHandle_Today(t *testing.T) {
	b, api, tt, _ := newTestBot(t)
	ctx := context.Background()
	register(t, b, api, userID)

	b.Handle(ctx, message(userID, "/today"))
	sent := api.take()
	require.Len(t, sent, 1)
	photo, ok := sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, "/img/КИ23-01Б_1_dark.png", photo.File)

	b.Handle(ctx, message(userID, "/theme light"))
	api.take()
	b.Handle(ctx, message(userID, btnToday))
	photo = api.take()[0].(tgbotapi.PhotoConfig)
	assert.Equal(t, "/img/КИ23-01Б_1_light.png", photo.File)

	tt.err = errors.New("upstream said 500")
	b.Handle(ctx, message(userID, "/today"))
	assert.Equal(t, []string{msgFailure}, texts(api.take()))
}

func TestHandle_Weeks(t *testing.T) {
	b, api, tt, _ := newTestBot(t)
	ctx := context.Background()
	register(t, b, api, userID)

	tests := []struct {
		text string
		sel  model.WeekSelector
	}{
		{"/week", model.WeekCurrent},
		{"/odd", model.WeekOdd},
		{"/even", model.WeekEven},
		{btnThisWeek, model.WeekCurrent},
		{btnOdd, model.WeekOdd},
		{btnEven, model.WeekEven},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			b.Handle(ctx, message(userID, tc.text))
			sent := api.take()
			assert.Len(t, sent, model.DaysPerWeek)
			assert.Equal(t, tc.sel, tt.lastSel)
		})
	}

	b.Handle(ctx, message(userID, btnTimetable))
	assert.Equal(t, []string{msgChooseWeek}, texts(api.take()))
}

func TestHandle_Calendar(t *testing.T) {
	b, api, tt, _ := newTestBot(t)
	ctx := context.Background()
	register(t, b, api, userID)

	b.Handle(ctx, message(userID, "/calendar"))
	sent := api.take()
	require.Len(t, sent, 1)
	doc, ok := sent[0].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "timetable.ics", file.Name)
	assert.Equal(t, 4, tt.lastWeek)

	b.Handle(ctx, message(userID, "/calendar 8"))
	api.take()
	assert.Equal(t, 8, tt.lastWeek)

	b.Handle(ctx, message(userID, "/calendar 100"))
	assert.Contains(t, texts(api.take())[0], "от 1 до")
}

func TestHandle_AdminCommands(t *testing.T) {
	b, api, tt, store := newTestBot(t)
	ctx := context.Background()

	b.Handle(ctx, message(userID, "/clearcache"))
	assert.Equal(t, []string{msgNotAdmin}, texts(api.take()))
	assert.Zero(t, tt.cleared)

	b.Handle(ctx, message(adminID, "/clearcache"))
	assert.Equal(t, []string{"Кэш очищен"}, texts(api.take()))
	assert.Equal(t, 1, tt.cleared)

	b.Handle(ctx, message(userID, "/cleandb"))
	assert.Equal(t, []string{msgNotAdmin}, texts(api.take()))

	require.NoError(t, store.SetLogin(ctx, 555, "someone"))
	b.Handle(ctx, message(adminID, "/cleandb"))
	assert.Equal(t, []string{"Удалено неактивных профилей: 0"}, texts(api.take()))
}

func TestHandle_Unknown(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	b.Handle(context.Background(), message(userID, "привет"))
	assert.Equal(t, []string{msgUnknown}, texts(api.take()))

	b.Handle(context.Background(), &tgbotapi.Message{Text: "no sender"})
	assert.Empty(t, api.take())
}

func TestRun_StopsOnCancel(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	api.updates <- tgbotapi.Update{Message: message(userID, "/start")}
	cancel()
	require.NoError(t, <-done)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.True(t, api.stopped)
	assert.Equal(t, []string{msgWelcome}, texts(api.sent))
}
