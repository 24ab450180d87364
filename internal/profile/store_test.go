package profile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nik4ant/SfuTelegramBot/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "database.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	in := Profile{TelegramID: 42, Login: "ivanov-ii", Group: "КИ23-01Б", Subgroup: "1", Theme: model.ThemeLight}
	require.NoError(t, s.Save(ctx, in))

	got, err := s.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, in.Login, got.Login)
	assert.Equal(t, in.Group, got.Group)
	assert.Equal(t, in.Subgroup, got.Subgroup)
	assert.Equal(t, model.ThemeLight, got.Theme)
	assert.WithinDuration(t, time.Now(), got.LastInteraction, 2*time.Second)
	assert.True(t, got.Complete())

	in.Group = "КИ23-02Б"
	require.NoError(t, s.Save(ctx, in))
	got, err = s.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "КИ23-02Б", got.Group)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSetFieldsStepByStep(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Authenticated(ctx, 7)
	assert.ErrorIs(t, err, ErrIncomplete)

	require.NoError(t, s.SetLogin(ctx, 7, "petrov"))
	_, err = s.Authenticated(ctx, 7)
	assert.ErrorIs(t, err, ErrIncomplete)

	require.NoError(t, s.SetGroup(ctx, 7, "КИ23-01Б"))
	require.NoError(t, s.SetSubgroup(ctx, 7, "2"))
	p, err := s.Authenticated(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "petrov", p.Login)
	assert.Equal(t, "2", p.Subgroup)
	assert.Equal(t, model.ThemeDark, p.Theme)

	require.NoError(t, s.SetTheme(ctx, 7, model.ThemeLight))
	p, err = s.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, model.ThemeLight, p.Theme)

	require.NoError(t, s.Clear(ctx, 7))
	p, err = s.Get(ctx, 7)
	require.NoError(t, err)
	assert.False(t, p.Complete())
	assert.Equal(t, model.ThemeLight, p.Theme, "clear keeps preferences")

	require.NoError(t, s.Delete(ctx, 7))
	_, err = s.Get(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveInactive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	require.NoError(t, s.SetLogin(ctx, 1, "old"))

	s.now = func() time.Time { return base.AddDate(0, 11, 0) }
	require.NoError(t, s.SetLogin(ctx, 2, "recent"))

	s.now = func() time.Time { return base.AddDate(1, 0, 1) }
	require.NoError(t, s.Touch(ctx, 99), "touching an unknown user is not an error")

	n, err := s.RemoveInactive(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, 2)
	assert.NoError(t, err)
}

func TestTouchKeepsProfileAlive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	require.NoError(t, s.SetLogin(ctx, 1, "user"))
	s.now = func() time.Time { return base.AddDate(0, 6, 0) }
	require.NoError(t, s.Touch(ctx, 1))

	s.now = func() time.Time { return base.AddDate(1, 1, 0) }
	n, err := s.RemoveInactive(ctx, DefaultRetention)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFormatLogin(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{"ivanov-ii", "ivanov-ii", true},
		{"  Иванов_И.И. ", "ИвановИИ", true},
		{"<b>user</b>42", "user42", true},
		{"<script>", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := FormatLogin(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeGroup(t *testing.T) {
	got, err := SanitizeGroup("  КИ23-01Б  ")
	require.NoError(t, err)
	assert.Equal(t, "КИ23-01Б", got)

	got, err = SanitizeGroup("ФТ21-01   (1)")
	require.NoError(t, err)
	assert.Equal(t, "ФТ21-01 (1)", got)

	_, err = SanitizeGroup("КИ23;DROP")
	assert.Error(t, err)
	_, err = SanitizeGroup("   ")
	assert.Error(t, err)
}

func TestValidSubgroup(t *testing.T) {
	assert.True(t, ValidSubgroup("1"))
	assert.True(t, ValidSubgroup(" 12 "))
	assert.False(t, ValidSubgroup(""))
	assert.False(t, ValidSubgroup("1a"))
	assert.False(t, ValidSubgroup("123"))
}
