package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	appLog "github.com/Nik4ant/SfuTelegramBot/internal/log"
	"github.com/Nik4ant/SfuTelegramBot/internal/model"
)

var (
	ErrNotFound = errors.New("profile: not found")
	// ErrIncomplete means login, group or subgroup has not been set yet.
	ErrIncomplete = errors.New("profile: login, group and subgroup are required")
)

// DefaultRetention is how long a profile survives without interaction.
const DefaultRetention = 365 * 24 * time.Hour

// Profile is what the bot remembers about a Telegram user.
type Profile struct {
	TelegramID      int64
	Login           string
	Group           string
	Subgroup        string
	Theme           model.Theme
	LastInteraction time.Time
}

// Complete reports whether the profile can be used to look up a timetable.
func (p Profile) Complete() bool {
	return p.Login != "" && p.Group != "" && p.Subgroup != ""
}

// Store keeps profiles in a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("profile: open %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("profile: connect %s: %w", path, err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	appLog.Info("profile store ready", "path", path)
	return &Store{db: db, now: time.Now}, nil
}

func createTables(db *sql.DB) error {
	const query = `CREATE TABLE IF NOT EXISTS profiles (
		telegram_id      INTEGER PRIMARY KEY,
		sfu_login        TEXT NOT NULL DEFAULT '',
		group_name       TEXT NOT NULL DEFAULT '',
		subgroup         TEXT NOT NULL DEFAULT '',
		theme            TEXT NOT NULL DEFAULT 'dark',
		last_interaction INTEGER NOT NULL
	)`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("profile: create tables: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored profile.
func (s *Store) Get(ctx context.Context, telegramID int64) (Profile, error) {
	const query = `SELECT telegram_id, sfu_login, group_name, subgroup, theme, last_interaction
		FROM profiles WHERE telegram_id = ?`

	var (
		p     Profile
		theme string
		last  int64
	)
	err := s.db.QueryRowContext(ctx, query, telegramID).Scan(
		&p.TelegramID, &p.Login, &p.Group, &p.Subgroup, &theme, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("profile: get %d: %w", telegramID, err)
	}
	if p.Theme, err = model.ParseTheme(theme); err != nil {
		appLog.Warn("stored theme is invalid", "telegram_id", telegramID, "theme", theme)
	}
	p.LastInteraction = time.Unix(last, 0)
	return p, nil
}

// Authenticated returns the profile only if it is complete.
func (s *Store) Authenticated(ctx context.Context, telegramID int64) (Profile, error) {
	p, err := s.Get(ctx, telegramID)
	if errors.Is(err, ErrNotFound) {
		return Profile{}, ErrIncomplete
	}
	if err != nil {
		return Profile{}, err
	}
	if !p.Complete() {
		return p, ErrIncomplete
	}
	return p, nil
}

// Save inserts or replaces the whole profile and marks it as active now.
func (s *Store) Save(ctx context.Context, p Profile) error {
	const query = `INSERT INTO profiles (telegram_id, sfu_login, group_name, subgroup, theme, last_interaction)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			sfu_login = excluded.sfu_login,
			group_name = excluded.group_name,
			subgroup = excluded.subgroup,
			theme = excluded.theme,
			last_interaction = excluded.last_interaction`

	_, err := s.db.ExecContext(ctx, query,
		p.TelegramID, p.Login, p.Group, p.Subgroup, p.Theme.String(), s.now().Unix())
	if err != nil {
		return fmt.Errorf("profile: save %d: %w", p.TelegramID, err)
	}
	return nil
}

// column is one of the editable profile fields.
type column string

const (
	colLogin    column = "sfu_login"
	colGroup    column = "group_name"
	colSubgroup column = "subgroup"
	colTheme    column = "theme"
)

func (s *Store) SetLogin(ctx context.Context, telegramID int64, login string) error {
	return s.set(ctx, telegramID, colLogin, login)
}

func (s *Store) SetGroup(ctx context.Context, telegramID int64, group string) error {
	return s.set(ctx, telegramID, colGroup, group)
}

func (s *Store) SetSubgroup(ctx context.Context, telegramID int64, subgroup string) error {
	return s.set(ctx, telegramID, colSubgroup, subgroup)
}

func (s *Store) SetTheme(ctx context.Context, telegramID int64, theme model.Theme) error {
	return s.set(ctx, telegramID, colTheme, theme.String())
}

// set updates one field, creating the profile if it does not exist yet.
func (s *Store) set(ctx context.Context, telegramID int64, col column, value string) error {
	query := fmt.Sprintf(`INSERT INTO profiles (telegram_id, %[1]s, last_interaction) VALUES (?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET %[1]s = excluded.%[1]s, last_interaction = excluded.last_interaction`, col)
	if _, err := s.db.ExecContext(ctx, query, telegramID, value, s.now().Unix()); err != nil {
		return fmt.Errorf("profile: set %s for %d: %w", col, telegramID, err)
	}
	return nil
}

// Clear forgets login, group and subgroup but keeps the user known.
func (s *Store) Clear(ctx context.Context, telegramID int64) error {
	const query = `UPDATE profiles SET sfu_login = '', group_name = '', subgroup = '', last_interaction = ?
		WHERE telegram_id = ?`
	if _, err := s.db.ExecContext(ctx, query, s.now().Unix(), telegramID); err != nil {
		return fmt.Errorf("profile: clear %d: %w", telegramID, err)
	}
	appLog.Info("profile cleared", "telegram_id", telegramID)
	return nil
}

// Touch records an interaction. Unknown users are ignored.
func (s *Store) Touch(ctx context.Context, telegramID int64) error {
	const query = `UPDATE profiles SET last_interaction = ? WHERE telegram_id = ?`
	if _, err := s.db.ExecContext(ctx, query, s.now().Unix(), telegramID); err != nil {
		return fmt.Errorf("profile: touch %d: %w", telegramID, err)
	}
	return nil
}

// Delete removes a profile entirely.
func (s *Store) Delete(ctx context.Context, telegramID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE telegram_id = ?`, telegramID); err != nil {
		return fmt.Errorf("profile: delete %d: %w", telegramID, err)
	}
	return nil
}

// RemoveInactive deletes profiles without interaction for longer than
// olderThan and returns how many were removed.
func (s *Store) RemoveInactive(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = DefaultRetention
	}
	cutoff := s.now().Add(-olderThan).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE last_interaction < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("profile: remove inactive: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		appLog.Info("inactive profiles removed", "count", n, "older_than", olderThan)
	}
	return n, nil
}

// Count returns the number of stored profiles.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM profiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("profile: count: %w", err)
	}
	return n, nil
}
