package timetable

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Nik4ant/SfuTelegramBot/internal/ics"
	appLog "github.com/Nik4ant/SfuTelegramBot/internal/log"
	"github.com/Nik4ant/SfuTelegramBot/internal/model"
)

var (
	// ErrUnavailable is all a caller learns about a failed lookup. Details
	// are logged.
	ErrUnavailable = errors.New("timetable: unavailable, try again later")
	// ErrBadRequest means the group or subgroup is missing.
	ErrBadRequest = errors.New("timetable: group and subgroup are required")
)

// Fetcher loads one parity of a group's timetable from upstream.
type Fetcher interface {
	FetchWeek(ctx context.Context, group, subgroup string, parity model.Parity) ([]model.Day, error)
}

// Store is the image cache the service reads from and fills.
type Store interface {
	GetDay(key model.GroupKey, parity model.Parity, day int) (model.ImageRef, bool)
	GetWeek(key model.GroupKey, parity model.Parity) ([]model.ImageRef, bool)
	GetWeekImage(key model.GroupKey, parity model.Parity) (model.ImageRef, bool)
	PutWeek(ctx context.Context, days []model.Day) ([]model.ImageRef, error)
	Placeholder() model.ImageRef
}

// Resetter clears the cache; the admin path and the schedule share it.
type Resetter interface {
	Trigger() error
}

// Service resolves user requests to image files, filling the cache on a
// miss. A failed fetch or render is never cached.
type Service struct {
	store    Store
	fetcher  Fetcher
	resetter Resetter
	loc      *time.Location
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, fetcher Fetcher, resetter Resetter, loc *time.Location, opts ...Option) *Service {
	if loc == nil {
		loc = time.Local
	}
	s := &Service{store: store, fetcher: fetcher, resetter: resetter, loc: loc, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now is the current time in the university's time zone.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

// Location is the time zone parity and weekdays are computed in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Today returns the image of today's lessons. Sunday always yields the
// placeholder without touching upstream.
func (s *Service) Today(ctx context.Context, group, subgroup string, theme model.Theme) (string, error) {
	key, err := groupKey(group, subgroup)
	if err != nil {
		return "", err
	}
	now := s.Now()
	idx := model.DayIndex(now)
	if idx == model.Sunday {
		return s.store.Placeholder().Path(theme), nil
	}
	parity := model.ParityFor(now)

	if ref, ok := s.store.GetDay(key, parity, idx); ok {
		return ref.Path(theme), nil
	}

	refs, err := s.fill(ctx, key, parity)
	if err != nil {
		return "", err
	}
	return refs[idx].Path(theme), nil
}

// Week returns Monday..Saturday of the selected week, one image per day.
func (s *Service) Week(ctx context.Context, group, subgroup string, sel model.WeekSelector, theme model.Theme) ([]string, error) {
	key, err := groupKey(group, subgroup)
	if err != nil {
		return nil, err
	}
	parity := sel.Resolve(s.Now())

	refs, ok := s.store.GetWeek(key, parity)
	if !ok {
		if refs, err = s.fill(ctx, key, parity); err != nil {
			return nil, err
		}
	}

	paths := make([]string, len(refs))
	for i, ref := range refs {
		paths[i] = ref.Path(theme)
	}
	return paths, nil
}

// WeekImage returns the selected week stacked into a single image.
func (s *Service) WeekImage(ctx context.Context, group, subgroup string, sel model.WeekSelector, theme model.Theme) (string, error) {
	key, err := groupKey(group, subgroup)
	if err != nil {
		return "", err
	}
	parity := sel.Resolve(s.Now())

	if ref, ok := s.store.GetWeekImage(key, parity); ok {
		return ref.Path(theme), nil
	}
	if _, err := s.fill(ctx, key, parity); err != nil {
		return "", err
	}
	ref, ok := s.store.GetWeekImage(key, parity)
	if !ok {
		// Lost to a concurrent reset.
		appLog.Warn("week image missing right after render", "key", key, "parity", parity)
		return "", ErrUnavailable
	}
	return ref.Path(theme), nil
}

// Calendar exports the next weeks of the group's timetable as iCalendar.
// Both parities are fetched, images are not involved.
func (s *Service) Calendar(ctx context.Context, group, subgroup string, weeks int) ([]byte, error) {
	key, err := groupKey(group, subgroup)
	if err != nil {
		return nil, err
	}

	var odd, even []model.Day
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		odd, err = s.fetcher.FetchWeek(gctx, key.Group, key.Subgroup, model.ParityOdd)
		return err
	})
	g.Go(func() (err error) {
		even, err = s.fetcher.FetchWeek(gctx, key.Group, key.Subgroup, model.ParityEven)
		return err
	})
	if err := g.Wait(); err != nil {
		appLog.Error("calendar fetch failed", err, "key", key)
		return nil, ErrUnavailable
	}

	body, err := ics.Build(map[model.Parity][]model.Day{
		model.ParityOdd:  odd,
		model.ParityEven: even,
	}, ics.Options{
		From:     s.Now(),
		Weeks:    weeks,
		Loc:      s.loc,
		Group:    key.Group,
		Subgroup: key.Subgroup,
	})
	if err != nil {
		appLog.Error("calendar build failed", err, "key", key)
		return nil, ErrUnavailable
	}
	return body, nil
}

// ClearCache drops every cached image now.
func (s *Service) ClearCache() error {
	if err := s.resetter.Trigger(); err != nil {
		appLog.Error("manual cache clear failed", err)
		return err
	}
	appLog.Info("cache cleared by admin")
	return nil
}

// fill fetches and renders a whole parity. Refs are indexed by day.
func (s *Service) fill(ctx context.Context, key model.GroupKey, parity model.Parity) ([]model.ImageRef, error) {
	start := time.Now()
	days, err := s.fetcher.FetchWeek(ctx, key.Group, key.Subgroup, parity)
	if err != nil {
		appLog.Error("timetable fetch failed", err, "key", key, "parity", parity)
		return nil, ErrUnavailable
	}

	refs, err := s.store.PutWeek(ctx, days)
	if err != nil {
		appLog.Error("timetable render failed", err, "key", key, "parity", parity)
		return nil, ErrUnavailable
	}
	if len(refs) != model.DaysPerWeek {
		appLog.Warn("upstream week is incomplete", "key", key, "parity", parity, "days", len(refs))
		return nil, ErrUnavailable
	}

	appLog.Info("timetable rendered", "key", key, "parity", parity, "took", time.Since(start))
	return refs, nil
}

func groupKey(group, subgroup string) (model.GroupKey, error) {
	key := model.GroupKey{Group: strings.TrimSpace(group), Subgroup: strings.TrimSpace(subgroup)}
	if key.Group == "" || key.Subgroup == "" {
		return key, ErrBadRequest
	}
	return key, nil
}
