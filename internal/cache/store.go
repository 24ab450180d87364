package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "github.com/Nik4ant/SfuTelegramBot/internal/log"
	"github.com/Nik4ant/SfuTelegramBot/internal/model"
)

// Renderer turns days into image files. Implementations must write files
// atomically and only inside their own output directory.
type Renderer interface {
	RenderDay(ctx context.Context, day model.Day) (model.ImageRef, error)
	RenderWeek(ctx context.Context, days []model.Day) (model.ImageRef, error)
	Placeholder() model.ImageRef
	// Clear deletes every generated file.
	Clear() error
}

// ErrBadWeek is returned by PutWeek for input that is not one parity of
// one group with distinct weekdays.
var ErrBadWeek = errors.New("cache: malformed week")

type parityDays map[model.Parity]map[int]model.ImageRef

// Store maps (group, subgroup) -> parity -> day index -> rendered image.
// Every stored reference points at files that existed when it was stored;
// lookups re-check the files and drop entries whose files are gone.
type Store struct {
	renderer Renderer

	// resetMu is held shared by writers for the whole render+insert and
	// exclusively by Reset, so a reset never interleaves with a put.
	resetMu sync.RWMutex

	mu      sync.RWMutex
	entries map[model.GroupKey]parityDays
	// weeks holds the composite image of fully cached parities.
	weeks     map[model.GroupKey]map[model.Parity]model.ImageRef
	lastReset time.Time
}

func New(r Renderer) *Store {
	return &Store{
		renderer: r,
		entries:  make(map[model.GroupKey]parityDays),
		weeks:    make(map[model.GroupKey]map[model.Parity]model.ImageRef),
	}
}

// Placeholder is the shared image for days without classes.
func (s *Store) Placeholder() model.ImageRef {
	return s.renderer.Placeholder()
}

// GetDay returns the cached image for one day.
func (s *Store) GetDay(key model.GroupKey, parity model.Parity, day int) (model.ImageRef, bool) {
	s.mu.RLock()
	ref, ok := s.entries[key][parity][day]
	s.mu.RUnlock()
	if !ok {
		return model.ImageRef{}, false
	}
	if !s.filesExist(ref) {
		s.dropParity(key, parity, "day file missing")
		return model.ImageRef{}, false
	}
	return ref, true
}

// GetWeek returns Monday..Saturday in order, only when all six days are
// stored for the parity.
func (s *Store) GetWeek(key model.GroupKey, parity model.Parity) ([]model.ImageRef, bool) {
	s.mu.RLock()
	days := s.entries[key][parity]
	if len(days) != model.DaysPerWeek {
		s.mu.RUnlock()
		return nil, false
	}
	refs := make([]model.ImageRef, 0, model.DaysPerWeek)
	for i := 0; i < model.DaysPerWeek; i++ {
		ref, ok := days[i]
		if !ok {
			s.mu.RUnlock()
			return nil, false
		}
		refs = append(refs, ref)
	}
	s.mu.RUnlock()

	for _, ref := range refs {
		if !s.filesExist(ref) {
			s.dropParity(key, parity, "week file missing")
			return nil, false
		}
	}
	return refs, true
}

// GetWeekImage returns the single stacked image of a fully cached parity.
func (s *Store) GetWeekImage(key model.GroupKey, parity model.Parity) (model.ImageRef, bool) {
	if _, ok := s.GetWeek(key, parity); !ok {
		return model.ImageRef{}, false
	}
	s.mu.RLock()
	ref, ok := s.weeks[key][parity]
	s.mu.RUnlock()
	if !ok || !s.filesExist(ref) {
		return model.ImageRef{}, false
	}
	return ref, true
}

// PutDay renders one day and stores it. A Sunday is never stored; its
// placeholder is returned as is.
func (s *Store) PutDay(ctx context.Context, day model.Day) (model.ImageRef, error) {
	if !day.Parity.Valid() {
		return model.ImageRef{}, fmt.Errorf("cache: invalid parity %d", day.Parity)
	}
	if day.Index < 0 || day.Index > model.Sunday {
		return model.ImageRef{}, fmt.Errorf("cache: invalid day index %d", day.Index)
	}
	if day.Index == model.Sunday {
		return s.renderer.Placeholder(), nil
	}

	s.resetMu.RLock()
	defer s.resetMu.RUnlock()

	ref, err := s.renderer.RenderDay(ctx, day)
	if err != nil {
		return model.ImageRef{}, fmt.Errorf("cache: render %s day %d: %w", day.GroupKey(), day.Index, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	byParity := s.entries[day.GroupKey()]
	if byParity == nil {
		byParity = make(parityDays)
		s.entries[day.GroupKey()] = byParity
	}
	if byParity[day.Parity] == nil {
		byParity[day.Parity] = make(map[int]model.ImageRef, model.DaysPerWeek)
	}
	byParity[day.Parity][day.Index] = ref
	return ref, nil
}

// PutWeek renders the given days and replaces whatever was stored for their
// parity. Sundays in the input are dropped. The stacked composite is only
// rendered when the input covers Monday..Saturday. On error nothing is
// stored. The returned refs follow day order.
func (s *Store) PutWeek(ctx context.Context, days []model.Day) ([]model.ImageRef, error) {
	week, err := normalizeWeek(days)
	if err != nil {
		return nil, err
	}
	key, parity := week[0].GroupKey(), week[0].Parity
	complete := len(week) == model.DaysPerWeek

	s.resetMu.RLock()
	defer s.resetMu.RUnlock()

	refs := make([]model.ImageRef, len(week))
	var composite model.ImageRef

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range week {
		g.Go(func() error {
			ref, err := s.renderer.RenderDay(gctx, d)
			if err != nil {
				return fmt.Errorf("cache: render %s day %d: %w", key, d.Index, err)
			}
			refs[i] = ref
			return nil
		})
	}
	if complete {
		g.Go(func() error {
			ref, err := s.renderer.RenderWeek(gctx, week)
			if err != nil {
				return fmt.Errorf("cache: render %s week: %w", key, err)
			}
			composite = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stored := make(map[int]model.ImageRef, len(refs))
	for i, d := range week {
		stored[d.Index] = refs[i]
	}

	s.mu.Lock()
	byParity := s.entries[key]
	if byParity == nil {
		byParity = make(parityDays)
		s.entries[key] = byParity
	}
	byParity[parity] = stored
	if s.weeks[key] == nil {
		s.weeks[key] = make(map[model.Parity]model.ImageRef)
	}
	if complete {
		s.weeks[key][parity] = composite
	} else {
		delete(s.weeks[key], parity)
	}
	s.mu.Unlock()

	appLog.Debug("cache week stored", "key", key, "parity", parity, "days", len(week))
	return refs, nil
}

// normalizeWeek drops Sundays, checks that the rest is one parity of one
// group without repeated weekdays and sorts it by day.
func normalizeWeek(days []model.Day) ([]model.Day, error) {
	week := make([]model.Day, 0, model.DaysPerWeek)
	for _, d := range days {
		if d.Index != model.Sunday {
			week = append(week, d)
		}
	}
	if len(week) == 0 {
		return nil, fmt.Errorf("%w: no weekdays", ErrBadWeek)
	}
	sort.Slice(week, func(i, j int) bool { return week[i].Index < week[j].Index })

	first := week[0]
	if !first.Parity.Valid() {
		return nil, fmt.Errorf("%w: invalid parity %d", ErrBadWeek, first.Parity)
	}
	for i, d := range week {
		if d.Index < 0 || d.Index >= model.Sunday {
			return nil, fmt.Errorf("%w: invalid day index %d", ErrBadWeek, d.Index)
		}
		if i > 0 && week[i-1].Index == d.Index {
			return nil, fmt.Errorf("%w: day %d repeated", ErrBadWeek, d.Index)
		}
		if d.GroupKey() != first.GroupKey() || d.Parity != first.Parity {
			return nil, fmt.Errorf("%w: mixed groups or parities", ErrBadWeek)
		}
	}
	return week, nil
}

// Reset empties the cache and deletes every generated image. It waits for
// in-flight puts, and puts wait for it.
func (s *Store) Reset() error {
	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	s.mu.Lock()
	n := len(s.entries)
	dropped := s.pathsLocked()
	s.entries = make(map[model.GroupKey]parityDays)
	s.weeks = make(map[model.GroupKey]map[model.Parity]model.ImageRef)
	s.lastReset = time.Now()
	s.mu.Unlock()

	err := s.renderer.Clear()
	if err != nil {
		appLog.Warn("cache reset: clear failed, retrying", "err", err)
		err = s.renderer.Clear()
	}
	if err != nil {
		// The entries are gone either way; report what is still on disk.
		var left []string
		for _, p := range dropped {
			if _, statErr := os.Stat(p); statErr == nil {
				left = append(left, p)
			}
		}
		appLog.Error("cache reset: images left behind", err, "groups", n, "leftover", left)
		return fmt.Errorf("cache: clear images: %w", err)
	}
	appLog.Info("cache reset", "groups", n)
	return nil
}

// pathsLocked lists every file referenced by the cache, placeholders
// excluded. s.mu must be held.
func (s *Store) pathsLocked() []string {
	placeholder := s.renderer.Placeholder()
	var out []string
	add := func(ref model.ImageRef) {
		for _, p := range []string{ref.Dark, ref.Light} {
			if p != "" && p != placeholder.Dark && p != placeholder.Light {
				out = append(out, p)
			}
		}
	}
	for _, byParity := range s.entries {
		for _, days := range byParity {
			for _, ref := range days {
				add(ref)
			}
		}
	}
	for _, byParity := range s.weeks {
		for _, ref := range byParity {
			add(ref)
		}
	}
	sort.Strings(out)
	return out
}

// Stats is a point-in-time summary of the cache.
type Stats struct {
	Groups    int       `json:"groups"`
	Days      int       `json:"days"`
	FullWeeks int       `json:"full_weeks"`
	LastReset time.Time `json:"last_reset"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Groups: len(s.entries), LastReset: s.lastReset}
	for _, byParity := range s.entries {
		for _, days := range byParity {
			st.Days += len(days)
			if len(days) == model.DaysPerWeek {
				st.FullWeeks++
			}
		}
	}
	return st
}

func (s *Store) filesExist(ref model.ImageRef) bool {
	for _, p := range ref.Paths() {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// dropParity forgets a parity whose files disappeared underneath the cache
// so the next request renders it again.
func (s *Store) dropParity(key model.GroupKey, parity model.Parity, reason string) {
	s.mu.Lock()
	if byParity := s.entries[key]; byParity != nil {
		delete(byParity, parity)
		if len(byParity) == 0 {
			delete(s.entries, key)
		}
	}
	if weeks := s.weeks[key]; weeks != nil {
		delete(weeks, parity)
	}
	s.mu.Unlock()
	appLog.Warn("cache entry dropped", "key", key, "parity", parity, "reason", reason)
}
