package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Nik4ant/SfuTelegramBot/internal/cache"
	"github.com/Nik4ant/SfuTelegramBot/internal/config"
	"github.com/Nik4ant/SfuTelegramBot/internal/ics"
	appLog "github.com/Nik4ant/SfuTelegramBot/internal/log"
	"github.com/Nik4ant/SfuTelegramBot/internal/model"
	"github.com/Nik4ant/SfuTelegramBot/internal/render"
	"github.com/Nik4ant/SfuTelegramBot/internal/timetable"
)

// msgUnavailable is the only thing a client learns about a failed lookup.
const msgUnavailable = "try again later"

// Timetable is what the API serves. *timetable.Service implements it.
type Timetable interface {
	Today(ctx context.Context, group, subgroup string, theme model.Theme) (string, error)
	Week(ctx context.Context, group, subgroup string, sel model.WeekSelector, theme model.Theme) ([]string, error)
	WeekImage(ctx context.Context, group, subgroup string, sel model.WeekSelector, theme model.Theme) (string, error)
	Calendar(ctx context.Context, group, subgroup string, weeks int) ([]byte, error)
	ClearCache() error
}

// CacheStats reports the image cache state.
type CacheStats interface {
	Stats() cache.Stats
}

// Schedule reports the periodic reset.
type Schedule interface {
	LastReset() time.Time
	Next() time.Time
}

// Server provides the HTTP API over the timetable service.
type Server struct {
	cfg      *config.Config
	tt       Timetable
	out      *render.Output
	stats    CacheStats
	schedule Schedule
	theme    model.Theme
	mux      *http.ServeMux
}

// NewServer constructs a new Server. stats and schedule may be nil.
func NewServer(cfg *config.Config, tt Timetable, out *render.Output, stats CacheStats, schedule Schedule) *Server {
	theme, err := model.ParseTheme(cfg.Render.DefaultTheme)
	if err != nil {
		theme = model.ThemeDark
	}
	s := &Server{
		cfg:      cfg,
		tt:       tt,
		out:      out,
		stats:    stats,
		schedule: schedule,
		theme:    theme,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="SfuTelegramBot", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/today", s.handleToday)
	s.mux.HandleFunc("GET /api/week", s.handleWeek)
	s.mux.HandleFunc("GET /api/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("GET /images/{name}", s.handleImage)
	s.mux.HandleFunc("GET /api/admin/cache", s.handleCacheStats)
	s.mux.HandleFunc("POST /api/admin/cache/clear", s.handleCacheClear)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// request holds the query parameters shared by the image endpoints.
type request struct {
	group, subgroup string
	theme           model.Theme
}

func (s *Server) parseRequest(q url.Values) (request, error) {
	req := request{
		group:    strings.TrimSpace(q.Get("group")),
		subgroup: strings.TrimSpace(q.Get("subgroup")),
		theme:    s.theme,
	}
	if req.group == "" || req.subgroup == "" {
		return req, errors.New("group and subgroup are required")
	}
	if raw := q.Get("theme"); raw != "" {
		th, err := model.ParseTheme(raw)
		if err != nil {
			return req, errors.New("theme must be dark or light")
		}
		req.theme = th
	}
	return req, nil
}

// handleToday serves today's image.
//
// GET /api/today?group=...&subgroup=...&theme=dark
func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	path, err := s.tt.Today(r.Context(), req.group, req.subgroup, req.theme)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	s.servePNG(w, r, path)
}

// weekResponse lists per-day image URLs, Monday first.
type weekResponse struct {
	Group    string   `json:"group"`
	Subgroup string   `json:"subgroup"`
	Week     string   `json:"week"`
	Theme    string   `json:"theme"`
	Images   []string `json:"images"`
}

// handleWeek serves a week either as a JSON list of per-day image URLs or
// as the stacked composite PNG.
//
// GET /api/week?group=...&subgroup=...&parity=current|odd|even&layout=days|composite
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := s.parseRequest(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sel, err := model.ParseWeekSelector(q.Get("parity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "parity must be current, odd or even")
		return
	}

	switch layout := q.Get("layout"); layout {
	case "", "days":
		paths, err := s.tt.Week(r.Context(), req.group, req.subgroup, sel, req.theme)
		if err != nil {
			s.writeLookupError(w, err)
			return
		}
		resp := weekResponse{
			Group:    req.group,
			Subgroup: req.subgroup,
			Week:     weekName(sel),
			Theme:    req.theme.String(),
			Images:   make([]string, 0, len(paths)),
		}
		for _, p := range paths {
			resp.Images = append(resp.Images, "/images/"+url.PathEscape(filepath.Base(p)))
		}
		writeJSON(w, http.StatusOK, resp)
	case "composite":
		path, err := s.tt.WeekImage(r.Context(), req.group, req.subgroup, sel, req.theme)
		if err != nil {
			s.writeLookupError(w, err)
			return
		}
		s.servePNG(w, r, path)
	default:
		writeError(w, http.StatusBadRequest, "layout must be days or composite")
	}
}

func weekName(sel model.WeekSelector) string {
	switch sel {
	case model.WeekOdd:
		return "odd"
	case model.WeekEven:
		return "even"
	default:
		return "current"
	}
}

// handleCalendar exports upcoming lessons as iCalendar.
//
// GET /api/calendar.ics?group=...&subgroup=...&weeks=4
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := s.parseRequest(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	weeks := parseIntDefault(q.Get("weeks"), ics.DefaultWeeks)
	if weeks < 1 || weeks > ics.MaxWeeks {
		writeError(w, http.StatusBadRequest, "weeks must be between 1 and "+strconv.Itoa(ics.MaxWeeks))
		return
	}

	body, err := s.tt.Calendar(r.Context(), req.group, req.subgroup, weeks)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="timetable.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleImage serves a generated image or placeholder by file name.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".png" {
		http.NotFound(w, r)
		return
	}
	for _, dir := range []string{s.out.Dir(), s.out.AssetsDir()} {
		path := filepath.Join(dir, name)
		if !s.out.Contains(path) {
			continue
		}
		if fileExists(path) {
			s.servePNG(w, r, path)
			return
		}
	}
	http.NotFound(w, r)
}

// cacheResponse is the JSON shape of GET /api/admin/cache.
type cacheResponse struct {
	cache.Stats
	ScheduledReset time.Time `json:"scheduled_reset"`
	Refresh        string    `json:"refresh"`
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	var resp cacheResponse
	if s.stats != nil {
		resp.Stats = s.stats.Stats()
	}
	if s.schedule != nil {
		if last := s.schedule.LastReset(); last.After(resp.LastReset) {
			resp.LastReset = last
		}
		resp.ScheduledReset = s.schedule.Next()
	}
	resp.Refresh = s.cfg.Refresh
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	if err := s.tt.ClearCache(); err != nil {
		appLog.Error("api cache clear failed", err)
		writeError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// servePNG serves a file the service handed out. Paths outside the image
// directories are refused.
func (s *Server) servePNG(w http.ResponseWriter, r *http.Request, path string) {
	if !s.out.Contains(path) {
		appLog.Warn("refusing to serve file outside image dirs", "path", path)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, timetable.ErrBadRequest) {
		writeError(w, http.StatusBadRequest, "group and subgroup are required")
		return
	}
	// The service already logged the cause.
	writeError(w, http.StatusServiceUnavailable, msgUnavailable)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
