package sfu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	appLog "github.com/Nik4ant/SfuTelegramBot/internal/log"
	"github.com/Nik4ant/SfuTelegramBot/internal/model"
)

const (
	DefaultBaseURL = "https://edu.sfu-kras.ru/api/timetable/get"
	DefaultTimeout = 15 * time.Second

	// maxBodySize bounds how much of a response we are willing to read.
	maxBodySize = 8 << 20
)

// ErrUnavailable means the timetable could not be obtained: network or
// HTTP failure, timeout, or every query variant came back empty. It is
// never the same thing as "no classes".
var ErrUnavailable = errors.New("sfu: timetable unavailable")

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond limits outgoing requests; zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Client fetches raw timetables from the university API.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a timetable API client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "?&"),
		client:  hc,
		limiter: limiter,
	}
}

// Targets returns the query targets to try for a group, in order. The API
// has accepted both spellings of the subgroup suffix over time.
func Targets(group, subgroup string) []string {
	return []string{
		fmt.Sprintf("%s (%s подгруппа)", group, subgroup),
		fmt.Sprintf("%s (подгруппа %s)", group, subgroup),
	}
}

// FetchWeek fetches the timetable and partitions it into the days of one
// parity. See BuildWeek.
func (c *Client) FetchWeek(ctx context.Context, group, subgroup string, parity model.Parity) ([]model.Day, error) {
	records, err := c.FetchTimetable(ctx, group, subgroup)
	if err != nil {
		return nil, err
	}
	return BuildWeek(records, group, subgroup, parity), nil
}

// FetchTimetable tries every query target in order and returns the records
// of the first one that yields a non-empty timetable. Errors of individual
// attempts are logged; if no attempt succeeds the result wraps
// ErrUnavailable.
func (c *Client) FetchTimetable(ctx context.Context, group, subgroup string) ([]Record, error) {
	var lastErr error
	for _, target := range Targets(group, subgroup) {
		records, err := c.fetchTarget(ctx, target)
		if err != nil {
			appLog.Error("sfu fetch failed", err, "target", target)
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if len(records) == 0 {
			appLog.Info("sfu fetch returned empty timetable", "target", target)
			continue
		}
		appLog.Info("sfu fetch success", "target", target, "records", len(records))
		return records, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
	}
	return nil, fmt.Errorf("%w: empty timetable for %s (%s)", ErrUnavailable, group, subgroup)
}

func (c *Client) fetchTarget(ctx context.Context, target string) ([]Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := c.baseURL + "?" + url.Values{"target": {target}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, errors.New(resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	records, err := decodeTimetable(body)
	if err != nil {
		return nil, fmt.Errorf("decode timetable: %w", err)
	}
	return records, nil
}
