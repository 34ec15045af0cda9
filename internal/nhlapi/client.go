// Package nhlapi is a typed client for the NHL stats API. It covers the two
// operations the crawler needs: the schedule for a date range and a single
// game's box score. All transport-level failures are translated into
// SourceUnavailableError; retry policy belongs to the caller.
package nhlapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nhlcrawl/internal/domain"
)

// DefaultBaseURL is the public stats API endpoint.
const DefaultBaseURL = "https://statsapi.web.nhl.com/api/v1"

// SourceUnavailableError reports a transport-level failure talking to the
// stats API: HTTP error status, connection failure, timeout, or a response
// body that does not decode. The operation that failed never returns
// partial data.
type SourceUnavailableError struct {
	Op  string // "schedule" or "boxscore"
	URL string
	Err error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("stats source unavailable: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// Client accesses the NHL stats API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a stats API client. An empty baseURL selects the public
// endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type scheduleResponse struct {
	Dates []scheduleDate `json:"dates"`
}

type scheduleDate struct {
	Date  string         `json:"date"`
	Games []scheduleGame `json:"games"`
}

type scheduleGame struct {
	GamePk int64 `json:"gamePk"`
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Schedule returns one ScheduleDay per calendar date with games in the
// inclusive [start, end] range. An empty result is valid.
func (c *Client) Schedule(ctx context.Context, start, end time.Time) ([]domain.ScheduleDay, error) {
	q := url.Values{}
	q.Set("startDate", start.Format("2006-01-02"))
	q.Set("endDate", end.Format("2006-01-02"))
	u := c.baseURL + "/schedule?" + q.Encode()

	var resp scheduleResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, &SourceUnavailableError{Op: "schedule", URL: u, Err: err}
	}

	days := make([]domain.ScheduleDay, 0, len(resp.Dates))
	for _, d := range resp.Dates {
		date, err := time.Parse("2006-01-02", d.Date)
		if err != nil {
			return nil, &SourceUnavailableError{
				Op:  "schedule",
				URL: u,
				Err: fmt.Errorf("unparseable schedule date %q: %w", d.Date, err),
			}
		}

		games := make([]domain.GameRef, 0, len(d.Games))
		for _, g := range d.Games {
			games = append(games, domain.GameRef{GamePk: g.GamePk})
		}
		days = append(days, domain.ScheduleDay{Date: date, Games: games})
	}

	return days, nil
}

// Boxscore returns the box score for a single game.
func (c *Client) Boxscore(ctx context.Context, gameID int64) (*domain.BoxScore, error) {
	u := fmt.Sprintf("%s/game/%d/boxscore", c.baseURL, gameID)

	var box domain.BoxScore
	if err := c.get(ctx, u, &box); err != nil {
		return nil, &SourceUnavailableError{Op: "boxscore", URL: u, Err: err}
	}

	return &box, nil
}

// get performs a GET request and decodes the JSON response body into out.
func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}
