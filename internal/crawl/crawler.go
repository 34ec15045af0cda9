// Package crawl orchestrates the end-to-end pipeline: schedule → games →
// box scores → player records → partition objects. The schedule fetch is
// run-fatal when it fails; each game after that is its own failure domain
// and a bad game is recorded and skipped, never aborting the run.
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nhlcrawl/internal/domain"
	"nhlcrawl/internal/extract"
	"nhlcrawl/internal/manifest"
	"nhlcrawl/internal/store"
	"nhlcrawl/internal/util"
)

// StatsAPI is the slice of the stats client the crawler consumes. It must
// be safe for concurrent use.
type StatsAPI interface {
	Schedule(ctx context.Context, start, end time.Time) ([]domain.ScheduleDay, error)
	Boxscore(ctx context.Context, gameID int64) (*domain.BoxScore, error)
}

// GameStatus is the terminal state of one game within a run.
type GameStatus string

const (
	StatusWritten       GameStatus = "written"
	StatusFetchFailed   GameStatus = "fetch_failed"
	StatusExtractFailed GameStatus = "extract_failed"
	StatusWriteFailed   GameStatus = "write_failed"
)

// GameOutcome is the per-game result aggregated into the run report.
type GameOutcome struct {
	GameID int64
	Date   time.Time
	Status GameStatus
	Key    string // set when Status is StatusWritten
	Err    error  // set when Status is a failure
}

// Skipped reports whether the game produced no partition object.
func (o GameOutcome) Skipped() bool {
	return o.Status != StatusWritten
}

// Report is the observable outcome of one crawl run. Individual game skips
// do not make the run fail; they are counted here.
type Report struct {
	Days     int
	Games    int
	Written  int
	Skipped  int
	Outcomes []GameOutcome
}

// Failures returns the outcomes of games that produced no partition object.
func (r *Report) Failures() []GameOutcome {
	var failed []GameOutcome
	for _, o := range r.Outcomes {
		if o.Skipped() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Crawler walks a date range's schedule and writes one CSV partition object
// per game.
type Crawler struct {
	api            StatsAPI
	sink           store.ObjectSink
	manifest       *manifest.Store // optional
	limiter        *util.RateLimiter
	maxWorkers     int
	retryAttempts  int
	retryBaseDelay time.Duration
	log            *slog.Logger
}

// New creates a Crawler. manifest may be nil to run without a durable run
// record. rateLimitPerMin caps API calls across all workers; zero disables
// the cap.
func New(api StatsAPI, sink store.ObjectSink, m *manifest.Store, maxWorkers, rateLimitPerMin, retryAttempts int, retryBaseDelay time.Duration) *Crawler {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if retryAttempts < 1 {
		retryAttempts = 1
	}

	var limiter *util.RateLimiter
	if rateLimitPerMin > 0 {
		limiter = util.NewRateLimiter(rateLimitPerMin)
	}

	return &Crawler{
		api:            api,
		sink:           sink,
		manifest:       m,
		limiter:        limiter,
		maxWorkers:     maxWorkers,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		log:            slog.Default().With("component", "crawler"),
	}
}

// gameUnit is one independently-processed unit of work.
type gameUnit struct {
	date time.Time
	game domain.GameRef
}

// Crawl fetches the schedule for the inclusive range and processes every
// scheduled game. It returns a non-nil Report unless the schedule itself
// was unavailable or the context was cancelled; those are the run-fatal
// conditions.
func (c *Crawler) Crawl(ctx context.Context, dr domain.DateRange) (*Report, error) {
	runStart := time.Now()

	var days []domain.ScheduleDay
	err := util.Retry(ctx, c.retryAttempts, c.retryBaseDelay, func() error {
		var ferr error
		days, ferr = c.api.Schedule(ctx, dr.Start, dr.End)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("fetching schedule %s..%s: %w",
			dr.Start.Format("2006-01-02"), dr.End.Format("2006-01-02"), err)
	}

	var units []gameUnit
	for _, day := range days {
		for _, game := range day.Games {
			units = append(units, gameUnit{date: day.Date, game: game})
		}
	}

	report := &Report{Days: len(days), Games: len(units)}

	if len(units) == 0 {
		c.log.Info("no games scheduled",
			"start", dr.Start.Format("2006-01-02"),
			"end", dr.End.Format("2006-01-02"),
		)
		return report, nil
	}

	var runID int64
	if c.manifest != nil {
		runID, err = c.manifest.BeginRun(ctx, dr)
		if err != nil {
			return nil, fmt.Errorf("recording run start: %w", err)
		}
	}

	c.log.Info("starting crawl",
		"start", dr.Start.Format("2006-01-02"),
		"end", dr.End.Format("2006-01-02"),
		"days", len(days),
		"games", len(units),
		"workers", c.maxWorkers,
	)

	// Feed game indices to a bounded worker pool. A cancelled context stops
	// workers from picking up new games; in-flight games finish cleanly.
	unitCh := make(chan int, len(units))
	for i := range units {
		unitCh <- i
	}
	close(unitCh)

	results := make(chan GameOutcome, len(units))

	var wg sync.WaitGroup
	workers := min(c.maxWorkers, len(units))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range unitCh {
				if ctx.Err() != nil {
					return
				}
				results <- c.processGame(ctx, units[idx])
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single aggregating owner: counters and the manifest are only touched
	// here, so workers never share mutable state.
	for outcome := range results {
		report.Outcomes = append(report.Outcomes, outcome)

		if outcome.Skipped() {
			report.Skipped++
			c.log.Error("game skipped",
				"gameId", outcome.GameID,
				"date", outcome.Date.Format("2006-01-02"),
				"stage", string(outcome.Status),
				"err", outcome.Err,
			)
		} else {
			report.Written++
			c.log.Info("partition written",
				"gameId", outcome.GameID,
				"date", outcome.Date.Format("2006-01-02"),
				"key", outcome.Key,
			)
		}

		if c.manifest != nil {
			detail := ""
			if outcome.Err != nil {
				detail = outcome.Err.Error()
			}
			if merr := c.manifest.RecordOutcome(ctx, runID, outcome.GameID, outcome.Date, string(outcome.Status), detail); merr != nil {
				c.log.Error("recording outcome failed", "gameId", outcome.GameID, "err", merr)
			}
		}
	}

	if c.manifest != nil {
		if merr := c.manifest.FinishRun(ctx, runID, report.Games, report.Written, report.Skipped); merr != nil {
			c.log.Error("recording run end failed", "err", merr)
		}
	}

	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	c.log.Info("crawl complete",
		"games", report.Games,
		"written", report.Written,
		"skipped", report.Skipped,
		"elapsed", time.Since(runStart).Round(time.Millisecond),
	)
	return report, nil
}

// processGame runs one game through fetch → extract → key → serialize →
// put. Every failure is terminal for the game only.
func (c *Crawler) processGame(ctx context.Context, unit gameUnit) GameOutcome {
	outcome := GameOutcome{GameID: unit.game.GamePk, Date: unit.date}

	var box *domain.BoxScore
	err := util.Retry(ctx, c.retryAttempts, c.retryBaseDelay, func() error {
		if c.limiter != nil {
			if werr := c.limiter.Wait(ctx); werr != nil {
				return werr
			}
		}
		var ferr error
		box, ferr = c.api.Boxscore(ctx, unit.game.GamePk)
		return ferr
	})
	if err != nil {
		outcome.Status = StatusFetchFailed
		outcome.Err = err
		return outcome
	}

	records, err := extract.Records(box)
	if err != nil {
		outcome.Status = StatusExtractFailed
		outcome.Err = err
		return outcome
	}

	body, err := extract.CSV(records)
	if err != nil {
		outcome.Status = StatusExtractFailed
		outcome.Err = err
		return outcome
	}

	key := store.PartitionKey(unit.game.GamePk, unit.date)
	err = util.Retry(ctx, c.retryAttempts, c.retryBaseDelay, func() error {
		return c.sink.Put(ctx, key, body)
	})
	if err != nil {
		outcome.Status = StatusWriteFailed
		outcome.Err = err
		return outcome
	}

	outcome.Status = StatusWritten
	outcome.Key = key
	return outcome
}
