package crawl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"nhlcrawl/internal/domain"
	"nhlcrawl/internal/manifest"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

func intp(v int) *int { return &v }

// fakeAPI serves canned schedule days and box scores. Games listed in
// failFetch fail every boxscore attempt.
type fakeAPI struct {
	mu           sync.Mutex
	days         []domain.ScheduleDay
	boxes        map[int64]*domain.BoxScore
	failFetch    map[int64]bool
	scheduleErr  error
	scheduleHits int
	boxscoreHits map[int64]int
}

func (f *fakeAPI) Schedule(_ context.Context, _, _ time.Time) ([]domain.ScheduleDay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduleHits++
	if f.scheduleErr != nil {
		return nil, f.scheduleErr
	}
	return f.days, nil
}

func (f *fakeAPI) Boxscore(_ context.Context, gameID int64) (*domain.BoxScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.boxscoreHits == nil {
		f.boxscoreHits = make(map[int64]int)
	}
	f.boxscoreHits[gameID]++
	if f.failFetch[gameID] {
		return nil, fmt.Errorf("boxscore %d: unexpected status 500", gameID)
	}
	box, ok := f.boxes[gameID]
	if !ok {
		return nil, fmt.Errorf("boxscore %d: unexpected status 404", gameID)
	}
	return box, nil
}

// memSink collects written objects in memory. Keys in failPut fail every
// attempt.
type memSink struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut map[string]bool
}

func newMemSink() *memSink {
	return &memSink{objects: make(map[string][]byte)}
}

func (m *memSink) Put(_ context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut[key] {
		return fmt.Errorf("put %s: access denied", key)
	}
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

func simpleBox(teamHome, teamAway string, homeSkaters map[int64]string) *domain.BoxScore {
	home := &domain.TeamBox{
		Team:    &domain.TeamInfo{Name: teamHome},
		Players: map[string]domain.PlayerEntry{},
	}
	for id, name := range homeSkaters {
		home.Players[fmt.Sprintf("ID%d", id)] = domain.PlayerEntry{
			Person: &domain.Person{ID: id, FullName: name},
			Stats: &domain.PlayerStats{
				SkaterStats: &domain.SkaterStats{Goals: intp(1), Assists: intp(0)},
			},
		}
	}
	return &domain.BoxScore{Teams: &domain.BoxTeams{
		Home: home,
		Away: &domain.TeamBox{
			Team:    &domain.TeamInfo{Name: teamAway},
			Players: map[string]domain.PlayerEntry{},
		},
	}}
}

func testRange(t *testing.T) domain.DateRange {
	t.Helper()
	dr, err := domain.NewDateRange(
		time.Date(2020, 8, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 8, 5, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("NewDateRange returned error: %v", err)
	}
	return dr
}

func threeGameAPI() *fakeAPI {
	day1 := time.Date(2020, 8, 4, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2020, 8, 5, 0, 0, 0, 0, time.UTC)
	return &fakeAPI{
		days: []domain.ScheduleDay{
			{Date: day1, Games: []domain.GameRef{{GamePk: 101}, {GamePk: 102}}},
			{Date: day2, Games: []domain.GameRef{{GamePk: 103}}},
		},
		boxes: map[int64]*domain.BoxScore{
			101: simpleBox("A", "B", map[int64]string{7: "X"}),
			102: simpleBox("C", "D", map[int64]string{8: "Y"}),
			103: simpleBox("E", "F", map[int64]string{9: "Z"}),
		},
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCrawlHappyPath(t *testing.T) {
	api := threeGameAPI()
	sink := newMemSink()
	c := New(api, sink, nil, 2, 0, 3, 0)

	report, err := c.Crawl(context.Background(), testRange(t))
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}

	if report.Days != 2 {
		t.Errorf("report.Days = %d, want 2", report.Days)
	}
	if report.Games != 3 {
		t.Errorf("report.Games = %d, want 3", report.Games)
	}
	if report.Written != 3 {
		t.Errorf("report.Written = %d, want 3", report.Written)
	}
	if report.Skipped != 0 {
		t.Errorf("report.Skipped = %d, want 0", report.Skipped)
	}

	for _, key := range []string{"20200804_101.csv", "20200804_102.csv", "20200805_103.csv"} {
		if _, ok := sink.objects[key]; !ok {
			t.Errorf("missing partition object %s", key)
		}
	}
}

func TestCrawlEmptySchedule(t *testing.T) {
	api := &fakeAPI{}
	sink := newMemSink()
	c := New(api, sink, nil, 2, 0, 3, 0)

	report, err := c.Crawl(context.Background(), testRange(t))
	if err != nil {
		t.Fatalf("Crawl returned error for empty schedule: %v", err)
	}
	if report.Games != 0 || report.Written != 0 || report.Skipped != 0 {
		t.Errorf("report = %+v, want all-zero counters", report)
	}
	if len(sink.objects) != 0 {
		t.Errorf("sink has %d objects, want 0", len(sink.objects))
	}
}

func TestCrawlScheduleFailureIsFatal(t *testing.T) {
	api := &fakeAPI{scheduleErr: errors.New("unexpected status 500")}
	sink := newMemSink()
	attempts := 3
	c := New(api, sink, nil, 2, 0, attempts, 0)

	report, err := c.Crawl(context.Background(), testRange(t))
	if err == nil {
		t.Fatal("Crawl should fail when the schedule is unavailable")
	}
	if report != nil {
		t.Errorf("Crawl returned report %+v alongside fatal error, want nil", report)
	}
	if api.scheduleHits != attempts {
		t.Errorf("schedule fetched %d times, want %d (retry exhaustion)", api.scheduleHits, attempts)
	}
	if len(sink.objects) != 0 {
		t.Errorf("sink has %d objects after fatal schedule failure, want 0", len(sink.objects))
	}
}

func TestCrawlSingleGameFetchFailureIsSkipped(t *testing.T) {
	api := threeGameAPI()
	api.failFetch = map[int64]bool{102: true}
	sink := newMemSink()
	c := New(api, sink, nil, 2, 0, 2, 0)

	report, err := c.Crawl(context.Background(), testRange(t))
	if err != nil {
		t.Fatalf("Crawl should not fail for a single bad game: %v", err)
	}

	if report.Written != 2 {
		t.Errorf("report.Written = %d, want 2", report.Written)
	}
	if report.Skipped != 1 {
		t.Errorf("report.Skipped = %d, want 1", report.Skipped)
	}
	if len(sink.objects) != 2 {
		t.Errorf("sink has %d objects, want 2", len(sink.objects))
	}

	failures := report.Failures()
	if len(failures) != 1 {
		t.Fatalf("report.Failures() returned %d outcomes, want 1", len(failures))
	}
	if failures[0].GameID != 102 {
		t.Errorf("failed game id = %d, want 102", failures[0].GameID)
	}
	if failures[0].Status != StatusFetchFailed {
		t.Errorf("failed game status = %q, want %q", failures[0].Status, StatusFetchFailed)
	}
	if api.boxscoreHits[102] != 2 {
		t.Errorf("failing game fetched %d times, want 2 (bounded retry)", api.boxscoreHits[102])
	}
}

func TestCrawlWriteFailureIsSkipped(t *testing.T) {
	api := threeGameAPI()
	sink := newMemSink()
	sink.failPut = map[string]bool{"20200804_101.csv": true}
	c := New(api, sink, nil, 1, 0, 2, 0)

	report, err := c.Crawl(context.Background(), testRange(t))
	if err != nil {
		t.Fatalf("Crawl should not fail for a single failed write: %v", err)
	}

	if report.Written != 2 {
		t.Errorf("report.Written = %d, want 2", report.Written)
	}
	if report.Skipped != 1 {
		t.Errorf("report.Skipped = %d, want 1", report.Skipped)
	}

	failures := report.Failures()
	if len(failures) != 1 || failures[0].Status != StatusWriteFailed {
		t.Errorf("failures = %+v, want one write_failed outcome", failures)
	}
	if _, ok := sink.objects["20200804_101.csv"]; ok {
		t.Error("failed write should leave no partition object")
	}
}

func TestCrawlMalformedBoxscoreIsSkipped(t *testing.T) {
	api := threeGameAPI()
	api.boxes[103] = &domain.BoxScore{} // missing teams
	sink := newMemSink()
	c := New(api, sink, nil, 2, 0, 2, 0)

	report, err := c.Crawl(context.Background(), testRange(t))
	if err != nil {
		t.Fatalf("Crawl should not fail for a malformed box score: %v", err)
	}

	if report.Written != 2 || report.Skipped != 1 {
		t.Errorf("written/skipped = %d/%d, want 2/1", report.Written, report.Skipped)
	}
	failures := report.Failures()
	if len(failures) != 1 || failures[0].Status != StatusExtractFailed {
		t.Errorf("failures = %+v, want one extract_failed outcome", failures)
	}
}

func TestCrawlEmptyExtractionStillWritesHeaderOnlyObject(t *testing.T) {
	day := time.Date(2020, 8, 4, 0, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		days: []domain.ScheduleDay{{Date: day, Games: []domain.GameRef{{GamePk: 201}}}},
		boxes: map[int64]*domain.BoxScore{
			201: simpleBox("A", "B", nil), // no qualifying skaters on either side
		},
	}
	sink := newMemSink()
	c := New(api, sink, nil, 1, 0, 2, 0)

	report, err := c.Crawl(context.Background(), testRange(t))
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if report.Written != 1 {
		t.Fatalf("report.Written = %d, want 1", report.Written)
	}

	body, ok := sink.objects["20200804_201.csv"]
	if !ok {
		t.Fatal("missing header-only partition object")
	}
	want := "player_person_id,player_person_currentTeam_name,player_person_fullName,player_stats_skaterStats_assists,player_stats_skaterStats_goals,side\n"
	if string(body) != want {
		t.Errorf("header-only object:\n  got  %q\n  want %q", body, want)
	}
}

func TestCrawlIdempotentRerun(t *testing.T) {
	api := threeGameAPI()
	sink := newMemSink()
	c := New(api, sink, nil, 2, 0, 2, 0)

	if _, err := c.Crawl(context.Background(), testRange(t)); err != nil {
		t.Fatalf("first Crawl returned error: %v", err)
	}
	first := make(map[string]string, len(sink.objects))
	for k, v := range sink.objects {
		first[k] = string(v)
	}

	if _, err := c.Crawl(context.Background(), testRange(t)); err != nil {
		t.Fatalf("second Crawl returned error: %v", err)
	}

	if len(sink.objects) != len(first) {
		t.Fatalf("re-run produced %d objects, want %d", len(sink.objects), len(first))
	}
	for k, v := range sink.objects {
		if first[k] != string(v) {
			t.Errorf("object %s changed across identical re-runs", k)
		}
	}
}

func TestCrawlRecordsOutcomesInManifest(t *testing.T) {
	api := threeGameAPI()
	api.failFetch = map[int64]bool{103: true}
	sink := newMemSink()

	m, err := manifest.Open(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("opening manifest: %v", err)
	}
	defer m.Close()

	c := New(api, sink, m, 2, 0, 2, 0)
	report, err := c.Crawl(context.Background(), testRange(t))
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if report.Skipped != 1 {
		t.Fatalf("report.Skipped = %d, want 1", report.Skipped)
	}

	skipped, err := m.SkippedGames(context.Background(), 1)
	if err != nil {
		t.Fatalf("SkippedGames returned error: %v", err)
	}
	if len(skipped) != 1 {
		t.Fatalf("manifest has %d skipped games, want 1", len(skipped))
	}
	if skipped[0].GameID != 103 {
		t.Errorf("manifest skipped game id = %d, want 103", skipped[0].GameID)
	}
	if skipped[0].Status != string(StatusFetchFailed) {
		t.Errorf("manifest skipped status = %q, want %q", skipped[0].Status, StatusFetchFailed)
	}
}

func TestCrawlCancelledContext(t *testing.T) {
	api := threeGameAPI()
	sink := newMemSink()
	c := New(api, sink, nil, 1, 0, 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Crawl(ctx, testRange(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Crawl error = %v, want context.Canceled", err)
	}
}
