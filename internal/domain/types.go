// Package domain defines the core data types shared across the crawler:
// date ranges, schedule days, box scores, and the flattened player records
// written to partition objects.
package domain

import (
	"fmt"
	"time"
)

// Side identifies which side of a game a team played on.
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

// DateRange is an inclusive calendar date range, supplied once per run.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange builds a DateRange from two calendar dates, normalised to
// UTC midnight. It fails if start is after end.
func NewDateRange(start, end time.Time) (DateRange, error) {
	start = midnightUTC(start)
	end = midnightUTC(end)
	if start.After(end) {
		return DateRange{}, fmt.Errorf("start date %s is after end date %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return DateRange{Start: start, End: end}, nil
}

func midnightUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GameRef is the minimal projection of a scheduled game needed to request
// its box score. GamePk is the stats API's stable numeric game identifier.
type GameRef struct {
	GamePk int64
}

// ScheduleDay is one calendar date of the schedule and the games played on
// it. Game order is API-defined and carries no meaning.
type ScheduleDay struct {
	Date  time.Time
	Games []GameRef
}

// ---------------------------------------------------------------------------
// Box score document
// ---------------------------------------------------------------------------
//
// The structs below mirror the slice of the stats API's boxscore response the
// crawler consumes. Every level that the upstream may omit is a pointer so
// missing data is an explicit, testable branch rather than a silent zero
// value.

// BoxScore is a single game's box score. Transient: fetched per game and
// never persisted in raw form.
type BoxScore struct {
	Teams *BoxTeams `json:"teams"`
}

// BoxTeams holds the two sides of a box score.
type BoxTeams struct {
	Home *TeamBox `json:"home"`
	Away *TeamBox `json:"away"`
}

// TeamBox is one side's team info and per-player entries. The player map is
// keyed by the upstream player identifier ("ID" + numeric id).
type TeamBox struct {
	Team    *TeamInfo              `json:"team"`
	Players map[string]PlayerEntry `json:"players"`
}

// TeamInfo carries the team name.
type TeamInfo struct {
	Name string `json:"name"`
}

// PlayerEntry is one player's slot in a side's player map. Stats or its
// skaterStats block is absent for goalies and players with no recorded
// skating stats; such entries are excluded from output.
type PlayerEntry struct {
	Person *Person      `json:"person"`
	Stats  *PlayerStats `json:"stats"`
}

// Person identifies the player behind an entry.
type Person struct {
	ID          int64     `json:"id"`
	FullName    string    `json:"fullName"`
	CurrentTeam *TeamInfo `json:"currentTeam"`
}

// PlayerStats wraps the optional skater stat block. Goalie-only stat blocks
// are not modelled; entries without skaterStats are ignored.
type PlayerStats struct {
	SkaterStats *SkaterStats `json:"skaterStats"`
}

// SkaterStats is the offensive stat line for a non-goalie. Goals and Assists
// are pointers so an empty skaterStats object is distinguishable from a
// genuine zero-goal, zero-assist line.
type SkaterStats struct {
	Goals   *int `json:"goals"`
	Assists *int `json:"assists"`
}

// PlayerRecord is one output row of a game partition.
type PlayerRecord struct {
	PlayerID int64
	TeamName string
	FullName string
	Assists  int
	Goals    int
	Side     Side
}
