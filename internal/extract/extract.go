// Package extract flattens a nested box-score document into the tabular
// player records written to partition objects, and serializes them to the
// fixed-column CSV layout.
package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"nhlcrawl/internal/domain"
)

// playerIDPrefix is the fixed non-numeric marker the upstream prepends to
// player identifiers in the per-side player map.
const playerIDPrefix = "ID"

// Columns is the on-disk CSV column order. This is the output contract;
// consumers depend on it.
var Columns = []string{
	"player_person_id",
	"player_person_currentTeam_name",
	"player_person_fullName",
	"player_stats_skaterStats_assists",
	"player_stats_skaterStats_goals",
	"side",
}

// MalformedDataError reports a box-score document missing structure the
// extractor requires: a side, a team name, a player map, or a player entry
// that qualifies for output but lacks its identity fields.
type MalformedDataError struct {
	Reason string
}

func (e *MalformedDataError) Error() string {
	return "malformed box score: " + e.Reason
}

// NormalizePlayerID strips the fixed "ID" prefix from a raw upstream player
// identifier and returns the bare numeric id. It fails on any input that is
// not the prefix followed by digits.
func NormalizePlayerID(raw string) (int64, error) {
	digits, ok := strings.CutPrefix(raw, playerIDPrefix)
	if !ok || digits == "" {
		return 0, fmt.Errorf("player id %q: want %q prefix followed by digits", raw, playerIDPrefix)
	}
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("player id %q: non-numeric remainder: %w", raw, err)
	}
	return id, nil
}

// Records flattens a box score into player records: for each side, every
// player entry carrying skater stats becomes one record tagged with the
// side's team name. Goalies and players without recorded skating stats are
// skipped. Records are sorted by player id within each side so repeated
// extractions of the same document are byte-identical downstream.
func Records(box *domain.BoxScore) ([]domain.PlayerRecord, error) {
	if box == nil || box.Teams == nil {
		return nil, &MalformedDataError{Reason: "missing teams"}
	}

	sides := []struct {
		side domain.Side
		team *domain.TeamBox
	}{
		{domain.SideHome, box.Teams.Home},
		{domain.SideAway, box.Teams.Away},
	}

	var records []domain.PlayerRecord
	for _, s := range sides {
		sideRecords, err := sideRecords(s.side, s.team)
		if err != nil {
			return nil, err
		}
		records = append(records, sideRecords...)
	}

	return records, nil
}

// sideRecords extracts the qualifying records for a single side.
func sideRecords(side domain.Side, team *domain.TeamBox) ([]domain.PlayerRecord, error) {
	if team == nil {
		return nil, &MalformedDataError{Reason: fmt.Sprintf("missing %s side", side)}
	}
	if team.Team == nil || team.Team.Name == "" {
		return nil, &MalformedDataError{Reason: fmt.Sprintf("%s side has no team name", side)}
	}
	if team.Players == nil {
		return nil, &MalformedDataError{Reason: fmt.Sprintf("%s side has no player map", side)}
	}

	var records []domain.PlayerRecord
	for rawID, entry := range team.Players {
		stats := skaterStats(entry)
		if stats == nil {
			continue
		}

		id, err := NormalizePlayerID(rawID)
		if err != nil {
			return nil, &MalformedDataError{Reason: err.Error()}
		}
		if entry.Person == nil || entry.Person.FullName == "" {
			return nil, &MalformedDataError{
				Reason: fmt.Sprintf("%s player %s has skater stats but no person", side, rawID),
			}
		}

		records = append(records, domain.PlayerRecord{
			PlayerID: id,
			TeamName: team.Team.Name,
			FullName: entry.Person.FullName,
			Assists:  intOrZero(stats.Assists),
			Goals:    intOrZero(stats.Goals),
			Side:     side,
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].PlayerID < records[j].PlayerID
	})

	return records, nil
}

// skaterStats returns the entry's skater stat block, or nil when the entry
// does not qualify for output. An absent block and a present-but-empty
// block are both treated as "no qualifying record".
func skaterStats(entry domain.PlayerEntry) *domain.SkaterStats {
	if entry.Stats == nil || entry.Stats.SkaterStats == nil {
		return nil
	}
	ss := entry.Stats.SkaterStats
	if ss.Goals == nil && ss.Assists == nil {
		return nil
	}
	return ss
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// CSV serializes records to the fixed-column UTF-8 CSV layout, header row
// included. Zero records still yields a header-only document.
func CSV(records []domain.PlayerRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Columns); err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}
	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.PlayerID, 10),
			r.TeamName,
			r.FullName,
			strconv.Itoa(r.Assists),
			strconv.Itoa(r.Goals),
			string(r.Side),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("writing CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing CSV: %w", err)
	}
	return buf.Bytes(), nil
}
