// Package memory is an in-memory Store test double, implementing the
// full store.Store contract with the same date-tolerance and
// duplicate-key semantics the reference Postgres implementation uses,
// so package-level tests never need a live database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kairosodds/pulse/internal/pkg/models"
	"github.com/kairosodds/pulse/internal/store"
)

type matchRecord struct {
	id         string
	leagueID   string
	homeTeamID string
	awayTeamID string
	matchDate  time.Time
	status     string
}

// Store implements store.Store entirely in memory, guarded by a single
// mutex; it is not meant for production throughput, only tests.
type Store struct {
	mu sync.Mutex

	teams      map[string]models.Team
	aliases    []models.TeamAlias
	leagues    map[string]models.League
	bookmakers map[string]models.Bookmaker

	footballMatches  map[string]*matchRecord
	basketballMatches map[string]*matchRecord

	footballOdds  []models.OddsHistoryEntry
	basketballOdds []models.OddsHistoryEntry

	alerts []models.Alert

	unmatchedLog []models.UnmatchedTeamLog
}

func New() *Store {
	return &Store{
		teams:             make(map[string]models.Team),
		leagues:           make(map[string]models.League),
		bookmakers:        make(map[string]models.Bookmaker),
		footballMatches:   make(map[string]*matchRecord),
		basketballMatches: make(map[string]*matchRecord),
	}
}

// Seed helpers, used by tests to pre-populate the catalog's backing
// data without going through CreateTeam/CreateTeamAlias.

func (s *Store) SeedTeam(t models.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.teams[t.ID] = t
}

func (s *Store) SeedAlias(a models.TeamAlias) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases = append(s.aliases, a)
}

func (s *Store) SeedLeague(l models.League) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	s.leagues[l.ID] = l
}

func (s *Store) SeedBookmaker(b models.Bookmaker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	s.bookmakers[b.ID] = b
}

func (s *Store) FetchTeams(_ context.Context) ([]models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Team, 0, len(s.teams))
	for _, t := range s.teams {
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) FetchAliases(_ context.Context) ([]models.TeamAlias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TeamAlias(nil), s.aliases...), nil
}

func (s *Store) FetchLeagues(_ context.Context) ([]models.League, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.League, 0, len(s.leagues))
	for _, l := range s.leagues {
		out = append(out, l)
	}
	return out, nil
}

func (s *Store) FetchBookmakers(_ context.Context) ([]models.Bookmaker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Bookmaker, 0, len(s.bookmakers))
	for _, b := range s.bookmakers {
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) CreateTeam(_ context.Context, standardName, leagueID string) (models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.teams {
		if t.LeagueID == leagueID && t.StandardName == standardName {
			return models.Team{}, store.ErrDuplicateTeam
		}
	}

	t := models.Team{ID: uuid.NewString(), StandardName: standardName, LeagueID: leagueID}
	s.teams[t.ID] = t
	return t, nil
}

func (s *Store) CreateTeamAlias(_ context.Context, teamID, aliasName, bookmakerSource string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.aliases {
		if a.AliasName == aliasName && a.BookmakerSource == bookmakerSource {
			return nil // duplicate alias: silent success, like the Postgres store
		}
	}
	s.aliases = append(s.aliases, models.TeamAlias{TeamID: teamID, AliasName: aliasName, BookmakerSource: bookmakerSource})
	return nil
}

func (s *Store) UpsertFootballMatchesBatch(_ context.Context, requests []store.MatchUpsertRequest) (map[store.MatchKey]store.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertBatch(s.footballMatches, requests, false), nil
}

func (s *Store) UpsertBasketballMatchesBatch(_ context.Context, requests []store.MatchUpsertRequest) (map[store.MatchKey]store.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertBatch(s.basketballMatches, requests, true), nil
}

// upsertBatch implements the [min-1d, max+1d] window lookup,
// basketball-only inversion fallback, and insert-on-miss.
func upsertBatch(table map[string]*matchRecord, requests []store.MatchUpsertRequest, allowInversion bool) map[store.MatchKey]store.MatchResult {
	results := make(map[store.MatchKey]store.MatchResult, len(requests))
	if len(requests) == 0 {
		return results
	}

	minDate, maxDate := requests[0].MatchDate, requests[0].MatchDate
	for _, r := range requests[1:] {
		if r.MatchDate.Before(minDate) {
			minDate = r.MatchDate
		}
		if r.MatchDate.After(maxDate) {
			maxDate = r.MatchDate
		}
	}
	windowStart := minDate.Add(-24 * time.Hour)
	windowEnd := maxDate.Add(24 * time.Hour)

	withinWindow := func(m *matchRecord) bool {
		return !m.matchDate.Before(windowStart) && !m.matchDate.After(windowEnd)
	}

	for _, r := range requests {
		key := store.KeyFor(r)

		var found *matchRecord
		inverted := false
		for _, m := range table {
			if !withinWindow(m) {
				continue
			}
			if m.leagueID == r.LeagueID && m.homeTeamID == r.HomeTeamID && m.awayTeamID == r.AwayTeamID {
				found = m
				break
			}
		}
		if found == nil && allowInversion {
			for _, m := range table {
				if !withinWindow(m) {
					continue
				}
				if m.leagueID == r.LeagueID && m.homeTeamID == r.AwayTeamID && m.awayTeamID == r.HomeTeamID {
					found = m
					inverted = true
					break
				}
			}
		}

		if found == nil {
			m := &matchRecord{
				id:         uuid.NewString(),
				leagueID:   r.LeagueID,
				homeTeamID: r.HomeTeamID,
				awayTeamID: r.AwayTeamID,
				matchDate:  r.MatchDate,
				status:     models.MatchScheduled,
			}
			table[m.id] = m
			found = m
		}

		results[key] = store.MatchResult{MatchID: found.id, IsInverted: inverted}
	}

	return results
}

func (s *Store) InsertFootballOdds(_ context.Context, batch []models.OddsHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.footballOdds = append(s.footballOdds, batch...)
	return nil
}

func (s *Store) InsertBasketballOdds(_ context.Context, batch []models.OddsHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.basketballOdds = append(s.basketballOdds, batch...)
	return nil
}

func (s *Store) InsertAlertsBatch(_ context.Context, batch []models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, batch...)
	return nil
}

func (s *Store) RetireStartedFootballMatches(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return retireStarted(s.footballMatches, now), nil
}

func (s *Store) RetireStartedBasketballMatches(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return retireStarted(s.basketballMatches, now), nil
}

func retireStarted(table map[string]*matchRecord, now time.Time) int {
	count := 0
	for _, m := range table {
		if m.status == models.MatchScheduled && m.matchDate.Before(now) {
			m.status = models.MatchStarted
			count++
		}
	}
	return count
}

func (s *Store) ReadFootballComparisonView(_ context.Context, now time.Time) ([]store.ComparisonRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comparisonView(s.footballMatches, s.footballOdds, models.SportFootball, now), nil
}

func (s *Store) ReadBasketballComparisonView(_ context.Context, now time.Time) ([]store.ComparisonRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comparisonView(s.basketballMatches, s.basketballOdds, models.SportBasketball, now), nil
}

func (s *Store) comparisonView(matches map[string]*matchRecord, odds []models.OddsHistoryEntry, sport models.Sport, now time.Time) []store.ComparisonRow {
	var rows []store.ComparisonRow
	for _, o := range odds {
		m, ok := matches[o.MatchID]
		if !ok {
			continue
		}
		league := s.leagues[m.leagueID]
		home := s.teams[m.homeTeamID]
		away := s.teams[m.awayTeamID]
		bookmaker := s.bookmakers[o.BookmakerID]

		rows = append(rows, store.ComparisonRow{
			MatchID:        m.id,
			Sport:          sport,
			LeagueName:     league.Name,
			LeagueCountry:  league.Country,
			HomeTeam:       home.StandardName,
			AwayTeam:       away.StandardName,
			MatchDate:      m.matchDate,
			MatchStatus:    m.status,
			BookmakerID:    o.BookmakerID,
			BookmakerName:  bookmaker.Name,
			HomeOdd:        o.HomeOdd,
			DrawOdd:        o.DrawOdd,
			AwayOdd:        o.AwayOdd,
			OddsType:       o.OddsType,
			MarginPercent:  margin(o),
			ScrapedAt:      o.ScrapedAt,
			DataAgeSeconds: int64(now.Sub(o.ScrapedAt).Seconds()),
			ExtraData:      o.ExtraData,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].MatchDate.Before(rows[j].MatchDate) })
	return rows
}

func margin(o models.OddsHistoryEntry) float64 {
	total := 1.0/o.HomeOdd + 1.0/o.AwayOdd
	if o.DrawOdd != nil {
		total += 1.0 / *o.DrawOdd
	}
	return (total - 1.0) * 100.0
}

func (s *Store) LogUnmatchedTeam(_ context.Context, entry models.UnmatchedTeamLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unmatchedLog = append(s.unmatchedLog, entry)
	return nil
}

// UnmatchedLog exposes recorded unmatched-team entries for assertions.
func (s *Store) UnmatchedLog() []models.UnmatchedTeamLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.UnmatchedTeamLog(nil), s.unmatchedLog...)
}

// Alerts exposes recorded alerts for assertions.
func (s *Store) Alerts() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Alert(nil), s.alerts...)
}
