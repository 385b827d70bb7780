// Package store defines the persistence contracts the core consumes.
// The core never assumes a concrete database; internal/store/memory
// provides an in-memory double for tests and internal/store/postgres
// provides a reference implementation.
package store

import (
	"context"
	"time"

	"github.com/kairosodds/pulse/internal/pkg/models"
)

// ErrDuplicateTeam is returned by CreateTeam when (standard_name,
// league_id) already exists; the Resolver treats this as a race with a
// concurrent writer and re-fetches.
var ErrDuplicateTeam = duplicateError("team already exists")

type duplicateError string

func (e duplicateError) Error() string { return string(e) }

// MatchUpsertRequest is one tuple the Normalizer wants resolved to a
// Match, batched across an entire cycle.
type MatchUpsertRequest struct {
	LeagueID   string
	HomeTeamID string
	AwayTeamID string
	MatchDate  time.Time // UTC
}

// MatchKey identifies a MatchUpsertRequest in the batch result map. It
// carries the exact input tuple, MatchDate included at full precision;
// the Store is the one that resolves date tolerance, so two requests
// with different dates get different keys even when they resolve to
// the same match.
type MatchKey struct {
	LeagueID   string
	HomeTeamID string
	AwayTeamID string
	MatchDate  time.Time
}

func KeyFor(r MatchUpsertRequest) MatchKey {
	return MatchKey{LeagueID: r.LeagueID, HomeTeamID: r.HomeTeamID, AwayTeamID: r.AwayTeamID, MatchDate: r.MatchDate}
}

// MatchResult is what both match-upsert batches return per tuple: the
// resolved match plus whether the Store matched it via the
// inverted-tuple fallback (set only by the basketball upsert).
type MatchResult struct {
	MatchID    string
	IsInverted bool
}

// ComparisonRow is one bookmaker's view of one match, pre-joined with
// team/league/bookmaker names and carrying derived fields, as read by
// the Publisher.
type ComparisonRow struct {
	MatchID         string
	Sport           models.Sport
	LeagueName      string
	LeagueCountry   string
	HomeTeam        string
	HomeTeamLogo    string
	AwayTeam        string
	AwayTeamLogo    string
	MatchDate       time.Time
	MatchStatus     string
	BookmakerID     string
	BookmakerName   string
	HomeOdd         float64
	DrawOdd         *float64
	AwayOdd         float64
	OddsType        models.OddsType
	MarginPercent   float64
	ScrapedAt       time.Time
	DataAgeSeconds  int64
	ExtraData       models.ExtraData
}

// Store is the typed persistence contract the core consumes. Implementations must make CreateTeam/CreateTeamAlias race-safe
// under concurrent callers (duplicate-key -> ErrDuplicateTeam / silent
// success) and must implement the match-upsert batch's dynamic
// [min-1d, max+1d] date-tolerance window.
type Store interface {
	FetchTeams(ctx context.Context) ([]models.Team, error)
	FetchAliases(ctx context.Context) ([]models.TeamAlias, error)
	FetchLeagues(ctx context.Context) ([]models.League, error)
	FetchBookmakers(ctx context.Context) ([]models.Bookmaker, error)

	// CreateTeam returns ErrDuplicateTeam itself (unwrapped) if (standard_name,
	// league_id) already exists; the caller should re-fetch by that key.
	CreateTeam(ctx context.Context, standardName, leagueID string) (models.Team, error)
	CreateTeamAlias(ctx context.Context, teamID, aliasName, bookmakerSource string) error

	UpsertFootballMatchesBatch(ctx context.Context, requests []MatchUpsertRequest) (map[MatchKey]MatchResult, error)
	UpsertBasketballMatchesBatch(ctx context.Context, requests []MatchUpsertRequest) (map[MatchKey]MatchResult, error)

	InsertFootballOdds(ctx context.Context, batch []models.OddsHistoryEntry) error
	InsertBasketballOdds(ctx context.Context, batch []models.OddsHistoryEntry) error

	InsertAlertsBatch(ctx context.Context, batch []models.Alert) error

	RetireStartedFootballMatches(ctx context.Context, now time.Time) (int, error)
	RetireStartedBasketballMatches(ctx context.Context, now time.Time) (int, error)

	ReadFootballComparisonView(ctx context.Context, now time.Time) ([]ComparisonRow, error)
	ReadBasketballComparisonView(ctx context.Context, now time.Time) ([]ComparisonRow, error)

	// LogUnmatchedTeam is best-effort; implementations should swallow
	// transient errors rather than fail the calling cycle.
	LogUnmatchedTeam(ctx context.Context, entry models.UnmatchedTeamLog) error
}

// ObjectStore is the artifact-publication contract.
type ObjectStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
