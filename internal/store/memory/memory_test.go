package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairosodds/pulse/internal/pkg/models"
	"github.com/kairosodds/pulse/internal/store"
)

func TestUpsertFootballMatchesBatch_SameTupleWithinWindowCollapsesToOneMatch(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	first, err := s.UpsertFootballMatchesBatch(context.Background(), []store.MatchUpsertRequest{
		{LeagueID: "l1", HomeTeamID: "h1", AwayTeamID: "a1", MatchDate: base},
	})
	require.NoError(t, err)

	// A second observation 20 hours later (within the ±24h window) of
	// the same fixture must resolve to the same match, not a new one.
	second, err := s.UpsertFootballMatchesBatch(context.Background(), []store.MatchUpsertRequest{
		{LeagueID: "l1", HomeTeamID: "h1", AwayTeamID: "a1", MatchDate: base.Add(20 * time.Hour)},
	})
	require.NoError(t, err)

	key1 := store.MatchKey{LeagueID: "l1", HomeTeamID: "h1", AwayTeamID: "a1", MatchDate: base}
	key2 := store.MatchKey{LeagueID: "l1", HomeTeamID: "h1", AwayTeamID: "a1", MatchDate: base.Add(20 * time.Hour)}
	assert.Equal(t, first[key1].MatchID, second[key2].MatchID)
}

func TestUpsertFootballMatchesBatch_OutsideWindowCreatesNewMatch(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	first, err := s.UpsertFootballMatchesBatch(context.Background(), []store.MatchUpsertRequest{
		{LeagueID: "l1", HomeTeamID: "h1", AwayTeamID: "a1", MatchDate: base},
	})
	require.NoError(t, err)

	// Far enough outside any single-batch window (a separate batch call,
	// 30 days later) that it must be treated as a distinct fixture.
	second, err := s.UpsertFootballMatchesBatch(context.Background(), []store.MatchUpsertRequest{
		{LeagueID: "l1", HomeTeamID: "h1", AwayTeamID: "a1", MatchDate: base.AddDate(0, 0, 30)},
	})
	require.NoError(t, err)

	key1 := store.MatchKey{LeagueID: "l1", HomeTeamID: "h1", AwayTeamID: "a1", MatchDate: base}
	key2 := store.MatchKey{LeagueID: "l1", HomeTeamID: "h1", AwayTeamID: "a1", MatchDate: base.AddDate(0, 0, 30)}
	assert.NotEqual(t, first[key1].MatchID, second[key2].MatchID)
}

func TestUpsertBasketballMatchesBatch_InvertedTupleMatchesExistingFixture(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	first, err := s.UpsertBasketballMatchesBatch(context.Background(), []store.MatchUpsertRequest{
		{LeagueID: "l1", HomeTeamID: "lakers", AwayTeamID: "celtics", MatchDate: base},
	})
	require.NoError(t, err)

	second, err := s.UpsertBasketballMatchesBatch(context.Background(), []store.MatchUpsertRequest{
		{LeagueID: "l1", HomeTeamID: "celtics", AwayTeamID: "lakers", MatchDate: base},
	})
	require.NoError(t, err)

	key1 := store.MatchKey{LeagueID: "l1", HomeTeamID: "lakers", AwayTeamID: "celtics", MatchDate: base}
	key2 := store.MatchKey{LeagueID: "l1", HomeTeamID: "celtics", AwayTeamID: "lakers", MatchDate: base}
	assert.Equal(t, first[key1].MatchID, second[key2].MatchID)
	assert.False(t, first[key1].IsInverted)
	assert.True(t, second[key2].IsInverted)
}

func TestUpsertFootballMatchesBatch_NeverFallsBackToInversion(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	first, err := s.UpsertFootballMatchesBatch(context.Background(), []store.MatchUpsertRequest{
		{LeagueID: "l1", HomeTeamID: "home1", AwayTeamID: "away1", MatchDate: base},
	})
	require.NoError(t, err)

	second, err := s.UpsertFootballMatchesBatch(context.Background(), []store.MatchUpsertRequest{
		{LeagueID: "l1", HomeTeamID: "away1", AwayTeamID: "home1", MatchDate: base},
	})
	require.NoError(t, err)

	key1 := store.MatchKey{LeagueID: "l1", HomeTeamID: "home1", AwayTeamID: "away1", MatchDate: base}
	key2 := store.MatchKey{LeagueID: "l1", HomeTeamID: "away1", AwayTeamID: "home1", MatchDate: base}
	assert.NotEqual(t, first[key1].MatchID, second[key2].MatchID, "football has no inversion fallback, a reversed tuple is always a new fixture")
}

func TestCreateTeam_RejectsDuplicateStandardNameWithinLeague(t *testing.T) {
	s := New()
	_, err := s.CreateTeam(context.Background(), "Arsenal", "l1")
	require.NoError(t, err)

	_, err = s.CreateTeam(context.Background(), "Arsenal", "l1")
	assert.ErrorIs(t, err, store.ErrDuplicateTeam)
}

func TestRetireStartedFootballMatches_OnlyAffectsScheduledMatchesInThePast(t *testing.T) {
	s := New()
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	_, err := s.UpsertFootballMatchesBatch(context.Background(), []store.MatchUpsertRequest{
		{LeagueID: "l1", HomeTeamID: "h1", AwayTeamID: "a1", MatchDate: past},
		{LeagueID: "l1", HomeTeamID: "h2", AwayTeamID: "a2", MatchDate: future},
	})
	require.NoError(t, err)

	count, err := s.RetireStartedFootballMatches(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLogUnmatchedTeam_RecordsEntry(t *testing.T) {
	s := New()
	require.NoError(t, s.LogUnmatchedTeam(context.Background(), models.UnmatchedTeamLog{RawName: "Unknown FC", Bookmaker: "reference"}))
	require.Len(t, s.UnmatchedLog(), 1)
	assert.Equal(t, "Unknown FC", s.UnmatchedLog()[0].RawName)
}
