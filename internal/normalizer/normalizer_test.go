package normalizer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairosodds/pulse/internal/catalog"
	"github.com/kairosodds/pulse/internal/pkg/models"
	"github.com/kairosodds/pulse/internal/resolver"
	"github.com/kairosodds/pulse/internal/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) (*Normalizer, *memory.Store, *catalog.Catalog) {
	t.Helper()
	st := memory.New()
	st.SeedLeague(models.League{ID: "l1", Name: "Premier League"})
	st.SeedLeague(models.League{ID: "nba1", Name: "NBA"})
	st.SeedBookmaker(models.Bookmaker{ID: "b1", Name: "reference"})
	st.SeedTeam(models.Team{ID: "home1", StandardName: "Arsenal", LeagueID: "l1"})
	st.SeedTeam(models.Team{ID: "away1", StandardName: "Chelsea", LeagueID: "l1"})
	st.SeedTeam(models.Team{ID: "lakers", StandardName: "Lakers", LeagueID: "nba1"})
	st.SeedTeam(models.Team{ID: "celtics", StandardName: "Celtics", LeagueID: "nba1"})

	c := catalog.New(st, discardLogger())
	require.NoError(t, c.Reload(context.Background()))
	r := resolver.New(c, st, discardLogger(), "reference")
	n := New(c, r, st, discardLogger(), "reference")
	return n, st, c
}

func draw(v float64) *float64 { return &v }

func TestNormalize_ResolvesAndInsertsFootballOdds(t *testing.T) {
	n, st, _ := newFixture(t)

	offers := []models.RawOffer{
		{
			BookmakerName: "reference",
			HomeTeamRaw:   "Arsenal",
			AwayTeamRaw:   "Chelsea",
			LeagueRaw:     "Premier League",
			MatchDate:     time.Now().UTC(),
			HomeOdd:       2.1,
			DrawOdd:       draw(3.3),
			AwayOdd:       3.4,
			Sport:         models.SportFootball,
			OddsType:      models.OddsTypeStandard,
		},
	}

	result, err := n.Normalize(context.Background(), offers)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Dropped)
	require.Len(t, result.FootballOdds, 1)
	assert.Equal(t, 2.1, result.FootballOdds[0].HomeOdd)
	require.Len(t, st.Alerts(), 0) // normalizer never writes alerts directly
}

func TestNormalize_DropsOfferWithUnknownBookmaker(t *testing.T) {
	n, _, _ := newFixture(t)

	offers := []models.RawOffer{
		{
			BookmakerName: "unknown-book",
			HomeTeamRaw:   "Arsenal",
			AwayTeamRaw:   "Chelsea",
			LeagueRaw:     "Premier League",
			MatchDate:     time.Now().UTC(),
			HomeOdd:       2.1,
			AwayOdd:       3.4,
		},
	}

	result, err := n.Normalize(context.Background(), offers)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Dropped)
	assert.Empty(t, result.FootballOdds)
}

func TestNormalize_ClassifiesBasketballByLeagueName(t *testing.T) {
	n, _, _ := newFixture(t)

	offers := []models.RawOffer{
		{
			BookmakerName: "reference",
			HomeTeamRaw:   "Lakers",
			AwayTeamRaw:   "Celtics",
			LeagueRaw:     "NBA",
			MatchDate:     time.Now().UTC(),
			HomeOdd:       1.9,
			AwayOdd:       1.95,
		},
	}

	result, err := n.Normalize(context.Background(), offers)
	require.NoError(t, err)
	require.Len(t, result.BasketballOdds, 1)
	assert.Empty(t, result.FootballOdds)
	assert.Nil(t, result.BasketballOdds[0].DrawOdd, "basketball odds never carry a draw leg")
}

func TestNormalize_BasketballInversionSwapsOddsAndFlagsExtraData(t *testing.T) {
	n, st, _ := newFixture(t)

	matchDate := time.Now().UTC()

	first := []models.RawOffer{{
		BookmakerName: "reference",
		HomeTeamRaw:   "Lakers",
		AwayTeamRaw:   "Celtics",
		LeagueRaw:     "NBA",
		MatchDate:     matchDate,
		HomeOdd:       1.8,
		AwayOdd:       2.0,
	}}
	_, err := n.Normalize(context.Background(), first)
	require.NoError(t, err)

	// Second source reports the same match with home/away reversed.
	second := []models.RawOffer{{
		BookmakerName: "reference",
		HomeTeamRaw:   "Celtics",
		AwayTeamRaw:   "Lakers",
		LeagueRaw:     "NBA",
		MatchDate:     matchDate,
		HomeOdd:       2.0,
		AwayOdd:       1.8,
	}}
	result, err := n.Normalize(context.Background(), second)
	require.NoError(t, err)
	require.Len(t, result.BasketballOdds, 1)

	entry := result.BasketballOdds[0]
	assert.Equal(t, 1.8, entry.HomeOdd, "inversion compensation swaps odds back to the canonical home/away orientation")
	assert.Equal(t, 2.0, entry.AwayOdd)
	assert.Equal(t, true, entry.ExtraData[TeamsSwappedKey])

	_ = st
}
