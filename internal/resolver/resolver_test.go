package resolver

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairosodds/pulse/internal/catalog"
	"github.com/kairosodds/pulse/internal/pkg/models"
	"github.com/kairosodds/pulse/internal/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCatalog(t *testing.T, st *memory.Store) *catalog.Catalog {
	t.Helper()
	c := catalog.New(st, discardLogger())
	require.NoError(t, c.Reload(context.Background()))
	return c
}

func TestResolve_ExactAliasHit(t *testing.T) {
	st := memory.New()
	st.SeedLeague(models.League{ID: "l1", Name: "Premier League"})
	st.SeedTeam(models.Team{ID: "t1", StandardName: "Arsenal", LeagueID: "l1"})
	st.SeedAlias(models.TeamAlias{TeamID: "t1", AliasName: "The Gunners", BookmakerSource: "reference"})
	c := newTestCatalog(t, st)

	r := New(c, st, discardLogger(), "reference")
	id, ok := r.Resolve(context.Background(), Input{RawName: "The Gunners", Bookmaker: "reference", LeagueID: "l1", LeagueName: "Premier League"})
	require.True(t, ok)
	assert.Equal(t, "t1", id)
}

func TestResolve_FuzzyLearnsAlias(t *testing.T) {
	st := memory.New()
	st.SeedLeague(models.League{ID: "l1", Name: "Premier League"})
	st.SeedTeam(models.Team{ID: "t1", StandardName: "Wolverhampton Wanderers", LeagueID: "l1"})
	c := newTestCatalog(t, st)

	r := New(c, st, discardLogger(), "reference")
	in := Input{RawName: "Wolverhampton", Bookmaker: "reference", LeagueID: "l1", LeagueName: "Premier League"}
	id, ok := r.Resolve(context.Background(), in)
	require.True(t, ok, "partial ratio must accept an exact-substring shortened name")
	assert.Equal(t, "t1", id)

	// Second resolution should hit the now-learned alias directly (cache
	// populated synchronously by learnAlias).
	id2, ok := c.LookupAlias("Wolverhampton", "reference")
	require.True(t, ok)
	assert.Equal(t, "t1", id2)
	assert.Equal(t, id, id2)
}

func TestResolve_BlocklistRejectsHighScoringFalsePositive(t *testing.T) {
	st := memory.New()
	st.SeedLeague(models.League{ID: "l1", Name: "Serie A"})
	st.SeedTeam(models.Team{ID: "t1", StandardName: "AC Milan", LeagueID: "l1"})
	c := newTestCatalog(t, st)

	r := New(c, st, discardLogger(), "reference")
	in := Input{RawName: "Inter Milan", Bookmaker: "reference", LeagueID: "l1", LeagueName: "Serie A"}
	_, ok := r.Resolve(context.Background(), in)
	assert.False(t, ok, "blocklist must reject Inter Milan / AC Milan despite high fuzzy similarity")
}

func TestResolve_AutoCreateOnlyForPrimaryBookmaker(t *testing.T) {
	st := memory.New()
	st.SeedLeague(models.League{ID: "l1", Name: "Premier League"})
	c := newTestCatalog(t, st)

	r := New(c, st, discardLogger(), "reference")

	// Non-primary bookmaker: no auto-create, falls through to unmatched log.
	_, ok := r.ResolveCacheOnly(context.Background(), Input{RawName: "Brand New FC", Bookmaker: "other-book", LeagueID: "l1", LeagueName: "Premier League"})
	assert.False(t, ok)
	assert.Len(t, st.UnmatchedLog(), 1)

	// Primary bookmaker auto-creates.
	id, ok := r.Resolve(context.Background(), Input{RawName: "Brand New FC", Bookmaker: "reference", LeagueID: "l1", LeagueName: "Premier League"})
	require.True(t, ok)
	assert.NotEmpty(t, id)

	team, found := c.TeamByID(id)
	require.True(t, found)
	assert.Equal(t, "Brand New FC", team.StandardName)
}

func TestResolve_NoLeagueIDNeverFuzzyMatchesGlobally(t *testing.T) {
	st := memory.New()
	st.SeedLeague(models.League{ID: "l1", Name: "Premier League"})
	st.SeedTeam(models.Team{ID: "t1", StandardName: "Manchester United", LeagueID: "l1"})
	c := newTestCatalog(t, st)

	r := New(c, st, discardLogger(), "reference")
	_, ok := r.Resolve(context.Background(), Input{RawName: "Man United", Bookmaker: "reference", LeagueID: "", LeagueName: ""})
	assert.False(t, ok, "step 5 permits only exact global lookups, never fuzzy, when league_id is empty")
}

func TestResolve_FuzzyScoresAgainstOriginalDisplayCaseNotNormalizedKey(t *testing.T) {
	st := memory.New()
	st.SeedLeague(models.League{ID: "l1", Name: "Serie A"})
	st.SeedTeam(models.Team{ID: "t1", StandardName: "FC Internazionale Milano", LeagueID: "l1"})
	c := newTestCatalog(t, st)

	r := New(c, st, discardLogger(), "reference")
	// An all-caps bookmaker feed would score ~0 on PartialRatio if
	// compared against the catalog's lowercased index key instead of
	// the team's original standard_name.
	id, ok := r.Resolve(context.Background(), Input{RawName: "INTER", Bookmaker: "reference", LeagueID: "l1", LeagueName: "Serie A"})
	require.True(t, ok, "partial ratio must accept an all-caps substring against the team's original-case display name")
	assert.Equal(t, "t1", id)
}

func TestResolve_CrossLeagueFallbackForCupCompetition(t *testing.T) {
	st := memory.New()
	st.SeedLeague(models.League{ID: "l1", Name: "Premier League"})
	st.SeedTeam(models.Team{ID: "t1", StandardName: "Arsenal", LeagueID: "l1"})
	c := newTestCatalog(t, st)

	r := New(c, st, discardLogger(), "reference")
	id, ok := r.Resolve(context.Background(), Input{RawName: "Arsenal", Bookmaker: "reference", LeagueID: "", LeagueName: "Champions League"})
	require.True(t, ok)
	assert.Equal(t, "t1", id)
}

func TestIsCrossLeagueCompetition(t *testing.T) {
	assert.True(t, IsCrossLeagueCompetition("Champions League"))
	assert.True(t, IsCrossLeagueCompetition("FA Cup"))
	assert.False(t, IsCrossLeagueCompetition("Premier League"))
}
