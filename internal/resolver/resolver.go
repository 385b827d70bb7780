// Package resolver implements the Resolver: maps
// (raw_name, bookmaker, league hint) onto a canonical TeamID using a
// multi-strategy cascade, opportunistically learning aliases and,
// for the primary bookmaker only, auto-creating new teams.
//
// Built on a grouping heuristic of prefix stripping plus normalization,
// generalized into a full ordered cascade, and a "first caller wins"
// concurrency posture reused here as the catalog's write lock.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kairosodds/pulse/internal/catalog"
	"github.com/kairosodds/pulse/internal/pkg/fuzzyratio"
	"github.com/kairosodds/pulse/internal/pkg/models"
	"github.com/kairosodds/pulse/internal/pkg/normalize"
	"github.com/kairosodds/pulse/internal/store"
)

const (
	tokenSortThreshold   = 85.0
	tokenSetThreshold    = 85.0
	partialRatioThreshold = 92.0
	crossLeagueThreshold = 95.0 // very high-confidence global lookup before auto-create
)

// blockedPair is a directional "never match" rule.
type blockedPair struct{ a, b string }

// blocklist holds well-known false positives a high fuzzy score would
// otherwise accept. Checked in both directions.
var blocklist = []blockedPair{
	{"inter milan", "ac milan"},
	{"brest", "nottingham forest"},
}

func isBlocked(a, b string) bool {
	a, b = normalize.FuzzyVariant(a), normalize.FuzzyVariant(b)
	for _, p := range blocklist {
		if (a == p.a && b == p.b) || (a == p.b && b == p.a) {
			return true
		}
	}
	return false
}

// crossLeagueCompetitions is the configured set of cup/continental
// competitions for which cross-league lookups are permitted.
var crossLeagueCompetitions = map[string]bool{
	"fa cup": true, "efl cup": true, "champions league": true,
	"europa league": true, "conference league": true, "libertadores": true,
	"copa do rei": true, "copa do brasil": true, "euro": true,
	"world cup": true, "nations league": true, "coppa italia": true,
	"dfb pokal": true, "coupe de france": true,
}

// IsCrossLeagueCompetition reports whether leagueName names a
// configured cup/continental competition.
func IsCrossLeagueCompetition(leagueName string) bool {
	return crossLeagueCompetitions[normalize.Key(leagueName)]
}

// Input bundles the Resolver's lookup parameters.
type Input struct {
	RawName    string
	Bookmaker  string
	LeagueID   string // may be empty
	LeagueName string // may be empty
}

// Resolver maps raw bookmaker strings to canonical TeamIDs.
type Resolver struct {
	catalog         *catalog.Catalog
	store           store.Store
	log             *slog.Logger
	primaryBookmaker string

	mu          sync.Mutex
	unmatched   map[string]bool // per-cycle dedup set, reset by ResetCycle
}

// New constructs a Resolver. primaryBookmaker is the lowercase name of
// the only bookmaker allowed to trigger team auto-creation.
func New(c *catalog.Catalog, s store.Store, log *slog.Logger, primaryBookmaker string) *Resolver {
	return &Resolver{
		catalog:          c,
		store:            s,
		log:              log,
		primaryBookmaker: strings.ToLower(strings.TrimSpace(primaryBookmaker)),
		unmatched:        make(map[string]bool),
	}
}

// ResetCycle clears the per-cycle unresolved-log dedup set.
func (r *Resolver) ResetCycle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unmatched = make(map[string]bool)
}

// Resolve runs the full cascade, including auto-create when allowed.
// It never returns an error for a resolution miss — callers get
// ("", false) and the offer is dropped.
func (r *Resolver) Resolve(ctx context.Context, in Input) (teamID string, ok bool) {
	return r.resolve(ctx, in, true)
}

// ResolveCacheOnly runs steps 1-5 of the cascade only — no DB writes,
// no auto-create, no alias learning beyond the in-memory index. Used
// for every bookmaker other than the primary one.
func (r *Resolver) ResolveCacheOnly(ctx context.Context, in Input) (teamID string, ok bool) {
	return r.resolve(ctx, in, false)
}

func (r *Resolver) resolve(ctx context.Context, in Input, allowAutoCreate bool) (string, bool) {
	rawLower := strings.ToLower(strings.TrimSpace(in.RawName))
	normalized := normalize.Key(in.RawName)
	bookmakerLower := strings.ToLower(strings.TrimSpace(in.Bookmaker))

	// Step 1: exact alias hit, both raw-lower and normalized forms.
	if id, found := r.catalog.LookupAlias(rawLower, bookmakerLower); found {
		return id, true
	}
	if id, found := r.catalog.LookupAlias(normalized, bookmakerLower); found {
		return id, true
	}

	// Step 2: league-scoped exact.
	if in.LeagueID != "" {
		if id, found := r.catalog.LookupInLeague(in.LeagueID, normalized); found {
			return id, true
		}
	}

	// Step 3: league-scoped fuzzy.
	if in.LeagueID != "" {
		if id, found := r.fuzzyInLeague(in.LeagueID, in.RawName); found {
			r.learnAlias(ctx, id, in.RawName, in.Bookmaker, allowAutoCreate)
			return id, true
		}
	}

	// Step 4: cross-league fallback for cup/continental competitions.
	if IsCrossLeagueCompetition(in.LeagueName) {
		if id, found := r.catalog.LookupGlobal(normalized); found {
			return id, true
		}
		if id, found := r.fuzzyGlobal(in.RawName); found {
			r.learnAlias(ctx, id, in.RawName, in.Bookmaker, allowAutoCreate)
			return id, true
		}
	}

	// Step 5: no league_id -> global exact only, never global fuzzy here.
	if in.LeagueID == "" {
		if id, found := r.catalog.LookupGlobal(normalized); found {
			return id, true
		}
	}

	// Step 6: auto-create, primary bookmaker only.
	if allowAutoCreate && bookmakerLower == r.primaryBookmaker && in.LeagueID != "" {
		if id, created := r.autoCreate(ctx, in); created {
			return id, true
		}
	}

	r.logUnmatched(ctx, in)
	return "", false
}

// fuzzyInLeague runs the league-scoped fuzzy cascade: three scorers against
// teamsByLeague, plus the stopword-stripped variant through token-sort
// and token-set, keeping the best score across all strategies, then
// checking the blocklist before accepting.
func (r *Resolver) fuzzyInLeague(leagueID, raw string) (string, bool) {
	candidates := r.catalog.TeamsInLeague(leagueID)
	return bestFuzzyMatch(raw, candidates)
}

// fuzzyGlobal is the same cascade scoped to the global index, used by
// the cross-league fallback.
func (r *Resolver) fuzzyGlobal(raw string) (string, bool) {
	candidates := r.catalog.TeamsGlobal()
	return bestFuzzyMatch(raw, candidates)
}

// strategyScore is one scorer's result against one candidate, paired
// with the threshold that gates it — token-sort and token-set share 85,
// partial ratio needs the higher 92.
type strategyScore struct {
	score     float64
	threshold float64
}

func (s strategyScore) accepted() bool { return s.score >= s.threshold }

// bestFuzzyMatch is the shared scoring loop used by both the
// league-scoped and cross-league fuzzy steps. It runs every strategy
// against every candidate, keeps only strategies that clear their own
// threshold, and accepts the single best-scoring survivor — so a
// partial-ratio score of 90 never wins over a token-sort score of 86,
// even though 90 > 86, because 90 never cleared partial ratio's own
// 92 bar.
func bestFuzzyMatch(raw string, candidates map[string]catalog.TeamRef) (string, bool) {
	return bestFuzzyMatchAbove(raw, candidates, 0)
}

// bestFuzzyMatchAbove is bestFuzzyMatch with an additional floor raised
// uniformly across every strategy's own threshold; used by auto-create
// to require the "very high-confidence" score of 95 while sharing the exact same scoring cascade as the ordinary
// league-scoped and cross-league fuzzy steps.
//
// candidates is keyed by normalized name but scored against each
// TeamRef's DisplayName — the team's original, case- and diacritic-
// preserving standard_name — so the non-fuzzy-variant strategies
// (TokenSortRatio/TokenSetRatio/PartialRatio on attempts 1-3) compare
// raw input against the real stored form instead of the lowercased,
// accent-stripped index key. Only the fuzzy-variant attempts (4-5)
// normalize both sides through normalize.FuzzyVariant.
func bestFuzzyMatchAbove(raw string, candidates map[string]catalog.TeamRef, floor float64) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	fuzzyRaw := normalize.FuzzyVariant(raw)
	bestScore := -1.0
	bestName := ""
	bestID := ""

	for _, ref := range candidates {
		candidateName := ref.DisplayName
		fuzzyCandidate := normalize.FuzzyVariant(candidateName)
		attempts := []strategyScore{
			{fuzzyratio.TokenSortRatio(raw, candidateName), max(tokenSortThreshold, floor)},
			{fuzzyratio.TokenSetRatio(raw, candidateName), max(tokenSetThreshold, floor)},
			{fuzzyratio.PartialRatio(raw, candidateName), max(partialRatioThreshold, floor)},
			{fuzzyratio.TokenSortRatio(fuzzyRaw, fuzzyCandidate), max(tokenSortThreshold, floor)},
			{fuzzyratio.TokenSetRatio(fuzzyRaw, fuzzyCandidate), max(tokenSetThreshold, floor)},
		}
		for _, a := range attempts {
			if a.accepted() && a.score > bestScore {
				bestScore = a.score
				bestName = candidateName
				bestID = ref.ID
			}
		}
	}

	if bestID == "" {
		return "", false
	}
	if isBlocked(raw, bestName) {
		return "", false
	}
	return bestID, true
}

// learnAlias schedules an alias write for a match produced by a fuzzy
// step. The in-memory index is updated
// before the DB write returns so in-cycle repeats are free; on a
// duplicate-key DB error the cache entry is kept, any other failure
// removes it. In cache-only mode (writeThrough false) only the
// in-memory index is updated; no DB write is made.
func (r *Resolver) learnAlias(ctx context.Context, teamID, rawName, bookmaker string, writeThrough bool) {
	r.catalog.PutAlias(teamID, rawName, bookmaker)
	if !writeThrough {
		return
	}
	if err := r.store.CreateTeamAlias(ctx, teamID, normalize.Display(rawName), bookmaker); err != nil {
		if isDuplicateAliasErr(err) {
			return // keep the cache entry
		}
		r.catalog.RemoveAlias(rawName, bookmaker)
		if r.log != nil {
			r.log.Warn("resolver: alias write failed, cache entry reverted",
				"team_id", teamID, "raw_name", rawName, "bookmaker", bookmaker, "error", err)
		}
	}
}

func isDuplicateAliasErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate")
}

// autoCreate handles team auto-creation for the primary bookmaker. It takes the catalog's
// write lock for the whole check-then-act sequence so concurrent
// callers resolving the same new name serialize: the first creates,
// the second finds it already present.
func (r *Resolver) autoCreate(ctx context.Context, in Input) (string, bool) {
	var resultID string
	var created bool

	r.catalog.WithWriteLock(func(c *catalog.Catalog) {
		normalized := normalize.Key(in.RawName)

		// Re-check under the lock: another goroutine may have just
		// created this team.
		if id, found := c.LookupInLeague(in.LeagueID, normalized); found {
			resultID, created = id, true
			return
		}

		if IsCrossLeagueCompetition(in.LeagueName) {
			if id, found := bestFuzzyMatchAbove(in.RawName, c.TeamsGlobal(), crossLeagueThreshold); found {
				resultID, created = id, true
				return
			}
		}

		team, err := r.store.CreateTeam(ctx, normalize.Display(in.RawName), in.LeagueID)
		if err != nil {
			if err == store.ErrDuplicateTeam {
				if id, found := c.LookupInLeague(in.LeagueID, normalized); found {
					resultID, created = id, true
					return
				}
				// Created by another writer the catalog has not seen yet:
				// re-read it from the Store.
				teams, ferr := r.store.FetchTeams(ctx)
				if ferr != nil {
					return
				}
				for _, t := range teams {
					if t.LeagueID == in.LeagueID && normalize.Key(t.StandardName) == normalized {
						c.PutTeamLocked(t)
						resultID, created = t.ID, true
						return
					}
				}
				return
			}
			if r.log != nil {
				r.log.Warn("resolver: auto-create failed", "raw_name", in.RawName, "league_id", in.LeagueID, "error", err)
			}
			return
		}

		team.ID = nonEmptyOr(team.ID, uuid.NewString())
		c.PutTeamLocked(team)
		resultID, created = team.ID, true
	})

	return resultID, created
}

func nonEmptyOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// logUnmatched writes UnmatchedTeamLog at most once per cycle per raw
// name.
func (r *Resolver) logUnmatched(ctx context.Context, in Input) {
	key := fmt.Sprintf("%s|%s", strings.ToLower(in.RawName), strings.ToLower(in.Bookmaker))

	r.mu.Lock()
	if r.unmatched[key] {
		r.mu.Unlock()
		return
	}
	r.unmatched[key] = true
	r.mu.Unlock()

	if r.log != nil {
		r.log.Info("resolver: unresolved team name",
			"raw_name", in.RawName, "bookmaker", in.Bookmaker, "league_name", in.LeagueName,
			"primary", strings.EqualFold(in.Bookmaker, r.primaryBookmaker))
	}

	entry := models.UnmatchedTeamLog{
		RawName:    in.RawName,
		Bookmaker:  in.Bookmaker,
		LeagueName: in.LeagueName,
	}
	if err := r.store.LogUnmatchedTeam(ctx, entry); err != nil && r.log != nil {
		r.log.Warn("resolver: failed to persist unmatched team log", "error", err)
	}
}
