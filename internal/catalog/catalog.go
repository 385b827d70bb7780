// Package catalog implements the IdentityCatalog: an
// in-memory, periodically reloaded snapshot of teams, aliases, leagues
// and bookmakers, exposing constant-time lookups for the Resolver and
// Normalizer hot paths.
//
// Built on a "load once, swap atomically" registry shape, generalized
// from a single factory map to the four catalog indices a full identity
// resolution pipeline needs.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kairosodds/pulse/internal/pkg/models"
	"github.com/kairosodds/pulse/internal/pkg/normalize"
	"github.com/kairosodds/pulse/internal/store"
)

// TeamRef pairs a TeamID with its original, case- and diacritic-
// preserving standard_name, for callers that need to score raw input
// against the team's actual display form rather than its normalized
// index key.
type TeamRef struct {
	ID          string
	DisplayName string
}

// DuplicateEntry records a normalized team name that collided across
// leagues during a reload. The catalog
// keeps the first TeamID seen in teamsGlobal; this report is the
// authoritative input for an external merge tool.
type DuplicateEntry struct {
	NormalizedName string
	TeamIDs        []string
}

// snapshot is the off-index, fully-built view that gets swapped in
// atomically on reload. Readers never observe a partially-built index.
type snapshot struct {
	teamsByID     map[string]models.Team
	aliasIndex    map[aliasKey]string // (normalized alias, lowercase bookmaker) -> TeamID
	teamsByLeague map[string]map[string]TeamRef // leagueID -> normalized name -> TeamRef
	teamsGlobal   map[string]TeamRef            // normalized name -> TeamRef (first wins)
	leaguesByID   map[string]models.League
	leaguesByName map[string]models.League // normalized name -> League
	bookmakersByID map[string]models.Bookmaker
	bookmakersByName map[string]models.Bookmaker // lowercase name -> Bookmaker
	duplicates    []DuplicateEntry
}

type aliasKey struct {
	alias     string
	bookmaker string
}

func newSnapshot() *snapshot {
	return &snapshot{
		teamsByID:        make(map[string]models.Team),
		aliasIndex:       make(map[aliasKey]string),
		teamsByLeague:    make(map[string]map[string]TeamRef),
		teamsGlobal:      make(map[string]TeamRef),
		leaguesByID:      make(map[string]models.League),
		leaguesByName:    make(map[string]models.League),
		bookmakersByID:   make(map[string]models.Bookmaker),
		bookmakersByName: make(map[string]models.Bookmaker),
	}
}

// Catalog is the owned, explicit resource passed by reference into the
// Orchestrator, Normalizer and Resolver. It holds no process-global state.
type Catalog struct {
	store store.Store
	log   *slog.Logger

	snap atomic.Pointer[snapshot]

	// writeMu serializes auto-create writes so two concurrent callers
	// resolving the same new name don't race to create duplicates:
	// the first caller wins, the second finds the entry already present.
	writeMu sync.Mutex
}

// New constructs an empty Catalog. Call Reload before using it.
func New(s store.Store, log *slog.Logger) *Catalog {
	return &Catalog{store: s, log: log}
}

// Reload rebuilds all four indices off to the side and swaps them in
// atomically. On a fetch error the previous snapshot is left in place
// and the error is returned; the Orchestrator decides what to do (until
// a reload has succeeded it ends that cycle with no further work and
// retries on the next one; afterwards it continues on the old snapshot).
func (c *Catalog) Reload(ctx context.Context) error {
	teams, err := c.store.FetchTeams(ctx)
	if err != nil {
		return fmt.Errorf("fetch teams: %w", err)
	}
	aliases, err := c.store.FetchAliases(ctx)
	if err != nil {
		return fmt.Errorf("fetch aliases: %w", err)
	}
	leagues, err := c.store.FetchLeagues(ctx)
	if err != nil {
		return fmt.Errorf("fetch leagues: %w", err)
	}
	bookmakers, err := c.store.FetchBookmakers(ctx)
	if err != nil {
		return fmt.Errorf("fetch bookmakers: %w", err)
	}

	next := newSnapshot()

	for _, l := range leagues {
		next.leaguesByID[l.ID] = l
		next.leaguesByName[normalize.Key(l.Name)] = l
	}
	for _, b := range bookmakers {
		next.bookmakersByID[b.ID] = b
		next.bookmakersByName[normalize.Key(b.Name)] = b
	}

	for _, t := range teams {
		next.teamsByID[t.ID] = t
		key := normalize.Key(t.StandardName)
		ref := TeamRef{ID: t.ID, DisplayName: t.StandardName}

		if next.teamsByLeague[t.LeagueID] == nil {
			next.teamsByLeague[t.LeagueID] = make(map[string]TeamRef)
		}
		next.teamsByLeague[t.LeagueID][key] = ref

		if existing, ok := next.teamsGlobal[key]; ok && existing.ID != t.ID {
			next.recordDuplicate(key, existing.ID, t.ID)
			continue // first wins
		}
		next.teamsGlobal[key] = ref
	}

	for _, a := range aliases {
		bk := normalize.Key(a.BookmakerSource)
		next.aliasIndex[aliasKey{alias: normalize.Key(a.AliasName), bookmaker: bk}] = a.TeamID
	}

	if len(next.duplicates) > 0 && c.log != nil {
		for _, d := range next.duplicates {
			c.log.Warn("catalog: duplicate standard_name across leagues",
				"name", d.NormalizedName, "team_ids", d.TeamIDs)
		}
	}

	c.snap.Store(next)
	return nil
}

func (s *snapshot) recordDuplicate(name, existingID, newID string) {
	for i := range s.duplicates {
		if s.duplicates[i].NormalizedName == name {
			s.duplicates[i].TeamIDs = appendUnique(s.duplicates[i].TeamIDs, newID)
			return
		}
	}
	s.duplicates = append(s.duplicates, DuplicateEntry{
		NormalizedName: name,
		TeamIDs:        []string{existingID, newID},
	})
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// current returns the active snapshot. Reads are lock-free against a
// committed pointer.
func (c *Catalog) current() *snapshot {
	s := c.snap.Load()
	if s == nil {
		return newSnapshot()
	}
	return s
}

// DuplicateReport returns the cross-league name collisions found on the
// last reload. Callers must consolidate these
// before relying on global lookups.
func (c *Catalog) DuplicateReport() []DuplicateEntry {
	return append([]DuplicateEntry(nil), c.current().duplicates...)
}

// LookupAlias implements aliasIndex lookups for the Resolver (step 1).
func (c *Catalog) LookupAlias(normalizedOrRaw, bookmaker string) (string, bool) {
	id, ok := c.current().aliasIndex[aliasKey{alias: normalize.Key(normalizedOrRaw), bookmaker: normalize.Key(bookmaker)}]
	return id, ok
}

// LookupInLeague implements teamsByLeague exact lookups (step 2).
func (c *Catalog) LookupInLeague(leagueID, normalizedName string) (string, bool) {
	byName := c.current().teamsByLeague[leagueID]
	if byName == nil {
		return "", false
	}
	ref, ok := byName[normalize.Key(normalizedName)]
	return ref.ID, ok
}

// LookupGlobal implements teamsGlobal exact lookups (steps 4 and 5).
func (c *Catalog) LookupGlobal(normalizedName string) (string, bool) {
	ref, ok := c.current().teamsGlobal[normalize.Key(normalizedName)]
	return ref.ID, ok
}

// TeamsInLeague returns the league-scoped normalized-name->TeamRef map
// for fuzzy scanning (step 3), carrying each team's original
// case/diacritic-preserving standard_name alongside its ID so scorers
// can compare raw input against the real display form instead of the
// lowercased, accent-stripped index key. The returned map is the
// current snapshot's own map, not a copy, and auto-created teams are
// added to it in place; it must be treated as read-only and is not safe
// to range over while a team is being added.
func (c *Catalog) TeamsInLeague(leagueID string) map[string]TeamRef {
	return c.current().teamsByLeague[leagueID]
}

// TeamsGlobal returns the global normalized-name->TeamRef map for fuzzy
// scanning (cross-league fallback, step 4).
func (c *Catalog) TeamsGlobal() map[string]TeamRef {
	return c.current().teamsGlobal
}

// TeamByID returns the canonical Team for display/publication purposes.
func (c *Catalog) TeamByID(id string) (models.Team, bool) {
	t, ok := c.current().teamsByID[id]
	return t, ok
}

// LeagueByName resolves a raw league string to a League via exact
// normalized match, used by the LeagueMatcher's exact step.
func (c *Catalog) LeagueByName(raw string) (models.League, bool) {
	l, ok := c.current().leaguesByName[normalize.Key(raw)]
	return l, ok
}

// LeagueNames returns all league display names for fuzzy scanning.
func (c *Catalog) LeagueNames() map[string]models.League {
	return c.current().leaguesByName
}

// BookmakerByName resolves a raw bookmaker string to a BookmakerID.
func (c *Catalog) BookmakerByName(raw string) (models.Bookmaker, bool) {
	b, ok := c.current().bookmakersByName[normalize.Key(raw)]
	return b, ok
}

// PutAlias inserts a newly learned alias into the in-memory index
// synchronously, ahead of (or independent from) its async DB write, so
// in-cycle repeat resolutions are free.
func (c *Catalog) PutAlias(teamID, aliasName, bookmaker string) {
	s := c.current()
	s.aliasIndex[aliasKey{alias: normalize.Key(aliasName), bookmaker: normalize.Key(bookmaker)}] = teamID
}

// RemoveAlias reverses a PutAlias when the backing DB write fails for a
// reason other than a duplicate-key race.
func (c *Catalog) RemoveAlias(aliasName, bookmaker string) {
	s := c.current()
	delete(s.aliasIndex, aliasKey{alias: normalize.Key(aliasName), bookmaker: normalize.Key(bookmaker)})
}

// PutTeam inserts a newly auto-created team into all three team
// indices synchronously, taking the write lock
// itself. Callers already holding the lock via WithWriteLock must use
// PutTeamLocked instead to avoid self-deadlock.
func (c *Catalog) PutTeam(t models.Team) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.putTeamLocked(t)
}

// PutTeamLocked is PutTeam without acquiring the lock; only call this
// from inside a WithWriteLock callback.
func (c *Catalog) PutTeamLocked(t models.Team) {
	c.putTeamLocked(t)
}

func (c *Catalog) putTeamLocked(t models.Team) {
	s := c.current()
	s.teamsByID[t.ID] = t
	key := normalize.Key(t.StandardName)
	ref := TeamRef{ID: t.ID, DisplayName: t.StandardName}
	if s.teamsByLeague[t.LeagueID] == nil {
		s.teamsByLeague[t.LeagueID] = make(map[string]TeamRef)
	}
	s.teamsByLeague[t.LeagueID][key] = ref
	if _, exists := s.teamsGlobal[key]; !exists {
		s.teamsGlobal[key] = ref
	}
}

// WithWriteLock runs fn while holding the catalog's write lock, so a
// Resolver auto-create check-then-act (look up, else create) is
// serialized under a "first caller wins" guarantee. fn is handed the
// locked catalog so it can call PutTeamLocked without re-entering the
// mutex.
func (c *Catalog) WithWriteLock(fn func(c *Catalog)) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	fn(c)
}
