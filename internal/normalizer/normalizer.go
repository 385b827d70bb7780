// Package normalizer implements the Normalizer: turns
// RawOffers into canonical OddsHistoryEntry rows, resolving bookmaker,
// league and team identities and invoking the Store's batched match
// upsert, with basketball team-inversion compensation.
package normalizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kairosodds/pulse/internal/catalog"
	"github.com/kairosodds/pulse/internal/pkg/fuzzyratio"
	"github.com/kairosodds/pulse/internal/pkg/models"
	"github.com/kairosodds/pulse/internal/resolver"
	"github.com/kairosodds/pulse/internal/store"
)

// TeamsSwappedKey is the ExtraData key the Normalizer sets to true when
// it compensates for a basketball source delivering teams inverted
// relative to the stored match.
const TeamsSwappedKey = "teams_swapped"

const leagueMatchThreshold = 80.0 // token-sort cutoff for LeagueMatcher
const nbaLeagueName = "nba"

// Result is the outcome of normalizing one cycle's worth of offers.
type Result struct {
	FootballOdds []models.OddsHistoryEntry
	BasketballOdds []models.OddsHistoryEntry
	Dropped        int
}

// Normalizer is constructed per-Orchestrator and used once per cycle.
type Normalizer struct {
	catalog          *catalog.Catalog
	resolver         *resolver.Resolver
	store            store.Store
	log              *slog.Logger
	primaryBookmaker string
}

func New(c *catalog.Catalog, r *resolver.Resolver, s store.Store, log *slog.Logger, primaryBookmaker string) *Normalizer {
	return &Normalizer{
		catalog:          c,
		resolver:         r,
		store:            s,
		log:              log,
		primaryBookmaker: strings.ToLower(strings.TrimSpace(primaryBookmaker)),
	}
}

// resolvedOffer is a RawOffer after identity resolution, ready for
// batched match upsert.
type resolvedOffer struct {
	offer       models.RawOffer
	sport       models.Sport
	leagueID    string
	bookmakerID string
	homeTeamID  string
	awayTeamID  string
}

// Normalize resolves every offer and performs the batched match upsert
// and odds insert for the whole cycle. It never returns
// an error for an individual offer's resolution miss — those are
// dropped and counted; only Store-level batch failures are returned,
// and even those are per-sport-batch, not fatal to the cycle.
func (n *Normalizer) Normalize(ctx context.Context, offers []models.RawOffer) (Result, error) {
	n.resolver.ResetCycle()

	var football, basketball []resolvedOffer
	dropped := 0

	for _, offer := range offers {
		ro, ok := n.resolveOffer(ctx, offer)
		if !ok {
			dropped++
			continue
		}
		if ro.sport == models.SportBasketball {
			basketball = append(basketball, ro)
		} else {
			football = append(football, ro)
		}
	}

	result := Result{Dropped: dropped}
	var errs []error

	footballOdds, err := n.upsertAndBuild(ctx, football, models.SportFootball)
	if err != nil {
		errs = append(errs, fmt.Errorf("football batch: %w", err))
		if n.log != nil {
			n.log.Error("normalizer: football batch failed", "error", err)
		}
	} else {
		result.FootballOdds = footballOdds
		if err := n.store.InsertFootballOdds(ctx, footballOdds); err != nil {
			errs = append(errs, fmt.Errorf("football odds insert: %w", err))
			if n.log != nil {
				n.log.Error("normalizer: football odds insert failed", "error", err)
			}
		}
	}

	basketballOdds, err := n.upsertAndBuild(ctx, basketball, models.SportBasketball)
	if err != nil {
		errs = append(errs, fmt.Errorf("basketball batch: %w", err))
		if n.log != nil {
			n.log.Error("normalizer: basketball batch failed", "error", err)
		}
	} else {
		result.BasketballOdds = basketballOdds
		if err := n.store.InsertBasketballOdds(ctx, basketballOdds); err != nil {
			errs = append(errs, fmt.Errorf("basketball odds insert: %w", err))
			if n.log != nil {
				n.log.Error("normalizer: basketball odds insert failed", "error", err)
			}
		}
	}

	return result, errors.Join(errs...)
}

// resolveOffer runs bookmaker lookup, league matching, sport
// classification, and home/away team resolution for one raw offer.
func (n *Normalizer) resolveOffer(ctx context.Context, offer models.RawOffer) (resolvedOffer, bool) {
	bookmaker, ok := n.catalog.BookmakerByName(offer.BookmakerName)
	if !ok {
		return resolvedOffer{}, false // step 1: drop on miss
	}

	league, ok := n.matchLeague(offer.LeagueRaw)
	if !ok {
		return resolvedOffer{}, false // step 2: unconfigured leagues intentionally ignored
	}

	sport := classifySport(offer)

	isPrimary := strings.EqualFold(offer.BookmakerName, n.primaryBookmaker)

	homeID, homeOK := n.resolveTeam(ctx, offer.HomeTeamRaw, offer.BookmakerName, league, isPrimary)
	if !homeOK {
		return resolvedOffer{}, false
	}
	awayID, awayOK := n.resolveTeam(ctx, offer.AwayTeamRaw, offer.BookmakerName, league, isPrimary)
	if !awayOK {
		return resolvedOffer{}, false
	}

	return resolvedOffer{
		offer:       offer,
		sport:       sport,
		leagueID:    league.ID,
		bookmakerID: bookmaker.ID,
		homeTeamID:  homeID,
		awayTeamID:  awayID,
	}, true
}

func (n *Normalizer) resolveTeam(ctx context.Context, raw, bookmaker string, league models.League, isPrimary bool) (string, bool) {
	in := resolver.Input{RawName: raw, Bookmaker: bookmaker, LeagueID: league.ID, LeagueName: league.Name}
	if isPrimary {
		return n.resolver.Resolve(ctx, in)
	}
	return n.resolver.ResolveCacheOnly(ctx, in)
}

// classifySport flags basketball when the offer is tagged as such or
// belongs to the NBA league (checked case-insensitively); everything
// else defaults to football.
func classifySport(offer models.RawOffer) models.Sport {
	if offer.Sport == models.SportBasketball {
		return models.SportBasketball
	}
	if strings.EqualFold(strings.TrimSpace(offer.LeagueRaw), nbaLeagueName) {
		return models.SportBasketball
	}
	return models.SportFootball
}

// matchLeague implements the LeagueMatcher: exact then token-sort fuzzy
// cutoff 80 over the leagues catalog.
func (n *Normalizer) matchLeague(raw string) (models.League, bool) {
	if l, ok := n.catalog.LeagueByName(raw); ok {
		return l, true
	}

	best := 0.0
	var bestLeague models.League
	found := false
	for _, l := range n.catalog.LeagueNames() {
		if score := fuzzyratio.TokenSortRatio(raw, l.Name); score >= leagueMatchThreshold && score > best {
			best = score
			bestLeague = l
			found = true
		}
	}
	return bestLeague, found
}

// upsertAndBuild batches the sport's resolved offers into a single
// match-upsert call, then builds the odds entries, swapping odds for
// any basketball match the Store reports as inverted.
func (n *Normalizer) upsertAndBuild(ctx context.Context, offers []resolvedOffer, sport models.Sport) ([]models.OddsHistoryEntry, error) {
	if len(offers) == 0 {
		return nil, nil
	}

	requests := make([]store.MatchUpsertRequest, 0, len(offers))
	seen := make(map[store.MatchKey]bool)
	for _, ro := range offers {
		req := store.MatchUpsertRequest{
			LeagueID:   ro.leagueID,
			HomeTeamID: ro.homeTeamID,
			AwayTeamID: ro.awayTeamID,
			MatchDate:  ro.offer.MatchDate,
		}
		key := store.KeyFor(req)
		if !seen[key] {
			seen[key] = true
			requests = append(requests, req)
		}
	}

	var results map[store.MatchKey]store.MatchResult
	var err error
	if sport == models.SportBasketball {
		results, err = n.store.UpsertBasketballMatchesBatch(ctx, requests)
	} else {
		results, err = n.store.UpsertFootballMatchesBatch(ctx, requests)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert %s matches: %w", sport, err)
	}

	odds := make([]models.OddsHistoryEntry, 0, len(offers))
	for _, ro := range offers {
		req := store.MatchUpsertRequest{
			LeagueID:   ro.leagueID,
			HomeTeamID: ro.homeTeamID,
			AwayTeamID: ro.awayTeamID,
			MatchDate:  ro.offer.MatchDate,
		}
		matchResult, ok := results[store.KeyFor(req)]
		if !ok {
			continue // store failed to resolve this tuple; skip rather than store a placeholder
		}
		odds = append(odds, buildOddsEntry(ro, matchResult, sport))
	}
	return odds, nil
}

// buildOddsEntry implements the basketball inversion compensation: when
// the Store reports the match as inverted, home and away odds are
// swapped and extra_data.teams_swapped is set.
func buildOddsEntry(ro resolvedOffer, mr store.MatchResult, sport models.Sport) models.OddsHistoryEntry {
	homeOdd, awayOdd := ro.offer.HomeOdd, ro.offer.AwayOdd
	extra := ro.offer.ExtraData.Clone()

	if sport == models.SportBasketball && mr.IsInverted {
		homeOdd, awayOdd = awayOdd, homeOdd
		extra[TeamsSwappedKey] = true
	}

	var drawOdd *float64
	if sport == models.SportFootball {
		drawOdd = ro.offer.DrawOdd
	}

	return models.OddsHistoryEntry{
		ID:          uuid.NewString(),
		Sport:       sport,
		MatchID:     mr.MatchID,
		BookmakerID: ro.bookmakerID,
		MarketType:  ro.offer.MarketType,
		HomeOdd:     homeOdd,
		DrawOdd:     drawOdd,
		AwayOdd:     awayOdd,
		OddsType:    ro.offer.OddsType,
		ScrapedAt:   scrapedAtOrNow(ro.offer.ScrapedAt),
		ExtraData:   extra,
	}
}

func scrapedAtOrNow(scrapedAt time.Time) time.Time {
	if scrapedAt.IsZero() {
		return time.Now().UTC()
	}
	return scrapedAt.UTC()
}
