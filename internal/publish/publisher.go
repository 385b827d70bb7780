// Package publish implements the Publisher: merges the
// two per-sport comparison views into one published JSON artifact and
// uploads it to the ObjectStore.
//
// Grounded on internal/pkg/export (HierarchicalExporter)
// for the "build a tree artifact, then json.Marshal and hand to a
// sink" shape, generalized from per-match hierarchical
// export to the flat matches[] with embedded odds[] and
// best/worst aggregates. The short-TTL de-dup guard is grounded on
// go-redis usage in the rest of the retrieval pack (Mercury's
// delta.Engine Redis-first posture) — it is optional: a nil client
// disables the guard and every cycle uploads unconditionally.
package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kairosodds/pulse/internal/pkg/models"
	"github.com/kairosodds/pulse/internal/store"
)

const (
	artifactPath        = "odds.json"
	artifactContentType = "application/json"
	publishHorizon       = -5 * time.Minute
	dedupTTL             = 2 * time.Second  // covers one replica's publish window
	dedupKeyPrefix       = "pulse:publish:dedup:"
)

// BookmakerOdds is one bookmaker's row for a published match.
type BookmakerOdds struct {
	BookmakerID     string          `json:"bookmaker_id"`
	BookmakerName   string          `json:"bookmaker_name"`
	HomeOdd         float64         `json:"home_odd"`
	DrawOdd         *float64        `json:"draw_odd,omitempty"`
	AwayOdd         float64         `json:"away_odd"`
	OddsType        models.OddsType `json:"odds_type"`
	MarginPercentage float64        `json:"margin_percentage"`
	DataAgeSeconds  int64           `json:"data_age_seconds"`
	ScrapedAt       time.Time       `json:"scraped_at"`
	ExtraData       models.ExtraData `json:"extra_data,omitempty"`
}

// PublishedMatch is one group in the artifact's matches[] array.
type PublishedMatch struct {
	MatchID       string          `json:"match_id"`
	MatchDate     time.Time       `json:"match_date"`
	MatchStatus   string          `json:"match_status"`
	LeagueName    string          `json:"league_name"`
	LeagueCountry string          `json:"league_country"`
	SportType     models.Sport    `json:"sport_type"`
	HomeTeam      string          `json:"home_team"`
	HomeTeamLogo  string          `json:"home_team_logo"`
	AwayTeam      string          `json:"away_team"`
	AwayTeamLogo  string          `json:"away_team_logo"`
	Odds          []BookmakerOdds `json:"odds"`
	BestHome      float64         `json:"best_home"`
	BestDraw      float64         `json:"best_draw"`
	BestAway      float64         `json:"best_away"`
	WorstHome     float64         `json:"worst_home"`
	WorstDraw     float64         `json:"worst_draw"`
	WorstAway     float64         `json:"worst_away"`
}

// Artifact is the top-level published JSON document.
type Artifact struct {
	GeneratedAt  time.Time        `json:"generated_at"`
	MatchesCount int              `json:"matches_count"`
	Matches      []PublishedMatch `json:"matches"`
}

// groupKey is the composite dedup key: date-only,
// deliberately collapsing football/basketball match_id differences.
type groupKey struct {
	homeTeam string
	awayTeam string
	dateOnly string
}

type group struct {
	match PublishedMatch
}

// Publisher merges comparison views and uploads the resulting artifact.
type Publisher struct {
	store  store.Store
	object store.ObjectStore
	redis  *redis.Client // optional; nil disables the dedup guard
	log    *slog.Logger
}

func New(s store.Store, object store.ObjectStore, rdb *redis.Client, log *slog.Logger) *Publisher {
	return &Publisher{store: s, object: object, redis: rdb, log: log}
}

// Publish fetches both comparison views, groups them into published
// match cards, and uploads the resulting JSON blob. Failures are logged by the
// caller (Orchestrator); Publish returns the error so the cycle summary
// can record json_uploaded=false.
func (p *Publisher) Publish(ctx context.Context) error {
	now := time.Now().UTC()

	footballRows, err := p.store.ReadFootballComparisonView(ctx, now)
	if err != nil {
		return fmt.Errorf("read football comparison view: %w", err)
	}
	basketballRows, err := p.store.ReadBasketballComparisonView(ctx, now)
	if err != nil {
		return fmt.Errorf("read basketball comparison view: %w", err)
	}

	groups := make(map[groupKey]*group)
	var order []groupKey

	merge := func(rows []store.ComparisonRow) {
		for _, row := range rows {
			if row.MatchDate.Before(now.Add(publishHorizon)) {
				continue // older than the publish horizon
			}
			key := groupKey{
				homeTeam: row.HomeTeam,
				awayTeam: row.AwayTeam,
				dateOnly: row.MatchDate.Format("2006-01-02"),
			}
			g, ok := groups[key]
			if !ok {
				g = &group{match: newPublishedMatch(row)}
				groups[key] = g
				order = append(order, key)
			}
			addOdds(&g.match, row)
		}
	}
	merge(footballRows)
	merge(basketballRows)

	matches := make([]PublishedMatch, 0, len(order))
	for _, key := range order {
		matches = append(matches, groups[key].match)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].MatchDate.Before(matches[j].MatchDate)
	})

	artifact := Artifact{
		GeneratedAt:  now,
		MatchesCount: len(matches),
		Matches:      matches,
	}

	payload, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	if p.shouldSkipDueToDedup(ctx, payload) {
		if p.log != nil {
			p.log.Info("publish: skipped, identical artifact already published this window")
		}
		return nil
	}

	if err := p.object.Put(ctx, artifactPath, payload, artifactContentType); err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}
	return nil
}

func newPublishedMatch(row store.ComparisonRow) PublishedMatch {
	return PublishedMatch{
		MatchID:       row.MatchID,
		MatchDate:     row.MatchDate,
		MatchStatus:   row.MatchStatus,
		LeagueName:    row.LeagueName,
		LeagueCountry: row.LeagueCountry,
		SportType:     row.Sport,
		HomeTeam:      row.HomeTeam,
		HomeTeamLogo:  row.HomeTeamLogo,
		AwayTeam:      row.AwayTeam,
		AwayTeamLogo:  row.AwayTeamLogo,
	}
}

// addOdds appends a bookmaker row and updates the group's best/worst
// aggregates.
func addOdds(m *PublishedMatch, row store.ComparisonRow) {
	m.Odds = append(m.Odds, BookmakerOdds{
		BookmakerID:      row.BookmakerID,
		BookmakerName:    row.BookmakerName,
		HomeOdd:          row.HomeOdd,
		DrawOdd:          row.DrawOdd,
		AwayOdd:          row.AwayOdd,
		OddsType:         row.OddsType,
		MarginPercentage: row.MarginPercent,
		DataAgeSeconds:   row.DataAgeSeconds,
		ScrapedAt:        row.ScrapedAt,
		ExtraData:        row.ExtraData,
	})

	m.BestHome = trackBest(m.BestHome, row.HomeOdd)
	m.WorstHome = trackWorst(m.WorstHome, row.HomeOdd)
	m.BestAway = trackBest(m.BestAway, row.AwayOdd)
	m.WorstAway = trackWorst(m.WorstAway, row.AwayOdd)
	if row.DrawOdd != nil {
		m.BestDraw = trackBest(m.BestDraw, *row.DrawOdd)
		m.WorstDraw = trackWorst(m.WorstDraw, *row.DrawOdd)
	}
}

// trackBest and trackWorst consider only positive observations; a group
// with no positive observation keeps its zero value, per the published
// artifact's "worst_* is 0 when no positive observation exists" rule
// (applied symmetrically to best_*).
func trackBest(current, candidate float64) float64 {
	if candidate <= 0 {
		return current
	}
	if current == 0 || candidate > current {
		return candidate
	}
	return current
}

func trackWorst(current, candidate float64) float64 {
	if candidate <= 0 {
		return current
	}
	if current == 0 || candidate < current {
		return candidate
	}
	return current
}

// shouldSkipDueToDedup guards against two orchestrator replicas
// uploading the same artifact within the same short window. Any Redis
// error is treated as "not a duplicate" — the guard is an optimization,
// never a correctness requirement.
func (p *Publisher) shouldSkipDueToDedup(ctx context.Context, payload []byte) bool {
	if p.redis == nil {
		return false
	}
	sum := sha256.Sum256(payload)
	key := dedupKeyPrefix + hex.EncodeToString(sum[:])

	ok, err := p.redis.SetNX(ctx, key, "1", dedupTTL).Result()
	if err != nil {
		if p.log != nil {
			p.log.Warn("publish: dedup guard unavailable", "error", err)
		}
		return false
	}
	return !ok
}
