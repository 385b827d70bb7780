// Package alerts implements the AlertDetector: scans the
// football normalized odds from one cycle for arbitrage and value-bet
// opportunities and builds the batch the Orchestrator inserts.
//
// Grounded on internal/calculator/calculator/compute.go
// (computeTopDiffs/computeValueBets) and diffs.go's grouping shape,
// generalized from "top N by percent" diff/value scanning over parsed
// matches to a per-match_id, per-outcome scan over OddsHistoryEntry with
// configurable thresholds instead of a fixed keepTop cutoff.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kairosodds/pulse/internal/pkg/models"
	"github.com/kairosodds/pulse/internal/store"
)

// Thresholds configures the two detectors. Both are percentages.
type Thresholds struct {
	ArbitrageThreshold float64 // e.g. 1.0
	ValueBetThreshold  float64 // e.g. 10.0
}

// Detector scans one cycle's football OddsHistoryEntry set.
type Detector struct {
	store      store.Store
	log        *slog.Logger
	thresholds Thresholds
}

func New(s store.Store, log *slog.Logger, thresholds Thresholds) *Detector {
	return &Detector{store: s, log: log, thresholds: thresholds}
}

// outcomeGroup holds the per-bookmaker odds for each of the three
// outcomes of one match, keyed by BookmakerID.
type outcomeGroup struct {
	home map[string]float64
	draw map[string]float64
	away map[string]float64
}

// Detect groups football odds by MatchID and emits Arbitrage and Value
// Bet alerts for every group with at least two bookmakers. Basketball
// odds are out of scope and must not be passed in.
func (d *Detector) Detect(ctx context.Context, footballOdds []models.OddsHistoryEntry) []models.Alert {
	groups := make(map[string]*outcomeGroup)
	for _, o := range footballOdds {
		g, ok := groups[o.MatchID]
		if !ok {
			g = &outcomeGroup{home: map[string]float64{}, draw: map[string]float64{}, away: map[string]float64{}}
			groups[o.MatchID] = g
		}
		g.home[o.BookmakerID] = o.HomeOdd
		g.away[o.BookmakerID] = o.AwayOdd
		if o.DrawOdd != nil {
			g.draw[o.BookmakerID] = *o.DrawOdd
		}
	}

	now := time.Now().UTC()
	var out []models.Alert

	for matchID, g := range groups {
		if countBookmakers(g) < 2 {
			continue
		}
		if alert, ok := d.detectArbitrage(matchID, g, now); ok {
			out = append(out, alert)
		}
		out = append(out, d.detectValueBets(matchID, g, now)...)
	}

	return out
}

func countBookmakers(g *outcomeGroup) int {
	seen := map[string]bool{}
	for bk := range g.home {
		seen[bk] = true
	}
	for bk := range g.away {
		seen[bk] = true
	}
	return len(seen)
}

// detectArbitrage takes the best odd per outcome, total = Σ(1/best),
// profit = (1-total)*100. Markets without a draw (g.draw empty) sum
// only home+away.
func (d *Detector) detectArbitrage(matchID string, g *outcomeGroup, now time.Time) (models.Alert, bool) {
	bestHomeOdd, bestHomeBk, ok := bestOdd(g.home)
	if !ok {
		return models.Alert{}, false
	}
	bestAwayOdd, bestAwayBk, ok := bestOdd(g.away)
	if !ok {
		return models.Alert{}, false
	}

	total := 1.0/bestHomeOdd + 1.0/bestAwayOdd
	legs := map[string]any{
		"home": map[string]any{"bookmaker_id": bestHomeBk, "odd": bestHomeOdd},
		"away": map[string]any{"bookmaker_id": bestAwayBk, "odd": bestAwayOdd},
	}

	if bestDrawOdd, bestDrawBk, hasDraw := bestOdd(g.draw); hasDraw {
		total += 1.0 / bestDrawOdd
		legs["draw"] = map[string]any{"bookmaker_id": bestDrawBk, "odd": bestDrawOdd}
	}

	profitPercent := (1.0 - total) * 100.0
	if profitPercent <= d.thresholds.ArbitrageThreshold {
		return models.Alert{}, false
	}

	return models.Alert{
		ID:      uuid.NewString(),
		MatchID: matchID,
		Type:    models.AlertArbitrage,
		Title:   fmt.Sprintf("Arbitrage opportunity: %.2f%% profit", profitPercent),
		Details: map[string]any{
			"profit_percent": profitPercent,
			"legs":           legs,
		},
		CreatedAt: now,
	}, true
}

func bestOdd(byBookmaker map[string]float64) (float64, string, bool) {
	best := -1.0
	bestBk := ""
	found := false
	for bk, odd := range byBookmaker {
		if odd <= 0 || math.IsInf(odd, 0) || math.IsNaN(odd) {
			continue
		}
		if odd > best {
			best, bestBk, found = odd, bk, true
		}
	}
	return best, bestBk, found
}

// detectValueBets computes, per outcome, avg = arithmetic mean across
// bookmakers, edge = (value-avg)/avg*100, and emits one alert per
// bookmaker whose edge clears the threshold.
func (d *Detector) detectValueBets(matchID string, g *outcomeGroup, now time.Time) []models.Alert {
	var out []models.Alert
	out = append(out, d.valueBetsForOutcome(matchID, "home", g.home, now)...)
	out = append(out, d.valueBetsForOutcome(matchID, "draw", g.draw, now)...)
	out = append(out, d.valueBetsForOutcome(matchID, "away", g.away, now)...)
	return out
}

func (d *Detector) valueBetsForOutcome(matchID, outcome string, byBookmaker map[string]float64, now time.Time) []models.Alert {
	if len(byBookmaker) < 2 {
		return nil
	}

	avg := mean(byBookmaker)
	if avg <= 0 {
		return nil
	}

	var out []models.Alert
	for bk, odd := range byBookmaker {
		if odd <= 0 {
			continue
		}
		edge := (odd - avg) / avg * 100.0
		if edge < d.thresholds.ValueBetThreshold {
			continue
		}
		out = append(out, models.Alert{
			ID:      uuid.NewString(),
			MatchID: matchID,
			Type:    models.AlertValueBet,
			Title:   fmt.Sprintf("Value bet: %s at %.2f%% edge", outcome, edge),
			Details: map[string]any{
				"outcome":      outcome,
				"bookmaker_id": bk,
				"odd":          odd,
				"average_odd":  avg,
				"edge_percent": edge,
			},
			CreatedAt: now,
		})
	}
	return out
}

func mean(m map[string]float64) float64 {
	if len(m) == 0 {
		return 0
	}
	var sum float64
	for _, v := range m {
		sum += v
	}
	return sum / float64(len(m))
}

// InsertBatch submits all alerts from a cycle in one batch; emission is
// best-effort, failures are logged.
func (d *Detector) InsertBatch(ctx context.Context, batch []models.Alert) {
	if len(batch) == 0 {
		return
	}
	if err := d.store.InsertAlertsBatch(ctx, batch); err != nil && d.log != nil {
		d.log.Error("alerts: batch insert failed", "count", len(batch), "error", err)
	}
}
