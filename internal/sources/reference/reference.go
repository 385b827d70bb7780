// Package reference is an example sources.Source adapter, demonstrating
// the contract internal/sources/source.go declares: a baseURL +
// http.Client with a fixed timeout, one JSON decode per poll, and a
// status-code check, collapsed to a single Collect call returning
// RawOffers instead of a bookmaker-specific event tree.
package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kairosodds/pulse/internal/pkg/models"
)

// wireOffer is the shape this adapter expects its upstream feed to
// return: one row per outcome triple, already flat.
type wireOffer struct {
	HomeTeam  string  `json:"home_team"`
	AwayTeam  string  `json:"away_team"`
	League    string  `json:"league"`
	Sport     string  `json:"sport"`
	MatchDate string  `json:"match_date"`
	HomeOdd   float64 `json:"home_odd"`
	DrawOdd   *float64 `json:"draw_odd"`
	AwayOdd   float64 `json:"away_odd"`
	Market    string  `json:"market"`
}

// Source polls a single HTTP endpoint that returns a JSON array of
// wireOffer, and is registered under BookmakerName in the orchestrator's
// Source list. It carries no setup/teardown state of its own beyond the
// HTTP client, matching.
type Source struct {
	name          string
	bookmakerName string
	feedURL       string
	client        *http.Client
}

// New builds a Source polling feedURL, reporting offers under
// bookmakerName (must match a models.Bookmaker.Name known to the
// catalog, case-insensitively).
func New(name, bookmakerName, feedURL string, timeout time.Duration) *Source {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Source{
		name:          name,
		bookmakerName: bookmakerName,
		feedURL:       feedURL,
		client:        &http.Client{Timeout: timeout},
	}
}

func (s *Source) Name() string { return s.name }

// Setup and Teardown are no-ops: this adapter holds no persistent
// connection, unlike a headless-browser-backed Source would.
func (s *Source) Setup(_ context.Context) error    { return nil }
func (s *Source) Teardown(_ context.Context) error  { return nil }

func (s *Source) Collect(ctx context.Context) ([]models.RawOffer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", s.name, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "pulse-odds-collector/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch: %w", s.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", s.name, resp.StatusCode)
	}

	var wire []wireOffer
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", s.name, err)
	}

	now := time.Now().UTC()
	offers := make([]models.RawOffer, 0, len(wire))
	for _, w := range wire {
		matchDate, err := time.Parse(time.RFC3339, w.MatchDate)
		if err != nil {
			continue
		}
		offers = append(offers, models.RawOffer{
			BookmakerName: s.bookmakerName,
			HomeTeamRaw:   w.HomeTeam,
			AwayTeamRaw:   w.AwayTeam,
			LeagueRaw:     w.League,
			MatchDate:     matchDate.UTC(),
			HomeOdd:       w.HomeOdd,
			DrawOdd:       w.DrawOdd,
			AwayOdd:       w.AwayOdd,
			Sport:         classifySport(w.Sport),
			MarketType:    w.Market,
			OddsType:      models.OddsTypeStandard,
			ScrapedAt:     now,
		})
	}
	return offers, nil
}

func classifySport(raw string) models.Sport {
	if strings.EqualFold(raw, "basketball") {
		return models.SportBasketball
	}
	return models.SportFootball
}
