// Package orchestrator implements the Orchestrator: the
// per-cycle state machine that drives ReloadingCaches, Collecting,
// Normalizing, DetectingAlerts, Cleaning and Publishing. Sleeping for
// the configured interval between cycles is done by the caller
// (cmd/orchestrator), not by this package.
//
// The Collecting fan-out runs one goroutine per Source, gathered with a
// WaitGroup; every Source's failure is recoverable rather than aborting
// the whole cycle, since partial collection still has value.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kairosodds/pulse/internal/alerts"
	"github.com/kairosodds/pulse/internal/catalog"
	"github.com/kairosodds/pulse/internal/normalizer"
	"github.com/kairosodds/pulse/internal/pkg/models"
	"github.com/kairosodds/pulse/internal/pkg/perf"
	"github.com/kairosodds/pulse/internal/publish"
	"github.com/kairosodds/pulse/internal/resolver"
	"github.com/kairosodds/pulse/internal/sources"
	"github.com/kairosodds/pulse/internal/store"
)

// Summary is the per-cycle result every cycle returns, regardless of
// how many individual phases failed.
type Summary struct {
	StartedAt       time.Time
	Duration        time.Duration
	OddsCollected   int
	FootballInserted int
	NBAInserted     int
	AlertsCreated   int
	MatchesCleaned  int
	JSONUploaded    bool
	Errors          []string
	SourceFailures  map[string]string
	PhaseDurations  map[string]time.Duration
}

// Orchestrator owns the catalog, resolver, normalizer, detector and
// publisher for the lifetime of the process. It holds no other
// cross-cycle mutable state.
type Orchestrator struct {
	catalog   *catalog.Catalog
	resolver  *resolver.Resolver
	normalizer *normalizer.Normalizer
	detector  *alerts.Detector
	publisher *publish.Publisher
	store     store.Store
	srcs      []sources.Source
	log       *slog.Logger

	hasEverLoaded bool
}

func New(
	c *catalog.Catalog,
	r *resolver.Resolver,
	n *normalizer.Normalizer,
	d *alerts.Detector,
	p *publish.Publisher,
	s store.Store,
	srcs []sources.Source,
	log *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		catalog:    c,
		resolver:   r,
		normalizer: n,
		detector:   d,
		publisher:  p,
		store:      s,
		srcs:       srcs,
		log:        log,
	}
}

// RunCycle executes exactly one ReloadingCaches->...->Publishing pass and returns its
// summary, never an error: every phase is independently best-effort.
func (o *Orchestrator) RunCycle(ctx context.Context) Summary {
	started := time.Now()
	tracker := perf.New()
	summary := Summary{StartedAt: started, SourceFailures: make(map[string]string)}

	// ReloadingCaches
	tracker.Start(perf.PhaseReloadingCaches)
	if err := o.catalog.Reload(ctx); err != nil {
		summary.Errors = append(summary.Errors, "catalog reload: "+err.Error())
		if o.log != nil {
			o.log.Error("orchestrator: catalog reload failed", "error", err)
		}
		if !o.hasEverLoaded {
			// First-cycle catalog failure yields zero work.
			tracker.Stop(perf.PhaseReloadingCaches)
			summary.Duration = time.Since(started)
			summary.PhaseDurations = tracker.All()
			return summary
		}
	} else {
		o.hasEverLoaded = true
	}
	tracker.Stop(perf.PhaseReloadingCaches)

	// Collecting
	tracker.Start(perf.PhaseCollecting)
	offers := o.collect(ctx, &summary)
	tracker.Stop(perf.PhaseCollecting)
	summary.OddsCollected = len(offers)

	// Normalizing
	tracker.Start(perf.PhaseNormalizing)
	result, err := o.normalizer.Normalize(ctx, offers)
	if err != nil {
		summary.Errors = append(summary.Errors, "normalize: "+err.Error())
	}
	summary.FootballInserted = len(result.FootballOdds)
	summary.NBAInserted = len(result.BasketballOdds)
	tracker.Stop(perf.PhaseNormalizing)

	// DetectingAlerts (football-only)
	tracker.Start(perf.PhaseDetectingAlerts)
	alertBatch := o.detector.Detect(ctx, result.FootballOdds)
	o.detector.InsertBatch(ctx, alertBatch)
	summary.AlertsCreated = len(alertBatch)
	tracker.Stop(perf.PhaseDetectingAlerts)

	// Cleaning
	tracker.Start(perf.PhaseCleaning)
	summary.MatchesCleaned = o.clean(ctx, &summary)
	tracker.Stop(perf.PhaseCleaning)

	// Publishing
	tracker.Start(perf.PhasePublishing)
	if err := o.publisher.Publish(ctx); err != nil {
		summary.Errors = append(summary.Errors, "publish: "+err.Error())
		if o.log != nil {
			o.log.Error("orchestrator: publish failed", "error", err)
		}
	} else {
		summary.JSONUploaded = true
	}
	tracker.Stop(perf.PhasePublishing)

	summary.Duration = time.Since(started)
	summary.PhaseDurations = tracker.All()

	if o.log != nil {
		o.log.Info("orchestrator: cycle complete",
			"duration", summary.Duration,
			"odds_collected", summary.OddsCollected,
			"football_inserted", summary.FootballInserted,
			"nba_inserted", summary.NBAInserted,
			"alerts_created", summary.AlertsCreated,
			"matches_cleaned", summary.MatchesCleaned,
			"json_uploaded", summary.JSONUploaded,
			"errors", len(summary.Errors))
	}

	return summary
}

// collect fans every Source out in parallel and gathers their offers.
// An individual Source failure is captured in the summary and does not
// abort the cycle.
func (o *Orchestrator) collect(ctx context.Context, summary *Summary) []models.RawOffer {
	if len(o.srcs) == 0 {
		return nil
	}

	type result struct {
		name   string
		offers []models.RawOffer
		err    error
	}

	results := make(chan result, len(o.srcs))
	var wg sync.WaitGroup

	for _, src := range o.srcs {
		src := src
		wg.Add(1)
		go func() {
			defer wg.Done()
			offers, err := src.Collect(ctx)
			results <- result{name: src.Name(), offers: offers, err: err}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []models.RawOffer
	for r := range results {
		if r.err != nil {
			summary.SourceFailures[r.name] = r.err.Error()
			if o.log != nil {
				o.log.Warn("orchestrator: source failed", "source", r.name, "error", r.err)
			}
			// A failed Source may still have returned partial offers.
		}
		all = append(all, r.offers...)
	}
	return all
}

// clean invokes the two cleanup routines and sums their per-sport counts.
func (o *Orchestrator) clean(ctx context.Context, summary *Summary) int {
	now := time.Now().UTC()
	total := 0

	footballCount, err := o.store.RetireStartedFootballMatches(ctx, now)
	if err != nil {
		summary.Errors = append(summary.Errors, "cleanup football: "+err.Error())
		if o.log != nil {
			o.log.Error("orchestrator: football cleanup failed", "error", err)
		}
	}
	total += footballCount

	basketballCount, err := o.store.RetireStartedBasketballMatches(ctx, now)
	if err != nil {
		summary.Errors = append(summary.Errors, "cleanup basketball: "+err.Error())
		if o.log != nil {
			o.log.Error("orchestrator: basketball cleanup failed", "error", err)
		}
	}
	total += basketballCount

	return total
}

// SetupSources calls Setup on every registered Source; called once at
// process start.
func (o *Orchestrator) SetupSources(ctx context.Context) {
	for _, src := range o.srcs {
		if err := src.Setup(ctx); err != nil && o.log != nil {
			o.log.Error("orchestrator: source setup failed", "source", src.Name(), "error", err)
		}
	}
}

// TeardownSources calls Teardown on every registered Source; safe to
// call even if Setup partially failed.
func (o *Orchestrator) TeardownSources(ctx context.Context) {
	for _, src := range o.srcs {
		if err := src.Teardown(ctx); err != nil && o.log != nil {
			o.log.Error("orchestrator: source teardown failed", "source", src.Name(), "error", err)
		}
	}
}
