// Package subpool orchestrates one aggregation run:
// select -> fetch -> ingest -> validate -> score -> persist -> emit.
package subpool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"subpool/internal/shared/logger"
	"subpool/internal/shared/types"
	"subpool/subpool/emitter"
	"subpool/subpool/fetcher"
	"subpool/subpool/ingest"
	"subpool/subpool/model"
	"subpool/subpool/scorer"
	"subpool/subpool/selector"
	"subpool/subpool/storage"
	"subpool/subpool/validator"
)

// Manager wires the pipeline components for one run. The store is touched
// only from here, exactly once per run, after validation completes.
type Manager struct {
	cfg       *types.Config
	store     *storage.FileStorage
	fetcher   *fetcher.Fetcher
	ingestor  *ingest.Ingestor
	validator *validator.Validator
	scorer    *scorer.Scorer
	selector  *selector.Selector
	emitter   *emitter.Emitter
}

func NewManager(cfg *types.Config) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     storage.NewFileStorage(cfg.StoreConf.DataDir),
		fetcher:   fetcher.New(cfg.FetcherConf),
		ingestor:  ingest.New(),
		validator: validator.New(cfg.ValidatorConf, cfg.OutputConf.MaxNodes),
		scorer:    scorer.New(cfg.ValidatorConf.MaxLatencyMS),
		selector:  selector.NewForDay(time.Now()),
		emitter:   emitter.New(emitter.NewClashWriter(cfg.OutputConf)),
	}
}

// Run executes one full aggregation cycle. A returned error is run-fatal
// (missing subscription list, cancellation, failed persistence); every
// per-item and per-component failure is absorbed and scored instead.
func (m *Manager) Run(ctx context.Context) error {
	l := logger.WithComponent("Manager")

	urls, err := ReadSubscriptionList(m.cfg.SubscriptionFile)
	if err != nil {
		return fmt.Errorf("subscription list: %w", err)
	}
	if err := m.store.Load(); err != nil {
		return err
	}
	m.store.PruneAbsent(urls)
	states := m.store.Upsert(urls)

	selected := m.selector.Select(states, m.store.RunNumber())
	selectedURLs := make([]string, len(selected))
	for i, s := range selected {
		selectedURLs[i] = s.URL
	}

	results := m.fetcher.FetchAll(ctx, selectedURLs)
	if m.cfg.StoreConf.KeepBodies {
		m.saveBodies(results)
	}

	nodes, tallies := m.ingestor.Ingest(results)
	report, ranked := m.validator.Validate(ctx, nodes)

	// A cancelled run leaves no partial state writes.
	if ctx.Err() != nil {
		l.Warn().Msg("Run cancelled; skipping store update and artifacts.")
		return ctx.Err()
	}

	m.applyScores(selected, tallies, report)
	if err := m.store.Persist(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	if err := m.emitter.Emit(ranked, report); err != nil {
		l.Error().Err(err).Msg("Artifact writing failed.")
	}

	m.logSummary(selected, report)
	return nil
}

// applyScores folds this run's outcome into every selected subscription.
func (m *Manager) applyScores(selected []*model.SubscriptionState, tallies map[string]*ingest.Tally, report *model.ValidationReport) {
	now := time.Now().UTC()
	for _, sub := range selected {
		entry := model.HistoryEntry{Timestamp: now}
		if tally, ok := tallies[sub.URL]; ok {
			entry.FetchOK = tally.FetchOK
			entry.TotalNodes = tally.Parsed
		}
		if stats, ok := report.PerSubscription[sub.URL]; ok {
			entry.ValidNodes = stats.Valid
			entry.AvgLatencyMS = stats.AvgLatencyMS
		}

		m.store.RecordRun(sub.URL, entry)
		oldScore := sub.Score
		sub.Score = m.scorer.Score(sub.History)
		sub.Tier = scorer.TierOf(sub.Score)
		if sub.Score != oldScore {
			m.store.AppendScoreTransition(sub.URL, oldScore, sub.Score)
		}
	}
}

// saveBodies keeps raw fetched bodies on disk for operator inspection.
func (m *Manager) saveBodies(results []*model.FetchResult) {
	l := logger.WithComponent("Manager")
	// "subscriptions" is taken by the state file; raw bodies get their own dir.
	dir := filepath.Join(m.cfg.StoreConf.DataDir, "bodies")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		l.Warn().Err(err).Msg("Cannot create bodies dir.")
		return
	}
	for i, res := range results {
		if res.Err != nil {
			continue
		}
		name := fmt.Sprintf("sub_%03d.txt", i+1)
		if err := os.WriteFile(filepath.Join(dir, name), res.Body, 0o644); err != nil {
			l.Warn().Err(err).Str("file", name).Msg("Cannot save body.")
		}
	}
}

// logSummary prints the human-readable run summary: counts, success rate and
// the best and worst subscriptions by score.
func (m *Manager) logSummary(selected []*model.SubscriptionState, report *model.ValidationReport) {
	l := logger.WithComponent("Summary")
	l.Info().
		Int("subscriptions", len(selected)).
		Int("nodes_parsed", report.TotalNodes).
		Int("nodes_valid", report.ValidNodes).
		Float64("success_rate", report.SuccessRate()).
		Msg("Run complete.")

	ranked := append([]*model.SubscriptionState(nil), selected...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	top := ranked
	if len(top) > 5 {
		top = top[:5]
	}
	for _, s := range top {
		l.Info().Str("name", s.Name).Int("score", s.Score).Str("tier", string(s.Tier)).Msg("Top subscription.")
	}
	if len(ranked) > 5 {
		bottom := ranked[len(ranked)-5:]
		if len(ranked) < 10 {
			bottom = ranked[5:]
		}
		for _, s := range bottom {
			l.Info().Str("name", s.Name).Int("score", s.Score).Str("tier", string(s.Tier)).Msg("Bottom subscription.")
		}
	}
}

// Report prints the current store summary without running the pipeline.
func (m *Manager) Report() error {
	if err := m.store.Load(); err != nil {
		return err
	}
	subs := m.store.All()
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].Score > subs[j].Score })

	fmt.Printf("%-30s %5s %-10s %8s %5s\n", "NAME", "SCORE", "TIER", "USED", "PROT")
	for _, s := range subs {
		fmt.Printf("%-30s %5d %-10s %8d %5d\n", s.Name, s.Score, s.Tier, s.UseCount, s.Protection)
	}
	return nil
}

// ReadSubscriptionList reads the newline-delimited URL list. Empty lines and
// lines whose first non-whitespace character is '#' are skipped. A missing
// or unreadable file is run-fatal.
func ReadSubscriptionList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}
