// Package storage persists subscription state, the score-transition log and
// the IP-geo cache as human-inspectable JSON text files. Writes go to a temp
// sibling first and are renamed into place, so a crash leaves either the
// pre-run or the post-run snapshot on disk.
package storage

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"subpool/internal/shared/logger"
	"subpool/subpool/model"
)

const (
	subscriptionsFile = "subscriptions"
	scoreHistoryFile  = "score_history"
	ipCacheFile       = "ip_cache"

	scoreHistoryLimit = 512
)

// database is the on-disk shape of the subscriptions file. Field names are
// stable: they are part of the external interface.
type database struct {
	Version       string                              `json:"version"`
	RunNumber     int                                 `json:"run_number"`
	LastUpdate    time.Time                           `json:"last_update"`
	Subscriptions map[string]*model.SubscriptionState `json:"subscriptions"`
}

// ScoreTransition is one entry of the append-only score log.
type ScoreTransition struct {
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	OldScore  int       `json:"old_score"`
	NewScore  int       `json:"new_score"`
}

// GeoInfo is the cached geolocation for a host key. The core only passes it
// through; the external renamer is the consumer.
type GeoInfo struct {
	CountryCode string `json:"country_code"`
	City        string `json:"city"`
}

// FileStorage is the single Store implementation. It is single-writer (the
// run loop); only the IP-geo cache may be read concurrently.
type FileStorage struct {
	dir string

	db          database
	transitions []ScoreTransition

	geoMu sync.RWMutex
	geo   map[string]GeoInfo
}

// NewFileStorage creates a store rooted at dir. Nothing is read until Load.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{
		dir: dir,
		db:  database{Version: "1.0", Subscriptions: map[string]*model.SubscriptionState{}},
		geo: map[string]GeoInfo{},
	}
}

// Load reads all state files. Missing files mean empty state; a corrupt file
// is logged and replaced with empty state, never a failed run.
func (fs *FileStorage) Load() error {
	l := logger.WithComponent("Store")
	if err := os.MkdirAll(fs.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if ok := fs.loadJSON(subscriptionsFile, &fs.db); !ok {
		fs.db = database{Version: "1.0"}
	}
	if fs.db.Subscriptions == nil {
		fs.db.Subscriptions = map[string]*model.SubscriptionState{}
	}
	if !fs.loadJSON(scoreHistoryFile, &fs.transitions) {
		fs.transitions = nil
	}
	if !fs.loadJSON(ipCacheFile, &fs.geo) || fs.geo == nil {
		fs.geo = map[string]GeoInfo{}
	}

	l.Info().Int("subscriptions", len(fs.db.Subscriptions)).Int("run_number", fs.db.RunNumber).Msg("State loaded.")
	return nil
}

// loadJSON reads one state file into target. It returns false when the file
// is absent or unreadable as JSON.
func (fs *FileStorage) loadJSON(name string, target any) bool {
	l := logger.WithComponent("Store")
	path := filepath.Join(fs.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.Warn().Err(err).Str("file", name).Msg("State file unreadable, proceeding with empty state.")
		}
		return false
	}
	if err := json.Unmarshal(data, target); err != nil {
		l.Warn().Err(err).Str("file", name).Msg("State file corrupt, proceeding with empty state.")
		return false
	}
	return true
}

// RunNumber returns the number of completed runs before this one.
func (fs *FileStorage) RunNumber() int {
	return fs.db.RunNumber
}

// Subscriptions returns the states for the given URLs in the same order,
// skipping unknown ones.
func (fs *FileStorage) Subscriptions(urls []string) []*model.SubscriptionState {
	out := make([]*model.SubscriptionState, 0, len(urls))
	for _, u := range urls {
		if s, ok := fs.db.Subscriptions[u]; ok {
			out = append(out, s)
		}
	}
	return out
}

// All returns every known subscription state in unspecified order.
func (fs *FileStorage) All() []*model.SubscriptionState {
	out := make([]*model.SubscriptionState, 0, len(fs.db.Subscriptions))
	for _, s := range fs.db.Subscriptions {
		out = append(out, s)
	}
	return out
}

// Upsert adds previously-unseen URLs with a fresh protection counter and
// returns the states for all given URLs in list order.
func (fs *FileStorage) Upsert(urls []string) []*model.SubscriptionState {
	l := logger.WithComponent("Store")
	added := 0
	for _, u := range urls {
		if _, ok := fs.db.Subscriptions[u]; ok {
			continue
		}
		fs.db.Subscriptions[u] = &model.SubscriptionState{
			URL:        u,
			Name:       displayName(u),
			CreatedAt:  time.Now().UTC(),
			// Tier tracks the score (0 until first scoring); the protection
			// counter is what guarantees selection for the first runs.
			Protection: model.NewSubscriptionProtection,
			Tier:       model.TierSuspended,
		}
		added++
	}
	if added > 0 {
		l.Info().Int("added", added).Msg("New subscriptions registered.")
	}
	return fs.Subscriptions(urls)
}

// PruneAbsent removes subscriptions missing from the URL list, but only those
// that have already been through at least one run; an entry added and removed
// within the same cycle survives one more.
func (fs *FileStorage) PruneAbsent(urls []string) int {
	l := logger.WithComponent("Store")
	keep := make(map[string]bool, len(urls))
	for _, u := range urls {
		keep[u] = true
	}
	removed := 0
	for u, s := range fs.db.Subscriptions {
		if !keep[u] && s.UseCount > 0 {
			delete(fs.db.Subscriptions, u)
			removed++
		}
	}
	if removed > 0 {
		l.Info().Int("removed", removed).Msg("Pruned subscriptions absent from the input list.")
	}
	return removed
}

// RecordRun appends one history entry for a subscription, capping the history
// at the retention limit.
func (fs *FileStorage) RecordRun(url string, entry model.HistoryEntry) {
	s, ok := fs.db.Subscriptions[url]
	if !ok {
		return
	}
	s.History = append(s.History, entry)
	if len(s.History) > model.HistoryLimit {
		s.History = s.History[len(s.History)-model.HistoryLimit:]
	}
	if entry.FetchOK {
		s.SuccessCount++
	}
}

// AppendScoreTransition logs a score change for the append-only history file.
func (fs *FileStorage) AppendScoreTransition(url string, oldScore, newScore int) {
	fs.transitions = append(fs.transitions, ScoreTransition{
		URL:       url,
		Timestamp: time.Now().UTC(),
		OldScore:  oldScore,
		NewScore:  newScore,
	})
	if len(fs.transitions) > scoreHistoryLimit {
		fs.transitions = fs.transitions[len(fs.transitions)-scoreHistoryLimit:]
	}
}

// GetIPGeo looks up a cached geolocation entry.
func (fs *FileStorage) GetIPGeo(key string) (GeoInfo, bool) {
	fs.geoMu.RLock()
	defer fs.geoMu.RUnlock()
	g, ok := fs.geo[key]
	return g, ok
}

// SetIPGeo stores a geolocation entry. Keys are written once per run.
func (fs *FileStorage) SetIPGeo(key string, info GeoInfo) {
	fs.geoMu.Lock()
	defer fs.geoMu.Unlock()
	fs.geo[key] = info
}

// Persist writes all state files atomically and advances the run counter.
// Every file is staged as a temp sibling first; renames happen only once all
// three writes succeed, so a failed persist leaves the previous snapshot
// intact across all files, never a mixture. JSON object keys serialize
// sorted, so the subscriptions file stays ordered alphabetically by URL and
// diffs stay small.
func (fs *FileStorage) Persist() error {
	fs.db.RunNumber++
	fs.db.LastUpdate = time.Now().UTC()

	fs.geoMu.RLock()
	defer fs.geoMu.RUnlock()

	files := []struct {
		name string
		data any
	}{
		{subscriptionsFile, &fs.db},
		{scoreHistoryFile, fs.transitions},
		{ipCacheFile, fs.geo},
	}

	tmps := make([]string, 0, len(files))
	discard := func() {
		for _, tmp := range tmps {
			os.Remove(tmp)
		}
	}
	for _, f := range files {
		tmp, err := fs.stageJSON(f.name, f.data)
		if err != nil {
			discard()
			fs.db.RunNumber--
			return err
		}
		tmps = append(tmps, tmp)
	}
	for i, f := range files {
		if err := os.Rename(tmps[i], filepath.Join(fs.dir, f.name)); err != nil {
			discard()
			if i == 0 {
				fs.db.RunNumber--
			}
			return fmt.Errorf("rename %s: %w", f.name, err)
		}
	}
	return nil
}

// stageJSON writes one state file to its temp sibling and returns the temp
// path.
func (fs *FileStorage) stageJSON(name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	tmp := filepath.Join(fs.dir, name) + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return tmp, nil
}

// displayName derives the subscription's display name from its URL host.
func displayName(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}
