package loader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"signalrelay/internal/logger"
	"signalrelay/internal/store"
	"signalrelay/internal/store/model"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// RosterFile is the on-disk roster layout.
type RosterFile struct {
	Settings    SettingsDef    `yaml:"settings"`
	Destination DestinationDef `yaml:"destination"`
	Channels    []ChannelDef   `yaml:"channels"`
	Authors     AuthorsDef     `yaml:"authors"`
	Trading     []TradingDef   `yaml:"trading"`
}

type SettingsDef struct {
	ClassifierEnabled bool `yaml:"classifier_enabled"`
}

// DestinationDef tells the delivery worker where to send messages.
type DestinationDef struct {
	Identifier      string `yaml:"identifier" json:"identifier"`
	DestinationType string `yaml:"destination_type" json:"destination_type"`
	UseTopics       bool   `yaml:"use_topics" json:"use_topics"`
}

type ChannelDef struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	URL               string `yaml:"url"`
	Enabled           *bool  `yaml:"enabled"`
	BypassParser      bool   `yaml:"bypass_parser"`
	MirrorAttachments *bool  `yaml:"mirror_attachments"`
	TopicID           string `yaml:"topic_id"`
}

type AuthorDef struct {
	Name  string `yaml:"name"`
	Notes string `yaml:"notes"`
}

type AuthorsDef struct {
	Banned  []AuthorDef `yaml:"banned"`
	Tracked []AuthorDef `yaml:"tracked"`
}

type TradingDef struct {
	ChannelPattern       string  `yaml:"channel_pattern"`
	Enabled              bool    `yaml:"enabled"`
	Chain                string  `yaml:"chain"`
	Allocation           float64 `yaml:"allocation"`
	StopLossPct          float64 `yaml:"stop_loss_pct"`
	TakeProfit1Pct       float64 `yaml:"take_profit_1_pct"`
	TakeProfit2Pct       float64 `yaml:"take_profit_2_pct"`
	TrailingStopEnabled  bool    `yaml:"trailing_stop_enabled"`
	TrailingStopPct      float64 `yaml:"trailing_stop_pct"`
	TimeBasedSellEnabled bool    `yaml:"time_based_sell_enabled"`
	TimeBasedSellMinutes int     `yaml:"time_based_sell_minutes"`
	Priority             int     `yaml:"priority"`
	SlippageBps          int     `yaml:"slippage_bps"`
}

// RosterSnapshot is the read-only view handed to request handlers.
type RosterSnapshot struct {
	Version           int64
	LoadedAt          time.Time
	ClassifierEnabled bool
	Destination       DestinationDef
	Channels          int
	TradingConfigs    int
}

type ChangeListener func(RosterSnapshot)

// Applier persists a validated roster.
type Applier interface {
	Replace(ctx context.Context, data store.RosterData) error
}

// ReloadCounter is the metrics hook for reload outcomes.
type ReloadCounter interface {
	RosterReload(ok bool)
}

// RosterLoader keeps the roster tables and the settings snapshot in sync with
// the roster file. It reloads on file events and on a fixed cadence; a reload
// that fails validation or persistence keeps the previous snapshot.
type RosterLoader struct {
	path    string
	v       *viper.Viper
	applier Applier
	counter ReloadCounter

	reloadMu sync.Mutex
	lastSum  [sha256.Size]byte

	mu        sync.RWMutex
	snapshot  RosterSnapshot
	listeners []ChangeListener
}

// NewRosterLoader loads the roster once and starts watching the file.
func NewRosterLoader(ctx context.Context, path string, applier Applier, counter ReloadCounter) (*RosterLoader, error) {
	l, err := newRosterLoader(ctx, path, applier, counter)
	if err != nil {
		return nil, err
	}
	l.v.OnConfigChange(func(evt fsnotify.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		l.refresh(ctx, "watch "+evt.Op.String())
	})
	l.v.WatchConfig()
	return l, nil
}

func newRosterLoader(ctx context.Context, path string, applier Applier, counter ReloadCounter) (*RosterLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("roster loader requires path")
	}
	if applier == nil {
		return nil, fmt.Errorf("roster loader requires an applier")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read roster failed: %w", err)
	}
	l := &RosterLoader{path: path, v: v, applier: applier, counter: counter}
	if _, err := l.reload(ctx, true); err != nil {
		return nil, err
	}
	return l, nil
}

// Run re-reads the roster every interval until ctx is done.
func (l *RosterLoader) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.refresh(ctx, "cadence")
		}
	}
}

func (l *RosterLoader) refresh(ctx context.Context, trigger string) {
	changed, err := l.reload(ctx, false)
	if err != nil {
		logger.Errorf("roster reload failed (%s): %v", trigger, err)
		return
	}
	if changed {
		l.notify()
	}
}

// Snapshot returns the current settings snapshot.
func (l *RosterLoader) Snapshot() RosterSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Subscribe registers fn and immediately delivers the current snapshot.
func (l *RosterLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := l.snapshot
	l.mu.Unlock()
	go safeCall(fn, snap)
}

func (l *RosterLoader) notify() {
	l.mu.RLock()
	snap := l.snapshot
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		go safeCall(fn, snap)
	}
}

func safeCall(fn ChangeListener, snap RosterSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("roster listener panic: %v", r)
		}
	}()
	fn(snap)
}

// reload applies the file when its content changed since the last successful
// load, or always when force is set.
func (l *RosterLoader) reload(ctx context.Context, force bool) (bool, error) {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()

	raw, err := os.ReadFile(l.path)
	if err != nil {
		l.count(false)
		return false, fmt.Errorf("read roster failed: %w", err)
	}
	sum := sha256.Sum256(raw)
	if !force && sum == l.lastSum {
		return false, nil
	}
	file, err := decodeRoster(raw)
	if err != nil {
		l.count(false)
		return false, err
	}
	if err := file.Validate(); err != nil {
		l.count(false)
		return false, fmt.Errorf("invalid roster %s: %w", filepath.Base(l.path), err)
	}
	data := file.RosterData()
	if err := l.applier.Replace(ctx, data); err != nil {
		l.count(false)
		return false, fmt.Errorf("apply roster failed: %w", err)
	}
	l.lastSum = sum

	l.mu.Lock()
	l.snapshot = RosterSnapshot{
		Version:           l.snapshot.Version + 1,
		LoadedAt:          time.Now(),
		ClassifierEnabled: file.Settings.ClassifierEnabled,
		Destination:       file.Destination,
		Channels:          len(data.Channels),
		TradingConfigs:    len(data.TradingConfigs),
	}
	version := l.snapshot.Version
	l.mu.Unlock()
	l.count(true)
	logger.Infof("roster v%d loaded from %s: %d channels, %d authors, %d trading configs",
		version, filepath.Base(l.path), len(data.Channels), len(data.Authors), len(data.TradingConfigs))
	return true, nil
}

func (l *RosterLoader) count(ok bool) {
	if l.counter != nil {
		l.counter.RosterReload(ok)
	}
}

func decodeRoster(raw []byte) (RosterFile, error) {
	var file RosterFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return RosterFile{}, fmt.Errorf("parse roster failed: %w", err)
	}
	return file, nil
}

// Validate reports the first structural problem in the roster.
func (f RosterFile) Validate() error {
	seen := make(map[string]struct{}, len(f.Channels))
	for i, ch := range f.Channels {
		id := strings.TrimSpace(ch.ID)
		if id == "" {
			return fmt.Errorf("channels[%d].id is required", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("channels[%d].id %q is duplicated", i, id)
		}
		seen[id] = struct{}{}
	}
	for list, entries := range map[string][]AuthorDef{"banned": f.Authors.Banned, "tracked": f.Authors.Tracked} {
		for i, a := range entries {
			if model.AuthorKey(a.Name) == "" {
				return fmt.Errorf("authors.%s[%d].name is required", list, i)
			}
		}
	}
	patterns := make(map[string]struct{}, len(f.Trading))
	for i, t := range f.Trading {
		key := strings.ToLower(strings.TrimSpace(t.ChannelPattern))
		switch {
		case key == "":
			return fmt.Errorf("trading[%d].channel_pattern is required", i)
		case t.Allocation < 0:
			return fmt.Errorf("trading[%d].allocation must be >= 0", i)
		case t.TakeProfit1Pct < 0 || t.TakeProfit2Pct < 0:
			return fmt.Errorf("trading[%d] take profit targets must be >= 0", i)
		case t.TakeProfit1Pct > 0 && t.TakeProfit2Pct > 0 && t.TakeProfit2Pct < t.TakeProfit1Pct:
			return fmt.Errorf("trading[%d].take_profit_2_pct must not be below take_profit_1_pct", i)
		case t.TrailingStopPct < 0 || t.TrailingStopPct >= 100:
			return fmt.Errorf("trading[%d].trailing_stop_pct must be in [0,100)", i)
		case t.TimeBasedSellMinutes < 0:
			return fmt.Errorf("trading[%d].time_based_sell_minutes must be >= 0", i)
		case t.SlippageBps < 0 || t.SlippageBps > 10000:
			return fmt.Errorf("trading[%d].slippage_bps must be in [0,10000]", i)
		}
		if _, dup := patterns[key]; dup {
			return fmt.Errorf("trading[%d].channel_pattern %q is duplicated", i, t.ChannelPattern)
		}
		patterns[key] = struct{}{}
	}
	return nil
}

// RosterData converts the file into store rows. Author names that normalize
// to the same key collapse into one entry.
func (f RosterFile) RosterData() store.RosterData {
	var data store.RosterData
	for _, ch := range f.Channels {
		name := strings.TrimSpace(ch.Name)
		if name == "" {
			name = strings.TrimSpace(ch.ID)
		}
		data.Channels = append(data.Channels, model.ChannelModel{
			ID:                strings.TrimSpace(ch.ID),
			Name:              name,
			URL:               strings.TrimSpace(ch.URL),
			Enabled:           boolOr(ch.Enabled, true),
			BypassParser:      ch.BypassParser,
			MirrorAttachments: boolOr(ch.MirrorAttachments, true),
			TopicID:           strings.TrimSpace(ch.TopicID),
		})
	}
	appendAuthors := func(list model.AuthorList, entries []AuthorDef) {
		seen := make(map[string]struct{}, len(entries))
		for _, a := range entries {
			key := model.AuthorKey(a.Name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			data.Authors = append(data.Authors, model.AuthorEntryModel{
				List:        list,
				NameKey:     key,
				DisplayName: strings.TrimSpace(a.Name),
				Notes:       a.Notes,
			})
		}
	}
	appendAuthors(model.AuthorListBanned, f.Authors.Banned)
	appendAuthors(model.AuthorListTracked, f.Authors.Tracked)
	for _, t := range f.Trading {
		data.TradingConfigs = append(data.TradingConfigs, model.TradingConfigModel{
			ChannelPattern:       strings.TrimSpace(t.ChannelPattern),
			Enabled:              t.Enabled,
			Chain:                strings.ToLower(strings.TrimSpace(t.Chain)),
			Allocation:           t.Allocation,
			StopLossPct:          t.StopLossPct,
			TakeProfit1Pct:       t.TakeProfit1Pct,
			TakeProfit2Pct:       t.TakeProfit2Pct,
			TrailingStopEnabled:  t.TrailingStopEnabled,
			TrailingStopPct:      t.TrailingStopPct,
			TimeBasedSellEnabled: t.TimeBasedSellEnabled,
			TimeBasedSellMinutes: t.TimeBasedSellMinutes,
			Priority:             t.Priority,
			SlippageBps:          t.SlippageBps,
		})
	}
	return data
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
