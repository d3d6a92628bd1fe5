package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"signalrelay/internal/store"
	"signalrelay/internal/store/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseRoster = `
settings:
  classifier_enabled: true
destination:
  identifier: "-100200300"
  destination_type: group
  use_topics: true
channels:
  - id: "111"
    name: alpha-calls
    topic_id: "7"
  - id: "222"
    name: raw-feed
    bypass_parser: true
    mirror_attachments: false
authors:
  banned:
    - name: Spammer
    - name: "  spammer "
  tracked:
    - name: Whale
      notes: always relay
trading:
  - channel_pattern: "alpha*"
    enabled: true
    allocation: 0.5
    stop_loss_pct: -30
    take_profit_1_pct: 100
    take_profit_2_pct: 200
`

type fakeApplier struct {
	mu    sync.Mutex
	calls []store.RosterData
	err   error
}

func (f *fakeApplier) Replace(_ context.Context, data store.RosterData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, data)
	return nil
}

func (f *fakeApplier) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeApplier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type reloadCounter struct {
	mu       sync.Mutex
	ok, fail int
}

func (c *reloadCounter) RosterReload(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.ok++
	} else {
		c.fail++
	}
}

func writeRoster(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func newLoader(t *testing.T, body string) (*RosterLoader, *fakeApplier, *reloadCounter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.yaml")
	writeRoster(t, path, body)
	applier := &fakeApplier{}
	counter := &reloadCounter{}
	l, err := newRosterLoader(context.Background(), path, applier, counter)
	require.NoError(t, err)
	return l, applier, counter, path
}

func TestInitialLoadBuildsSnapshotAndRows(t *testing.T) {
	l, applier, counter, _ := newLoader(t, baseRoster)

	snap := l.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	assert.True(t, snap.ClassifierEnabled)
	assert.Equal(t, "-100200300", snap.Destination.Identifier)
	assert.True(t, snap.Destination.UseTopics)
	assert.Equal(t, 2, snap.Channels)

	require.Equal(t, 1, applier.count())
	data := applier.calls[0]
	require.Len(t, data.Channels, 2)
	assert.True(t, data.Channels[0].Enabled)
	assert.True(t, data.Channels[0].MirrorAttachments)
	assert.False(t, data.Channels[1].MirrorAttachments)
	assert.Len(t, data.Authors, 2, "duplicate banned names collapse")
	assert.Equal(t, model.AuthorListTracked, data.Authors[1].List)
	require.Len(t, data.TradingConfigs, 1)
	assert.Equal(t, -30.0, data.TradingConfigs[0].StopLossPct)
	assert.Equal(t, 1, counter.ok)
}

func TestFailedReloadKeepsPreviousSnapshot(t *testing.T) {
	l, applier, counter, path := newLoader(t, baseRoster)

	writeRoster(t, path, "settings:\n  classifier_enabled: false\n  surprise: 1\n")
	l.refresh(context.Background(), "test")
	assert.True(t, l.Snapshot().ClassifierEnabled)
	assert.Equal(t, int64(1), l.Snapshot().Version)

	writeRoster(t, path, "channels:\n  - name: missing-id\n")
	l.refresh(context.Background(), "test")
	assert.Equal(t, int64(1), l.Snapshot().Version)

	writeRoster(t, path, "settings:\n  classifier_enabled: false\n")
	applier.fail(errors.New("database is locked"))
	l.refresh(context.Background(), "test")
	assert.True(t, l.Snapshot().ClassifierEnabled)
	assert.Equal(t, 3, counter.fail)

	applier.fail(nil)
	l.refresh(context.Background(), "test")
	assert.False(t, l.Snapshot().ClassifierEnabled)
	assert.Equal(t, int64(2), l.Snapshot().Version)
}

func TestUnchangedFileIsNotReapplied(t *testing.T) {
	l, applier, _, _ := newLoader(t, baseRoster)
	l.refresh(context.Background(), "cadence")
	l.refresh(context.Background(), "cadence")
	assert.Equal(t, 1, applier.count())
	assert.Equal(t, int64(1), l.Snapshot().Version)
}

func TestSubscribeReceivesSnapshot(t *testing.T) {
	l, _, _, path := newLoader(t, baseRoster)
	got := make(chan RosterSnapshot, 4)
	l.Subscribe(func(s RosterSnapshot) { got <- s })

	select {
	case s := <-got:
		assert.Equal(t, int64(1), s.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	writeRoster(t, path, "settings:\n  classifier_enabled: false\n")
	l.refresh(context.Background(), "test")
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-got:
			if s.Version >= 2 {
				assert.False(t, s.ClassifierEnabled)
				return
			}
		case <-deadline:
			t.Fatal("no snapshot after reload")
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	l, _, _, _ := newLoader(t, baseRoster)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, 10*time.Millisecond) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestValidateRejectsBadTradingRows(t *testing.T) {
	cases := map[string]RosterFile{
		"empty pattern":  {Trading: []TradingDef{{}}},
		"dup pattern":    {Trading: []TradingDef{{ChannelPattern: "A"}, {ChannelPattern: "a"}}},
		"trailing 100":   {Trading: []TradingDef{{ChannelPattern: "a", TrailingStopPct: 100}}},
		"tp2 below tp1":  {Trading: []TradingDef{{ChannelPattern: "a", TakeProfit1Pct: 50, TakeProfit2Pct: 20}}},
		"slippage":       {Trading: []TradingDef{{ChannelPattern: "a", SlippageBps: 20000}}},
		"blank author":   {Authors: AuthorsDef{Tracked: []AuthorDef{{Name: " "}}}},
		"dup channel id": {Channels: []ChannelDef{{ID: "1"}, {ID: "1"}}},
	}
	for name, file := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, file.Validate())
		})
	}
}

func TestWatchPicksUpFileChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	writeRoster(t, path, baseRoster)
	l, err := NewRosterLoader(context.Background(), path, &fakeApplier{}, nil)
	require.NoError(t, err)

	writeRoster(t, path, "settings:\n  classifier_enabled: false\n")
	assert.Eventually(t, func() bool {
		return !l.Snapshot().ClassifierEnabled
	}, 5*time.Second, 20*time.Millisecond)
}

func TestMissingFileFails(t *testing.T) {
	_, err := NewRosterLoader(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), &fakeApplier{}, nil)
	assert.Error(t, err)
}
