package gormstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"signalrelay/internal/store"
	"signalrelay/internal/store/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	st, err := NewGormStore(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newMessage(fingerprint string, created time.Time) *model.QueuedMessageModel {
	return &model.QueuedMessageModel{
		ID:            uuid.NewString(),
		Fingerprint:   fingerprint,
		ChannelID:     "chan-1",
		AuthorName:    "alice",
		MessageText:   "hello",
		OriginalText:  "hello",
		Status:        model.MessageStatusPending,
		CreatedAtUnix: created.UnixMilli(),
		UpdatedAtUnix: created.UnixMilli(),
	}
}

func TestInsertIfAbsentIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	ok, err := st.Messages().InsertIfAbsent(ctx, newMessage("fp-1", now))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.Messages().InsertIfAbsent(ctx, newMessage("fp-1", now))
	require.NoError(t, err)
	assert.False(t, ok)

	msg, err := st.Messages().FindByFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.MessageText)
}

func TestAdvanceCursorIsMonotonic(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, st.Messages().AdvanceCursor(ctx, "chan-1", "fp-new", base))
	require.NoError(t, st.Messages().AdvanceCursor(ctx, "chan-1", "fp-old", base.Add(-time.Minute)))

	cur, err := st.Messages().Cursor(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, "fp-new", cur.LastFingerprint)
	assert.Equal(t, base.UnixMilli(), cur.LastAcceptedUnix)

	require.NoError(t, st.Messages().AdvanceCursor(ctx, "chan-1", "fp-next", base.Add(time.Second)))
	cur, err = st.Messages().Cursor(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, "fp-next", cur.LastFingerprint)
}

func TestClaimPendingLeasesAreExclusive(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		_, err := st.Messages().InsertIfAbsent(ctx, newMessage(uuid.NewString(), base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := st.Messages().ClaimPending(ctx, store.Claim{
				Owner: uuid.NewString(), Limit: 4, RetryCap: 3, Lease: time.Minute, Now: time.Now(),
			})
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, row := range rows {
				seen[row.ID]++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 10)
	for id, n := range seen {
		assert.Equal(t, 1, n, "message %s claimed more than once", id)
	}
}

func TestClaimPendingSkipsIngestLeaseAndOrdersOldestFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	older := newMessage("fp-older", now.Add(-2*time.Minute))
	newer := newMessage("fp-newer", now.Add(-time.Minute))
	held := newMessage("fp-held", now.Add(-3*time.Minute))
	held.LeaseOwner = "ingest"
	held.LeaseUntilUnix = now.Add(time.Minute).UnixMilli()
	for _, m := range []*model.QueuedMessageModel{newer, older, held} {
		_, err := st.Messages().InsertIfAbsent(ctx, m)
		require.NoError(t, err)
	}

	rows, err := st.Messages().ClaimPending(ctx, store.Claim{Owner: "w1", Limit: 10, RetryCap: 3, Lease: time.Minute, Now: now})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "fp-older", rows[0].Fingerprint)
	assert.Equal(t, "fp-newer", rows[1].Fingerprint)

	rows, err = st.Messages().ClaimPending(ctx, store.Claim{Owner: "w2", Limit: 10, RetryCap: 3, Lease: time.Minute, Now: now})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = st.Messages().ClaimPending(ctx, store.Claim{Owner: "w3", Limit: 10, RetryCap: 3, Lease: time.Minute, Now: now.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestMarkFailedClampsRetryAndExhausts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	msg := newMessage("fp-fail", time.Now())
	_, err := st.Messages().InsertIfAbsent(ctx, msg)
	require.NoError(t, err)

	res, err := st.Messages().MarkFailed(ctx, msg.ID, "boom", 3, time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusPending, res.Message.Status)
	assert.Equal(t, 1, res.Message.RetryCount)
	assert.False(t, res.Exhausted)

	_, err = st.Messages().MarkFailed(ctx, msg.ID, "boom", 3, time.Now())
	require.NoError(t, err)
	res, err = st.Messages().MarkFailed(ctx, msg.ID, "boom", 3, time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusFailed, res.Message.Status)
	assert.True(t, res.Exhausted)

	res, err = st.Messages().MarkFailed(ctx, msg.ID, "again", 3, time.Now())
	require.NoError(t, err)
	assert.False(t, res.Exhausted)
	stored, err := st.Messages().Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)

	queue, err := st.Messages().ReviewQueue(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, queue, 1)

	require.NoError(t, st.Messages().Approve(ctx, msg.ID, 3, time.Now()))
	stored, err = st.Messages().Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusPending, stored.Status)
	assert.Zero(t, stored.RetryCount)
}

func TestOperatorTransitions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	msg := newMessage("fp-op", time.Now())
	_, err := st.Messages().InsertIfAbsent(ctx, msg)
	require.NoError(t, err)

	assert.ErrorIs(t, st.Messages().Approve(ctx, msg.ID, 3, time.Now()), store.ErrInvalidTransition)
	require.NoError(t, st.Messages().MarkSent(ctx, msg.ID, time.Now()))
	require.NoError(t, st.Messages().MarkSent(ctx, msg.ID, time.Now()))
	assert.ErrorIs(t, st.Messages().Reject(ctx, msg.ID, time.Now()), store.ErrInvalidTransition)
	assert.ErrorIs(t, st.Messages().Reject(ctx, "missing", time.Now()), store.ErrNotFound)

	require.NoError(t, st.Messages().Delete(ctx, msg.ID))
	assert.ErrorIs(t, st.Messages().Delete(ctx, msg.ID), store.ErrNotFound)
}

func newTrade(contract string, created time.Time) *model.TradeModel {
	return &model.TradeModel{
		ID:              uuid.NewString(),
		ContractAddress: contract,
		Status:          model.TradeStatusPendingBuy,
		Allocation:      1,
		RemainingPct:    100,
		CreatedAtUnix:   created.UnixMilli(),
		UpdatedAtUnix:   created.UnixMilli(),
	}
}

func TestCreateGuardedRejectsWithinWindow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	ok, err := st.Trades().CreateGuarded(ctx, newTrade("mint-a", now), 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.Trades().CreateGuarded(ctx, newTrade("mint-a", now.Add(time.Minute)), 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = st.Trades().CreateGuarded(ctx, newTrade("mint-b", now.Add(time.Minute)), 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.Trades().CreateGuarded(ctx, newTrade("mint-a", now.Add(6*time.Minute)), 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	trades, err := st.Trades().List(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, trades, 3)
}

func TestTransitionAndRecordPrice(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	trade := newTrade("mint-c", time.Now())
	_, err := st.Trades().CreateGuarded(ctx, trade, time.Minute)
	require.NoError(t, err)

	_, err = st.Trades().RecordPrice(ctx, trade.ID, 1.5, time.Now())
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	err = st.Trades().Transition(ctx, store.TradeUpdate{
		ID:     trade.ID,
		From:   []model.TradeStatus{model.TradeStatusPendingBuy},
		Fields: map[string]interface{}{"status": model.TradeStatusBought, "entry_price": 1.0, "highest_price": 1.0},
	})
	require.NoError(t, err)

	err = st.Trades().Transition(ctx, store.TradeUpdate{
		ID:     trade.ID,
		From:   []model.TradeStatus{model.TradeStatusPendingBuy},
		Fields: map[string]interface{}{"status": model.TradeStatusFailed},
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	got, err := st.Trades().RecordPrice(ctx, trade.ID, 2.0, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.HighestPrice)
	got, err = st.Trades().RecordPrice(ctx, trade.ID, 1.2, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1.2, got.CurrentPrice)
	assert.Equal(t, 2.0, got.HighestPrice)
}

func TestSellSingletonIndex(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	newSell := func() *model.SellRequestModel {
		return &model.SellRequestModel{ID: uuid.NewString(), TradeID: "trade-1", Percentage: 100, CreatedAtUnix: time.Now().UnixMilli()}
	}

	first := newSell()
	ok, err := st.Sells().InsertPending(ctx, first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.Sells().InsertPending(ctx, newSell())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.Sells().MarkExecuted(ctx, first.ID, "tx-1", 0.7, time.Now()))
	assert.ErrorIs(t, st.Sells().MarkFailed(ctx, first.ID, "late", time.Now()), store.ErrInvalidTransition)

	ok, err = st.Sells().InsertPending(ctx, newSell())
	require.NoError(t, err)
	assert.True(t, ok)

	total, err := st.Sells().SumExecuted(ctx, "trade-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, total, 1e-9)
}

func TestRosterReplace(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	data := store.RosterData{
		Channels: []model.ChannelModel{{ID: "c1", Name: "alpha", Enabled: true}},
		Authors: []model.AuthorEntryModel{
			{List: model.AuthorListBanned, DisplayName: "Spammer"},
			{List: model.AuthorListTracked, DisplayName: "Whale"},
		},
		TradingConfigs: []model.TradingConfigModel{{ChannelPattern: "alpha*", Enabled: true, Allocation: 0.5}},
	}
	require.NoError(t, st.Roster().Replace(ctx, data))
	require.NoError(t, st.Messages().AdvanceCursor(ctx, "c1", "fp-9", time.Now()))

	banned, err := st.Roster().OnList(ctx, model.AuthorListBanned, "  spammer ")
	require.NoError(t, err)
	assert.True(t, banned)

	channels, err := st.Roster().Channels(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "fp-9", channels[0].LastFingerprint)

	data.Authors = nil
	require.NoError(t, st.Roster().Replace(ctx, data))
	banned, err = st.Roster().OnList(ctx, model.AuthorListBanned, "spammer")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestWithinTxRollsBack(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	msg := newMessage("fp-tx", time.Now())
	err := st.WithinTx(ctx, func(tx store.Store) error {
		if _, err := tx.Messages().InsertIfAbsent(ctx, msg); err != nil {
			return err
		}
		return store.ErrInvalidTransition
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
	_, err = st.Messages().Get(ctx, msg.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAbandonOnlyRemovesOwnIngestRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	msg := newMessage("fp-1", now)
	msg.LeaseOwner = "ingest-a"
	msg.LeaseUntilUnix = now.Add(30 * time.Second).UnixMilli()
	ok, err := st.Messages().InsertIfAbsent(ctx, msg)
	require.NoError(t, err)
	require.True(t, ok)

	removed, err := st.Messages().Abandon(ctx, msg.ID, "ingest-b")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = st.Messages().Abandon(ctx, msg.ID, "ingest-a")
	require.NoError(t, err)
	assert.True(t, removed)

	ok, err = st.Messages().InsertIfAbsent(ctx, newMessage("fp-1", now))
	require.NoError(t, err)
	assert.True(t, ok)
}
