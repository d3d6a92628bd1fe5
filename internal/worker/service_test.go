package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"signalrelay/internal/command"
	"signalrelay/internal/config/loader"
	"signalrelay/internal/events"
	"signalrelay/internal/relay"
	"signalrelay/internal/routing"
	"signalrelay/internal/store"
	"signalrelay/internal/store/gormstore"
	"signalrelay/internal/store/model"
	"signalrelay/internal/trading"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

type staticRoster struct {
	snap loader.RosterSnapshot
}

func (r staticRoster) Snapshot() loader.RosterSnapshot { return r.snap }

type stubClassifier struct{}

func (stubClassifier) Classify(context.Context, string) (string, string, error) {
	return "signal", "", nil
}

type eventLog struct {
	evts []events.Event
}

func (l *eventLog) Record(_ context.Context, evt events.Event) { l.evts = append(l.evts, evt) }

type fixture struct {
	store   *gormstore.GormStore
	svc     *Service
	journal *eventLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := gormstore.NewGormStore(filepath.Join(t.TempDir(), "worker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Roster().Replace(context.Background(), store.RosterData{
		Channels: []model.ChannelModel{
			{ID: "c1", Name: "alpha-calls", Enabled: true, MirrorAttachments: true},
		},
		TradingConfigs: []model.TradingConfigModel{{
			ChannelPattern: "alpha*",
			Enabled:        true,
			Allocation:     2,
			StopLossPct:    -30,
			TakeProfit1Pct: 100,
			TakeProfit2Pct: 200,
			SlippageBps:    300,
		}},
	}))

	journal := &eventLog{}
	ledger := trading.NewLedger(trading.LedgerDeps{Store: st, Journal: journal}, trading.Options{AutoExit: true})
	relaySvc := relay.NewService(relay.Deps{
		Store:   st,
		Router:  routing.NewPolicy(st.Roster(), stubClassifier{}),
		Trades:  ledger,
		Journal: journal,
	}, relay.Options{RetryCap: 2})
	svc := NewService(Deps{
		Relay:   relaySvc,
		Trades:  ledger,
		Exits:   ledger.Sells(),
		Journal: journal,
		Status:  st.Status(),
		Roster: staticRoster{snap: loader.RosterSnapshot{
			ClassifierEnabled: true,
			Destination:       loader.DestinationDef{Identifier: "-100123", DestinationType: "group", UseTopics: true},
		}},
	})
	return &fixture{store: st, svc: svc, journal: journal}
}

// run decodes and dispatches like the HTTP layer does.
func (f *fixture) run(t *testing.T, action, data string) command.Reply {
	t.Helper()
	cmd, err := command.Decode(action, json.RawMessage(data))
	require.NoError(t, err)
	out, err := command.Dispatch(context.Background(), f.svc, cmd)
	require.NoError(t, err)
	return out
}

func (f *fixture) runErr(t *testing.T, action, data string) error {
	t.Helper()
	cmd, err := command.Decode(action, json.RawMessage(data))
	require.NoError(t, err)
	_, err = command.Dispatch(context.Background(), f.svc, cmd)
	return err
}

func TestMessageLifecycle(t *testing.T) {
	f := newFixture(t)

	out := f.run(t, "push_message", `{"channel_id":"c1","fingerprint":"fp1","message_text":"gm","author_name":"bob","attachment_urls":["https://cdn/a.png"]}`)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, false, out["duplicate"])
	assert.Equal(t, "signal", out["signal_type"])
	id, _ := out["message_id"].(string)
	require.NotEmpty(t, id)

	dup := f.run(t, "push_message", `{"channel_id":"c1","fingerprint":"fp1","message_text":"gm"}`)
	assert.Equal(t, true, dup["duplicate"])
	assert.Equal(t, id, dup["message_id"])

	pending := f.run(t, "get_pending_messages", `{"limit":5,"worker_id":"tg-1"}`)
	msgs := pending["messages"].([]messageView)
	require.Len(t, msgs, 1)
	assert.Equal(t, "alpha-calls", msgs[0].ChannelName)
	assert.True(t, msgs[0].MirrorAttachments)
	assert.Equal(t, []string{"https://cdn/a.png"}, msgs[0].AttachmentURLs)

	f.run(t, "mark_sent", `{"message_id":"`+id+`"}`)
	assert.Empty(t, f.run(t, "get_pending_messages", `{}`)["messages"])

	channels := f.run(t, "get_channels", `{}`)["channels"].([]channelView)
	require.Len(t, channels, 1)
	assert.Equal(t, "fp1", channels[0].LastMessageFingerprint)
}

func TestFailedMessageReachesReviewQueue(t *testing.T) {
	f := newFixture(t)
	id := f.run(t, "push_message", `{"channel_id":"c1","fingerprint":"fp2","message_text":"hello"}`)["message_id"].(string)

	first := f.run(t, "mark_failed", `{"message_id":"`+id+`","error_message":"chat not found"}`)
	assert.Equal(t, "pending", first["status"])
	second := f.run(t, "mark_failed", `{"message_id":"`+id+`","error_message":"chat not found"}`)
	assert.Equal(t, "failed", second["status"])

	queue := f.run(t, "get_review_queue", `{}`)["messages"].([]messageView)
	require.Len(t, queue, 1)
	assert.Equal(t, id, queue[0].ID)

	f.run(t, "approve_message", `{"message_id":"`+id+`"}`)
	assert.Len(t, f.run(t, "get_pending_messages", `{}`)["messages"], 1)

	assert.ErrorIs(t, f.runErr(t, "reject_message", `{"message_id":"missing"}`), store.ErrNotFound)
}

func TestTradeLifecycle(t *testing.T) {
	f := newFixture(t)

	opened := f.run(t, "execute_trade", `{"message_text":"ape `+mint+`","channel_id":"c1","channel_name":"alpha-calls","fingerprint":"fp9"}`)
	require.Equal(t, true, opened["success"])
	tradeID := opened["trade_id"].(string)

	again := f.run(t, "execute_trade", `{"message_text":"`+mint+` again","channel_id":"c1","channel_name":"alpha-calls","fingerprint":"fp10"}`)
	assert.Equal(t, false, again["success"])
	assert.Equal(t, trading.ReasonDuplicateTrade, again["reason"])

	claimed := f.run(t, "get_pending_trades", `{"worker_id":"exec-1"}`)["trades"].([]tradeView)
	require.Len(t, claimed, 1)
	assert.Equal(t, mint, claimed[0].ContractAddress)
	assert.Equal(t, 300, claimed[0].SlippageBps)

	f.run(t, "update_trade_bought", `{"trade_id":"`+tradeID+`","tx_hash":"0xbuy","entry_price":1.0,"token_amount":1000}`)

	price := f.run(t, "update_trade_price", `{"trade_id":"`+tradeID+`","current_price":2.5}`)
	assert.Equal(t, string(trading.ActionTakeProfit1), price["action_needed"])
	assert.InDelta(t, 150.0, price["pnl_pct"].(float64), 1e-9)
	sellID := price["sell_id"].(string)

	manual := f.run(t, "trigger_auto_sell", `{"trade_id":"`+tradeID+`","percentage":100}`)
	assert.Equal(t, false, manual["success"])
	assert.Equal(t, "Sell already pending", manual["error"])
	assert.Equal(t, sellID, manual["sell_id"])

	sells := f.run(t, "get_pending_sells", `{"worker_id":"exec-1"}`)["sells"].([]sellView)
	require.Len(t, sells, 1)
	assert.Equal(t, mint, sells[0].ContractAddress)
	assert.Equal(t, 50.0, sells[0].Percentage)

	executed := f.run(t, "update_sell_executed", `{"sell_id":"`+sellID+`","tx_hash":"0xsell","realized_amount":2.4}`)
	assert.Equal(t, "partial_tp1", executed["trade_status"])

	list := f.run(t, "list_trades", `{"status":"partial_tp1"}`)["trades"].([]tradeView)
	require.Len(t, list, 1)
	assert.InDelta(t, 50.0, list[0].RemainingPct, 1e-9)
}

func TestTriggerAutoSellOnClosedTradeConflicts(t *testing.T) {
	f := newFixture(t)
	tradeID := f.run(t, "execute_trade", `{"message_text":"`+mint+`","channel_id":"c1","channel_name":"alpha-calls","fingerprint":"fp1"}`)["trade_id"].(string)

	err := f.runErr(t, "trigger_auto_sell", `{"trade_id":"`+tradeID+`","percentage":100}`)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	failed := f.run(t, "update_trade_failed", `{"trade_id":"`+tradeID+`","error_message":"no route"}`)
	assert.Equal(t, "pending_buy", failed["status"])
}

func TestDestinationStatusAndLog(t *testing.T) {
	f := newFixture(t)

	dest := f.run(t, "get_destination", `{}`)["config"].(loader.DestinationDef)
	assert.Equal(t, "-100123", dest.Identifier)
	assert.True(t, dest.UseTopics)

	f.run(t, "update_connection_status", `{"service":"discord","status":"connected"}`)
	rows, err := f.store.Status().Connections(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "connected", rows[0].Status)

	f.run(t, "log", `{"level":"success","message":"sell executed","channel_name":"alpha-calls","details":{"tx":"0x1"}}`)
	last := f.journal.evts[len(f.journal.evts)-1]
	wl, ok := last.(events.WorkerLog)
	require.True(t, ok)
	assert.Equal(t, "alpha-calls", wl.ChannelName)
	assert.Equal(t, "0x1", wl.Details["tx"])
}
