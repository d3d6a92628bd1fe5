// Package command defines the closed set of worker API actions. Every action
// decodes into its own payload type and is served by its own Handler method,
// so adding an action without a handler does not compile.
package command

import "context"

// Action is the wire name of a command.
type Action string

const (
	ActionPushMessage            Action = "push_message"
	ActionMarkSent               Action = "mark_sent"
	ActionMarkFailed             Action = "mark_failed"
	ActionGetPendingMessages     Action = "get_pending_messages"
	ActionGetChannels            Action = "get_channels"
	ActionGetDestination         Action = "get_destination"
	ActionExecuteTrade           Action = "execute_trade"
	ActionGetPendingTrades       Action = "get_pending_trades"
	ActionUpdateTradeBought      Action = "update_trade_bought"
	ActionUpdateTradeFailed      Action = "update_trade_failed"
	ActionUpdateTradePrice       Action = "update_trade_price"
	ActionTriggerAutoSell        Action = "trigger_auto_sell"
	ActionGetPendingSells        Action = "get_pending_sells"
	ActionUpdateSellExecuted     Action = "update_sell_executed"
	ActionUpdateSellFailed       Action = "update_sell_failed"
	ActionUpdateConnectionStatus Action = "update_connection_status"
	ActionLog                    Action = "log"
	ActionGetReviewQueue         Action = "get_review_queue"
	ActionApproveMessage         Action = "approve_message"
	ActionRejectMessage          Action = "reject_message"
	ActionDeleteMessage          Action = "delete_message"
	ActionListTrades             Action = "list_trades"
)

// Reply is the JSON object returned to the caller.
type Reply map[string]any

// Command is implemented only by the payload types of this package.
type Command interface {
	Action() Action
	dispatch(ctx context.Context, h Handler) (Reply, error)
}

// Handler serves every command variant.
type Handler interface {
	PushMessage(ctx context.Context, cmd PushMessage) (Reply, error)
	MarkSent(ctx context.Context, cmd MarkSent) (Reply, error)
	MarkFailed(ctx context.Context, cmd MarkFailed) (Reply, error)
	GetPendingMessages(ctx context.Context, cmd GetPendingMessages) (Reply, error)
	GetChannels(ctx context.Context, cmd GetChannels) (Reply, error)
	GetDestination(ctx context.Context, cmd GetDestination) (Reply, error)
	ExecuteTrade(ctx context.Context, cmd ExecuteTrade) (Reply, error)
	GetPendingTrades(ctx context.Context, cmd GetPendingTrades) (Reply, error)
	UpdateTradeBought(ctx context.Context, cmd UpdateTradeBought) (Reply, error)
	UpdateTradeFailed(ctx context.Context, cmd UpdateTradeFailed) (Reply, error)
	UpdateTradePrice(ctx context.Context, cmd UpdateTradePrice) (Reply, error)
	TriggerAutoSell(ctx context.Context, cmd TriggerAutoSell) (Reply, error)
	GetPendingSells(ctx context.Context, cmd GetPendingSells) (Reply, error)
	UpdateSellExecuted(ctx context.Context, cmd UpdateSellExecuted) (Reply, error)
	UpdateSellFailed(ctx context.Context, cmd UpdateSellFailed) (Reply, error)
	UpdateConnectionStatus(ctx context.Context, cmd UpdateConnectionStatus) (Reply, error)
	Log(ctx context.Context, cmd Log) (Reply, error)
	GetReviewQueue(ctx context.Context, cmd GetReviewQueue) (Reply, error)
	ApproveMessage(ctx context.Context, cmd ApproveMessage) (Reply, error)
	RejectMessage(ctx context.Context, cmd RejectMessage) (Reply, error)
	DeleteMessage(ctx context.Context, cmd DeleteMessage) (Reply, error)
	ListTrades(ctx context.Context, cmd ListTrades) (Reply, error)
}

// Dispatch routes cmd to its handler method.
func Dispatch(ctx context.Context, h Handler, cmd Command) (Reply, error) {
	return cmd.dispatch(ctx, h)
}

// ReadOnly reports whether the action may be issued with GET.
func ReadOnly(a Action) bool {
	switch a {
	case ActionGetPendingMessages, ActionGetChannels, ActionGetDestination,
		ActionGetPendingTrades, ActionGetPendingSells, ActionGetReviewQueue, ActionListTrades:
		return true
	default:
		return false
	}
}
