package notifier

import (
	"context"
	"fmt"
	"time"

	"signalrelay/internal/logger"
	"signalrelay/internal/pkg/text"
	"signalrelay/internal/store/model"
)

const alertTimeout = 30 * time.Second

// Alerter turns terminal failures into operator notifications. Sends run in
// the background so a slow chat API never holds up the caller.
type Alerter struct {
	notifier TextNotifier
	now      func() time.Time
	sync     bool
}

func NewAlerter(n TextNotifier) *Alerter {
	if n == nil {
		n = Noop{}
	}
	return &Alerter{notifier: n, now: time.Now}
}

// MessageExhausted reports a queued message that ran out of delivery retries.
func (a *Alerter) MessageExhausted(ctx context.Context, msg model.QueuedMessageModel) {
	a.send(ctx, StructuredMessage{
		Icon:  "⚠️",
		Title: "Delivery retries exhausted",
		Sections: []MessageSection{{
			Title: "Message",
			Lines: []string{
				Field("ID", msg.ID),
				Field("Channel", msg.ChannelID),
				Field("Author", msg.AuthorName),
				Field("Retries", msg.RetryCount),
				Field("Error", msg.ErrorMessage),
			},
		}, {
			Title: "Preview",
			Lines: []string{text.Truncate(msg.MessageText, 200)},
		}},
		Timestamp: a.now(),
	})
}

// TradeFailed reports a trade that could not be bought or sold.
func (a *Alerter) TradeFailed(ctx context.Context, trade model.TradeModel) {
	a.send(ctx, StructuredMessage{
		Icon:  "🚨",
		Title: "Trade failed",
		Sections: []MessageSection{{
			Title: "Trade",
			Lines: []string{
				Field("ID", trade.ID),
				Field("Asset", fmt.Sprintf("%s (%s)", trade.ContractAddress, trade.Chain)),
				Field("Channel", trade.ChannelName),
				Field("Allocation", trade.Allocation),
				Field("Retries", trade.RetryCount),
				Field("Error", trade.ErrorMessage),
			},
		}},
		Timestamp: a.now(),
	})
}

func (a *Alerter) send(ctx context.Context, msg StructuredMessage) {
	body := msg.RenderMarkdown()
	run := func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
		defer cancel()
		if err := a.notifier.SendText(sendCtx, body); err != nil {
			logger.Warnf("notifier: alert %q not sent: %v", msg.Title, err)
		}
	}
	if a.sync {
		run()
		return
	}
	go run()
}
