// Package executor forwards newly opened trades to an external swap executor.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"signalrelay/internal/config"
	"signalrelay/internal/logger"
	"signalrelay/internal/pkg/text"
	"signalrelay/internal/store/model"
)

const defaultTimeout = 10 * time.Second

// buyOrder is the body posted for every new pending trade.
type buyOrder struct {
	TradeID         string  `json:"trade_id"`
	ContractAddress string  `json:"contract_address"`
	Chain           string  `json:"chain"`
	Allocation      float64 `json:"allocation"`
	SlippageBps     int     `json:"slippage_bps"`
	ChannelName     string  `json:"channel_name,omitempty"`
}

// Webhook posts buy orders to the configured URL. A 2xx answer means the
// executor accepted the order; it still reports the result through the
// worker API.
type Webhook struct {
	url    string
	apiKey string
	client *http.Client
}

func NewWebhook(cfg config.ExecutorConfig) *Webhook {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Webhook{
		url:    strings.TrimSpace(cfg.URL),
		apiKey: strings.TrimSpace(cfg.APIKey),
		client: &http.Client{Timeout: timeout},
	}
}

func (w *Webhook) SubmitBuy(ctx context.Context, trade model.TradeModel) error {
	body, err := json.Marshal(buyOrder{
		TradeID:         trade.ID,
		ContractAddress: trade.ContractAddress,
		Chain:           trade.Chain,
		Allocation:      trade.Allocation,
		SlippageBps:     trade.SlippageBps,
		ChannelName:     trade.ChannelName,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("executor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("executor call: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("executor status=%d body=%s", resp.StatusCode, text.Snippet(raw, 512))
	}
	logger.Infof("executor: buy order %s accepted", trade.ID)
	return nil
}
