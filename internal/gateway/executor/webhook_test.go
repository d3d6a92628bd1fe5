package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"signalrelay/internal/config"
	"signalrelay/internal/store/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitBuyPostsOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var order buyOrder
		require.NoError(t, json.NewDecoder(r.Body).Decode(&order))
		assert.Equal(t, "t1", order.TradeID)
		assert.Equal(t, "0xabc", order.ContractAddress)
		assert.Equal(t, 250, order.SlippageBps)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook := NewWebhook(config.ExecutorConfig{Enabled: true, URL: srv.URL, APIKey: "k"})
	err := hook.SubmitBuy(context.Background(), model.TradeModel{
		ID: "t1", ContractAddress: "0xabc", Chain: "evm", Allocation: 1, SlippageBps: 250,
	})
	require.NoError(t, err)
}

func TestSubmitBuyReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient balance", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := NewWebhook(config.ExecutorConfig{URL: srv.URL}).SubmitBuy(context.Background(), model.TradeModel{ID: "t1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=422")
	assert.Contains(t, err.Error(), "insufficient balance")
}
