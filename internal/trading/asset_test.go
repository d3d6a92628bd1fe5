package trading

import (
	"testing"

	"signalrelay/internal/store/model"

	"github.com/stretchr/testify/assert"
)

func TestExtractAsset(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		want  Asset
		found bool
	}{
		{
			name:  "solana mint",
			text:  "ape now: EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v 🚀",
			want:  Asset{Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Chain: ChainSolana},
			found: true,
		},
		{
			name:  "evm address is lowercased",
			text:  "CA 0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48 on base",
			want:  Asset{Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Chain: ChainEVM},
			found: true,
		},
		{name: "no address", text: "gm frens, nothing today"},
		{name: "long plain word", text: "supercalifragilisticexpialidociousness"},
		{name: "empty", text: "   "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractAsset(tc.text)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMatchConfigPrefersPriority(t *testing.T) {
	configs := []model.TradingConfigModel{
		{ChannelPattern: "alpha", Enabled: true, Priority: 1, Allocation: 1},
		{ChannelPattern: "*calls*", Enabled: true, Priority: 5, Allocation: 2},
		{ChannelPattern: "Alpha-Calls", Enabled: false, Priority: 9, Allocation: 3},
	}
	got, ok := MatchConfig(configs, "Alpha-Calls")
	assert.True(t, ok)
	assert.Equal(t, float64(2), got.Allocation)

	got, ok = MatchConfig(configs, "alpha-lounge")
	assert.True(t, ok)
	assert.Equal(t, float64(1), got.Allocation)

	_, ok = MatchConfig(configs, "beta")
	assert.False(t, ok)
}

func TestMatchConfigFallsBackToSecondName(t *testing.T) {
	configs := []model.TradingConfigModel{{ChannelPattern: "1234*", Enabled: true}}
	_, ok := MatchConfig(configs, "general", "123456")
	assert.True(t, ok)
}
