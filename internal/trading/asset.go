package trading

import (
	"regexp"
	"strings"
)

const (
	ChainSolana = "solana"
	ChainEVM    = "evm"
)

var (
	evmAddressRe    = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)
	solanaAddressRe = regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{32,44}\b`)
)

// Asset is a token reference found in a message.
type Asset struct {
	Address string
	Chain   string
}

// ExtractAsset returns the first token address in text. EVM addresses are
// checked first because their hex body is also valid base58.
func ExtractAsset(text string) (Asset, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Asset{}, false
	}
	if m := evmAddressRe.FindString(text); m != "" {
		return Asset{Address: strings.ToLower(m), Chain: ChainEVM}, true
	}
	for _, m := range solanaAddressRe.FindAllString(text, -1) {
		if looksLikeMint(m) {
			return Asset{Address: m, Chain: ChainSolana}, true
		}
	}
	return Asset{}, false
}

// looksLikeMint drops long plain words: a mint mixes at least two of digits,
// upper and lower case.
func looksLikeMint(s string) bool {
	var digit, upper, lower bool
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		}
	}
	n := 0
	for _, ok := range []bool{digit, upper, lower} {
		if ok {
			n++
		}
	}
	return n >= 2
}
