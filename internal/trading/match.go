package trading

import (
	"path"
	"sort"
	"strings"

	"signalrelay/internal/store/model"
)

// MatchConfig picks the enabled config with the highest priority whose
// pattern matches any of names. Patterns containing glob metacharacters are
// matched with path.Match, others as substrings; both ignore case.
func MatchConfig(configs []model.TradingConfigModel, names ...string) (model.TradingConfigModel, bool) {
	ordered := append([]model.TradingConfigModel(nil), configs...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })
	for _, cfg := range ordered {
		if !cfg.Enabled {
			continue
		}
		for _, name := range names {
			if patternMatches(cfg.ChannelPattern, name) {
				return cfg, true
			}
		}
	}
	return model.TradingConfigModel{}, false
}

func patternMatches(pattern, name string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	name = strings.ToLower(strings.TrimSpace(name))
	if pattern == "" || name == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if strings.ContainsAny(pattern, "*?[") {
		ok, err := path.Match(pattern, name)
		return err == nil && ok
	}
	return strings.Contains(name, pattern)
}
