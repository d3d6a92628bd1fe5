package app

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// StartupSummary is printed once before the server starts.
type StartupSummary struct {
	HTTPAddr          string
	StorePath         string
	RosterPath        string
	RosterVersion     int64
	Channels          int
	TradingConfigs    int
	ClassifierEnabled bool
	ClassifierURL     string
	ExecutorURL       string
	TelegramAlerts    bool
	AutoExit          bool
	MetricsPath       string

	out io.Writer
}

func (s *StartupSummary) Print() {
	w := s.out
	if w == nil {
		w = os.Stdout
	}
	line := strings.Repeat("=", 60)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "  signalrelay startup summary")
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "  worker api     : %s\n", s.HTTPAddr)
	fmt.Fprintf(w, "  store          : %s\n", s.StorePath)
	fmt.Fprintf(w, "  roster         : %s (v%d, %d channels, %d trading configs)\n",
		s.RosterPath, s.RosterVersion, s.Channels, s.TradingConfigs)
	fmt.Fprintf(w, "  classifier     : %s\n", onOff(s.ClassifierEnabled, s.ClassifierURL))
	fmt.Fprintf(w, "  executor hook  : %s\n", onOff(s.ExecutorURL != "", s.ExecutorURL))
	fmt.Fprintf(w, "  telegram alerts: %s\n", onOff(s.TelegramAlerts, ""))
	fmt.Fprintf(w, "  auto exit      : %s\n", onOff(s.AutoExit, ""))
	fmt.Fprintf(w, "  metrics        : %s\n", onOff(s.MetricsPath != "", s.MetricsPath))
	fmt.Fprintln(w, line)
}

func onOff(on bool, detail string) string {
	if !on {
		return "off"
	}
	if detail == "" {
		return "on"
	}
	return "on (" + detail + ")"
}
