package logger

import (
	"io"
	"log"
	"strconv"
	"strings"
	"sync"

	"signalrelay/internal/pkg/jsonutil"
)

var (
	classifierMu  sync.Mutex
	classifierLog *log.Logger
)

// SetClassifierWriter routes classifier request/response dumps to w. A nil
// writer disables the dump.
func SetClassifierWriter(w io.Writer) {
	classifierMu.Lock()
	defer classifierMu.Unlock()
	if w == nil {
		classifierLog = nil
		return
	}
	classifierLog = log.New(w, "", log.LstdFlags)
}

type dumpSection struct {
	Title string
	Body  string
}

func dumpClassifier(kind, endpoint string, sections []dumpSection) {
	classifierMu.Lock()
	l := classifierLog
	classifierMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[CLASSIFIER]")
	if kind != "" {
		b.WriteString("[" + kind + "]")
	}
	if endpoint != "" {
		b.WriteString("[" + endpoint + "]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- " + t + " ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}

func LogClassifierRequest(endpoint, text string) {
	dumpClassifier("request", endpoint, []dumpSection{{Title: "TEXT", Body: text}})
}

func LogClassifierResponse(endpoint string, status int, raw string) {
	dumpClassifier("response", endpoint, []dumpSection{
		{Title: "STATUS", Body: statusText(status)},
		{Title: "RAW", Body: jsonutil.Pretty(raw)},
	})
}

func statusText(status int) string {
	if status <= 0 {
		return "n/a"
	}
	return strconv.Itoa(status)
}
