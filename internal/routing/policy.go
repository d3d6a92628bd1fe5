// Package routing decides whether an accepted message is dropped, relayed as
// written, or relayed in the classifier's reformatted form.
package routing

import (
	"context"
	"fmt"
	"strings"

	"signalrelay/internal/logger"
	"signalrelay/internal/store/model"
)

type Kind string

const (
	KindSkip     Kind = "skip"
	KindRelay    Kind = "relay"
	KindRelayRaw Kind = "relay_raw"
)

// CategorySkip is the classifier category that drops a message.
const CategorySkip = "skip"

const (
	ReasonBannedAuthor       = "banned_author"
	ReasonTrackedAuthor      = "tracked_author"
	ReasonBypassParser       = "bypass_parser"
	ReasonClassifierDisabled = "classifier_disabled"
	ReasonClassifierSkip     = "classifier_skip"
	ReasonClassified         = "classified"
	ReasonClassifierDegraded = "classifier_degraded"
)

// Settings is the runtime snapshot routing reads. Callers pass it explicitly
// on every call.
type Settings struct {
	ClassifierEnabled bool
}

// AuthorLists answers list membership for normalized author names.
type AuthorLists interface {
	OnList(ctx context.Context, list model.AuthorList, name string) (bool, error)
}

// Classifier maps message text to a category and an optional reformatted text.
type Classifier interface {
	Classify(ctx context.Context, text string) (category string, formatted string, err error)
}

type Input struct {
	AuthorName   string
	Text         string
	BypassParser bool
}

type Decision struct {
	Kind     Kind
	Text     string
	Category string
	Reason   string
	// Degraded is set when the classifier failed and the original text was kept.
	Degraded    bool
	DegradedErr string
}

type Policy struct {
	lists      AuthorLists
	classifier Classifier
}

// NewPolicy builds a routing policy. A nil classifier behaves like a
// disabled one.
func NewPolicy(lists AuthorLists, classifier Classifier) *Policy {
	return &Policy{lists: lists, classifier: classifier}
}

// Route applies the precedence banned, tracked, bypass, classifier switch,
// classifier. Only list lookups return errors; classifier failures fall back
// to relaying the original text.
func (p *Policy) Route(ctx context.Context, in Input, settings Settings) (Decision, error) {
	raw := Decision{Kind: KindRelayRaw, Text: in.Text}
	if strings.TrimSpace(in.AuthorName) != "" {
		banned, err := p.lists.OnList(ctx, model.AuthorListBanned, in.AuthorName)
		if err != nil {
			return Decision{}, fmt.Errorf("route: %w", err)
		}
		if banned {
			return Decision{Kind: KindSkip, Reason: ReasonBannedAuthor}, nil
		}
		tracked, err := p.lists.OnList(ctx, model.AuthorListTracked, in.AuthorName)
		if err != nil {
			return Decision{}, fmt.Errorf("route: %w", err)
		}
		if tracked {
			raw.Reason = ReasonTrackedAuthor
			return raw, nil
		}
	}
	if in.BypassParser {
		raw.Reason = ReasonBypassParser
		return raw, nil
	}
	if !settings.ClassifierEnabled || p.classifier == nil {
		raw.Reason = ReasonClassifierDisabled
		return raw, nil
	}

	category, formatted, err := p.classifier.Classify(ctx, in.Text)
	if err != nil {
		logger.Warnf("classifier degraded, relaying original text: %v", err)
		raw.Reason = ReasonClassifierDegraded
		raw.Degraded = true
		raw.DegradedErr = err.Error()
		return raw, nil
	}
	category = strings.ToLower(strings.TrimSpace(category))
	if category == CategorySkip {
		return Decision{Kind: KindSkip, Category: category, Reason: ReasonClassifierSkip}, nil
	}
	text := formatted
	if strings.TrimSpace(text) == "" {
		text = in.Text
	}
	return Decision{Kind: KindRelay, Text: text, Category: category, Reason: ReasonClassified}, nil
}
