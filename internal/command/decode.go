package command

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"signalrelay/internal/pkg/errs"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

type entry struct {
	decode func([]byte) (Command, error)
	schema *jsonschema.Schema
}

var (
	registryOnce sync.Once
	registry     map[Action]entry
	registryErr  error
)

var constructors = map[Action]func([]byte) (Command, error){
	ActionPushMessage:            decodeInto[PushMessage],
	ActionMarkSent:               decodeInto[MarkSent],
	ActionMarkFailed:             decodeInto[MarkFailed],
	ActionGetPendingMessages:     decodeInto[GetPendingMessages],
	ActionGetChannels:            decodeInto[GetChannels],
	ActionGetDestination:         decodeInto[GetDestination],
	ActionExecuteTrade:           decodeInto[ExecuteTrade],
	ActionGetPendingTrades:       decodeInto[GetPendingTrades],
	ActionUpdateTradeBought:      decodeInto[UpdateTradeBought],
	ActionUpdateTradeFailed:      decodeInto[UpdateTradeFailed],
	ActionUpdateTradePrice:       decodeInto[UpdateTradePrice],
	ActionTriggerAutoSell:        decodeInto[TriggerAutoSell],
	ActionGetPendingSells:        decodeInto[GetPendingSells],
	ActionUpdateSellExecuted:     decodeInto[UpdateSellExecuted],
	ActionUpdateSellFailed:       decodeInto[UpdateSellFailed],
	ActionUpdateConnectionStatus: decodeInto[UpdateConnectionStatus],
	ActionLog:                    decodeInto[Log],
	ActionGetReviewQueue:         decodeInto[GetReviewQueue],
	ActionApproveMessage:         decodeInto[ApproveMessage],
	ActionRejectMessage:          decodeInto[RejectMessage],
	ActionDeleteMessage:          decodeInto[DeleteMessage],
	ActionListTrades:             decodeInto[ListTrades],
}

// checker is implemented by payloads with rules a schema cannot express.
type checker interface {
	check() error
}

func decodeInto[T Command](raw []byte) (Command, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errs.New(errs.CodeInvalid, errs.WithMessage("malformed data"), errs.WithCause(err))
	}
	if c, ok := any(&v).(checker); ok {
		if err := c.check(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func loadRegistry() (map[Action]entry, error) {
	registryOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		out := make(map[Action]entry, len(constructors))
		for action, decode := range constructors {
			name := "schemas/" + string(action) + ".json"
			raw, err := schemaFS.ReadFile(name)
			if err != nil {
				registryErr = fmt.Errorf("command schema %s: %w", action, err)
				return
			}
			if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
				registryErr = fmt.Errorf("command schema %s: %w", action, err)
				return
			}
			schema, err := compiler.Compile(name)
			if err != nil {
				registryErr = fmt.Errorf("compile schema %s: %w", action, err)
				return
			}
			out[action] = entry{decode: decode, schema: schema}
		}
		registry = out
	})
	return registry, registryErr
}

// Actions lists every known action.
func Actions() []Action {
	out := make([]Action, 0, len(constructors))
	for a := range constructors {
		out = append(out, a)
	}
	return out
}

func Known(a Action) bool {
	_, ok := constructors[a]
	return ok
}

// Decode validates data against the action's schema and builds its payload.
// Unknown actions and schema violations are errs.CodeInvalid.
func Decode(action string, data json.RawMessage) (Command, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	name := Action(strings.TrimSpace(action))
	e, ok := reg[name]
	if !ok {
		return nil, errs.New(errs.CodeInvalid, errs.WithField("action"),
			errs.WithMessage(fmt.Sprintf("unknown action %q", action)))
	}
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errs.New(errs.CodeInvalid, errs.WithField("data"),
			errs.WithMessage("data is not valid JSON"), errs.WithCause(err))
	}
	if err := e.schema.Validate(doc); err != nil {
		return nil, schemaError(err)
	}
	return e.decode(raw)
}

func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return errs.New(errs.CodeInvalid, errs.WithMessage(err.Error()), errs.WithCause(err))
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	field := strings.TrimPrefix(ve.InstanceLocation, "/")
	field = strings.ReplaceAll(field, "/", ".")
	return errs.New(errs.CodeInvalid, errs.WithField(field), errs.WithMessage(ve.Message), errs.WithCause(err))
}
