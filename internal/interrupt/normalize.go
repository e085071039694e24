// Package interrupt converts the interrupt payloads emitted by workflows into
// the canonical domain.Interrupt shape.
//
// Workflows written against older versions of the inbox emit "legacy"
// payloads: flat objects tagged with a string "type" and no action_request.
// Those are converted through a closed table of known variants with a generic
// fallback. Everything else is decoded leniently as a canonical payload; a
// payload that does not fit ends up with an empty action, which callers treat
// as an invalid schema.
package interrupt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/domain"
)

// DefaultConfig is the capability set of a converted legacy interrupt unless
// its variant overrides it.
var DefaultConfig = domain.InterruptConfig{
	AllowIgnore:  false,
	AllowRespond: true,
	AllowEdit:    true,
	AllowAccept:  true,
}

// metadataFields describe a legacy interrupt rather than carry arguments.
var metadataFields = map[string]struct{}{
	"type":         {},
	"message":      {},
	"instructions": {},
}

// nestedArgFields are the nested objects whose contents become the action
// arguments of a legacy interrupt, merged in this order.
var nestedArgFields = []string{
	"booking_details",
	"email_details",
	"event_details",
	"details",
}

type variant struct {
	action    string
	argsField string
	config    domain.InterruptConfig
}

// variants is the table of known legacy interrupt types.
var variants = map[string]variant{
	"booking_approval": {
		action:    "calendar_booking_approval",
		argsField: "booking_details",
		config: domain.InterruptConfig{
			AllowIgnore:  false,
			AllowRespond: true,
			AllowEdit:    true,
			AllowAccept:  true,
		},
	},
	"email_approval": {
		action:    "email_send_approval",
		argsField: "email_details",
		config: domain.InterruptConfig{
			AllowIgnore:  true,
			AllowRespond: true,
			AllowEdit:    true,
			AllowAccept:  true,
		},
	},
}

// IsLegacy reports whether payload is a legacy interrupt: it has a string
// "type" and no action request.
func IsLegacy(payload map[string]any) bool {
	if _, ok := payload["type"].(string); !ok {
		return false
	}
	if _, ok := payload["action_request"]; ok {
		return false
	}
	if _, ok := payload["actionRequest"]; ok {
		return false
	}
	return true
}

// Convert maps a legacy payload to the canonical shape. It does not modify
// legacy. Calling it on a payload for which IsLegacy is false yields an
// interrupt with an empty action.
func Convert(legacy map[string]any) domain.Interrupt {
	typ, _ := legacy["type"].(string)

	v, known := variants[typ]
	if !known {
		v = variant{action: typ, config: DefaultConfig}
	}

	var args map[string]any
	if v.argsField != "" {
		if nested, ok := legacy[v.argsField].(map[string]any); ok {
			args = copyMap(nested)
		}
	}
	if args == nil {
		args = genericArgs(legacy)
	}

	return domain.Interrupt{
		ActionRequest: domain.ActionRequest{
			Action: v.action,
			Args:   args,
		},
		Config:      v.config,
		Description: description(legacy, typ),
	}
}

// ProcessAll decodes raw interrupt payloads and normalizes each of them. It
// never fails: undecodable payloads become interrupts with an empty action.
func ProcessAll(raw []json.RawMessage) []domain.Interrupt {
	out := make([]domain.Interrupt, 0, len(raw))
	for _, r := range raw {
		out = append(out, process(r))
	}
	return out
}

func process(raw json.RawMessage) domain.Interrupt {
	payload, err := decode(raw)
	if err != nil {
		return domain.Interrupt{}
	}
	if obj, ok := payload.(map[string]any); ok && IsLegacy(obj) {
		return Convert(obj)
	}
	return canonical(payload)
}

// Flatten collects the payloads of interrupt entries in order. An entry whose
// value is an array contributes each element.
func Flatten(entries []domain.InterruptEntry) []json.RawMessage {
	var out []json.RawMessage
	for _, e := range entries {
		value := bytes.TrimSpace(e.Value)
		if len(value) == 0 {
			continue
		}
		if value[0] == '[' {
			var items []json.RawMessage
			if err := json.Unmarshal(value, &items); err == nil {
				out = append(out, items...)
				continue
			}
		}
		out = append(out, value)
	}
	return out
}

func decode(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode interrupt payload: %w", err)
	}
	return v, nil
}

// canonical reads a payload that claims to be canonical. Fields of the wrong
// type are dropped instead of failing the whole payload.
func canonical(payload any) domain.Interrupt {
	obj, ok := payload.(map[string]any)
	if !ok {
		return domain.Interrupt{}
	}

	var out domain.Interrupt

	if req, ok := lookup(obj, "action_request", "actionRequest").(map[string]any); ok {
		out.ActionRequest.Action, _ = req["action"].(string)
		if args, ok := req["args"].(map[string]any); ok {
			out.ActionRequest.Args = copyMap(args)
		}
	}

	if cfg, ok := obj["config"].(map[string]any); ok {
		out.Config.AllowIgnore, _ = lookup(cfg, "allow_ignore", "allowIgnore").(bool)
		out.Config.AllowRespond, _ = lookup(cfg, "allow_respond", "allowRespond").(bool)
		out.Config.AllowEdit, _ = lookup(cfg, "allow_edit", "allowEdit").(bool)
		out.Config.AllowAccept, _ = lookup(cfg, "allow_accept", "allowAccept").(bool)
	}

	out.Description, _ = obj["description"].(string)
	return out
}

func genericArgs(legacy map[string]any) map[string]any {
	args := make(map[string]any)
	found := false
	for _, field := range nestedArgFields {
		nested, ok := legacy[field].(map[string]any)
		if !ok {
			continue
		}
		found = true
		for k, v := range nested {
			args[k] = v
		}
	}
	if found {
		return args
	}

	for k, v := range legacy {
		if _, skip := metadataFields[k]; skip {
			continue
		}
		args[k] = v
	}
	return args
}

func description(legacy map[string]any, typ string) string {
	if msg, ok := legacy["message"].(string); ok {
		return msg
	}
	if instr, ok := legacy["instructions"].(string); ok {
		return instr
	}
	return typ + " approval required"
}

func lookup(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v
		}
	}
	return nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
