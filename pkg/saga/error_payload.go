package saga

import (
	"fmt"
	"reflect"
)

// ErrorPayload is the uniform wire-safe serialization of a step failure.
// It survives broker serialization as a plain mapping via ToMap, and is
// carried as the payload of a failure reply and of a sync step's
// compensation trigger.
type ErrorPayload struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Module    string `json:"module"`
	Traceback string `json:"traceback"`
}

// ToMap renders the payload as the opaque mapping other hooks receive it
// as, matching the shape a broker reply carries on the wire.
func (p ErrorPayload) ToMap() map[string]any {
	return map[string]any{
		"type":      p.Type,
		"message":   p.Message,
		"module":    p.Module,
		"traceback": p.Traceback,
	}
}

// SerializeError produces an ErrorPayload from a raised failure. Type is
// the most specific qualified name available (the error's Go type,
// package-qualified); Message is err.Error(); Module is the type's
// defining package path; Traceback is a textual stack, best-effort since
// Go errors don't carry one intrinsically — callers that want a real
// stack should wrap err with one before calling SerializeError (e.g. via
// a errors.Join or a stack-capturing wrapper) and it will be surfaced
// through Error().
func SerializeError(err error) ErrorPayload {
	if err == nil {
		return ErrorPayload{}
	}

	t := reflect.TypeOf(err)
	qualifiedType := t.String()
	module := ""
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if pkgPath := t.PkgPath(); pkgPath != "" {
		module = pkgPath
	}

	return ErrorPayload{
		Type:      qualifiedType,
		Message:   err.Error(),
		Module:    module,
		Traceback: fmt.Sprintf("%+v", err),
	}
}

// ErrorPayloadFromMap reconstructs an ErrorPayload from a delivered reply
// mapping. Missing fields are left empty; it never errors, since a
// failure payload must be treated as opaque diagnostic context.
func ErrorPayloadFromMap(m map[string]any) ErrorPayload {
	str := func(key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	return ErrorPayload{
		Type:      str("type"),
		Message:   str("message"),
		Module:    str("module"),
		Traceback: str("traceback"),
	}
}
