package tools

import (
	"bytes"
	"encoding/json"
	"math"
)

// Args holds the raw arguments of one tool call
type Args map[string]json.RawMessage

// ParseArgs decodes a JSON object of arguments. Empty input and null are an
// empty set.
func ParseArgs(raw json.RawMessage) (Args, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Args{}, nil
	}

	var args Args
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, &ArgumentError{Reason: "arguments must be a JSON object"}
	}
	if args == nil {
		args = Args{}
	}
	return args, nil
}

// lookup returns the first of names that is present and not null
func (a Args) lookup(names ...string) (string, json.RawMessage, bool) {
	for _, name := range names {
		raw, ok := a[name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		return name, raw, true
	}
	return "", nil, false
}

// String returns a required, non-empty string. Aliases are tried after
// name in order.
func (a Args) String(name string, aliases ...string) (string, error) {
	s, err := a.OptString("", name, aliases...)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", missing(name)
	}
	return s, nil
}

// OptString returns the named string, or def when absent
func (a Args) OptString(def, name string, aliases ...string) (string, error) {
	key, raw, ok := a.lookup(append([]string{name}, aliases...)...)
	if !ok {
		return def, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalid(key, "must be a string")
	}
	return s, nil
}

// OptInt returns the named integer, or def when absent. Whole-valued
// floats are accepted.
func (a Args) OptInt(name string, def int) (int, error) {
	_, raw, ok := a.lookup(name)
	if !ok {
		return def, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, invalid(name, "must be a number")
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, invalid(name, "must be an integer")
	}
	return int(f), nil
}

// OptFloat returns the named number, or nil when absent
func (a Args) OptFloat(name string) (*float64, error) {
	_, raw, ok := a.lookup(name)
	if !ok {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, invalid(name, "must be a number")
	}
	return &f, nil
}

// OptBool returns the named boolean, or nil when absent
func (a Args) OptBool(name string) (*bool, error) {
	_, raw, ok := a.lookup(name)
	if !ok {
		return nil, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, invalid(name, "must be a boolean")
	}
	return &b, nil
}

// Bool is OptBool with a default
func (a Args) Bool(name string, def bool) (bool, error) {
	b, err := a.OptBool(name)
	if err != nil || b == nil {
		return def, err
	}
	return *b, nil
}
