package automation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ConditionKind names one member of the fixed wait vocabulary
type ConditionKind string

const (
	KindElementPresent   ConditionKind = "element_present"
	KindElementVisible   ConditionKind = "element_visible"
	KindElementClickable ConditionKind = "element_clickable"
	KindTextPresent      ConditionKind = "text_present"
	KindURLContains      ConditionKind = "url_contains"
	KindPageLoad         ConditionKind = "page_load"
	KindNetworkIdle      ConditionKind = "network_idle"
)

// DefaultNetworkQuiet is the quiet period used when network_idle is given
// no duration
const DefaultNetworkQuiet = 500 * time.Millisecond

// Condition is an immutable wait condition. Build one with the
// constructors below or ParseCondition.
type Condition struct {
	kind  ConditionKind
	arg   string
	quiet time.Duration
}

// ElementPresent waits until selector matches at least one element
func ElementPresent(selector string) Condition {
	return Condition{kind: KindElementPresent, arg: selector}
}

// ElementVisible waits until the first match of selector is rendered
func ElementVisible(selector string) Condition {
	return Condition{kind: KindElementVisible, arg: selector}
}

// ElementClickable waits until the first match of selector can take clicks
func ElementClickable(selector string) Condition {
	return Condition{kind: KindElementClickable, arg: selector}
}

// TextPresent waits until the body text contains text
func TextPresent(text string) Condition {
	return Condition{kind: KindTextPresent, arg: text}
}

// URLContains waits until the page URL contains substr
func URLContains(substr string) Condition {
	return Condition{kind: KindURLContains, arg: substr}
}

// PageLoad waits until document.readyState is "complete"
func PageLoad() Condition {
	return Condition{kind: KindPageLoad}
}

// NetworkIdle is satisfied once quiet has elapsed. It does not track
// in-flight requests.
func NetworkIdle(quiet time.Duration) Condition {
	if quiet <= 0 {
		quiet = DefaultNetworkQuiet
	}
	return Condition{kind: KindNetworkIdle, quiet: quiet}
}

// Kind returns the condition's kind
func (c Condition) Kind() ConditionKind { return c.kind }

// Arg returns the selector, text or URL fragment the condition tests
func (c Condition) Arg() string { return c.arg }

// Quiet returns the network_idle quiet period
func (c Condition) Quiet() time.Duration { return c.quiet }

func (c Condition) String() string {
	switch c.kind {
	case KindPageLoad:
		return string(c.kind)
	case KindNetworkIdle:
		return fmt.Sprintf("%s(%s)", c.kind, c.quiet)
	default:
		return fmt.Sprintf("%s(%q)", c.kind, c.arg)
	}
}

// ParseCondition builds a condition from its name and argument, as sent by
// tool clients. Hyphens and underscores are interchangeable; url_matches
// is accepted as url_contains. For network_idle, arg is milliseconds or a
// Go duration and may be empty.
func ParseCondition(name, arg string) (Condition, error) {
	kind := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")

	needArg := func(build func(string) Condition) (Condition, error) {
		if arg == "" {
			return Condition{}, fmt.Errorf("wait condition %s requires a value", kind)
		}
		return build(arg), nil
	}

	switch ConditionKind(kind) {
	case KindElementPresent:
		return needArg(ElementPresent)
	case KindElementVisible:
		return needArg(ElementVisible)
	case KindElementClickable:
		return needArg(ElementClickable)
	case KindTextPresent:
		return needArg(TextPresent)
	case KindURLContains, "url_matches":
		return needArg(URLContains)
	case KindPageLoad:
		return PageLoad(), nil
	case KindNetworkIdle:
		quiet, err := parseQuiet(arg)
		if err != nil {
			return Condition{}, err
		}
		return NetworkIdle(quiet), nil
	default:
		return Condition{}, fmt.Errorf("unknown wait condition %q", name)
	}
}

func parseQuiet(arg string) (time.Duration, error) {
	if arg == "" {
		return DefaultNetworkQuiet, nil
	}
	if ms, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("negative network idle duration %q", arg)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(arg)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid network idle duration %q", arg)
	}
	return d, nil
}
