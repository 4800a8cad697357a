package cdp

// State is the lifecycle of one debugging connection
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateDomainsEnabling
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateDomainsEnabling:
		return "domains_enabling"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TargetDescriptor describes one controllable browsing context (tab), as
// returned by the /json discovery endpoint
type TargetDescriptor struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// IsPage reports whether the target is a regular tab
func (t TargetDescriptor) IsPage() bool {
	return t.Type == "" || t.Type == "page"
}
