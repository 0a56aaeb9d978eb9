// event.go defines the event and session records delivered to the collector.

package kuyo

// Level indicates the severity of a captured event.
type Level string

const (
	// LevelError is used for exceptions and failures.
	LevelError Level = "error"

	// LevelWarning indicates a non-fatal issue that may need attention.
	LevelWarning Level = "warning"

	// LevelInfo is the default level for captured messages.
	LevelInfo Level = "info"
)

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelError, LevelWarning, LevelInfo:
		return true
	}
	return false
}

// Environment is the deployment environment label of a session.
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentStaging     Environment = "staging"
	EnvironmentProduction  Environment = "production"
	EnvironmentTest        Environment = "test"
)

// ParseEnvironment maps a label onto the closed set of environments.
// Unknown or empty labels resolve to EnvironmentProduction.
func ParseEnvironment(label string) Environment {
	switch env := Environment(label); env {
	case EnvironmentDevelopment, EnvironmentStaging, EnvironmentProduction, EnvironmentTest:
		return env
	}
	return EnvironmentProduction
}

// Session identifies one continuous period of SDK activity.
// It holds only scalar fields so that copying a Session is a deep copy.
type Session struct {
	ID          string      `json:"id"`
	Environment Environment `json:"environment"`

	// StartedAt, EndedAt and Duration are unix milliseconds.
	// EndedAt and Duration stay zero: nothing ends a session early.
	StartedAt int64 `json:"startedAt"`
	EndedAt   int64 `json:"endedAt"`
	Duration  int64 `json:"duration"`

	UserAgent string `json:"userAgent"`
	IPAddress string `json:"ipAddress"`
}

// Event is one reportable occurrence, either an exception or a message.
// Events are built by Engine.CreateEvent and must not be mutated afterward.
type Event struct {
	ID string `json:"id"`

	// Timestamp is the capture time in unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Level   Level  `json:"level"`

	// Platform is the name of the adapter that produced the event, or "unknown".
	Platform string `json:"platform"`

	// Context is the adapter's environment snapshot at capture time.
	Context map[string]any `json:"context"`

	// Extra is caller-supplied data.
	Extra map[string]any `json:"extra,omitempty"`

	Session Session `json:"session"`
}

// PlatformUnknown is reported when no adapter is active.
const PlatformUnknown = "unknown"

// copyMap returns a shallow copy of m, or nil when m is nil.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
