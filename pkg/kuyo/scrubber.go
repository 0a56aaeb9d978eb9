// scrubber.go redacts secrets and PII from events before delivery.

package kuyo

import (
	"fmt"
	"regexp"
	"strings"
)

// ScrubberConfig controls scrubbing behavior.
type ScrubberConfig struct {
	// SensitiveKeys contains additional substrings marking extra keys whose
	// values are always redacted.
	SensitiveKeys []string

	// MaxMessageSize is the maximum length for messages (default: 4096).
	MaxMessageSize int

	// MaxStackSize is the maximum length for stacks (default: 32768).
	MaxStackSize int

	// MaxValueSize is the maximum length for a string value in extra (default: 1024).
	MaxValueSize int

	// ScrubMessages enables pattern scrubbing of messages (default: true).
	ScrubMessages bool
}

// DefaultScrubberConfig returns production-safe defaults.
func DefaultScrubberConfig() ScrubberConfig {
	return ScrubberConfig{
		MaxMessageSize: 4096,
		MaxStackSize:   32768,
		MaxValueSize:   1024,
		ScrubMessages:  true,
	}
}

// Compiled regex patterns for message scrubbing (compiled once at package init)
var messageScrubPatterns = []*regexp.Regexp{
	// API keys and tokens
	regexp.MustCompile(`(?i)(api[_-]?key|token)[=:\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)(authorization|bearer)[=:\s]+['"]?[\w\-\.]+['"]?[\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`(?i)gh[po]_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`(?i)github_pat_[a-zA-Z0-9_]{22,}`),
	regexp.MustCompile(`(?i)xox[baprs]-[a-zA-Z0-9\-]{10,}`),
	regexp.MustCompile(`(?i)eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),

	// Credentials
	regexp.MustCompile(`(?i)(password|passwd|secret|credential)[=:\s]+['"]?[^\s'",]+['"]?`),

	// PII
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
}

var sensitiveKeyPatterns = []string{
	"token",
	"key",
	"secret",
	"password",
	"credential",
	"auth",
	"passwd",
}

var (
	pathNormalizationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/home/[^/]+/`),
		regexp.MustCompile(`/Users/[^/]+/`),
		regexp.MustCompile(`C:\\Users\\[^\\]+\\`),
		regexp.MustCompile(`/tmp/[^/]+/`),
	}
	memAddrPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)
)

// Scrubber redacts sensitive data from events.
type Scrubber struct {
	cfg ScrubberConfig
}

// NewScrubber creates a new scrubber with the given configuration.
func NewScrubber(cfg ScrubberConfig) *Scrubber {
	return &Scrubber{cfg: cfg}
}

// ScrubEvent returns a scrubbed copy of event. Context, the session and
// identity fields pass through untouched.
func (s *Scrubber) ScrubEvent(event Event) Event {
	event.Message = s.ScrubMessage(event.Message)
	event.Stack = s.ScrubStack(event.Stack)
	if event.Extra != nil {
		event.Extra = s.scrubMap(event.Extra)
	}
	return event
}

// ScrubMessage scrubs sensitive patterns from a message.
func (s *Scrubber) ScrubMessage(msg string) string {
	if s.cfg.MaxMessageSize > 0 && len(msg) > s.cfg.MaxMessageSize {
		msg = truncateWithMarker(msg, s.cfg.MaxMessageSize)
	}
	if !s.cfg.ScrubMessages {
		return msg
	}
	for _, pattern := range messageScrubPatterns {
		msg = pattern.ReplaceAllString(msg, "[REDACTED]")
	}
	return msg
}

// ScrubStack normalizes user paths, masks addresses and limits stack size.
func (s *Scrubber) ScrubStack(stack string) string {
	if stack == "" {
		return stack
	}
	result := stack
	for _, pattern := range pathNormalizationPatterns {
		result = pattern.ReplaceAllString(result, "/[PATH]/")
	}
	result = memAddrPattern.ReplaceAllString(result, "0x...")

	if s.cfg.MaxStackSize > 0 && len(result) > s.cfg.MaxStackSize {
		result = truncateWithMarker(result, s.cfg.MaxStackSize)
	}
	return result
}

func (s *Scrubber) scrubMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for key, value := range m {
		if s.isSensitiveKey(key) {
			out[key] = "[REDACTED]"
			continue
		}
		out[key] = s.scrubValue(value)
	}
	return out
}

func (s *Scrubber) scrubValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		return s.scrubMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.scrubValue(item)
		}
		return out
	case string:
		return s.scrubString(v)
	case error:
		return s.scrubString(v.Error())
	case fmt.Stringer:
		return s.scrubString(v.String())
	default:
		return v
	}
}

func (s *Scrubber) scrubString(v string) string {
	v = s.ScrubMessage(v)
	if s.cfg.MaxValueSize > 0 && len(v) > s.cfg.MaxValueSize {
		v = truncateWithMarker(v, s.cfg.MaxValueSize)
	}
	return v
}

func (s *Scrubber) isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	for _, pattern := range s.cfg.SensitiveKeys {
		if pattern != "" && strings.Contains(keyLower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// truncateWithMarker truncates a string and adds a truncation marker.
func truncateWithMarker(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	marker := "...[TRUNCATED]"
	if maxLen <= len(marker) {
		return marker[:maxLen]
	}
	return s[:maxLen-len(marker)] + marker
}
