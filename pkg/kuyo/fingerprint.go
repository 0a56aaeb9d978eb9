// fingerprint.go generates stable hashes for grouping similar events.

package kuyo

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Fingerprint hashes the stable parts of an event: level, platform, the
// capture source from extra and the first three stack frames. Timestamps,
// ids, messages, line numbers and addresses are ignored. Events without a
// stack fall back to the message so distinct messages do not collide.
func Fingerprint(event Event) string {
	parts := []string{string(event.Level), event.Platform}
	if src, ok := event.Extra["source"].(string); ok {
		parts = append(parts, src)
	}

	frames := normalizeStack(event.Stack)
	if len(frames) == 0 {
		parts = append(parts, event.Message)
	}
	parts = append(parts, frames...)

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:16])
}

var (
	// Match function names like "main.doSomething" or "pkg/subpkg.Function"
	funcNamePattern = regexp.MustCompile(`^([a-zA-Z0-9_./*()]+\.[a-zA-Z0-9_]+)`)

	// Match offset patterns like "+0x123"
	offsetPattern = regexp.MustCompile(`\+0x[0-9a-fA-F]+`)
)

// skippedFramePrefixes are frames belonging to the runtime or to this SDK;
// they are identical for every capture and would make fingerprints collide.
var skippedFramePrefixes = []string{
	"runtime/debug.",
	"runtime.",
	"panic(",
	"github.com/kuyo-dev/kuyo-go/",
}

// normalizeStack extracts the first 3 function names from a Go stack trace,
// stripping arguments, offsets and addresses.
func normalizeStack(trace string) []string {
	if trace == "" {
		return nil
	}

	var frames []string
	for _, line := range strings.Split(trace, "\n") {
		if strings.HasPrefix(line, "\t") {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "goroutine ") || strings.HasPrefix(line, "/") {
			continue
		}
		if skipFrame(line) {
			continue
		}

		funcLine := offsetPattern.ReplaceAllString(line, "")
		funcLine = memAddrPattern.ReplaceAllString(funcLine, "")
		if idx := strings.LastIndex(funcLine, "("); idx > 0 {
			funcLine = funcLine[:idx]
		}
		funcLine = strings.TrimSpace(funcLine)

		if match := funcNamePattern.FindString(funcLine); match != "" {
			frames = append(frames, match)
			if len(frames) >= 3 {
				break
			}
		}
	}
	return frames
}

func skipFrame(line string) bool {
	for _, prefix := range skippedFramePrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
