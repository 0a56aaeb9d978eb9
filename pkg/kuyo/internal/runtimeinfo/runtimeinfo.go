// Package runtimeinfo detects where the process runs and describes it as
// event context. Detection runs on every call, so environment changes made
// after startup are visible.
package runtimeinfo

import (
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
)

var processStart = time.Now()

// Strategy describes one kind of runtime host.
type Strategy interface {
	Name() string
	Matches() bool
	Context() map[string]any
}

// Serverless matches Vercel functions and AWS Lambda.
type Serverless struct{}

func (Serverless) Name() string { return "serverless" }

func (Serverless) Matches() bool {
	return os.Getenv("VERCEL") != "" || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

func (Serverless) Context() map[string]any {
	ctx := map[string]any{}
	if os.Getenv("VERCEL") != "" {
		ctx["vercel"] = map[string]any{
			"env":          os.Getenv("VERCEL_ENV"),
			"region":       os.Getenv("VERCEL_REGION"),
			"deploymentId": os.Getenv("VERCEL_DEPLOYMENT_ID"),
			"runtime":      os.Getenv("VERCEL_RUNTIME"),
		}
	}
	if fn := os.Getenv("AWS_LAMBDA_FUNCTION_NAME"); fn != "" {
		ctx["lambda"] = map[string]any{
			"functionName": fn,
			"version":      os.Getenv("AWS_LAMBDA_FUNCTION_VERSION"),
			"region":       os.Getenv("AWS_REGION"),
			"memoryMb":     os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE"),
		}
	}
	return ctx
}

// Process is the fallback for long-running processes.
type Process struct{}

func (Process) Name() string { return "process" }

func (Process) Matches() bool { return true }

func (Process) Context() map[string]any {
	return map[string]any{
		"process": kuyo.CaptureSystemState(processStart).Map(),
	}
}

// Strategies are tried in order; the last always matches.
var Strategies = []Strategy{Serverless{}, Process{}}

// Detect returns the context of the first matching strategy, with the Go
// runtime description under "go" and the strategy name under "runtime".
// It never panics and never returns nil.
func Detect() (ctx map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			ctx = map[string]any{"runtime": "unknown"}
		}
	}()

	ctx = map[string]any{}
	for _, s := range Strategies {
		if !s.Matches() {
			continue
		}
		for k, v := range s.Context() {
			ctx[k] = v
		}
		ctx["runtime"] = s.Name()
		break
	}
	if _, ok := ctx["runtime"]; !ok {
		ctx["runtime"] = "unknown"
	}
	ctx["go"] = goRuntime()
	return ctx
}

func goRuntime() map[string]any {
	return map[string]any{
		"version": runtime.Version(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
}

// Build describes the main module from the embedded build info, or nil when
// the binary carries none.
func Build() map[string]any {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	build := map[string]any{
		"path":    info.Main.Path,
		"version": info.Main.Version,
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			build["revision"] = s.Value
		case "vcs.modified":
			build["modified"] = s.Value == "true"
		}
	}
	return build
}
