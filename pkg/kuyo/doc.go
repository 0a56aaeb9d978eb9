// Package kuyo captures errors and messages from Go services and forwards
// them to a Kuyo collector.
//
// An Engine owns the configuration, the current Session, one active Adapter
// and a Transport. Adapters bind the engine to a runtime surface: the
// process (panics, termination signals), the default slog handler, net/http
// and gorilla/mux handlers, or agent runners. The engine asks the active
// adapter for context, builds an Event and hands it to the transport on a
// background goroutine.
//
// # Quick Start
//
//	kuyo.Init(kuyo.Config{APIKey: "k1"}, kuyo.WithAdapter(nethttp.Factory()))
//	defer kuyo.Destroy()
//
//	http.Handle("/", kuyo.WithKuyo(mux))
//	kuyo.CaptureMessage("started", kuyo.LevelInfo, nil)
//
// Init registers only the adapter passed with WithAdapter. Without one no
// runtime hooks are installed and every event reports platform "unknown";
// services with no HTTP surface usually pass process.Factory().
//
// For isolated instances, create engines directly:
//
//	engine := kuyo.New(kuyo.Config{APIKey: "k1"}, kuyo.WithTransport(stderr.New()))
//	engine.UseAdapter(process.New(engine))
//
// # Design Principles
//
//   - Telemetry never crashes the host: delivery errors are logged in debug
//     mode and swallowed
//   - Wrappers are transparent: failures they observe are captured and then
//     re-raised unchanged
//   - Best effort: capture calls return before delivery; use Flush before exit
package kuyo
