// Command kuyo-devcollector runs a local collector that prints received
// events, optionally forwarding them to a cxdb server as well.
//
//	go run ./cmd/kuyo-devcollector -addr :4009 -verbose
//	go run ./cmd/kuyo-devcollector -cxdb localhost:9009
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"

	"github.com/kuyo-dev/kuyo-go/internal/devcollector"
	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
	"github.com/kuyo-dev/kuyo-go/pkg/kuyo/transports/cxdb"
	"github.com/kuyo-dev/kuyo-go/pkg/kuyo/transports/multi"
	"github.com/kuyo-dev/kuyo-go/pkg/kuyo/transports/stderr"
)

func main() {
	var (
		addr     = flag.String("addr", devcollector.DefaultAddr, "listen address")
		apiKey   = flag.String("api-key", "", "required x-api-key value (any non-empty key when unset)")
		verbose  = flag.Bool("verbose", false, "print stacks and extra data")
		cxdbAddr = flag.String("cxdb", "", "also forward events to the cxdb server at this address")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	var printer *stderr.Transport
	if *verbose {
		printer = stderr.New(stderr.WithVerbose())
	} else {
		printer = stderr.New()
	}
	var sink kuyo.Transport = printer

	if *cxdbAddr != "" {
		client, err := cxdbclient.Dial(*cxdbAddr, cxdbclient.WithClientTag("kuyo-devcollector"))
		if err != nil {
			logger.Fatalf("[Kuyo:DevCollector] Failed to connect to cxdb at %s: %v", *cxdbAddr, err)
		}
		defer client.Close()
		logger.Printf("[Kuyo:DevCollector] Forwarding to cxdb %s (session %d)", *cxdbAddr, client.SessionID())
		sink = multi.New(printer, cxdb.New(client, cxdb.WithLabels([]string{"kuyo", "devcollector"})))
	}

	srv := devcollector.New(
		devcollector.WithAPIKey(*apiKey),
		devcollector.WithSink(sink),
		devcollector.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx, *addr); err != nil {
		logger.Printf("[Kuyo:DevCollector] ERROR %v", err)
		os.Exit(1)
	}
	received, rejected := srv.Stats()
	logger.Printf("[Kuyo:DevCollector] Stopped: %d received, %d rejected", received, rejected)
}
