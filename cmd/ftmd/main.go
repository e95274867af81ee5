// Command ftmd is the tracking daemon: it owns one internal/engine.Engine,
// serves the internal/api HTTP surface on 127.0.0.1, and maps OS signals
// to the same graceful-shutdown path as POST /api/shutdown, in the same
// spirit as a small single-purpose server binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/curioushi/ftm/internal/api"
	"github.com/curioushi/ftm/internal/engine"
	"github.com/curioushi/ftm/internal/tracelog"
)

func main() {
	port := flag.Int("port", 7777, "TCP port to bind on 127.0.0.1")
	dir := flag.String("dir", "", "optional directory to check out eagerly at startup")
	flag.Parse()

	targets, err := tracelog.ParseTargets(os.Getenv("FTM_TRACE"))
	if err != nil {
		log.Fatalf("ftmd: %v", err)
	}
	tracelog.SetTarget(targets)

	eng := engine.New()
	if *dir != "" {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			log.Fatalf("ftmd: resolve %s: %v", *dir, err)
		}
		if err := eng.Checkout(abs); err != nil {
			log.Fatalf("ftmd: checkout %s: %v", abs, err)
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", *port),
		Handler: api.New(eng),
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		log.Fatalf("ftmd: listen: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("ftmd: listening on %s", srv.Addr)
		serveErr <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		log.Printf("ftmd: signal received, shutting down")
	case <-eng.ShutdownRequested():
		log.Printf("ftmd: shutdown requested, shutting down")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("ftmd: serve: %v", err)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ftmd: graceful shutdown failed: %v", err)
	}
	if err := eng.Close(); err != nil {
		log.Printf("ftmd: engine close failed: %v", err)
	}
}
