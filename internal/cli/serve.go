package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/ranking"
	"github.com/lazypower/recall/internal/server"
)

var serveNoSync bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoSync, "no-sync", false, "skip the initial index sync")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, eng, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if emb := eng.Embedder(); emb != nil {
		fmt.Fprintf(os.Stderr, "  embedder: %s\n", emb.Model())
	} else {
		fmt.Fprintf(os.Stderr, "  embedder: none (full-text search only)\n")
	}

	if !serveNoSync {
		go backgroundSync(eng)
	}

	srv := server.New(db.View(), eng, server.Options{
		Version:       VersionString(),
		CORSOrigins:   cfg.Server.CORSOrigins,
		PageSize:      cfg.Search.PageSize,
		MinScoreStage: ranking.ParseStage(cfg.Search.MinScoreStage),
	})
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "recall serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", db.Path)
		fmt.Fprintf(os.Stderr, "  memory: %s\n", eng.Syncer().Root())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}

// backgroundSync brings the index up to date without delaying startup.
func backgroundSync(eng *engine.Engine) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	stats, err := eng.Sync(ctx)
	if err != nil {
		log.Printf("sync: %v", err)
		return
	}
	if stats.Changed() || stats.Embedded > 0 {
		log.Printf("sync: %d added, %d updated, %d removed, %d embedded", stats.Added, stats.Updated, stats.Removed, stats.Embedded)
	}
}
