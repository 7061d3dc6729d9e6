// Command enricher runs the Enricher pipeline (spec §4.5): it walks
// pending archive records, fetches metadata and media through the
// platform's private web API, and folds the results back into the shared
// record store.
//
// Grounded on the teacher's cmd/plex-tuner flag-driven entrypoint,
// generalized to claircore's cctool subcommand-dispatch shape
// (flag.NewFlagSet per subcommand) since this pipeline exposes several
// independent operations rather than one long-running server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/snapetech/igarchive/internal/config"
	"github.com/snapetech/igarchive/internal/enricher"
	"github.com/snapetech/igarchive/internal/igsession"
	"github.com/snapetech/igarchive/internal/recordstore"
	"github.com/snapetech/igarchive/internal/synctracker"
)

func main() {
	config.LoadEnvFile(".env")
	cfg := config.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(99)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(ctx, cfg, os.Args[2:])
	case "download-media":
		err = downloadMediaCmd(ctx, cfg, os.Args[2:])
	case "stats":
		err = statsCmd(cfg)
	case "test":
		err = testCmd(ctx, cfg)
	default:
		usage()
		os.Exit(99)
	}
	if err != nil {
		log.Fatalf("enricher: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: enricher <run|download-media|stats|test> [flags]")
}

func newEnricher(cfg *config.Config) (*enricher.Enricher, error) {
	posts := recordstore.NewPostStore(cfg.PostsPath)
	tracker := synctracker.New(cfg.CursorsPath)
	sess, err := igsession.New(context.Background(), igsession.LoadCookieFile(cfg.SubscriptionFile))
	if err != nil {
		return nil, fmt.Errorf("build session: %w", err)
	}
	return enricher.New(posts, tracker, sess, cfg.MediaRoot, enricher.Config{
		Delay:     cfg.Delay,
		SaveEvery: cfg.SaveEvery,
		PoolSize:  cfg.PoolSize,
	}), nil
}

func runCmd(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	limit := fs.Int("limit", 0, "max records to enrich (0 = unlimited)")
	delay := fs.Duration("delay", cfg.Delay, "delay between fetches")
	saveEvery := fs.Int("save-every", cfg.SaveEvery, "patch the store every N records")
	noMedia := fs.Bool("no-media", false, "skip media downloads")
	collection := fs.String("collection", "", "only enrich records in a collection matching this substring")
	fs.Parse(args)

	// The Enricher builds its fetch pacer from cfg.Delay in New, so the flag
	// value must be in place before construction.
	cfg.Delay = *delay
	e, err := newEnricher(cfg)
	if err != nil {
		return err
	}
	e.Cfg.Limit = *limit
	e.Cfg.Delay = *delay
	e.Cfg.SaveEvery = *saveEvery
	e.Cfg.NoMedia = *noMedia
	e.Cfg.Collection = *collection

	stats, err := e.Run(ctx)
	log.Printf("enricher run: %+v", stats)
	return err
}

func downloadMediaCmd(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("download-media", flag.ExitOnError)
	limit := fs.Int("limit", 0, "max records to re-download media for (0 = unlimited)")
	fs.Parse(args)

	e, err := newEnricher(cfg)
	if err != nil {
		return err
	}
	stats, err := e.Redownload(ctx, *limit)
	log.Printf("enricher download-media: %+v", stats)
	return err
}

func statsCmd(cfg *config.Config) error {
	tracker := synctracker.New(cfg.CursorsPath)
	summary, err := tracker.Summary()
	if err != nil {
		return err
	}
	fmt.Print(summary)
	return nil
}

// testCmd validates that cookies are present and usable by performing a
// single session construction and refresh, without touching the archive
// (spec §6 `test` subcommand: a cheap credential sanity check).
func testCmd(ctx context.Context, cfg *config.Config) error {
	sess, err := igsession.New(ctx, igsession.LoadCookieFile(cfg.SubscriptionFile))
	if err != nil {
		return fmt.Errorf("session construction failed: %w", err)
	}
	if err := sess.Refresh(ctx); err != nil {
		return fmt.Errorf("cookie refresh failed: %w", err)
	}
	fmt.Println("ok: cookies valid, session constructed")
	return nil
}
