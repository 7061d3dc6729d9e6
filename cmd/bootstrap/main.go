// Command bootstrap runs the Bootstrap pipeline (spec §4.7): a one-shot
// sync of an account's saved-post collections straight through the
// platform's private API, converting and appending pre-enriched records
// directly into the shared store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/snapetech/igarchive/internal/bootstrap"
	"github.com/snapetech/igarchive/internal/config"
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
	case "sync":
		err = syncCmd(ctx, cfg, os.Args[2:])
	case "collections":
		err = collectionsCmd(ctx, cfg, os.Args[2:])
	case "stats":
		err = statsCmd(cfg)
	default:
		usage()
		os.Exit(99)
	}
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bootstrap <sync|collections|stats> [flags]")
}

func newBootstrap(cfg *config.Config, bcfg bootstrap.Config) (*bootstrap.Bootstrap, error) {
	posts := recordstore.NewPostStore(cfg.PostsPath)
	tracker := synctracker.New(cfg.CursorsPath)
	sess, err := igsession.New(context.Background(), igsession.LoadCookieFile(cfg.SubscriptionFile))
	if err != nil {
		return nil, fmt.Errorf("build session: %w", err)
	}
	return bootstrap.New(posts, tracker, sess, cfg.MediaRoot, bcfg), nil
}

func syncCmd(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	limit := fs.Int("limit", 0, "max new records to append (0 = unlimited)")
	delay := fs.Duration("delay", 2*cfg.Delay, "delay between saved-feed pages")
	noMedia := fs.Bool("no-media", false, "skip media downloads")
	collection := fs.String("collection", "", "only sync records in a collection matching this substring")
	fs.Parse(args)

	b, err := newBootstrap(cfg, bootstrap.Config{
		Limit:      *limit,
		Delay:      *delay,
		NoMedia:    *noMedia,
		Collection: *collection,
		SaveEvery:  cfg.SaveEvery,
		PoolSize:   cfg.PoolSize,
	})
	if err != nil {
		return err
	}
	stats, err := b.Sync(ctx)
	log.Printf("bootstrap sync: %+v", stats)
	return err
}

func collectionsCmd(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("collections", flag.ExitOnError)
	collection := fs.String("collection", "", "highlight collections matching this substring")
	fs.Parse(args)

	b, err := newBootstrap(cfg, bootstrap.DefaultConfig())
	if err != nil {
		return err
	}
	cols, err := b.Collections(ctx)
	if err != nil {
		return err
	}
	fmt.Print(bootstrap.FormatCollections(cols, *collection))
	return nil
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
