// Command extractor runs the Extractor pipeline (spec §4.6): it mines text
// out of already-downloaded media via Whisper transcription and OCR, and
// patches the result back into the shared record store.
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
	"github.com/snapetech/igarchive/internal/extractor"
	"github.com/snapetech/igarchive/internal/recordstore"
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
	case "stats":
		err = statsCmd(cfg)
	case "sample":
		err = sampleCmd(ctx, cfg, os.Args[2:])
	default:
		usage()
		os.Exit(99)
	}
	if err != nil {
		log.Fatalf("extractor: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: extractor <run|stats|sample> [flags]")
}

// whisperModelPath is read from the environment since the spec treats the
// Whisper model itself as a black box (spec §1 Non-goals) — only where to
// find it is this pipeline's concern.
func whisperModelPath() string {
	if p := os.Getenv("SOCMED_WHISPER_MODEL"); p != "" {
		return p
	}
	return "base.en"
}

func newExtractor(cfg *config.Config, ecfg extractor.Config) *extractor.Extractor {
	posts := recordstore.NewPostStore(cfg.PostsPath)
	return extractor.New(posts, whisperModelPath(), ecfg)
}

func runCmd(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	collection := fs.String("collection", "", "only process records in a collection matching this substring")
	limit := fs.Int("limit", 0, "max records to process (0 = unlimited)")
	saveEvery := fs.Int("save-every", cfg.SaveEvery, "patch the store every N records")
	skipWhisper := fs.Bool("skip-whisper", false, "skip audio transcription")
	skipOCR := fs.Bool("skip-ocr", false, "skip frame/image OCR")
	fs.Parse(args)

	e := newExtractor(cfg, extractor.Config{
		Limit:             *limit,
		SaveEvery:         *saveEvery,
		Collection:        *collection,
		SkipWhisper:       *skipWhisper,
		SkipOCR:           *skipOCR,
		FrameIntervalSecs: cfg.FrameIntervalSecs,
	})
	stats, err := e.Run(ctx)
	log.Printf("extractor run: %+v", stats)
	return err
}

func statsCmd(cfg *config.Config) error {
	posts := recordstore.NewPostStore(cfg.PostsPath)
	all, err := posts.ReadPosts()
	if err != nil {
		return err
	}
	var withMedia, extracted, pendingExtraction int
	for _, p := range all {
		if p.HasLocalMedia() {
			withMedia++
		}
		if p.ExtractedText != nil {
			extracted++
		} else if p.HasLocalMedia() {
			pendingExtraction++
		}
	}
	fmt.Printf("records: %d, with local media: %d, extracted: %d, pending extraction: %d\n",
		len(all), withMedia, extracted, pendingExtraction)
	return nil
}

func sampleCmd(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("sample", flag.ExitOnError)
	postID := fs.String("post-id", "", "specific record id to sample")
	collection := fs.String("collection", "", "sample the first eligible record in this collection")
	fs.Parse(args)

	e := newExtractor(cfg, extractor.DefaultConfig())
	result, err := e.Sample(ctx, *postID, *collection)
	if err != nil {
		return err
	}
	fmt.Printf("%+v\n", result)
	return nil
}
