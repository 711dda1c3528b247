package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"ragsearch/internal/config"
	"ragsearch/internal/service"
)

func handleIngest(cfg *config.AppConfig, args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	quiet := fs.Bool("q", false, "Disable the progress bar")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    rag ingest [options] <file or glob>...

DESCRIPTION:
    Extract text from each file, split it into overlapping windows,
    embed every chunk and store the batch. Globs support ** patterns.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    rag ingest notes.md
    rag ingest 'docs/**/*.md' report.pdf
`)
	}
	if err := fs.Parse(args); err != nil {
		log.Fatalf("failed to parse arguments: %v", err)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}

	paths, err := service.ResolveFiles(fs.Args())
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	results := ingest(ctx, a, paths, !*quiet)
	if failed := printIngestSummary(a, results); failed == len(results) {
		a.Close()
		os.Exit(1)
	}
}

// ingest shows a progress bar on stderr when it is a terminal.
func ingest(ctx context.Context, a *app, paths []string, progress bool) []service.FileResult {
	var bar *progressbar.ProgressBar
	if progress && term.IsTerminal(int(os.Stderr.Fd())) {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("ingesting"),
			progressbar.OptionSetWidth(32),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	results := a.svc.IngestFiles(ctx, paths, func(service.FileResult) {
		if bar != nil {
			_ = bar.Add(1)
		}
	})
	if bar != nil {
		_ = bar.Finish()
	}
	return results
}

func printIngestSummary(a *app, results []service.FileResult) (failed int) {
	chunks := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("  x %s: %v\n", r.Path, r.Err)
			continue
		}
		chunks += r.Chunks
		fmt.Printf("  + %s (%d chunks)\n", r.Path, r.Chunks)
	}
	primary, fallbacks := a.embedder.Stats()
	fmt.Printf("Ingested %d of %d files, %d chunks. Embedder %s: %d calls, %d fallback embeddings.\n",
		len(results)-failed, len(results), chunks, a.embedder.Name(), primary, fallbacks)
	return failed
}
