package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"ragsearch/internal/config"
	"ragsearch/internal/domain"
	"ragsearch/internal/service"
	"ragsearch/internal/tui"
)

// handleSearch runs one query in line mode, or the interactive screen when
// no query is given and stdout is a terminal.
func handleSearch(cfg *config.AppConfig, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	topK := fs.Int("k", cfg.Retrieval.TopK, "Number of results")
	var preload []string
	fs.Func("ingest", "Ingest files matching this glob before searching (repeatable)", func(s string) error {
		preload = append(preload, s)
		return nil
	})

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    rag search [options] [query]

DESCRIPTION:
    Rank stored chunks by cosine similarity to the query. Without a
    query on a terminal, opens the interactive search screen.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    rag search "how are chunks stored"
    rag search -k 5 -ingest 'notes/*.md'
`)
	}
	if err := fs.Parse(args); err != nil {
		log.Fatalf("failed to parse arguments: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	subtitle := fmt.Sprintf("store: %s, embedder: %s", cfg.Store.Type, a.embedder.Name())
	if len(preload) > 0 {
		paths, err := service.ResolveFiles(preload)
		if err != nil {
			log.Fatalf("%v", err)
		}
		results := ingest(ctx, a, paths, true)
		chunks := 0
		for _, r := range results {
			chunks += r.Chunks
		}
		subtitle = fmt.Sprintf("Ingested %d files, %d chunks. %s", len(results), chunks, subtitle)
	}

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fs.Usage()
			os.Exit(1)
		}
		if _, err := tea.NewProgram(tui.New(a.svc, *topK, subtitle), tea.WithAltScreen()).Run(); err != nil {
			log.Fatal(err)
		}
		return
	}

	sources, err := a.svc.Retrieve(ctx, query, *topK)
	if err != nil {
		log.Fatalf("search failed: %v", err)
	}
	printSources(sources)
}

func printSources(sources []domain.Source) {
	if len(sources) == 0 {
		fmt.Println("No results.")
		return
	}
	for i, s := range sources {
		name := s.Metadata.Filename
		if name == "" {
			name = "unknown"
		}
		fmt.Printf("[%d] %s chunk %d/%d  similarity %.4f\n", i+1, name, s.Metadata.ChunkIndex+1, s.Metadata.TotalChunks, s.Similarity)
		fmt.Printf("    %s\n\n", strings.ReplaceAll(strings.TrimSpace(s.Content), "\n", "\n    "))
	}
}
