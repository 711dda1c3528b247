package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"
	"unicode/utf8"

	"ragsearch/internal/config"
)

func handleList(cfg *config.AppConfig, args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("n", 20, "Maximum chunks to print (0 for all)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "USAGE:\n    rag list [options]\n\nOPTIONS:\n")
		fs.PrintDefaults()
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

	records, err := a.svc.ListDocuments(ctx)
	if err != nil {
		log.Fatalf("list failed: %v", err)
	}
	fmt.Printf("%d chunks stored\n", len(records))
	for i, r := range records {
		if *limit > 0 && i == *limit {
			fmt.Printf("... %d more\n", len(records)-i)
			break
		}
		fmt.Printf("%s  %s  %d/%d  %s\n", r.Metadata.CreatedAt.Format(time.DateTime), r.Metadata.Filename,
			r.Metadata.ChunkIndex+1, r.Metadata.TotalChunks, preview(r.Content, 60))
	}
}

func handleCleanup(cfg *config.AppConfig, args []string) {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "USAGE:\n    rag cleanup\n\nDeletes chunks older than sweeper.retention_mins (%d).\n", cfg.Sweeper.RetentionMins)
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

	n, err := a.svc.Cleanup(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Printf("Deleted %d expired chunks.\n", n)
}

func handleClear(cfg *config.AppConfig, args []string) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	yes := fs.Bool("y", false, "Do not ask for confirmation")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "USAGE:\n    rag clear [options]\n\nOPTIONS:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		log.Fatalf("failed to parse arguments: %v", err)
	}
	if !*yes && !confirm(fmt.Sprintf("Delete every chunk in the %s store?", cfg.Store.Type)) {
		fmt.Println("Aborted.")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	if err := a.svc.Clear(ctx); err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Println("Knowledge base cleared.")
}

func confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
