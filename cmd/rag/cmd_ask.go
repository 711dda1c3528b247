package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"ragsearch/internal/answer"
	"ragsearch/internal/config"
	"ragsearch/internal/domain"
)

func handleAsk(cfg *config.AppConfig, args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	showSources := fs.Bool("sources", true, "Print the sources the answer used")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    rag ask [options] <question>

DESCRIPTION:
    Retrieve the most similar chunks and generate an answer grounded
    on them with the configured generator.

OPTIONS:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		log.Fatalf("failed to parse arguments: %v", err)
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	res, err := a.svc.Answer(ctx, []domain.Message{{Role: answer.RoleUser, Content: question}})
	if err != nil {
		log.Fatalf("ask failed: %v", err)
	}
	fmt.Println(res.Answer)
	if res.Degraded {
		fmt.Fprintln(os.Stderr, "warning: knowledge base unavailable, answered without context")
	}
	if *showSources && len(res.Sources) > 0 {
		fmt.Printf("\nSources (%s):\n", res.Provider)
		printSources(res.Sources)
	}
}
