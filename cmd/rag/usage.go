package main

import (
	"fmt"
	"os"
)

func printUsage() {
	fmt.Fprintf(os.Stderr, `rag - retrieval-augmented search over your documents

USAGE:
    rag [-config path] <command> [options]

COMMANDS:
    ingest    Chunk, embed and store .txt, .md and .pdf files
    search    Search stored chunks (interactive on a terminal)
    ask       Answer a question from stored chunks
    serve     Run the HTTP API
    list      List stored chunks, newest first
    cleanup   Delete chunks past the retention window
    clear     Delete every stored chunk

GLOBAL OPTIONS:
    -config   Path to YAML config (default ./config.yaml, then ~/.config/rag/config.yaml)

Run 'rag <command> -h' for command options.
`)
}
