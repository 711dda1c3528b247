package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"ragsearch/internal/config"
)

var subcommands = map[string]func(cfg *config.AppConfig, args []string){
	"ingest":  handleIngest,
	"search":  handleSearch,
	"ask":     handleAsk,
	"serve":   handleServe,
	"list":    handleList,
	"cleanup": handleCleanup,
	"clear":   handleClear,
}

func main() {
	_ = godotenv.Load()

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Find the subcommand; everything before it is a global flag.
	subIdx := -1
	for i, arg := range args {
		if arg == "-h" || arg == "-help" || arg == "--help" {
			printUsage()
			os.Exit(0)
		}
		if !strings.HasPrefix(arg, "-") {
			if _, ok := subcommands[arg]; ok {
				subIdx = i
				break
			}
		}
	}
	if subIdx == -1 {
		fmt.Fprintf(os.Stderr, "Error: No subcommand specified\n\n")
		printUsage()
		os.Exit(1)
	}

	cfgPath := ""
	global := args[:subIdx]
	for i := 0; i < len(global); i++ {
		switch f := global[i]; {
		case f == "-config" || f == "--config":
			if i+1 < len(global) {
				cfgPath = global[i+1]
				i++
			}
		case strings.HasPrefix(f, "-config=") || strings.HasPrefix(f, "--config="):
			cfgPath = f[strings.Index(f, "=")+1:]
		default:
			fmt.Fprintf(os.Stderr, "Error: Unknown global flag: %s\n\n", f)
			printUsage()
			os.Exit(1)
		}
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	subcommands[args[subIdx]](cfg, args[subIdx+1:])
}
