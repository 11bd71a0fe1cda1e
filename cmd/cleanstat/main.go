package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

const usageText = `Usage: cleanstat [flags] [command]

Commands:
  serve               refresh periodically and serve the API (default)
  ingest [file|-]     parse a log once and merge it into the store
  summary             print per-date totals (--date, --format)
  clear               remove every stored record

Flags:
`

func main() {
	flags := pflag.NewFlagSet("cleanstat", pflag.ContinueOnError)
	configPath := flags.String("config", "", "config file (default is $HOME/.config/cleanstat/config.yml)")
	showVersion := flags.Bool("version", false, "print version information")
	date := flags.String("date", "", "summary: only this date (YYYY-MM-DD)")
	format := flags.String("format", formatTable, "summary: output format (table, json, yaml)")
	registerConfigFlags(flags)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usageText)
		flags.PrintDefaults()
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	if *showVersion {
		fmt.Printf("Cleanstat - Cleanup Log Statistics\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	command, args := "serve", flags.Args()
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	cfg, err := loadConfig(*configPath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "serve":
		err = runServer(cfg)
	case "ingest":
		err = withBackend(cfg, func(b backend) error {
			return runIngest(b, args, os.Stdin, os.Stdout)
		})
	case "summary":
		err = withBackend(cfg, func(b backend) error {
			return runSummary(b, *date, *format, os.Stdout)
		})
	case "clear":
		err = withBackend(cfg, func(b backend) error {
			return runClear(b, os.Stdout)
		})
	default:
		flags.Usage()
		err = fmt.Errorf("unknown command %q", command)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
