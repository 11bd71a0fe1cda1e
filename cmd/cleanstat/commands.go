package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/tinytelemetry/cleanstat/internal/ingest"
	"github.com/tinytelemetry/cleanstat/internal/logsource"
	"github.com/tinytelemetry/cleanstat/internal/model"
	"github.com/tinytelemetry/cleanstat/internal/series"
	"github.com/tinytelemetry/cleanstat/internal/socketrpc"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// backend is what the one-shot commands need: either a running service
// reached over its socket or a pipeline over the store opened in-process.
type backend interface {
	Ingest(source, text string) (ingest.RefreshResult, error)
	Summary(date string) (ingest.Summary, error)
	Clear() error
}

// withBackend prefers a running service, so a duckdb store locked by the
// service is never opened twice.
func withBackend(cfg appConfig, fn func(backend) error) error {
	if client, err := socketrpc.Dial(cfg.SocketPath); err == nil {
		defer client.Close()
		return fn(client)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ingest.NewPipeline(nil, series.NewStore(store.kv, cfg.StoreKey)))
}

func runIngest(b backend, args []string, stdin io.Reader, out io.Writer) error {
	if len(args) > 1 {
		return fmt.Errorf("ingest takes at most one file argument")
	}

	var src model.TextSource
	name := "stdin"
	if len(args) == 0 || args[0] == "-" {
		src = logsource.NewReaderSource(stdin)
	} else {
		src = logsource.NewFileSource(args[0])
		name = args[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	text, err := src.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	res, err := b.Ingest(name, text)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "parsed %d records from %s, %d stored\n", res.Parsed, name, res.Stored)
	return nil
}

func runSummary(b backend, date, format string, out io.Writer) error {
	if date != "" {
		if _, err := time.Parse(model.DateLayout, date); err != nil {
			return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
		}
	}
	summary, err := b.Summary(date)
	if err != nil {
		return err
	}
	return writeSummary(out, summary, format)
}

func runClear(b backend, out io.Writer) error {
	if err := b.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(out, "cleared all stored records")
	return nil
}

func writeSummary(out io.Writer, s ingest.Summary, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)

	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()

	case formatTable, "":
		if len(s.Rows) == 0 {
			_, err := fmt.Fprintln(out, "no cleanup records in the last 7 days")
			return err
		}
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("DATE", "FILES", "DIRS", "SEGMENTS")
		for _, row := range s.Rows {
			t.Row(tableRow(row.Date, row)...)
		}
		if len(s.Rows) > 1 {
			t.Row(tableRow("TOTAL", s.Total)...)
		}
		_, err := fmt.Fprintln(out, t.String())
		return err

	default:
		return fmt.Errorf("unknown --format %q (want table, json or yaml)", format)
	}
}

func tableRow(label string, t model.DailyTotals) []string {
	return []string{
		label,
		strconv.Itoa(t.DeletedFiles),
		strconv.Itoa(t.DeletedDirs),
		strconv.Itoa(t.DirtySegments),
	}
}
