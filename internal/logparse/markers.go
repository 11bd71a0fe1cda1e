package logparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tinytelemetry/cleanstat/internal/model"
)

// TimestampRegex matches the second-resolution timestamp a participating line starts with.
var TimestampRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`)

// Marker is one labeled numeric counter recognized inside a log line.
// A line selects a marker when it contains every label; the value is the
// first capture group of Pattern.
type Marker struct {
	Name    string
	Labels  []string
	Pattern *regexp.Regexp
	Apply   func(r *model.LogRecord, n int)
}

// Markers is evaluated in order and the first marker whose labels all match wins,
// even when its pattern then fails to yield a number.
var Markers = []Marker{
	{
		Name:    "deleted-files",
		Labels:  []string{"已删除文件数:"},
		Pattern: regexp.MustCompile(`已删除文件数:\s*(\d+)`),
		Apply:   func(r *model.LogRecord, n int) { r.DeletedFiles += n },
	},
	{
		Name:    "deleted-dirs",
		Labels:  []string{"已删除目录数:"},
		Pattern: regexp.MustCompile(`已删除目录数:\s*(\d+)`),
		Apply:   func(r *model.LogRecord, n int) { r.DeletedDirs += n },
	},
	{
		Name:    "dirty-segments",
		Labels:  []string{"已回收", "个脏段"},
		Pattern: regexp.MustCompile(`已回收\s*(\d+)\s*个脏段`),
		Apply:   func(r *model.LogRecord, n int) { r.DirtySegments += n },
	},
}

func (m Marker) matchesLabels(line string) bool {
	for _, label := range m.Labels {
		if !strings.Contains(line, label) {
			return false
		}
	}
	return true
}

// value extracts the marker's number from line. ok is false when the pattern
// does not match or the capture does not fit in an int.
func (m Marker) value(line string) (int, bool) {
	match := m.Pattern.FindStringSubmatch(line)
	if len(match) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Parse turns raw log text into one record per distinct timestamp, in the
// order timestamps are first seen. Lines sharing a timestamp are summed.
// Lines without a leading timestamp are ignored.
func Parse(text string) []model.LogRecord {
	var order []string
	byTimestamp := make(map[string]*model.LogRecord)

	for _, line := range strings.Split(text, "\n") {
		ts := TimestampRegex.FindString(line)
		if ts == "" {
			continue
		}

		rec, ok := byTimestamp[ts]
		if !ok {
			rec = &model.LogRecord{
				Timestamp: ts,
				Date:      ts[:len(model.DateLayout)],
			}
			byTimestamp[ts] = rec
			order = append(order, ts)
		}

		applyFirstMarker(rec, line)
	}

	records := make([]model.LogRecord, 0, len(order))
	for _, ts := range order {
		records = append(records, *byTimestamp[ts])
	}
	return records
}

func applyFirstMarker(rec *model.LogRecord, line string) {
	for _, m := range Markers {
		if !m.matchesLabels(line) {
			continue
		}
		if n, ok := m.value(line); ok {
			m.Apply(rec, n)
		}
		return
	}
}
