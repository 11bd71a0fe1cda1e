package aggregate

import "github.com/tinytelemetry/cleanstat/internal/model"

// Summarize groups records by date and sums their counters. When
// selectedDate is non-empty only records on that date are considered.
//
// Rows follow the order in which each date is first encountered in records;
// they are not sorted, so chart labels line up with series positions.
func Summarize(records []model.LogRecord, selectedDate string) []model.DailyTotals {
	rows := make([]model.DailyTotals, 0)
	index := make(map[string]int)

	for _, r := range records {
		if selectedDate != "" && r.Date != selectedDate {
			continue
		}
		i, ok := index[r.Date]
		if !ok {
			i = len(rows)
			index[r.Date] = i
			rows = append(rows, model.DailyTotals{Date: r.Date})
		}
		rows[i].Add(r)
	}
	return rows
}

// Dates returns the distinct record dates in first-seen order.
func Dates(records []model.LogRecord) []string {
	dates := make([]string, 0)
	seen := make(map[string]bool)
	for _, r := range records {
		if seen[r.Date] {
			continue
		}
		seen[r.Date] = true
		dates = append(dates, r.Date)
	}
	return dates
}

// Total sums rows into a single row with an empty date.
func Total(rows []model.DailyTotals) model.DailyTotals {
	var total model.DailyTotals
	for _, row := range rows {
		total.DeletedFiles += row.DeletedFiles
		total.DeletedDirs += row.DeletedDirs
		total.DirtySegments += row.DirtySegments
	}
	return total
}
