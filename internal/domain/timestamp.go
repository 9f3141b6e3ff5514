package domain

import (
	"log/slog"
	"strings"
	"time"

	"github.com/energitic/windfarm-etl/internal/dataset"
)

// OutputTimeLayout is the canonical timestamp format: ISO-8601 with a
// numeric UTC offset and no colon, e.g. "2025-01-01T13:00:00+0100".
const OutputTimeLayout = "2006-01-02T15:04:05-0700"

// timestampLayouts are the accepted input formats, tried in order.
// Layouts without an offset are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseInstant interprets a string as an instant in time, accepting common
// ISO-8601 variants (trailing "Z", explicit numeric offsets, space
// separator, bare dates). ok is false when no layout matches.
func ParseInstant(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeTimestampColumn rewrites a timestamp column in place: every value
// is parsed as an instant, converted to the target zone, and formatted with
// OutputTimeLayout. Unparseable or missing values become null rather than
// aborting the pass. An absent column is a no-op. Returns the number of
// values that failed to parse; a nonzero count is logged at warn level.
func NormalizeTimestampColumn(ds *dataset.Dataset, column string, loc *time.Location, logger *slog.Logger) int {
	if !ds.HasColumn(column) {
		return 0
	}

	failures := 0
	for i := 0; i < ds.Len(); i++ {
		v, ok := ds.At(i, column)
		if !ok || v.IsNull() {
			continue
		}

		var instant time.Time
		switch v.Kind() {
		case dataset.KindTime:
			instant, _ = v.Time()
		case dataset.KindText:
			s, _ := v.Text()
			var parsed bool
			if instant, parsed = ParseInstant(s); !parsed {
				failures++
				ds.Set(i, column, dataset.Null())
				continue
			}
		default:
			failures++
			ds.Set(i, column, dataset.Null())
			continue
		}

		ds.Set(i, column, dataset.Text(instant.In(loc).Format(OutputTimeLayout)))
	}

	if failures > 0 {
		logger.Warn("timestamp values failed to parse", "column", column, "failures", failures)
	}
	return failures
}

// NormalizeTimestamps runs NormalizeTimestampColumn on every candidate
// column: those whose name follows common temporal naming conventions, or
// whose values are already typed as timestamps.
func NormalizeTimestamps(ds *dataset.Dataset, loc *time.Location, logger *slog.Logger) *dataset.Dataset {
	for _, column := range ds.Columns() {
		if looksTemporal(column) || hasTimeValues(ds, column) {
			NormalizeTimestampColumn(ds, column, loc, logger)
		}
	}
	return ds
}

// looksTemporal reports whether a column name follows the temporal naming
// conventions seen across the sources: ts/ts_*, *_ts, *time*, *date*, *_at.
func looksTemporal(column string) bool {
	n := strings.ToLower(column)
	switch {
	case n == "ts", strings.HasPrefix(n, "ts_"), strings.HasSuffix(n, "_ts"):
		return true
	case strings.Contains(n, "time"), strings.Contains(n, "date"):
		return true
	case strings.HasSuffix(n, "_at"):
		return true
	}
	return false
}

func hasTimeValues(ds *dataset.Dataset, column string) bool {
	for i := 0; i < ds.Len(); i++ {
		if v, ok := ds.At(i, column); ok && v.Kind() == dataset.KindTime {
			return true
		}
	}
	return false
}
