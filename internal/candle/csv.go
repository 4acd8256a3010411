package candle

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ErrMissingColumn is returned when a required column is absent from the header.
var ErrMissingColumn = errors.New("missing required column")

var columnAliases = map[string]string{
	"timestamp": "timestamp",
	"time":      "timestamp",
	"date":      "timestamp",
	"datetime":  "timestamp",
	"open":      "open",
	"o":         "open",
	"high":      "high",
	"h":         "high",
	"low":       "low",
	"l":         "low",
	"close":     "close",
	"c":         "close",
	"price":     "close",
	"volume":    "volume",
	"vol":       "volume",
	"v":         "volume",
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ReadCSV parses one candle per row. The first row is a header; column names
// are matched case-insensitively against known aliases. Open defaults to close
// and volume to zero when their columns are absent. The returned series is
// validated with ValidateSeries.
func ReadCSV(r io.Reader) ([]Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read header: %w: empty input", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := map[string]int{}
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if canon, ok := columnAliases[key]; ok {
			if _, dup := idx[canon]; !dup {
				idx[canon] = i
			}
		}
	}
	for _, required := range []string{"timestamp", "high", "low", "close"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	var candles []Candle
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		c, err := parseRecord(record, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		candles = append(candles, c)
	}

	if err := ValidateSeries(candles); err != nil {
		return nil, err
	}
	return candles, nil
}

func parseRecord(record []string, idx map[string]int) (Candle, error) {
	field := func(name string) (string, bool) {
		i, ok := idx[name]
		if !ok || i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}
	number := func(name string) (float64, error) {
		s, _ := field(name)
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s %q", ErrInvalidCandle, name, s)
		}
		return v, nil
	}

	var c Candle
	ts, _ := field("timestamp")
	t, err := ParseTimestamp(ts)
	if err != nil {
		return c, err
	}
	c.Timestamp = t

	if c.Close, err = number("close"); err != nil {
		return c, err
	}
	if c.High, err = number("high"); err != nil {
		return c, err
	}
	if c.Low, err = number("low"); err != nil {
		return c, err
	}
	c.Open = c.Close
	if _, ok := field("open"); ok {
		if c.Open, err = number("open"); err != nil {
			return c, err
		}
	}
	if s, ok := field("volume"); ok && s != "" {
		if c.Volume, err = number("volume"); err != nil {
			return c, err
		}
	}
	return c, nil
}

// ParseTimestamp accepts RFC3339, a few common date layouts, and unix
// seconds or milliseconds. Results are in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", ErrInvalidCandle)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// 1e11 seconds is in the year 5138; anything larger is milliseconds.
		if n > 1e11 || n < -1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized timestamp %q", ErrInvalidCandle, s)
}
