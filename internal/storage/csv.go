// Package storage reads historical candle datasets from disk and
// persists run artifacts. The CSV reader is grounded on the
// chidi150c-coinbase example's loadCSV (case-insensitive headers,
// RFC3339-or-unix-seconds timestamps, ascending sort) combined with the
// teacher's internal/common.FileSystemReader path-traversal guard.
package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"backtestd/internal/backtest"
)

// CSVDataset reads dataset files from one root directory, rejecting any
// path that would escape it.
type CSVDataset struct {
	RootPath string
}

// NewCSVDataset builds a reader rooted at rootPath.
func NewCSVDataset(rootPath string) *CSVDataset {
	return &CSVDataset{RootPath: rootPath}
}

// LoadCandles reads one coin's candle series from relativePath, a CSV
// with headers time|timestamp, open, high, low, close, volume (case
// insensitive; unknown columns ignored). The returned candles are
// stamped with coinID and sorted ascending by timestamp.
func (d *CSVDataset) LoadCandles(coinID, relativePath string) ([]backtest.Candle, error) {
	fullPath := filepath.Join(d.RootPath, relativePath)
	if !strings.HasPrefix(fullPath, d.RootPath) {
		return nil, fmt.Errorf("storage: path traversal attempt blocked for %q", relativePath)
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", relativePath, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var headers []string
	var out []backtest.Candle
	rowIdx := 0

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("storage: read %s: %w", relativePath, err)
		}
		if rowIdx == 0 {
			headers = rec
			rowIdx++
			continue
		}

		row := make(map[string]string, len(headers))
		for j, h := range headers {
			key := strings.ToLower(strings.TrimSpace(h))
			if j < len(rec) {
				row[key] = strings.TrimSpace(rec[j])
			}
		}

		ts := firstNonEmpty(row, "time", "timestamp")
		op := firstNonEmpty(row, "open")
		hp := firstNonEmpty(row, "high")
		lp := firstNonEmpty(row, "low")
		cp := firstNonEmpty(row, "close")
		vp := firstNonEmpty(row, "volume", "vol")
		if ts == "" || op == "" || cp == "" {
			rowIdx++
			continue
		}

		parsed, err := parseFlexibleTime(ts)
		if err != nil {
			rowIdx++
			continue
		}

		open, _ := strconv.ParseFloat(op, 64)
		high, _ := strconv.ParseFloat(hp, 64)
		low, _ := strconv.ParseFloat(lp, 64)
		closePrice, _ := strconv.ParseFloat(cp, 64)
		volume, _ := strconv.ParseFloat(vp, 64)

		out = append(out, backtest.Candle{
			CoinID:    coinID,
			Timestamp: parsed,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
		rowIdx++
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// LoadManifest loads and merges several coins' candle series, keyed by
// coinID -> relative CSV path, into one ascending-by-timestamp slice
// suitable for backtest.RunInput.Candles.
func (d *CSVDataset) LoadManifest(coinFiles map[string]string) ([]backtest.Candle, error) {
	var out []backtest.Candle
	for coinID, relativePath := range coinFiles {
		candles, err := d.LoadCandles(coinID, relativePath)
		if err != nil {
			return nil, err
		}
		out = append(out, candles...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// parseFlexibleTime accepts RFC3339 or unix seconds, mirroring the
// teacher example's parseTimeFlexible.
func parseFlexibleTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("storage: unrecognized timestamp %q", s)
}

func firstNonEmpty(row map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := row[k]; v != "" {
			return v
		}
	}
	return ""
}
