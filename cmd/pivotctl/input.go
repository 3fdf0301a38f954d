package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pivoter/pivoter/internal/pivot"
)

// detectFormat picks the input format from an explicit flag or the file
// extension. Standard input defaults to JSON.
func detectFormat(format, path string) (string, error) {
	switch strings.ToLower(format) {
	case "json", "csv":
		return strings.ToLower(format), nil
	case "", "auto":
	default:
		return "", fmt.Errorf("unknown format %q (want json or csv)", format)
	}
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return "csv", nil
	}
	return "json", nil
}

func readRows(r io.Reader, format string) ([]pivot.DataRow, error) {
	if format == "csv" {
		return readCSV(r)
	}
	return readJSON(r)
}

// readJSON accepts an array of flat objects whose values are strings or numbers.
func readJSON(r io.Reader) ([]pivot.DataRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding JSON rows: %w", err)
	}
	return pivot.RowsFromJSON(raw)
}

// readCSV treats the first record as label names. One column must be the
// value label.
func readCSV(r io.Reader) ([]pivot.DataRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("CSV input has no header")
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	seen := make(map[string]int, len(header))
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if j, dup := seen[header[i]]; dup {
			return nil, fmt.Errorf("CSV header repeats column %q (columns %d and %d)", header[i], j+1, i+1)
		}
		seen[header[i]] = i
	}

	var rows []pivot.DataRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", len(rows)+2, err)
		}
		row := make(pivot.DataRow, len(header))
		for i, name := range header {
			row[name] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, row)
	}
}

// splitPath parses a slash separated query path. Blank input addresses the
// root; empty segments are kept so "a//b" reaches an empty label value.
func splitPath(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, "/")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// splitList parses a comma separated list, dropping blanks.
func splitList(s string, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
