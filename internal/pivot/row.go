// Package pivot builds hierarchical aggregation trees from labeled numeric rows.
//
// A data row maps label names (dimensions such as "eyes" or "nation") to label
// values, plus the reserved ValueLabel carrying the row's number. Rows are
// ordered by a hierarchy of label names, inserted into a Tree, and queried by a
// path of label values with an aggregation Func.
package pivot

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueLabel is the reserved label holding a row's numerical value.
const ValueLabel = "#"

// DataRow is a raw record: label name to label value, plus ValueLabel.
type DataRow map[string]string

// Row is a data row ordered by a hierarchy and ready for insertion into a Tree.
type Row struct {
	Labels []string `json:"labels"`
	Value  float64  `json:"value"`
}

func (r Row) String() string {
	return fmt.Sprintf("Row{labels=%v, value=%.2f}", r.Labels, r.Value)
}

// IsNumber reports whether s parses as a float64.
func IsNumber(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func parseValue(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

// Validate checks that rows are non-empty, share one label set, and carry a
// numeric ValueLabel. The first row's labels are the reference set.
func Validate(rows []DataRow) error {
	if len(rows) == 0 {
		return rowsError(-1, "input data rows cannot be nil or empty, provide at least one data row")
	}

	reference := rows[0]
	for i, row := range rows {
		if err := validateRow(i, row, len(reference)); err != nil {
			return err
		}
		if err := validateRowLabels(i, row, reference); err != nil {
			return err
		}
	}
	return nil
}

func validateRow(i int, row DataRow, size int) error {
	if len(row) != size {
		return rowsError(i, "inconsistent number of labels in the data row: expected %d labels, but found %d: %v",
			size, len(row), row)
	}
	value, ok := row[ValueLabel]
	if !ok {
		return rowsError(i, "each data row must contain a label '%s' for the numerical value", ValueLabel)
	}
	if !IsNumber(value) {
		return rowsError(i, "invalid numerical value for label '%s': '%s', the value must be a valid number",
			ValueLabel, value)
	}
	return nil
}

func validateRowLabels(i int, row DataRow, reference DataRow) error {
	for _, label := range sortedKeys(row) {
		if strings.TrimSpace(label) == "" {
			return rowsError(i, "data row contains empty or blank labels: %v, labels must be non-empty strings", row)
		}
		if _, ok := reference[label]; !ok {
			return rowsError(i, "label '%s' in data row %v does not match the consistent set of labels: %v",
				label, row, sortedKeys(reference))
		}
	}
	return nil
}

// NaturalHierarchy returns the label names of rows, excluding ValueLabel, in
// ascending order.
func NaturalHierarchy(rows []DataRow) []string {
	if len(rows) == 0 {
		return nil
	}
	names := make([]string, 0, len(rows[0]))
	for _, label := range sortedKeys(rows[0]) {
		if label != ValueLabel {
			names = append(names, label)
		}
	}
	return names
}

// ValidateHierarchy checks hierarchy against already validated rows. A
// hierarchy may name a subset of the row labels; the rest are aggregated away.
func ValidateHierarchy(rows []DataRow, hierarchy []string) error {
	if len(hierarchy) == 0 {
		return hierarchyError("pivot hierarchy cannot be empty")
	}
	if len(rows) == 0 {
		return rowsError(-1, "input data rows cannot be nil or empty, provide at least one data row")
	}

	seen := make(map[string]bool, len(hierarchy))
	for _, name := range hierarchy {
		if name == ValueLabel {
			return hierarchyError("pivot hierarchy cannot contain the value label '%s'", ValueLabel)
		}
		if seen[name] {
			return hierarchyError("pivot hierarchy contains duplicated label '%s'", name)
		}
		seen[name] = true
		if _, ok := rows[0][name]; !ok {
			return hierarchyError("pivot hierarchy label '%s' is not present in the data rows: %v",
				name, NaturalHierarchy(rows))
		}
	}
	return nil
}

// Convert validates rows and orders them by their natural hierarchy.
func Convert(rows []DataRow) ([]Row, error) {
	if err := Validate(rows); err != nil {
		return nil, err
	}
	return convert(rows, NaturalHierarchy(rows)), nil
}

// ConvertWithHierarchy validates rows and hierarchy and orders the rows by it.
func ConvertWithHierarchy(rows []DataRow, hierarchy []string) ([]Row, error) {
	if err := Validate(rows); err != nil {
		return nil, err
	}
	if err := ValidateHierarchy(rows, hierarchy); err != nil {
		return nil, err
	}
	return convert(rows, hierarchy), nil
}

func convert(rows []DataRow, hierarchy []string) []Row {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		labels := make([]string, len(hierarchy))
		for i, name := range hierarchy {
			labels[i] = row[name]
		}
		out = append(out, Row{Labels: labels, Value: parseValue(row[ValueLabel])})
	}
	return out
}

// RowsFromJSON converts decoded JSON objects into data rows. Numbers are
// accepted for any label; nulls and nested values are rejected.
func RowsFromJSON(raw []map[string]interface{}) ([]DataRow, error) {
	rows := make([]DataRow, 0, len(raw))
	for i, obj := range raw {
		row := make(DataRow, len(obj))
		for _, label := range sortedKeys(obj) {
			switch v := obj[label].(type) {
			case string:
				row[label] = v
			case float64:
				row[label] = strconv.FormatFloat(v, 'f', -1, 64)
			case json.Number:
				row[label] = v.String()
			case nil:
				return nil, rowsError(i, "data row %d contains a null value for label '%s', all labels must have non-null values",
					i, label)
			default:
				return nil, rowsError(i, "data row %d has an unsupported value of type %T for label '%s'", i, v, label)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
