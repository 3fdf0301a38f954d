// Package models contains domain models and entities.
package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pivoter/pivoter/internal/pivot"
)

// MaxNameLength is the longest accepted dataset name.
const MaxNameLength = 128

// Dataset is a stored set of data rows with the hierarchy used to pivot them.
type Dataset struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Hierarchy  []string        `json:"hierarchy"`
	Rows       []pivot.DataRow `json:"rows,omitempty"`
	RowCount   int             `json:"row_count"`
	QueryCount int64           `json:"query_count"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DatasetCreate represents the data needed to create a new dataset.
type DatasetCreate struct {
	Name      string
	Hierarchy []string
	Rows      []pivot.DataRow
}

// Validation errors
var (
	ErrEmptyName       = errors.New("dataset name cannot be empty")
	ErrNameTooLong     = errors.New("dataset name must be at most 128 characters")
	ErrDatasetNotFound = errors.New("dataset not found")
	ErrTooManyRows     = errors.New("dataset has too many rows")
)

// Validate validates the create request. When no hierarchy is supplied the
// natural hierarchy of the rows is filled in.
func (c *DatasetCreate) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return ErrEmptyName
	}
	if len(c.Name) > MaxNameLength {
		return ErrNameTooLong
	}
	if err := pivot.Validate(c.Rows); err != nil {
		return err
	}
	if len(c.Hierarchy) == 0 {
		c.Hierarchy = pivot.NaturalHierarchy(c.Rows)
		return nil
	}
	return pivot.ValidateHierarchy(c.Rows, c.Hierarchy)
}

// Tree builds the dataset's pivot tree.
func (d *Dataset) Tree() (*pivot.Tree, error) {
	tree, _, err := pivot.BuildTree(d.Rows, d.Hierarchy)
	return tree, err
}
