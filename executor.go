package docq

import (
	"context"
	"strings"
)

// Direction is the direction of an OrderBy
type Direction string

const (
	// ASC sorts values from lowest to highest
	ASC Direction = "ASC"
	// DESC sorts values from highest to lowest
	DESC Direction = "DESC"
)

// OrderBy orders the results of a query by a storage path
type OrderBy struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// FindOptions are the ordering, pagination and projection of a query. They are expressed
// independently of the filter fragment.
type FindOptions struct {
	// OrderBy orders results by storage paths. Ties are ordered by the next entry.
	OrderBy []OrderBy `json:"order_by,omitempty"`
	// Skip skips the first n results
	Skip int `json:"skip,omitempty"`
	// Limit limits the number of results. 0 is unlimited.
	Limit int `json:"limit,omitempty"`
	// Select projects results onto the given storage paths. Empty selects everything.
	Select []string `json:"select,omitempty"`
}

// Cursor is a lazy, restartable sequence of documents
type Cursor interface {
	// Next advances the cursor. It returns false when the sequence is exhausted or on error.
	Next(ctx context.Context) bool
	// Document returns the current document
	Document() *Document
	// Err returns the error that stopped the cursor, if any
	Err() error
	// Rewind restarts the sequence from its first document
	Rewind()
	// Close releases the cursor
	Close() error
}

// Executor runs compiled fragments against a collection
type Executor interface {
	Find(ctx context.Context, collection string, filter Fragment, opts FindOptions) (Cursor, error)
}

// Updater is an Executor that can merge a patch into the documents matching a filter
type Updater interface {
	Update(ctx context.Context, collection string, filter Fragment, patch *Document) (int, error)
}

// ParseOrderBy parses an order expression: a logical path, descending if prefixed by '-'
func ParseOrderBy(expr string) (string, Direction) {
	if strings.HasPrefix(expr, "-") {
		return strings.TrimPrefix(expr, "-"), DESC
	}
	return strings.TrimPrefix(expr, "+"), ASC
}

// Collect reads every remaining document of the cursor
func Collect(ctx context.Context, cursor Cursor) (Documents, error) {
	var docs Documents
	for cursor.Next(ctx) {
		docs = append(docs, cursor.Document())
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
