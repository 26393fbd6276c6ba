// Package usecases holds the application rules: document indexing and
// retrieval-augmented answering. It depends only on ports.
package usecases

import "errors"

var (
	// ErrUnsupportedFormat is returned for documents that are neither CSV nor JSON.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrEmptyDocument is returned when a document yields no indexable text.
	ErrEmptyDocument = errors.New("no documents found in file")
)
