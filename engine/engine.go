// Package engine defines the query-engine contract the consistency proxy
// wraps, plus a built-in engine that answers hover/completion/diagnostic
// queries by scanning declaration files.
package engine

import (
	"context"
)

// FileAccessor is the file view an engine instance computes against.
// Implementations consult live editable-source state first and fall back to
// acquired declaration files.
type FileAccessor interface {
	ListFiles() []string
	Read(path string) (string, bool)
	Exists(path string) bool
}

// HoverResult is the answer to a hover query
type HoverResult struct {
	Contents string `json:"contents"`
}

// CompletionItem is a single completion suggestion
type CompletionItem struct {
	Label      string `json:"label"`
	Kind       string `json:"kind"`
	InsertText string `json:"insert_text"`
	Detail     string `json:"detail,omitempty"`
	SortText   string `json:"sort_text"`
}

// Diagnostic represents a problem detected in a document
type Diagnostic struct {
	Severity string `json:"severity"` // error, warning, info, hint
	Message  string `json:"message"`
	Source   string `json:"source,omitempty"` // offending specifier or symbol
}

// QueryOps enumerates each query operation. Every method here is wrapped by
// the consistency proxy's freshness loop; pure-data members live on Instance
// and are forwarded without it.
type QueryOps interface {
	Hover(ctx context.Context, path string, offset int) (*HoverResult, error)
	Completions(ctx context.Context, path string, prefix string) ([]CompletionItem, error)
	Diagnostics(ctx context.Context, path string) ([]Diagnostic, error)
}

// Instance is one disposable engine bound to the file view it was created
// over. Instances are immutable once built and never reused after Dispose.
type Instance interface {
	QueryOps

	// SnapshotID identifies this instance (pure data, no freshness loop)
	SnapshotID() string

	// Dispose releases the instance. Called at most once, and never while
	// a query that may still reference the instance is in flight.
	Dispose()
}

// Factory constructs fresh engine instances over a file accessor.
type Factory interface {
	Create(accessor FileAccessor) Instance
}
