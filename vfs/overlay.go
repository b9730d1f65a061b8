// Package vfs provides the file view the query engine computes against:
// live editable source documents layered over acquired declaration files.
package vfs

import (
	"sort"
	"sync"
)

// Document is one editable in-memory source file
type Document struct {
	Path    string
	Text    string
	Version int
}

// Overlay holds the live editable-source state. The host (CLI or a server
// connection) owns document lifecycle; the overlay only stores content.
type Overlay struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewOverlay creates an empty document overlay
func NewOverlay() *Overlay {
	return &Overlay{
		docs: make(map[string]*Document),
	}
}

// Open adds a document at version 1, replacing any previous document at path.
func (o *Overlay) Open(path, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.docs[path] = &Document{Path: path, Text: text, Version: 1}
}

// Update replaces a document's content and bumps its version.
// Unknown paths are opened instead.
func (o *Overlay) Update(path, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if doc, ok := o.docs[path]; ok {
		doc.Text = text
		doc.Version++
		return
	}
	o.docs[path] = &Document{Path: path, Text: text, Version: 1}
}

// Close removes a document
func (o *Overlay) Close(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.docs, path)
}

// Read returns a document's text
func (o *Overlay) Read(path string) (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	doc, ok := o.docs[path]
	if !ok {
		return "", false
	}
	return doc.Text, true
}

// Version returns a document's current version, 0 when not open.
func (o *Overlay) Version(path string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	doc, ok := o.docs[path]
	if !ok {
		return 0
	}
	return doc.Version
}

// Paths returns the open document paths in sorted order
func (o *Overlay) Paths() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	paths := make([]string, 0, len(o.docs))
	for path := range o.docs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of open documents
func (o *Overlay) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.docs)
}
