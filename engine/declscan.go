package engine

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/typewell/typewell/ata"
	"github.com/typewell/typewell/errors"
)

var (
	// export declare const VERSION: string;  /  export function curry(...)
	symbolPattern = regexp.MustCompile(`(?m)^\s*export\s+(?:declare\s+)?(const|let|var|function|class|interface|type|enum|namespace)\s+([A-Za-z_$][A-Za-z0-9_$]*)`)

	// import _ from "lodash";  /  import "reflect-metadata";
	importPattern = regexp.MustCompile(`(?m)^\s*import\s+(?:[^"']*\s+from\s+)?["']([^"']+)["']`)

	identPattern = regexp.MustCompile(`[A-Za-z0-9_$]`)
)

// DeclScanner builds declScan instances. It is the default Factory: a
// lightweight engine that indexes exported declarations lazily per query.
type DeclScanner struct{}

// NewDeclScanner creates the built-in engine factory
func NewDeclScanner() *DeclScanner {
	return &DeclScanner{}
}

// Create builds a fresh instance over the accessor's current view
func (s *DeclScanner) Create(accessor FileAccessor) Instance {
	return &declScan{
		accessor: accessor,
		id:       uuid.NewString(),
	}
}

// symbol is one exported declaration found in a declaration file
type symbol struct {
	Name string
	Kind string
	Path string
}

// declScan answers queries by scanning declaration files reachable through
// its accessor. Reads go through the accessor at query time, so probing an
// unseen declaration path is what triggers its acquisition.
type declScan struct {
	accessor FileAccessor
	id       string
	disposed atomic.Bool
}

func (e *declScan) SnapshotID() string {
	return e.id
}

func (e *declScan) Dispose() {
	e.disposed.Store(true)
}

func (e *declScan) guard() error {
	if e.disposed.Load() {
		return errors.ErrEngineDisposed
	}
	return nil
}

// Hover returns declaration info for the identifier at offset
func (e *declScan) Hover(ctx context.Context, path string, offset int) (*HoverResult, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	text, ok := e.accessor.Read(path)
	if !ok {
		return nil, errors.NewNotFoundError("document %q not open", path)
	}

	word := wordAt(text, offset)
	if word == "" {
		return &HoverResult{}, nil
	}

	for _, sym := range e.visibleSymbols() {
		if sym.Name == word {
			return &HoverResult{
				Contents: fmt.Sprintf("%s %s — %s", sym.Kind, sym.Name, sym.Path),
			}, nil
		}
	}

	return &HoverResult{}, nil
}

// Completions returns exported symbols matching prefix
func (e *declScan) Completions(ctx context.Context, path string, prefix string) ([]CompletionItem, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	var items []CompletionItem
	for _, sym := range e.visibleSymbols() {
		if prefix != "" && !strings.HasPrefix(sym.Name, prefix) {
			continue
		}
		items = append(items, CompletionItem{
			Label:      sym.Name,
			Kind:       sym.Kind,
			InsertText: sym.Name,
			Detail:     sym.Path,
			SortText:   "0000",
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items, nil
}

// Diagnostics reports unresolvable module specifiers in a document. Probing
// candidate declaration paths through the accessor registers them for
// acquisition, so diagnostics both report and repair missing modules.
func (e *declScan) Diagnostics(ctx context.Context, path string) ([]Diagnostic, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	text, ok := e.accessor.Read(path)
	if !ok {
		return nil, errors.NewNotFoundError("document %q not open", path)
	}

	var diags []Diagnostic
	for _, match := range importPattern.FindAllStringSubmatch(text, -1) {
		specifier := match[1]
		if strings.HasPrefix(specifier, ".") {
			// Relative imports resolve against the overlay only
			if !e.resolvesRelative(path, specifier) {
				diags = append(diags, Diagnostic{
					Severity: "error",
					Message:  fmt.Sprintf("cannot find module %q", specifier),
					Source:   specifier,
				})
			}
			continue
		}

		if !e.resolvesPackage(specifier) {
			diags = append(diags, Diagnostic{
				Severity: "error",
				Message:  fmt.Sprintf("cannot find module %q or its type declarations", specifier),
				Source:   specifier,
			})
		}
	}

	return diags, nil
}

// resolvesPackage probes the conventional declaration locations for a bare
// package specifier: the package itself, then its types-shim package.
func (e *declScan) resolvesPackage(specifier string) bool {
	candidates := []string{
		ata.NodeModulesPrefix + specifier + "/index" + ata.DeclarationSuffix,
		ata.NodeModulesPrefix + shimNameFor(specifier) + "/index" + ata.DeclarationSuffix,
	}

	resolved := false
	for _, candidate := range candidates {
		// Probe every candidate so each registers for acquisition
		if e.accessor.Exists(candidate) {
			resolved = true
		}
	}
	return resolved
}

func (e *declScan) resolvesRelative(from, specifier string) bool {
	base := from[:strings.LastIndex(from, "/")+1]
	target := base + strings.TrimPrefix(specifier, "./")

	for _, candidate := range []string{target, target + ".ts", target + ".d.ts"} {
		if e.accessor.Exists(candidate) {
			return true
		}
	}
	return false
}

// visibleSymbols scans every visible declaration file for exported symbols
func (e *declScan) visibleSymbols() []symbol {
	var symbols []symbol
	for _, path := range e.accessor.ListFiles() {
		if !strings.HasSuffix(path, ata.DeclarationSuffix) {
			continue
		}
		text, ok := e.accessor.Read(path)
		if !ok {
			continue
		}
		for _, match := range symbolPattern.FindAllStringSubmatch(text, -1) {
			symbols = append(symbols, symbol{Name: match[2], Kind: match[1], Path: path})
		}
	}
	return symbols
}

// shimNameFor maps a package name to its types-shim package name:
// lodash -> @types/lodash, @babel/core -> @types/babel__core.
func shimNameFor(pkg string) string {
	if strings.HasPrefix(pkg, "@") {
		if scope, rest, found := strings.Cut(pkg[1:], "/"); found {
			return ata.TypesShimNamespace + "/" + scope + "__" + rest
		}
	}
	return ata.TypesShimNamespace + "/" + pkg
}

// wordAt expands the identifier containing offset
func wordAt(text string, offset int) string {
	if offset < 0 || offset >= len(text) {
		return ""
	}

	start := offset
	for start > 0 && identPattern.MatchString(string(text[start-1])) {
		start--
	}
	end := offset
	for end < len(text) && identPattern.MatchString(string(text[end])) {
		end++
	}
	return text[start:end]
}
