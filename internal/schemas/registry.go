// Package schemas keeps the set of named dto schemas loaded from the schema
// directory and keeps it in sync with the files on disk.
package schemas

import (
	"fmt"
	"sort"
	"sync"

	"github.com/starford/dtokit/internal/parser"
	"github.com/starford/dtokit/pkg/dto"
)

// Entry is a registered schema and the document it came from.
type Entry struct {
	Schema      *dto.Schema
	Description string
	File        string
}

// Name returns the schema name.
func (e Entry) Name() string {
	return e.Schema.Name()
}

// Registry maps schema names to schemas. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]Entry
	byFile    map[string][]string
	checksums map[string]string
	// names each file declares but could not register
	shadowed map[string][]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:    make(map[string]Entry),
		byFile:    make(map[string][]string),
		checksums: make(map[string]string),
		shadowed:  make(map[string][]string),
	}
}

// Get returns the schema registered under name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return e, ok
}

// Names returns all registered schema names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// All returns all entries sorted by name.
func (r *Registry) All() []Entry {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		if e, ok := r.byName[name]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Checksum returns the checksum recorded for file, or "".
func (r *Registry) Checksum(file string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checksums[file]
}

// Files returns the loaded files and their checksums.
func (r *Registry) Files() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.checksums))
	for f, cs := range r.checksums {
		out[f] = cs
	}
	return out
}

// Replace swaps the schemas owned by file for defs. Names already owned by
// another file are skipped and reported in conflicts. Nothing changes when a
// definition fails to build.
func (r *Registry) Replace(file, checksum string, defs []parser.Definition) (conflicts []string, err error) {
	built := make([]Entry, 0, len(defs))
	for i := range defs {
		s, err := defs[i].Schema()
		if err != nil {
			return nil, fmt.Errorf("schemas: %s: %w", file, err)
		}
		built = append(built, Entry{Schema: s, Description: defs[i].Description, File: file})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(file)
	names := make([]string, 0, len(built))
	for _, e := range built {
		if other, taken := r.byName[e.Name()]; taken && other.File != file {
			conflicts = append(conflicts, e.Name())
			continue
		}
		r.byName[e.Name()] = e
		names = append(names, e.Name())
	}
	r.byFile[file] = names
	r.checksums[file] = checksum
	if len(conflicts) > 0 {
		r.shadowed[file] = conflicts
	}
	return conflicts, nil
}

// Unblocked returns, sorted, the files that lost a name to another file
// when they were loaded and whose lost names are now free again.
func (r *Registry) Unblocked() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for file, names := range r.shadowed {
		for _, name := range names {
			if _, taken := r.byName[name]; !taken {
				out = append(out, file)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Remove drops every schema owned by file and returns their names.
func (r *Registry) Remove(file string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(file)
}

func (r *Registry) removeLocked(file string) []string {
	names := r.byFile[file]
	for _, name := range names {
		if e, ok := r.byName[name]; ok && e.File == file {
			delete(r.byName, name)
		}
	}
	delete(r.byFile, file)
	delete(r.checksums, file)
	delete(r.shadowed, file)
	return names
}

// Register adds schemas declared in Go code under a pseudo file name so that
// they can be served alongside the directory-backed ones.
func (r *Registry) Register(file string, list ...*dto.Schema) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var conflicts []string
	for _, s := range list {
		if other, taken := r.byName[s.Name()]; taken && other.File != file {
			conflicts = append(conflicts, s.Name())
			continue
		}
		r.byName[s.Name()] = Entry{Schema: s, File: file}
		r.byFile[file] = append(r.byFile[file], s.Name())
	}
	return conflicts
}
