package schemas

import (
	"log/slog"

	"github.com/starford/dtokit/internal/checksum"
	"github.com/starford/dtokit/internal/parser"
	"github.com/starford/dtokit/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// Load walks the schema directory and brings the registry up to date:
//   - new/changed documents are parsed and registered
//   - documents removed from disk are dropped from the registry
//
// Invalid documents are logged and skipped; their previous schemas stay
// registered.
func Load(reg *Registry, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	known := reg.Files()
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		if known[m.Path] == m.Checksum {
			continue
		}
		if _, err := loadFile(reg, store, m.Path, logger); err != nil {
			logger.Warn("schemas: load failed", slog.String("file", m.Path), slog.String("error", err.Error()))
		}
	}

	for file := range known {
		if _, ok := disk[file]; !ok {
			names := reg.Remove(file)
			logger.Debug("schemas: removed stale", slog.String("file", file), slog.Int("schemas", len(names)))
		}
	}

	reclaim(reg, store, logger, nil)

	logger.Info("schemas: loaded", slog.Int("schemas", len(reg.Names())))
	return nil
}

// loadFile (re)registers one document. It returns the event kind, or "" when
// the document is unchanged.
func loadFile(reg *Registry, store storage.Provider, path string, logger *slog.Logger) (string, error) {
	return indexFile(reg, store, path, logger, false)
}

func indexFile(reg *Registry, store storage.Provider, path string, logger *slog.Logger, force bool) (string, error) {
	data, err := store.Read(path)
	if err != nil {
		return "", err
	}
	cs := checksum.Sum(data)
	previous := reg.Checksum(path)
	if previous == cs && !force {
		return "", nil
	}
	defs, err := parser.Parse(data)
	if err != nil {
		return "", err
	}
	conflicts, err := reg.Replace(path, cs, defs)
	if err != nil {
		return "", err
	}
	for _, name := range conflicts {
		logger.Warn("schemas: duplicate name ignored", slog.String("file", path), slog.String("schema", name))
	}
	logger.Debug("schemas: indexed", slog.String("file", path), slog.Int("schemas", len(defs)))
	if previous == "" {
		return KindCreated, nil
	}
	return KindUpdated, nil
}

// reclaim reloads documents that lost a schema name to another document
// once that name is free again, so a duplicate takes over when the file
// that owned the name drops it.
func reclaim(reg *Registry, store storage.Provider, logger *slog.Logger, notify EventCallback) {
	for _, file := range reg.Unblocked() {
		kind, err := indexFile(reg, store, file, logger, true)
		if err != nil {
			logger.Warn("schemas: reclaim failed", slog.String("file", file), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("schemas: reclaimed", slog.String("file", file))
		if notify != nil && kind != "" {
			notify(KindUpdated, file)
		}
	}
}
