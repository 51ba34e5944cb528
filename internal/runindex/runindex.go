// Package runindex maintains the global append-only run index at
// <runsRoot>/index.jsonl. One minified JSON line per finalised run;
// appends are serialised by the writer's mutex so concurrent executors in
// the same process never interleave lines.
package runindex

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/tessera-qa/tessera/internal/jsonl"
	"github.com/tessera-qa/tessera/internal/model"
)

// FileName is the index file name under the runs root.
const FileName = "index.jsonl"

// appendMu serialises appends across every Index instance in the
// process, so concurrently executing engines sharing a runs root never
// interleave lines.
var appendMu sync.Mutex

// Index is the open run index.
type Index struct {
	writer *jsonl.Writer
	logger *slog.Logger
}

// Open opens (creating if needed) the run index under runsRoot.
func Open(runsRoot string, logger *slog.Logger) (*Index, error) {
	w, err := jsonl.OpenWriter(Path(runsRoot))
	if err != nil {
		return nil, err
	}
	return &Index{writer: w, logger: logger}, nil
}

// Path returns the index location for a runs root.
func Path(runsRoot string) string {
	return filepath.Join(runsRoot, FileName)
}

// Append adds one entry. The entry is written after the run's result.json
// is finalised.
func (i *Index) Append(entry model.IndexEntry) error {
	appendMu.Lock()
	err := i.writer.Append(entry)
	appendMu.Unlock()
	if err != nil {
		return err
	}
	i.logger.Debug("index entry appended", "run_id", entry.RunID, "status", string(entry.Status))
	return nil
}

// Close flushes and closes the index file.
func (i *Index) Close() error {
	return i.writer.Close()
}

// Read loads every entry of an index file, oldest first.
func Read(runsRoot string) ([]model.IndexEntry, error) {
	return jsonl.ReadAll[model.IndexEntry](Path(runsRoot))
}
