// Package artifact writes run output as JSON documents.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SummaryFile is the name of the batch summary artifact.
const SummaryFile = "sec_api_extracted_all_companies.json"

// RecordFile returns the fallback artifact name for one company.
func RecordFile(symbol string) string {
	return fmt.Sprintf("sec_api_extracted_%s.json", strings.ToUpper(symbol))
}

// Writer stores a JSON document under name and returns where it went.
type Writer interface {
	Write(ctx context.Context, name string, v any) (string, error)
}

// Encode renders v the way every writer stores it.
func Encode(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "artifact: marshal")
	}
	return append(data, '\n'), nil
}

// Local writes artifacts into a directory on disk.
type Local struct {
	Dir string
}

// NewLocal returns a Local writer rooted at dir ("" means the working directory).
func NewLocal(dir string) *Local {
	return &Local{Dir: dir}
}

// Write implements Writer. The file is replaced atomically.
func (l *Local) Write(_ context.Context, name string, v any) (string, error) {
	data, err := Encode(v)
	if err != nil {
		return "", err
	}

	dir := l.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "artifact: create dir %s", dir)
	}

	path := filepath.Join(dir, filepath.Base(name))
	tmp, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return "", eris.Wrap(err, "artifact: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return "", eris.Wrapf(err, "artifact: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return "", eris.Wrapf(err, "artifact: close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", eris.Wrapf(err, "artifact: rename into %s", path)
	}
	return path, nil
}

// Tee writes to every writer in order. The first writer is primary: its
// location and error are returned. Failures of the other writers are only
// logged.
type Tee []Writer

// Write implements Writer.
func (t Tee) Write(ctx context.Context, name string, v any) (string, error) {
	if len(t) == 0 {
		return "", eris.New("artifact: no writers")
	}
	loc, err := t[0].Write(ctx, name, v)
	if err != nil {
		return "", err
	}
	for _, w := range t[1:] {
		copyLoc, err := w.Write(ctx, name, v)
		if err != nil {
			zap.L().Warn("artifact: secondary copy failed", zap.String("name", name), zap.Error(err))
			continue
		}
		zap.L().Debug("artifact: copied", zap.String("name", name), zap.String("location", copyLoc))
	}
	return loc, nil
}
