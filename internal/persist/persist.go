// Package persist writes and reads the flat JSON snapshot file.
//
// Writes go to a temporary file in the destination directory and are renamed
// into place, so a crash never leaves a half-written snapshot behind. Reads
// treat a missing, truncated or otherwise unparseable file as "no state".
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/conductor/internal/logging"
	"go.uber.org/zap"
)

// Gateway reads and writes one snapshot file.
type Gateway struct {
	path   string
	logger *logging.Logger
}

// New returns a Gateway for path. A nil logger discards output.
func New(path string, logger *logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Gateway{path: path, logger: logger.Named("persist")}
}

// Path returns the snapshot location.
func (g *Gateway) Path() string {
	return g.path
}

// Save atomically replaces the snapshot with v.
func (g *Gateway) Save(ctx context.Context, v any) error {
	if err := WriteJSONAtomic(g.path, v); err != nil {
		g.logger.Error(ctx, "snapshot write failed", zap.String("path", g.path), zap.Error(err))
		return err
	}
	g.logger.Debug(ctx, "snapshot written", zap.String("path", g.path))
	return nil
}

// Load decodes the snapshot into v. It reports false, with no error, when the
// file is missing or cannot be parsed; the corruption case is logged.
func (g *Gateway) Load(ctx context.Context, v any) bool {
	found, err := ReadJSON(g.path, v)
	if err != nil {
		g.logger.Warn(ctx, "ignoring unreadable snapshot", zap.String("path", g.path), zap.Error(err))
		return false
	}
	return found
}

// Exists reports whether a snapshot file is present.
func (g *Gateway) Exists() bool {
	_, err := os.Stat(g.path)
	return err == nil
}

// WriteJSONAtomic marshals v and replaces path through a synced temp file and rename.
func WriteJSONAtomic(path string, v any) error {
	if path == "" {
		return errors.New("path is empty")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// ReadJSON decodes path into v.
// A missing file returns (false, nil). Empty, truncated or malformed content
// returns (false, err) and leaves v untouched.
func ReadJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return false, fmt.Errorf("%s is empty", path)
	}
	if !json.Valid(data) {
		return false, fmt.Errorf("%s is not valid json", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}
