// Package jsonfile stores the mark record as a single JSON document and the
// transfer history as JSON lines next to it.
package jsonfile

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/humanalog/markedfordeath/internal/model"
	"github.com/humanalog/markedfordeath/internal/storage"
)

// fileRecord is the on-disk layout. The id is written as a decimal string but
// a bare JSON number is accepted on read.
type fileRecord struct {
	MarkedPlayerSteamID  json.Number `json:"MarkedPlayerSteamID"`
	MarkedPlayerName     string      `json:"MarkedPlayerName"`
	MarkedPlayerLocation string      `json:"MarkedPlayerLocation"`
}

// Backend persists to path and path's ".history.jsonl" sibling.
type Backend struct {
	path        string
	historyPath string
	mu          sync.Mutex
}

// New creates a backend writing the record to path.
func New(path string) *Backend {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return &Backend{
		path:        path,
		historyPath: base + ".history.jsonl",
	}
}

// Init creates the data directory.
func (b *Backend) Init() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// Path is the record file.
func (b *Backend) Path() string {
	return b.path
}

// Load reads the record file.
func (b *Backend) Load(_ context.Context) (model.MarkRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.MarkRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return model.MarkRecord{}, fmt.Errorf("reading %s: %w", b.path, err)
	}

	var fr fileRecord
	if err := json.Unmarshal(data, &fr); err != nil {
		return model.MarkRecord{}, fmt.Errorf("decoding %s: %w", b.path, err)
	}
	id, err := strconv.ParseUint(fr.MarkedPlayerSteamID.String(), 10, 64)
	if err != nil {
		return model.MarkRecord{}, fmt.Errorf("decoding %s: bad MarkedPlayerSteamID: %w", b.path, err)
	}

	rec := model.MarkRecord{
		MarkedID:     id,
		MarkedName:   fr.MarkedPlayerName,
		GridLocation: fr.MarkedPlayerLocation,
	}
	// Files written before locations were tracked have no label.
	if rec.GridLocation == "" {
		rec.GridLocation = model.DefaultGridLocation
	}
	if err := rec.Validate(); err != nil {
		return model.MarkRecord{}, fmt.Errorf("decoding %s: %w", b.path, err)
	}
	return rec, nil
}

// Save writes the record to a temp file and renames it over the old one.
func (b *Backend) Save(_ context.Context, record model.MarkRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("replacing %s: %w", b.path, err)
	}
	return nil
}

// AppendTransfer adds one JSON line to the history file.
func (b *Backend) AppendTransfer(_ context.Context, t model.Transfer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	line, err := json.Marshal(model.MarkTransferFromTransfer(t))
	if err != nil {
		return fmt.Errorf("encoding transfer: %w", err)
	}

	f, err := os.OpenFile(b.historyPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("appending history: %w", err)
	}
	return f.Close()
}

// ListTransfers returns up to limit transfers, newest first. Unreadable lines
// are skipped.
func (b *Backend) ListTransfers(_ context.Context, limit int) ([]model.Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Open(b.historyPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	defer f.Close()

	var all []model.Transfer
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var row model.MarkTransfer
		if err := json.Unmarshal(sc.Bytes(), &row); err != nil {
			continue
		}
		all = append(all, row.ToTransfer())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	n := len(all)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.Transfer, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
