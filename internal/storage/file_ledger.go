package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ledgerFile is the on-disk shape.
type ledgerFile struct {
	PublishedURLs []string   `json:"published_urls"`
	LastUpdated   ledgerTime `json:"last_updated"`
	TotalCount    int        `json:"total_count"`
}

// ledgerTime also accepts timestamps written without a zone offset. An
// unreadable timestamp is treated as unknown rather than as a broken file.
type ledgerTime struct{ time.Time }

var ledgerTimeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"}

func (t *ledgerTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil || s == "" {
		return nil
	}
	for _, layout := range ledgerTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return nil
}

// FileLedger keeps the ledger in a JSON file that is rewritten wholesale on
// every mutation.
type FileLedger struct {
	filePath    string
	ids         []string
	index       map[string]struct{}
	lastUpdated time.Time
	now         func() time.Time
	mu          sync.RWMutex
}

var _ Ledger = (*FileLedger)(nil)

// NewFileLedger creates a ledger backed by filePath. Call Load before use.
func NewFileLedger(filePath string) *FileLedger {
	return &FileLedger{
		filePath: filePath,
		index:    make(map[string]struct{}),
		now:      time.Now,
	}
}

// Load reads the file. A missing or empty file is an empty ledger.
func (fl *FileLedger) Load(context.Context) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	fl.ids = nil
	fl.index = make(map[string]struct{})

	data, err := os.ReadFile(fl.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read ledger file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var file ledgerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal ledger: %w", err)
	}
	for _, id := range file.PublishedURLs {
		fl.insert(id)
	}
	fl.lastUpdated = file.LastUpdated.Time
	return nil
}

// Contains reports whether identifier is in the loaded set.
func (fl *FileLedger) Contains(identifier string) bool {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	_, ok := fl.index[identifier]
	return ok
}

func (fl *FileLedger) Add(_ context.Context, identifier string) (bool, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if !fl.insert(identifier) {
		return false, nil
	}
	if err := fl.save(); err != nil {
		fl.drop(identifier)
		return false, err
	}
	return true, nil
}

func (fl *FileLedger) Remove(_ context.Context, identifier string) (bool, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if _, ok := fl.index[identifier]; !ok {
		return false, nil
	}
	prev := append([]string(nil), fl.ids...)
	fl.drop(identifier)
	if err := fl.save(); err != nil {
		fl.reset(prev)
		return false, err
	}
	return true, nil
}

func (fl *FileLedger) List(context.Context) ([]string, error) {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return append([]string{}, fl.ids...), nil
}

func (fl *FileLedger) Search(_ context.Context, keyword string) ([]string, error) {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return matchKeyword(fl.ids, keyword), nil
}

func (fl *FileLedger) Count(context.Context) (int, error) {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return len(fl.ids), nil
}

func (fl *FileLedger) Clear(context.Context) (int, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	prev := fl.ids
	fl.reset(nil)
	if err := fl.save(); err != nil {
		fl.reset(prev)
		return 0, err
	}
	return len(prev), nil
}

// LastUpdated is the timestamp of the last persisted mutation.
func (fl *FileLedger) LastUpdated() time.Time {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.lastUpdated
}

func (fl *FileLedger) Close() error { return nil }

func (fl *FileLedger) insert(id string) bool {
	if _, ok := fl.index[id]; ok {
		return false
	}
	fl.index[id] = struct{}{}
	fl.ids = append(fl.ids, id)
	return true
}

func (fl *FileLedger) drop(id string) {
	delete(fl.index, id)
	for i, v := range fl.ids {
		if v == id {
			fl.ids = append(fl.ids[:i:i], fl.ids[i+1:]...)
			return
		}
	}
}

func (fl *FileLedger) reset(ids []string) {
	fl.ids = nil
	fl.index = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		fl.insert(id)
	}
}

// save writes the whole ledger to a temporary file and renames it over the
// original. Callers hold the write lock.
func (fl *FileLedger) save() error {
	ids := fl.ids
	if ids == nil {
		ids = []string{}
	}
	now := fl.now()
	data, err := json.MarshalIndent(ledgerFile{
		PublishedURLs: ids,
		LastUpdated:   ledgerTime{now},
		TotalCount:    len(ids),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	dir := filepath.Dir(fl.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create ledger dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(fl.filePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create ledger temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fl.filePath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}
	fl.lastUpdated = now
	return nil
}
