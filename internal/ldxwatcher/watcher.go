// Package ldxwatcher watches a directory for new or changed .ldx files
// and injects the current form-value snapshot into each one's <detail>
// block, recording an idempotent processing log in the Store.
package ldxwatcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/fsae-team/daqserver/internal/formregistry"
	"github.com/fsae-team/daqserver/internal/store"
)

const (
	pollInterval   = 1 * time.Second
	debounceWindow = 500 * time.Millisecond
	writeTimeout   = 10 * time.Second
)

// Watcher is the single long-lived task that scans the configured LDX
// directory and injects form values into newly observed files.
type Watcher struct {
	store    *store.Store
	registry *formregistry.Registry

	mu          sync.Mutex
	reconfigure chan struct{}
}

// New creates a Watcher backed by s and reg. The watch directory itself
// is read from s (WatchConfig) on every tick, so it can change at
// runtime via SetWatchConfig.
func New(s *store.Store, reg *formregistry.Registry) *Watcher {
	return &Watcher{
		store:       s,
		registry:    reg,
		reconfigure: make(chan struct{}, 1),
	}
}

// NotifyPathChanged wakes the watcher loop immediately instead of waiting
// for the next poll tick, used by the admin handler that updates
// WatchConfig.
func (w *Watcher) NotifyPathChanged() {
	select {
	case w.reconfigure <- struct{}{}:
	default:
	}
}

// Run scans the watch directory on a fixed interval (and immediately on
// reconfiguration) until ctx is cancelled. Errors processing one file
// are logged and do not stop the loop; that file is retried on the next
// tick.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var fsw *fsnotify.Watcher
	var watchedDir string
	defer func() {
		if fsw != nil {
			_ = fsw.Close()
		}
	}()

	for {
		w.syncWatchedDir(&fsw, &watchedDir)
		w.scanOnce(ctx)

		var fsEvents <-chan fsnotify.Event
		if fsw != nil {
			fsEvents = fsw.Events
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-w.reconfigure:
		case <-fsEvents:
			// Coalesce bursts of fs events into the next scan pass rather
			// than reacting to each one individually.
		}
	}
}

// syncWatchedDir re-creates the fsnotify watch when the configured
// directory has changed since the last pass. fsnotify events are purely
// a latency optimization here; the ticker is the source of truth.
func (w *Watcher) syncWatchedDir(fsw **fsnotify.Watcher, watchedDir *string) {
	path, err := w.store.GetWatchConfig(context.Background())
	if err != nil {
		log.Printf("ldxwatcher: get watch config: %v", err)
		return
	}
	dir := ""
	if path != nil {
		dir = *path
	}
	if dir == *watchedDir {
		return
	}

	if *fsw != nil {
		_ = (*fsw).Close()
		*fsw = nil
	}
	*watchedDir = dir

	if dir == "" {
		return
	}
	newWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("ldxwatcher: create fsnotify watcher: %v", err)
		return
	}
	if err := newWatcher.Add(dir); err != nil {
		log.Printf("ldxwatcher: watch %q: %v", dir, err)
		_ = newWatcher.Close()
		return
	}
	*fsw = newWatcher
}

// scanOnce enumerates candidate .ldx files in the configured directory
// and processes each one that has changed since it was last recorded.
func (w *Watcher) scanOnce(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	path, err := w.store.GetWatchConfig(ctx)
	if err != nil {
		log.Printf("ldxwatcher: get watch config: %v", err)
		return
	}
	if path == nil || *path == "" {
		return
	}

	entries, err := os.ReadDir(*path)
	if err != nil {
		log.Printf("ldxwatcher: read dir %q: %v", *path, err)
		return
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".ldx") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			log.Printf("ldxwatcher: stat %q: %v", entry.Name(), err)
			continue
		}
		if now.Sub(info.ModTime()) < debounceWindow {
			continue // still being written
		}

		fullPath := filepath.Join(*path, entry.Name())
		if err := w.processFile(ctx, fullPath, entry.Name(), info); err != nil {
			log.Printf("ldxwatcher: process %q: %v", entry.Name(), err)
		}
	}
}

func (w *Watcher) processFile(ctx context.Context, fullPath, name string, info os.FileInfo) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	hash := sha256.Sum256(data)
	contentHash := hex.EncodeToString(hash[:])

	existing, err := w.store.GetLdxFile(ctx, name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("look up prior record: %w", err)
	}
	alreadyProcessed := err == nil && existing.ContentHash == contentHash
	if alreadyProcessed {
		return nil
	}

	firstSeenAt := time.Now().UTC()
	if existing != nil {
		firstSeenAt = existing.FirstSeenAt
	}

	// Fields without a validity window count as updated when touched after
	// the most recent first_seen_at among the other files recorded before
	// this one.
	recorded, err := w.store.ListLdxFiles(ctx)
	if err != nil {
		return fmt.Errorf("list recorded files: %w", err)
	}
	var lastProcessedAt time.Time
	for _, f := range recorded {
		if f.Name != name && f.FirstSeenAt.Before(firstSeenAt) && f.FirstSeenAt.After(lastProcessedAt) {
			lastProcessedAt = f.FirstSeenAt
		}
	}

	snapshots, err := w.collectSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("collect field snapshots: %w", err)
	}

	now := time.Now().UTC()
	updated, results, err := inject(data, snapshots, now, lastProcessedAt)
	if err != nil {
		return fmt.Errorf("inject: %w", err)
	}

	if err := writeAtomic(fullPath, updated); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	rows := make([]store.InjectionRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, store.InjectionRow{
			ID:         uuid.NewString(),
			FieldID:    r.fieldID,
			Value:      r.value,
			WasUpdate:  r.wasUpdate,
			InjectedAt: now,
		})
	}

	// Record the hash of the content as written, so the watcher's own
	// write is not seen as a change on the next scan.
	writtenHash := sha256.Sum256(updated)
	record := store.LdxFile{
		Name:        name,
		Size:        info.Size(),
		ModifiedAt:  info.ModTime().UTC(),
		ContentHash: hex.EncodeToString(writtenHash[:]),
		FirstSeenAt: firstSeenAt,
	}
	if err := w.store.RecordProcessedFile(ctx, record, rows); err != nil {
		return fmt.Errorf("record processed file: %w", err)
	}
	return nil
}

// collectSnapshots gathers, across every loaded form schema, the current
// value of every field that has an inject id, skipping fields with no
// stored value.
func (w *Watcher) collectSnapshots(ctx context.Context) ([]fieldSnapshot, error) {
	var out []fieldSnapshot
	for _, schema := range w.registry.AllSchemas() {
		values, err := w.store.GetFieldValues(ctx, schema.Role)
		if err != nil {
			return nil, fmt.Errorf("get field values for role %q: %w", schema.Role, err)
		}
		for _, field := range schema.Fields {
			fv, ok := values[field.Name]
			if !ok || fv.Value == nil {
				continue
			}
			var window *time.Duration
			if field.ValidityWindow != nil {
				d := time.Duration(*field.ValidityWindow) * time.Second
				window = &d
			}
			out = append(out, fieldSnapshot{
				fieldID:   field.InjectID(),
				value:     *fv.Value,
				updatedAt: fv.UpdatedAt,
				window:    window,
			})
		}
	}
	return out, nil
}

// writeAtomic writes data to a sibling ".tmp" file, fsyncs it, then
// renames it over path so readers never observe a partially written file.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
