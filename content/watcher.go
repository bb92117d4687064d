package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const eventBuffer = 256

// Op is the kind of a document change.
type Op string

// OpCreate, OpModify and OpDelete enumerate document changes.
const (
	OpCreate Op = "create"
	OpModify Op = "modify"
	OpDelete Op = "delete"
)

// Event is a debounced document change.
type Event struct {
	// Path is relative to the content root, with forward slashes.
	Path string
	Op   Op
}

// Watcher watches a Dir for document changes. Bursts of writes to the same
// file collapse into one event and rewrites with identical content are
// dropped.
type Watcher struct {
	dir      *Dir
	debounce time.Duration
	fsw      *fsnotify.Watcher
	logger   *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	hashMu sync.RWMutex
	hashes map[string]string

	events  chan Event
	dropped atomic.Int64
}

// NewWatcher creates a watcher over dir.
func NewWatcher(dir *Dir, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		fsw:      fsw,
		logger:   logger,
		pending:  make(map[string]fsnotify.Op),
		hashes:   make(map[string]string),
		events:   make(chan Event, eventBuffer),
	}, nil
}

// Events returns the event channel. It is closed when the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Dropped returns the number of events dropped because the channel was full.
func (w *Watcher) Dropped() int64 {
	return w.dropped.Load()
}

// Start watches the content tree until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.dir.Root()); err != nil {
		return err
	}
	go w.run(ctx)
	w.logger.Info("solo: watching content", "root", w.dir.Root(), "debounce", w.debounce)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}

// Remember records the content hash of a document so an identical rewrite
// does not produce an event.
func (w *Watcher) Remember(rel string, data []byte) {
	w.hashMu.Lock()
	w.hashes[filepath.ToSlash(rel)] = contentHash(data)
	w.hashMu.Unlock()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if base := d.Name(); strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("solo: failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("solo: watcher error", "error", err)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.dir.Root(), ev.Name)
	if err != nil {
		return
	}
	if !w.dir.Match(rel) {
		if ev.Has(fsnotify.Create) {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				if err := w.addRecursive(ev.Name); err != nil {
					w.logger.Warn("solo: failed to watch new directory", "path", ev.Name, "error", err)
				}
			}
		}
		return
	}

	w.pendingMu.Lock()
	w.pending[filepath.ToSlash(rel)] |= ev.Op
	w.pendingMu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	batch := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for rel, op := range batch {
		if ctx.Err() != nil {
			return
		}
		data, err := os.ReadFile(w.dir.abs(rel))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				w.logger.Warn("solo: failed to read document", "path", rel, "error", err)
				continue
			}
			w.hashMu.Lock()
			delete(w.hashes, rel)
			w.hashMu.Unlock()
			w.send(Event{Path: rel, Op: OpDelete})
			continue
		}

		hash := contentHash(data)
		w.hashMu.Lock()
		old, had := w.hashes[rel]
		w.hashes[rel] = hash
		w.hashMu.Unlock()
		if had && old == hash {
			continue
		}

		kind := OpModify
		if !had || op.Has(fsnotify.Create) {
			kind = OpCreate
		}
		w.send(Event{Path: rel, Op: kind})
	}
}

func (w *Watcher) send(ev Event) {
	select {
	case w.events <- ev:
	default:
		n := w.dropped.Add(1)
		w.logger.Warn("solo: event channel full, dropping event", "path", ev.Path, "dropped", n)
	}
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
