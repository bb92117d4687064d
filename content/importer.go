package content

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oriumgames/solo"
)

// Importer feeds documents of a Dir into a Manager and writes main flag
// changes back to disk.
type Importer struct {
	dir     *Dir
	manager *solo.Manager
	watcher *Watcher
	logger  *slog.Logger
}

// NewImporter creates an importer. The watcher may be nil when changes are
// not followed.
func NewImporter(dir *Dir, manager *solo.Manager, watcher *Watcher, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	imp := &Importer{dir: dir, manager: manager, watcher: watcher, logger: logger}
	manager.Elector().Subscribe(imp.persist)
	return imp
}

// ImportAll scans the directory and loads every document as one content
// set. Documents that fail to decode are reported and skipped.
func (imp *Importer) ImportAll() (int, error) {
	docs, scanErr := imp.dir.Scan()
	var errs []error
	if scanErr != nil {
		errs = append(errs, scanErr)
	}
	objs := make([]solo.Candidate, 0, len(docs))
	for _, doc := range docs {
		if err := imp.assignID(doc); err != nil {
			errs = append(errs, err)
		}
		objs = append(objs, doc)
	}
	if err := imp.manager.LoadAll(objs); err != nil {
		errs = append(errs, err)
	}
	imp.logger.Info("solo: content imported", "root", imp.dir.Root(), "documents", len(objs))
	return len(objs), errors.Join(errs...)
}

// HandleEvent applies one document change.
func (imp *Importer) HandleEvent(ev Event) error {
	switch ev.Op {
	case OpDelete:
		id, ok := imp.dir.Forget(ev.Path)
		if !ok {
			return nil
		}
		imp.logger.Info("solo: document removed", "path", ev.Path, "id", id)
		return imp.manager.Catalog().Forget(id)
	default:
		doc, err := imp.dir.Load(ev.Path)
		if err != nil {
			return err
		}
		imp.logger.Info("solo: document changed", "path", ev.Path, "op", ev.Op, "id", doc.ObjectID())
		return imp.load(doc)
	}
}

// Run applies watcher events until ctx is done or the watcher stops.
func (imp *Importer) Run(ctx context.Context) error {
	if imp.watcher == nil {
		return errors.New("solo: importer has no watcher")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-imp.watcher.Events():
			if !ok {
				return nil
			}
			if err := imp.HandleEvent(ev); err != nil {
				imp.logger.Warn("solo: failed to apply document change", "path", ev.Path, "error", err)
			}
		}
	}
}

func (imp *Importer) load(doc *Document) error {
	if err := imp.assignID(doc); err != nil {
		return err
	}
	return imp.manager.Load(doc)
}

// assignID writes a document back when its id was generated on load, so the
// id stays stable across runs and shipped copies.
func (imp *Importer) assignID(doc *Document) error {
	if !doc.GeneratedID() {
		return nil
	}
	if err := imp.dir.Save(doc); err != nil {
		return err
	}
	imp.logger.Info("solo: document id assigned", "path", doc.Path(), "id", doc.ObjectID())
	imp.remember(doc)
	return nil
}

func (imp *Importer) persist(ch solo.Change) {
	doc, ok := ch.Candidate.(*Document)
	if !ok || doc.Path() == "" {
		return
	}
	if imp.dir.Sync(ch) {
		imp.remember(doc)
	}
}

func (imp *Importer) remember(doc *Document) {
	if imp.watcher == nil {
		return
	}
	if data, err := doc.Bytes(); err == nil {
		imp.watcher.Remember(doc.Path(), data)
	}
}
