package solo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultTableName is the base artifact name of the baked table.
const DefaultTableName = "BakedTable.toml"

// PackageHook is a pair of callbacks run around the host's packaging step.
// Hooks with a lower Order run first.
type PackageHook interface {
	Order() int
	BeforePackage(ctx context.Context) error
	AfterPackage(ctx context.Context) error
}

// Packager bakes the current mains into a BakedTable before packaging and
// removes every trace of it afterwards.
type Packager struct {
	registry  *Registry
	store     authoring
	artifacts ArtifactStore
	shipped   ShippedSet
	tableName string
	logger    *slog.Logger
	metrics   *Metrics

	mu      sync.Mutex
	pending string
	forced  []string
}

// PackagerOption configures a Packager.
type PackagerOption func(*Packager)

// WithTableName sets the base artifact name of the baked table.
func WithTableName(name string) PackagerOption {
	return func(p *Packager) {
		p.tableName = name
	}
}

// NewPackager creates a packager reading mains from store.
func NewPackager(registry *Registry, store AuthoringStore, artifacts ArtifactStore, shipped ShippedSet, logger *slog.Logger, metrics *Metrics, opts ...PackagerOption) *Packager {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Packager{
		registry:  registry,
		store:     authoring{store: store},
		artifacts: artifacts,
		shipped:   shipped,
		tableName: DefaultTableName,
		logger:    logger,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Order implements PackageHook. The packager runs after most default hooks.
func (p *Packager) Order() int {
	return 1
}

// Pending returns the name of the artifact written by BeforePackage, or ""
// when no packaging run is in progress.
func (p *Packager) Pending() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// BeforePackage writes a fresh baked table and forces it, and every main
// data asset that asks to be included, into the shipped set.
func (p *Packager) BeforePackage(ctx context.Context) (err error) {
	defer func() { p.metrics.packagingRun("before", err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending != "" {
		p.logger.Warn("solo: previous packaging run was not cleaned up", "artifact", p.pending)
		if err := p.cleanupLocked(); err != nil {
			return err
		}
	}
	if err := p.sweepStaleLocked(); err != nil {
		return fmt.Errorf("sweep stale baked tables: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	shipped, err := p.shipped.Objects()
	if err != nil {
		return fmt.Errorf("read shipped set: %w", err)
	}
	present := make(map[string]bool, len(shipped))
	for _, id := range shipped {
		present[id] = true
	}

	var forced []string
	for _, d := range p.registry.Descriptors(DataAsset) {
		main, ok := p.store.get(d)
		if !ok || !d.IncludeUnreferenced {
			continue
		}
		id := main.ObjectID()
		if present[id] {
			continue
		}
		present[id] = true
		forced = append(forced, id)
	}

	entries := make(map[string]TemplateRef)
	for _, d := range p.registry.Descriptors(LiveObject) {
		main, ok := p.store.get(d)
		if !ok {
			continue
		}
		ref := TemplateRef{ID: main.ObjectID()}
		if lc, ok := main.(LiveCandidate); ok && lc.Node() != nil {
			ref.Name = lc.Node().Name()
		}
		entries[d.Key] = ref
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	name, err := p.artifacts.UniqueName(p.tableName)
	if err != nil {
		return err
	}
	table := NewBakedTable(entries)
	table.Forced = append(append([]string(nil), forced...), name)
	data, err := table.MarshalBinary()
	if err != nil {
		return err
	}
	if err := p.artifacts.Write(name, data); err != nil {
		return fmt.Errorf("write baked table: %w", err)
	}

	forced = append(forced, name)
	if err := p.shipped.SetObjects(append(shipped, forced...)); err != nil {
		if derr := p.artifacts.Delete(name); derr != nil {
			err = errors.Join(err, derr)
		}
		return fmt.Errorf("update shipped set: %w", err)
	}

	p.pending = name
	p.forced = forced
	p.logger.Info("solo: baked table written",
		"artifact", name,
		"templates", table.Len(),
		"forced", len(forced))
	return nil
}

// AfterPackage deletes the baked table and undoes the shipped set additions
// of the matching BeforePackage.
func (p *Packager) AfterPackage(_ context.Context) (err error) {
	defer func() { p.metrics.packagingRun("after", err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending == "" {
		return ErrNoArtifact
	}
	return p.cleanupLocked()
}

// Run executes build between BeforePackage and AfterPackage. Cleanup runs
// even when build fails or panics.
func (p *Packager) Run(ctx context.Context, build func(ctx context.Context) error) (err error) {
	if err := p.BeforePackage(ctx); err != nil {
		if p.Pending() != "" {
			err = errors.Join(err, p.AfterPackage(ctx))
		}
		return err
	}

	defer func() {
		cleanupErr := p.AfterPackage(context.WithoutCancel(ctx))
		if r := recover(); r != nil {
			if cleanupErr != nil {
				p.logger.Error("solo: packaging cleanup failed", "error", cleanupErr)
			}
			panic(r)
		}
		err = errors.Join(err, cleanupErr)
	}()

	return build(ctx)
}

func (p *Packager) cleanupLocked() error {
	name := p.pending
	var errs []error
	if err := p.removeShippedLocked(p.forced); err != nil {
		errs = append(errs, err)
	}
	if err := p.artifacts.Delete(name); err != nil {
		errs = append(errs, fmt.Errorf("delete baked table %q: %w", name, err))
	}
	if len(errs) > 0 {
		p.logger.Error("solo: packaging cleanup failed", "artifact", name, "error", errors.Join(errs...))
		return errors.Join(errs...)
	}
	p.pending = ""
	p.forced = nil
	p.logger.Info("solo: baked table removed", "artifact", name)
	return nil
}

// sweepStaleLocked deletes baked tables left behind by an interrupted run
// and undoes the shipped set additions recorded in them.
func (p *Packager) sweepStaleLocked() error {
	names, err := p.artifacts.List()
	if err != nil {
		return err
	}
	pattern := stalePattern(p.tableName)
	var errs []error
	for _, name := range names {
		ok, err := doublestar.Match(pattern, name)
		if err != nil || !ok {
			continue
		}
		forced := []string{name}
		if data, err := p.artifacts.Read(name); err == nil {
			if table, err := ParseBakedTable(data); err == nil {
				forced = append(forced, table.Forced...)
			}
		}
		if err := p.removeShippedLocked(forced); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := p.artifacts.Delete(name); err != nil {
			errs = append(errs, err)
			continue
		}
		p.logger.Info("solo: removed stale baked table", "artifact", name)
	}
	return errors.Join(errs...)
}

func (p *Packager) removeShippedLocked(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	shipped, err := p.shipped.Objects()
	if err != nil {
		return fmt.Errorf("read shipped set: %w", err)
	}
	kept := shipped[:0]
	for _, id := range shipped {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(shipped) {
		return nil
	}
	if err := p.shipped.SetObjects(kept); err != nil {
		return fmt.Errorf("update shipped set: %w", err)
	}
	return nil
}

// stalePattern turns "BakedTable.toml" into "BakedTable*.toml", matching
// every name UniqueName can derive from it.
func stalePattern(base string) string {
	ext := path.Ext(base)
	return strings.TrimSuffix(base, ext) + "*" + ext
}
