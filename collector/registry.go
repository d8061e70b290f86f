package collector

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/eventloop"
	"github.com/filemesh/go-filemesh/retry"
	"github.com/filemesh/go-filemesh/sql"
	"github.com/filemesh/go-filemesh/sql/collectorfilters"
	"github.com/filemesh/go-filemesh/sql/collectorq"
)

// Registry owns collectors of the stores. A collector lives as long as its store.
type Registry struct {
	logger     *zap.Logger
	cfg        Config
	db         *sql.Database
	loop       *eventloop.Loop
	retrier    *retry.Retrier
	skip       SkipRule
	downloader Downloader
	admission  Admission

	collectors map[types.SIndex]*Collector
}

// NewRegistry creates an empty registry. Collectors created by the registry share
// the dependencies.
func NewRegistry(
	db *sql.Database,
	loop *eventloop.Loop,
	retrier *retry.Retrier,
	skip SkipRule,
	downloader Downloader,
	admission Admission,
	opts ...Opt,
) *Registry {
	// options are applied to a template collector to extract logger and config
	tmpl := &Collector{logger: zap.NewNop(), cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(tmpl)
	}
	return &Registry{
		logger:     tmpl.logger,
		cfg:        tmpl.cfg,
		db:         db,
		loop:       loop,
		retrier:    retrier,
		skip:       skip,
		downloader: downloader,
		admission:  admission,
		collectors: map[types.SIndex]*Collector{},
	}
}

// AddStore creates collector for the store.
func (r *Registry) AddStore(sidx types.SIndex) (*Collector, error) {
	if _, ok := r.collectors[sidx]; ok {
		return nil, fmt.Errorf("collector for %v already exists", sidx)
	}
	c, err := New(r.db, r.loop, r.retrier, sidx, r.skip, r.downloader, r.admission,
		WithLogger(r.logger),
		WithConfig(r.cfg),
	)
	if err != nil {
		return nil, err
	}
	r.collectors[sidx] = c
	r.logger.Debug("collector added", types.ZSIndex(sidx))
	return c, nil
}

// RemoveStore destroys persisted collector state of the store. Collector is
// dropped once tx is committed.
func (r *Registry) RemoveStore(tx sql.Transaction, sidx types.SIndex) error {
	c, ok := r.collectors[sidx]
	if !ok {
		return fmt.Errorf("collector for %v doesn't exist", sidx)
	}
	if err := collectorq.DeleteStore(tx, sidx); err != nil {
		return err
	}
	if err := collectorfilters.DeleteStore(tx, sidx); err != nil {
		return err
	}
	tx.OnCommit(func() {
		if r.collectors[sidx] == c {
			c.close()
			delete(r.collectors, sidx)
			r.logger.Debug("collector removed", types.ZSIndex(sidx))
		}
	})
	return nil
}

// Close stops the collector of the store without modifying persisted state.
func (r *Registry) Close(sidx types.SIndex) {
	if c, ok := r.collectors[sidx]; ok {
		c.close()
		delete(r.collectors, sidx)
	}
}

// Get returns collector of the store.
func (r *Registry) Get(sidx types.SIndex) (*Collector, bool) {
	c, ok := r.collectors[sidx]
	return c, ok
}

// Stores returns stores with a collector, in ascending order.
func (r *Registry) Stores() []types.SIndex {
	stores := make([]types.SIndex, 0, len(r.collectors))
	for sidx := range r.collectors {
		stores = append(stores, sidx)
	}
	slices.Sort(stores)
	return stores
}

// HasUpdatesFrom returns stores where traversal may download components from the device.
func (r *Registry) HasUpdatesFrom(did types.DID) []types.SIndex {
	var stores []types.SIndex
	for _, sidx := range r.Stores() {
		if r.collectors[sidx].HasUpdatesFrom(did) {
			stores = append(stores, sidx)
		}
	}
	return stores
}

// Online loads filters of the device in every store.
func (r *Registry) Online(ctx context.Context, tx sql.Transaction, did types.DID) error {
	for _, sidx := range r.Stores() {
		if err := r.collectors[sidx].Online(ctx, tx, did); err != nil {
			return err
		}
	}
	return nil
}

// Offline discards filters of the device in every store.
func (r *Registry) Offline(did types.DID) {
	for _, c := range r.collectors {
		c.Offline(did)
	}
}

// RestartAll restarts collectors of every store.
func (r *Registry) RestartAll(ctx context.Context) {
	for _, sidx := range r.Stores() {
		r.collectors[sidx].Restart(ctx)
	}
}
