package collector

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/google/btree"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/filemesh/go-filemesh/bloom"
	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/sql"
	"github.com/filemesh/go-filemesh/sql/collectorfilters"
)

const (
	// OpenStart is used as the lower bound of DeleteCSFilters that is not bounded.
	OpenStart types.CollectorSeq = 0
	// OpenEnd is used as the upper bound of DeleteCSFilters that is not bounded.
	OpenEnd types.CollectorSeq = math.MaxUint64
)

type deviceFilter struct {
	// filter mirrors the persisted filter of the device. It is finalized and replaced on change.
	filter *bloom.Filter
	dirty  bool
	// css are the positions where overlay filters of the device exist.
	css map[types.CollectorSeq]struct{}
}

type csFilters struct {
	seq     types.CollectorSeq
	filters map[types.DID]*bloom.Filter
}

func lessCS(a, b *csFilters) bool {
	return a.seq < b.seq
}

// Filters tracks bloom filters of remote devices for a single store.
//
// The durable filter of a device summarizes every object the device announced.
// Overlay filters are copies of durable filters bound to positions of the collector
// queue, created as the traversal advances. They exist only while a traversal is active.
type Filters struct {
	logger *zap.Logger
	sidx   types.SIndex

	devices map[types.DID]*deviceFilter
	overlay *btree.BTreeG[*csFilters]
	// position returns the position of the traversal, if it is active.
	position func() (types.CollectorSeq, bool)
}

// NewFilters creates filters of the store. position reports where the traversal is paused.
func NewFilters(sidx types.SIndex, position func() (types.CollectorSeq, bool), logger *zap.Logger) *Filters {
	return &Filters{
		logger:   logger,
		sidx:     sidx,
		devices:  map[types.DID]*deviceFilter{},
		overlay:  btree.NewG(8, lessCS),
		position: position,
	}
}

func (f *Filters) readDurable(db sql.Executor, did types.DID) (*bloom.Filter, error) {
	if df, ok := f.devices[did]; ok {
		return df.filter, nil
	}
	filter, err := collectorfilters.Get(db, f.sidx, did)
	switch {
	case errors.Is(err, sql.ErrNotFound):
		return bloom.New().Finalize(), nil
	case err != nil:
		return nil, err
	}
	return filter.Finalize(), nil
}

// AddDBFilter merges filter into the durable filter of the device. If the device is
// loaded the filter is also merged into the overlay at the current traversal position.
// Returns true if the device is loaded.
func (f *Filters) AddDBFilter(tx sql.Transaction, did types.DID, filter *bloom.Filter) (bool, error) {
	durable, err := f.readDurable(tx, did)
	if err != nil {
		return false, err
	}
	merged := durable.Clone()
	changed := merged.Union(filter)
	if changed {
		if err := collectorfilters.Set(tx, f.sidx, did, merged); err != nil {
			return false, err
		}
	}
	df, loaded := f.devices[did]
	if !loaded {
		return false, nil
	}
	prevFilter, prevDirty := df.filter, df.dirty
	if changed || prevDirty {
		tx.OnRollback(func() {
			if f.devices[did] == df {
				df.filter, df.dirty = prevFilter, prevDirty
			}
		})
	}
	if changed {
		df.filter = merged.Finalize()
	}
	df.dirty = false
	if cs, ok := f.position(); ok {
		f.mergeCS(did, df, cs, filter)
	}
	return true, nil
}

// LoadDBFilter brings the durable filter of the device into memory.
func (f *Filters) LoadDBFilter(tx sql.Transaction, did types.DID) error {
	if _, ok := f.devices[did]; ok {
		return nil
	}
	filter, err := f.readDurable(tx, did)
	if err != nil {
		return err
	}
	df := &deviceFilter{
		filter: filter,
		css:    map[types.CollectorSeq]struct{}{},
	}
	f.devices[did] = df
	tx.OnRollback(func() {
		if f.devices[did] == df {
			f.unload(did, df)
		}
	})
	return nil
}

// Loaded returns true if the device filter is in memory.
func (f *Filters) Loaded(did types.DID) bool {
	_, ok := f.devices[did]
	return ok
}

// Devices returns loaded devices.
func (f *Filters) Devices() []types.DID {
	dids := make([]types.DID, 0, len(f.devices))
	for did := range f.devices {
		dids = append(dids, did)
	}
	slices.SortFunc(dids, types.DID.Compare)
	return dids
}

// UnloadAllFilters discards in-memory state of the device. Durable filter is not modified.
func (f *Filters) UnloadAllFilters(did types.DID) {
	if df, ok := f.devices[did]; ok {
		f.unload(did, df)
	}
}

func (f *Filters) unload(did types.DID, df *deviceFilter) {
	for cs := range df.css {
		entry, ok := f.overlay.Get(&csFilters{seq: cs})
		if !ok {
			panic(fmt.Sprintf("BUG: overlay at %d for %s is not indexed", cs, did.ShortString()))
		}
		delete(entry.filters, did)
		if len(entry.filters) == 0 {
			f.overlay.Delete(entry)
		}
	}
	delete(f.devices, did)
}

func (f *Filters) entryAt(cs types.CollectorSeq) *csFilters {
	entry, ok := f.overlay.Get(&csFilters{seq: cs})
	if !ok {
		entry = &csFilters{seq: cs, filters: map[types.DID]*bloom.Filter{}}
		f.overlay.ReplaceOrInsert(entry)
	}
	return entry
}

func (f *Filters) mergeCS(did types.DID, df *deviceFilter, cs types.CollectorSeq, filter *bloom.Filter) {
	if filter.IsEmpty() {
		return
	}
	entry := f.entryAt(cs)
	existing, ok := entry.filters[did]
	if !ok {
		entry.filters[did] = filter.Clone().Finalize()
		df.css[cs] = struct{}{}
		return
	}
	merged := existing.Clone()
	if merged.Union(filter) {
		entry.filters[did] = merged.Finalize()
	}
}

// SetCSFilterFromDB places the durable filter of the loaded device at the position cs,
// replacing the overlay of the device at that position.
func (f *Filters) SetCSFilterFromDB(did types.DID, cs types.CollectorSeq) {
	df, ok := f.devices[did]
	if !ok {
		panic(fmt.Sprintf("BUG: device %s is not loaded", did.ShortString()))
	}
	if df.filter.IsEmpty() {
		return
	}
	f.entryAt(cs).filters[did] = df.filter
	df.css[cs] = struct{}{}
}

// SetAllCSFiltersFromDB places durable filters of every loaded device at the position cs.
// It is valid only when overlay is empty. Returns true if any filter was placed.
func (f *Filters) SetAllCSFiltersFromDB(cs types.CollectorSeq) bool {
	if !f.IsEmpty() {
		panic("BUG: overlay filters must be empty at the start of the traversal")
	}
	for did := range f.devices {
		f.SetCSFilterFromDB(did, cs)
	}
	return !f.IsEmpty()
}

// AddAllCSFiltersFromDB merges durable filters of every loaded device into the
// overlay at the position cs.
func (f *Filters) AddAllCSFiltersFromDB(cs types.CollectorSeq) {
	for did, df := range f.devices {
		f.mergeCS(did, df, cs, df.filter)
	}
}

// DeleteCSFilters removes overlay filters at positions within [from, to].
// Use OpenStart or OpenEnd for an unbounded side, at most one side can be unbounded.
// Returns true if any overlay filter remains.
func (f *Filters) DeleteCSFilters(from, to types.CollectorSeq) bool {
	if from == OpenStart && to == OpenEnd {
		panic("BUG: both ends of the deleted range are open")
	}
	var purged []*csFilters
	visit := func(entry *csFilters) bool {
		purged = append(purged, entry)
		return true
	}
	if to == OpenEnd {
		f.overlay.AscendGreaterOrEqual(&csFilters{seq: from}, visit)
	} else if to >= from {
		f.overlay.AscendRange(&csFilters{seq: from}, &csFilters{seq: to + 1}, visit)
	}
	for _, entry := range purged {
		for did := range entry.filters {
			delete(f.devices[did].css, entry.seq)
		}
		f.overlay.Delete(entry)
	}
	return !f.IsEmpty()
}

// Test returns devices that may have the object, in ascending order.
func (f *Filters) Test(ocid types.OCID) []types.DID {
	found := map[types.DID]struct{}{}
	f.overlay.Ascend(func(entry *csFilters) bool {
		for did, filter := range entry.filters {
			if _, ok := found[did]; ok {
				continue
			}
			if filter.Contains(ocid.OID) {
				found[did] = struct{}{}
			}
		}
		return len(found) < len(f.devices)
	})
	dids := make([]types.DID, 0, len(found))
	for did := range found {
		dids = append(dids, did)
	}
	slices.SortFunc(dids, types.DID.Compare)
	return dids
}

// SetDirtyBit marks the durable filter of the device as unreliable.
func (f *Filters) SetDirtyBit(did types.DID) {
	if df, ok := f.devices[did]; ok {
		df.dirty = true
	}
}

// Dirty returns true if the device is loaded and its durable filter is unreliable.
func (f *Filters) Dirty(did types.DID) bool {
	df, ok := f.devices[did]
	return ok && df.dirty
}

// HasUpdatesFrom returns true if the device has overlay filters.
func (f *Filters) HasUpdatesFrom(did types.DID) bool {
	df, ok := f.devices[did]
	return ok && len(df.css) > 0
}

// IsEmpty returns true if there are no overlay filters.
func (f *Filters) IsEmpty() bool {
	return f.overlay.Len() == 0
}

// ClearCSFilters removes every overlay filter.
func (f *Filters) ClearCSFilters() {
	f.overlay.Clear(false)
	for _, df := range f.devices {
		maps.Clear(df.css)
	}
}

// CleanUpDBFilters deletes durable filters of loaded devices that are not dirty.
// Overlay must be empty.
func (f *Filters) CleanUpDBFilters(tx sql.Transaction) error {
	if !f.IsEmpty() {
		panic("BUG: durable filters cleaned up while overlay is not empty")
	}
	for did, df := range f.devices {
		if df.dirty || df.filter.IsEmpty() {
			continue
		}
		if err := collectorfilters.Delete(tx, f.sidx, did); err != nil {
			return err
		}
		prev := df.filter
		df.filter = bloom.New().Finalize()
		tx.OnRollback(func() {
			if f.devices[did] == df {
				df.filter = prev
			}
		})
		f.logger.Debug("durable filter purged", types.ZSIndex(f.sidx), types.ZDID(did))
	}
	return nil
}
