// Package senderfilters advertises locally updated objects to remote devices.
//
// Updates are accumulated in a chain of bloom filters. Only the last filter of the
// chain is mutated. Every device has a position in the chain, it receives the union
// of filters from its position to the end of the chain, and moves its position past
// the last filter once it acknowledged the union.
package senderfilters

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spacemeshos/go-scale"
	"go.uber.org/zap"

	"github.com/filemesh/go-filemesh/bloom"
	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/sql"
	sfsql "github.com/filemesh/go-filemesh/sql/senderfilters"
)

// Result is a union of filters that is sent to a device.
type Result struct {
	Filter *bloom.Filter
	// Index is the position of the device in the chain.
	Index types.SenderFilterIndex
	// UpdateSeq must be echoed back by the device when it acknowledges the filter.
	UpdateSeq uint64
}

// EncodeScale implements scale codec interface.
func (r *Result) EncodeScale(enc *scale.Encoder) (total int, err error) {
	{
		n, err := r.Filter.EncodeScale(enc)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeCompact64(enc, uint64(r.Index))
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeCompact64(enc, r.UpdateSeq)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DecodeScale implements scale codec interface.
func (r *Result) DecodeScale(dec *scale.Decoder) (total int, err error) {
	{
		r.Filter = new(bloom.Filter)
		n, err := r.Filter.DecodeScale(dec)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		field, n, err := scale.DecodeCompact64(dec)
		if err != nil {
			return total, err
		}
		total += n
		r.Index = types.SenderFilterIndex(field)
	}
	{
		field, n, err := scale.DecodeCompact64(dec)
		if err != nil {
			return total, err
		}
		total += n
		r.UpdateSeq = field
	}
	return total, nil
}

// Opt for configuring SenderFilters.
type Opt func(*SenderFilters)

// WithLogger sets logger for sender filters.
func WithLogger(logger *zap.Logger) Opt {
	return func(s *SenderFilters) {
		s.logger = logger
	}
}

// WithCacheSize sets the number of decoded filters kept in memory.
func WithCacheSize(size int) Opt {
	return func(s *SenderFilters) {
		s.cacheSize = size
	}
}

// New loads the chain of the store, creating the base filter if the chain is empty.
func New(db sql.Executor, sidx types.SIndex, opts ...Opt) (*SenderFilters, error) {
	s := &SenderFilters{
		logger:    zap.NewNop(),
		sidx:      sidx,
		cacheSize: 64,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(types.ZSIndex(sidx))
	cache, err := lru.New[types.SenderFilterIndex, *bloom.Filter](s.cacheSize)
	if err != nil {
		return nil, err
	}
	s.cache = cache

	last, err := sfsql.LastIndex(db, sidx)
	switch {
	case errors.Is(err, sql.ErrNotFound):
		s.lastIdx, s.last = types.BaseIndex, bloom.New().Finalize()
		if err := sfsql.SetFilter(db, sidx, s.lastIdx, s.last); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		filter, err := sfsql.GetFilter(db, sidx, last)
		if err != nil {
			return nil, err
		}
		s.lastIdx, s.last = last, filter.Finalize()
	}
	return s, nil
}

// SenderFilters maintains the chain of a single store.
// It must be used from event loop tasks.
type SenderFilters struct {
	logger    *zap.Logger
	sidx      types.SIndex
	cacheSize int

	// updateSeq changes whenever the last filter changes, it is not persisted.
	updateSeq uint64
	lastIdx   types.SenderFilterIndex
	last      *bloom.Filter
	cache     *lru.Cache[types.SenderFilterIndex, *bloom.Filter]
}

// LastIndex returns index of the last filter.
func (s *SenderFilters) LastIndex() types.SenderFilterIndex {
	return s.lastIdx
}

// UpdateSeq returns the current update sequence.
func (s *SenderFilters) UpdateSeq() uint64 {
	return s.updateSeq
}

func (s *SenderFilters) filter(db sql.Executor, idx types.SenderFilterIndex) (*bloom.Filter, error) {
	if idx == s.lastIdx {
		return s.last, nil
	}
	if filter, ok := s.cache.Get(idx); ok {
		return filter, nil
	}
	filter, err := sfsql.GetFilter(db, s.sidx, idx)
	if err != nil {
		return nil, err
	}
	filter.Finalize()
	s.cache.Add(idx, filter)
	return filter, nil
}

func (s *SenderFilters) recordedIndex(db sql.Executor, did types.DID) (types.SenderFilterIndex, error) {
	idx, err := sfsql.GetDeviceIndex(db, s.sidx, did)
	if errors.Is(err, sql.ErrNotFound) {
		return types.BaseIndex, nil
	}
	return idx, err
}

// ObjectUpdated adds the object to the last filter.
func (s *SenderFilters) ObjectUpdated(tx sql.Transaction, oid types.OID) error {
	next := s.last.Clone()
	if !next.Add(oid) {
		return nil
	}
	if err := sfsql.SetFilter(tx, s.sidx, s.lastIdx, next); err != nil {
		return fmt.Errorf("object updated %v: %w", oid.ShortString(), err)
	}
	prev, idx := s.last, s.lastIdx
	s.last = next.Finalize()
	s.updateSeq++
	tx.OnRollback(func() {
		if s.lastIdx == idx {
			s.last = prev
		}
	})
	return nil
}

// Get returns union of filters starting at the position of the device, or at the base
// filter if fromBase is true. Returns nil if there is nothing to send.
func (s *SenderFilters) Get(db sql.Executor, did types.DID, fromBase bool) (*Result, error) {
	idx, err := s.recordedIndex(db, did)
	if err != nil {
		return nil, err
	}
	from := idx
	if fromBase {
		from = types.BaseIndex
	}
	indexes, err := sfsql.Indexes(db, s.sidx, from)
	if err != nil {
		return nil, err
	}
	union := bloom.New()
	for _, i := range indexes {
		filter, err := s.filter(db, i)
		if err != nil {
			return nil, err
		}
		union.Union(filter)
	}
	if union.IsEmpty() {
		return nil, nil
	}
	return &Result{
		Filter:    union.Finalize(),
		Index:     idx,
		UpdateSeq: s.updateSeq,
	}, nil
}

// Update moves the device past the last filter after it acknowledged the filter received
// at oldIndex. Stale and duplicate acknowledgements are ignored.
func (s *SenderFilters) Update(tx sql.Transaction, did types.DID, oldIndex types.SenderFilterIndex, updateSeq uint64) error {
	if updateSeq != s.updateSeq {
		ignoredUpdates.WithLabelValues("stale").Inc()
		s.logger.Debug("stale sender filter update",
			types.ZDID(did),
			zap.Uint64("seq", updateSeq),
			zap.Uint64("current", s.updateSeq),
		)
		return nil
	}
	current, err := s.recordedIndex(tx, did)
	if err != nil {
		return err
	}
	if current != oldIndex {
		ignoredUpdates.WithLabelValues("duplicate").Inc()
		s.logger.Debug("duplicate sender filter update",
			types.ZDID(did),
			zap.Uint64("index", uint64(oldIndex)),
			zap.Uint64("current", uint64(current)),
		)
		return nil
	}
	newIndex := s.lastIdx
	if !s.last.IsEmpty() {
		newIndex = s.lastIdx.PlusOne()
		empty := bloom.New().Finalize()
		if err := sfsql.SetFilter(tx, s.sidx, newIndex, empty); err != nil {
			return err
		}
		prevIdx, prevLast := s.lastIdx, s.last
		s.lastIdx, s.last = newIndex, empty
		s.cache.Add(prevIdx, prevLast)
		tx.OnRollback(func() {
			s.lastIdx, s.last = prevIdx, prevLast
			s.cache.Remove(prevIdx)
		})
	}
	if newIndex == oldIndex {
		return nil
	}
	if err := sfsql.SetDeviceIndex(tx, s.sidx, did, newIndex); err != nil {
		return err
	}
	if oldIndex == types.BaseIndex {
		return nil
	}
	refs, err := sfsql.CountDevicesAt(tx, s.sidx, oldIndex)
	if err != nil || refs > 0 {
		return err
	}
	return s.mergeIntoPredecessor(tx, oldIndex)
}

func (s *SenderFilters) mergeIntoPredecessor(tx sql.Transaction, idx types.SenderFilterIndex) error {
	prev, err := sfsql.Predecessor(tx, s.sidx, idx)
	if err != nil {
		return err
	}
	prevFilter, err := s.filter(tx, prev)
	if err != nil {
		return err
	}
	filter, err := s.filter(tx, idx)
	if err != nil {
		return err
	}
	merged := prevFilter.Clone()
	if merged.Union(filter) {
		if err := sfsql.SetFilter(tx, s.sidx, prev, merged); err != nil {
			return err
		}
	}
	if err := sfsql.DeleteFilter(tx, s.sidx, idx); err != nil {
		return err
	}
	s.cache.Remove(prev)
	s.cache.Remove(idx)
	tx.OnRollback(func() {
		s.cache.Remove(prev)
		s.cache.Remove(idx)
	})
	merges.Inc()
	s.logger.Debug("sender filter merged",
		zap.Uint64("index", uint64(idx)),
		zap.Uint64("into", uint64(prev)),
	)
	return nil
}

// DeleteStore removes the chain of the store.
func (s *SenderFilters) DeleteStore(tx sql.Transaction) error {
	if err := sfsql.DeleteStore(tx, s.sidx); err != nil {
		return err
	}
	tx.OnCommit(s.cache.Purge)
	return nil
}
