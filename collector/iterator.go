package collector

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/sql"
	"github.com/filemesh/go-filemesh/sql/collectorq"
)

// Iterator replays the collector queue of a store in the ascending order of sequences.
//
// The queue is append-only, so pages that were read once are kept in memory and
// replayed after Reset, unless entries were deleted from the queue since
// the previous Reset.
type Iterator struct {
	logger *zap.Logger
	cfg    Config
	sidx   types.SIndex
	skip   SkipRule

	content bool

	// cache holds consecutive queue entries. If fromStart is true, the first cached
	// entry is the first entry of the queue.
	cache     []types.CollectorEntry
	fromStart bool
	// stale is set when cached entries were deleted from the queue.
	stale bool
	// fetched is the last sequence that was read from the queue.
	fetched types.CollectorSeq
	// cursor is the index of the next cached entry.
	cursor int

	current *types.CollectorEntry
}

// NewIterator creates an iterator for the queue of the store.
// The collector mode of the store is read once.
func NewIterator(
	db sql.Executor,
	sidx types.SIndex,
	skip SkipRule,
	cfg Config,
	logger *zap.Logger,
) (*Iterator, error) {
	content, err := collectorq.GetMode(db, sidx)
	if err != nil {
		return nil, err
	}
	return &Iterator{
		logger:    logger,
		cfg:       cfg,
		sidx:      sidx,
		skip:      skip,
		content:   content,
		fromStart: true,
	}, nil
}

// Started returns true if Next returned an entry after the last Reset.
func (it *Iterator) Started() bool {
	return it.current != nil
}

// Current returns the entry returned by the last Next.
func (it *Iterator) Current() (types.CollectorEntry, bool) {
	if it.current == nil {
		return types.CollectorEntry{}, false
	}
	return *it.current, true
}

// CollectContent returns false if only metadata components are collected.
func (it *Iterator) CollectContent() bool {
	return it.content
}

// Reset moves iterator to the start of the queue.
func (it *Iterator) Reset() {
	it.current = nil
	it.cursor = 0
	if it.stale || !it.fromStart {
		it.dropCache()
	}
}

// Invalidate drops cached pages and moves iterator to the start of the queue.
func (it *Iterator) Invalidate() {
	it.stale = true
	it.Reset()
}

func (it *Iterator) dropCache() {
	it.cache = nil
	it.cursor = 0
	it.stale = false
	it.fromStart = it.current == nil
	if it.current == nil {
		it.fetched = 0
	} else {
		it.fetched = it.current.Seq
	}
}

// switchMode clears cached pages, but keeps the current entry so that the iterator
// remains started.
func (it *Iterator) switchMode() {
	it.dropCache()
}

// SetCollectContent persists the collector mode of the store and applies it to the
// following entries.
func (it *Iterator) SetCollectContent(tx sql.Executor, content bool) error {
	if err := collectorq.SetMode(tx, it.sidx, content); err != nil {
		return err
	}
	if it.content != content {
		it.content = content
		it.switchMode()
	}
	return nil
}

func (it *Iterator) fetch(db sql.Executor) (types.CollectorEntry, bool, error) {
	if it.cursor < len(it.cache) {
		entry := it.cache[it.cursor]
		it.cursor++
		return entry, true, nil
	}
	entries, err := collectorq.List(db, it.sidx, it.fetched, it.cfg.PageSize)
	if err != nil {
		return types.CollectorEntry{}, false, err
	}
	if len(entries) == 0 {
		return types.CollectorEntry{}, false, nil
	}
	if len(it.cache)+len(entries) > it.cfg.PageSize*it.cfg.CachePages {
		it.cache = it.cache[:0]
		it.cursor = 0
		it.fromStart = false
	}
	it.cache = append(it.cache, entries...)
	it.fetched = entries[len(entries)-1].Seq
	entry := it.cache[it.cursor]
	it.cursor++
	return entry, true, nil
}

func (it *Iterator) discard(db sql.Executor, seqs []types.CollectorSeq) error {
	if len(seqs) == 0 {
		return nil
	}
	it.stale = true
	if err := collectorq.DeleteSeqs(db, it.sidx, seqs); err != nil {
		return fmt.Errorf("discard skipped entries: %w", err)
	}
	return nil
}

// Next advances to the next entry that should be collected, deleting skipped entries
// from the queue within db. Returns false at the end of the queue, after which
// the iterator is not started.
func (it *Iterator) Next(db sql.Executor) (bool, error) {
	var discarded []types.CollectorSeq
	for {
		entry, ok, err := it.fetch(db)
		if err != nil {
			return false, err
		}
		if !ok {
			if err := it.discard(db, discarded); err != nil {
				return false, err
			}
			it.logger.Debug("end of collector queue", types.ZSIndex(it.sidx))
			it.Reset()
			return false, nil
		}
		if prev := it.current; prev != nil && entry.Seq <= prev.Seq {
			panic(fmt.Sprintf("BUG: collector sequence %d doesn't follow %d", entry.Seq, prev.Seq))
		}
		it.current = &entry
		if !it.content && entry.OCID.CID.IsContent() {
			continue
		}
		skip, err := it.skip.ShouldSkip(db, types.SOCID{SIndex: it.sidx, OCID: entry.OCID})
		if err != nil {
			return false, err
		}
		if !skip {
			return true, it.discard(db, discarded)
		}
		discarded = append(discarded, entry.Seq)
		if len(discarded) >= it.cfg.DiscardBatch {
			if err := it.discard(db, discarded); err != nil {
				return false, err
			}
			discarded = discarded[:0]
		}
	}
}
