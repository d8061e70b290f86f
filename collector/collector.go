// Package collector decides which queued components to download and from which devices.
//
// Every store has a single Collector. It traverses the collector queue of the store,
// asks Filters which online devices may have each component and starts downloads
// admitted by tokens. All methods must be called from tasks of the event loop.
package collector

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/filemesh/go-filemesh/bloom"
	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/eventloop"
	"github.com/filemesh/go-filemesh/retry"
	"github.com/filemesh/go-filemesh/sql"
	"github.com/filemesh/go-filemesh/tokens"
)

// State of the collector.
type State int

const (
	// Stopped means there is no traversal and no outstanding downloads.
	Stopped State = iota
	// Starting means traversal was requested and is attempted under retry.
	Starting
	// Collecting means traversal is in progress.
	Collecting
	// WaitingForAdmission means traversal is paused until a token is reclaimed.
	WaitingForAdmission
	// Draining means traversal is finished but some downloads are outstanding.
	Draining
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Collecting:
		return "collecting"
	case WaitingForAdmission:
		return "waiting-for-admission"
	case Draining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// suspension captures the queue entry where traversal is paused.
type suspension struct {
	entry    types.CollectorEntry
	category tokens.Category
}

type restartBackoff struct {
	*backoff.ExponentialBackOff
	scheduled bool
	timer     clockwork.Timer
}

// Opt for configuring Collector.
type Opt func(*Collector)

// WithLogger sets logger for the collector.
func WithLogger(logger *zap.Logger) Opt {
	return func(c *Collector) {
		c.logger = logger
	}
}

// WithConfig sets configuration for the collector.
func WithConfig(cfg Config) Opt {
	return func(c *Collector) {
		c.cfg = cfg
	}
}

// New creates a collector for the store.
func New(
	db *sql.Database,
	loop *eventloop.Loop,
	retrier *retry.Retrier,
	sidx types.SIndex,
	skip SkipRule,
	downloader Downloader,
	admission Admission,
	opts ...Opt,
) (*Collector, error) {
	c := &Collector{
		logger:     zap.NewNop(),
		cfg:        DefaultConfig(),
		db:         db,
		loop:       loop,
		retrier:    retrier,
		sidx:       sidx,
		skip:       skip,
		downloader: downloader,
		admission:  admission,
		name:       fmt.Sprintf("collector/%d", sidx),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(types.ZSIndex(sidx))
	it, err := NewIterator(db, sidx, skip, c.cfg, c.logger)
	if err != nil {
		return nil, fmt.Errorf("create iterator for %v: %w", sidx, err)
	}
	c.it = it
	c.filters = NewFilters(sidx, c.position, c.logger)
	c.backoff.ExponentialBackOff = retry.Exponential(loop.Clock(), c.cfg.BackoffInitial, c.cfg.BackoffMax)
	return c, nil
}

// Collector drives traversals of the collector queue of a single store.
type Collector struct {
	logger     *zap.Logger
	cfg        Config
	db         *sql.Database
	loop       *eventloop.Loop
	retrier    *retry.Retrier
	sidx       types.SIndex
	skip       SkipRule
	downloader Downloader
	admission  Admission
	name       string

	it      *Iterator
	filters *Filters

	state     State
	downloads int
	// collected is set if a new download was started during the current pass.
	collected bool
	suspended *suspension
	backoff   restartBackoff
	closed    bool

	triggerPosted bool
}

// State returns the current state.
func (c *Collector) State() State {
	return c.state
}

// Downloads returns the number of outstanding downloads.
func (c *Collector) Downloads() int {
	return c.downloads
}

// Filters returns filters of the store.
func (c *Collector) Filters() *Filters {
	return c.filters
}

func (c *Collector) position() (types.CollectorSeq, bool) {
	if c.state != Collecting && c.state != WaitingForAdmission {
		return 0, false
	}
	entry, ok := c.it.Current()
	return entry.Seq, ok
}

func (c *Collector) setState(state State) {
	if c.state == state {
		return
	}
	c.logger.Debug("collector state changed",
		zap.Stringer("from", c.state),
		zap.Stringer("to", state),
	)
	c.state = state
}

// Add merges the filter received from the device. Collection is resumed after tx is committed.
func (c *Collector) Add(ctx context.Context, tx sql.Transaction, did types.DID, filter *bloom.Filter) error {
	loaded, err := c.filters.AddDBFilter(tx, did, filter)
	if err != nil {
		return fmt.Errorf("add filter from %s: %w", did.ShortString(), err)
	}
	if loaded {
		c.resetBackoff()
		c.triggerOnCommit(tx)
	}
	return nil
}

// Online loads the filter of the device. Collection is resumed after tx is committed.
func (c *Collector) Online(ctx context.Context, tx sql.Transaction, did types.DID) error {
	if c.filters.Loaded(did) {
		return nil
	}
	if err := c.filters.LoadDBFilter(tx, did); err != nil {
		return fmt.Errorf("load filter of %s: %w", did.ShortString(), err)
	}
	if cs, ok := c.position(); ok {
		c.filters.SetCSFilterFromDB(did, cs)
	}
	c.resetBackoff()
	c.triggerOnCommit(tx)
	return nil
}

// Offline discards in-memory filters of the device. The traversal terminates by itself
// once no device can serve queued components.
func (c *Collector) Offline(did types.DID) {
	c.filters.UnloadAllFilters(did)
}

// Restart resets the backoff and starts a traversal. If traversal is in progress
// every queued component is checked again against filters of online devices.
func (c *Collector) Restart(ctx context.Context) {
	c.resetBackoff()
	c.restart(ctx)
}

func (c *Collector) restart(ctx context.Context) {
	if cs, ok := c.position(); ok {
		c.filters.AddAllCSFiltersFromDB(cs)
	}
	c.trigger(ctx)
}

// Trigger starts a traversal unless one is in progress. Components appended to the
// queue while traversal is in progress are visited by it.
func (c *Collector) Trigger(ctx context.Context) {
	c.trigger(ctx)
}

// HasUpdatesFrom returns true if the traversal may download components from the device.
func (c *Collector) HasUpdatesFrom(did types.DID) bool {
	return c.filters.HasUpdatesFrom(did)
}

// SetCollectContent switches between collecting every component and only metadata.
func (c *Collector) SetCollectContent(ctx context.Context, tx sql.Transaction, content bool) error {
	if err := c.it.SetCollectContent(tx, content); err != nil {
		return err
	}
	tx.OnCommit(func() {
		c.loop.Post(c.Restart)
	})
	return nil
}

// triggerOnCommit posts a single trigger for any number of changes committed together.
func (c *Collector) triggerOnCommit(tx sql.Transaction) {
	tx.OnCommit(func() {
		if c.triggerPosted {
			return
		}
		c.triggerPosted = true
		c.loop.Post(func(ctx context.Context) {
			c.triggerPosted = false
			c.trigger(ctx)
		})
	})
}

func (c *Collector) trigger(ctx context.Context) {
	if c.closed {
		return
	}
	switch c.state {
	case Stopped, Draining:
		c.setState(Starting)
		c.retrier.Run(ctx, c.name, c.step)
	}
}

func (c *Collector) resetBackoff() {
	c.backoff.Reset()
}

func (c *Collector) scheduleBackoff() {
	if c.backoff.scheduled {
		return
	}
	c.backoff.scheduled = true
	interval := c.backoff.NextBackOff()
	c.logger.Debug("collector backoff scheduled", zap.Duration("after", interval))
	backoffs.Inc()
	c.backoff.timer = c.loop.AfterFunc(interval, func(ctx context.Context) {
		c.backoff.scheduled = false
		c.backoff.timer = nil
		if !c.closed {
			c.restart(ctx)
		}
	})
}

// BackoffScheduled returns true if restart is scheduled after a failed download.
func (c *Collector) BackoffScheduled() bool {
	return c.backoff.scheduled
}

// step is executed under retry. It either begins a traversal or continues a suspended one.
func (c *Collector) step(ctx context.Context) error {
	if c.closed {
		return nil
	}
	switch c.state {
	case Starting:
	case Collecting:
		if c.suspended == nil {
			return nil
		}
	default:
		return nil
	}
	err := c.db.WithTx(ctx, func(tx *sql.Tx) error {
		return c.collect(ctx, tx)
	})
	if err != nil {
		c.abort()
		return fmt.Errorf("collect %v: %w", c.sidx, err)
	}
	return nil
}

// abort drops the traversal after a persistence error, it is started again on retry.
func (c *Collector) abort() {
	c.it.Invalidate()
	c.filters.ClearCSFilters()
	c.suspended = nil
	c.collected = false
	c.setState(Starting)
}

func (c *Collector) begin(tx sql.Transaction) (bool, error) {
	c.it.Reset()
	c.filters.ClearCSFilters()
	c.collected = false
	ok, err := c.it.Next(tx)
	if err != nil || !ok {
		return false, err
	}
	entry, _ := c.it.Current()
	if !c.filters.SetAllCSFiltersFromDB(entry.Seq) {
		return false, nil
	}
	traversals.Inc()
	c.setState(Collecting)
	return true, nil
}

func (c *Collector) resumed(tx sql.Transaction) (bool, error) {
	s := c.suspended
	c.suspended = nil
	entry, ok := c.it.Current()
	if !ok || entry != s.entry {
		panic(fmt.Sprintf("BUG: traversal suspended at %v resumed at %v", s.entry, entry))
	}
	skip, err := c.skip.ShouldSkip(tx, types.SOCID{SIndex: c.sidx, OCID: entry.OCID})
	if err != nil {
		return false, err
	}
	return !skip, nil
}

func (c *Collector) collect(ctx context.Context, tx sql.Transaction) error {
	attempt := true
	if c.state == Starting {
		ok, err := c.begin(tx)
		if err != nil {
			return err
		}
		if !ok {
			return c.finish(tx)
		}
	} else {
		ok, err := c.resumed(tx)
		if err != nil {
			return err
		}
		attempt = ok
	}
	for {
		entry, _ := c.it.Current()
		if attempt {
			if dids := c.filters.Test(entry.OCID); len(dids) > 0 {
				if c.collectOne(entry, dids) {
					c.setState(WaitingForAdmission)
					return nil
				}
			}
		}
		attempt = true
		ok, err := c.it.Next(tx)
		if err != nil {
			return err
		}
		if !ok {
			c.filters.DeleteCSFilters(entry.Seq.PlusOne(), OpenEnd)
			ok, err = c.it.Next(tx)
			if err != nil {
				return err
			}
			if !ok {
				return c.finish(tx)
			}
			first, _ := c.it.Current()
			// overlays up to the first entry were tested against the whole queue
			remaining := c.filters.DeleteCSFilters(OpenStart, first.Seq)
			if c.collected {
				c.collected = false
				c.filters.AddAllCSFiltersFromDB(first.Seq)
				remaining = !c.filters.IsEmpty()
			}
			if !remaining {
				return c.finish(tx)
			}
			passes.Inc()
			continue
		}
		next, _ := c.it.Current()
		if !c.filters.DeleteCSFilters(entry.Seq.PlusOne(), next.Seq) {
			return c.finish(tx)
		}
	}
}

// collectOne starts or joins download of the entry. Returns true if traversal is suspended.
func (c *Collector) collectOne(entry types.CollectorEntry, dids []types.DID) bool {
	socid := types.SOCID{SIndex: c.sidx, OCID: entry.OCID}
	if c.downloader.IsOngoing(socid) {
		c.downloads++
		downloadsStarted.WithLabelValues("join").Inc()
		c.downloader.DownloadAsync(socid, dids, c.completion(socid, dids, nil), nil)
		return false
	}
	category := tokens.CollectContent
	if entry.OCID.CID.IsMeta() {
		category = tokens.CollectMetadata
	}
	token := c.admission.Acquire(category, "collect "+socid.String())
	if token == nil {
		s := &suspension{entry: entry, category: category}
		c.suspended = s
		suspensions.Inc()
		c.logger.Debug("collection suspended",
			zap.Stringer("entry", entry),
			zap.Stringer("category", category),
		)
		c.admission.AddReclamationListener(category, func() {
			c.loop.Post(func(ctx context.Context) {
				c.resume(ctx, s)
			})
		})
		return true
	}
	c.downloads++
	c.collected = true
	downloadsStarted.WithLabelValues("new").Inc()
	c.logger.Debug("download started", zap.Object("socid", socid), types.ZDIDs(dids))
	c.downloader.DownloadAsync(socid, dids, c.completion(socid, dids, token), token)
	return false
}

func (c *Collector) resume(ctx context.Context, s *suspension) {
	if c.closed || c.state != WaitingForAdmission || c.suspended != s {
		return
	}
	c.setState(Collecting)
	c.retrier.Run(ctx, c.name, c.step)
}

func (c *Collector) completion(socid types.SOCID, dids []types.DID, token *tokens.Token) CompletionFunc {
	return func(ctx context.Context, err error) {
		if token != nil {
			token.Reclaim()
		}
		c.downloads--
		if c.downloads < 0 {
			panic(fmt.Sprintf("BUG: negative number of downloads in %v", c.sidx))
		}
		if c.closed {
			return
		}
		if err != nil {
			downloadsFailed.Inc()
			c.logger.Debug("download failed",
				zap.Object("socid", socid),
				types.ZDIDs(dids),
				zap.Error(err),
			)
			for _, did := range dids {
				c.filters.SetDirtyBit(did)
			}
			c.scheduleBackoff()
		}
		c.tryStop(ctx)
	}
}

func (c *Collector) tryStop(ctx context.Context) {
	if c.state != Draining || c.downloads > 0 {
		return
	}
	if err := c.db.WithTx(ctx, func(tx *sql.Tx) error {
		return c.stop(tx)
	}); err != nil {
		c.logger.Warn("failed to clean up filters", zap.Error(err))
	}
	c.setState(Stopped)
}

// finish ends the traversal.
func (c *Collector) finish(tx sql.Transaction) error {
	c.it.Reset()
	c.filters.ClearCSFilters()
	c.suspended = nil
	c.collected = false
	if c.downloads > 0 {
		c.setState(Draining)
		return nil
	}
	if err := c.stop(tx); err != nil {
		c.logger.Warn("failed to clean up filters", zap.Error(err))
	}
	c.setState(Stopped)
	return nil
}

func (c *Collector) stop(tx sql.Transaction) error {
	if !c.filters.IsEmpty() {
		panic(fmt.Sprintf("BUG: overlay filters exist in stopped collector %v", c.sidx))
	}
	return c.filters.CleanUpDBFilters(tx)
}

// close stops the collector. Outstanding completions only update counters.
func (c *Collector) close() {
	c.closed = true
	if c.backoff.timer != nil {
		c.backoff.timer.Stop()
	}
	c.retrier.Cancel(c.name)
	c.it.Reset()
	c.filters.ClearCSFilters()
	c.suspended = nil
	c.setState(Stopped)
}
