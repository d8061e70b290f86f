package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/filemesh/go-filemesh/collector/mocks"
	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/eventloop"
	"github.com/filemesh/go-filemesh/knowledge"
	"github.com/filemesh/go-filemesh/log/logtest"
	"github.com/filemesh/go-filemesh/retry"
	"github.com/filemesh/go-filemesh/sql"
	"github.com/filemesh/go-filemesh/sql/collectorfilters"
	"github.com/filemesh/go-filemesh/tokens"
)

type request struct {
	socid types.SOCID
	dids  []types.DID
	cb    func(context.Context, error)
	token *tokens.Token
}

// downloads records requests of the mocked downloader, they are completed by the test.
type downloads struct {
	ongoing  map[types.SOCID]int
	requests []request
}

func (d *downloads) expect(dl *mocks.MockDownloader) {
	dl.EXPECT().IsOngoing(gomock.Any()).DoAndReturn(func(socid types.SOCID) bool {
		return d.ongoing[socid] > 0
	}).AnyTimes()
	dl.EXPECT().DownloadAsync(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Do(
		func(socid types.SOCID, dids []types.DID, cb func(context.Context, error), token *tokens.Token) {
			d.ongoing[socid]++
			d.requests = append(d.requests, request{socid: socid, dids: dids, cb: cb, token: token})
		}).AnyTimes()
}

type tester struct {
	db     *sql.Database
	clock  clockwork.FakeClock
	loop   *eventloop.Loop
	tokens *tokens.Manager
	mdl    *mocks.MockDownloader
	skip   *mocks.MockSkipRule
	dl     *downloads
	c      *Collector
}

// newTester creates a collector of store 1. Expectations registered by setup take
// precedence over the defaults.
func newTester(tb testing.TB, tcfg tokens.Config, setup ...func(*tester)) *tester {
	logger := logtest.New(tb)
	ctrl := gomock.NewController(tb)
	clock := clockwork.NewFakeClock()
	tt := &tester{
		db:     sql.InMemory(),
		clock:  clock,
		loop:   eventloop.New(eventloop.WithLogger(logger), eventloop.WithClock(clock)),
		tokens: tokens.New(tokens.WithLogger(logger), tokens.WithConfig(tcfg)),
		mdl:    mocks.NewMockDownloader(ctrl),
		skip:   mocks.NewMockSkipRule(ctrl),
		dl:     &downloads{ongoing: map[types.SOCID]int{}},
	}
	for _, fn := range setup {
		fn(tt)
	}
	tt.dl.expect(tt.mdl)
	tt.skip.EXPECT().ShouldSkip(gomock.Any(), gomock.Any()).DoAndReturn(knowledge.SkipRule{}.ShouldSkip).AnyTimes()

	retrier := retry.New(tt.loop,
		retry.WithLogger(logger),
		retry.WithConfig(retry.Config{Initial: time.Second, Max: time.Second}),
	)
	c, err := New(tt.db, tt.loop, retrier, 1, tt.skip, tt.mdl, tt.tokens,
		WithLogger(logger),
		WithConfig(Config{
			PageSize:       2,
			DiscardBatch:   2,
			CachePages:     10,
			BackoffInitial: 10 * time.Second,
			BackoffMax:     time.Minute,
		}),
	)
	require.NoError(tb, err)
	tt.c = c
	return tt
}

func (tt *tester) drain() {
	tt.loop.Drain(context.Background())
}

func (tt *tester) learn(tb testing.TB, cids ...types.CID) []types.OCID {
	tb.Helper()
	ocids := make([]types.OCID, 0, len(cids))
	require.NoError(tb, tt.db.WithTx(context.Background(), func(tx *sql.Tx) error {
		for _, cid := range cids {
			ocid := types.OCID{OID: types.RandomOID(), CID: cid}
			if _, err := knowledge.Learn(tx, types.SOCID{SIndex: 1, OCID: ocid}); err != nil {
				return err
			}
			ocids = append(ocids, ocid)
		}
		return nil
	}))
	return ocids
}

// connect brings the device online with a filter of the objects.
func (tt *tester) connect(tb testing.TB, did types.DID, ocids ...types.OCID) {
	tb.Helper()
	filter := bloomOf(ocids...)
	require.NoError(tb, tt.db.WithTx(context.Background(), func(tx *sql.Tx) error {
		if err := tt.c.Online(context.Background(), tx, did); err != nil {
			return err
		}
		return tt.c.Add(context.Background(), tx, did, filter)
	}))
	tt.drain()
}

// complete finishes the request and records collected components.
func (tt *tester) complete(tb testing.TB, i int, err error) {
	tb.Helper()
	req := tt.dl.requests[i]
	tt.dl.ongoing[req.socid]--
	if err == nil {
		require.NoError(tb, knowledge.Collected(tt.db, req.socid))
	}
	req.cb(context.Background(), err)
	tt.drain()
}

func (tt *tester) requested(tb testing.TB) []types.OCID {
	tb.Helper()
	var ocids []types.OCID
	for _, req := range tt.dl.requests {
		ocids = append(ocids, req.socid.OCID)
	}
	return ocids
}

func (tt *tester) durable(tb testing.TB, did types.DID) bool {
	tb.Helper()
	_, err := collectorfilters.Get(tt.db, 1, did)
	if errors.Is(err, sql.ErrNotFound) {
		return false
	}
	require.NoError(tb, err)
	return true
}

func TestCollectorNoDevices(t *testing.T) {
	tt := newTester(t, tokens.DefaultConfig())
	tt.learn(t, types.CIDMeta, types.CIDMeta)
	tt.c.Restart(context.Background())
	tt.drain()
	require.Equal(t, Stopped, tt.c.State())
	require.Empty(t, tt.dl.requests)
}

func TestCollectorTraversal(t *testing.T) {
	tt := newTester(t, tokens.DefaultConfig())
	ocids := tt.learn(t, types.CIDMeta, types.CIDMeta, types.CIDMeta)
	a, c := ocids[0], ocids[2]
	did := types.RandomDID()

	tt.connect(t, did, a, c)
	require.Equal(t, Draining, tt.c.State())
	require.Equal(t, []types.OCID{a, c, a, c}, tt.requested(t), "second pass joins ongoing downloads")
	require.NotNil(t, tt.dl.requests[0].token)
	require.NotNil(t, tt.dl.requests[1].token)
	require.Nil(t, tt.dl.requests[2].token, "joined download doesn't take a token")
	require.Nil(t, tt.dl.requests[3].token)
	require.Equal(t, []types.DID{did}, tt.dl.requests[0].dids)
	require.Equal(t, 4, tt.c.Downloads())
	require.Equal(t, int64(2), tt.tokens.InUse(tokens.CollectMetadata))
	require.True(t, tt.c.Filters().IsEmpty())
	require.False(t, tt.c.HasUpdatesFrom(did))

	for i := range tt.dl.requests {
		tt.complete(t, i, nil)
	}
	require.Equal(t, Stopped, tt.c.State())
	require.Zero(t, tt.c.Downloads())
	require.Zero(t, tt.tokens.InUse(tokens.CollectMetadata))
	require.False(t, tt.durable(t, did), "filter is purged after successful traversal")
	require.False(t, tt.c.BackoffScheduled())
}

func TestCollectorFailedDownload(t *testing.T) {
	tt := newTester(t, tokens.DefaultConfig())
	ocids := tt.learn(t, types.CIDMeta, types.CIDMeta, types.CIDMeta)
	a, b, c := ocids[0], ocids[1], ocids[2]
	did := types.RandomDID()

	tt.connect(t, did, a, c)
	require.Len(t, tt.dl.requests, 4)
	fail := errors.New("unavailable")
	tt.complete(t, 0, nil)
	tt.complete(t, 1, fail)
	tt.complete(t, 2, nil)
	tt.complete(t, 3, fail)
	require.Equal(t, Stopped, tt.c.State())
	require.True(t, tt.c.Filters().Dirty(did))
	require.True(t, tt.durable(t, did), "filter of the failed device is kept")
	require.True(t, tt.c.BackoffScheduled())

	// restart after backoff collects only the failed component
	tt.clock.BlockUntil(1)
	tt.clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool {
		tt.drain()
		return len(tt.dl.requests) > 4
	}, time.Second, time.Millisecond)
	require.False(t, tt.c.BackoffScheduled())
	require.Equal(t, Draining, tt.c.State())
	require.Equal(t, []types.OCID{c, c}, tt.requested(t)[4:])
	require.NotContains(t, tt.requested(t), b)

	tt.complete(t, 4, nil)
	tt.complete(t, 5, nil)
	require.Equal(t, Stopped, tt.c.State())
	require.True(t, tt.durable(t, did), "dirty filter is kept until new filter is received")

	tt.connect(t, did)
	require.False(t, tt.c.Filters().Dirty(did))
	require.Equal(t, Stopped, tt.c.State())
	require.False(t, tt.durable(t, did))
}

func TestCollectorBackoffDoubles(t *testing.T) {
	tt := newTester(t, tokens.DefaultConfig())
	ocids := tt.learn(t, types.CIDMeta)
	did := types.RandomDID()
	tt.connect(t, did, ocids...)
	require.Len(t, tt.dl.requests, 2)
	scheduled := testutil.ToFloat64(backoffs)

	fail := errors.New("unavailable")
	tt.complete(t, 0, fail)
	tt.complete(t, 1, fail)
	require.True(t, tt.c.BackoffScheduled())
	require.Equal(t, scheduled+1, testutil.ToFloat64(backoffs), "one restart for failures of the same traversal")
	tt.clock.BlockUntil(1)
	tt.clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool {
		tt.drain()
		return len(tt.dl.requests) == 4
	}, time.Second, time.Millisecond)

	tt.complete(t, 2, fail)
	tt.complete(t, 3, fail)
	require.Equal(t, scheduled+2, testutil.ToFloat64(backoffs))
	tt.clock.BlockUntil(1)
	tt.clock.Advance(10 * time.Second)
	tt.drain()
	require.Len(t, tt.dl.requests, 4, "second backoff is twice as long")
	tt.clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool {
		tt.drain()
		return len(tt.dl.requests) == 6
	}, time.Second, time.Millisecond)
}

func TestCollectorAdmission(t *testing.T) {
	tt := newTester(t, tokens.Config{Metadata: 1, Content: 1})
	ocids := tt.learn(t, types.CIDMeta, types.CIDMeta, types.CIDMeta)
	did := types.RandomDID()
	waits := testutil.ToFloat64(suspensions)

	tt.connect(t, did, ocids...)
	require.Equal(t, WaitingForAdmission, tt.c.State())
	require.Equal(t, ocids[:1], tt.requested(t))
	require.Equal(t, waits+1, testutil.ToFloat64(suspensions))
	require.True(t, tt.c.HasUpdatesFrom(did))

	// traversal continues from the suspended entry
	tt.complete(t, 0, nil)
	require.Equal(t, WaitingForAdmission, tt.c.State())
	require.Equal(t, ocids[:2], tt.requested(t))

	tt.complete(t, 1, nil)
	require.Equal(t, append(ocids, ocids[2]), tt.requested(t), "next pass joins the last download")
	require.Nil(t, tt.dl.requests[3].token)
	require.Equal(t, Draining, tt.c.State())

	tt.complete(t, 2, nil)
	tt.complete(t, 3, nil)
	require.Equal(t, Stopped, tt.c.State())
	require.Len(t, tt.dl.requests, 4)
	require.False(t, tt.durable(t, did))
}

func TestCollectorCategories(t *testing.T) {
	tt := newTester(t, tokens.Config{Metadata: 1, Content: 1})
	ocids := tt.learn(t, types.CIDMeta, types.CIDContent)
	did := types.RandomDID()

	tt.connect(t, did, ocids...)
	require.Equal(t, ocids, tt.requested(t)[:2], "categories are admitted independently")
	require.Equal(t, tokens.CollectMetadata, tt.dl.requests[0].token.Category())
	require.Equal(t, tokens.CollectContent, tt.dl.requests[1].token.Category())
}

func TestCollectorMetadataOnly(t *testing.T) {
	tt := newTester(t, tokens.DefaultConfig())
	ocids := tt.learn(t, types.CIDContent, types.CIDMeta)
	require.NoError(t, tt.db.WithTx(context.Background(), func(tx *sql.Tx) error {
		return tt.c.SetCollectContent(context.Background(), tx, false)
	}))
	tt.drain()

	did := types.RandomDID()
	tt.connect(t, did, ocids...)
	require.Equal(t, []types.OCID{ocids[1], ocids[1]}, tt.requested(t))
}

func TestCollectorLateDevice(t *testing.T) {
	tt := newTester(t, tokens.Config{Metadata: 1, Content: 1})
	ocids := tt.learn(t, types.CIDMeta, types.CIDMeta, types.CIDMeta)
	first, second := types.RandomDID(), types.RandomDID()

	tt.connect(t, first, ocids[0], ocids[1])
	require.Equal(t, WaitingForAdmission, tt.c.State())

	// device that goes online during traversal is checked starting from the current entry
	tt.connect(t, second, ocids[0], ocids[2])
	tt.complete(t, 0, nil)
	tt.complete(t, 1, nil)
	require.Equal(t, ocids, tt.requested(t)[:3])
	require.Equal(t, []types.DID{first}, tt.dl.requests[1].dids)
	require.Equal(t, []types.DID{second}, tt.dl.requests[2].dids)
}

func TestCollectorWrapsForLateDevice(t *testing.T) {
	tt := newTester(t, tokens.Config{Metadata: 1, Content: 1})
	ocids := tt.learn(t, types.CIDMeta, types.CIDMeta)
	a, b := ocids[0], ocids[1]
	// token is held by another store
	held := tt.tokens.Acquire(tokens.CollectMetadata, "other store")
	require.NotNil(t, held)

	early, late := types.RandomDID(), types.RandomDID()
	tt.connect(t, early, b)
	require.Equal(t, WaitingForAdmission, tt.c.State())
	require.Empty(t, tt.dl.requests)

	// late device has only an entry that traversal already passed
	tt.connect(t, late, a)
	require.True(t, tt.c.HasUpdatesFrom(late))

	require.NoError(t, knowledge.Collected(tt.db, types.SOCID{SIndex: 1, OCID: b}))
	held.Reclaim()
	tt.drain()

	require.Equal(t, []types.OCID{a, a}, tt.requested(t))
	require.Equal(t, []types.DID{late}, tt.dl.requests[0].dids)
	require.NotNil(t, tt.dl.requests[0].token)
	require.Equal(t, Draining, tt.c.State())
	require.True(t, tt.durable(t, late), "filter is kept while its component is downloaded")

	tt.complete(t, 0, nil)
	tt.complete(t, 1, nil)
	require.Equal(t, Stopped, tt.c.State())
	require.False(t, tt.durable(t, late))
}

func TestCollectorOffline(t *testing.T) {
	tt := newTester(t, tokens.Config{Metadata: 1, Content: 1})
	ocids := tt.learn(t, types.CIDMeta, types.CIDMeta)
	did := types.RandomDID()

	tt.connect(t, did, ocids...)
	require.Equal(t, WaitingForAdmission, tt.c.State())
	tt.c.Offline(did)
	require.False(t, tt.c.Filters().Loaded(did))

	tt.complete(t, 0, nil)
	require.Equal(t, Stopped, tt.c.State())
	require.Len(t, tt.dl.requests, 1)
	require.True(t, tt.durable(t, did), "filter of offline device is not purged")
}

func TestCollectorRetriesPersistenceErrors(t *testing.T) {
	tt := newTester(t, tokens.DefaultConfig(), func(tt *tester) {
		tt.skip.EXPECT().ShouldSkip(gomock.Any(), gomock.Any()).Return(false, errors.New("injected"))
	})
	ocids := tt.learn(t, types.CIDMeta)

	tt.connect(t, types.RandomDID(), ocids...)
	require.Equal(t, Starting, tt.c.State())
	require.Empty(t, tt.dl.requests)

	tt.clock.BlockUntil(1)
	tt.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		tt.drain()
		return len(tt.dl.requests) > 0
	}, time.Second, time.Millisecond)
	require.Equal(t, Draining, tt.c.State())
}

func TestCollectorNewComponents(t *testing.T) {
	tt := newTester(t, tokens.DefaultConfig())
	did := types.RandomDID()
	tt.connect(t, did)
	require.Equal(t, Stopped, tt.c.State())

	ocids := tt.learn(t, types.CIDMeta)
	tt.connect(t, did, ocids...)
	require.Equal(t, []types.OCID{ocids[0], ocids[0]}, tt.requested(t))
}
