package downloads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/downloads/mocks"
	"github.com/filemesh/go-filemesh/eventloop"
	"github.com/filemesh/go-filemesh/log/logtest"
	"github.com/filemesh/go-filemesh/tokens"
)

type tester struct {
	loop    *eventloop.Loop
	fetcher *mocks.MockFetcher
	d       *Downloads
	tokens  *tokens.Manager
}

func newTester(tb testing.TB, opts ...Opt) *tester {
	ctrl := gomock.NewController(tb)
	loop := eventloop.New()
	fetcher := mocks.NewMockFetcher(ctrl)
	opts = append([]Opt{WithLogger(logtest.New(tb))}, opts...)
	d := New(loop, fetcher, opts...)
	tb.Cleanup(func() { require.NoError(tb, d.Close()) })
	return &tester{loop: loop, fetcher: fetcher, d: d, tokens: tokens.New()}
}

type result struct {
	called int
	err    error
}

func (r *result) cb(_ context.Context, err error) {
	r.called++
	r.err = err
}

// wait drains the loop until every result is received.
func (tt *tester) wait(tb testing.TB, results ...*result) {
	tb.Helper()
	require.Eventually(tb, func() bool {
		tt.loop.Drain(context.Background())
		for _, r := range results {
			if r.called == 0 {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)
}

func testSOCID() types.SOCID {
	return types.SOCID{SIndex: 1, OCID: types.OCID{OID: types.RandomOID(), CID: types.CIDContent}}
}

func TestDownloadFallsBackToNextDevice(t *testing.T) {
	var collected []types.SOCID
	tt := newTester(t, WithOnSuccess(func(_ context.Context, socid types.SOCID) error {
		collected = append(collected, socid)
		return nil
	}))
	socid := testSOCID()
	d1, d2 := types.RandomDID(), types.RandomDID()

	gomock.InOrder(
		tt.fetcher.EXPECT().Fetch(gomock.Any(), socid, d1).Return(errors.New("offline")),
		tt.fetcher.EXPECT().Fetch(gomock.Any(), socid, d2).Return(nil),
	)
	var r result
	tt.d.DownloadAsync(socid, []types.DID{d1, d2}, r.cb, tt.tokens.Acquire(tokens.CollectContent, "test"))
	require.True(t, tt.d.IsOngoing(socid))

	tt.wait(t, &r)
	require.Equal(t, 1, r.called)
	require.NoError(t, r.err)
	require.False(t, tt.d.IsOngoing(socid))
	require.Equal(t, []types.SOCID{socid}, collected)
}

func TestDownloadFails(t *testing.T) {
	tt := newTester(t, WithOnSuccess(func(context.Context, types.SOCID) error {
		t.Error("success hook must not be called")
		return nil
	}))
	socid := testSOCID()
	did := types.RandomDID()
	tt.fetcher.EXPECT().Fetch(gomock.Any(), socid, did).Return(errors.New("no permission"))

	var r result
	tt.d.DownloadAsync(socid, []types.DID{did}, r.cb, tt.tokens.Acquire(tokens.CollectContent, "test"))
	tt.wait(t, &r)
	require.ErrorIs(t, r.err, ErrNoDevices)
	require.Zero(t, tt.d.Ongoing())
}

func TestDownloadJoin(t *testing.T) {
	tt := newTester(t)
	socid := testSOCID()
	d1, d2 := types.RandomDID(), types.RandomDID()

	release := make(chan struct{})
	tt.fetcher.EXPECT().Fetch(gomock.Any(), socid, d1).DoAndReturn(
		func(context.Context, types.SOCID, types.DID) error {
			<-release
			return errors.New("failed")
		})
	tt.fetcher.EXPECT().Fetch(gomock.Any(), socid, d2).Return(nil)

	var first, second result
	tt.d.DownloadAsync(socid, []types.DID{d1}, first.cb, tt.tokens.Acquire(tokens.CollectContent, "test"))
	tt.d.DownloadAsync(socid, []types.DID{d1, d2}, second.cb, nil)
	require.Equal(t, 1, tt.d.Ongoing())
	close(release)

	tt.wait(t, &first, &second)
	require.NoError(t, first.err)
	require.NoError(t, second.err)
}

func TestDownloadWithoutTokenPanics(t *testing.T) {
	tt := newTester(t)
	require.Panics(t, func() {
		tt.d.DownloadAsync(testSOCID(), []types.DID{types.RandomDID()}, func(context.Context, error) {}, nil)
	})
}

func TestDownloadRateLimited(t *testing.T) {
	tt := newTester(t, WithRateLimit(time.Hour, 1))
	socid := testSOCID()
	first, second := types.RandomDID(), types.RandomDID()
	fetched := make(chan struct{})
	tt.fetcher.EXPECT().Fetch(gomock.Any(), socid, first).DoAndReturn(
		func(context.Context, types.SOCID, types.DID) error {
			close(fetched)
			return errors.New("unavailable")
		})

	var r result
	tt.d.DownloadAsync(socid, []types.DID{first, second}, r.cb, tt.tokens.Acquire(tokens.CollectContent, "test"))
	<-fetched
	require.NoError(t, tt.d.Close())
	tt.wait(t, &r)
	require.ErrorIs(t, r.err, context.Canceled, "second device waits for the limiter")
}
