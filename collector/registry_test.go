package collector

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
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
	"github.com/filemesh/go-filemesh/sql/collectorq"
	"github.com/filemesh/go-filemesh/tokens"
)

func newRegistry(
	tb testing.TB,
	db *sql.Database,
	tcfg tokens.Config,
) (*Registry, *eventloop.Loop, *mocks.MockDownloader) {
	logger := logtest.New(tb)
	loop := eventloop.New(eventloop.WithLogger(logger), eventloop.WithClock(clockwork.NewFakeClock()))
	dl := mocks.NewMockDownloader(gomock.NewController(tb))
	r := NewRegistry(db, loop, retry.New(loop), knowledge.SkipRule{}, dl, tokens.New(tokens.WithConfig(tcfg)),
		WithLogger(logger),
	)
	return r, loop, dl
}

func TestRegistry(t *testing.T) {
	db := sql.InMemory()
	r, loop, dl := newRegistry(t, db, tokens.Config{Metadata: 1, Content: 1})
	ctx := context.Background()

	for _, sidx := range []types.SIndex{2, 1} {
		_, err := r.AddStore(sidx)
		require.NoError(t, err)
	}
	_, err := r.AddStore(1)
	require.Error(t, err)
	require.Equal(t, []types.SIndex{1, 2}, r.Stores())

	did := types.RandomDID()
	ocid := types.OCID{OID: types.RandomOID(), CID: types.CIDMeta}
	other := types.OCID{OID: types.RandomOID(), CID: types.CIDMeta}
	require.NoError(t, db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, id := range []types.OCID{ocid, other} {
			if _, err := knowledge.Learn(tx, types.SOCID{SIndex: 2, OCID: id}); err != nil {
				return err
			}
		}
		return nil
	}))
	c, ok := r.Get(2)
	require.True(t, ok)

	var completion func(context.Context, error)
	dl.EXPECT().IsOngoing(gomock.Any()).Return(false).AnyTimes()
	dl.EXPECT().DownloadAsync(
		types.SOCID{SIndex: 2, OCID: ocid},
		[]types.DID{did},
		gomock.Any(),
		gomock.Not(gomock.Nil()),
	).Do(
		func(_ types.SOCID, _ []types.DID, cb func(context.Context, error), _ *tokens.Token) {
			completion = cb
		})
	require.NoError(t, db.WithTx(ctx, func(tx *sql.Tx) error {
		return c.Online(ctx, tx, did)
	}))
	require.NoError(t, db.WithTx(ctx, func(tx *sql.Tx) error {
		return c.Add(ctx, tx, did, bloomOf(ocid, other))
	}))
	loop.Drain(ctx)
	require.NotNil(t, completion)
	require.Equal(t, WaitingForAdmission, c.State())
	require.Equal(t, []types.SIndex{2}, r.HasUpdatesFrom(did))

	r.Offline(did)
	require.Empty(t, r.HasUpdatesFrom(did))

	require.NoError(t, db.WithTx(ctx, func(tx *sql.Tx) error {
		return r.RemoveStore(tx, 2)
	}))
	_, ok = r.Get(2)
	require.False(t, ok)
	count, err := collectorq.Count(db, 2)
	require.NoError(t, err)
	require.Zero(t, count)
	_, err = collectorfilters.Get(db, 2, did)
	require.ErrorIs(t, err, sql.ErrNotFound)

	// completion after removal only releases the token
	completion(ctx, nil)
	loop.Drain(ctx)
	require.Equal(t, Stopped, c.State())
	require.Error(t, db.WithTx(ctx, func(tx *sql.Tx) error {
		return r.RemoveStore(tx, 2)
	}))
}
