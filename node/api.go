package node

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/filemesh/go-filemesh/bloom"
	"github.com/filemesh/go-filemesh/collector"
	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/knowledge"
	"github.com/filemesh/go-filemesh/senderfilters"
	"github.com/filemesh/go-filemesh/sql"
	"github.com/filemesh/go-filemesh/sql/stores"
)

// Methods in this file are safe for concurrent use once the app is started.
// Each of them runs a task on the event loop and waits for its result.

func (app *App) call(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	return app.loop.Call(ctx, func(ctx context.Context) error {
		return app.db.WithTx(ctx, func(tx *sql.Tx) error {
			return fn(ctx, tx)
		})
	})
}

func (app *App) collector(sidx types.SIndex) (*collector.Collector, error) {
	c, ok := app.collectors.Get(sidx)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownStore, sidx)
	}
	return c, nil
}

func (app *App) sender(sidx types.SIndex) (*senderfilters.SenderFilters, error) {
	sf, ok := app.senders[sidx]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownStore, sidx)
	}
	return sf, nil
}

// AddStore starts synchronization of the store. Devices that are online are loaded
// into the collector of the store.
func (app *App) AddStore(ctx context.Context, sidx types.SIndex) error {
	return app.call(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := stores.Add(tx, sidx, time.Now()); err != nil {
			return err
		}
		if err := app.openStore(tx, sidx); err != nil {
			return err
		}
		c, err := app.collector(sidx)
		if err != nil {
			return err
		}
		for did := range app.online {
			if err := c.Online(ctx, tx, did); err != nil {
				return err
			}
		}
		app.log.Info("store added", types.ZSIndex(sidx))
		return nil
	})
}

// RemoveStore stops synchronization of the store and deletes its state.
func (app *App) RemoveStore(ctx context.Context, sidx types.SIndex) error {
	return app.call(ctx, func(ctx context.Context, tx *sql.Tx) error {
		sf, err := app.sender(sidx)
		if err != nil {
			return err
		}
		if err := app.collectors.RemoveStore(tx, sidx); err != nil {
			return err
		}
		if err := sf.DeleteStore(tx); err != nil {
			return err
		}
		if err := knowledge.DeleteStore(tx, sidx); err != nil {
			return err
		}
		if err := stores.Delete(tx, sidx); err != nil {
			return err
		}
		tx.OnCommit(func() {
			delete(app.senders, sidx)
			app.log.Info("store removed", types.ZSIndex(sidx))
		})
		return nil
	})
}

// Stores returns synchronized stores.
func (app *App) Stores(ctx context.Context) ([]types.SIndex, error) {
	var all []types.SIndex
	err := app.loop.Call(ctx, func(context.Context) error {
		all = app.collectors.Stores()
		return nil
	})
	return all, err
}

// Online loads filters of the device in every store and resumes collection.
func (app *App) Online(ctx context.Context, did types.DID) error {
	return app.call(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := app.collectors.Online(ctx, tx, did); err != nil {
			return err
		}
		app.online[did] = struct{}{}
		tx.OnRollback(func() {
			delete(app.online, did)
		})
		app.log.Debug("device online", types.ZDID(did))
		return nil
	})
}

// Offline discards in-memory filters of the device in every store.
func (app *App) Offline(ctx context.Context, did types.DID) error {
	return app.loop.Call(ctx, func(context.Context) error {
		delete(app.online, did)
		app.collectors.Offline(did)
		app.log.Debug("device offline", types.ZDID(did))
		return nil
	})
}

// AddFilter merges the filter of objects that the device announced in the store.
func (app *App) AddFilter(ctx context.Context, sidx types.SIndex, did types.DID, filter *bloom.Filter) error {
	return app.call(ctx, func(ctx context.Context, tx *sql.Tx) error {
		c, err := app.collector(sidx)
		if err != nil {
			return err
		}
		return c.Add(ctx, tx, did, filter)
	})
}

// Learn records that a newer remote version of the component exists.
func (app *App) Learn(ctx context.Context, socid types.SOCID) error {
	return app.call(ctx, func(ctx context.Context, tx *sql.Tx) error {
		c, err := app.collector(socid.SIndex)
		if err != nil {
			return err
		}
		seq, err := knowledge.Learn(tx, socid)
		if err != nil {
			return err
		}
		tx.OnCommit(func() {
			app.loop.Post(c.Trigger)
		})
		app.log.Debug("component learned", zap.Object("socid", socid), zap.Uint64("seq", uint64(seq)))
		return nil
	})
}

// Expel excludes the object from collection in the store.
func (app *App) Expel(ctx context.Context, sidx types.SIndex, oid types.OID) error {
	return app.call(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := app.collector(sidx); err != nil {
			return err
		}
		return knowledge.Expel(tx, sidx, oid)
	})
}

// Readmit makes the expelled object collectible again.
func (app *App) Readmit(ctx context.Context, sidx types.SIndex, oid types.OID) error {
	return app.call(ctx, func(ctx context.Context, tx *sql.Tx) error {
		c, err := app.collector(sidx)
		if err != nil {
			return err
		}
		if err := knowledge.Readmit(tx, sidx, oid, types.CIDMeta, types.CIDContent); err != nil {
			return err
		}
		tx.OnCommit(func() {
			app.loop.Post(c.Restart)
		})
		return nil
	})
}

// SetCollectContent switches the store between collecting every component and only metadata.
func (app *App) SetCollectContent(ctx context.Context, sidx types.SIndex, content bool) error {
	return app.call(ctx, func(ctx context.Context, tx *sql.Tx) error {
		c, err := app.collector(sidx)
		if err != nil {
			return err
		}
		return c.SetCollectContent(ctx, tx, content)
	})
}

// HasUpdatesFrom returns stores where collection may download components from the device.
func (app *App) HasUpdatesFrom(ctx context.Context, did types.DID) ([]types.SIndex, error) {
	var rst []types.SIndex
	err := app.loop.Call(ctx, func(context.Context) error {
		rst = app.collectors.HasUpdatesFrom(did)
		return nil
	})
	return rst, err
}

// ObjectUpdated records a local update of the object, so that it is announced to other devices.
func (app *App) ObjectUpdated(ctx context.Context, sidx types.SIndex, oid types.OID) error {
	return app.call(ctx, func(ctx context.Context, tx *sql.Tx) error {
		sf, err := app.sender(sidx)
		if err != nil {
			return err
		}
		return sf.ObjectUpdated(tx, oid)
	})
}

// SenderFilter returns the filter of objects updated since the device last
// acknowledged, or since the beginning if fromBase is true.
func (app *App) SenderFilter(
	ctx context.Context,
	sidx types.SIndex,
	did types.DID,
	fromBase bool,
) (*senderfilters.Result, error) {
	var rst *senderfilters.Result
	err := app.loop.Call(ctx, func(context.Context) error {
		sf, err := app.sender(sidx)
		if err != nil {
			return err
		}
		rst, err = sf.Get(app.db, did, fromBase)
		return err
	})
	return rst, err
}

// AckSenderFilter records that the device received the filter returned by SenderFilter.
func (app *App) AckSenderFilter(
	ctx context.Context,
	sidx types.SIndex,
	did types.DID,
	index types.SenderFilterIndex,
	updateSeq uint64,
) error {
	return app.call(ctx, func(ctx context.Context, tx *sql.Tx) error {
		sf, err := app.sender(sidx)
		if err != nil {
			return err
		}
		return sf.Update(tx, did, index, updateSeq)
	})
}
