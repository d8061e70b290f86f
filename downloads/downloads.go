// Package downloads runs single-flight downloads of components from remote devices.
package downloads

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/eventloop"
	"github.com/filemesh/go-filemesh/tokens"
)

//go:generate mockgen -typed -package=mocks -destination=./mocks/mocks.go -source=./downloads.go

// Fetcher transfers a component from the device.
type Fetcher interface {
	Fetch(ctx context.Context, socid types.SOCID, did types.DID) error
}

// ErrNoDevices is returned if the component could not be fetched from any device.
var ErrNoDevices = errors.New("downloads: no device served the component")

// Opt for configuring Downloads.
type Opt func(*Downloads)

// WithLogger sets logger for downloads.
func WithLogger(logger *zap.Logger) Opt {
	return func(d *Downloads) {
		d.logger = logger
	}
}

// WithOnSuccess sets hook that is executed on the loop after a component was fetched,
// before completion callbacks. Error returned from the hook fails the download.
func WithOnSuccess(hook func(context.Context, types.SOCID) error) Opt {
	return func(d *Downloads) {
		d.onSuccess = hook
	}
}

// WithRateLimit limits fetch attempts to requests per interval.
func WithRateLimit(interval time.Duration, requests int) Opt {
	return func(d *Downloads) {
		d.limit = rate.NewLimiter(rate.Every(interval/time.Duration(requests)), requests)
	}
}

type download struct {
	socid types.SOCID

	mu      sync.Mutex
	devices []types.DID

	// callbacks are accessed only on the loop.
	callbacks []func(context.Context, error)
}

func (d *download) add(dids []types.DID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, did := range dids {
		if !slices.Contains(d.devices, did) {
			d.devices = append(d.devices, did)
		}
	}
}

func (d *download) device(i int) (types.DID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.devices) {
		return types.DID{}, false
	}
	return d.devices[i], true
}

// New creates downloads that post results on the loop.
func New(loop *eventloop.Loop, fetcher Fetcher, opts ...Opt) *Downloads {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Downloads{
		logger:  zap.NewNop(),
		loop:    loop,
		fetcher: fetcher,
		ctx:     ctx,
		cancel:  cancel,
		ongoing: map[types.SOCID]*download{},
		limit:   rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Downloads keeps at most one download per component.
// IsOngoing and DownloadAsync must be called from loop tasks.
type Downloads struct {
	logger    *zap.Logger
	loop      *eventloop.Loop
	fetcher   Fetcher
	onSuccess func(context.Context, types.SOCID) error
	limit     *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	eg     errgroup.Group

	ongoing map[types.SOCID]*download
}

// IsOngoing returns true if the component is being downloaded.
func (d *Downloads) IsOngoing(socid types.SOCID) bool {
	_, ok := d.ongoing[socid]
	return ok
}

// Ongoing returns number of running downloads.
func (d *Downloads) Ongoing() int {
	return len(d.ongoing)
}

// DownloadAsync starts download of the component from devices, or adds devices
// to the ongoing download. cb is executed on the loop once download completes.
// token is owned by the caller.
func (d *Downloads) DownloadAsync(
	socid types.SOCID,
	dids []types.DID,
	cb func(context.Context, error),
	token *tokens.Token,
) {
	if dl, ok := d.ongoing[socid]; ok {
		dl.add(dids)
		dl.callbacks = append(dl.callbacks, cb)
		joined.Inc()
		return
	}
	if token == nil {
		panic(fmt.Sprintf("BUG: download of %v started without token", socid))
	}
	dl := &download{socid: socid}
	dl.add(dids)
	dl.callbacks = append(dl.callbacks, cb)
	d.ongoing[socid] = dl
	started.Inc()
	d.eg.Go(func() error {
		err := d.run(d.ctx, dl)
		d.loop.Post(func(ctx context.Context) {
			d.complete(ctx, dl, err)
		})
		return nil
	})
}

func (d *Downloads) run(ctx context.Context, dl *download) error {
	var errs []error
	for i := 0; ; i++ {
		did, ok := dl.device(i)
		if !ok {
			break
		}
		if err := d.limit.Wait(ctx); err != nil {
			return err
		}
		err := d.fetcher.Fetch(ctx, dl.socid, did)
		if err == nil {
			fetched.WithLabelValues("ok").Inc()
			return nil
		}
		fetched.WithLabelValues("fail").Inc()
		d.logger.Debug("failed to fetch component",
			zap.Object("socid", dl.socid),
			types.ZDID(did),
			zap.Error(err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", did.ShortString(), err))
	}
	return fmt.Errorf("%w %v: %w", ErrNoDevices, dl.socid, errors.Join(errs...))
}

func (d *Downloads) complete(ctx context.Context, dl *download, err error) {
	delete(d.ongoing, dl.socid)
	if err == nil && d.onSuccess != nil {
		err = d.onSuccess(ctx, dl.socid)
	}
	if err != nil {
		failed.Inc()
	}
	for _, cb := range dl.callbacks {
		cb(ctx, err)
	}
}

// Close cancels running downloads and waits for them to return.
func (d *Downloads) Close() error {
	d.cancel()
	return d.eg.Wait()
}
