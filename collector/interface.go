package collector

import (
	"context"

	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/sql"
	"github.com/filemesh/go-filemesh/tokens"
)

//go:generate mockgen -typed -package=mocks -destination=./mocks/mocks.go -source=./interface.go

// SkipRule decides if a queued component should not be collected anymore.
type SkipRule interface {
	ShouldSkip(db sql.Executor, socid types.SOCID) (bool, error)
}

// CompletionFunc is executed on the event loop once a download finished.
type CompletionFunc func(ctx context.Context, err error)

// Downloader downloads components from remote devices.
type Downloader interface {
	// IsOngoing returns true if the component is being downloaded.
	IsOngoing(socid types.SOCID) bool
	// DownloadAsync starts a download of the component from one of the devices,
	// or joins the ongoing download adding devices to it. token is nil if download is joined.
	// cb is executed exactly once.
	DownloadAsync(socid types.SOCID, dids []types.DID, cb func(context.Context, error), token *tokens.Token)
}

// Admission hands out tokens for new downloads.
type Admission interface {
	Acquire(cat tokens.Category, reason string) *tokens.Token
	AddReclamationListener(cat tokens.Category, fn func())
}
