// Package tokens limits the number of concurrent downloads per category.
package tokens

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Category of the work a token admits.
type Category int

const (
	// CollectMetadata admits downloads of metadata components.
	CollectMetadata Category = iota
	// CollectContent admits downloads of content components.
	CollectContent

	numCategories
)

func (c Category) String() string {
	switch c {
	case CollectMetadata:
		return "collect-metadata"
	case CollectContent:
		return "collect-content"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Config specifies number of tokens per category.
type Config struct {
	Metadata int64 `mapstructure:"metadata"`
	Content  int64 `mapstructure:"content"`
}

// DefaultConfig returns default number of tokens.
func DefaultConfig() Config {
	return Config{
		Metadata: 20,
		Content:  5,
	}
}

// Opt for configuring Manager.
type Opt func(*Manager)

// WithLogger sets logger for the manager.
func WithLogger(logger *zap.Logger) Opt {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithConfig sets capacity of the categories.
func WithConfig(cfg Config) Opt {
	return func(m *Manager) {
		m.cfg = cfg
	}
}

type category struct {
	capacity  int64
	sem       *semaphore.Weighted
	inUse     int64
	listeners []func()
}

// New creates a token manager.
func New(opts ...Opt) *Manager {
	m := &Manager{
		logger: zap.NewNop(),
		cfg:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	for cat, capacity := range map[Category]int64{
		CollectMetadata: m.cfg.Metadata,
		CollectContent:  m.cfg.Content,
	} {
		m.categories[cat] = &category{
			capacity: capacity,
			sem:      semaphore.NewWeighted(capacity),
		}
	}
	return m
}

// Manager hands out tokens. It is safe for concurrent use.
type Manager struct {
	logger *zap.Logger
	cfg    Config

	mu         sync.Mutex
	categories [numCategories]*category
}

// Acquire returns a token of the category or nil if all tokens are in use.
func (m *Manager) Acquire(cat Category, reason string) *Token {
	c := m.categories[cat]
	if !c.sem.TryAcquire(1) {
		m.logger.Debug("tokens exhausted",
			zap.Stringer("category", cat),
			zap.String("reason", reason),
		)
		exhausted.WithLabelValues(cat.String()).Inc()
		return nil
	}
	m.mu.Lock()
	c.inUse++
	m.mu.Unlock()
	inUse.WithLabelValues(cat.String()).Inc()
	return &Token{m: m, cat: cat, reason: reason}
}

// AddReclamationListener registers fn to be called once after a token of the category
// is reclaimed. If a token is available already fn is called immediately.
// fn may be called from any goroutine.
func (m *Manager) AddReclamationListener(cat Category, fn func()) {
	c := m.categories[cat]
	m.mu.Lock()
	if c.inUse < c.capacity {
		m.mu.Unlock()
		fn()
		return
	}
	c.listeners = append(c.listeners, fn)
	m.mu.Unlock()
}

// InUse returns number of tokens of the category that are not reclaimed.
func (m *Manager) InUse(cat Category) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.categories[cat].inUse
}

func (m *Manager) reclaim(cat Category) {
	c := m.categories[cat]
	m.mu.Lock()
	c.inUse--
	if c.inUse < 0 {
		m.mu.Unlock()
		panic(fmt.Sprintf("BUG: negative number of tokens in use for %v", cat))
	}
	listeners := c.listeners
	c.listeners = nil
	m.mu.Unlock()
	c.sem.Release(1)
	inUse.WithLabelValues(cat.String()).Dec()
	for _, fn := range listeners {
		fn()
	}
}

// Token admits a single download.
type Token struct {
	m      *Manager
	cat    Category
	reason string
	once   sync.Once
}

// Category returns category of the token.
func (t *Token) Category() Category {
	return t.cat
}

// Reclaim returns token to the manager. Reclaiming a token twice is a no-op.
func (t *Token) Reclaim() {
	t.once.Do(func() {
		t.m.reclaim(t.cat)
	})
}
