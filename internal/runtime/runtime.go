package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/fornolabs/expedite/internal/broadcast"
	cfgpkg "github.com/fornolabs/expedite/internal/config"
	"github.com/fornolabs/expedite/internal/failure"
	"github.com/fornolabs/expedite/internal/handlers"
	"github.com/fornolabs/expedite/internal/order"
	"github.com/fornolabs/expedite/internal/queue"
	pebblestore "github.com/fornolabs/expedite/internal/storage/pebble"
	logpkg "github.com/fornolabs/expedite/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// SweepInterval paces queue maintenance; zero uses the backend default.
	SweepInterval time.Duration
	Logger        logpkg.Logger
}

// Runtime wires storage, config, and the shared stores for a single-node
// instance. Everything lives in one pebble database.
type Runtime struct {
	db     *pebblestore.DB
	config cfgpkg.Config

	backend    *queue.Backend
	orders     *order.PebbleStore
	failures   *failure.Store
	analytics  *handlers.AnalyticsStore
	classifier *failure.Classifier
	hub        *broadcast.Hub
}

// Open initializes storage and the shared components, and starts the queue
// sweeper.
func Open(opts Options) (*Runtime, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNop()
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
	})
	if err != nil {
		return nil, err
	}
	backend, err := queue.Open(db, opts.Config, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	backend.StartSweeper(opts.SweepInterval)

	return &Runtime{
		db:         db,
		config:     opts.Config,
		backend:    backend,
		orders:     order.NewPebbleStore(db),
		failures:   failure.NewStore(db),
		analytics:  handlers.NewAnalyticsStore(db),
		classifier: failure.NewClassifier(opts.Config),
		hub:        broadcast.NewHub(logger),
	}, nil
}

// Close stops background work and closes storage.
func (r *Runtime) Close() error {
	if r.backend != nil {
		r.backend.StopSweeper()
	}
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth verifies storage is reachable.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// DB exposes the underlying store (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the immutable configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Backend returns the queue backend.
func (r *Runtime) Backend() *queue.Backend { return r.backend }

// Orders returns the order projection store.
func (r *Runtime) Orders() *order.PebbleStore { return r.orders }

// Failures returns the failure log store.
func (r *Runtime) Failures() *failure.Store { return r.failures }

// Analytics returns the analytics event store.
func (r *Runtime) Analytics() *handlers.AnalyticsStore { return r.analytics }

// Classifier returns the recovery classifier.
func (r *Runtime) Classifier() *failure.Classifier { return r.classifier }

// Hub returns the broadcast hub.
func (r *Runtime) Hub() *broadcast.Hub { return r.hub }
