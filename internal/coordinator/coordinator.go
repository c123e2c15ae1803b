// Package coordinator owns the process-wide search engine and serializes
// every index write through a single FIFO worker.
//
// Writes submitted through IndexType or Submit complete in submission order
// and at most one engine write is outstanding at any time. Queries and
// deletes pass straight through to the engine and are not queued.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Aman-CERP/lockerindex/internal/engine"
	ixerrors "github.com/Aman-CERP/lockerindex/internal/errors"
	"github.com/Aman-CERP/lockerindex/internal/mapping"
)

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("coordinator is closed")

// ErrWorkerReentry is returned by IndexType when called from a job callback.
// The worker would otherwise wait on itself.
var ErrWorkerReentry = errors.New("IndexType called from a job callback; use Submit")

// Callback receives the outcome of one index job. It runs on the worker
// goroutine with the job's context marked as such: a callback may Submit
// more work but must not block on IndexType. Calls that pass ctx along get
// ErrWorkerReentry instead of a deadlock.
type Callback func(ctx context.Context, d time.Duration, err error)

type workerKey struct{}

func onWorker(ctx context.Context, c *Coordinator) bool {
	w, _ := ctx.Value(workerKey{}).(*Coordinator)
	return w == c
}

// Job is one pending index request.
type Job struct {
	Ctx      context.Context
	Type     string
	ID       any
	Value    any
	Callback Callback
}

// Status is a snapshot for diagnostics.
type Status struct {
	Engine     string `json:"engine"`
	Variant    string `json:"variant"`
	IndexPath  string `json:"index_path"`
	QueueDepth int    `json:"queue_depth"`
}

// Coordinator holds the current engine, the index path and the job queue.
type Coordinator struct {
	mu        sync.Mutex
	engine    engine.Engine
	variant   string
	indexPath string
	queue     []Job
	busy      bool
	closed    bool

	// idle is closed while the queue is empty and no job is running.
	idle chan struct{}
	wake chan struct{}
	done chan struct{}

	mappings  *mapping.Table
	batchSize int
	lookup    func(name string) (engine.Factory, bool)
	metrics   *Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMappings sets the field-mapping table handed to engines.
func WithMappings(t *mapping.Table) Option {
	return func(c *Coordinator) {
		c.mappings = t
	}
}

// WithBatchSize sets the engine write batch size.
func WithBatchSize(n int) Option {
	return func(c *Coordinator) {
		c.batchSize = n
	}
}

// WithMetrics sets the collectors updated by the worker.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithFactoryLookup replaces the engine registry lookup.
func WithFactoryLookup(lookup func(name string) (engine.Factory, bool)) Option {
	return func(c *Coordinator) {
		c.lookup = lookup
	}
}

// New creates a coordinator and starts its worker. No engine is selected
// until SetEngine is called.
func New(opts ...Option) *Coordinator {
	idle := make(chan struct{})
	close(idle)

	c := &Coordinator{
		idle:   idle,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		lookup: engine.Lookup,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}

	go c.run()
	return c
}

// SetIndexPath records the index directory, creating it if missing.
// Takes effect for engines selected afterwards.
func (c *Coordinator) SetIndexPath(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return ixerrors.IndexIO("create index directory "+path, err)
	}

	c.mu.Lock()
	c.indexPath = path
	c.mu.Unlock()

	slog.Debug("index_path_set", slog.String("path", path))
	return nil
}

// IndexPath returns the current index directory.
func (c *Coordinator) IndexPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexPath
}

// SetEngine selects the engine variant by name. It never fails: an unknown
// name, a construction error or a panicking factory installs the Null
// engine and logs a warning. The previous engine is closed without waiting
// for queued jobs.
func (c *Coordinator) SetEngine(variant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setEngineLocked(variant)
}

func (c *Coordinator) setEngineLocked(variant string) {
	next := c.buildEngine(variant)

	if c.engine != nil {
		if err := c.engine.Close(); err != nil {
			slog.Warn("engine_close_failed",
				slog.String("engine", c.engine.Name()),
				slog.String("error", err.Error()))
		}
	}
	c.engine = next
	c.variant = variant

	slog.Info("engine_selected",
		slog.String("variant", variant),
		slog.String("engine", next.Name()),
		slog.String("index_path", c.indexPath))
}

func (c *Coordinator) buildEngine(variant string) (e engine.Engine) {
	factory, ok := c.lookup(variant)
	if !ok {
		slog.Warn("engine_unknown_variant",
			slog.String("variant", variant),
			slog.String("fallback", engine.NullEngineName))
		return engine.NewNullEngine()
	}

	defer func() {
		if r := recover(); r != nil {
			err := ixerrors.New(ixerrors.ErrCodeEngineConstruction,
				fmt.Sprintf("engine %q panicked: %v", variant, r), nil)
			logConstructionFailure(variant, err)
			e = engine.NewNullEngine()
		}
	}()

	built, err := factory(engine.Options{
		Path:      c.indexPath,
		Mappings:  c.mappings,
		BatchSize: c.batchSize,
	})
	if err != nil || built == nil {
		if err == nil {
			err = fmt.Errorf("factory returned no engine")
		}
		logConstructionFailure(variant, ixerrors.Wrap(ixerrors.ErrCodeEngineConstruction, err))
		return engine.NewNullEngine()
	}
	return built
}

func logConstructionFailure(variant string, err error) {
	attrs := []any{
		slog.String("variant", variant),
		slog.String("fallback", engine.NullEngineName),
	}
	for _, a := range ixerrors.LogAttrs(err) {
		attrs = append(attrs, a)
	}
	slog.Warn("engine_construction_failed", attrs...)
}

// Engine returns the current engine, or nil before SetEngine.
func (c *Coordinator) Engine() engine.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

// EngineName returns the current engine's name, or "" when unset.
func (c *Coordinator) EngineName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return ""
	}
	return c.engine.Name()
}

// Status returns a snapshot of the coordinator state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Variant:    c.variant,
		IndexPath:  c.indexPath,
		QueueDepth: len(c.queue),
	}
	if c.engine != nil {
		s.Engine = c.engine.Name()
	}
	return s
}

// IndexType enqueues one record and blocks until the worker has processed
// it, returning the engine's result unchanged.
func (c *Coordinator) IndexType(ctx context.Context, docType string, id any, value any) (time.Duration, error) {
	if ctx != nil && onWorker(ctx, c) {
		return 0, ErrWorkerReentry
	}

	type result struct {
		d   time.Duration
		err error
	}
	ch := make(chan result, 1)

	err := c.Submit(Job{
		Ctx:   ctx,
		Type:  docType,
		ID:    id,
		Value: value,
		Callback: func(_ context.Context, d time.Duration, err error) {
			ch <- result{d, err}
		},
	})
	if err != nil {
		return 0, err
	}

	r := <-ch
	return r.d, r.err
}

// Submit appends a job to the queue and returns immediately. The job's
// callback runs on the worker goroutine once the engine call returns, so it
// must only enqueue further work through Submit.
// Submitting with no engine selected is a programming error and panics.
func (c *Coordinator) Submit(job Job) error {
	if job.Ctx == nil {
		job.Ctx = context.Background()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.engine == nil {
		c.mu.Unlock()
		panic(engineUnset())
	}

	if len(c.queue) == 0 && !c.busy {
		c.idle = make(chan struct{})
	}
	c.queue = append(c.queue, job)
	c.metrics.QueueDepth.Set(float64(len(c.queue)))
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

func engineUnset() error {
	return ixerrors.New(ixerrors.ErrCodeEngineUnset, "no engine set", nil)
}

// run is the single worker. It pops the oldest job, calls the engine and
// forwards the result, one job at a time.
func (c *Coordinator) run() {
	defer close(c.done)

	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			<-c.wake
			continue
		}

		job := c.queue[0]
		c.queue[0] = Job{}
		c.queue = c.queue[1:]
		c.busy = true
		eng := c.engine
		c.metrics.QueueDepth.Set(float64(len(c.queue)))
		c.mu.Unlock()

		if eng == nil {
			panic(engineUnset())
		}

		d, err := eng.IndexType(job.Ctx, job.Type, job.ID, job.Value)
		c.metrics.observeJob(d, err)
		if job.Callback != nil {
			job.Callback(context.WithValue(job.Ctx, workerKey{}, c), d, err)
		}

		c.mu.Lock()
		c.busy = false
		if len(c.queue) == 0 {
			close(c.idle)
		}
		c.mu.Unlock()
	}
}

// Wait blocks until the queue is empty and no job is running.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueDepth returns the number of jobs waiting for the worker.
func (c *Coordinator) QueueDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// ResetIndex removes the index directory and everything under it. A missing
// directory is not an error. No engine may hold the directory open.
func (c *Coordinator) ResetIndex() error {
	c.mu.Lock()
	path := c.indexPath
	c.mu.Unlock()
	return resetPath(path)
}

func resetPath(path string) error {
	if path == "" {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return ixerrors.IndexIO("reset index "+path, err)
	}
	slog.Info("index_reset", slog.String("path", path))
	return nil
}

// Recreate waits for queued jobs, closes the engine, wipes the index
// directory and reopens the same variant on an empty index.
func (c *Coordinator) Recreate(ctx context.Context) error {
	for {
		if err := c.Wait(ctx); err != nil {
			return err
		}
		c.mu.Lock()
		if len(c.queue) == 0 && !c.busy {
			break
		}
		c.mu.Unlock()
	}
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.engine == nil {
		panic(engineUnset())
	}
	if err := c.engine.Close(); err != nil {
		slog.Warn("engine_close_failed",
			slog.String("engine", c.engine.Name()),
			slog.String("error", err.Error()))
	}
	c.engine = nil

	if err := resetPath(c.indexPath); err != nil {
		c.engine = engine.NewNullEngine()
		return err
	}
	if c.indexPath != "" {
		if err := os.MkdirAll(c.indexPath, 0755); err != nil {
			c.engine = engine.NewNullEngine()
			return ixerrors.IndexIO("create index directory "+c.indexPath, err)
		}
	}

	c.setEngineLocked(c.variant)
	return nil
}

func (c *Coordinator) current() engine.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		panic(engineUnset())
	}
	return c.engine
}

// DeleteDocument passes through to the engine.
func (c *Coordinator) DeleteDocument(ctx context.Context, id string) error {
	return c.current().DeleteDocument(ctx, id)
}

// DeleteDocumentsByType passes through to the engine.
func (c *Coordinator) DeleteDocumentsByType(ctx context.Context, docType string) error {
	return c.current().DeleteDocumentsByType(ctx, docType)
}

// QueryType passes through to the engine.
func (c *Coordinator) QueryType(ctx context.Context, docType, query string, params engine.QueryParams) ([]engine.Hit, error) {
	hits, err := c.current().QueryType(ctx, docType, query, params)
	c.metrics.observeQuery("type", err)
	return hits, err
}

// QueryAll passes through to the engine.
func (c *Coordinator) QueryAll(ctx context.Context, query string, params engine.QueryParams) ([]engine.Hit, error) {
	hits, err := c.current().QueryAll(ctx, query, params)
	c.metrics.observeQuery("all", err)
	return hits, err
}

// FlushAndCloseWriter commits the engine's buffered writes.
func (c *Coordinator) FlushAndCloseWriter() error {
	return c.current().FlushWriter()
}

// Close lets the worker finish queued jobs, stops it and closes the engine.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	<-c.done

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return nil
	}
	err := c.engine.Close()
	c.engine = nil
	return err
}
