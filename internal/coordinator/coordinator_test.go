package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/lockerindex/internal/engine"
	ixerrors "github.com/Aman-CERP/lockerindex/internal/errors"
	"github.com/Aman-CERP/lockerindex/internal/mapping"
)

// fakeEngine records IndexType calls and detects overlapping writes.
type fakeEngine struct {
	mu       sync.Mutex
	calls    []string
	inFlight int
	overlap  bool
	delay    time.Duration
	fail     map[string]error
	closed   bool
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) IndexType(_ context.Context, docType string, id any, _ any) (time.Duration, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > 1 {
		f.overlap = true
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	key := fmt.Sprint(id)
	f.calls = append(f.calls, key)
	if err := f.fail[key]; err != nil {
		return 0, err
	}
	return time.Millisecond, nil
}

func (f *fakeEngine) indexedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) DeleteDocument(context.Context, string) error { return nil }
func (f *fakeEngine) DeleteDocumentsByType(context.Context, string) error { return nil }
func (f *fakeEngine) QueryType(context.Context, string, string, engine.QueryParams) ([]engine.Hit, error) {
	return []engine.Hit{{ID: "t"}}, nil
}
func (f *fakeEngine) QueryAll(context.Context, string, engine.QueryParams) ([]engine.Hit, error) {
	return []engine.Hit{{ID: "a"}}, nil
}
func (f *fakeEngine) FlushWriter() error { return nil }
func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func fakeLookup(fe *fakeEngine) func(string) (engine.Factory, bool) {
	return func(name string) (engine.Factory, bool) {
		switch name {
		case "fake":
			return func(engine.Options) (engine.Engine, error) { return fe, nil }, true
		case "broken":
			return func(engine.Options) (engine.Engine, error) { return nil, errors.New("disk on fire") }, true
		case "panicky":
			return func(engine.Options) (engine.Engine, error) { panic("boom") }, true
		}
		return nil, false
	}
}

func TestCoordinator_CompletesInSubmissionOrder(t *testing.T) {
	// Given: a slow engine
	fe := &fakeEngine{delay: 2 * time.Millisecond}
	c := New(WithFactoryLookup(fakeLookup(fe)))
	defer func() { _ = c.Close() }()
	c.SetEngine("fake")

	// When: submitting jobs asynchronously
	var mu sync.Mutex
	var completed []int
	const n = 20
	for i := 1; i <= n; i++ {
		i := i
		err := c.Submit(Job{Type: "placeplaces", ID: i, Value: map[string]any{}, Callback: func(context.Context, time.Duration, error) {
			mu.Lock()
			completed = append(completed, i)
			mu.Unlock()
		}})
		require.NoError(t, err)
	}
	require.NoError(t, c.Wait(context.Background()))

	// Then: completion order equals submission order
	want := make([]int, n)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, completed)

	// And: no two engine calls overlapped
	assert.False(t, fe.overlap)
	assert.Equal(t, 0, c.QueueDepth())
}

func TestCoordinator_CallbackCannotBlockOnWorker(t *testing.T) {
	// Given: a job whose callback indexes again, once blocking and once async
	fe := &fakeEngine{}
	c := New(WithFactoryLookup(fakeLookup(fe)))
	defer func() { _ = c.Close() }()
	c.SetEngine("fake")

	reentry := make(chan error, 1)
	followUp := make(chan error, 1)
	err := c.Submit(Job{Type: "placeplaces", ID: "1", Callback: func(ctx context.Context, _ time.Duration, _ error) {
		_, err := c.IndexType(ctx, "placeplaces", "2", nil)
		reentry <- err
		followUp <- c.Submit(Job{Ctx: ctx, Type: "placeplaces", ID: "3"})
	}})
	require.NoError(t, err)

	// When: the worker drains the queue
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))

	// Then: the blocking call is refused and the Submit goes through
	assert.ErrorIs(t, <-reentry, ErrWorkerReentry)
	assert.NoError(t, <-followUp)
	assert.Equal(t, []string{"1", "3"}, fe.indexedIDs())
}

func TestCoordinator_IndexTypeForwardsEngineError(t *testing.T) {
	// Given: an engine that fails for one id
	ioErr := ixerrors.IndexIO("index document bad", errors.New("write failed"))
	fe := &fakeEngine{fail: map[string]error{"bad": ioErr}}
	c := New(WithFactoryLookup(fakeLookup(fe)))
	defer func() { _ = c.Close() }()
	c.SetEngine("fake")

	// When: indexing the failing id and then a good one
	_, err := c.IndexType(context.Background(), "placeplaces", "bad", nil)
	d, err2 := c.IndexType(context.Background(), "placeplaces", "good", nil)

	// Then: the error is forwarded verbatim and the queue keeps going
	assert.Same(t, ioErr, err)
	assert.NoError(t, err2)
	assert.Equal(t, time.Millisecond, d)
}

func TestCoordinator_SetEngineFallsBackToNull(t *testing.T) {
	tests := []struct {
		name    string
		variant string
	}{
		{name: "unknown variant", variant: "lucene"},
		{name: "empty variant", variant: ""},
		{name: "factory error", variant: "broken"},
		{name: "factory panic", variant: "panicky"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(WithFactoryLookup(fakeLookup(&fakeEngine{})))
			defer func() { _ = c.Close() }()

			// When: selecting a variant that cannot be built
			assert.NotPanics(t, func() { c.SetEngine(tt.variant) })

			// Then: the Null engine is installed
			assert.Equal(t, engine.NullEngineName, c.EngineName())

			// And: indexing reports the Null engine error through the queue
			_, err := c.IndexType(context.Background(), "placeplaces", "x", map[string]any{"title": "t"})
			assert.True(t, errors.Is(err, ixerrors.ErrNullEngine))
		})
	}
}

func TestCoordinator_SetEngineClosesPrevious(t *testing.T) {
	first := &fakeEngine{}
	c := New(WithFactoryLookup(fakeLookup(first)))
	defer func() { _ = c.Close() }()

	c.SetEngine("fake")
	c.SetEngine("lucene")

	assert.True(t, first.closed)
	assert.Equal(t, engine.NullEngineName, c.EngineName())
}

func TestCoordinator_NoEngineIsProgrammingError(t *testing.T) {
	c := New()
	defer func() { _ = c.Close() }()

	assert.Panics(t, func() {
		_ = c.Submit(Job{Type: "placeplaces", ID: "x"})
	})
	assert.Panics(t, func() {
		_, _ = c.QueryAll(context.Background(), "x", engine.QueryParams{})
	})
	assert.Panics(t, func() {
		_ = c.FlushAndCloseWriter()
	})
}

func TestCoordinator_EngineUnsetPanicValue(t *testing.T) {
	c := New()
	defer func() { _ = c.Close() }()

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ixerrors.ErrEngineUnset))
		assert.True(t, ixerrors.IsFatal(err))
	}()
	_ = c.DeleteDocument(context.Background(), "x")
}

func TestCoordinator_Passthroughs(t *testing.T) {
	c := New(WithFactoryLookup(fakeLookup(&fakeEngine{})))
	defer func() { _ = c.Close() }()
	c.SetEngine("fake")
	ctx := context.Background()

	hits, err := c.QueryType(ctx, "placeplaces", "q", engine.QueryParams{})
	require.NoError(t, err)
	assert.Equal(t, "t", hits[0].ID)

	hits, err = c.QueryAll(ctx, "q", engine.QueryParams{})
	require.NoError(t, err)
	assert.Equal(t, "a", hits[0].ID)

	assert.NoError(t, c.DeleteDocument(ctx, "x"))
	assert.NoError(t, c.DeleteDocumentsByType(ctx, "placeplaces"))
	assert.NoError(t, c.FlushAndCloseWriter())
}

func TestCoordinator_SetIndexPathCreatesDirectory(t *testing.T) {
	c := New()
	defer func() { _ = c.Close() }()
	path := filepath.Join(t.TempDir(), "a", "b", "index")

	require.NoError(t, c.SetIndexPath(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, path, c.IndexPath())
}

func TestCoordinator_ResetIndexIsIdempotent(t *testing.T) {
	// Given: an index directory with content
	c := New()
	defer func() { _ = c.Close() }()
	path := filepath.Join(t.TempDir(), "index")
	require.NoError(t, c.SetIndexPath(path))
	require.NoError(t, os.WriteFile(filepath.Join(path, "segment"), []byte("x"), 0644))

	// When: resetting twice
	require.NoError(t, c.ResetIndex())
	require.NoError(t, c.ResetIndex())

	// Then: the directory is gone
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCoordinator_RecreateLeavesWorkingEmptyIndex(t *testing.T) {
	for _, variant := range engine.Variants() {
		t.Run(variant, func(t *testing.T) {
			ctx := context.Background()
			c := New()
			defer func() { _ = c.Close() }()
			require.NoError(t, c.SetIndexPath(filepath.Join(t.TempDir(), "index")))
			c.SetEngine(variant)

			// Given: an indexed place
			_, err := c.IndexType(ctx, "placeplaces", "p1", map[string]any{"title": "Cafe"})
			require.NoError(t, err)
			hits, err := c.QueryAll(ctx, "cafe", engine.QueryParams{})
			require.NoError(t, err)
			require.Len(t, hits, 1)

			// When: recreating the index
			require.NoError(t, c.Recreate(ctx))

			// Then: the same variant is active on an empty index
			assert.Equal(t, variant, c.Status().Variant)
			hits, err = c.QueryAll(ctx, "cafe", engine.QueryParams{})
			require.NoError(t, err)
			assert.Empty(t, hits)

			// And: it accepts new writes
			_, err = c.IndexType(ctx, "placeplaces", "p2", map[string]any{"title": "Cafe"})
			require.NoError(t, err)
			hits, err = c.QueryAll(ctx, "cafe", engine.QueryParams{})
			require.NoError(t, err)
			assert.Len(t, hits, 1)
		})
	}
}

func TestCoordinator_CloseDrainsQueue(t *testing.T) {
	fe := &fakeEngine{delay: time.Millisecond}
	c := New(WithFactoryLookup(fakeLookup(fe)))
	c.SetEngine("fake")

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Submit(Job{Type: "placeplaces", ID: i + 1}))
	}
	require.NoError(t, c.Close())

	assert.Len(t, fe.calls, 5)
	assert.True(t, fe.closed)
	assert.ErrorIs(t, c.Submit(Job{Type: "placeplaces", ID: "late"}), ErrClosed)
	assert.NoError(t, c.Close())
}

func TestCoordinator_WaitHonorsContext(t *testing.T) {
	fe := &fakeEngine{delay: 200 * time.Millisecond}
	c := New(WithFactoryLookup(fakeLookup(fe)))
	defer func() { _ = c.Close() }()
	c.SetEngine("fake")

	require.NoError(t, c.Submit(Job{Type: "placeplaces", ID: "slow"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Wait(ctx), context.DeadlineExceeded)
}

func TestCoordinator_SetEngine_HeldIndexFallsBackToNull(t *testing.T) {
	// Given: the on-disk index held open elsewhere
	dir := t.TempDir()
	holder, err := engine.NewBleveEngine(engine.Options{Path: dir})
	require.NoError(t, err)
	defer func() { _ = holder.Close() }()

	c := New()
	defer func() { _ = c.Close() }()
	require.NoError(t, c.SetIndexPath(dir))

	// When: selecting bleve on the same path
	selected := make(chan struct{})
	go func() {
		c.SetEngine(engine.VariantBleve)
		close(selected)
	}()

	// Then: selection returns with the Null engine instead of hanging
	select {
	case <-selected:
	case <-time.After(10 * time.Second):
		t.Fatal("SetEngine blocked on a held index")
	}
	assert.Equal(t, engine.NullEngineName, c.EngineName())
}

func TestCoordinator_WithMappings_ReplacesTable(t *testing.T) {
	// Given: a table that only knows notes
	table := mapping.NewTable(map[string]mapping.Template{
		"notenotes": mapping.Mapping(mapping.Field{Name: "body", Template: mapping.Leaf("body")}),
	})
	c := New(WithMappings(table))
	defer func() { _ = c.Close() }()
	c.SetEngine(engine.VariantBleve)
	ctx := context.Background()

	// When: indexing a note and a place
	_, err := c.IndexType(ctx, "notenotes", "n1", map[string]any{"body": "grocery list"})
	require.NoError(t, err)
	_, placeErr := c.IndexType(ctx, "placeplaces", "p1", map[string]any{"title": "Cafe"})

	// Then: only the custom type is indexable
	assert.True(t, errors.Is(placeErr, ixerrors.UnknownType("placeplaces")))
	hits, err := c.QueryType(ctx, "notenotes", "grocery", engine.QueryParams{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "n1", hits[0].ID)
}

func TestCoordinator_Metrics(t *testing.T) {
	// Given: a registered metrics set and the in-memory bleve engine
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c := New(WithMetrics(m))
	defer func() { _ = c.Close() }()
	c.SetEngine(engine.VariantBleve)
	ctx := context.Background()

	// When: indexing one document, one empty record and one bad type
	_, err := c.IndexType(ctx, "placeplaces", "p1", map[string]any{"title": "Cafe"})
	require.NoError(t, err)
	_, err = c.IndexType(ctx, "placeplaces", "p2", map[string]any{"title": ""})
	require.NoError(t, err)
	_, err = c.IndexType(ctx, "nosuch", "p3", map[string]any{})
	require.Error(t, err)
	_, err = c.QueryAll(ctx, "cafe", engine.QueryParams{})
	require.NoError(t, err)

	// Then: each outcome is counted
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues(OutcomeIndexed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues(OutcomeEmpty)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues(OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("all", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.QueueDepth))
}
