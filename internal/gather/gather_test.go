package gather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/lockerindex/internal/coordinator"
	"github.com/Aman-CERP/lockerindex/internal/engine"
	ixerrors "github.com/Aman-CERP/lockerindex/internal/errors"
)

type indexCall struct {
	Type string
	ID   any
}

type fakeIndexer struct {
	mu          sync.Mutex
	recreated   int
	deleted     []string
	calls       []indexCall
	failIDs     map[string]bool
	recreateErr error
}

func (f *fakeIndexer) Recreate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recreated++
	return f.recreateErr
}

func (f *fakeIndexer) DeleteDocumentsByType(_ context.Context, docType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, docType)
	return nil
}

func (f *fakeIndexer) IndexType(_ context.Context, docType string, id any, value any) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, indexCall{Type: docType, ID: id})
	if f.failIDs[fmt.Sprint(id)] {
		return 0, ixerrors.IndexIO("index document", errors.New("write failed"))
	}
	return time.Millisecond, nil
}

// lockerServer serves fixed bodies per service path.
func lockerServer(t *testing.T, bodies map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("all"))
		assert.Equal(t, "true", r.URL.Query().Get("stream"))
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGather_MalformedLineAbortsService(t *testing.T) {
	// Given: a place stream with a malformed middle line
	srv := lockerServer(t, map[string]string{
		"/Me/places/": "{\"id\":1,\"title\":\"A\"}\n<invalid>\n{\"id\":2,\"title\":\"B\"}\n",
	})
	idx := &fakeIndexer{}
	g := New(Config{BaseURL: srv.URL, Services: []Service{{Name: "places", Type: "placeplaces", Scheme: "place"}}}, idx)

	// When: gathering everything
	report, err := g.Gather(context.Background(), "")

	// Then: only the first record was indexed and the abort is reported
	require.NoError(t, err)
	assert.Equal(t, []indexCall{{Type: "placeplaces", ID: "place://places/1"}}, idx.calls)
	require.Len(t, report.Services, 1)
	assert.True(t, report.Services[0].Aborted)
	assert.Equal(t, 1, report.Services[0].Indexed)
	assert.Equal(t, 1, idx.recreated)
}

func TestGather_NextServiceRunsAfterAbort(t *testing.T) {
	srv := lockerServer(t, map[string]string{
		"/Me/contacts/": "not json\n{\"id\":\"c1\",\"name\":\"Ann\"}\n",
		"/Me/places/":   "{\"id\":7,\"title\":\"Cafe\"}\n",
	})
	idx := &fakeIndexer{}
	g := New(Config{BaseURL: srv.URL, Services: DefaultServices()}, idx)

	report, err := g.Gather(context.Background(), "")

	require.NoError(t, err)
	assert.Equal(t, []indexCall{{Type: "placeplaces", ID: "place://places/7"}}, idx.calls)
	require.Len(t, report.Services, 3)
	assert.True(t, report.Services[0].Aborted)
	assert.NotEmpty(t, report.Services[1].Error, "photos returns 404")
	assert.Equal(t, 1, report.Services[2].Indexed)
	assert.Equal(t, 1, report.Indexed())
}

func TestGather_IndexErrorsContinue(t *testing.T) {
	srv := lockerServer(t, map[string]string{
		"/Me/places/": "{\"id\":1,\"title\":\"A\"}\n{\"id\":2,\"title\":\"B\"}\n{\"title\":\"no id\"}\n{\"id\":3,\"title\":\"C\"}",
	})
	idx := &fakeIndexer{failIDs: map[string]bool{"place://places/2": true}}
	g := New(Config{BaseURL: srv.URL, Services: []Service{{Name: "places", Type: "placeplaces", Scheme: "place"}}}, idx)

	report, err := g.Gather(context.Background(), "")

	require.NoError(t, err)
	rep := report.Services[0]
	assert.Equal(t, 4, rep.Lines)
	assert.Equal(t, 2, rep.Indexed)
	assert.Equal(t, 2, rep.Failed)
	assert.False(t, rep.Aborted)
	// The trailing line without a newline is still processed.
	assert.Equal(t, "place://places/3", idx.calls[len(idx.calls)-1].ID)
}

func TestGather_TypeScopedReset(t *testing.T) {
	srv := lockerServer(t, map[string]string{
		"/Me/places/": "{\"id\":1,\"title\":\"A\"}\n",
	})
	idx := &fakeIndexer{}
	g := New(Config{BaseURL: srv.URL}, idx)

	report, err := g.Gather(context.Background(), "placeplaces")

	require.NoError(t, err)
	assert.Zero(t, idx.recreated)
	assert.Equal(t, []string{"placeplaces"}, idx.deleted)
	require.Len(t, report.Services, 1)
	assert.Equal(t, "places", report.Services[0].Service)
}

func TestGather_UnknownTypeRejectedBeforeReset(t *testing.T) {
	idx := &fakeIndexer{}
	g := New(Config{BaseURL: "http://127.0.0.1:1"}, idx)

	_, err := g.Gather(context.Background(), "tweettwitter")

	assert.True(t, errors.Is(err, ixerrors.ErrUnknownType))
	assert.Empty(t, idx.deleted)
}

func TestGather_ResetFailureStops(t *testing.T) {
	idx := &fakeIndexer{recreateErr: errors.New("disk full")}
	g := New(Config{BaseURL: "http://127.0.0.1:1"}, idx)

	report, err := g.Gather(context.Background(), "")

	assert.EqualError(t, err, "disk full")
	assert.Empty(t, report.Services)
	assert.Empty(t, idx.calls)
}

func TestGather_LockerUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	idx := &fakeIndexer{}
	g := New(Config{BaseURL: srv.URL, Services: []Service{{Name: "places", Type: "placeplaces", Scheme: "place"}}}, idx)

	report, err := g.Gather(context.Background(), "")

	require.NoError(t, err)
	assert.Contains(t, report.Services[0].Error, "ERR_301_LOCKER_UNAVAILABLE")
}

func TestGather_ReportsEachService(t *testing.T) {
	srv := lockerServer(t, map[string]string{
		"/Me/places/": "{\"id\":7,\"title\":\"Cafe\"}\n",
	})
	var seen []string
	g := New(Config{
		BaseURL:  srv.URL,
		Services: DefaultServices(),
		OnService: func(done, total int, rep ServiceReport) {
			seen = append(seen, fmt.Sprintf("%d/%d %s", done, total, rep.Service))
		},
	}, &fakeIndexer{})

	_, err := g.Gather(context.Background(), "")

	require.NoError(t, err)
	assert.Equal(t, []string{"1/3 contacts", "2/3 photos", "3/3 places"}, seen)
}

func TestServiceURL(t *testing.T) {
	g := New(Config{BaseURL: "http://localhost:8042/"}, &fakeIndexer{})
	assert.Equal(t, "http://localhost:8042/Me/places/?all=true&stream=true", g.ServiceURL("places"))
}

func TestGather_EndToEndWithCoordinator(t *testing.T) {
	// Given: a real coordinator over an on-disk bleve index
	c := coordinator.New()
	defer func() { _ = c.Close() }()
	require.NoError(t, c.SetIndexPath(filepath.Join(t.TempDir(), "index")))
	c.SetEngine(engine.VariantBleve)

	srv := lockerServer(t, map[string]string{
		"/Me/contacts/": "{\"id\":\"c1\",\"name\":\"Ada\",\"email\":[{\"value\":\"a@b.com\"}]}\n",
		"/Me/photos/":   "{\"id\":\"p1\",\"caption\":\"\"}\n",
		"/Me/places/":   "{\"id\":1,\"title\":\"Cafe\"}\n",
	})
	g := New(Config{BaseURL: srv.URL}, c)

	// When: gathering
	report, err := g.Gather(context.Background(), "")
	require.NoError(t, err)

	// Then: records are searchable under their derived ids
	hits, err := c.QueryType(context.Background(), "placeplaces", "cafe", engine.QueryParams{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "place://places/1", hits[0].ID)

	hits, err = c.QueryAll(context.Background(), "ada", engine.QueryParams{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "contact://contacts/c1", hits[0].ID)

	// And: the empty photo was skipped, not failed
	assert.Equal(t, 1, report.Services[1].Empty)
	assert.Equal(t, 2, report.Indexed())
}
