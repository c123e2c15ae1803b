package gather

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/lockerindex/internal/datastore"
)

var _ Journal = (*datastore.Store)(nil)

var friendsService = Service{Name: "twitter_friends", Type: "contactcontacts", Scheme: "twitter", Journal: datastore.Friends}

func openJournal(t *testing.T) *datastore.Store {
	t.Helper()
	store, err := datastore.Open("", 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// gatherWith runs one full gather of a single service over body.
func gatherWith(t *testing.T, store *datastore.Store, svc Service, body string) ServiceReport {
	t.Helper()
	srv := lockerServer(t, map[string]string{"/Me/" + svc.Name + "/": body})
	g := New(Config{BaseURL: srv.URL, Services: []Service{svc}, Journal: store}, &fakeIndexer{})
	report, err := g.Gather(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, report.Services, 1)
	return report.Services[0]
}

func TestGather_PeopleServiceTracksAddsUpdatesAndRemovals(t *testing.T) {
	store := openJournal(t)
	ctx := context.Background()

	// Given: a first friends stream with two people
	rep := gatherWith(t, store, friendsService,
		"{\"id\":1,\"name\":\"Ann\",\"status\":{\"text\":\"hi\"}}\n{\"id\":2,\"name\":\"Bob\"}\n")
	assert.Equal(t, 2, rep.Indexed)
	assert.Zero(t, rep.Removed)

	// Then: both are journaled without their status and stored as current
	records, err := store.GetPeople(ctx, datastore.Friends, -1)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.NotContains(t, records[0].Data, "status")
	ann, ok, err := store.GetPersonFromCurrent(ctx, datastore.Friends, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, ann, "status")

	// When: the next stream renames Bob, adds Cy and no longer lists Ann
	rep = gatherWith(t, store, friendsService,
		"{\"id\":2,\"name\":\"Bobby\"}\n{\"id\":3,\"name\":\"Cy\"}\n")

	// Then: the update, the addition and the removal are journaled
	assert.Equal(t, 1, rep.Removed)
	records, err = store.GetPeople(ctx, datastore.Friends, -1)
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "Bobby", records[2].Data["name"])
	assert.Equal(t, "Cy", records[3].Data["name"])
	assert.Equal(t, "1", records[4].Data["id_str"])

	current, err := store.GetPeopleCurrent(ctx, datastore.Friends)
	require.NoError(t, err)
	require.Len(t, current, 2)
	assert.Equal(t, "Bobby", current[0]["name"])

	// When: the same stream arrives again
	rep = gatherWith(t, store, friendsService,
		"{\"id\":2,\"name\":\"Bobby\"}\n{\"id\":3,\"name\":\"Cy\"}\n")

	// Then: nothing new is journaled
	assert.Zero(t, rep.Removed)
	records, err = store.GetPeople(ctx, datastore.Friends, -1)
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestGather_AbortedPeopleStreamRemovesNobody(t *testing.T) {
	// Given: two known friends
	store := openJournal(t)
	gatherWith(t, store, friendsService, "{\"id\":1,\"name\":\"Ann\"}\n{\"id\":2,\"name\":\"Bob\"}\n")

	// When: the next stream breaks after the first line
	rep := gatherWith(t, store, friendsService, "{\"id\":2,\"name\":\"Bob\"}\n<broken>\n")

	// Then: Ann is kept
	assert.True(t, rep.Aborted)
	assert.Zero(t, rep.Removed)
	ids, err := store.CurrentIDs(context.Background(), datastore.Friends)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids)
}

func TestGather_StatusServiceJournalsByCreatedAt(t *testing.T) {
	store := openJournal(t)
	ctx := context.Background()
	svc := Service{Name: "twitter_timeline", Type: "timelinetwitter", Scheme: "twitter", Journal: datastore.HomeTimeline}

	// Given: a timeline newest first, plus a status without created_at
	rep := gatherWith(t, store, svc, "{\"id\":20,\"text\":\"later\",\"created_at\":\"Tue Jan 03 10:00:00 +0000 2012\"}\n"+
		"{\"id\":10,\"text\":\"earlier\",\"created_at\":\"Mon Jan 02 10:00:00 +0000 2012\"}\n"+
		"{\"id\":30,\"text\":\"undated\"}\n")

	// Then: every status is indexed
	assert.Equal(t, 3, rep.Indexed)

	// And: dated statuses are journaled in the timeline, oldest first
	statuses, err := store.GetStatuses(ctx, datastore.HomeTimeline, -1)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "earlier", statuses[0].Data["text"])
	assert.Equal(t, "later", statuses[1].Data["text"])

	// And: nothing is journaled raw under the service name
	collections, err := store.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{datastore.HomeTimeline}, collections)
}

func TestSameRecord(t *testing.T) {
	stored := map[string]any{"id": float64(1), "name": "Ann"}

	fresh, err := decodeRecord([]byte(`{"id":1,"name":"Ann"}`))
	require.NoError(t, err)
	assert.True(t, sameRecord(stored, fresh))

	fresh, err = decodeRecord([]byte(`{"id":1,"name":"Anne"}`))
	require.NoError(t, err)
	assert.False(t, sameRecord(stored, fresh))
}
