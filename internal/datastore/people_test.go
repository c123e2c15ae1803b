package datastore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *testing.T, times ...int64) {
	t.Helper()
	orig := now
	i := 0
	now = func() int64 {
		ts := times[i]
		if i < len(times)-1 {
			i++
		}
		return ts
	}
	t.Cleanup(func() { now = orig })
}

func TestAddPerson_StripsStatusFromJournal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fixedClock(t, 1000)

	// Given: a friend with an embedded latest status
	person := map[string]any{
		"id":          float64(42),
		"screen_name": "ada",
		"status":      map[string]any{"text": "hello"},
	}

	// When: adding them
	require.NoError(t, s.AddPerson(ctx, Friends, person))

	// Then: the journal copy has no status
	records, err := s.GetPeople(ctx, Friends, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "42", records[0].ID)
	assert.Equal(t, int64(1000), records[0].Timestamp)
	assert.NotContains(t, records[0].Data, "status")

	// And: the current profile keeps it
	current, ok, err := s.GetPersonFromCurrent(ctx, Friends, "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, current, "status")

	// And: the caller's map is untouched
	assert.Contains(t, person, "status")
}

func TestLogRemovePerson(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fixedClock(t, 1, 2)

	require.NoError(t, s.AddPerson(ctx, Followers, map[string]any{"id": "7", "name": "Bob"}))
	require.NoError(t, s.LogRemovePerson(ctx, Followers, "7"))

	_, ok, err := s.GetPersonFromCurrent(ctx, Followers, "7")
	require.NoError(t, err)
	assert.False(t, ok)

	records, err := s.GetPeople(ctx, Followers, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "7", records[0].Data["id_str"])
	assert.Equal(t, float64(7), records[0].Data["id"])
}

func TestLogUpdatePerson(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fixedClock(t, 1, 2, 3)

	require.NoError(t, s.AddPerson(ctx, Friends, map[string]any{"id": "1", "name": "Old"}))
	require.NoError(t, s.LogUpdatePerson(ctx, Friends, map[string]any{"id": "1", "name": "New"}))

	// A person with no current profile is journaled but not added.
	require.NoError(t, s.LogUpdatePerson(ctx, Friends, map[string]any{"id": "2", "name": "Ghost"}))

	current, err := s.GetPeopleCurrent(ctx, Friends)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "New", current[0]["name"])

	records, err := s.GetPeople(ctx, Friends, 0)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestGetAllContacts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddPerson(ctx, Friends, map[string]any{"id": "1"}))
	require.NoError(t, s.AddPerson(ctx, Followers, map[string]any{"id": "2"}))
	require.NoError(t, s.AddPerson(ctx, Followers, map[string]any{"id": "3"}))

	all, err := s.GetAllContacts(ctx)
	require.NoError(t, err)
	assert.Len(t, all.Friends, 1)
	assert.Len(t, all.Followers, 2)
}

func TestStatuses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Given: statuses added out of created_at order
	require.NoError(t, s.AddStatus(ctx, HomeTimeline, map[string]any{
		"id": "b", "text": "second", "created_at": "Tue Mar 01 10:00:00 +0000 2011",
	}))
	require.NoError(t, s.AddStatus(ctx, HomeTimeline, map[string]any{
		"id": "a", "text": "first", "created_at": "Mon Feb 28 10:00:00 +0000 2011",
	}))

	// When: reading the timeline
	records, err := s.GetStatuses(ctx, HomeTimeline, 0)

	// Then: they are ordered by created_at
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ID)
	assert.Less(t, records[0].Timestamp, records[1].Timestamp)

	// And: other timelines are separate
	records, err = s.GetStatuses(ctx, Mentions, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAddStatus_RequiresCreatedAt(t *testing.T) {
	s := openTestStore(t)
	err := s.AddStatus(context.Background(), UserTimeline, map[string]any{"id": "x"})
	assert.Error(t, err)
}

func TestInvalidTypes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	checks := map[string]error{
		"AddPerson":       s.AddPerson(ctx, "enemies", map[string]any{"id": "1"}),
		"LogRemovePerson": s.LogRemovePerson(ctx, "enemies", "1"),
		"LogUpdatePerson": s.LogUpdatePerson(ctx, "home_timeline", map[string]any{"id": "1"}),
		"AddStatus":       s.AddStatus(ctx, "friends", map[string]any{"id": "1", "created_at": "Mon Feb 28 10:00:00 +0000 2011"}),
	}
	_, _, err := s.GetPersonFromCurrent(ctx, "enemies", "1")
	checks["GetPersonFromCurrent"] = err
	_, err = s.GetPeople(ctx, "enemies", 0)
	checks["GetPeople"] = err
	_, err = s.GetPeopleCurrent(ctx, "enemies")
	checks["GetPeopleCurrent"] = err
	_, err = s.GetStatuses(ctx, "followers", 0)
	checks["GetStatuses"] = err

	for name, err := range checks {
		assert.True(t, errors.Is(err, ErrInvalidType), name)
	}
	assert.EqualError(t, checks["AddPerson"], "invalid type: enemies")
}
