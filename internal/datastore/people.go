package datastore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Aman-CERP/lockerindex/internal/mapping"
)

// People collections.
const (
	Friends   = "friends"
	Followers = "followers"
)

// Status collections.
const (
	HomeTimeline = "home_timeline"
	UserTimeline = "user_timeline"
	Mentions     = "mentions"
)

// ErrInvalidType is returned for an unknown people or status collection.
var ErrInvalidType = errors.New("invalid type")

// Contacts is every journaled friend and follower.
type Contacts struct {
	Friends   []Record `json:"friends"`
	Followers []Record `json:"followers"`
}

func checkPeopleType(t string) error {
	if t != Friends && t != Followers {
		return fmt.Errorf("%w: %s", ErrInvalidType, t)
	}
	return nil
}

func checkStatusType(t string) error {
	switch t {
	case HomeTimeline, UserTimeline, Mentions:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidType, t)
}

func recordID(record map[string]any) (string, error) {
	id, ok := mapping.Token(record["id"])
	if !ok {
		return "", fmt.Errorf("record has no id")
	}
	return id, nil
}

// withoutStatus returns a shallow copy of person minus its embedded status.
func withoutStatus(person map[string]any) map[string]any {
	out := make(map[string]any, len(person))
	for k, v := range person {
		if k != "status" {
			out[k] = v
		}
	}
	return out
}

// now is replaced in tests.
var now = func() int64 { return time.Now().UnixMilli() }

// AddPerson journals a person without their latest status and stores the
// full profile as current.
func (s *Store) AddPerson(ctx context.Context, peopleType string, person map[string]any) error {
	if err := checkPeopleType(peopleType); err != nil {
		return err
	}
	id, err := recordID(person)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.AddRecord(ctx, peopleType, id, now(), withoutStatus(person)); err != nil {
		return err
	}
	return s.PutCurrent(ctx, peopleType, id, person)
}

// GetPersonFromCurrent returns a person's current profile.
func (s *Store) GetPersonFromCurrent(ctx context.Context, peopleType, id string) (map[string]any, bool, error) {
	if err := checkPeopleType(peopleType); err != nil {
		return nil, false, err
	}
	return s.GetCurrent(ctx, peopleType, id)
}

// LogRemovePerson journals a removal marker and drops the current profile.
func (s *Store) LogRemovePerson(ctx context.Context, peopleType, id string) error {
	if err := checkPeopleType(peopleType); err != nil {
		return err
	}

	marker := map[string]any{"id_str": id}
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		marker["id"] = n
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.AddRecord(ctx, peopleType, id, now(), marker); err != nil {
		return err
	}
	return s.RemoveCurrent(ctx, peopleType, id)
}

// LogUpdatePerson journals a changed profile and replaces the current one.
// A person with no current profile is journaled only.
func (s *Store) LogUpdatePerson(ctx context.Context, peopleType string, person map[string]any) error {
	if err := checkPeopleType(peopleType); err != nil {
		return err
	}
	id, err := recordID(person)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.AddRecord(ctx, peopleType, id, now(), withoutStatus(person)); err != nil {
		return err
	}
	return s.updateCurrent(ctx, peopleType, id, person)
}

// GetPeople returns journal entries after since, oldest first.
func (s *Store) GetPeople(ctx context.Context, peopleType string, since int64) ([]Record, error) {
	if err := checkPeopleType(peopleType); err != nil {
		return nil, err
	}
	return s.Since(ctx, peopleType, since)
}

// GetPeopleCurrent returns every current profile of a people type.
func (s *Store) GetPeopleCurrent(ctx context.Context, peopleType string) ([]map[string]any, error) {
	if err := checkPeopleType(peopleType); err != nil {
		return nil, err
	}
	return s.ListCurrent(ctx, peopleType)
}

// GetAllContacts returns the full friend and follower journals.
func (s *Store) GetAllContacts(ctx context.Context) (Contacts, error) {
	friends, err := s.Since(ctx, Friends, -1)
	if err != nil {
		return Contacts{}, err
	}
	followers, err := s.Since(ctx, Followers, -1)
	if err != nil {
		return Contacts{}, err
	}
	return Contacts{Friends: friends, Followers: followers}, nil
}

// statusTimeLayouts are tried in order for created_at.
var statusTimeLayouts = []string{
	time.RubyDate,
	time.RFC3339,
	time.RFC1123Z,
}

func parseCreatedAt(v any) (int64, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return 0, fmt.Errorf("status has no created_at")
	}
	for _, layout := range statusTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized created_at %q", s)
}

// AddStatus journals a status stamped with its created_at time.
func (s *Store) AddStatus(ctx context.Context, statusType string, status map[string]any) error {
	if err := checkStatusType(statusType); err != nil {
		return err
	}
	id, err := recordID(status)
	if err != nil {
		return err
	}
	ts, err := parseCreatedAt(status["created_at"])
	if err != nil {
		return err
	}
	return s.AddRecord(ctx, statusType, id, ts, status)
}

// GetStatuses returns statuses created after since, oldest first.
func (s *Store) GetStatuses(ctx context.Context, statusType string, since int64) ([]Record, error) {
	if err := checkStatusType(statusType); err != nil {
		return nil, err
	}
	return s.Since(ctx, statusType, since)
}
