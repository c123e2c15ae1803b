package gather

import (
	"github.com/Aman-CERP/lockerindex/internal/datastore"
	"github.com/Aman-CERP/lockerindex/internal/mapping"
)

// Service describes one locker collection and how its records are indexed.
type Service struct {
	// Name is the locker service id, used in the fetch URL and the document id.
	Name string `yaml:"name" json:"name"`

	// Type is the field-mapping type the records are indexed under.
	Type string `yaml:"type" json:"type"`

	// Scheme prefixes the document id: <scheme>://<name>/<id>.
	Scheme string `yaml:"scheme" json:"scheme"`

	// Journal names the people or status collection the records are
	// journaled into. Empty journals raw records under Name.
	Journal string `yaml:"journal,omitempty" json:"journal,omitempty"`
}

// People reports whether the service journals friends or followers.
func (s Service) People() bool {
	return s.Journal == datastore.Friends || s.Journal == datastore.Followers
}

// DefaultServices returns the built-in identity table.
func DefaultServices() []Service {
	return []Service{
		{Name: "contacts", Type: "contactcontacts", Scheme: "contact"},
		{Name: "photos", Type: "photophotos", Scheme: "photo"},
		{Name: "places", Type: "placeplaces", Scheme: "place"},
	}
}

// DocumentID derives the canonical id for a record from its "id" property.
// Returns false when the record has no usable id.
func (s Service) DocumentID(record map[string]any) (string, bool) {
	raw, ok := record["id"]
	if !ok {
		return "", false
	}
	if _, isBool := raw.(bool); isBool {
		return "", false
	}
	id, ok := mapping.Token(raw)
	if !ok {
		return "", false
	}
	return s.Scheme + "://" + s.Name + "/" + id, true
}
