package gather

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestService_DocumentID(t *testing.T) {
	places := Service{Name: "places", Type: "placeplaces", Scheme: "place"}

	tests := []struct {
		name   string
		record map[string]any
		want   string
		ok     bool
	}{
		{name: "number id", record: map[string]any{"id": json.Number("42")}, want: "place://places/42", ok: true},
		{name: "fractional spelling", record: map[string]any{"id": json.Number("1.0")}, want: "place://places/1", ok: true},
		{name: "exponent spelling", record: map[string]any{"id": json.Number("1e2")}, want: "place://places/100", ok: true},
		{name: "string id", record: map[string]any{"id": "abc"}, want: "place://places/abc", ok: true},
		{name: "missing id", record: map[string]any{"title": "x"}},
		{name: "empty id", record: map[string]any{"id": ""}},
		{name: "zero id", record: map[string]any{"id": json.Number("0")}},
		{name: "bool id", record: map[string]any{"id": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := places.DocumentID(tt.record)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultServices(t *testing.T) {
	got := map[string]string{}
	for _, s := range DefaultServices() {
		got[s.Name] = s.Scheme + "/" + s.Type
	}
	assert.Equal(t, map[string]string{
		"contacts": "contact/contactcontacts",
		"photos":   "photo/photophotos",
		"places":   "place/placeplaces",
	}, got)
}
