package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTemplate_KeepsKeyOrder(t *testing.T) {
	tmpl, err := ParseTemplate([]byte(`{"z":"z","a":{"m":"m"},"k":[{"v":"v"}],"e":[]}`))
	require.NoError(t, err)

	require.Equal(t, KindMapping, tmpl.Kind())
	fields := tmpl.Fields()
	require.Len(t, fields, 4)
	assert.Equal(t, "z", fields[0].Name)
	assert.Equal(t, "a", fields[1].Name)
	assert.Equal(t, "k", fields[2].Name)
	assert.Equal(t, "e", fields[3].Name)

	assert.Equal(t, KindLeaf, fields[0].Template.Kind())
	assert.Equal(t, "z", fields[0].Template.Key())
	assert.Equal(t, KindMapping, fields[1].Template.Kind())

	elem, ok := fields[2].Template.Elem()
	require.True(t, ok)
	assert.Equal(t, KindMapping, elem.Kind())

	_, ok = fields[3].Template.Elem()
	assert.False(t, ok, "empty sequence has no element template")
	assert.Equal(t, KindSequence, fields[3].Template.Kind())
}

func TestParseTemplate_Errors(t *testing.T) {
	tests := []struct {
		name string
		decl string
	}{
		{"number leaf", `{"a":1}`},
		{"two element templates", `{"a":[{"x":"x"},{"y":"y"}]}`},
		{"trailing data", `{"a":"a"} {}`},
		{"truncated", `{"a":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate([]byte(tt.decl))
			assert.Error(t, err)
		})
	}
}

func TestDefaultTable_Types(t *testing.T) {
	assert.Equal(t, []string{
		"contactcontacts",
		"photophotos",
		"placeplaces",
		"postfacebook",
		"timelinetwitter",
		"tweettwitter",
	}, Default().Types())

	_, ok := Default().Lookup("linkslinks")
	assert.False(t, ok)
}

func TestNewTable_CopiesInput(t *testing.T) {
	src := map[string]Template{"a": Leaf("a")}
	table := NewTable(src)
	delete(src, "a")

	_, ok := table.Lookup("a")
	assert.True(t, ok)

	var nilTable *Table
	_, ok = nilTable.Lookup("a")
	assert.False(t, ok)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "leaf", KindLeaf.String())
	assert.Equal(t, "sequence", KindSequence.String())
	assert.Equal(t, "mapping", KindMapping.String())
}
