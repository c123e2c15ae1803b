package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Aman-CERP/lockerindex/configs"
)

// Table maps a record type to the template that selects its indexed fields.
// A Table is read-only once built.
type Table struct {
	templates map[string]Template
}

// NewTable builds a table from explicit templates.
func NewTable(templates map[string]Template) *Table {
	copied := make(map[string]Template, len(templates))
	for k, v := range templates {
		copied[k] = v
	}
	return &Table{templates: copied}
}

// ParseTable builds a table from a JSON object of type name -> template declaration.
func ParseTable(data []byte) (*Table, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse mapping table: %w", err)
	}

	templates := make(map[string]Template, len(raw))
	for docType, decl := range raw {
		t, err := ParseTemplate(bytes.TrimSpace(decl))
		if err != nil {
			return nil, fmt.Errorf("mapping for %s: %w", docType, err)
		}
		templates[docType] = t
	}
	return &Table{templates: templates}, nil
}

// Lookup returns the template for docType.
func (t *Table) Lookup(docType string) (Template, bool) {
	if t == nil {
		return Template{}, false
	}
	tmpl, ok := t.templates[docType]
	return tmpl, ok
}

// Types returns the mapped type names, sorted.
func (t *Table) Types() []string {
	types := make([]string, 0, len(t.templates))
	for k := range t.templates {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the built-in table declared in configs/mappings.json.
// It panics if the embedded declaration is invalid, which only a bad build can cause.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := ParseTable(configs.FieldMappings)
		if err != nil {
			panic(fmt.Sprintf("embedded field mappings are invalid: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}
