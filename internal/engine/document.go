package engine

import (
	ixerrors "github.com/Aman-CERP/lockerindex/internal/errors"
	"github.com/Aman-CERP/lockerindex/internal/mapping"
)

// Document is the derived artifact a variant writes.
type Document struct {
	ID      string
	Type    string
	Content string
	Tokens  []string
}

// Empty reports whether the record produced no tokens.
func (d Document) Empty() bool {
	return len(d.Tokens) == 0
}

// BuildDocument validates id and docType and flattens value into a Document.
func BuildDocument(table *mapping.Table, docType string, id any, value any) (Document, error) {
	docID, err := NormalizeID(id)
	if err != nil {
		return Document{}, err
	}

	tmpl, ok := table.Lookup(docType)
	if !ok {
		return Document{}, ixerrors.UnknownType(docType)
	}

	tokens := mapping.Flatten(value, tmpl)
	return Document{
		ID:      docID,
		Type:    docType,
		Content: mapping.Content(tokens),
		Tokens:  tokens,
	}, nil
}

// NormalizeID renders a caller-supplied id (string or number) as the
// document key. Falsy ids (nil, "", 0, false) are rejected.
func NormalizeID(id any) (string, error) {
	switch id.(type) {
	case bool:
		return "", ixerrors.MissingID()
	}
	s, ok := mapping.Token(id)
	if !ok {
		return "", ixerrors.MissingID()
	}
	return s, nil
}
