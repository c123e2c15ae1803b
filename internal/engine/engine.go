// Package engine defines the search engine capability set and its variants.
//
// Every variant indexes the same derived document: an exact-match `_type`
// field and a tokenized, unstored `content` field built by the mapping
// flattener. Variants are selected by name through the registry so callers
// never depend on a concrete backend.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Aman-CERP/lockerindex/internal/mapping"
)

// Variant names accepted by the registry.
const (
	// VariantBleve is an on-disk bleve index.
	VariantBleve = "bleve"

	// VariantSQLite is a SQLite FTS5 table (pure Go driver).
	VariantSQLite = "sqlite"
)

// Stored field names shared by every variant.
const (
	FieldType    = "_type"
	FieldContent = "content"
)

// DefaultQueryLimit is used when QueryParams.Limit is zero.
const DefaultQueryLimit = 10

// DefaultBatchSize is the number of buffered writes before an implicit flush.
const DefaultBatchSize = 100

// DefaultOpenTimeout bounds waiting for an index held by another process.
const DefaultOpenTimeout = 2 * time.Second

// Hit is a single query match.
type Hit struct {
	ID    string  `json:"id"`
	Type  string  `json:"type"`
	Score float64 `json:"score"`
}

// QueryParams are passed through to the engine unchanged.
type QueryParams struct {
	Limit  int
	Offset int
}

func (p QueryParams) limit() int {
	if p.Limit <= 0 {
		return DefaultQueryLimit
	}
	return p.Limit
}

func (p QueryParams) offset() int {
	if p.Offset < 0 {
		return 0
	}
	return p.Offset
}

// Engine is the capability set every index backend implements.
type Engine interface {
	// Name identifies the variant for diagnostics.
	Name() string

	// IndexType flattens value with the mapping for docType and writes it
	// under id. A record with no extractable tokens is not written and
	// reports a zero duration with a nil error.
	//
	// Writes are buffered. A nil error means the write was accepted into
	// the pending batch, not that it is durable: when a later flush fails,
	// the whole batch is dropped, its ids are logged as
	// index_batch_dropped and only the call that triggered the flush sees
	// the error.
	IndexType(ctx context.Context, docType string, id any, value any) (time.Duration, error)

	// DeleteDocument removes one document by id.
	DeleteDocument(ctx context.Context, id string) error

	// DeleteDocumentsByType removes every document whose _type equals docType.
	DeleteDocumentsByType(ctx context.Context, docType string) error

	// QueryType runs query against content, restricted to docType.
	QueryType(ctx context.Context, docType, query string, params QueryParams) ([]Hit, error)

	// QueryAll runs query against content across all types.
	QueryAll(ctx context.Context, query string, params QueryParams) ([]Hit, error)

	// FlushWriter makes buffered writes visible to subsequent queries.
	FlushWriter() error

	// Close flushes and releases the backend.
	Close() error
}

// Options configure a variant at construction time.
type Options struct {
	// Path is the index directory. Empty selects an in-memory index.
	Path string

	// Mappings is the field-mapping table. Nil selects mapping.Default().
	Mappings *mapping.Table

	// BatchSize bounds buffered writes before an implicit flush.
	BatchSize int

	// OpenTimeout bounds waiting for the on-disk index lock. Zero selects
	// DefaultOpenTimeout.
	OpenTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Mappings == nil {
		o.Mappings = mapping.Default()
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = DefaultOpenTimeout
	}
	return o
}

// logDroppedBatch records the ids lost with a failed flush.
func logDroppedBatch(variant string, ids []string, err error) {
	slog.Error("index_batch_dropped",
		slog.String("engine", variant),
		slog.Int("count", len(ids)),
		slog.Any("ids", ids),
		slog.String("error", err.Error()))
}

// Factory constructs a variant.
type Factory func(opts Options) (Engine, error)

var registry = map[string]Factory{
	VariantBleve: func(opts Options) (Engine, error) {
		return NewBleveEngine(opts)
	},
	VariantSQLite: func(opts Options) (Engine, error) {
		return NewSQLiteEngine(opts)
	},
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, bool) {
	f, ok := registry[name]
	return f, ok
}

// Variants returns the registered variant names, sorted.
func Variants() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
