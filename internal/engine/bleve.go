package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevemapping "github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	ixerrors "github.com/Aman-CERP/lockerindex/internal/errors"
)

// bleveDirName is the index directory created under the index path.
const bleveDirName = "bleve"

// deleteByTypePage bounds how many ids are collected per delete round.
const deleteByTypePage = 1000

// BleveEngine indexes documents in a bleve index. Writes are buffered in a
// pending batch that is committed by FlushWriter, by a query, or when the
// batch reaches its size limit.
type BleveEngine struct {
	mu        sync.Mutex
	index     bleve.Index
	batch     *bleve.Batch
	batchIDs  []string
	batchSize int
	opts      Options
	closed    bool
}

// bleveDocument is the document structure for bleve indexing.
type bleveDocument struct {
	Type    string `json:"_type"`
	Content string `json:"content"`
}

// NewBleveEngine opens or creates the bleve index under opts.Path.
// If opts.Path is empty, creates an in-memory index.
func NewBleveEngine(opts Options) (*BleveEngine, error) {
	opts = opts.withDefaults()

	indexMapping := newBleveMapping()

	var idx bleve.Index
	var err error
	if opts.Path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		idx, err = openOrCreateBleve(filepath.Join(opts.Path, bleveDirName), indexMapping, opts.OpenTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open bleve index: %w", err)
	}

	return &BleveEngine{
		index:     idx,
		batch:     idx.NewBatch(),
		batchSize: opts.BatchSize,
		opts:      opts,
	}, nil
}

// newBleveMapping declares the two indexed fields: an untokenized, stored
// _type and a tokenized, unstored content.
func newBleveMapping() *blevemapping.IndexMappingImpl {
	typeField := bleve.NewKeywordFieldMapping()
	typeField.Analyzer = keyword.Name
	typeField.Store = true
	typeField.IncludeInAll = false

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = false
	contentField.IncludeInAll = false

	docMapping := bleve.NewDocumentStaticMapping()
	docMapping.AddFieldMappingsAt(FieldType, typeField)
	docMapping.AddFieldMappingsAt(FieldContent, contentField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	// Unqualified query terms search content.
	indexMapping.DefaultField = FieldContent
	return indexMapping
}

// openOrCreateBleve opens an existing index, creating it when absent and
// recreating it when its metadata is unreadable. An index held by another
// process fails after timeout instead of blocking on its bolt lock.
func openOrCreateBleve(path string, indexMapping *blevemapping.IndexMappingImpl, timeout time.Duration) (bleve.Index, error) {
	runtimeConfig := map[string]interface{}{"bolt_timeout": timeout.String()}
	create := func() (bleve.Index, error) {
		return bleve.NewUsing(path, indexMapping, bleve.Config.DefaultIndexType, bleve.Config.DefaultKVStore, runtimeConfig)
	}

	if err := validateBleveIntegrity(path); err != nil {
		corrupt := ixerrors.New(ixerrors.ErrCodeCorruptIndex, "bleve index metadata unreadable", err).
			WithDetail("path", path)
		slog.LogAttrs(context.Background(), slog.LevelWarn, "bleve_index_corrupted", ixerrors.LogAttrs(corrupt)...)
		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, fmt.Errorf("bleve index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, err)
		}
		slog.Info("bleve_index_cleared",
			slog.String("path", path),
			slog.String("reason", "corruption detected, please regather"))
	}

	idx, err := bleve.OpenUsing(path, runtimeConfig)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return create()
	}
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, fmt.Errorf("bleve index corrupted, cannot clear: %w (original: %v)", removeErr, err)
		}
		return create()
	}
	if err != nil {
		return nil, ixerrors.IndexIO("open bleve index "+path, err)
	}
	return idx, nil
}

// validateBleveIntegrity checks that an existing index directory carries
// readable metadata. A missing directory is valid: it will be created.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	data, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// Name implements Engine.
func (b *BleveEngine) Name() string { return "bleve" }

// IndexType implements Engine.
func (b *BleveEngine) IndexType(ctx context.Context, docType string, id any, value any) (time.Duration, error) {
	doc, err := BuildDocument(b.opts.Mappings, docType, id, value)
	if err != nil {
		return 0, err
	}
	if doc.Empty() {
		slog.Debug("bleve_index_skipped_empty", slog.String("id", doc.ID), slog.String("type", docType))
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ixerrors.IndexIO("index document", errIndexClosed)
	}

	start := time.Now()
	if err := b.batch.Index(doc.ID, bleveDocument{Type: doc.Type, Content: doc.Content}); err != nil {
		return 0, ixerrors.IndexIO("index document "+doc.ID, err)
	}
	b.batchIDs = append(b.batchIDs, doc.ID)
	if b.batch.Size() >= b.batchSize {
		if err := b.flushLocked(); err != nil {
			return 0, err
		}
	}
	return time.Since(start), nil
}

// DeleteDocument implements Engine.
func (b *BleveEngine) DeleteDocument(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ixerrors.IndexIO("delete document", errIndexClosed)
	}

	b.batch.Delete(id)
	b.batchIDs = append(b.batchIDs, id)
	return b.flushLocked()
}

// DeleteDocumentsByType implements Engine.
func (b *BleveEngine) DeleteDocumentsByType(ctx context.Context, docType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ixerrors.IndexIO("delete by type", errIndexClosed)
	}
	if err := b.flushLocked(); err != nil {
		return err
	}

	for {
		req := bleve.NewSearchRequestOptions(typeQuery(docType), deleteByTypePage, 0, false)
		req.Fields = []string{}
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return ixerrors.IndexIO("delete by type "+docType, err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		for _, hit := range res.Hits {
			b.batch.Delete(hit.ID)
			b.batchIDs = append(b.batchIDs, hit.ID)
		}
		if err := b.flushLocked(); err != nil {
			return err
		}
	}
}

// QueryType implements Engine.
func (b *BleveEngine) QueryType(ctx context.Context, docType, queryStr string, params QueryParams) ([]Hit, error) {
	content, err := contentQuery(queryStr)
	if err != nil {
		return nil, err
	}
	return b.search(ctx, bleve.NewConjunctionQuery(content, typeQuery(docType)), params)
}

// QueryAll implements Engine.
func (b *BleveEngine) QueryAll(ctx context.Context, queryStr string, params QueryParams) ([]Hit, error) {
	content, err := contentQuery(queryStr)
	if err != nil {
		return nil, err
	}
	return b.search(ctx, content, params)
}

func (b *BleveEngine) search(ctx context.Context, q query.Query, params QueryParams) ([]Hit, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ixerrors.IndexIO("search", errIndexClosed)
	}
	if err := b.flushLocked(); err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(q, params.limit(), params.offset(), false)
	req.Fields = []string{FieldType}

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, ixerrors.IndexIO("search", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		docType, _ := h.Fields[FieldType].(string)
		hits = append(hits, Hit{ID: h.ID, Type: docType, Score: h.Score})
	}
	return hits, nil
}

// contentQuery parses the caller's raw query string up front so syntax
// errors and unknown field qualifiers surface as ErrCodeInvalidQuery.
// Unqualified terms resolve to the content field through the mapping's
// default field.
func contentQuery(queryStr string) (query.Query, error) {
	parsed, err := bleve.NewQueryStringQuery(queryStr).Parse()
	if err == nil {
		err = checkFields(parsed)
	}
	if err != nil {
		return nil, ixerrors.New(ixerrors.ErrCodeInvalidQuery, "invalid query "+strconv.Quote(queryStr)+": "+err.Error(), err).
			WithDetail("query", queryStr)
	}
	return parsed, nil
}

// checkFields rejects field qualifiers other than the two indexed fields.
func checkFields(q query.Query) error {
	switch q := q.(type) {
	case nil:
		return nil
	case *query.BooleanQuery:
		if q == nil {
			return nil
		}
		for _, sub := range []query.Query{q.Must, q.Should, q.MustNot, q.Filter} {
			if err := checkFields(sub); err != nil {
				return err
			}
		}
	case *query.ConjunctionQuery:
		if q == nil {
			return nil
		}
		for _, sub := range q.Conjuncts {
			if err := checkFields(sub); err != nil {
				return err
			}
		}
	case *query.DisjunctionQuery:
		if q == nil {
			return nil
		}
		for _, sub := range q.Disjuncts {
			if err := checkFields(sub); err != nil {
				return err
			}
		}
	case query.FieldableQuery:
		switch f := q.Field(); f {
		case "", FieldContent, FieldType:
		default:
			return fmt.Errorf("no such field: %s", f)
		}
	}
	return nil
}

func typeQuery(docType string) query.Query {
	q := bleve.NewTermQuery(docType)
	q.SetField(FieldType)
	return q
}

// FlushWriter implements Engine.
func (b *BleveEngine) FlushWriter() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	return b.flushLocked()
}

// flushLocked commits the pending batch. On failure the batch is dropped
// and its ids are logged.
func (b *BleveEngine) flushLocked() error {
	if b.batch.Size() == 0 {
		return nil
	}
	err := b.index.Batch(b.batch)
	ids := b.batchIDs
	b.batch.Reset()
	b.batchIDs = nil
	if err != nil {
		err = ixerrors.IndexIO("flush batch", err)
		logDroppedBatch("bleve", ids, err)
		return err
	}
	return nil
}

// DocCount returns the number of committed documents.
func (b *BleveEngine) DocCount() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errIndexClosed
	}
	return b.index.DocCount()
}

// Close implements Engine.
func (b *BleveEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	flushErr := b.flushLocked()
	b.closed = true
	if err := b.index.Close(); err != nil {
		return err
	}
	return flushErr
}

var errIndexClosed = errors.New("index is closed")

var _ Engine = (*BleveEngine)(nil)
