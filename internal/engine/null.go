package engine

import (
	"context"
	"time"

	ixerrors "github.com/Aman-CERP/lockerindex/internal/errors"
)

// NullEngineName is reported by the fallback engine.
const NullEngineName = "Null engine"

// NullEngine is the always-available fallback. Every index, delete and query
// call fails with the same error so a misconfigured process is loud rather
// than silently empty.
type NullEngine struct{}

// NewNullEngine returns the fallback engine.
func NewNullEngine() *NullEngine {
	return &NullEngine{}
}

func nullErr() error {
	return ixerrors.New(ixerrors.ErrCodeNullEngine, NullEngineName, nil)
}

// Name implements Engine.
func (NullEngine) Name() string { return NullEngineName }

// IndexType implements Engine.
func (NullEngine) IndexType(context.Context, string, any, any) (time.Duration, error) {
	return 0, nullErr()
}

// DeleteDocument implements Engine.
func (NullEngine) DeleteDocument(context.Context, string) error { return nullErr() }

// DeleteDocumentsByType implements Engine.
func (NullEngine) DeleteDocumentsByType(context.Context, string) error { return nullErr() }

// QueryType implements Engine.
func (NullEngine) QueryType(context.Context, string, string, QueryParams) ([]Hit, error) {
	return nil, nullErr()
}

// QueryAll implements Engine.
func (NullEngine) QueryAll(context.Context, string, QueryParams) ([]Hit, error) {
	return nil, nullErr()
}

// FlushWriter implements Engine.
func (NullEngine) FlushWriter() error { return nil }

// Close implements Engine.
func (NullEngine) Close() error { return nil }

var _ Engine = (*NullEngine)(nil)
