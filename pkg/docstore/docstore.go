// Package docstore archives the raw SBOM documents behind the graph, so the
// original bytes can be re-examined or re-ingested later. Documents are
// compressed at rest and keyed by the SBOM record they were ingested as.
package docstore

import (
	"context"
	"fmt"

	"github.com/exploopio/vulngraph/pkg/errors"
	"github.com/exploopio/vulngraph/pkg/logging"
	"github.com/exploopio/vulngraph/pkg/storage"
)

// Archive stores and retrieves raw document blobs.
type Archive struct {
	store      *storage.Store
	compressor *Compressor
	log        logging.Logger
}

// Option configures an Archive.
type Option func(*Archive)

// WithCompressor overrides the default ZSTD compressor.
func WithCompressor(c *Compressor) Option {
	return func(a *Archive) {
		a.compressor = c
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(a *Archive) {
		a.log = l
	}
}

// New creates an Archive over the given store.
func New(store *storage.Store, opts ...Option) *Archive {
	a := &Archive{
		store:      store,
		compressor: NewCompressor(AlgorithmZSTD, LevelDefault),
		log:        &logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Store archives the raw document for an SBOM, replacing any earlier
// archive for the same record.
func (a *Archive) Store(ctx context.Context, sbomID int64, raw []byte) error {
	const op = "docstore.Store"

	compressed, err := a.compressor.Compress(raw)
	if err != nil {
		return errors.E(errors.KindStorage, op, "compress document", err)
	}

	err = a.store.PutDocument(ctx, sbomID, string(a.compressor.Algorithm()), int64(len(raw)), compressed)
	if err != nil {
		return errors.Wrap(err, op)
	}

	a.log.Debug("archived document for sbom %d: %d -> %d bytes (%s)",
		sbomID, len(raw), len(compressed), a.compressor.Algorithm())
	return nil
}

// Retrieve returns the original raw bytes archived for an SBOM.
func (a *Archive) Retrieve(ctx context.Context, sbomID int64) ([]byte, error) {
	const op = "docstore.Retrieve"

	doc, err := a.store.GetDocument(ctx, sbomID)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	if doc == nil {
		return nil, errors.E(errors.KindNotFound, op,
			fmt.Sprintf("no document archived for sbom %d", sbomID))
	}

	raw, err := Decompress(Algorithm(doc.Algorithm), doc.Data)
	if err != nil {
		return nil, errors.E(errors.KindStorage, op, "decompress document", err)
	}
	if int64(len(raw)) != doc.RawSize {
		return nil, errors.E(errors.KindStorage, op,
			fmt.Sprintf("document size mismatch: got %d, recorded %d", len(raw), doc.RawSize))
	}
	return raw, nil
}
