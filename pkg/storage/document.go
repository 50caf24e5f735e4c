package storage

import (
	"context"
	"database/sql"
)

// DocumentRow is one archived raw SBOM document blob. The data column holds
// the compressed bytes; RawSize is the size before compression.
type DocumentRow struct {
	SbomID    int64
	Algorithm string
	RawSize   int64
	Data      []byte
}

// PutDocument archives the raw document for an SBOM, replacing any earlier
// archive for the same document.
func (s *Store) PutDocument(ctx context.Context, sbomID int64, algorithm string, rawSize int64, data []byte) error {
	const op = "storage.PutDocument"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sbom_document (sbom_id, algorithm, raw_size, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(sbom_id) DO UPDATE SET
			algorithm = excluded.algorithm,
			raw_size = excluded.raw_size,
			data = excluded.data
	`, sbomID, algorithm, rawSize, data)
	if err != nil {
		return storageErr(op, err)
	}
	return nil
}

// GetDocument fetches the archived document for an SBOM, nil when none was
// archived.
func (s *Store) GetDocument(ctx context.Context, sbomID int64) (*DocumentRow, error) {
	const op = "storage.GetDocument"

	var doc DocumentRow
	err := s.db.QueryRowContext(ctx, `
		SELECT sbom_id, algorithm, raw_size, data FROM sbom_document WHERE sbom_id = ?
	`, sbomID).Scan(&doc.SbomID, &doc.Algorithm, &doc.RawSize, &doc.Data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(op, err)
	}
	return &doc, nil
}
