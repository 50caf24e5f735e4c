package storage

import (
	"context"
	"database/sql"
	"time"
)

// SbomRow is one persisted SBOM document record.
type SbomRow struct {
	ID         int64
	DocumentID string
	Location   string
	Sha256     string
	Title      sql.NullString
	Published  sql.NullTime
	CreatedAt  time.Time
}

// CpeRow is one persisted CPE identity.
type CpeRow struct {
	ID  int64
	URI string
}

func (s *Store) scanSbom(row *sql.Row) (*SbomRow, error) {
	var sbom SbomRow
	err := row.Scan(&sbom.ID, &sbom.DocumentID, &sbom.Location, &sbom.Sha256,
		&sbom.Title, &sbom.Published, &sbom.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("storage.scanSbom", err)
	}
	return &sbom, nil
}

const sbomColumns = `id, document_id, location, sha256, title, published, created_at`

// GetSbom fetches one SBOM by its (location, sha256) identity, nil when absent.
func (s *Store) GetSbom(ctx context.Context, location, sha256 string) (*SbomRow, error) {
	return s.scanSbom(s.db.QueryRowContext(ctx, `
		SELECT `+sbomColumns+` FROM sbom WHERE location = ? AND sha256 = ?
	`, location, sha256))
}

// GetSbomByID fetches one SBOM by id, nil when absent.
func (s *Store) GetSbomByID(ctx context.Context, id int64) (*SbomRow, error) {
	return s.scanSbom(s.db.QueryRowContext(ctx, `
		SELECT `+sbomColumns+` FROM sbom WHERE id = ?
	`, id))
}

// InsertSbom persists a new SBOM record.
func (s *Store) InsertSbom(ctx context.Context, documentID, location, sha256 string, title *string, published *time.Time) (*SbomRow, error) {
	const op = "storage.InsertSbom"

	var t interface{}
	if title != nil {
		t = *title
	}
	var p interface{}
	if published != nil {
		p = *published
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sbom (document_id, location, sha256, title, published)
		VALUES (?, ?, ?, ?, ?)
	`, documentID, location, sha256, t, p)
	if err != nil {
		return nil, storageErr(op, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, storageErr(op, err)
	}
	return s.GetSbomByID(ctx, id)
}

// SbomsByLocation returns all SBOMs ingested from one source location.
func (s *Store) SbomsByLocation(ctx context.Context, location string) ([]*SbomRow, error) {
	return s.querySboms(ctx, `
		SELECT `+sbomColumns+` FROM sbom WHERE location = ? ORDER BY id
	`, location)
}

// SbomsBySha256 returns all SBOMs with matching document digest.
func (s *Store) SbomsBySha256(ctx context.Context, sha256 string) ([]*SbomRow, error) {
	return s.querySboms(ctx, `
		SELECT `+sbomColumns+` FROM sbom WHERE sha256 = ? ORDER BY id
	`, sha256)
}

// SbomsByDescribedPackage returns the SBOMs whose describes-package edge
// points at the given identity.
func (s *Store) SbomsByDescribedPackage(ctx context.Context, packageID int64) ([]*SbomRow, error) {
	return s.querySboms(ctx, `
		SELECT `+prefixedSbomColumns+` FROM sbom
		INNER JOIN sbom_describes_package sdp ON sdp.sbom_id = sbom.id
		WHERE sdp.package_id = ?
		ORDER BY sbom.id
	`, packageID)
}

// SbomsByDescribedCpe returns the SBOMs whose describes-CPE edge points at
// the given CPE.
func (s *Store) SbomsByDescribedCpe(ctx context.Context, cpeID int64) ([]*SbomRow, error) {
	return s.querySboms(ctx, `
		SELECT `+prefixedSbomColumns+` FROM sbom
		INNER JOIN sbom_describes_cpe sdc ON sdc.sbom_id = sbom.id
		WHERE sdc.cpe_id = ?
		ORDER BY sbom.id
	`, cpeID)
}

const prefixedSbomColumns = `sbom.id, sbom.document_id, sbom.location, sbom.sha256, sbom.title, sbom.published, sbom.created_at`

func (s *Store) querySboms(ctx context.Context, query string, args ...interface{}) ([]*SbomRow, error) {
	const op = "storage.querySboms"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var sboms []*SbomRow
	for rows.Next() {
		var sbom SbomRow
		if err := rows.Scan(&sbom.ID, &sbom.DocumentID, &sbom.Location, &sbom.Sha256,
			&sbom.Title, &sbom.Published, &sbom.CreatedAt); err != nil {
			return nil, storageErr(op, err)
		}
		sboms = append(sboms, &sbom)
	}
	return sboms, rows.Err()
}

// =============================================================================
// CPE identities
// =============================================================================

// GetCpe fetches a CPE identity by URI, nil when absent.
func (s *Store) GetCpe(ctx context.Context, uri string) (*CpeRow, error) {
	const op = "storage.GetCpe"

	var row CpeRow
	err := s.db.QueryRowContext(ctx, `SELECT id, uri FROM cpe WHERE uri = ?`, uri).
		Scan(&row.ID, &row.URI)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(op, err)
	}
	return &row, nil
}

// ResolveCpe inserts (or fetches) a CPE identity for the URI.
func (s *Store) ResolveCpe(ctx context.Context, uri string) (*CpeRow, error) {
	const op = "storage.ResolveCpe"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cpe (uri) VALUES (?) ON CONFLICT(uri) DO NOTHING
	`, uri)
	if err != nil {
		return nil, storageErr(op, err)
	}
	return s.GetCpe(ctx, uri)
}

// =============================================================================
// Describes edges
// =============================================================================

// HasDescribesPackage reports whether any describes-package edge exists for
// the SBOM, regardless of which package it points at.
func (s *Store) HasDescribesPackage(ctx context.Context, sbomID int64) (bool, error) {
	const op = "storage.HasDescribesPackage"

	var one int64
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM sbom_describes_package WHERE sbom_id = ? LIMIT 1
	`, sbomID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storageErr(op, err)
	}
	return true, nil
}

// InsertDescribesPackage records an SBOM -> package describes edge.
func (s *Store) InsertDescribesPackage(ctx context.Context, sbomID, packageID int64) error {
	const op = "storage.InsertDescribesPackage"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sbom_describes_package (sbom_id, package_id) VALUES (?, ?)
		ON CONFLICT(sbom_id, package_id) DO NOTHING
	`, sbomID, packageID)
	return storageErr(op, err)
}

// DescribedPackageIDs returns the identities the SBOM describes.
func (s *Store) DescribedPackageIDs(ctx context.Context, sbomID int64) ([]int64, error) {
	return s.queryIDs(ctx, `
		SELECT package_id FROM sbom_describes_package WHERE sbom_id = ? ORDER BY package_id
	`, sbomID)
}

// HasDescribesCpe reports whether the (sbom, cpe) describes edge exists.
func (s *Store) HasDescribesCpe(ctx context.Context, sbomID, cpeID int64) (bool, error) {
	const op = "storage.HasDescribesCpe"

	var one int64
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM sbom_describes_cpe WHERE sbom_id = ? AND cpe_id = ? LIMIT 1
	`, sbomID, cpeID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storageErr(op, err)
	}
	return true, nil
}

// InsertDescribesCpe records an SBOM -> CPE describes edge.
func (s *Store) InsertDescribesCpe(ctx context.Context, sbomID, cpeID int64) error {
	const op = "storage.InsertDescribesCpe"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sbom_describes_cpe (sbom_id, cpe_id) VALUES (?, ?)
		ON CONFLICT(sbom_id, cpe_id) DO NOTHING
	`, sbomID, cpeID)
	return storageErr(op, err)
}

// DescribedCpes returns the CPEs the SBOM describes.
func (s *Store) DescribedCpes(ctx context.Context, sbomID int64) ([]*CpeRow, error) {
	const op = "storage.DescribedCpes"

	rows, err := s.db.QueryContext(ctx, `
		SELECT cpe.id, cpe.uri FROM cpe
		INNER JOIN sbom_describes_cpe sdc ON sdc.cpe_id = cpe.id
		WHERE sdc.sbom_id = ?
		ORDER BY cpe.id
	`, sbomID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var cpes []*CpeRow
	for rows.Next() {
		var row CpeRow
		if err := rows.Scan(&row.ID, &row.URI); err != nil {
			return nil, storageErr(op, err)
		}
		cpes = append(cpes, &row)
	}
	return cpes, rows.Err()
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	const op = "storage.queryIDs"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr(op, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
