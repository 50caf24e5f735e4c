package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/exploopio/vulngraph/pkg/errors"
	"github.com/exploopio/vulngraph/pkg/purl"
)

// PackageRow is one persisted package identity.
type PackageRow struct {
	ID         int64
	Type       string
	Namespace  sql.NullString
	Name       string
	Version    string
	Qualifiers map[string]string
	CreatedAt  time.Time
}

// FindPackages returns all identities matching the coordinate quadruple,
// qualifiers included, so the caller can apply set-equality matching.
// A nil namespace matches only rows with a null namespace.
func (s *Store) FindPackages(ctx context.Context, pkgType string, namespace *string, name, version string) ([]*PackageRow, error) {
	const op = "storage.FindPackages"

	query := `
		SELECT id, package_type, package_namespace, package_name, version, created_at
		FROM package
		WHERE package_type = ? AND package_name = ? AND version = ?`
	args := []interface{}{pkgType, name, version}

	if namespace != nil {
		query += ` AND package_namespace = ?`
		args = append(args, *namespace)
	} else {
		query += ` AND package_namespace IS NULL`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var found []*PackageRow
	for rows.Next() {
		var pkg PackageRow
		if err := rows.Scan(&pkg.ID, &pkg.Type, &pkg.Namespace, &pkg.Name, &pkg.Version, &pkg.CreatedAt); err != nil {
			return nil, storageErr(op, err)
		}
		found = append(found, &pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}

	for _, pkg := range found {
		if err := s.loadQualifiers(ctx, pkg); err != nil {
			return nil, err
		}
	}

	return found, nil
}

// InsertPackage persists a new identity and one row per qualifier.
// Returns ErrConflict when a concurrent insert won the uniqueness race;
// the caller resolves that by re-querying.
func (s *Store) InsertPackage(ctx context.Context, pkgType string, namespace *string, name, version string, qualifiers map[string]string) (*PackageRow, error) {
	const op = "storage.InsertPackage"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer tx.Rollback()

	var ns interface{}
	if namespace != nil {
		ns = *namespace
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO package (package_type, package_namespace, package_name, version, qualifiers)
		VALUES (?, ?, ?, ?, ?)
	`, pkgType, ns, name, version, purl.EncodeQualifiers(qualifiers))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.ErrConflict
		}
		return nil, storageErr(op, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, storageErr(op, err)
	}

	for k, v := range qualifiers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO package_qualifier (package_id, key, value) VALUES (?, ?, ?)
		`, id, k, v); err != nil {
			return nil, storageErr(op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, errors.ErrConflict
		}
		return nil, storageErr(op, err)
	}

	pkg := &PackageRow{
		ID:        id,
		Type:      pkgType,
		Name:      name,
		Version:   version,
		CreatedAt: time.Now(),
	}
	if namespace != nil {
		pkg.Namespace = sql.NullString{String: *namespace, Valid: true}
	}
	if len(qualifiers) > 0 {
		pkg.Qualifiers = make(map[string]string, len(qualifiers))
		for k, v := range qualifiers {
			pkg.Qualifiers[k] = v
		}
	}
	return pkg, nil
}

// GetPackageByID fetches one identity, nil when absent.
func (s *Store) GetPackageByID(ctx context.Context, id int64) (*PackageRow, error) {
	const op = "storage.GetPackageByID"

	var pkg PackageRow
	err := s.db.QueryRowContext(ctx, `
		SELECT id, package_type, package_namespace, package_name, version, created_at
		FROM package WHERE id = ?
	`, id).Scan(&pkg.ID, &pkg.Type, &pkg.Namespace, &pkg.Name, &pkg.Version, &pkg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(op, err)
	}

	if err := s.loadQualifiers(ctx, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// GetPackagesByIDs fetches a batch of identities in one query pass,
// keyed by id. Absent ids are simply missing from the result.
func (s *Store) GetPackagesByIDs(ctx context.Context, ids []int64) (map[int64]*PackageRow, error) {
	const op = "storage.GetPackagesByIDs"

	result := make(map[int64]*PackageRow, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, package_type, package_namespace, package_name, version, created_at
		FROM package WHERE id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var pkg PackageRow
		if err := rows.Scan(&pkg.ID, &pkg.Type, &pkg.Namespace, &pkg.Name, &pkg.Version, &pkg.CreatedAt); err != nil {
			return nil, storageErr(op, err)
		}
		result[pkg.ID] = &pkg
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}

	qrows, err := s.db.QueryContext(ctx, `
		SELECT package_id, key, value
		FROM package_qualifier WHERE package_id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer qrows.Close()

	for qrows.Next() {
		var pkgID int64
		var k, v string
		if err := qrows.Scan(&pkgID, &k, &v); err != nil {
			return nil, storageErr(op, err)
		}
		if pkg, ok := result[pkgID]; ok {
			if pkg.Qualifiers == nil {
				pkg.Qualifiers = make(map[string]string)
			}
			pkg.Qualifiers[k] = v
		}
	}
	return result, qrows.Err()
}

// ListPackages returns every persisted identity.
func (s *Store) ListPackages(ctx context.Context) ([]*PackageRow, error) {
	const op = "storage.ListPackages"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, package_type, package_namespace, package_name, version, created_at
		FROM package ORDER BY id ASC
	`)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var packages []*PackageRow
	for rows.Next() {
		var pkg PackageRow
		if err := rows.Scan(&pkg.ID, &pkg.Type, &pkg.Namespace, &pkg.Name, &pkg.Version, &pkg.CreatedAt); err != nil {
			return nil, storageErr(op, err)
		}
		packages = append(packages, &pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}

	for _, pkg := range packages {
		if err := s.loadQualifiers(ctx, pkg); err != nil {
			return nil, err
		}
	}
	return packages, nil
}

// PackageTypes returns the distinct package types observed in the store.
func (s *Store) PackageTypes(ctx context.Context) ([]string, error) {
	return s.distinctStrings(ctx, `
		SELECT package_type FROM package GROUP BY package_type ORDER BY package_type
	`)
}

// PackageNamespaces returns the distinct non-null namespaces observed.
func (s *Store) PackageNamespaces(ctx context.Context) ([]string, error) {
	return s.distinctStrings(ctx, `
		SELECT package_namespace FROM package
		WHERE package_namespace IS NOT NULL
		GROUP BY package_namespace ORDER BY package_namespace
	`)
}

func (s *Store) distinctStrings(ctx context.Context, query string) ([]string, error) {
	const op = "storage.distinctStrings"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, storageErr(op, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (s *Store) loadQualifiers(ctx context.Context, pkg *PackageRow) error {
	const op = "storage.loadQualifiers"

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM package_qualifier WHERE package_id = ?
	`, pkg.ID)
	if err != nil {
		return storageErr(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return storageErr(op, err)
		}
		if pkg.Qualifiers == nil {
			pkg.Qualifiers = make(map[string]string)
		}
		pkg.Qualifiers[k] = v
	}
	return rows.Err()
}

// =============================================================================
// Dependency edges
// =============================================================================

// DependencyEdge is one directed depends-on relation between identities.
type DependencyEdge struct {
	DependentID  int64
	DependencyID int64
}

// InsertDependencyEdge records a depends-on edge; re-inserting an existing
// edge is a no-op. Reports whether a new edge was written.
func (s *Store) InsertDependencyEdge(ctx context.Context, dependentID, dependencyID int64) (bool, error) {
	const op = "storage.InsertDependencyEdge"

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO package_dependency (dependent_package_id, dependency_package_id)
		VALUES (?, ?)
		ON CONFLICT(dependent_package_id, dependency_package_id) DO NOTHING
	`, dependentID, dependencyID)
	if err != nil {
		return false, storageErr(op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, storageErr(op, err)
	}
	return affected > 0, nil
}

// DirectDependencyIDs returns the ids the root directly depends on.
func (s *Store) DirectDependencyIDs(ctx context.Context, rootID int64) ([]int64, error) {
	const op = "storage.DirectDependencyIDs"

	rows, err := s.db.QueryContext(ctx, `
		SELECT dependency_package_id FROM package_dependency
		WHERE dependent_package_id = ?
		ORDER BY dependency_package_id
	`, rootID)
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

// DependencyClosure returns every edge reachable from the root by following
// dependency edges forward. Computed as one recursive query; UNION
// deduplicates rows, so the recursion reaches a fixed point even on cyclic
// graphs.
func (s *Store) DependencyClosure(ctx context.Context, rootID int64) ([]DependencyEdge, error) {
	const op = "storage.DependencyClosure"

	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE transitive(dependent_package_id, dependency_package_id) AS (
			SELECT dependent_package_id, dependency_package_id
			FROM package_dependency
			WHERE dependent_package_id = ?
			UNION
			SELECT pd.dependent_package_id, pd.dependency_package_id
			FROM package_dependency pd
			INNER JOIN transitive t
				ON pd.dependent_package_id = t.dependency_package_id
		)
		SELECT dependent_package_id, dependency_package_id FROM transitive
	`, rootID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var edges []DependencyEdge
	for rows.Next() {
		var e DependencyEdge
		if err := rows.Scan(&e.DependentID, &e.DependencyID); err != nil {
			return nil, storageErr(op, err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
