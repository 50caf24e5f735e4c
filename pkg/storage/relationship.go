package storage

import (
	"context"
)

// UpsertRelationship records one SBOM-scoped typed edge between two package
// identities with do-nothing-on-conflict semantics. Reports whether a new
// edge was written.
func (s *Store) UpsertRelationship(ctx context.Context, sbomID, leftID int64, relationship int, rightID int64) (bool, error) {
	const op = "storage.UpsertRelationship"

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO package_relates_to_package (sbom_id, left_package_id, relationship, right_package_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(sbom_id, left_package_id, relationship, right_package_id) DO NOTHING
	`, sbomID, leftID, relationship, rightID)
	if err != nil {
		return false, storageErr(op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, storageErr(op, err)
	}
	return affected > 0, nil
}

// RelatedLeftIDs returns the left-hand identities of the edges of one
// relationship kind pointing at the right-hand identity, within one SBOM.
// For "A DependencyOf B" this answers "the dependencies of B".
func (s *Store) RelatedLeftIDs(ctx context.Context, sbomID int64, relationship int, rightID int64) ([]int64, error) {
	return s.queryIDs(ctx, `
		SELECT left_package_id FROM package_relates_to_package
		WHERE sbom_id = ? AND relationship = ? AND right_package_id = ?
		ORDER BY left_package_id
	`, sbomID, relationship, rightID)
}

// RelationshipClosure returns the distinct identities reachable from the
// root by repeatedly following edges of the given kinds right-to-left,
// scoped to one SBOM. Computed as one recursive query; UNION reaches a
// fixed point even on cyclic edge sets. The root itself is not included.
func (s *Store) RelationshipClosure(ctx context.Context, sbomID int64, relationships []int, rootID int64) ([]int64, error) {
	const op = "storage.RelationshipClosure"

	if len(relationships) == 0 {
		return nil, nil
	}

	relArgs := make([]interface{}, len(relationships))
	for i, r := range relationships {
		relArgs[i] = r
	}
	in := placeholders(len(relationships))

	args := make([]interface{}, 0, 2*len(relationships)+2)
	args = append(args, sbomID)
	args = append(args, relArgs...)
	args = append(args, rootID)
	args = append(args, sbomID)
	args = append(args, relArgs...)

	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE related(left_package_id, right_package_id) AS (
			SELECT left_package_id, right_package_id
			FROM package_relates_to_package
			WHERE sbom_id = ? AND relationship IN (`+in+`) AND right_package_id = ?
			UNION
			SELECT p.left_package_id, p.right_package_id
			FROM package_relates_to_package p
			INNER JOIN related r ON p.right_package_id = r.left_package_id
			WHERE p.sbom_id = ? AND p.relationship IN (`+in+`)
		)
		SELECT DISTINCT left_package_id FROM related
	`, args...)
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

// CountRelationships returns the number of relates-to edges recorded for
// one SBOM.
func (s *Store) CountRelationships(ctx context.Context, sbomID int64) (int, error) {
	const op = "storage.CountRelationships"

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM package_relates_to_package WHERE sbom_id = ?
	`, sbomID).Scan(&count)
	if err != nil {
		return 0, storageErr(op, err)
	}
	return count, nil
}
