package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/ChemScreen/internal/domain/molecule"
	appErrors "github.com/turtacn/ChemScreen/pkg/errors"
	"github.com/turtacn/ChemScreen/pkg/types/common"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

const uniqueViolation = "23505"

// moleculeColumns is the canonical column list shared by every SELECT.
const moleculeColumns = `id, smiles, canonical_smiles, inchi_key, molecular_formula,
       name, synonyms, descriptors, fingerprints, created_at, updated_at, version`

// ─────────────────────────────────────────────────────────────────────────────
// MoleculeRepository
// ─────────────────────────────────────────────────────────────────────────────

// MoleculeRepository is the PostgreSQL implementation of molecule persistence.
// Descriptors and fingerprints are serialised as JSONB columns; synonyms use a
// native TEXT[] column.
type MoleculeRepository struct {
	pool   *pgxpool.Pool
	logger Logger
}

// NewMoleculeRepository constructs a ready-to-use MoleculeRepository.
func NewMoleculeRepository(pool *pgxpool.Pool, logger Logger) *MoleculeRepository {
	return &MoleculeRepository{pool: pool, logger: logger}
}

// ─────────────────────────────────────────────────────────────────────────────
// Save
// ─────────────────────────────────────────────────────────────────────────────

// Save persists a single molecule. A unique-key violation on inchi_key maps to
// the molecule-already-exists error so registration stays idempotent upstream.
func (r *MoleculeRepository) Save(ctx context.Context, m *molecule.Molecule) error {
	r.logger.Debug("MoleculeRepository.Save", "molecule_id", m.ID, "inchi_key", m.InChIKey)

	dto := m.ToDTO()
	descJSON, _ := json.Marshal(dto.Descriptors)
	fpJSON, _ := json.Marshal(dto.Fingerprints)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO molecules (
			id, smiles, canonical_smiles, inchi_key, molecular_formula,
			name, synonyms, descriptors, fingerprints,
			created_at, updated_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		dto.ID, dto.SMILES, dto.CanonicalSMILES, dto.InChIKey, dto.MolecularFormula,
		dto.Name, dto.Synonyms, descJSON, fpJSON,
		dto.CreatedAt, dto.UpdatedAt, dto.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return appErrors.New(appErrors.ErrCodeMoleculeAlreadyExists, "molecule already registered").
				WithDetailf("inchi_key=%s", dto.InChIKey)
		}
		r.logger.Error("MoleculeRepository.Save", "error", err)
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to insert molecule")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// BatchSave — bulk insert via pgx.CopyFrom
// ─────────────────────────────────────────────────────────────────────────────

// BatchSave inserts molecules in a single round-trip using the PostgreSQL
// COPY protocol, used when a corpus is imported wholesale.
func (r *MoleculeRepository) BatchSave(ctx context.Context, molecules []*molecule.Molecule) error {
	r.logger.Debug("MoleculeRepository.BatchSave", "count", len(molecules))

	if len(molecules) == 0 {
		return nil
	}

	columns := []string{
		"id", "smiles", "canonical_smiles", "inchi_key", "molecular_formula",
		"name", "synonyms", "descriptors", "fingerprints",
		"created_at", "updated_at", "version",
	}

	rows := make([][]interface{}, 0, len(molecules))
	for _, m := range molecules {
		dto := m.ToDTO()
		descJSON, _ := json.Marshal(dto.Descriptors)
		fpJSON, _ := json.Marshal(dto.Fingerprints)

		rows = append(rows, []interface{}{
			dto.ID, dto.SMILES, dto.CanonicalSMILES, dto.InChIKey, dto.MolecularFormula,
			dto.Name, dto.Synonyms, descJSON, fpJSON,
			dto.CreatedAt, dto.UpdatedAt, dto.Version,
		})
	}

	copyCount, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"molecules"},
		columns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		r.logger.Error("MoleculeRepository.BatchSave", "error", err)
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to batch insert molecules")
	}

	r.logger.Debug("MoleculeRepository.BatchSave: done", "inserted", copyCount)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Lookups
// ─────────────────────────────────────────────────────────────────────────────

func (r *MoleculeRepository) FindByID(ctx context.Context, id common.ID) (*molecule.Molecule, error) {
	r.logger.Debug("MoleculeRepository.FindByID", "id", id)

	return r.scanMolecule(r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM molecules WHERE id = $1`, moleculeColumns), id))
}

func (r *MoleculeRepository) FindByInChIKey(ctx context.Context, inchiKey string) (*molecule.Molecule, error) {
	r.logger.Debug("MoleculeRepository.FindByInChIKey", "inchi_key", inchiKey)

	return r.scanMolecule(r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM molecules WHERE inchi_key = $1`, moleculeColumns), inchiKey))
}

func (r *MoleculeRepository) FindByCanonicalSMILES(ctx context.Context, canonicalSMILES string) (*molecule.Molecule, error) {
	r.logger.Debug("MoleculeRepository.FindByCanonicalSMILES", "smiles", canonicalSMILES)

	return r.scanMolecule(r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM molecules WHERE canonical_smiles = $1`, moleculeColumns), canonicalSMILES))
}

// ─────────────────────────────────────────────────────────────────────────────
// Search — name fuzzy match with pagination
// ─────────────────────────────────────────────────────────────────────────────

func (r *MoleculeRepository) Search(ctx context.Context, name string, page common.Pagination) ([]*molecule.Molecule, int64, error) {
	r.logger.Debug("MoleculeRepository.Search", "name", name, "page", page.Page)

	var (
		whereClause string
		args        []interface{}
	)
	if name != "" {
		whereClause = "WHERE LOWER(name) LIKE $1 OR $2 = ANY(synonyms)"
		args = append(args, "%"+strings.ToLower(name)+"%", name)
	}

	var total int64
	if err := r.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM molecules %s", whereClause), args...,
	).Scan(&total); err != nil {
		r.logger.Error("MoleculeRepository.Search: count", "error", err)
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "count failed")
	}

	pageSize := page.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	dataSQL := fmt.Sprintf(`
		SELECT %s FROM molecules %s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d`, moleculeColumns, whereClause, pageSize, page.Offset())

	rows, err := r.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		r.logger.Error("MoleculeRepository.Search: query", "error", err)
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "search query failed")
	}
	defer rows.Close()

	molecules, err := r.scanMolecules(rows)
	return molecules, total, err
}

// ─────────────────────────────────────────────────────────────────────────────
// ListAll — stream the whole table as a screening corpus
// ─────────────────────────────────────────────────────────────────────────────

// ListAll loads every stored molecule, used to build an in-memory screening
// corpus when no external corpus file is supplied. limit 0 means unbounded.
func (r *MoleculeRepository) ListAll(ctx context.Context, limit int) ([]*molecule.Molecule, error) {
	r.logger.Debug("MoleculeRepository.ListAll", "limit", limit)

	sql := fmt.Sprintf(`SELECT %s FROM molecules ORDER BY created_at`, moleculeColumns)
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		r.logger.Error("MoleculeRepository.ListAll", "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to list molecules")
	}
	defer rows.Close()

	return r.scanMolecules(rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// Count
// ─────────────────────────────────────────────────────────────────────────────

func (r *MoleculeRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM molecules`).Scan(&count); err != nil {
		r.logger.Error("MoleculeRepository.Count", "error", err)
		return 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to count molecules")
	}
	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Update — optimistic locking on version
// ─────────────────────────────────────────────────────────────────────────────

func (r *MoleculeRepository) Update(ctx context.Context, m *molecule.Molecule) error {
	r.logger.Debug("MoleculeRepository.Update", "molecule_id", m.ID, "version", m.Version)

	dto := m.ToDTO()
	descJSON, _ := json.Marshal(dto.Descriptors)
	fpJSON, _ := json.Marshal(dto.Fingerprints)
	newVersion := dto.Version + 1

	tag, err := r.pool.Exec(ctx, `
		UPDATE molecules SET
			smiles=$1, canonical_smiles=$2, inchi_key=$3, molecular_formula=$4,
			name=$5, synonyms=$6, descriptors=$7, fingerprints=$8,
			updated_at=$9, version=$10
		WHERE id=$11 AND version=$12`,
		dto.SMILES, dto.CanonicalSMILES, dto.InChIKey, dto.MolecularFormula,
		dto.Name, dto.Synonyms, descJSON, fpJSON,
		time.Now().UTC(), newVersion,
		dto.ID, dto.Version,
	)
	if err != nil {
		r.logger.Error("MoleculeRepository.Update", "error", err)
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to update molecule")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.New(appErrors.ErrCodeConflict, "optimistic lock conflict: molecule version mismatch")
	}
	m.Version = newVersion
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete
// ─────────────────────────────────────────────────────────────────────────────

func (r *MoleculeRepository) Delete(ctx context.Context, id common.ID) error {
	r.logger.Debug("MoleculeRepository.Delete", "id", id)

	tag, err := r.pool.Exec(ctx, `DELETE FROM molecules WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("MoleculeRepository.Delete", "error", err)
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to delete molecule")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.New(appErrors.ErrCodeMoleculeNotFound, "molecule not found")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal scanners
// ─────────────────────────────────────────────────────────────────────────────

func (r *MoleculeRepository) scanMolecule(row pgx.Row) (*molecule.Molecule, error) {
	dto, err := scanMoleculeDTO(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, appErrors.New(appErrors.ErrCodeMoleculeNotFound, "molecule not found")
		}
		r.logger.Error("scanMolecule", "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to scan molecule")
	}
	return molecule.FromDTO(dto), nil
}

func (r *MoleculeRepository) scanMolecules(rows pgx.Rows) ([]*molecule.Molecule, error) {
	var molecules []*molecule.Molecule
	for rows.Next() {
		dto, err := scanMoleculeDTO(rows)
		if err != nil {
			r.logger.Error("scanMolecules", "error", err)
			return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to scan molecule row")
		}
		molecules = append(molecules, molecule.FromDTO(dto))
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "row iteration error")
	}
	return molecules, nil
}

func scanMoleculeDTO(row pgx.Row) (mtypes.MoleculeDTO, error) {
	var dto mtypes.MoleculeDTO
	var descJSON, fpJSON []byte

	err := row.Scan(
		&dto.ID, &dto.SMILES, &dto.CanonicalSMILES, &dto.InChIKey, &dto.MolecularFormula,
		&dto.Name, &dto.Synonyms, &descJSON, &fpJSON,
		&dto.CreatedAt, &dto.UpdatedAt, &dto.Version,
	)
	if err != nil {
		return dto, err
	}

	if len(descJSON) > 0 {
		_ = json.Unmarshal(descJSON, &dto.Descriptors)
	}
	if len(fpJSON) > 0 {
		_ = json.Unmarshal(fpJSON, &dto.Fingerprints)
	}
	return dto, nil
}
