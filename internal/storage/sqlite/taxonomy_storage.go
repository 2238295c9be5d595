package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/models"
)

//go:embed seeds.yaml
var seedData []byte

type taxonomySeeds struct {
	Segments      []*models.Segment      `yaml:"segments"`
	Organizations []*models.Organization `yaml:"organizations"`
}

// TaxonomyStore reads segment and organization roots, seeding the default
// taxonomy on first access when both tables are empty.
type TaxonomyStore struct {
	s      *DB
	logger arbor.ILogger

	seedOnce sync.Once
	seedErr  error
}

// NewTaxonomyStore creates a taxonomy store.
func NewTaxonomyStore(s *DB, logger arbor.ILogger) *TaxonomyStore {
	return &TaxonomyStore{s: s, logger: logger}
}

// ensureSeeded inserts the default taxonomy once per process. Inserts are
// INSERT OR IGNORE so concurrent processes stay idempotent.
func (t *TaxonomyStore) ensureSeeded(ctx context.Context) error {
	t.seedOnce.Do(func() {
		t.seedErr = t.seed(ctx)
	})
	return t.seedErr
}

func (t *TaxonomyStore) seed(ctx context.Context) error {
	var seeds taxonomySeeds
	if err := yaml.Unmarshal(seedData, &seeds); err != nil {
		return common.NewError(common.ErrInternal, "failed to parse taxonomy seeds").WithCause(err)
	}

	tx, err := t.s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to begin transaction").WithCause(err)
	}
	defer tx.Rollback()

	for _, segment := range seeds.Segments {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO segments (id, code, name, color) VALUES (?, ?, ?, ?)`,
			segment.ID, segment.Code, segment.Name, segment.Color)
		if err != nil {
			return common.NewError(common.ErrDatabaseError, "failed to seed segment").WithCause(err)
		}
	}
	for _, org := range seeds.Organizations {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO organizations (id, code, name, color) VALUES (?, ?, ?, ?)`,
			org.ID, org.Code, org.Name, org.Color)
		if err != nil {
			return common.NewError(common.ErrDatabaseError, "failed to seed organization").WithCause(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to commit taxonomy seeds").WithCause(err)
	}

	t.logger.Debug().
		Int("segments", len(seeds.Segments)).
		Int("organizations", len(seeds.Organizations)).
		Msg("Taxonomy seeded")
	return nil
}

// ListSegments returns every segment root ordered by code.
func (t *TaxonomyStore) ListSegments(ctx context.Context) ([]*models.Segment, error) {
	if err := t.ensureSeeded(ctx); err != nil {
		return nil, err
	}

	rows, err := t.s.db.QueryContext(ctx,
		`SELECT id, code, name, color FROM segments ORDER BY code`)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to list segments").WithCause(err)
	}
	defer rows.Close()

	var segments []*models.Segment
	for rows.Next() {
		var s models.Segment
		var color sql.NullString
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &color); err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to scan segment").WithCause(err)
		}
		s.Color = color.String
		segments = append(segments, &s)
	}
	return segments, rows.Err()
}

// ListOrganizations returns every organization root ordered by code.
func (t *TaxonomyStore) ListOrganizations(ctx context.Context) ([]*models.Organization, error) {
	if err := t.ensureSeeded(ctx); err != nil {
		return nil, err
	}

	rows, err := t.s.db.QueryContext(ctx,
		`SELECT id, code, name, color FROM organizations ORDER BY code`)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to list organizations").WithCause(err)
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		var o models.Organization
		var color sql.NullString
		if err := rows.Scan(&o.ID, &o.Code, &o.Name, &color); err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to scan organization").WithCause(err)
		}
		o.Color = color.String
		orgs = append(orgs, &o)
	}
	return orgs, rows.Err()
}

// SegmentByCode returns one segment root, or NOT_FOUND.
func (t *TaxonomyStore) SegmentByCode(ctx context.Context, code string) (*models.Segment, error) {
	if err := t.ensureSeeded(ctx); err != nil {
		return nil, err
	}

	var s models.Segment
	var color sql.NullString
	err := t.s.db.QueryRowContext(ctx,
		`SELECT id, code, name, color FROM segments WHERE code = ?`, code).
		Scan(&s.ID, &s.Code, &s.Name, &color)
	if err == sql.ErrNoRows {
		return nil, common.NewError(common.ErrNotFound, fmt.Sprintf("segment %s not found", code))
	}
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to read segment").WithCause(err)
	}
	s.Color = color.String
	return &s, nil
}

// OrganizationByCode returns one organization root, or NOT_FOUND.
func (t *TaxonomyStore) OrganizationByCode(ctx context.Context, code string) (*models.Organization, error) {
	if err := t.ensureSeeded(ctx); err != nil {
		return nil, err
	}

	var o models.Organization
	var color sql.NullString
	err := t.s.db.QueryRowContext(ctx,
		`SELECT id, code, name, color FROM organizations WHERE code = ?`, code).
		Scan(&o.ID, &o.Code, &o.Name, &color)
	if err == sql.ErrNoRows {
		return nil, common.NewError(common.ErrNotFound, fmt.Sprintf("organization %s not found", code))
	}
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to read organization").WithCause(err)
	}
	o.Color = color.String
	return &o, nil
}
