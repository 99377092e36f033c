package postgres

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/veritasapp/qna-router-service/internal/domain"
)

// tierExpr ranks how specific an expertise row matches the requested topic:
// primary-tag (1), primary-area (2), secondary-tag (3), secondary-area (4).
const tierExpr = `MIN(CASE
	WHEN e.level = 'primary' AND e.tag_id IS NOT NULL THEN 1
	WHEN e.level = 'primary' THEN 2
	WHEN e.tag_id IS NOT NULL THEN 3
	ELSE 4
END) AS tier`

// trustLevelExpr mirrors domain.TrustLevelOf so the ranking can sort by trust
// tier inside the database. Missing reputation records rank at the default
// score of 100.
const trustLevelExpr = `CASE
	WHEN COALESCE(r.score, 100) < 40 THEN 1
	WHEN COALESCE(r.score, 100) < 70 THEN 2
	WHEN COALESCE(r.score, 100) < 100 THEN 3
	WHEN COALESCE(r.score, 100) < 150 THEN 4
	ELSE 5
END AS trust_level`

type ExpertiseRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	sq  sq.StatementBuilderType
}

func NewExpertiseRepository(db *sqlx.DB, log *slog.Logger) *ExpertiseRepository {
	return &ExpertiseRepository{
		db:  db,
		log: log,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *ExpertiseRepository) Candidates(ctx context.Context, areaID int64, tagID *int64) ([]domain.Candidate, error) {
	const op = "internal.repository.postgres.Candidates"

	queryBuilder := r.sq.Select(
		"e.user_id",
		tierExpr,
		trustLevelExpr,
		"COALESCE(l.open_load, 0) AS open_load",
	).
		From("expertise e").
		LeftJoin("reputation_records r ON r.user_id = e.user_id").
		LeftJoin(`(
			SELECT assigned_to, COUNT(*) AS open_load
			FROM assignments
			WHERE status IN ('assigned', 'accepted')
			GROUP BY assigned_to
		) l ON l.assigned_to = e.user_id`).
		Where(sq.Eq{"e.area_id": areaID})

	if tagID != nil {
		queryBuilder = queryBuilder.Where(sq.Or{sq.Eq{"e.tag_id": *tagID}, sq.Eq{"e.tag_id": nil}})
	} else {
		queryBuilder = queryBuilder.Where(sq.Eq{"e.tag_id": nil})
	}

	query, args, err := queryBuilder.
		GroupBy("e.user_id", "r.score", "l.open_load").
		OrderBy("tier ASC", "trust_level DESC", "open_load ASC", "e.user_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var candidates []domain.Candidate
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		return nil, fmt.Errorf("%s: failed to execute query: %w", op, err)
	}

	return candidates, nil
}

func (r *ExpertiseRepository) AreaExists(ctx context.Context, areaID int64) (bool, error) {
	const op = "internal.repository.postgres.AreaExists"

	query, args, err := r.sq.Select("1").
		From("areas").
		Where(sq.Eq{"id": areaID}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var one int
	if err := r.db.GetContext(ctx, &one, query, args...); err != nil {
		if isNoRows(err) {
			return false, nil
		}

		return false, fmt.Errorf("%s: failed to execute query: %w", op, err)
	}

	return true, nil
}

func (r *ExpertiseRepository) TagExists(ctx context.Context, areaID, tagID int64) (bool, error) {
	const op = "internal.repository.postgres.TagExists"

	query, args, err := r.sq.Select("1").
		From("tags").
		Where(sq.Eq{"id": tagID, "area_id": areaID}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var one int
	if err := r.db.GetContext(ctx, &one, query, args...); err != nil {
		if isNoRows(err) {
			return false, nil
		}

		return false, fmt.Errorf("%s: failed to execute query: %w", op, err)
	}

	return true, nil
}

func (r *ExpertiseRepository) UpsertExpertise(ctx context.Context, tx *sqlx.Tx, e *domain.Expertise) error {
	const op = "internal.repository.postgres.UpsertExpertise"

	query, args, err := r.sq.Insert("expertise").
		Columns("user_id", "area_id", "tag_id", "level").
		Values(e.UserID, e.AreaID, e.TagID, e.Level).
		Suffix("ON CONFLICT (user_id, area_id, tag_id) DO UPDATE SET level = EXCLUDED.level").
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build insert query: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: failed to execute insert: %w", op, err)
	}

	return nil
}
