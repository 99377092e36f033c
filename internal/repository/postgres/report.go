package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/veritasapp/qna-router-service/internal/apperrors"
	"github.com/veritasapp/qna-router-service/internal/domain"
)

const reportColumns = "id, reporter_id, content_type, content_id, content_owner_id, reason, status, corroboration_count, priority, moderator_id, created_at, resolved_at"

type ReportRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	sq  sq.StatementBuilderType
}

func NewReportRepository(db *sqlx.DB, log *slog.Logger) *ReportRepository {
	return &ReportRepository{
		db:  db,
		log: log,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *ReportRepository) GetReportByID(ctx context.Context, ext sqlx.ExtContext, id int64) (*domain.ContentReport, error) {
	const op = "internal.repository.postgres.GetReportByID"

	query, args, err := r.sq.Select(reportColumns).
		From("content_reports").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var report domain.ContentReport
	if err := sqlx.GetContext(ctx, ext, &report, query, args...); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%s: %w: report with id '%d'", op, apperrors.ErrNotFound, id)
		}

		return nil, fmt.Errorf("%s: failed to get report: %w", op, err)
	}

	return &report, nil
}

func (r *ReportRepository) GetOpenReportWithLock(ctx context.Context, tx *sqlx.Tx, contentType domain.ContentType, contentID int64) (*domain.ContentReport, error) {
	const op = "internal.repository.postgres.GetOpenReportWithLock"

	query, args, err := r.sq.Select(reportColumns).
		From("content_reports").
		Where(sq.Eq{
			"content_type": contentType,
			"content_id":   contentID,
			"status":       domain.ReportStatusPending,
		}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var report domain.ContentReport
	if err := tx.GetContext(ctx, &report, query, args...); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%s: %w: open report for %s '%d'", op, apperrors.ErrNotFound, contentType, contentID)
		}

		return nil, fmt.Errorf("%s: failed to get open report: %w", op, err)
	}

	return &report, nil
}

func (r *ReportRepository) CreateReport(ctx context.Context, tx *sqlx.Tx, report *domain.ContentReport) (int64, error) {
	const op = "internal.repository.postgres.CreateReport"

	query, args, err := r.sq.Insert("content_reports").
		Columns("reporter_id", "content_type", "content_id", "content_owner_id", "reason", "status", "corroboration_count", "priority", "created_at").
		Values(report.ReporterID, report.ContentType, report.ContentID, report.ContentOwnerID, report.Reason, report.Status, report.CorroborationCount, report.Priority, report.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build insert query: %w", op, err)
	}

	var id int64
	if err := tx.GetContext(ctx, &id, query, args...); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			// uq_reports_open: a concurrent intake created the open report first.
			return 0, fmt.Errorf("%s: %w: open report for %s '%d' already exists", op, apperrors.ErrAlreadyExists, report.ContentType, report.ContentID)
		}

		return 0, fmt.Errorf("%s: failed to execute insert: %w", op, err)
	}

	return id, nil
}

func (r *ReportRepository) AddCorroborator(ctx context.Context, tx *sqlx.Tx, reportID int64, reporterID string) (bool, error) {
	const op = "internal.repository.postgres.AddCorroborator"

	query, args, err := r.sq.Insert("report_corroborators").
		Columns("report_id", "reporter_id").
		Values(reportID, reporterID).
		Suffix("ON CONFLICT (report_id, reporter_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: failed to build insert query: %w", op, err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: failed to execute insert: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: failed to read rows affected: %w", op, err)
	}

	return rowsAffected == 1, nil
}

func (r *ReportRepository) CorroboratorsOf(ctx context.Context, ext sqlx.ExtContext, reportID int64) ([]string, error) {
	const op = "internal.repository.postgres.CorroboratorsOf"

	query, args, err := r.sq.Select("reporter_id").
		From("report_corroborators").
		Where(sq.Eq{"report_id": reportID}).
		OrderBy("reporter_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var reporters []string
	if err := sqlx.SelectContext(ctx, ext, &reporters, query, args...); err != nil {
		return nil, fmt.Errorf("%s: failed to select corroborators: %w", op, err)
	}

	return reporters, nil
}

func (r *ReportRepository) Corroborate(ctx context.Context, tx *sqlx.Tx, reportID int64, priority int) error {
	const op = "internal.repository.postgres.Corroborate"

	query, args, err := r.sq.Update("content_reports").
		Set("corroboration_count", sq.Expr("corroboration_count + 1")).
		Set("priority", priority).
		Where(sq.Eq{"id": reportID, "status": domain.ReportStatusPending}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: failed to execute update: %w", op, err)
	}

	if rowsAffected, err := res.RowsAffected(); err == nil && rowsAffected == 0 {
		return fmt.Errorf("%s: %w: pending report with id '%d'", op, apperrors.ErrNotFound, reportID)
	}

	return nil
}

func (r *ReportRepository) ClaimNext(ctx context.Context, tx *sqlx.Tx, moderatorID string) (*domain.ContentReport, error) {
	const op = "internal.repository.postgres.ClaimNext"

	// Single-row claim: SKIP LOCKED keeps concurrent moderators from racing
	// over the same report, each call claims at most one distinct row.
	query, args, err := r.sq.Update("content_reports").
		Set("status", domain.ReportStatusReviewing).
		Set("moderator_id", moderatorID).
		Where(sq.Expr(`id = (
			SELECT id FROM content_reports
			WHERE status = 'pending'
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)`)).
		Suffix("RETURNING " + reportColumns).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	var report domain.ContentReport
	if err := tx.GetContext(ctx, &report, query, args...); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%s: %w: no pending reports", op, apperrors.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: failed to claim report: %w", op, err)
	}

	return &report, nil
}

func (r *ReportRepository) ResolveCAS(ctx context.Context, tx *sqlx.Tx, reportID int64, moderatorID string, decision domain.ReportStatus, at time.Time) (bool, error) {
	const op = "internal.repository.postgres.ResolveCAS"

	query, args, err := r.sq.Update("content_reports").
		Set("status", decision).
		Set("resolved_at", at).
		Where(sq.Eq{
			"id":           reportID,
			"status":       domain.ReportStatusReviewing,
			"moderator_id": moderatorID,
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: failed to execute update: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: failed to read rows affected: %w", op, err)
	}

	return rowsAffected == 1, nil
}

func (r *ReportRepository) QueueDepth(ctx context.Context, ext sqlx.ExtContext) (int, error) {
	const op = "internal.repository.postgres.QueueDepth"

	query, args, err := r.sq.Select("COUNT(*)").
		From("content_reports").
		Where(sq.Eq{"status": domain.ReportStatusPending}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var depth int
	if err := sqlx.GetContext(ctx, ext, &depth, query, args...); err != nil {
		return 0, fmt.Errorf("%s: failed to execute query: %w", op, err)
	}

	return depth, nil
}
