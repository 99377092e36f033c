package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/veritasapp/qna-router-service/internal/apperrors"
	"github.com/veritasapp/qna-router-service/internal/domain"
	"github.com/veritasapp/qna-router-service/internal/external"
	"github.com/veritasapp/qna-router-service/internal/repository"
	"github.com/veritasapp/qna-router-service/pkg/logger/sl"
)

// FileOutcome tells the reporter what their report became at intake.
type FileOutcome string

const (
	FileOutcomeCreated      FileOutcome = "created"
	FileOutcomeCorroborated FileOutcome = "corroborated"
	FileOutcomeDuplicate    FileOutcome = "duplicate"
)

// ModerationQueue is the report intake, the claim queue and the resolution
// path. Resolutions commit atomically with their reputation effects.
type ModerationQueue interface {
	// FileReport files or corroborates a report against a content item. A
	// second report on the same open content collapses into a corroboration;
	// a repeat by the same reporter is a duplicate no-op.
	FileReport(ctx context.Context, reporterID string, contentType domain.ContentType, contentID int64, reason domain.ReportReason) (*domain.ContentReport, FileOutcome, error)

	// ClaimNext hands the moderator the highest-priority pending report.
	// Returns (nil, nil) when the queue is empty.
	ClaimNext(ctx context.Context, moderatorID string) (*domain.ContentReport, error)

	// Resolve finishes a claimed report and applies the reputation verdicts.
	// Repeating the same decision on an already-resolved report is a no-op.
	Resolve(ctx context.Context, reportID int64, moderatorID string, decision domain.ReportStatus) (*domain.ContentReport, error)

	// QueueDepth reports the number of pending reports.
	QueueDepth(ctx context.Context) (int, error)
}

type ModerationQueueImpl struct {
	BaseService
	ext      sqlx.ExtContext
	reports  repository.ReportRepository
	ledger   *ReputationLedgerImpl
	content  external.ContentStore
	director external.Directory
	notifier external.Notifier
}

func NewModerationQueue(
	db Transactor,
	ext sqlx.ExtContext,
	log *slog.Logger,
	reports repository.ReportRepository,
	ledger *ReputationLedgerImpl,
	content external.ContentStore,
	directory external.Directory,
	notifier external.Notifier,
) *ModerationQueueImpl {
	return &ModerationQueueImpl{
		BaseService: NewBaseService(db, log),
		ext:         ext,
		reports:     reports,
		ledger:      ledger,
		content:     content,
		director:    directory,
		notifier:    notifier,
	}
}

func (s *ModerationQueueImpl) FileReport(ctx context.Context, reporterID string, contentType domain.ContentType, contentID int64, reason domain.ReportReason) (*domain.ContentReport, FileOutcome, error) {
	const op = "internal.service.moderation.FileReport"
	log := s.log.With(slog.String("op", op), slog.String("reporter_id", reporterID))

	if !reason.Valid() {
		return nil, "", fmt.Errorf("%s: %w: unknown report reason '%s'", op, apperrors.ErrValidation, reason)
	}

	if !contentType.Valid() {
		return nil, "", fmt.Errorf("%s: %w: unknown content type '%s'", op, apperrors.ErrValidation, contentType)
	}

	if _, err := s.director.GetUser(ctx, reporterID); err != nil {
		return nil, "", fmt.Errorf("%s: reporter lookup failed: %w", op, err)
	}

	item, err := s.content.Resolve(ctx, contentType, contentID)
	if err != nil {
		return nil, "", fmt.Errorf("%s: content lookup failed: %w", op, err)
	}

	if item.OwnerID == reporterID {
		return nil, "", fmt.Errorf("%s: %w: content '%d' belongs to the reporter", op, apperrors.ErrSelfReport, contentID)
	}

	ownerTrust, err := s.ledger.TrustLevelOf(ctx, item.OwnerID)
	if err != nil {
		return nil, "", fmt.Errorf("%s: owner trust lookup failed: %w", op, err)
	}

	reporterTrust, err := s.ledger.TrustLevelOf(ctx, reporterID)
	if err != nil {
		return nil, "", fmt.Errorf("%s: reporter trust lookup failed: %w", op, err)
	}

	var (
		report  *domain.ContentReport
		outcome FileOutcome
	)

	err = s.transaction(ctx, op, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()

		open, err := s.reports.GetOpenReportWithLock(ctx, tx, contentType, contentID)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		if open != nil {
			added, err := s.reports.AddCorroborator(ctx, tx, open.ID, reporterID)
			if err != nil {
				return err
			}

			if !added {
				report, outcome = open, FileOutcomeDuplicate
				return nil
			}

			// The reporter-trust discount always follows the original filer,
			// so a low-trust latecomer cannot down-rank an open report.
			originalTrust, err := s.ledger.TrustLevelOf(ctx, open.ReporterID)
			if err != nil {
				return fmt.Errorf("original reporter trust lookup failed: %w", err)
			}

			open.CorroborationCount++
			open.Priority = reportPriority(open.Reason, open.CorroborationCount, ownerTrust, originalTrust)

			if err := s.reports.Corroborate(ctx, tx, open.ID, open.Priority); err != nil {
				return err
			}

			report, outcome = open, FileOutcomeCorroborated
			return nil
		}

		report = &domain.ContentReport{
			ReporterID:         reporterID,
			ContentType:        contentType,
			ContentID:          contentID,
			ContentOwnerID:     item.OwnerID,
			Reason:             reason,
			Status:             domain.ReportStatusPending,
			CorroborationCount: 1,
			Priority:           reportPriority(reason, 1, ownerTrust, reporterTrust),
			CreatedAt:          now,
		}

		reportID, err := s.reports.CreateReport(ctx, tx, report)
		if err != nil {
			// A concurrent first report for the same content slipped in
			// between the lock probe and our insert.
			if errors.Is(err, apperrors.ErrAlreadyExists) {
				return fmt.Errorf("%w: open report for content '%d' already exists", apperrors.ErrConflict, contentID)
			}

			return err
		}

		report.ID = reportID

		if _, err := s.reports.AddCorroborator(ctx, tx, reportID, reporterID); err != nil {
			return err
		}

		outcome = FileOutcomeCreated
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	reportsFiledTotal.WithLabelValues(string(outcome)).Inc()
	s.refreshQueueDepth(ctx)

	log.Info("report filed",
		slog.Int64("report_id", report.ID),
		slog.String("outcome", string(outcome)),
		slog.Int("priority", report.Priority))

	return report, outcome, nil
}

// reportPriority orders the moderation queue. Severity dominates,
// corroboration escalates, low-trust owners surface faster, and low-trust
// reporters are slightly discounted. Floored at 1 so nothing sorts below
// the queue.
func reportPriority(reason domain.ReportReason, corroboration, ownerTrust, reporterTrust int) int {
	if ownerTrust < 1 {
		ownerTrust = 1
	}

	priority := reason.Severity()*10 + corroboration*5 + 20/ownerTrust

	if reporterTrust <= 2 {
		priority -= 5
	}

	if priority < 1 {
		priority = 1
	}

	return priority
}

func (s *ModerationQueueImpl) ClaimNext(ctx context.Context, moderatorID string) (*domain.ContentReport, error) {
	const op = "internal.service.moderation.ClaimNext"

	user, err := s.director.GetUser(ctx, moderatorID)
	if err != nil {
		return nil, fmt.Errorf("%s: moderator lookup failed: %w", op, err)
	}

	if !user.IsAdmin {
		return nil, fmt.Errorf("%s: %w: user '%s' is not a moderator", op, apperrors.ErrForbidden, moderatorID)
	}

	var report *domain.ContentReport

	err = s.transaction(ctx, op, func(tx *sqlx.Tx) error {
		var err error

		report, err = s.reports.ClaimNext(ctx, tx, moderatorID)

		return err
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	s.refreshQueueDepth(ctx)

	s.log.Info("report claimed",
		slog.String("op", op),
		slog.Int64("report_id", report.ID),
		slog.String("moderator_id", moderatorID))

	return report, nil
}

func (s *ModerationQueueImpl) Resolve(ctx context.Context, reportID int64, moderatorID string, decision domain.ReportStatus) (*domain.ContentReport, error) {
	const op = "internal.service.moderation.Resolve"
	log := s.log.With(slog.String("op", op),
		slog.Int64("report_id", reportID), slog.String("moderator_id", moderatorID))

	if decision != domain.ReportStatusResolved && decision != domain.ReportStatusDismissed {
		return nil, fmt.Errorf("%s: %w: unknown decision '%s'", op, apperrors.ErrValidation, decision)
	}

	var (
		report    *domain.ContentReport
		reporters []string
	)

	err := s.transaction(ctx, op, func(tx *sqlx.Tx) error {
		var err error

		report, err = s.reports.GetReportByID(ctx, tx, reportID)
		if err != nil {
			return err
		}

		// Replaying the same decision returns the terminal report unchanged.
		if report.Status == decision {
			return nil
		}

		if report.Status != domain.ReportStatusReviewing {
			return fmt.Errorf("%s: %w", op, &apperrors.ReportConflictError{
				ReportID: reportID,
				Current:  string(report.Status),
			})
		}

		now := time.Now().UTC()

		ok, err := s.reports.ResolveCAS(ctx, tx, reportID, moderatorID, decision, now)
		if err != nil {
			return err
		}

		if !ok {
			return fmt.Errorf("%s: %w", op, &apperrors.ReportConflictError{
				ReportID: reportID,
				Current:  string(report.Status),
			})
		}

		report.Status = decision
		report.ResolvedAt = &now

		reporters, err = s.reports.CorroboratorsOf(ctx, tx, reportID)
		if err != nil {
			return err
		}

		switch decision {
		case domain.ReportStatusResolved:
			return s.applyResolvedVerdicts(ctx, tx, report, reporters)
		case domain.ReportStatusDismissed:
			return s.applyDismissedVerdicts(ctx, tx, report, reporters)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.refreshQueueDepth(ctx)

	log.Info("report resolved", slog.String("decision", string(decision)))

	for _, reporter := range reporters {
		external.LogError(s.log, s.notifier.Notify(ctx, reporter, external.EventReportResolved, map[string]any{
			"report_id": report.ID,
			"decision":  string(report.Status),
		}))
	}

	return report, nil
}

// applyResolvedVerdicts penalizes the content owner and rewards every
// corroborating reporter. Each verdict keys its ledger entry on the report
// id so re-running the resolution replays instead of double-applying.
func (s *ModerationQueueImpl) applyResolvedVerdicts(ctx context.Context, tx *sqlx.Tx, report *domain.ContentReport, reporters []string) error {
	const op = "internal.service.moderation.applyResolvedVerdicts"

	ref := &ContentRef{Type: report.ContentType, ID: report.ContentID}

	_, err := s.ledger.ApplyInTx(ctx, tx, report.ContentOwnerID,
		domain.ReasonContentRemoved, ref, fmt.Sprintf("report:%d:owner", report.ID))
	if err != nil && !errors.Is(err, apperrors.ErrUnknownUser) {
		return fmt.Errorf("%s: owner verdict failed: %w", op, err)
	}

	for _, reporter := range reporters {
		_, err := s.ledger.ApplyInTx(ctx, tx, reporter,
			domain.ReasonHelpfulFlagConfirmed, ref, fmt.Sprintf("report:%d:%s", report.ID, reporter))
		if err != nil && !errors.Is(err, apperrors.ErrUnknownUser) {
			return fmt.Errorf("%s: reporter verdict failed: %w", op, err)
		}
	}

	return nil
}

// applyDismissedVerdicts penalizes every corroborating reporter for a false
// report, except that a user's first dismissed report carries no score
// penalty; the counter still records it.
func (s *ModerationQueueImpl) applyDismissedVerdicts(ctx context.Context, tx *sqlx.Tx, report *domain.ContentReport, reporters []string) error {
	const op = "internal.service.moderation.applyDismissedVerdicts"

	ref := &ContentRef{Type: report.ContentType, ID: report.ContentID}

	for _, reporter := range reporters {
		record, err := s.ledger.repo.GetRecord(ctx, tx, reporter)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("%s: reporter record lookup failed: %w", op, err)
		}

		firstOffense := record == nil || record.FalseReports == 0

		if firstOffense {
			if err := s.recordFirstOffense(ctx, tx, reporter, ref, report.ID); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}

			continue
		}

		_, err = s.ledger.ApplyInTx(ctx, tx, reporter,
			domain.ReasonFalseReportFiled, ref, fmt.Sprintf("report:%d:%s", report.ID, reporter))
		if err != nil && !errors.Is(err, apperrors.ErrUnknownUser) {
			return fmt.Errorf("%s: reporter verdict failed: %w", op, err)
		}
	}

	return nil
}

// recordFirstOffense writes a zero-delta ledger entry so the false-report
// counter and the audit trail advance without touching the score.
func (s *ModerationQueueImpl) recordFirstOffense(ctx context.Context, tx *sqlx.Tx, reporter string, ref *ContentRef, reportID int64) error {
	now := time.Now().UTC()

	if err := s.ledger.repo.EnsureRecord(ctx, tx, reporter, now); err != nil {
		return err
	}

	entry := &domain.ReputationEntry{
		UserID:        reporter,
		Delta:         0,
		Reason:        domain.ReasonFalseReportFiled,
		ContentType:   &ref.Type,
		ContentID:     &ref.ID,
		SourceEventID: fmt.Sprintf("report:%d:%s", reportID, reporter),
		CreatedAt:     now,
	}

	inserted, err := s.ledger.repo.InsertEntry(ctx, tx, entry)
	if err != nil {
		return err
	}

	if !inserted {
		return nil
	}

	_, err = s.ledger.repo.ApplyDelta(ctx, tx, reporter, 0, domain.ReasonFalseReportFiled, now)

	return err
}

func (s *ModerationQueueImpl) QueueDepth(ctx context.Context) (int, error) {
	const op = "internal.service.moderation.QueueDepth"

	depth, err := s.reports.QueueDepth(ctx, s.ext)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return depth, nil
}

func (s *ModerationQueueImpl) refreshQueueDepth(ctx context.Context) {
	depth, err := s.reports.QueueDepth(ctx, s.ext)
	if err != nil {
		s.log.Warn("failed to refresh queue depth gauge", sl.Err(err))
		return
	}

	moderationQueueDepth.Set(float64(depth))
}
