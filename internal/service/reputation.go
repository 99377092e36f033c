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
)

// ContentRef points a ledger entry at the content that caused it.
type ContentRef struct {
	Type domain.ContentType
	ID   int64
}

// ReputationLedger is the append-only score store. Every mutation goes
// through a history entry; the cached score is always the prefix sum of
// history on top of the default.
type ReputationLedger interface {
	// Apply appends a ledger entry and returns the new score. Replaying the
	// same (sourceEventID, reason) is a no-op returning the current score.
	// When the directory does not know the user, the entry is parked for
	// retry and apperrors.ErrUnknownUser is returned.
	Apply(ctx context.Context, userID string, reason domain.ReputationReason, ref *ContentRef, sourceEventID string) (int, error)

	// ScoreOf returns the current score, or the default for users with no
	// record yet.
	ScoreOf(ctx context.Context, userID string) (int, error)

	// TrustLevelOf derives the 1..5 tier from the current score.
	TrustLevelOf(ctx context.Context, userID string) (int, error)
}

var _ ReputationLedger = (*ReputationLedgerImpl)(nil)

type ReputationLedgerImpl struct {
	BaseService
	ext       sqlx.ExtContext
	repo      repository.ReputationRepository
	directory external.Directory
	retryWait time.Duration
}

// NewReputationLedger wires the ledger. ext is the connection used for
// read-only lookups outside transactions; in production it is the same
// *sqlx.DB as db.
func NewReputationLedger(
	db Transactor,
	ext sqlx.ExtContext,
	log *slog.Logger,
	repo repository.ReputationRepository,
	directory external.Directory,
	retryWait time.Duration,
) *ReputationLedgerImpl {
	return &ReputationLedgerImpl{
		BaseService: NewBaseService(db, log),
		ext:         ext,
		repo:        repo,
		directory:   directory,
		retryWait:   retryWait,
	}
}

func (s *ReputationLedgerImpl) Apply(ctx context.Context, userID string, reason domain.ReputationReason, ref *ContentRef, sourceEventID string) (int, error) {
	const op = "internal.service.reputation.Apply"

	var (
		newScore int
		applyErr error
	)

	err := s.transaction(ctx, op, func(tx *sqlx.Tx) error {
		var err error

		newScore, err = s.ApplyInTx(ctx, tx, userID, reason, ref, sourceEventID)
		if err != nil {
			// An unknown user parks a retry row that must still commit.
			if errors.Is(err, apperrors.ErrUnknownUser) {
				applyErr = err
				return nil
			}

			return err
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	if applyErr != nil {
		return 0, fmt.Errorf("%s: %w", op, applyErr)
	}

	return newScore, nil
}

// ApplyInTx runs the ledger append inside a caller-owned transaction so
// moderation resolutions commit atomically with their score effects.
func (s *ReputationLedgerImpl) ApplyInTx(ctx context.Context, tx *sqlx.Tx, userID string, reason domain.ReputationReason, ref *ContentRef, sourceEventID string) (int, error) {
	const op = "internal.service.reputation.ApplyInTx"

	delta, ok := domain.DeltaFor(reason)
	if !ok {
		return 0, fmt.Errorf("%s: %w: unknown reputation reason '%s'", op, apperrors.ErrValidation, reason)
	}

	if _, err := s.directory.GetUser(ctx, userID); err != nil {
		if errors.Is(err, apperrors.ErrUnknownUser) {
			// Never drop a ledger entry: park it for the worker to retry.
			if parkErr := s.parkRetry(ctx, tx, userID, reason, ref, sourceEventID, time.Now().UTC()); parkErr != nil {
				return 0, parkErr
			}

			reputationRetriesParked.Inc()

			return 0, fmt.Errorf("%s: %w", op, err)
		}

		return 0, fmt.Errorf("%s: directory lookup failed: %w", op, err)
	}

	return s.appendTx(ctx, tx, userID, reason, delta, ref, sourceEventID)
}

// applyDirectTx is ApplyInTx without the parking fallback: a still-unknown
// user surfaces apperrors.ErrUnknownUser to the caller, which owns the retry
// bookkeeping.
func (s *ReputationLedgerImpl) applyDirectTx(ctx context.Context, tx *sqlx.Tx, userID string, reason domain.ReputationReason, ref *ContentRef, sourceEventID string) (int, error) {
	const op = "internal.service.reputation.applyDirectTx"

	delta, ok := domain.DeltaFor(reason)
	if !ok {
		return 0, fmt.Errorf("%s: %w: unknown reputation reason '%s'", op, apperrors.ErrValidation, reason)
	}

	if _, err := s.directory.GetUser(ctx, userID); err != nil {
		if errors.Is(err, apperrors.ErrUnknownUser) {
			return 0, fmt.Errorf("%s: %w", op, err)
		}

		return 0, fmt.Errorf("%s: directory lookup failed: %w", op, err)
	}

	return s.appendTx(ctx, tx, userID, reason, delta, ref, sourceEventID)
}

func (s *ReputationLedgerImpl) appendTx(ctx context.Context, tx *sqlx.Tx, userID string, reason domain.ReputationReason, delta int, ref *ContentRef, sourceEventID string) (int, error) {
	const op = "internal.service.reputation.appendTx"

	now := time.Now().UTC()

	if err := s.repo.EnsureRecord(ctx, tx, userID, now); err != nil {
		return 0, fmt.Errorf("%s: failed to ensure record: %w", op, err)
	}

	score, err := s.repo.GetScoreWithLock(ctx, tx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to lock record: %w", op, err)
	}

	// The soft cap clamps the delta before it reaches the history table, so
	// the persisted entry is the effective one and replaying the ledger
	// always reproduces the cached score.
	if score+delta > domain.ScoreSoftCap {
		delta = domain.ScoreSoftCap - score
	}

	entry := &domain.ReputationEntry{
		UserID:        userID,
		Delta:         delta,
		Reason:        reason,
		SourceEventID: sourceEventID,
		CreatedAt:     now,
	}
	if ref != nil {
		entry.ContentType = &ref.Type
		entry.ContentID = &ref.ID
	}

	inserted, err := s.repo.InsertEntry(ctx, tx, entry)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to append history: %w", op, err)
	}

	if !inserted {
		// Replay of an already-applied event: report the current score.
		return score, nil
	}

	newScore, err := s.repo.ApplyDelta(ctx, tx, userID, delta, reason, now)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to apply delta: %w", op, err)
	}

	return newScore, nil
}

func (s *ReputationLedgerImpl) parkRetry(ctx context.Context, tx *sqlx.Tx, userID string, reason domain.ReputationReason, ref *ContentRef, sourceEventID string, now time.Time) error {
	const op = "internal.service.reputation.parkRetry"

	retry := &domain.ReputationRetry{
		UserID:        userID,
		Reason:        reason,
		SourceEventID: sourceEventID,
		CreatedAt:     now,
		NextAttemptAt: now.Add(s.retryWait),
	}
	if ref != nil {
		retry.ContentType = &ref.Type
		retry.ContentID = &ref.ID
	}

	if err := s.repo.ParkRetry(ctx, tx, retry); err != nil {
		return fmt.Errorf("%s: failed to park retry: %w", op, err)
	}

	return nil
}

func (s *ReputationLedgerImpl) ScoreOf(ctx context.Context, userID string) (int, error) {
	const op = "internal.service.reputation.ScoreOf"

	record, err := s.repo.GetRecord(ctx, s.ext, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Records are created lazily; absence means the default score.
			return domain.DefaultScore, nil
		}

		return 0, fmt.Errorf("%s: failed to get record: %w", op, err)
	}

	return record.Score, nil
}

func (s *ReputationLedgerImpl) TrustLevelOf(ctx context.Context, userID string) (int, error) {
	score, err := s.ScoreOf(ctx, userID)
	if err != nil {
		return 0, err
	}

	return domain.TrustLevelOf(score), nil
}
