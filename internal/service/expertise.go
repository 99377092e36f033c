package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/veritasapp/qna-router-service/internal/apperrors"
	"github.com/veritasapp/qna-router-service/internal/external"
	"github.com/veritasapp/qna-router-service/internal/repository"
)

// ExpertiseIndex ranks eligible experts for a topic. The returned order is
// computed fresh on every call, so load and trust changes re-rank immediately.
type ExpertiseIndex interface {
	// Candidates returns verified experts best-first. An empty slice means no
	// eligible expert exists; callers route the question into human triage.
	Candidates(ctx context.Context, areaID int64, tagID *int64) ([]string, error)
}

type ExpertiseIndexImpl struct {
	log       *slog.Logger
	expertise repository.ExpertiseRepository
	directory external.Directory
}

func NewExpertiseIndex(log *slog.Logger, expertise repository.ExpertiseRepository, directory external.Directory) *ExpertiseIndexImpl {
	return &ExpertiseIndexImpl{
		log:       log,
		expertise: expertise,
		directory: directory,
	}
}

func (s *ExpertiseIndexImpl) Candidates(ctx context.Context, areaID int64, tagID *int64) ([]string, error) {
	const op = "internal.service.expertise.Candidates"

	ranked, err := s.expertise.Candidates(ctx, areaID, tagID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to rank candidates: %w", op, err)
	}

	// Unverified users are excluded entirely, never ranked. Verification
	// comes from the directory only; the expertise rows carry no flag of
	// their own.
	eligible := make([]string, 0, len(ranked))

	for _, c := range ranked {
		user, err := s.directory.GetUser(ctx, c.UserID)
		if err != nil {
			if errors.Is(err, apperrors.ErrUnknownUser) {
				s.log.Warn("expertise row for user unknown to directory",
					slog.String("user_id", c.UserID))
				continue
			}

			return nil, fmt.Errorf("%s: directory lookup failed: %w", op, err)
		}

		if !user.Verified {
			continue
		}

		eligible = append(eligible, c.UserID)
	}

	if len(eligible) == 0 {
		s.log.Info("no eligible expert", slog.Int64("area_id", areaID))
	}

	return eligible, nil
}
