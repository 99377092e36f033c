package service

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/veritasapp/qna-router-service/internal/apperrors"
	"github.com/veritasapp/qna-router-service/internal/domain"
	"github.com/veritasapp/qna-router-service/internal/external"
)

type moderationMocks struct {
	transactor *TransactorMock
	reports    *ReportRepositoryMock
	reputation *ReputationRepositoryMock
	content    *ContentStoreMock
	directory  *DirectoryMock
	notifier   *NotifierMock
}

func newModerationMocks() *moderationMocks {
	return &moderationMocks{
		transactor: new(TransactorMock),
		reports:    new(ReportRepositoryMock),
		reputation: new(ReputationRepositoryMock),
		content:    new(ContentStoreMock),
		directory:  new(DirectoryMock),
		notifier:   new(NotifierMock),
	}
}

func (m *moderationMocks) queue(t *testing.T) *ModerationQueueImpl {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ledger := NewReputationLedger(m.transactor, nil, logger, m.reputation, m.directory, time.Minute)

	return NewModerationQueue(m.transactor, nil, logger, m.reports, ledger, m.content, m.directory, m.notifier)
}

func (m *moderationMocks) assertExpectations(t *testing.T) {
	t.Helper()
	m.transactor.AssertExpectations(t)
	m.reports.AssertExpectations(t)
	m.reputation.AssertExpectations(t)
	m.content.AssertExpectations(t)
	m.directory.AssertExpectations(t)
	m.notifier.AssertExpectations(t)
}

func TestReportPriority(t *testing.T) {
	testCases := []struct {
		name          string
		reason        domain.ReportReason
		corroboration int
		ownerTrust    int
		reporterTrust int
		expected      int
	}{
		// abuse severity 5: 50 + 5 + 20/4 = 60
		{"abuse by trusted reporter", domain.ReportReasonAbuse, 1, 4, 4, 60},
		// low-trust owner surfaces faster: 50 + 5 + 20/1 = 75
		{"abuse against low-trust owner", domain.ReportReasonAbuse, 1, 1, 4, 75},
		// corroboration escalates: 50 + 15 + 5 = 70
		{"three corroborations", domain.ReportReasonAbuse, 3, 4, 4, 70},
		// low-trust reporter discounted: 10 + 5 + 5 - 5 = 15
		{"other reason low-trust reporter", domain.ReportReasonOther, 1, 4, 1, 15},
		// owner trust below the scale clamps to 1: 10 + 5 + 20 - 5 = 30
		{"owner trust clamped", domain.ReportReasonOther, 1, 0, 1, 30},
		{"spam baseline", domain.ReportReasonSpam, 1, 4, 3, 40},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, reportPriority(tc.reason, tc.corroboration, tc.ownerTrust, tc.reporterTrust))
		})
	}
}

func TestModerationQueueImpl_FileReport(t *testing.T) {
	ctx := context.Background()
	reporter := &external.User{ID: "reporter-1", Verified: true}
	content := &external.Content{OwnerID: "owner-1"}

	t.Run("first report creates a pending report", func(t *testing.T) {
		m := newModerationMocks()
		_, mockedTx, smock := newMockDBAndTx(t)
		smock.ExpectCommit()

		m.directory.On("GetUser", ctx, "reporter-1").Return(reporter, nil).Once()
		m.content.On("Resolve", ctx, domain.ContentTypeQuestionMessage, int64(5)).Return(content, nil).Once()
		m.reputation.On("GetRecord", ctx, nil, "owner-1").Return(nil, apperrors.ErrNotFound).Once()
		m.reputation.On("GetRecord", ctx, nil, "reporter-1").Return(nil, apperrors.ErrNotFound).Once()

		m.transactor.On("BeginTxx", mock.Anything, (*sql.TxOptions)(nil)).Return(mockedTx, nil).Once()
		m.reports.On("GetOpenReportWithLock", ctx, mockedTx, domain.ContentTypeQuestionMessage, int64(5)).Return(nil, apperrors.ErrNotFound).Once()
		m.reports.On("CreateReport", ctx, mockedTx, mock.MatchedBy(func(r *domain.ContentReport) bool {
			return r.ReporterID == "reporter-1" &&
				r.ContentOwnerID == "owner-1" &&
				r.Status == domain.ReportStatusPending &&
				r.CorroborationCount == 1
		})).Return(int64(7), nil).Once()
		m.reports.On("AddCorroborator", ctx, mockedTx, int64(7), "reporter-1").Return(true, nil).Once()
		m.reports.On("QueueDepth", ctx, nil).Return(1, nil).Once()

		report, outcome, err := m.queue(t).FileReport(ctx, "reporter-1", domain.ContentTypeQuestionMessage, 5, domain.ReportReasonAbuse)
		require.NoError(t, err)
		assert.Equal(t, FileOutcomeCreated, outcome)
		assert.Equal(t, int64(7), report.ID)
		// default trust is tier 4: 50 + 5 + 20/4 = 60
		assert.Equal(t, 60, report.Priority)

		m.assertExpectations(t)
	})

	t.Run("second reporter corroborates the open report", func(t *testing.T) {
		m := newModerationMocks()
		_, mockedTx, smock := newMockDBAndTx(t)
		smock.ExpectCommit()

		open := &domain.ContentReport{
			ID:                 7,
			ReporterID:         "reporter-1",
			ContentType:        domain.ContentTypeQuestionMessage,
			ContentID:          5,
			ContentOwnerID:     "owner-1",
			Reason:             domain.ReportReasonAbuse,
			Status:             domain.ReportStatusPending,
			CorroborationCount: 1,
			Priority:           60,
		}

		m.directory.On("GetUser", ctx, "reporter-2").Return(&external.User{ID: "reporter-2"}, nil).Once()
		m.content.On("Resolve", ctx, domain.ContentTypeQuestionMessage, int64(5)).Return(content, nil).Once()
		m.reputation.On("GetRecord", ctx, nil, "owner-1").Return(nil, apperrors.ErrNotFound).Once()
		m.reputation.On("GetRecord", ctx, nil, "reporter-2").Return(nil, apperrors.ErrNotFound).Once()
		m.reputation.On("GetRecord", ctx, nil, "reporter-1").Return(nil, apperrors.ErrNotFound).Once()

		m.transactor.On("BeginTxx", mock.Anything, (*sql.TxOptions)(nil)).Return(mockedTx, nil).Once()
		m.reports.On("GetOpenReportWithLock", ctx, mockedTx, domain.ContentTypeQuestionMessage, int64(5)).Return(open, nil).Once()
		m.reports.On("AddCorroborator", ctx, mockedTx, int64(7), "reporter-2").Return(true, nil).Once()
		// corroboration 2: 50 + 10 + 5 = 65
		m.reports.On("Corroborate", ctx, mockedTx, int64(7), 65).Return(nil).Once()
		m.reports.On("QueueDepth", ctx, nil).Return(1, nil).Once()

		report, outcome, err := m.queue(t).FileReport(ctx, "reporter-2", domain.ContentTypeQuestionMessage, 5, domain.ReportReasonAbuse)
		require.NoError(t, err)
		assert.Equal(t, FileOutcomeCorroborated, outcome)
		assert.Equal(t, 2, report.CorroborationCount)
		assert.Equal(t, 65, report.Priority)

		m.assertExpectations(t)
	})

	t.Run("low-trust latecomer does not discount the report", func(t *testing.T) {
		m := newModerationMocks()
		_, mockedTx, smock := newMockDBAndTx(t)
		smock.ExpectCommit()

		open := &domain.ContentReport{
			ID:                 7,
			ReporterID:         "reporter-1",
			ContentType:        domain.ContentTypeQuestionMessage,
			ContentID:          5,
			ContentOwnerID:     "owner-1",
			Reason:             domain.ReportReasonAbuse,
			Status:             domain.ReportStatusPending,
			CorroborationCount: 1,
			Priority:           60,
		}

		m.directory.On("GetUser", ctx, "reporter-2").Return(&external.User{ID: "reporter-2"}, nil).Once()
		m.content.On("Resolve", ctx, domain.ContentTypeQuestionMessage, int64(5)).Return(content, nil).Once()
		m.reputation.On("GetRecord", ctx, nil, "owner-1").Return(nil, apperrors.ErrNotFound).Once()
		// The corroborator sits in trust tier 1.
		m.reputation.On("GetRecord", ctx, nil, "reporter-2").Return(&domain.ReputationRecord{UserID: "reporter-2", Score: 30}, nil).Once()
		// The original reporter keeps the default tier, so no discount applies.
		m.reputation.On("GetRecord", ctx, nil, "reporter-1").Return(nil, apperrors.ErrNotFound).Once()

		m.transactor.On("BeginTxx", mock.Anything, (*sql.TxOptions)(nil)).Return(mockedTx, nil).Once()
		m.reports.On("GetOpenReportWithLock", ctx, mockedTx, domain.ContentTypeQuestionMessage, int64(5)).Return(open, nil).Once()
		m.reports.On("AddCorroborator", ctx, mockedTx, int64(7), "reporter-2").Return(true, nil).Once()
		// corroboration 2: 50 + 10 + 5 = 65, same as a trusted corroborator
		m.reports.On("Corroborate", ctx, mockedTx, int64(7), 65).Return(nil).Once()
		m.reports.On("QueueDepth", ctx, nil).Return(1, nil).Once()

		report, outcome, err := m.queue(t).FileReport(ctx, "reporter-2", domain.ContentTypeQuestionMessage, 5, domain.ReportReasonAbuse)
		require.NoError(t, err)
		assert.Equal(t, FileOutcomeCorroborated, outcome)
		assert.Equal(t, 65, report.Priority)

		m.assertExpectations(t)
	})

	t.Run("repeat report by the same reporter is a duplicate no-op", func(t *testing.T) {
		m := newModerationMocks()
		_, mockedTx, smock := newMockDBAndTx(t)
		smock.ExpectCommit()

		open := &domain.ContentReport{
			ID:                 7,
			Status:             domain.ReportStatusPending,
			CorroborationCount: 2,
			Priority:           65,
		}

		m.directory.On("GetUser", ctx, "reporter-1").Return(reporter, nil).Once()
		m.content.On("Resolve", ctx, domain.ContentTypeQuestionMessage, int64(5)).Return(content, nil).Once()
		m.reputation.On("GetRecord", ctx, nil, "owner-1").Return(nil, apperrors.ErrNotFound).Once()
		m.reputation.On("GetRecord", ctx, nil, "reporter-1").Return(nil, apperrors.ErrNotFound).Once()

		m.transactor.On("BeginTxx", mock.Anything, (*sql.TxOptions)(nil)).Return(mockedTx, nil).Once()
		m.reports.On("GetOpenReportWithLock", ctx, mockedTx, domain.ContentTypeQuestionMessage, int64(5)).Return(open, nil).Once()
		m.reports.On("AddCorroborator", ctx, mockedTx, int64(7), "reporter-1").Return(false, nil).Once()
		m.reports.On("QueueDepth", ctx, nil).Return(1, nil).Once()

		report, outcome, err := m.queue(t).FileReport(ctx, "reporter-1", domain.ContentTypeQuestionMessage, 5, domain.ReportReasonAbuse)
		require.NoError(t, err)
		assert.Equal(t, FileOutcomeDuplicate, outcome)
		assert.Equal(t, 2, report.CorroborationCount)

		m.assertExpectations(t)
	})

	t.Run("reporting own content is rejected", func(t *testing.T) {
		m := newModerationMocks()

		m.directory.On("GetUser", ctx, "owner-1").Return(&external.User{ID: "owner-1"}, nil).Once()
		m.content.On("Resolve", ctx, domain.ContentTypeQuestion, int64(5)).Return(content, nil).Once()

		_, _, err := m.queue(t).FileReport(ctx, "owner-1", domain.ContentTypeQuestion, 5, domain.ReportReasonSpam)
		assert.ErrorIs(t, err, apperrors.ErrSelfReport)

		m.assertExpectations(t)
	})

	t.Run("missing content is rejected", func(t *testing.T) {
		m := newModerationMocks()

		m.directory.On("GetUser", ctx, "reporter-1").Return(reporter, nil).Once()
		m.content.On("Resolve", ctx, domain.ContentTypeQuestion, int64(404)).Return(nil, apperrors.ErrContentNotFound).Once()

		_, _, err := m.queue(t).FileReport(ctx, "reporter-1", domain.ContentTypeQuestion, 404, domain.ReportReasonSpam)
		assert.ErrorIs(t, err, apperrors.ErrContentNotFound)

		m.assertExpectations(t)
	})

	t.Run("unknown reason is rejected before any lookup", func(t *testing.T) {
		m := newModerationMocks()

		_, _, err := m.queue(t).FileReport(ctx, "reporter-1", domain.ContentTypeQuestion, 5, domain.ReportReason("nonsense"))
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		m.assertExpectations(t)
	})
}

func TestModerationQueueImpl_ClaimNext(t *testing.T) {
	ctx := context.Background()
	moderator := &external.User{ID: "mod-1", IsAdmin: true}

	t.Run("moderator claims the top report", func(t *testing.T) {
		m := newModerationMocks()
		_, mockedTx, smock := newMockDBAndTx(t)
		smock.ExpectCommit()

		claimed := &domain.ContentReport{ID: 7, Status: domain.ReportStatusReviewing}

		m.directory.On("GetUser", ctx, "mod-1").Return(moderator, nil).Once()
		m.transactor.On("BeginTxx", mock.Anything, (*sql.TxOptions)(nil)).Return(mockedTx, nil).Once()
		m.reports.On("ClaimNext", ctx, mockedTx, "mod-1").Return(claimed, nil).Once()
		m.reports.On("QueueDepth", ctx, nil).Return(0, nil).Once()

		report, err := m.queue(t).ClaimNext(ctx, "mod-1")
		require.NoError(t, err)
		assert.Equal(t, int64(7), report.ID)

		m.assertExpectations(t)
	})

	t.Run("empty queue returns nil without error", func(t *testing.T) {
		m := newModerationMocks()
		_, mockedTx, smock := newMockDBAndTx(t)
		smock.ExpectRollback()

		m.directory.On("GetUser", ctx, "mod-1").Return(moderator, nil).Once()
		m.transactor.On("BeginTxx", mock.Anything, (*sql.TxOptions)(nil)).Return(mockedTx, nil).Once()
		m.reports.On("ClaimNext", ctx, mockedTx, "mod-1").Return(nil, apperrors.ErrNotFound).Once()

		report, err := m.queue(t).ClaimNext(ctx, "mod-1")
		require.NoError(t, err)
		assert.Nil(t, report)

		m.assertExpectations(t)
	})

	t.Run("non-admin may not claim", func(t *testing.T) {
		m := newModerationMocks()

		m.directory.On("GetUser", ctx, "user-1").Return(&external.User{ID: "user-1"}, nil).Once()

		_, err := m.queue(t).ClaimNext(ctx, "user-1")
		assert.ErrorIs(t, err, apperrors.ErrForbidden)

		m.assertExpectations(t)
	})
}

func TestModerationQueueImpl_Resolve(t *testing.T) {
	ctx := context.Background()

	reviewing := func() *domain.ContentReport {
		modID := "mod-1"
		return &domain.ContentReport{
			ID:             7,
			ReporterID:     "reporter-1",
			ContentType:    domain.ContentTypeQuestionMessage,
			ContentID:      5,
			ContentOwnerID: "owner-1",
			Reason:         domain.ReportReasonAbuse,
			Status:         domain.ReportStatusReviewing,
			ModeratorID:    &modID,
		}
	}

	knownUser := func(id string) *external.User { return &external.User{ID: id, Verified: true} }

	t.Run("resolved report penalizes the owner and rewards every corroborator", func(t *testing.T) {
		m := newModerationMocks()
		_, mockedTx, smock := newMockDBAndTx(t)
		smock.ExpectCommit()

		m.transactor.On("BeginTxx", mock.Anything, (*sql.TxOptions)(nil)).Return(mockedTx, nil).Once()
		m.reports.On("GetReportByID", ctx, mockedTx, int64(7)).Return(reviewing(), nil).Once()
		m.reports.On("ResolveCAS", ctx, mockedTx, int64(7), "mod-1", domain.ReportStatusResolved, mock.AnythingOfType("time.Time")).Return(true, nil).Once()
		m.reports.On("CorroboratorsOf", ctx, mockedTx, int64(7)).Return([]string{"reporter-1", "reporter-2"}, nil).Once()

		// Owner penalty.
		m.directory.On("GetUser", ctx, "owner-1").Return(knownUser("owner-1"), nil).Once()
		m.reputation.On("EnsureRecord", ctx, mockedTx, "owner-1", mock.AnythingOfType("time.Time")).Return(nil).Once()
		m.reputation.On("GetScoreWithLock", ctx, mockedTx, "owner-1").Return(100, nil).Once()
		m.reputation.On("InsertEntry", ctx, mockedTx, mock.MatchedBy(func(e *domain.ReputationEntry) bool {
			return e.UserID == "owner-1" && e.Reason == domain.ReasonContentRemoved && e.SourceEventID == "report:7:owner"
		})).Return(true, nil).Once()
		m.reputation.On("ApplyDelta", ctx, mockedTx, "owner-1", -15, domain.ReasonContentRemoved, mock.AnythingOfType("time.Time")).Return(85, nil).Once()

		// Rewards for both corroborating reporters.
		for _, reporter := range []string{"reporter-1", "reporter-2"} {
			m.directory.On("GetUser", ctx, reporter).Return(knownUser(reporter), nil).Once()
			m.reputation.On("EnsureRecord", ctx, mockedTx, reporter, mock.AnythingOfType("time.Time")).Return(nil).Once()
			m.reputation.On("GetScoreWithLock", ctx, mockedTx, reporter).Return(100, nil).Once()
			m.reputation.On("InsertEntry", ctx, mockedTx, mock.MatchedBy(func(e *domain.ReputationEntry) bool {
				return e.Reason == domain.ReasonHelpfulFlagConfirmed && e.SourceEventID == "report:7:"+e.UserID
			})).Return(true, nil).Once()
			m.reputation.On("ApplyDelta", ctx, mockedTx, reporter, 5, domain.ReasonHelpfulFlagConfirmed, mock.AnythingOfType("time.Time")).Return(105, nil).Once()
		}

		m.reports.On("QueueDepth", ctx, nil).Return(0, nil).Once()
		m.notifier.On("Notify", ctx, "reporter-1", external.EventReportResolved, mock.Anything).Return(nil).Once()
		m.notifier.On("Notify", ctx, "reporter-2", external.EventReportResolved, mock.Anything).Return(nil).Once()

		report, err := m.queue(t).Resolve(ctx, 7, "mod-1", domain.ReportStatusResolved)
		require.NoError(t, err)
		assert.Equal(t, domain.ReportStatusResolved, report.Status)

		m.assertExpectations(t)
	})

	t.Run("first dismissed report carries no score penalty", func(t *testing.T) {
		m := newModerationMocks()
		_, mockedTx, smock := newMockDBAndTx(t)
		smock.ExpectCommit()

		m.transactor.On("BeginTxx", mock.Anything, (*sql.TxOptions)(nil)).Return(mockedTx, nil).Once()
		m.reports.On("GetReportByID", ctx, mockedTx, int64(7)).Return(reviewing(), nil).Once()
		m.reports.On("ResolveCAS", ctx, mockedTx, int64(7), "mod-1", domain.ReportStatusDismissed, mock.AnythingOfType("time.Time")).Return(true, nil).Once()
		m.reports.On("CorroboratorsOf", ctx, mockedTx, int64(7)).Return([]string{"reporter-1"}, nil).Once()

		// No prior false reports: the counter advances, the score does not.
		m.reputation.On("GetRecord", ctx, mockedTx, "reporter-1").Return(&domain.ReputationRecord{UserID: "reporter-1", Score: 100, FalseReports: 0}, nil).Once()
		m.reputation.On("EnsureRecord", ctx, mockedTx, "reporter-1", mock.AnythingOfType("time.Time")).Return(nil).Once()
		m.reputation.On("InsertEntry", ctx, mockedTx, mock.MatchedBy(func(e *domain.ReputationEntry) bool {
			return e.UserID == "reporter-1" && e.Delta == 0 && e.Reason == domain.ReasonFalseReportFiled
		})).Return(true, nil).Once()
		m.reputation.On("ApplyDelta", ctx, mockedTx, "reporter-1", 0, domain.ReasonFalseReportFiled, mock.AnythingOfType("time.Time")).Return(100, nil).Once()

		m.reports.On("QueueDepth", ctx, nil).Return(0, nil).Once()
		m.notifier.On("Notify", ctx, "reporter-1", external.EventReportResolved, mock.Anything).Return(nil).Once()

		report, err := m.queue(t).Resolve(ctx, 7, "mod-1", domain.ReportStatusDismissed)
		require.NoError(t, err)
		assert.Equal(t, domain.ReportStatusDismissed, report.Status)

		m.assertExpectations(t)
	})

	t.Run("repeat offender takes the false-report penalty", func(t *testing.T) {
		m := newModerationMocks()
		_, mockedTx, smock := newMockDBAndTx(t)
		smock.ExpectCommit()

		m.transactor.On("BeginTxx", mock.Anything, (*sql.TxOptions)(nil)).Return(mockedTx, nil).Once()
		m.reports.On("GetReportByID", ctx, mockedTx, int64(7)).Return(reviewing(), nil).Once()
		m.reports.On("ResolveCAS", ctx, mockedTx, int64(7), "mod-1", domain.ReportStatusDismissed, mock.AnythingOfType("time.Time")).Return(true, nil).Once()
		m.reports.On("CorroboratorsOf", ctx, mockedTx, int64(7)).Return([]string{"reporter-1"}, nil).Once()

		m.reputation.On("GetRecord", ctx, mockedTx, "reporter-1").Return(&domain.ReputationRecord{UserID: "reporter-1", Score: 95, FalseReports: 1}, nil).Once()
		m.directory.On("GetUser", ctx, "reporter-1").Return(knownUser("reporter-1"), nil).Once()
		m.reputation.On("EnsureRecord", ctx, mockedTx, "reporter-1", mock.AnythingOfType("time.Time")).Return(nil).Once()
		m.reputation.On("GetScoreWithLock", ctx, mockedTx, "reporter-1").Return(95, nil).Once()
		m.reputation.On("InsertEntry", ctx, mockedTx, mock.MatchedBy(func(e *domain.ReputationEntry) bool {
			return e.Delta == -5 && e.Reason == domain.ReasonFalseReportFiled
		})).Return(true, nil).Once()
		m.reputation.On("ApplyDelta", ctx, mockedTx, "reporter-1", -5, domain.ReasonFalseReportFiled, mock.AnythingOfType("time.Time")).Return(90, nil).Once()

		m.reports.On("QueueDepth", ctx, nil).Return(0, nil).Once()
		m.notifier.On("Notify", ctx, "reporter-1", external.EventReportResolved, mock.Anything).Return(nil).Once()

		report, err := m.queue(t).Resolve(ctx, 7, "mod-1", domain.ReportStatusDismissed)
		require.NoError(t, err)
		assert.Equal(t, domain.ReportStatusDismissed, report.Status)

		m.assertExpectations(t)
	})

	t.Run("replaying the same decision is a no-op", func(t *testing.T) {
		m := newModerationMocks()
		_, mockedTx, smock := newMockDBAndTx(t)
		smock.ExpectCommit()

		resolved := reviewing()
		resolved.Status = domain.ReportStatusResolved

		m.transactor.On("BeginTxx", mock.Anything, (*sql.TxOptions)(nil)).Return(mockedTx, nil).Once()
		m.reports.On("GetReportByID", ctx, mockedTx, int64(7)).Return(resolved, nil).Once()
		m.reports.On("QueueDepth", ctx, nil).Return(0, nil).Once()

		report, err := m.queue(t).Resolve(ctx, 7, "mod-1", domain.ReportStatusResolved)
		require.NoError(t, err)
		assert.Equal(t, domain.ReportStatusResolved, report.Status)

		m.assertExpectations(t)
	})

	t.Run("resolving another moderator's claim is a conflict", func(t *testing.T) {
		m := newModerationMocks()
		_, mockedTx, smock := newMockDBAndTx(t)
		smock.ExpectRollback()

		m.transactor.On("BeginTxx", mock.Anything, (*sql.TxOptions)(nil)).Return(mockedTx, nil).Once()
		m.reports.On("GetReportByID", ctx, mockedTx, int64(7)).Return(reviewing(), nil).Once()
		m.reports.On("ResolveCAS", ctx, mockedTx, int64(7), "mod-2", domain.ReportStatusResolved, mock.AnythingOfType("time.Time")).Return(false, nil).Once()

		_, err := m.queue(t).Resolve(ctx, 7, "mod-2", domain.ReportStatusResolved)
		assert.ErrorIs(t, err, apperrors.ErrConflict)

		m.assertExpectations(t)
	})
}
