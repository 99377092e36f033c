package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/veritasapp/qna-router-service/internal/domain"
	"github.com/veritasapp/qna-router-service/internal/external"
	"github.com/veritasapp/qna-router-service/internal/repository"
)

func newMockDBAndTx(t *testing.T) (*sqlx.DB, *sqlx.Tx, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, smock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(mockDB, "sqlmock")

	smock.ExpectBegin()

	tx, err := sqlxDB.Beginx()
	require.NoError(t, err)

	return sqlxDB, tx, smock
}

type TransactorMock struct {
	mock.Mock
}

func (m *TransactorMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	var tx *sqlx.Tx

	args := m.Called(ctx, opts)
	if args.Get(0) != nil {
		tx = args.Get(0).(*sqlx.Tx)
	}

	return tx, args.Error(1)
}

type QuestionRepositoryMock struct {
	mock.Mock
}

var _ repository.QuestionRepository = (*QuestionRepositoryMock)(nil)

func (m *QuestionRepositoryMock) CreateQuestion(ctx context.Context, tx *sqlx.Tx, q *domain.Question) (int64, error) {
	args := m.Called(ctx, tx, q)
	return args.Get(0).(int64), args.Error(1)
}

func (m *QuestionRepositoryMock) GetQuestionByID(ctx context.Context, ext sqlx.ExtContext, id int64) (*domain.Question, error) {
	args := m.Called(ctx, ext, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Question), args.Error(1)
}

func (m *QuestionRepositoryMock) GetQuestionByIDWithLock(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Question, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Question), args.Error(1)
}

func (m *QuestionRepositoryMock) TransitionStatus(ctx context.Context, tx *sqlx.Tx, id int64, expected []domain.QuestionStatus, next domain.QuestionStatus, at time.Time) (bool, error) {
	args := m.Called(ctx, tx, id, expected, next, at)
	return args.Bool(0), args.Error(1)
}

func (m *QuestionRepositoryMock) SetNeedsTriage(ctx context.Context, tx *sqlx.Tx, id int64, needsTriage bool) error {
	args := m.Called(ctx, tx, id, needsTriage)
	return args.Error(0)
}

type AssignmentRepositoryMock struct {
	mock.Mock
}

var _ repository.AssignmentRepository = (*AssignmentRepositoryMock)(nil)

func (m *AssignmentRepositoryMock) CreateAssignment(ctx context.Context, tx *sqlx.Tx, a *domain.Assignment) (int64, error) {
	args := m.Called(ctx, tx, a)
	return args.Get(0).(int64), args.Error(1)
}

func (m *AssignmentRepositoryMock) GetAssignmentByID(ctx context.Context, ext sqlx.ExtContext, id int64) (*domain.Assignment, error) {
	args := m.Called(ctx, ext, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Assignment), args.Error(1)
}

func (m *AssignmentRepositoryMock) GetActiveAssignment(ctx context.Context, ext sqlx.ExtContext, questionID int64) (*domain.Assignment, error) {
	args := m.Called(ctx, ext, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Assignment), args.Error(1)
}

func (m *AssignmentRepositoryMock) GetTriedUserIDs(ctx context.Context, ext sqlx.ExtContext, questionID int64) ([]string, error) {
	args := m.Called(ctx, ext, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *AssignmentRepositoryMock) TransitionStatus(ctx context.Context, tx *sqlx.Tx, id int64, expected []domain.AssignmentStatus, next domain.AssignmentStatus, reason *string, at time.Time) (bool, error) {
	args := m.Called(ctx, tx, id, expected, next, reason, at)
	return args.Bool(0), args.Error(1)
}

type ExpertiseRepositoryMock struct {
	mock.Mock
}

var _ repository.ExpertiseRepository = (*ExpertiseRepositoryMock)(nil)

func (m *ExpertiseRepositoryMock) Candidates(ctx context.Context, areaID int64, tagID *int64) ([]domain.Candidate, error) {
	args := m.Called(ctx, areaID, tagID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]domain.Candidate), args.Error(1)
}

func (m *ExpertiseRepositoryMock) AreaExists(ctx context.Context, areaID int64) (bool, error) {
	args := m.Called(ctx, areaID)
	return args.Bool(0), args.Error(1)
}

func (m *ExpertiseRepositoryMock) TagExists(ctx context.Context, areaID, tagID int64) (bool, error) {
	args := m.Called(ctx, areaID, tagID)
	return args.Bool(0), args.Error(1)
}

func (m *ExpertiseRepositoryMock) UpsertExpertise(ctx context.Context, tx *sqlx.Tx, e *domain.Expertise) error {
	args := m.Called(ctx, tx, e)
	return args.Error(0)
}

type ReputationRepositoryMock struct {
	mock.Mock
}

var _ repository.ReputationRepository = (*ReputationRepositoryMock)(nil)

func (m *ReputationRepositoryMock) EnsureRecord(ctx context.Context, tx *sqlx.Tx, userID string, at time.Time) error {
	args := m.Called(ctx, tx, userID, at)
	return args.Error(0)
}

func (m *ReputationRepositoryMock) GetRecord(ctx context.Context, ext sqlx.ExtContext, userID string) (*domain.ReputationRecord, error) {
	args := m.Called(ctx, ext, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.ReputationRecord), args.Error(1)
}

func (m *ReputationRepositoryMock) GetScoreWithLock(ctx context.Context, tx *sqlx.Tx, userID string) (int, error) {
	args := m.Called(ctx, tx, userID)
	return args.Int(0), args.Error(1)
}

func (m *ReputationRepositoryMock) InsertEntry(ctx context.Context, tx *sqlx.Tx, e *domain.ReputationEntry) (bool, error) {
	args := m.Called(ctx, tx, e)
	return args.Bool(0), args.Error(1)
}

func (m *ReputationRepositoryMock) ApplyDelta(ctx context.Context, tx *sqlx.Tx, userID string, delta int, reason domain.ReputationReason, at time.Time) (int, error) {
	args := m.Called(ctx, tx, userID, delta, reason, at)
	return args.Int(0), args.Error(1)
}

func (m *ReputationRepositoryMock) SumHistory(ctx context.Context, ext sqlx.ExtContext, userID string) (int, error) {
	args := m.Called(ctx, ext, userID)
	return args.Int(0), args.Error(1)
}

func (m *ReputationRepositoryMock) ParkRetry(ctx context.Context, tx *sqlx.Tx, r *domain.ReputationRetry) error {
	args := m.Called(ctx, tx, r)
	return args.Error(0)
}

func (m *ReputationRepositoryMock) DueRetries(ctx context.Context, tx *sqlx.Tx, limit int, now time.Time) ([]domain.ReputationRetry, error) {
	args := m.Called(ctx, tx, limit, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]domain.ReputationRetry), args.Error(1)
}

func (m *ReputationRepositoryMock) DeleteRetry(ctx context.Context, tx *sqlx.Tx, id int64) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *ReputationRepositoryMock) BumpRetry(ctx context.Context, tx *sqlx.Tx, id int64, nextAttemptAt time.Time) error {
	args := m.Called(ctx, tx, id, nextAttemptAt)
	return args.Error(0)
}

type ReportRepositoryMock struct {
	mock.Mock
}

var _ repository.ReportRepository = (*ReportRepositoryMock)(nil)

func (m *ReportRepositoryMock) GetReportByID(ctx context.Context, ext sqlx.ExtContext, id int64) (*domain.ContentReport, error) {
	args := m.Called(ctx, ext, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.ContentReport), args.Error(1)
}

func (m *ReportRepositoryMock) GetOpenReportWithLock(ctx context.Context, tx *sqlx.Tx, contentType domain.ContentType, contentID int64) (*domain.ContentReport, error) {
	args := m.Called(ctx, tx, contentType, contentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.ContentReport), args.Error(1)
}

func (m *ReportRepositoryMock) CreateReport(ctx context.Context, tx *sqlx.Tx, r *domain.ContentReport) (int64, error) {
	args := m.Called(ctx, tx, r)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ReportRepositoryMock) AddCorroborator(ctx context.Context, tx *sqlx.Tx, reportID int64, reporterID string) (bool, error) {
	args := m.Called(ctx, tx, reportID, reporterID)
	return args.Bool(0), args.Error(1)
}

func (m *ReportRepositoryMock) CorroboratorsOf(ctx context.Context, ext sqlx.ExtContext, reportID int64) ([]string, error) {
	args := m.Called(ctx, ext, reportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *ReportRepositoryMock) Corroborate(ctx context.Context, tx *sqlx.Tx, reportID int64, priority int) error {
	args := m.Called(ctx, tx, reportID, priority)
	return args.Error(0)
}

func (m *ReportRepositoryMock) ClaimNext(ctx context.Context, tx *sqlx.Tx, moderatorID string) (*domain.ContentReport, error) {
	args := m.Called(ctx, tx, moderatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.ContentReport), args.Error(1)
}

func (m *ReportRepositoryMock) ResolveCAS(ctx context.Context, tx *sqlx.Tx, reportID int64, moderatorID string, decision domain.ReportStatus, at time.Time) (bool, error) {
	args := m.Called(ctx, tx, reportID, moderatorID, decision, at)
	return args.Bool(0), args.Error(1)
}

func (m *ReportRepositoryMock) QueueDepth(ctx context.Context, ext sqlx.ExtContext) (int, error) {
	args := m.Called(ctx, ext)
	return args.Int(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

var _ repository.MessageRepository = (*MessageRepositoryMock)(nil)

func (m *MessageRepositoryMock) InsertMessage(ctx context.Context, tx *sqlx.Tx, msg *domain.Message) (int64, error) {
	args := m.Called(ctx, tx, msg)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) MessagesOf(ctx context.Context, ext sqlx.ExtContext, questionID int64) ([]domain.Message, error) {
	args := m.Called(ctx, ext, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *MessageRepositoryMock) LatestMessageAt(ctx context.Context, ext sqlx.ExtContext, questionID int64) (time.Time, error) {
	args := m.Called(ctx, ext, questionID)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MessageRepositoryMock) ParticipantsOf(ctx context.Context, ext sqlx.ExtContext, questionID int64) ([]string, error) {
	args := m.Called(ctx, ext, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

type TimerRepositoryMock struct {
	mock.Mock
}

var _ repository.TimerRepository = (*TimerRepositoryMock)(nil)

func (m *TimerRepositoryMock) Schedule(ctx context.Context, tx *sqlx.Tx, timer *domain.Timer) error {
	args := m.Called(ctx, tx, timer)
	return args.Error(0)
}

func (m *TimerRepositoryMock) CancelByAssignment(ctx context.Context, tx *sqlx.Tx, assignmentID int64) error {
	args := m.Called(ctx, tx, assignmentID)
	return args.Error(0)
}

func (m *TimerRepositoryMock) CancelByQuestion(ctx context.Context, tx *sqlx.Tx, questionID int64, kind domain.TimerKind) error {
	args := m.Called(ctx, tx, questionID, kind)
	return args.Error(0)
}

func (m *TimerRepositoryMock) DueTimers(ctx context.Context, tx *sqlx.Tx, limit int, now time.Time) ([]domain.Timer, error) {
	args := m.Called(ctx, tx, limit, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]domain.Timer), args.Error(1)
}

func (m *TimerRepositoryMock) DeleteTimer(ctx context.Context, tx *sqlx.Tx, id int64) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

type DirectoryMock struct {
	mock.Mock
}

var _ external.Directory = (*DirectoryMock)(nil)

func (m *DirectoryMock) GetUser(ctx context.Context, userID string) (*external.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*external.User), args.Error(1)
}

type ContentStoreMock struct {
	mock.Mock
}

var _ external.ContentStore = (*ContentStoreMock)(nil)

func (m *ContentStoreMock) Resolve(ctx context.Context, contentType domain.ContentType, contentID int64) (*external.Content, error) {
	args := m.Called(ctx, contentType, contentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*external.Content), args.Error(1)
}

type NotifierMock struct {
	mock.Mock
}

var _ external.Notifier = (*NotifierMock)(nil)

func (m *NotifierMock) Notify(ctx context.Context, userID string, eventKind string, payload map[string]any) error {
	args := m.Called(ctx, userID, eventKind, payload)
	return args.Error(0)
}

type ExpertiseIndexMock struct {
	mock.Mock
}

var _ ExpertiseIndex = (*ExpertiseIndexMock)(nil)

func (m *ExpertiseIndexMock) Candidates(ctx context.Context, areaID int64, tagID *int64) ([]string, error) {
	args := m.Called(ctx, areaID, tagID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}
