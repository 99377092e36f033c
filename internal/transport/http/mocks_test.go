package http

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/veritasapp/qna-router-service/internal/domain"
	"github.com/veritasapp/qna-router-service/internal/service"
)

type AssignmentEngineMock struct {
	mock.Mock
}

var _ service.AssignmentEngine = (*AssignmentEngineMock)(nil)

func (m *AssignmentEngineMock) SubmitQuestion(ctx context.Context, askerID string, qDomain domain.QuestionDomain, areaID int64, tagID *int64, text string) (*domain.Question, error) {
	args := m.Called(ctx, askerID, qDomain, areaID, tagID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Question), args.Error(1)
}

func (m *AssignmentEngineMock) RespondToAssignment(ctx context.Context, assignmentID int64, expertID string, decision service.AssignmentDecision, reason *string) (*domain.Assignment, error) {
	args := m.Called(ctx, assignmentID, expertID, decision, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Assignment), args.Error(1)
}

func (m *AssignmentEngineMock) CloseQuestion(ctx context.Context, questionID int64, byUserID string) (*domain.Question, error) {
	args := m.Called(ctx, questionID, byUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Question), args.Error(1)
}

func (m *AssignmentEngineMock) GetQuestion(ctx context.Context, questionID int64) (*domain.Question, error) {
	args := m.Called(ctx, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Question), args.Error(1)
}

type ConversationThreadMock struct {
	mock.Mock
}

var _ service.ConversationThread = (*ConversationThreadMock)(nil)

func (m *ConversationThreadMock) PostMessage(ctx context.Context, questionID int64, senderID, body string, isAnswer bool) (*domain.Message, error) {
	args := m.Called(ctx, questionID, senderID, body, isAnswer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *ConversationThreadMock) MessagesOf(ctx context.Context, questionID int64) ([]domain.Message, error) {
	args := m.Called(ctx, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *ConversationThreadMock) ParticipantsOf(ctx context.Context, questionID int64) ([]string, error) {
	args := m.Called(ctx, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

type ModerationQueueMock struct {
	mock.Mock
}

var _ service.ModerationQueue = (*ModerationQueueMock)(nil)

func (m *ModerationQueueMock) FileReport(ctx context.Context, reporterID string, contentType domain.ContentType, contentID int64, reason domain.ReportReason) (*domain.ContentReport, service.FileOutcome, error) {
	args := m.Called(ctx, reporterID, contentType, contentID, reason)
	if args.Get(0) == nil {
		return nil, args.Get(1).(service.FileOutcome), args.Error(2)
	}

	return args.Get(0).(*domain.ContentReport), args.Get(1).(service.FileOutcome), args.Error(2)
}

func (m *ModerationQueueMock) ClaimNext(ctx context.Context, moderatorID string) (*domain.ContentReport, error) {
	args := m.Called(ctx, moderatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.ContentReport), args.Error(1)
}

func (m *ModerationQueueMock) Resolve(ctx context.Context, reportID int64, moderatorID string, decision domain.ReportStatus) (*domain.ContentReport, error) {
	args := m.Called(ctx, reportID, moderatorID, decision)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.ContentReport), args.Error(1)
}

func (m *ModerationQueueMock) QueueDepth(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
