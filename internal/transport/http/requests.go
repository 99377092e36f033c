package http

type submitQuestionRequest struct {
	AskerID string `json:"asker_id" validate:"required,custom_id,min=1,max=100"`
	Domain  string `json:"domain" validate:"required,oneof=apologetics polemics"`
	AreaID  int64  `json:"area_id" validate:"required,gt=0"`
	TagID   *int64 `json:"tag_id" validate:"omitempty,gt=0"`
	Text    string `json:"text" validate:"required,min=10,max=10000"`
}

type respondAssignmentRequest struct {
	AssignmentID int64   `json:"assignment_id" validate:"required,gt=0"`
	ExpertID     string  `json:"expert_id" validate:"required,custom_id,min=1,max=100"`
	Decision     string  `json:"decision" validate:"required,oneof=accept decline"`
	Reason       *string `json:"reason" validate:"omitempty,max=255"`
}

type postMessageRequest struct {
	QuestionID int64  `json:"question_id" validate:"required,gt=0"`
	SenderID   string `json:"sender_id" validate:"required,custom_id,min=1,max=100"`
	Body       string `json:"body" validate:"required,min=1,max=20000"`
	IsAnswer   bool   `json:"is_answer"`
}

type closeQuestionRequest struct {
	QuestionID int64  `json:"question_id" validate:"required,gt=0"`
	UserID     string `json:"user_id" validate:"required,custom_id,min=1,max=100"`
}

type fileReportRequest struct {
	ReporterID  string `json:"reporter_id" validate:"required,custom_id,min=1,max=100"`
	ContentType string `json:"content_type" validate:"required,oneof=question question_message post comment user_profile"`
	ContentID   int64  `json:"content_id" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"required,oneof=spam abuse misinformation off_topic other"`
}

type claimReportRequest struct {
	ModeratorID string `json:"moderator_id" validate:"required,custom_id,min=1,max=100"`
}

type resolveReportRequest struct {
	ReportID    int64  `json:"report_id" validate:"required,gt=0"`
	ModeratorID string `json:"moderator_id" validate:"required,custom_id,min=1,max=100"`
	Decision    string `json:"decision" validate:"required,oneof=resolved dismissed"`
}
