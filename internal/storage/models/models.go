package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ScheduledJob 预约的测评任务表
// 状态机: scheduled -> active -> completed；expired/cancelled 仅可从 scheduled/active 进入；
// 激活失败进入 failed。
type ScheduledJob struct {
	JobID          string `gorm:"type:char(36);primaryKey"`
	CandidateName  string `gorm:"type:varchar(255);not null"`
	CandidateEmail string `gorm:"type:varchar(255);not null;index:idx_sj_candidate_email"`
	PositionTitle  string `gorm:"type:varchar(255)"`

	// 有效窗口: ExpiresAt = ScheduledAt + 48h，创建时固定
	ScheduledAt time.Time `gorm:"type:datetime(6);not null;index:idx_sj_scheduled_status,priority:1"`
	ExpiresAt   time.Time `gorm:"type:datetime(6);not null;index:idx_sj_expires_status,priority:1"`
	Status      string    `gorm:"type:varchar(20);default:'scheduled';index:idx_sj_scheduled_status,priority:2;index:idx_sj_expires_status,priority:2"`

	QuestionsGenerated bool   `gorm:"default:false"`
	ReminderSent       bool   `gorm:"default:false"`
	AccessToken        string `gorm:"type:char(36);uniqueIndex:idx_sj_access_token"`

	ResumeID         *string `gorm:"type:char(36)"`
	JobDescriptionID *string `gorm:"type:char(36)"`
	SessionID        *string `gorm:"type:char(36);index:idx_sj_session_id"`

	ActivatedAt   *time.Time `gorm:"type:datetime(6)"`
	CompletedAt   *time.Time `gorm:"type:datetime(6)"`
	FailureReason string     `gorm:"type:varchar(255)"`

	CreatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (ScheduledJob) TableName() string {
	return "scheduled_jobs"
}

// AssessmentSession 测评会话表
// phase: mcq -> voice -> completed; status: pending -> in-progress -> completing -> completed
type AssessmentSession struct {
	SessionID string  `gorm:"type:char(36);primaryKey"`
	JobID     *string `gorm:"type:char(36);index:idx_as_job_id"`

	CandidateName  string `gorm:"type:varchar(255)"`
	CandidateEmail string `gorm:"type:varchar(255);index:idx_as_candidate_email"`
	PositionTitle  string `gorm:"type:varchar(255)"`

	Phase        string `gorm:"type:varchar(20);default:'mcq'"`
	Status       string `gorm:"type:varchar(20);default:'pending';index:idx_as_status"`
	ReportStatus string `gorm:"type:varchar(20);default:'pending';index:idx_as_report_status"`

	// 生成后冻结的题目快照
	MCQQuestions   datatypes.JSON `gorm:"type:json"`
	VoiceQuestions datatypes.JSON `gorm:"type:json"`

	ResumeID         *string `gorm:"type:char(36)"`
	JobDescriptionID *string `gorm:"type:char(36)"`
	RecordingID      *string `gorm:"type:char(36)"`
	TestResultID     *string `gorm:"type:char(36)"`

	StartedAt         *time.Time `gorm:"type:datetime(6)"`
	CompletedAt       *time.Time `gorm:"type:datetime(6)"`
	ReportGeneratedAt *time.Time `gorm:"type:datetime(6)"`

	CreatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (AssessmentSession) TableName() string {
	return "assessment_sessions"
}

// VoiceAnswer 语音答案表，归属唯一会话，仅由答案评估流水线修改，从不删除
type VoiceAnswer struct {
	AnswerID     string `gorm:"type:char(36);primaryKey"`
	SessionID    string `gorm:"type:char(36);not null;index:idx_va_session_id;uniqueIndex:idx_va_session_question,priority:1"`
	QuestionID   string `gorm:"type:varchar(64);not null;uniqueIndex:idx_va_session_question,priority:2"`
	QuestionText string `gorm:"type:text"`

	AudioKey      string  `gorm:"type:varchar(512)"`
	TranscriptKey string  `gorm:"type:varchar(512)"`
	AnswerText    string  `gorm:"type:text"`
	DurationSec   float64 `gorm:"type:double"`

	Answered   bool   `gorm:"default:true"`
	Valid      bool   `gorm:"default:true"`
	SkipReason string `gorm:"type:varchar(50)"`

	// 整体处理状态及失败原因（截断存储）
	ProcessingStatus string `gorm:"type:varchar(20);default:'pending';index:idx_va_processing_status"`
	ProcessingReason string `gorm:"type:varchar(255)"`

	// 音频评分子状态
	AudioStatus      string         `gorm:"type:varchar(20);default:'pending'"`
	AudioGrading     datatypes.JSON `gorm:"type:json"`
	AudioProcessedAt *time.Time     `gorm:"type:datetime(6)"`
	AudioReason      string         `gorm:"type:varchar(255)"`

	// 文本评估子状态
	TextStatus      string         `gorm:"type:varchar(20);default:'pending'"`
	TextMetrics     datatypes.JSON `gorm:"type:json"`
	TextProcessedAt *time.Time     `gorm:"type:datetime(6)"`
	TextReason      string         `gorm:"type:varchar(255)"`

	CreatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (VoiceAnswer) TableName() string {
	return "voice_answers"
}

// Recording 录制表，每个会话至多一条
type Recording struct {
	RecordingID string `gorm:"type:char(36);primaryKey"`
	SessionID   string `gorm:"type:char(36);not null;uniqueIndex:idx_rec_session_id"`

	CameraKey string `gorm:"type:varchar(512)"`
	ScreenKey string `gorm:"type:varchar(512)"`

	VideoStatus    string         `gorm:"type:varchar(20);default:'pending'"`
	EmotionResults datatypes.JSON `gorm:"type:json"`
	VideoScore     *float64       `gorm:"type:double"`
	VideoError     string         `gorm:"type:varchar(512)"`

	StartedAt   *time.Time `gorm:"type:datetime(6)"`
	CompletedAt *time.Time `gorm:"type:datetime(6)"`

	CreatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Recording) TableName() string {
	return "recordings"
}

// TestResult 成绩表，每个会话一条；各分量在聚合器写入前为空
type TestResult struct {
	ResultID  string `gorm:"type:char(36);primaryKey"`
	SessionID string `gorm:"type:char(36);not null;uniqueIndex:idx_tr_session_id"`

	CandidateEmail   string  `gorm:"type:varchar(255);index:idx_tr_candidate_job,priority:1"`
	JobDescriptionID *string `gorm:"type:char(36);index:idx_tr_candidate_job,priority:2"`

	MCQScore      *float64 `gorm:"type:double"`
	AudioScore    *float64 `gorm:"type:double"`
	TextScore     *float64 `gorm:"type:double"`
	VideoScore    *float64 `gorm:"type:double"`
	CombinedScore *float64 `gorm:"type:double"`

	QuestionsAttempted int `gorm:"default:0"`
	TotalQuestions     int `gorm:"default:0"`

	Status string `gorm:"type:varchar(20);default:'pending';index:idx_tr_status"`

	CreatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (TestResult) TableName() string {
	return "test_results"
}

// Report 报告产物记录，创建后不再变更
type Report struct {
	ReportID   string    `gorm:"type:char(36);primaryKey"`
	SessionID  string    `gorm:"type:char(36);not null;index:idx_rpt_session_id"`
	StorageKey string    `gorm:"type:varchar(512);not null"`
	Filename   string    `gorm:"type:varchar(255);not null"`
	CreatedAt  time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (Report) TableName() string {
	return "reports"
}

// Artifact 输入材料表（简历/职位描述），按内容寻址去重
// 同类材料的内容哈希唯一，重复上传复用已有记录
type Artifact struct {
	ArtifactID       string    `gorm:"type:char(36);primaryKey"`
	Kind             string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_art_kind_hash,priority:1"`
	ContentHash      string    `gorm:"type:char(64);not null;uniqueIndex:idx_art_kind_hash,priority:2"`
	StorageKey       string    `gorm:"type:varchar(512);not null"`
	OriginalFilename string    `gorm:"type:varchar(255)"`
	SizeBytes        int64     `gorm:"type:bigint"`
	CreatedAt        time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (Artifact) TableName() string {
	return "artifacts"
}

// Artifact kind 取值
const (
	ArtifactKindResume         = "resume"
	ArtifactKindJobDescription = "job_description"
)

// MatchRequest 简历-职位描述配对请求表
// PairHash = sha256(resumeHash + "-" + jdHash)，唯一索引拦截重复配对
type MatchRequest struct {
	RequestID        string    `gorm:"type:char(36);primaryKey"`
	PairHash         string    `gorm:"type:char(64);not null;uniqueIndex:idx_mr_pair_hash"`
	ResumeID         string    `gorm:"type:char(36);not null"`
	JobDescriptionID string    `gorm:"type:char(36);not null"`
	CreatedAt        time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (MatchRequest) TableName() string {
	return "match_requests"
}

// MCQQuestion 会话中冻结的选择题快照
type MCQQuestion struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	UserAnswer    string   `json:"user_answer,omitempty"`
}

// VoiceQuestion 会话中冻结的语音题快照
type VoiceQuestion struct {
	ID       string `json:"id"`
	Question string `json:"question"`
}

// MCQQuestionsToJSON 序列化选择题列表
func MCQQuestionsToJSON(questions []MCQQuestion) (datatypes.JSON, error) {
	bytes, err := json.Marshal(questions)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}

// MCQQuestionsFromJSON 反序列化选择题列表
func MCQQuestionsFromJSON(data datatypes.JSON) ([]MCQQuestion, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var questions []MCQQuestion
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// VoiceQuestionsToJSON 序列化语音题列表
func VoiceQuestionsToJSON(questions []VoiceQuestion) (datatypes.JSON, error) {
	bytes, err := json.Marshal(questions)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}

// VoiceQuestionsFromJSON 反序列化语音题列表
func VoiceQuestionsFromJSON(data datatypes.JSON) ([]VoiceQuestion, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var questions []VoiceQuestion
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// MapToJSON Helper function to convert map[string]interface{} to datatypes.JSON
func MapToJSON(m map[string]interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}

// JSONToMap Helper function to convert datatypes.JSON back to a map
func JSONToMap(data datatypes.JSON) (map[string]interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
