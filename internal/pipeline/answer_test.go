package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"assessment-go/internal/constants"
	"assessment-go/internal/evalclient"
	"assessment-go/internal/pipeline"
	"assessment-go/internal/storage"
	"assessment-go/internal/storage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// fakeAnswerStore 记录流水线落库调用的内存桩
type fakeAnswerStore struct {
	mu       sync.Mutex
	claimErr error
	answer   *models.VoiceAnswer

	audioStatus      string
	audioReason      string
	textStatus       string
	textReason       string
	transcriptFields map[string]interface{}
	finalStatus      string
}

func (f *fakeAnswerStore) ClaimAnswerProcessing(ctx context.Context, answerID string) error {
	return f.claimErr
}

func (f *fakeAnswerStore) GetVoiceAnswer(ctx context.Context, answerID string) (*models.VoiceAnswer, error) {
	return f.answer, nil
}

func (f *fakeAnswerStore) SetAnswerTranscript(ctx context.Context, answerID string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcriptFields = fields
	return nil
}

func (f *fakeAnswerStore) SetAnswerAudioResult(ctx context.Context, answerID, status string, grading datatypes.JSON, reason string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audioStatus = status
	f.audioReason = reason
	return nil
}

func (f *fakeAnswerStore) SetAnswerTextResult(ctx context.Context, answerID, status string, metrics datatypes.JSON, reason string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textStatus = status
	f.textReason = reason
	return nil
}

func (f *fakeAnswerStore) SetAnswerProcessingStatus(ctx context.Context, answerID, status, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalStatus = status
	return nil
}

type fakeMediaStore struct {
	audio       []byte
	downloadErr error
	uploaded    bool
}

func (f *fakeMediaStore) DownloadMedia(ctx context.Context, objectKey string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.audio, nil
}

func (f *fakeMediaStore) UploadTranscript(ctx context.Context, objectKey string, text string) (string, error) {
	f.uploaded = true
	return objectKey, nil
}

type fakeRecomputer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRecomputer) Recompute(ctx context.Context, sessionID string) (*pipeline.ScoreComponents, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &pipeline.ScoreComponents{}, nil
}

type fakeEval struct {
	transcript    string
	transcribeErr error
	audioErr      error
	textErr       error

	mu          sync.Mutex
	audioCalled bool
	textCalled  bool
}

func (f *fakeEval) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if f.transcribeErr != nil {
		return "", f.transcribeErr
	}
	return f.transcript, nil
}

func (f *fakeEval) ScoreAudio(ctx context.Context, filename string, audio []byte) (*evalclient.AudioGrading, error) {
	f.mu.Lock()
	f.audioCalled = true
	f.mu.Unlock()
	if f.audioErr != nil {
		return nil, f.audioErr
	}
	return &evalclient.AudioGrading{Raw: map[string]interface{}{"发音": 85.0}}, nil
}

func (f *fakeEval) ScoreText(ctx context.Context, question, answer string) (*evalclient.TextMetrics, error) {
	f.mu.Lock()
	f.textCalled = true
	f.mu.Unlock()
	if f.textErr != nil {
		return nil, f.textErr
	}
	return &evalclient.TextMetrics{Raw: map[string]interface{}{"相关性": 90.0}}, nil
}

func newTestAnswer() *models.VoiceAnswer {
	return &models.VoiceAnswer{
		AnswerID:     "ans-1",
		SessionID:    "sess-1",
		AudioKey:     "media/ans-1.wav",
		QuestionText: "请介绍一下你自己",
	}
}

func TestAnswerPipeline_TranscribeFailureStillScoresAudio(t *testing.T) {
	// 转写服务不可用时，只依赖原始音频的评分路径必须照常产出，
	// 答案整体仍落completed，仅文本路径标记failed
	store := &fakeAnswerStore{answer: newTestAnswer()}
	media := &fakeMediaStore{audio: makePCM(24000, 0.5)}
	eval := &fakeEval{transcribeErr: errors.New("whisper服务超时")}
	agg := &fakeRecomputer{}

	p := pipeline.NewAnswerProcessor(store, media, eval, eval, eval, agg, pipeline.NewCompletionHub())
	require.NoError(t, p.Process(context.Background(), "ans-1"))

	assert.True(t, eval.audioCalled, "转写失败不应阻止音频评分")
	assert.Equal(t, constants.ProcessingCompleted, store.audioStatus)
	assert.Equal(t, constants.ProcessingFailed, store.textStatus)
	assert.Contains(t, store.textReason, "转写失败")
	assert.Equal(t, constants.ProcessingCompleted, store.finalStatus)
	assert.Equal(t, 1, agg.calls, "终态落库后应重算一次会话成绩")
}

func TestAnswerPipeline_AudioScoreFailureStillRunsText(t *testing.T) {
	// 反向独立性：音频评分失败不影响转写与文本评估
	store := &fakeAnswerStore{answer: newTestAnswer()}
	media := &fakeMediaStore{audio: makePCM(24000, 0.5)}
	eval := &fakeEval{transcript: "我叫张三，有五年后端开发经验。", audioErr: errors.New("评分服务不可用")}
	agg := &fakeRecomputer{}

	p := pipeline.NewAnswerProcessor(store, media, eval, eval, eval, agg, pipeline.NewCompletionHub())
	require.NoError(t, p.Process(context.Background(), "ans-1"))

	assert.True(t, eval.textCalled)
	assert.Equal(t, constants.ProcessingFailed, store.audioStatus)
	assert.Equal(t, constants.ProcessingCompleted, store.textStatus)
	assert.Equal(t, constants.ProcessingCompleted, store.finalStatus)
}

func TestAnswerPipeline_ClaimConflictSkips(t *testing.T) {
	// 重复触发靠抢占失败去重，不应再查询答案或调用任何评估服务
	store := &fakeAnswerStore{claimErr: storage.ErrStateConflict}
	eval := &fakeEval{}
	agg := &fakeRecomputer{}

	p := pipeline.NewAnswerProcessor(store, &fakeMediaStore{}, eval, eval, eval, agg, pipeline.NewCompletionHub())
	require.NoError(t, p.Process(context.Background(), "ans-1"))

	assert.False(t, eval.audioCalled)
	assert.Equal(t, 0, agg.calls)
}

func TestAnswerPipeline_SilentAudioSkipsEvaluation(t *testing.T) {
	// 静音答案整体completed，文本评估skipped，占位文本落库
	store := &fakeAnswerStore{answer: newTestAnswer()}
	media := &fakeMediaStore{audio: make([]byte, 48000)}
	eval := &fakeEval{}
	agg := &fakeRecomputer{}

	p := pipeline.NewAnswerProcessor(store, media, eval, eval, eval, agg, pipeline.NewCompletionHub())
	require.NoError(t, p.Process(context.Background(), "ans-1"))

	assert.False(t, eval.audioCalled)
	assert.False(t, eval.textCalled)
	require.NotNil(t, store.transcriptFields)
	assert.Equal(t, constants.ProcessingCompleted, store.transcriptFields["processing_status"])
	assert.Equal(t, constants.SilentAnswerText, store.transcriptFields["answer_text"])
	assert.Equal(t, constants.ProcessingSkipped, store.transcriptFields["text_status"])
	assert.Equal(t, 1, agg.calls)
}
