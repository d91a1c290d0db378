package session_test

import (
	"errors"
	"fmt"
	"testing"

	"assessment-go/internal/constants"
	"assessment-go/internal/session"
	"assessment-go/internal/storage/models"

	"github.com/stretchr/testify/assert"
)

func TestScoreMCQ(t *testing.T) {
	cases := []struct {
		name        string
		questions   []models.MCQQuestion
		wantScore   float64
		wantCorrect int
	}{
		{
			name:      "无题目",
			questions: nil, wantScore: 0, wantCorrect: 0,
		},
		{
			name: "全对",
			questions: []models.MCQQuestion{
				{CorrectAnswer: "A", UserAnswer: "A"},
				{CorrectAnswer: "B", UserAnswer: "B"},
			},
			wantScore: 100, wantCorrect: 2,
		},
		{
			name: "部分正确",
			questions: []models.MCQQuestion{
				{CorrectAnswer: "A", UserAnswer: "A"},
				{CorrectAnswer: "B", UserAnswer: "C"},
				{CorrectAnswer: "C", UserAnswer: "C"},
				{CorrectAnswer: "D", UserAnswer: ""},
			},
			wantScore: 50, wantCorrect: 2,
		},
		{
			name: "忽略大小写与空白",
			questions: []models.MCQQuestion{
				{CorrectAnswer: "Goroutine", UserAnswer: " goroutine "},
			},
			wantScore: 100, wantCorrect: 1,
		},
		{
			name: "未作答不计分",
			questions: []models.MCQQuestion{
				{CorrectAnswer: "", UserAnswer: ""},
			},
			wantScore: 0, wantCorrect: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score, correct := session.ScoreMCQ(tc.questions)
			assert.InDelta(t, tc.wantScore, score, 0.001)
			assert.Equal(t, tc.wantCorrect, correct)
		})
	}
}

func TestCodedError(t *testing.T) {
	err := session.NewCodedError(session.CodeSessionExpired, "会话 %s 已过期", "abc")
	assert.Equal(t, "SESSION_EXPIRED: 会话 abc 已过期", err.Error())

	// errors.As穿透包装链提取业务错误
	wrapped := fmt.Errorf("外层: %w", err)
	var coded *session.CodedError
	assert.True(t, errors.As(wrapped, &coded))
	assert.Equal(t, session.CodeSessionExpired, coded.Code)
}

func TestMarkSkipped(t *testing.T) {
	// 放弃作答的答案不能伪装成评估完成：整体与两条子状态都必须是skipped
	answer := &models.VoiceAnswer{
		AnswerID:  "ans-1",
		SessionID: "sess-1",
	}
	session.MarkSkipped(answer, constants.SkipReasonTimeout)

	assert.False(t, answer.Answered)
	assert.False(t, answer.Valid)
	assert.Equal(t, constants.SkipReasonTimeout, answer.SkipReason)
	assert.Equal(t, constants.ProcessingSkipped, answer.ProcessingStatus)
	assert.Equal(t, constants.ProcessingSkipped, answer.AudioStatus)
	assert.Equal(t, constants.ProcessingSkipped, answer.TextStatus)
}
