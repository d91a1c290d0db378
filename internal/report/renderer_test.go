package report_test

import (
	"testing"
	"time"

	"assessment-go/internal/pipeline"
	"assessment-go/internal/report"
	"assessment-go/internal/storage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLRenderer_Render(t *testing.T) {
	completedAt := time.Date(2026, 3, 15, 10, 30, 0, 0, time.Local)
	data := &report.Data{
		SessionID:     "sess-1",
		CandidateName: "张三",
		PositionTitle: "后端工程师",
		CompletedAt:   &completedAt,
		GeneratedAt:   time.Now(),
		Scores: &pipeline.ScoreComponents{
			MCQScore:           80,
			AudioAverage:       72.5,
			TextAverage:        88,
			VideoScore:         75,
			CombinedScore:      83,
			QuestionsAttempted: 3,
			TotalQuestions:     4,
		},
		MCQQuestions: []models.MCQQuestion{
			{Question: "问题一", CorrectAnswer: "A", UserAnswer: "A"},
		},
		VoiceAnswers: []report.VoiceAnswerView{
			{QuestionText: "介绍一个项目", AnswerText: "我做过一个调度系统", Valid: true, Status: "completed"},
			{QuestionText: "跳过的题", SkipReason: "timeout", Valid: false, Status: "completed"},
		},
	}

	content, contentType, ext, err := report.NewHTMLRenderer().Render(data)
	require.NoError(t, err)
	assert.Equal(t, ".html", ext)
	assert.Contains(t, contentType, "text/html")

	html := string(content)
	assert.Contains(t, html, "张三")
	assert.Contains(t, html, "后端工程师")
	assert.Contains(t, html, "83.0")
	assert.Contains(t, html, "我做过一个调度系统")
	assert.Contains(t, html, "timeout")
	assert.Contains(t, html, "3/4")
}

func TestHTMLRenderer_RejectsIncompleteData(t *testing.T) {
	renderer := report.NewHTMLRenderer()

	_, _, _, err := renderer.Render(nil)
	require.Error(t, err)

	_, _, _, err = renderer.Render(&report.Data{SessionID: "sess-1"})
	require.Error(t, err, "缺少分数的数据应拒绝渲染")
}

func TestHTMLRenderer_EscapesUserContent(t *testing.T) {
	data := &report.Data{
		CandidateName: "<script>alert(1)</script>",
		GeneratedAt:   time.Now(),
		Scores:        &pipeline.ScoreComponents{},
	}
	content, _, _, err := report.NewHTMLRenderer().Render(data)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "<script>alert(1)</script>")
}
