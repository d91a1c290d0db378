package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"assessment-go/internal/pipeline"
	"assessment-go/internal/storage/models"
)

// Data 报告渲染输入
type Data struct {
	SessionID     string
	CandidateName string
	PositionTitle string
	CompletedAt   *time.Time
	GeneratedAt   time.Time

	Scores       *pipeline.ScoreComponents
	MCQQuestions []models.MCQQuestion
	VoiceAnswers []VoiceAnswerView
}

// VoiceAnswerView 报告中的单题语音答案视图
type VoiceAnswerView struct {
	QuestionText string
	AnswerText   string
	Status       string
	Valid        bool
	SkipReason   string
	DurationSec  float64
}

// Renderer 报告渲染器，返回内容、Content-Type和文件扩展名
type Renderer interface {
	Render(data *Data) (content []byte, contentType string, ext string, err error)
}

// HTMLRenderer 默认的HTML报告渲染器
type HTMLRenderer struct {
	tmpl *template.Template
}

// NewHTMLRenderer 创建HTML渲染器
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		tmpl: template.Must(template.New("report").Funcs(template.FuncMap{
			"score": formatScore,
		}).Parse(reportTemplate)),
	}
}

// Render 渲染HTML报告
func (r *HTMLRenderer) Render(data *Data) ([]byte, string, string, error) {
	if data == nil || data.Scores == nil {
		return nil, "", "", fmt.Errorf("报告数据不完整")
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return nil, "", "", err
	}
	return buf.Bytes(), "text/html; charset=utf-8", ".html", nil
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

const reportTemplate = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<title>测评报告 - {{.CandidateName}}</title>
<style>
body { font-family: "Helvetica Neue", Arial, sans-serif; margin: 40px; color: #222; }
h1 { border-bottom: 2px solid #2c6e9e; padding-bottom: 8px; }
table { border-collapse: collapse; margin: 16px 0; }
th, td { border: 1px solid #ccc; padding: 6px 14px; text-align: left; }
th { background: #f0f4f8; }
.combined { font-size: 1.4em; font-weight: bold; color: #2c6e9e; }
.answer { margin: 12px 0; padding: 10px; background: #f8f9fa; border-left: 3px solid #2c6e9e; }
.skipped { border-left-color: #b55; }
.meta { color: #777; font-size: 0.85em; }
</style>
</head>
<body>
<h1>候选人测评报告</h1>
<p>候选人: <strong>{{.CandidateName}}</strong>{{if .PositionTitle}} &nbsp;|&nbsp; 应聘职位: {{.PositionTitle}}{{end}}</p>
{{if .CompletedAt}}<p class="meta">完成时间: {{.CompletedAt.Format "2006-01-02 15:04"}}</p>{{end}}

<h2>综合成绩</h2>
<p class="combined">综合得分: {{score .Scores.CombinedScore}}</p>
<table>
<tr><th>分项</th><th>得分</th></tr>
<tr><td>选择题</td><td>{{score .Scores.MCQScore}}</td></tr>
<tr><td>音频表现</td><td>{{score .Scores.AudioAverage}}</td></tr>
<tr><td>回答内容</td><td>{{score .Scores.TextAverage}}</td></tr>
<tr><td>视频情绪</td><td>{{score .Scores.VideoScore}}</td></tr>
</table>
<p class="meta">语音作答 {{.Scores.QuestionsAttempted}}/{{.Scores.TotalQuestions}} 题有效</p>

<h2>语音问答</h2>
{{range .VoiceAnswers}}
<div class="answer{{if not .Valid}} skipped{{end}}">
<p><strong>问题:</strong> {{.QuestionText}}</p>
{{if .AnswerText}}<p><strong>回答:</strong> {{.AnswerText}}</p>{{end}}
{{if .SkipReason}}<p class="meta">未作答 ({{.SkipReason}})</p>{{end}}
</div>
{{end}}

<h2>选择题明细</h2>
<table>
<tr><th>#</th><th>题目</th><th>候选人答案</th><th>正确答案</th></tr>
{{range $i, $q := .MCQQuestions}}
<tr><td>{{$i}}</td><td>{{$q.Question}}</td><td>{{$q.UserAnswer}}</td><td>{{$q.CorrectAnswer}}</td></tr>
{{end}}
</table>

<p class="meta">报告生成于 {{.GeneratedAt.Format "2006-01-02 15:04:05"}}</p>
</body>
</html>`
