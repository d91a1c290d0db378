package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"assessment-go/internal/constants"
	"assessment-go/internal/logger"
	"assessment-go/internal/storage"
	"assessment-go/internal/storage/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ScoreComponents 聚合后的各分量
type ScoreComponents struct {
	MCQScore           float64
	AudioAverage       float64
	TextAverage        float64
	VideoScore         float64
	CombinedScore      float64
	QuestionsAttempted int
	TotalQuestions     int
}

// ComputeScores 从已落库的评估结果纯函数重算各分量。
// 跳过和无效的题目按0分计入分母，不给未作答留利好。
// 同一输入重复计算结果一致，聚合因此天然幂等。
func ComputeScores(mcqScore float64, questions []models.VoiceQuestion, answers []models.VoiceAnswer, videoScore float64) ScoreComponents {
	totalQuestions := len(questions)

	byQuestion := make(map[string]*models.VoiceAnswer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	var audioSum, textSum float64
	for _, q := range questions {
		answer := byQuestion[q.ID]
		if answer == nil {
			continue
		}
		audioSum += extractJSONScore(answer.AudioGrading, "Total Score")
		textSum += extractJSONScore(answer.TextMetrics, "total_average")
	}

	var audioAverage, textAverage float64
	if totalQuestions > 0 {
		audioAverage = audioSum / float64(totalQuestions)
		textAverage = textSum / float64(totalQuestions)
	}

	attempted := 0
	for i := range answers {
		a := &answers[i]
		if a.Valid && a.ProcessingStatus == constants.ProcessingCompleted &&
			a.AudioStatus == constants.ProcessingCompleted {
			attempted++
		}
	}

	voiceComponent := audioAverage*constants.AudioWeight +
		textAverage*constants.TextWeight +
		videoScore*constants.VideoWeight
	combined := math.Round(mcqScore*constants.MCQWeight + voiceComponent*constants.VoiceWeight)

	return ScoreComponents{
		MCQScore:           mcqScore,
		AudioAverage:       audioAverage,
		TextAverage:        textAverage,
		VideoScore:         videoScore,
		CombinedScore:      combined,
		QuestionsAttempted: attempted,
		TotalQuestions:     totalQuestions,
	}
}

// extractJSONScore 从JSON对象中提取数值字段，缺失或类型不符返回0
func extractJSONScore(data datatypes.JSON, key string) float64 {
	if len(data) == 0 {
		return 0
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return 0
	}
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

// Aggregator 分数聚合器，从各子流水线的落库结果重算成绩
type Aggregator struct {
	db *storage.MySQL
}

// NewAggregator 创建分数聚合器
func NewAggregator(db *storage.MySQL) *Aggregator {
	return &Aggregator{db: db}
}

// Recompute 重算会话成绩并写入TestResult。
// 整个重算是纯函数+单条更新，与对账任务并发执行也不会产生不一致。
func (a *Aggregator) Recompute(ctx context.Context, sessionID string) (*ScoreComponents, error) {
	session, err := a.db.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}

	result, err := a.db.GetTestResultBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("会话 %s 没有成绩记录，无法聚合", sessionID)
		}
		return nil, fmt.Errorf("查询成绩记录失败: %w", err)
	}

	answers, err := a.db.AnswersBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	questions, err := models.VoiceQuestionsFromJSON(session.VoiceQuestions)
	if err != nil {
		return nil, fmt.Errorf("解析语音题快照失败: %w", err)
	}

	var videoScore float64
	recording, err := a.db.GetRecordingBySession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("查询录制记录失败: %w", err)
		}
		// 无录制记录按0分计
	} else if recording.VideoScore != nil {
		videoScore = *recording.VideoScore
	}

	var mcqScore float64
	if result.MCQScore != nil {
		mcqScore = *result.MCQScore
	}

	components := ComputeScores(mcqScore, questions, answers, videoScore)

	err = a.db.UpdateResultScores(ctx, sessionID, map[string]interface{}{
		"audio_score":         components.AudioAverage,
		"text_score":          components.TextAverage,
		"video_score":         components.VideoScore,
		"combined_score":      components.CombinedScore,
		"questions_attempted": components.QuestionsAttempted,
		"total_questions":     components.TotalQuestions,
		"status":              constants.ResultStatusCompleted,
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("session_id", sessionID).
		Float64("combined_score", components.CombinedScore).
		Int("questions_attempted", components.QuestionsAttempted).
		Msg("会话成绩聚合完成")
	return &components, nil
}
