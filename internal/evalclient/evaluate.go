package evalclient

import (
	"context"
	"encoding/json"
	"fmt"
)

// Transcriber 语音转写服务
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

// TextScorer 文本评估服务
type TextScorer interface {
	ScoreText(ctx context.Context, question, answer string) (*TextMetrics, error)
}

// AudioScorer 音频评分服务
type AudioScorer interface {
	ScoreAudio(ctx context.Context, filename string, audio []byte) (*AudioGrading, error)
}

// VideoScorer 视频情绪评估服务
type VideoScorer interface {
	ScoreVideo(ctx context.Context, filename string, video []byte) (*VideoResult, error)
}

var (
	_ Transcriber = (*Client)(nil)
	_ TextScorer  = (*Client)(nil)
	_ AudioScorer = (*Client)(nil)
	_ VideoScorer = (*Client)(nil)
)

// TextMetrics 文本评估结果，Raw保留服务返回的完整指标
type TextMetrics struct {
	TotalAverage float64
	Raw          map[string]interface{}
}

// AudioGrading 音频评分结果，Raw保留服务返回的完整评分对象
type AudioGrading struct {
	TotalScore float64
	Raw        map[string]interface{}
}

// VideoResult 视频情绪评估结果
type VideoResult struct {
	EmotionResults map[string]interface{}
	VideoScore     *float64 // 服务端可能不返回分数，由调用方决定缺省值
}

// transcriptionResponse 转写服务响应
type transcriptionResponse struct {
	Text *string `json:"text"`
}

// Transcribe 调用语音转写服务，返回原始转写文本
func (c *Client) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	body, err := c.postMultipart(ctx, c.cfg.TranscriptionURL, "audio", filename, audio, nil)
	if err != nil {
		return "", fmt.Errorf("转写服务调用失败: %w", err)
	}

	var resp transcriptionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("解析转写响应失败: %w", err)
	}
	// text字段缺失或非字符串均视为协议错误
	if resp.Text == nil {
		return "", fmt.Errorf("转写响应格式无效: 缺少text字段")
	}
	return *resp.Text, nil
}

// ScoreText 调用文本评估服务，响应是以指标名为键的对象，total_average为综合分
func (c *Client) ScoreText(ctx context.Context, question, answer string) (*TextMetrics, error) {
	body, err := c.postJSON(ctx, c.cfg.TextScoringURL, map[string]string{
		"question": question,
		"answer":   answer,
	})
	if err != nil {
		return nil, fmt.Errorf("文本评估服务调用失败: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("解析文本评估响应失败: %w", err)
	}

	metrics := &TextMetrics{Raw: raw}
	if v, ok := raw["total_average"].(float64); ok {
		metrics.TotalAverage = v
	}
	return metrics, nil
}

// ScoreAudio 调用音频评分服务，响应对象的 "Total Score" 为综合分
func (c *Client) ScoreAudio(ctx context.Context, filename string, audio []byte) (*AudioGrading, error) {
	body, err := c.postMultipart(ctx, c.cfg.AudioScoringURL, "audios", filename, audio, nil)
	if err != nil {
		return nil, fmt.Errorf("音频评分服务调用失败: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("解析音频评分响应失败: %w", err)
	}

	grading := &AudioGrading{Raw: raw}
	if v, ok := raw["Total Score"].(float64); ok {
		grading.TotalScore = v
	}
	return grading, nil
}

// videoResponse 视频评估服务响应
type videoResponse struct {
	EmotionResults map[string]interface{} `json:"emotion_results"`
	VideoScore     *float64               `json:"video_score"`
}

// ScoreVideo 调用视频情绪评估服务。
// emotion_results缺失视为协议错误；video_score允许缺失。
func (c *Client) ScoreVideo(ctx context.Context, filename string, video []byte) (*VideoResult, error) {
	body, err := c.postMultipart(ctx, c.cfg.VideoScoringURL, "video", filename, video, nil)
	if err != nil {
		return nil, fmt.Errorf("视频评估服务调用失败: %w", err)
	}

	var resp videoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("解析视频评估响应失败: %w", err)
	}
	if resp.EmotionResults == nil {
		return nil, fmt.Errorf("视频评估响应格式无效: 缺少emotion_results字段")
	}

	return &VideoResult{
		EmotionResults: resp.EmotionResults,
		VideoScore:     resp.VideoScore,
	}, nil
}
