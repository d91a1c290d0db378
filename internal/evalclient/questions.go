package evalclient

import (
	"context"
	"encoding/json"
	"fmt"
)

// QuestionGenerator 题目生成服务
type QuestionGenerator interface {
	GenerateMCQ(ctx context.Context, resumeName string, resume []byte, jdName string, jd []byte) ([]RawMCQQuestion, error)
	GenerateVoiceQuestions(ctx context.Context, jdName string, jd []byte) ([]RawVoiceQuestion, error)
}

var _ QuestionGenerator = (*Client)(nil)

// RawMCQQuestion 生成服务返回的选择题
type RawMCQQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// RawVoiceQuestion 生成服务返回的语音题
type RawVoiceQuestion struct {
	Question string `json:"question"`
}

// 生成服务统一的嵌套响应信封:
// { "POST Response": [ { "MCQ with answers": {"questions": [...]},
//                        "Questions": {"questions": [...]} } ] }
type generationEnvelope struct {
	PostResponse []generationResult `json:"POST Response"`
}

type generationResult struct {
	MCQWithAnswers *mcqQuestionList   `json:"MCQ with answers"`
	Questions      *voiceQuestionList `json:"Questions"`
}

type mcqQuestionList struct {
	Questions []RawMCQQuestion `json:"questions"`
}

type voiceQuestionList struct {
	Questions []RawVoiceQuestion `json:"questions"`
}

// GenerateMCQ 以multipart方式上传简历与职位描述，生成选择题。
// 空题目集视为失败，禁止创建没有题目的会话。
func (c *Client) GenerateMCQ(ctx context.Context, resumeName string, resume []byte, jdName string, jd []byte) ([]RawMCQQuestion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.generationTimeout)
	defer cancel()

	body, err := c.postMultipartFiles(ctx, c.cfg.MCQGenerationURL, []multipartFile{
		{field: "resumes", filename: resumeName, data: resume, contentType: "application/pdf"},
		{field: "job_description", filename: jdName, data: jd, contentType: "application/pdf"},
	})
	if err != nil {
		return nil, fmt.Errorf("选择题生成服务调用失败: %w", err)
	}

	var envelope generationEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("解析选择题生成响应失败: %w", err)
	}
	if len(envelope.PostResponse) == 0 || envelope.PostResponse[0].MCQWithAnswers == nil {
		return nil, fmt.Errorf("选择题生成响应结构无效")
	}

	questions := envelope.PostResponse[0].MCQWithAnswers.Questions
	if len(questions) == 0 {
		return nil, fmt.Errorf("选择题生成响应中没有有效题目")
	}
	return questions, nil
}

// GenerateVoiceQuestions 仅上传职位描述，生成语音题
func (c *Client) GenerateVoiceQuestions(ctx context.Context, jdName string, jd []byte) ([]RawVoiceQuestion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.generationTimeout)
	defer cancel()

	body, err := c.postMultipartFiles(ctx, c.cfg.VoiceQuestionURL, []multipartFile{
		{field: "job_description", filename: jdName, data: jd, contentType: "application/pdf"},
	})
	if err != nil {
		return nil, fmt.Errorf("语音题生成服务调用失败: %w", err)
	}

	var envelope generationEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("解析语音题生成响应失败: %w", err)
	}
	if len(envelope.PostResponse) == 0 || envelope.PostResponse[0].Questions == nil {
		return nil, fmt.Errorf("语音题生成响应结构无效")
	}

	questions := envelope.PostResponse[0].Questions.Questions
	if len(questions) == 0 {
		return nil, fmt.Errorf("语音题生成响应中没有有效题目")
	}
	return questions, nil
}
