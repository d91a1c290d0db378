package evalclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"assessment-go/internal/config"
	"assessment-go/internal/evalclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*evalclient.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.EvaluationConfig{
		TranscriptionURL: server.URL + "/transcribe",
		TextScoringURL:   server.URL + "/text",
		AudioScoringURL:  server.URL + "/audio",
		VideoScoringURL:  server.URL + "/video",
		MCQGenerationURL: server.URL + "/mcq",
		VoiceQuestionURL: server.URL + "/voice",
		RequestTimeout:   "5s",
	}
	client, err := evalclient.NewClient(cfg)
	require.NoError(t, err)
	return client, server
}

func TestTranscribe(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("audio")
		require.NoError(t, err, "音频应以audio字段上传")
		json.NewEncoder(w).Encode(map[string]string{"text": "转写结果"})
	})

	text, err := client.Transcribe(context.Background(), "answer.wav", []byte("fake-audio"))
	require.NoError(t, err)
	assert.Equal(t, "转写结果", text)
}

func TestTranscribe_MissingTextField(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"other": "value"})
	})

	_, err := client.Transcribe(context.Background(), "answer.wav", []byte("fake-audio"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text")
}

func TestScoreText(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "问题", req["question"])
		assert.Equal(t, "回答", req["answer"])
		json.NewEncoder(w).Encode(map[string]float64{
			"relevance":     90,
			"clarity":       80,
			"total_average": 85,
		})
	})

	metrics, err := client.ScoreText(context.Background(), "问题", "回答")
	require.NoError(t, err)
	assert.InDelta(t, 85.0, metrics.TotalAverage, 0.001)
	assert.Len(t, metrics.Raw, 3)
}

func TestScoreAudio(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("audios")
		require.NoError(t, err, "音频应以audios字段上传")
		json.NewEncoder(w).Encode(map[string]float64{
			"Fluency":     70,
			"Total Score": 72.5,
		})
	})

	grading, err := client.ScoreAudio(context.Background(), "answer.wav", []byte("fake-audio"))
	require.NoError(t, err)
	assert.InDelta(t, 72.5, grading.TotalScore, 0.001)
}

func TestScoreVideo(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"emotion_results": map[string]float64{"happy": 0.6, "neutral": 0.4},
			"video_score":     81.0,
		})
	})

	result, err := client.ScoreVideo(context.Background(), "camera.webm", []byte("fake-video"))
	require.NoError(t, err)
	require.NotNil(t, result.VideoScore)
	assert.InDelta(t, 81.0, *result.VideoScore, 0.001)
	assert.Len(t, result.EmotionResults, 2)
}

func TestScoreVideo_MissingEmotions(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"video_score": 81.0})
	})

	_, err := client.ScoreVideo(context.Background(), "camera.webm", []byte("fake-video"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "emotion_results")
}

func TestScoreVideo_ScoreOptional(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"emotion_results": map[string]float64{"neutral": 1.0},
		})
	})

	result, err := client.ScoreVideo(context.Background(), "camera.webm", []byte("fake-video"))
	require.NoError(t, err)
	assert.Nil(t, result.VideoScore, "缺失的分数应保留为nil，由调用方决定缺省值")
}

func TestUpstreamErrorPropagated(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal failure", http.StatusInternalServerError)
	})

	_, err := client.ScoreText(context.Background(), "q", "a")
	require.Error(t, err)
}

func TestGenerateMCQ(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("resumes")
		require.NoError(t, err, "简历应以resumes字段上传")
		_, _, err = r.FormFile("job_description")
		require.NoError(t, err, "职位描述应以job_description字段上传")

		json.NewEncoder(w).Encode(map[string]interface{}{
			"POST Response": []map[string]interface{}{
				{
					"MCQ with answers": map[string]interface{}{
						"questions": []map[string]interface{}{
							{
								"question": "Go的零值是什么?",
								"options":  []string{"nil", "类型相关", "0", "panic"},
								"answer":   "类型相关",
							},
						},
					},
				},
			},
		})
	})

	questions, err := client.GenerateMCQ(context.Background(), "resume.pdf", []byte("r"), "jd.pdf", []byte("j"))
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "Go的零值是什么?", questions[0].Question)
	assert.Len(t, questions[0].Options, 4)
	assert.Equal(t, "类型相关", questions[0].Answer)
}

func TestGenerateMCQ_EmptyQuestions(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"POST Response": []map[string]interface{}{
				{"MCQ with answers": map[string]interface{}{"questions": []interface{}{}}},
			},
		})
	})

	_, err := client.GenerateMCQ(context.Background(), "resume.pdf", []byte("r"), "jd.pdf", []byte("j"))
	require.Error(t, err, "空题目列表应视为生成失败")
}

func TestGenerateMCQ_MalformedEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"POST Response": []interface{}{}})
	})

	_, err := client.GenerateMCQ(context.Background(), "resume.pdf", []byte("r"), "jd.pdf", []byte("j"))
	require.Error(t, err)
}

func TestGenerateVoiceQuestions(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("job_description")
		require.NoError(t, err)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"POST Response": []map[string]interface{}{
				{
					"Questions": map[string]interface{}{
						"questions": []map[string]string{
							{"question": "介绍一个你主导的项目"},
							{"question": "如何处理线上故障"},
						},
					},
				},
			},
		})
	})

	questions, err := client.GenerateVoiceQuestions(context.Background(), "jd.pdf", []byte("j"))
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "介绍一个你主导的项目", questions[0].Question)
}
