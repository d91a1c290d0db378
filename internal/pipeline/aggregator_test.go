package pipeline_test

import (
	"encoding/json"
	"testing"

	"assessment-go/internal/constants"
	"assessment-go/internal/pipeline"
	"assessment-go/internal/storage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func mustJSON(t *testing.T, m map[string]interface{}) datatypes.JSON {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	return data
}

func answeredVoice(t *testing.T, questionID string, audioScore, textScore float64) models.VoiceAnswer {
	t.Helper()
	return models.VoiceAnswer{
		QuestionID:       questionID,
		Valid:            true,
		ProcessingStatus: constants.ProcessingCompleted,
		AudioStatus:      constants.ProcessingCompleted,
		AudioGrading:     mustJSON(t, map[string]interface{}{"Total Score": audioScore}),
		TextStatus:       constants.ProcessingCompleted,
		TextMetrics:      mustJSON(t, map[string]interface{}{"total_average": textScore}),
	}
}

func TestComputeScores_AllAnswered(t *testing.T) {
	questions := []models.VoiceQuestion{{ID: "v-1"}, {ID: "v-2"}}
	answers := []models.VoiceAnswer{
		answeredVoice(t, "v-1", 50, 90),
		answeredVoice(t, "v-2", 50, 90),
	}

	scores := pipeline.ComputeScores(80, questions, answers, 70)

	assert.InDelta(t, 50.0, scores.AudioAverage, 0.001)
	assert.InDelta(t, 90.0, scores.TextAverage, 0.001)
	assert.Equal(t, 2, scores.QuestionsAttempted)
	assert.Equal(t, 2, scores.TotalQuestions)
	// voice = 0.1*50 + 0.8*90 + 0.1*70 = 84; combined = round(0.4*80 + 0.6*84) = round(82.4) = 82
	assert.InDelta(t, 82.0, scores.CombinedScore, 0.001)
}

func TestComputeScores_UnansweredQuestionsCountAsZero(t *testing.T) {
	// 平均分母是总题数，未作答的题目拉低平均分
	questions := []models.VoiceQuestion{{ID: "v-1"}, {ID: "v-2"}}
	answers := []models.VoiceAnswer{answeredVoice(t, "v-1", 80, 80)}

	scores := pipeline.ComputeScores(100, questions, answers, 0)

	assert.InDelta(t, 40.0, scores.AudioAverage, 0.001)
	assert.InDelta(t, 40.0, scores.TextAverage, 0.001)
	assert.Equal(t, 1, scores.QuestionsAttempted)
	assert.Equal(t, 2, scores.TotalQuestions)
	// voice = 0.1*40 + 0.8*40 + 0.1*0 = 36; combined = round(40 + 21.6) = 62
	assert.InDelta(t, 62.0, scores.CombinedScore, 0.001)
}

func TestComputeScores_SilentAnswerNotAttempted(t *testing.T) {
	questions := []models.VoiceQuestion{{ID: "v-1"}}
	answers := []models.VoiceAnswer{
		{
			QuestionID:       "v-1",
			Valid:            false, // 静音答案
			ProcessingStatus: constants.ProcessingCompleted,
			AudioStatus:      constants.ProcessingCompleted,
		},
	}

	scores := pipeline.ComputeScores(60, questions, answers, 75)
	assert.Equal(t, 0, scores.QuestionsAttempted)
	assert.Zero(t, scores.AudioAverage)
	assert.Zero(t, scores.TextAverage)
}

func TestComputeScores_NoQuestions(t *testing.T) {
	scores := pipeline.ComputeScores(90, nil, nil, 75)
	assert.Zero(t, scores.AudioAverage)
	assert.Zero(t, scores.TextAverage)
	assert.Equal(t, 0, scores.TotalQuestions)
	// voice = 0.1*75 = 7.5; combined = round(0.4*90 + 0.6*7.5) = round(40.5) = 41
	assert.InDelta(t, 41.0, scores.CombinedScore, 0.001)
}

func TestComputeScores_MalformedGradingIgnored(t *testing.T) {
	questions := []models.VoiceQuestion{{ID: "v-1"}}
	answers := []models.VoiceAnswer{
		{
			QuestionID:       "v-1",
			Valid:            true,
			ProcessingStatus: constants.ProcessingCompleted,
			AudioStatus:      constants.ProcessingCompleted,
			AudioGrading:     datatypes.JSON(`{"Total Score": "not a number"}`),
			TextMetrics:      datatypes.JSON(`not json`),
		},
	}

	scores := pipeline.ComputeScores(50, questions, answers, 0)
	assert.Zero(t, scores.AudioAverage)
	assert.Zero(t, scores.TextAverage)
	assert.Equal(t, 1, scores.QuestionsAttempted)
}
