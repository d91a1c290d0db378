package pipeline_test

import (
	"encoding/binary"
	"math"
	"testing"

	"assessment-go/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makePCM 生成指定幅度的16bit LE正弦波采样
func makePCM(sampleCount int, amplitude float64) []byte {
	buf := make([]byte, sampleCount*2)
	for i := 0; i < sampleCount; i++ {
		v := int16(amplitude * 32767 * math.Sin(float64(i)*0.1))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestValidateAudio_TooShort(t *testing.T) {
	result := pipeline.ValidateAudio(make([]byte, 100))
	assert.False(t, result.Valid)
	assert.False(t, result.Silent)
	assert.NotEmpty(t, result.Reason)
}

func TestValidateAudio_Silent(t *testing.T) {
	// 全零采样，RMS为0，低于静音阈值
	result := pipeline.ValidateAudio(make([]byte, 48000))
	assert.False(t, result.Valid)
	assert.True(t, result.Silent)
}

func TestValidateAudio_NearSilent(t *testing.T) {
	// 幅度0.5%，RMS约0.0035，仍低于1%阈值
	result := pipeline.ValidateAudio(makePCM(24000, 0.005))
	assert.False(t, result.Valid)
	assert.True(t, result.Silent)
}

func TestValidateAudio_Loud(t *testing.T) {
	// 幅度50%的正弦波，RMS约0.35，远超阈值
	result := pipeline.ValidateAudio(makePCM(24000, 0.5))
	assert.True(t, result.Valid)
	assert.False(t, result.Silent)
	assert.Empty(t, result.Reason)
}

func TestValidateAudio_OddLengthAligned(t *testing.T) {
	// 奇数字节长度不应该panic，窗口对齐到2字节
	data := makePCM(24000, 0.5)
	data = append(data, 0x7f)
	require.NotPanics(t, func() {
		result := pipeline.ValidateAudio(data)
		assert.True(t, result.Valid)
	})
}

func TestCleanTranscript(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"普通文本", "hello world", "hello world"},
		{"静音指示符", "[silence]", ""},
		{"静音指示符大小写", "Some [SILENCE] here", ""},
		{"空语音指示符", "[no speech]", ""},
		{"省略号", "...", ""},
		{"带时间戳", "[00:01.000 --> 00:03.500] 你好世界", "你好世界"},
		{"语言检测行被丢弃", "Detecting language using up to 30 seconds\n你好", "你好"},
		{"已检测语言行被丢弃", "Detected language: Chinese\n回答内容", "回答内容"},
		{"多余空白折叠", "  hello    world  ", "hello world"},
		{"剩余内容过短", "[00:01.000 --> 00:02.000] a", ""},
		{"方括号标注被剥离", "回答 [inaudible] 继续", "回答 继续"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, pipeline.CleanTranscript(tc.input))
		})
	}
}

func TestEstimateDurationSec(t *testing.T) {
	// 16kHz 16bit 单声道: 32000字节/秒
	assert.InDelta(t, 1.0, pipeline.EstimateDurationSec(32000), 0.001)
	assert.InDelta(t, 2.5, pipeline.EstimateDurationSec(80000), 0.001)
	assert.Zero(t, pipeline.EstimateDurationSec(0))
}
