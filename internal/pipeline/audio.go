// Package pipeline 实现答案评估、视频评估与分数聚合子流水线。
// 每条流水线以条件更新抢占记录，失败只影响自身记录，不级联取消。
package pipeline

import (
	"encoding/binary"
	"math"
	"regexp"
	"strings"

	"assessment-go/internal/constants"
)

// AudioValidation 音频校验结果
type AudioValidation struct {
	Valid  bool
	Silent bool // 静音视为可接受的空回答，非静音的校验失败进入failed
	Reason string
}

// whisper可能输出的静音占位标记
var silentIndicators = []string{"[silence]", "[empty]", "[no speech]", "..."}

// 转写行内的时间戳，如 [00:01.000 --> 00:04.520]
var timestampPattern = regexp.MustCompile(`\[\d{2}:\d{2}\.\d{3} --> \d{2}:\d{2}\.\d{3}\]`)

// 其余方括号标记
var bracketPattern = regexp.MustCompile(`\[.*?\]`)

// 连续空白
var whitespacePattern = regexp.MustCompile(`\s+`)

// ValidateAudio 校验上传的音频字节流。
// 长度不足直接拒绝；否则对前一秒的16bit小端采样计算归一化RMS，
// 低于阈值判定为静音。
func ValidateAudio(audio []byte) AudioValidation {
	if len(audio) < constants.MinAudioBytes {
		return AudioValidation{Valid: false, Silent: false, Reason: "音频过短"}
	}

	windowBytes := len(audio)
	if windowBytes > constants.RMSWindowBytes {
		windowBytes = constants.RMSWindowBytes
	}
	// 采样按2字节对齐
	windowBytes -= windowBytes % 2

	var sum float64
	for i := 0; i < windowBytes; i += 2 {
		sample := int16(binary.LittleEndian.Uint16(audio[i : i+2]))
		sum += float64(sample) * float64(sample)
	}

	sampleCount := float64(windowBytes / 2)
	rms := math.Sqrt(sum/sampleCount) / 32768.0

	if rms <= constants.SilenceRMSThreshold {
		return AudioValidation{Valid: false, Silent: true, Reason: "未检测到语音（静音音频）"}
	}
	return AudioValidation{Valid: true}
}

// CleanTranscript 清洗转写服务的原始输出：
// 剔除静音占位、语言检测行、时间戳与方括号标记，压缩空白。
// 清洗后少于2个字符返回空串。
func CleanTranscript(raw string) string {
	if raw == "" {
		return ""
	}

	lower := strings.ToLower(raw)
	for _, indicator := range silentIndicators {
		if strings.Contains(lower, indicator) {
			return ""
		}
	}

	var cleanedLines []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.Contains(line, "Detecting language") ||
			strings.Contains(line, "Detected language") {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		line = timestampPattern.ReplaceAllString(line, "")
		line = bracketPattern.ReplaceAllString(line, "")
		line = whitespacePattern.ReplaceAllString(strings.TrimSpace(line), " ")
		cleanedLines = append(cleanedLines, line)
	}

	result := strings.TrimSpace(strings.Join(cleanedLines, " "))
	if len(result) < 2 {
		return ""
	}
	return result
}

// EstimateDurationSec 按16kHz 16bit单声道估算音频时长
func EstimateDurationSec(audioBytes int) float64 {
	return float64(audioBytes) / float64(constants.AudioBytesPerSecond)
}
