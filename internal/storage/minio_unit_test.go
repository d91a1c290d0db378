package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectContentType(t *testing.T) {
	cases := map[string]string{
		"resume.pdf":    "application/pdf",
		"resume.PDF":    "application/pdf",
		"jd.docx":       "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"old.doc":       "application/msword",
		"notes.txt":     "text/plain",
		"answer.wav":    "audio/wav",
		"camera.webm":   "video/webm",
		"unknown.bin":   "application/octet-stream",
		"no-extension":  "application/octet-stream",
		"dir/file.webm": "video/webm",
	}
	for filename, want := range cases {
		assert.Equal(t, want, DetectContentType(filename), filename)
	}
}
