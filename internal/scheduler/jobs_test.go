package scheduler_test

import (
	"testing"
	"time"

	"assessment-go/internal/scheduler"

	"github.com/stretchr/testify/assert"
)

func validRequest() *scheduler.ScheduleRequest {
	return &scheduler.ScheduleRequest{
		CandidateName:    "张三",
		CandidateEmail:   "zhangsan@example.com",
		PositionTitle:    "后端工程师",
		ScheduledAt:      time.Now().Add(time.Hour),
		ResumeID:         "resume-1",
		JobDescriptionID: "jd-1",
	}
}

func TestScheduleRequest_Validate(t *testing.T) {
	assert.NoError(t, validRequest().Validate())

	cases := []struct {
		name   string
		mutate func(*scheduler.ScheduleRequest)
	}{
		{"姓名为空", func(r *scheduler.ScheduleRequest) { r.CandidateName = "  " }},
		{"邮箱为空", func(r *scheduler.ScheduleRequest) { r.CandidateEmail = "" }},
		{"邮箱格式无效", func(r *scheduler.ScheduleRequest) { r.CandidateEmail = "not-an-email" }},
		{"预定时间为空", func(r *scheduler.ScheduleRequest) { r.ScheduledAt = time.Time{} }},
		{"缺少简历", func(r *scheduler.ScheduleRequest) { r.ResumeID = "" }},
		{"缺少职位描述", func(r *scheduler.ScheduleRequest) { r.JobDescriptionID = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(req)
			assert.Error(t, req.Validate())
		})
	}
}

func TestSystemClock(t *testing.T) {
	before := time.Now()
	got := scheduler.SystemClock.Now()
	after := time.Now()
	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}
