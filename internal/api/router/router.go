package router

import (
	"context"
	"errors"
	"io"
	"time"

	"assessment-go/internal/api/handler"
	"assessment-go/internal/constants"
	"assessment-go/internal/report"
	"assessment-go/internal/scheduler"
	"assessment-go/internal/session"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/route"
)

// RegisterRoutes 注册API路由
func RegisterRoutes(h *server.Hertz, ah *handler.AssessmentHandler) {
	api := h.Group("/api/v1")

	// 输入材料
	api.POST("/artifacts/:kind", func(c context.Context, ctx *app.RequestContext) {
		kind := ctx.Param("kind")
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
			return
		}
		defer file.Close()

		resp, err := ah.HandleArtifactUpload(c, kind, file, fileHeader.Size, fileHeader.Filename)
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 简历-职位描述配对
	api.POST("/match", func(c context.Context, ctx *app.RequestContext) {
		var req struct {
			ResumeID         string `json:"resume_id"`
			JobDescriptionID string `json:"job_description_id"`
		}
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败"})
			return
		}
		resp, err := ah.HandleMatchRequest(c, req.ResumeID, req.JobDescriptionID)
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	registerJobRoutes(api, ah)
	registerSessionRoutes(api, ah)

	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		deps := utils.H{"mysql": "ok", "redis": "ok"}
		status := consts.StatusOK
		if err := ah.Storage().MySQL.Ping(c); err != nil {
			deps["mysql"] = "unavailable"
			status = consts.StatusServiceUnavailable
		}
		if ah.Storage().Redis == nil {
			deps["redis"] = "disabled"
		} else if err := ah.Storage().Redis.Ping(c); err != nil {
			deps["redis"] = "unavailable"
		}
		ctx.JSON(status, deps)
	})
}

// registerJobRoutes HR侧的任务管理路由
func registerJobRoutes(api *route.RouterGroup, ah *handler.AssessmentHandler) {
	api.POST("/jobs", func(c context.Context, ctx *app.RequestContext) {
		var req scheduler.ScheduleRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败"})
			return
		}
		job, err := ah.Scheduler().ScheduleJob(c, &req)
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{
			"job_id":       job.JobID,
			"access_token": job.AccessToken,
			"scheduled_at": job.ScheduledAt,
			"expires_at":   job.ExpiresAt,
		})
	})

	api.GET("/jobs", func(c context.Context, ctx *app.RequestContext) {
		email := ctx.Query("email")
		jobs, err := ah.Scheduler().ListJobs(c, email)
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"jobs": jobs})
	})

	api.GET("/jobs/:job_id", func(c context.Context, ctx *app.RequestContext) {
		job, err := ah.Scheduler().GetJob(c, ctx.Param("job_id"))
		if err != nil {
			ctx.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, job)
	})

	api.DELETE("/jobs/:job_id", func(c context.Context, ctx *app.RequestContext) {
		if err := ah.Scheduler().CancelJob(c, ctx.Param("job_id")); err != nil {
			ctx.JSON(consts.StatusConflict, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"status": "cancelled"})
	})
}

// registerSessionRoutes 候选人侧的会话路由
func registerSessionRoutes(api *route.RouterGroup, ah *handler.AssessmentHandler) {
	api.GET("/assessment/validate", func(c context.Context, ctx *app.RequestContext) {
		result, err := ah.Sessions().ValidateToken(c, ctx.Query("token"))
		if err != nil {
			writeSessionError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, result)
	})

	api.POST("/assessment/start", func(c context.Context, ctx *app.RequestContext) {
		var req struct {
			Token string `json:"token"`
		}
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败"})
			return
		}
		sess, err := ah.Sessions().StartSession(c, req.Token)
		if err != nil {
			writeSessionError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{
			"session_id": sess.SessionID,
			"phase":      sess.Phase,
			"status":     sess.Status,
		})
	})

	api.GET("/sessions/:session_id", func(c context.Context, ctx *app.RequestContext) {
		view, err := ah.Sessions().GetSessionView(c, ctx.Param("session_id"))
		if err != nil {
			writeSessionError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, view)
	})

	api.PUT("/sessions/:session_id/mcq", func(c context.Context, ctx *app.RequestContext) {
		var req struct {
			QuestionID string `json:"question_id"`
			Answer     string `json:"answer"`
		}
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败"})
			return
		}
		if err := ah.Sessions().UpdateMCQAnswer(c, ctx.Param("session_id"), req.QuestionID, req.Answer); err != nil {
			writeSessionError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"status": "saved"})
	})

	api.POST("/sessions/:session_id/complete-mcq", func(c context.Context, ctx *app.RequestContext) {
		result, err := ah.Sessions().CompleteMCQ(c, ctx.Param("session_id"))
		if err != nil {
			writeSessionError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, result)
	})

	api.POST("/sessions/:session_id/start-voice", func(c context.Context, ctx *app.RequestContext) {
		questions, err := ah.Sessions().StartVoice(c, ctx.Param("session_id"))
		if err != nil {
			writeSessionError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"voice_questions": questions})
	})

	api.POST("/sessions/:session_id/answers", func(c context.Context, ctx *app.RequestContext) {
		sessionID := ctx.Param("session_id")
		questionID := ctx.PostForm("question_id")
		skipReason := ctx.PostForm("skip_reason")

		var audio []byte
		if skipReason == "" {
			fileHeader, err := ctx.FormFile("audio")
			if err != nil {
				ctx.JSON(consts.StatusBadRequest, utils.H{"error": "音频文件未找到"})
				return
			}
			file, err := fileHeader.Open()
			if err != nil {
				ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开音频文件失败"})
				return
			}
			audio, err = io.ReadAll(file)
			file.Close()
			if err != nil {
				ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "读取音频文件失败"})
				return
			}
		}

		answerID, err := ah.Sessions().SubmitVoiceAnswer(c, sessionID, questionID, audio, skipReason)
		if err != nil {
			writeSessionError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"answer_id": answerID, "status": "accepted"})
	})

	api.POST("/sessions/:session_id/recordings", func(c context.Context, ctx *app.RequestContext) {
		kind := ctx.PostForm("kind")
		if kind == "" {
			kind = session.RecordingKindCamera
		}
		fileHeader, err := ctx.FormFile("video")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "录像文件未找到"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开录像文件失败"})
			return
		}
		video, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "读取录像文件失败"})
			return
		}

		recordingID, err := ah.Sessions().UploadRecording(c, ctx.Param("session_id"), kind, video)
		if err != nil {
			writeSessionError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"recording_id": recordingID, "status": "accepted"})
	})

	api.POST("/sessions/:session_id/complete", func(c context.Context, ctx *app.RequestContext) {
		if err := ah.Sessions().CompleteVoice(c, ctx.Param("session_id")); err != nil {
			writeSessionError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"status": "completed"})
	})

	api.POST("/sessions/:session_id/report", func(c context.Context, ctx *app.RequestContext) {
		err := ah.Reports().Request(c, ctx.Param("session_id"))
		if err != nil {
			if errors.Is(err, report.ErrReportInProgress) {
				ctx.JSON(consts.StatusConflict, utils.H{"error": err.Error()})
				return
			}
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusAccepted, utils.H{"status": "processing"})
	})

	api.GET("/sessions/:session_id/report", func(c context.Context, ctx *app.RequestContext) {
		url, err := ah.Reports().DownloadURL(c, ctx.Param("session_id"))
		if err != nil {
			ctx.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{
			"download_url": url,
			"expires_at":   time.Now().Add(constants.ReportURLExpiry),
		})
	})
}

// writeSessionError 把业务错误码映射到HTTP状态码
func writeSessionError(ctx *app.RequestContext, err error) {
	code, message := handler.CodedErrorOf(err)
	switch code {
	case session.CodeSessionInvalid:
		ctx.JSON(consts.StatusNotFound, utils.H{"code": code, "error": message})
	case session.CodeSessionExpired:
		ctx.JSON(consts.StatusGone, utils.H{"code": code, "error": message})
	case session.CodeSessionConflict:
		ctx.JSON(consts.StatusConflict, utils.H{"code": code, "error": message})
	case session.CodeValidationFailed:
		ctx.JSON(consts.StatusBadRequest, utils.H{"code": code, "error": message})
	case session.CodeNotReady:
		ctx.JSON(consts.StatusForbidden, utils.H{"code": code, "error": message})
	default:
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
	}
}
