// Package evalclient 封装对外部评估服务的HTTP调用：
// 语音转写、文本评分、音频评分、视频情绪评估与题目生成。
// 每类调用都有独立的超时与类型化的响应解析。
package evalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"assessment-go/internal/config"
)

// Client 外部评估服务客户端
type Client struct {
	cfg               *config.EvaluationConfig
	httpClient        *http.Client
	generationTimeout time.Duration
}

// NewClient 创建评估服务客户端
func NewClient(cfg *config.EvaluationConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("评估服务配置不能为空")
	}

	requestTimeout, err := time.ParseDuration(cfg.RequestTimeout)
	if err != nil || requestTimeout <= 0 {
		requestTimeout = 120 * time.Second
	}
	generationTimeout, err := time.ParseDuration(cfg.GenerationTimeout)
	if err != nil || generationTimeout <= 0 {
		generationTimeout = 180 * time.Second
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		generationTimeout: generationTimeout,
	}, nil
}

// postJSON 发送JSON请求并读取完整响应体
func (c *Client) postJSON(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("评估服务调用失败, 状态码: %d, 响应: %s", resp.StatusCode, truncateBody(body))
	}
	return body, nil
}

// postMultipart 以multipart/form-data上传文件并读取完整响应体
func (c *Client) postMultipart(ctx context.Context, url, fieldName, filename string, data []byte, extraFields map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(fieldName, filename)
	if err != nil {
		return nil, fmt.Errorf("创建表单文件字段失败: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("写入文件内容失败: %w", err)
	}
	for k, v := range extraFields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("写入表单字段 %s 失败: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("关闭multipart writer失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("评估服务调用失败, 状态码: %d, 响应: %s", resp.StatusCode, truncateBody(body))
	}
	return body, nil
}

// multipartFile 描述一个待上传的multipart文件字段
type multipartFile struct {
	field       string
	filename    string
	data        []byte
	contentType string
}

// postMultipartFiles 以multipart/form-data上传多个文件并读取完整响应体
func (c *Client) postMultipartFiles(ctx context.Context, url string, files []multipartFile) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="%s"; filename="%s"`, f.field, f.filename))
		if f.contentType != "" {
			header.Set("Content-Type", f.contentType)
		}
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("创建表单文件字段 %s 失败: %w", f.field, err)
		}
		if _, err := part.Write(f.data); err != nil {
			return nil, fmt.Errorf("写入文件内容失败: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("关闭multipart writer失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("评估服务调用失败, 状态码: %d, 响应: %s", resp.StatusCode, truncateBody(body))
	}
	return body, nil
}

// truncateBody 截断错误响应体，避免日志与错误链中携带大段响应
func truncateBody(body []byte) string {
	const maxLen = 200
	s := string(body)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
