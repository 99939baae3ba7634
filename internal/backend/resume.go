package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"resumechat/internal/logger"
)

// allowedTypes are the resume formats the backend can parse.
var allowedTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
}

// ResumeMetadata describes the uploaded file.
type ResumeMetadata struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}

// Resume is the latest processed resume. SessionID scopes chat questions.
type Resume struct {
	ID        string         `json:"id"`
	SessionID string         `json:"user_id"`
	Metadata  ResumeMetadata `json:"metadata"`
}

// DetectResumeType returns the content type of a resume file or
// ErrUnsupportedFile.
func DetectResumeType(data []byte) (string, error) {
	detected := mimetype.Detect(data)
	for _, allowed := range allowedTypes {
		if detected.Is(allowed) {
			return allowed, nil
		}
	}
	return "", fmt.Errorf("%w (detected %s)", ErrUnsupportedFile, detected.String())
}

// RequestUploadURL asks the backend for a presigned storage URL.
func (c *Client) RequestUploadURL(ctx context.Context, filename string) (string, error) {
	var payload struct {
		URL string `json:"url"`
	}
	target := c.endpoint("/resume/getSignedUrl?filename=" + url.QueryEscape(filename))
	if _, err := c.getJSON(ctx, "request_upload_url", target, &payload); err != nil {
		return "", err
	}
	if payload.URL == "" {
		return "", fmt.Errorf("request_upload_url: backend returned no url")
	}
	return payload.URL, nil
}

// UploadFile stores data at a presigned URL.
func (c *Client) UploadFile(ctx context.Context, presignedURL string, data []byte) error {
	contentType, err := DetectResumeType(data)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, request{
		op:          "upload_file",
		method:      http.MethodPut,
		url:         presignedURL,
		body:        data,
		contentType: contentType,
		anonymous:   true,
	})
	return err
}

// ProcessResume asks the backend to parse an uploaded file.
func (c *Client) ProcessResume(ctx context.Context, filename string) error {
	return c.postJSON(ctx, "process_resume", c.endpoint("/resume"), map[string]string{"fileName": filename}, nil)
}

// UploadResume validates, uploads and processes the resume at path.
func (c *Client) UploadResume(ctx context.Context, path string) (*Resume, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resume: %w", err)
	}
	if _, err := DetectResumeType(data); err != nil {
		return nil, err
	}

	filename := filepath.Base(path)
	presignedURL, err := c.RequestUploadURL(ctx, filename)
	if err != nil {
		return nil, err
	}
	if err := c.UploadFile(ctx, presignedURL, data); err != nil {
		return nil, err
	}
	if err := c.ProcessResume(ctx, filename); err != nil {
		return nil, err
	}

	c.log.Info("resume uploaded", logger.Fields("file", filename, "size", len(data)))
	return c.LatestResume(ctx)
}

// LatestResume returns the most recently processed resume, or nil if none.
func (c *Client) LatestResume(ctx context.Context) (*Resume, error) {
	var resume *Resume
	resp, err := c.getJSON(ctx, "latest_resume", c.endpoint("/resume/latest"), &resume)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent || resume == nil || resume.ID == "" {
		return nil, nil
	}
	return resume, nil
}

// DeleteResume removes a resume and its chat session.
func (c *Client) DeleteResume(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoResume
	}
	_, err := c.do(ctx, request{
		op:     "delete_resume",
		method: http.MethodDelete,
		url:    c.endpoint("/resume/" + url.PathEscape(id)),
	})
	return err
}
