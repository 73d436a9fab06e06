package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/pixelconvert/internal/convert"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"
)

type CreateJobRequest struct {
	SourceType   string `json:"source_type"`
	WebhookURL   string `json:"webhook_url,omitempty"`
	ObjectKey    string `json:"object_key,omitempty"`
	SourceFormat string `json:"source_format,omitempty"`
	TargetFormat string `json:"target_format"`
	Quality      *int   `json:"quality,omitempty"`
}

type Job struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	Status       string    `json:"status"`
	SourceType   string    `json:"source_type"`
	WebhookURL   string    `json:"webhook_url,omitempty"`
	ObjectKey    string    `json:"object_key"`
	SourceFormat string    `json:"source_format"`
	TargetFormat string    `json:"target_format"`
	Quality      int       `json:"quality"`
	OutputKey    string    `json:"output_key,omitempty"`
	Backend      string    `json:"backend,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// JobOutcome is what a worker records when a job leaves the processing state.
type JobOutcome struct {
	Status    string
	OutputKey string
	Backend   string
	Error     string
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	if strings.TrimSpace(r.TargetFormat) == "" {
		return errors.New("target_format is required")
	}
	if _, err := convert.ParseFormat(strings.TrimSpace(r.TargetFormat)); err != nil {
		return fmt.Errorf("target_format: %w", err)
	}
	if _, err := r.ResolveSourceFormat(); err != nil {
		return err
	}
	return nil
}

// ResolveSourceFormat returns the format the converter will see. Local files
// are read by extension, so a declared source_format must agree with it.
// Presigned uploads have no extension and must declare one.
func (r CreateJobRequest) ResolveSourceFormat() (convert.Format, error) {
	var declared convert.Format
	if name := strings.TrimSpace(r.SourceFormat); name != "" {
		f, err := convert.ParseFormat(name)
		if err != nil {
			return "", fmt.Errorf("source_format: %w", err)
		}
		declared = f
	}

	if strings.EqualFold(strings.TrimSpace(r.SourceType), SourceTypeS3Presigned) {
		if declared == "" {
			return "", errors.New("source_format is required for source_type=s3_presigned")
		}
		return declared, nil
	}

	f := convert.FormatFromPath(r.ObjectKey)
	if !convert.IsSupported(f) {
		return "", fmt.Errorf("object_key: %w: %q", convert.ErrUnsupportedFormat, f)
	}
	if declared != "" && !sameFormat(declared, f) {
		return "", fmt.Errorf("source_format %q does not match object_key extension %q", declared, f)
	}
	return f, nil
}

func sameFormat(a, b convert.Format) bool {
	return a == b || (convert.IsJPEG(a) && convert.IsJPEG(b))
}

// ResolveQuality returns the requested quality clamped to 0..100, or fallback.
func (r CreateJobRequest) ResolveQuality(fallback int) int {
	if r.Quality == nil {
		return convert.ClampQuality(fallback)
	}
	return convert.ClampQuality(*r.Quality)
}
