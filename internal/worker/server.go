package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/pixelconvert/internal/config"
	"github.com/dunamismax/pixelconvert/internal/convert"
	"github.com/dunamismax/pixelconvert/internal/domain"
	"github.com/dunamismax/pixelconvert/internal/pipeline"
	"github.com/dunamismax/pixelconvert/internal/queue"
	"github.com/dunamismax/pixelconvert/internal/storage"
	"github.com/dunamismax/pixelconvert/internal/store"
	"github.com/dunamismax/pixelconvert/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	EventConversionCompleted = "conversion.completed"
	EventConversionFailed    = "conversion.failed"
)

type Server struct {
	logger          *log.Logger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  *pipeline.Processor
	objectProcessor *pipeline.Processor
	webhookClient   webhookSender
	jobStore        store.JobStore
	usageStore      store.UsageStore
	metrics         *metrics
	tracer          trace.Tracer
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	backends []convert.Backend,
	storageClient *storage.Client,
	webhookClient *webhook.Client,
	jobStore store.JobStore,
	usageStore store.UsageStore,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("at least one conversion backend is required")
	}

	objectProcessor, err := pipeline.NewObjectStoreProcessor(storageClient, "outputs", backends, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize object-store processor: %w", err)
	}

	var sender webhookSender
	if webhookClient != nil {
		sender = webhookClient
	}

	if usageStore == nil {
		if jobAndUsageStore, ok := jobStore.(store.UsageStore); ok {
			usageStore = jobAndUsageStore
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:             make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		localProcessor:  pipeline.NewLocalProcessor(workerCfg.LocalOutputDir, backends, logger),
		objectProcessor: objectProcessor,
		webhookClient:   sender,
		jobStore:        jobStore,
		usageStore:      usageStore,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("pixelconvert/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeConvertImage, s.handleConvertImage)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleConvertImage(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed
	backend := "none"

	payload, err := queue.ParseConvertImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.convert_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.source_type", payload.SourceType),
		attribute.String("job.source_format", payload.SourceFormat),
		attribute.String("job.target_format", payload.TargetFormat),
		attribute.Int("job.quality", payload.Quality),
	)
	defer span.End()
	defer func() {
		s.metrics.conversionDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.conversionsTotal.WithLabelValues(backend, payload.SourceFormat, payload.TargetFormat, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Printf(
		"Working... job_id=%s source_type=%s object_key=%s format=%s->%s quality=%d",
		payload.JobID,
		payload.SourceType,
		payload.ObjectKey,
		payload.SourceFormat,
		payload.TargetFormat,
		payload.Quality,
	)

	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	request := pipeline.Request{
		JobID:        payload.JobID,
		SourceType:   payload.SourceType,
		ObjectKey:    payload.ObjectKey,
		SourceFormat: payload.SourceFormat,
		TargetFormat: payload.TargetFormat,
		Quality:      payload.Quality,
	}

	var result pipeline.Result
	switch {
	case strings.EqualFold(payload.SourceType, domain.SourceTypeLocalFile):
		result, err = s.localProcessor.Process(ctx, request)
	case s.objectProcessor != nil:
		result, err = s.objectProcessor.Process(ctx, request)
	default:
		err = fmt.Errorf("%w: %s", pipeline.ErrUnsupportedSourceType, payload.SourceType)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "conversion failed")
		return s.handleFailure(ctx, payload, err)
	}

	backend = result.Conversion.Backend
	s.logger.Printf(
		"Converted job_id=%s backend=%s output=%s bytes=%d",
		payload.JobID, backend, result.Output.Key, result.Output.Bytes,
	)
	s.completeJob(ctx, payload.JobID, domain.JobOutcome{
		Status:    domain.JobStatusSucceeded,
		OutputKey: result.Output.Key,
		Backend:   backend,
	})
	s.metrics.outputBytesTotal.WithLabelValues(backend).Add(float64(result.Output.Bytes))
	s.recordUsage(ctx, payload.JobID, result, time.Since(startedAt))

	if err := s.dispatchWebhook(ctx, payload, EventConversionCompleted, map[string]any{
		"job_id":        payload.JobID,
		"status":        domain.JobStatusSucceeded,
		"source_type":   payload.SourceType,
		"object_key":    payload.ObjectKey,
		"source_format": payload.SourceFormat,
		"target_format": payload.TargetFormat,
		"backend":       backend,
		"requested_at":  payload.RequestedAt,
		"completed_at":  time.Now().UTC(),
		"output":        result.Output,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "converted")
	return nil
}

// handleFailure marks the job failed once no retry will follow and returns the
// error asynq should see.
func (s *Server) handleFailure(ctx context.Context, payload queue.ConvertImagePayload, err error) error {
	retryable := isRetryable(err)
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	if retryable && retried < maxRetry {
		s.updateJobStatus(ctx, payload.JobID, domain.JobStatusQueued)
		return fmt.Errorf("convert image: %w", err)
	}

	s.completeJob(ctx, payload.JobID, domain.JobOutcome{
		Status: domain.JobStatusFailed,
		Error:  err.Error(),
	})
	_ = s.dispatchWebhook(ctx, payload, EventConversionFailed, map[string]any{
		"job_id":        payload.JobID,
		"status":        domain.JobStatusFailed,
		"source_type":   payload.SourceType,
		"object_key":    payload.ObjectKey,
		"source_format": payload.SourceFormat,
		"target_format": payload.TargetFormat,
		"requested_at":  payload.RequestedAt,
		"failed_at":     time.Now().UTC(),
		"error":         err.Error(),
	})

	if !retryable {
		return fmt.Errorf("convert image: %v: %w", err, asynq.SkipRetry)
	}
	return fmt.Errorf("convert image: %w", err)
}

// isRetryable reports whether another attempt could succeed. Converter errors
// are final; fetch, upload and storage errors are retried.
func isRetryable(err error) bool {
	switch {
	case errors.Is(err, convert.ErrConversionFailed),
		errors.Is(err, convert.ErrUnsupportedFormat),
		errors.Is(err, convert.ErrFileNotFound),
		errors.Is(err, convert.ErrNoBackendAvailable),
		errors.Is(err, convert.ErrImageLoad),
		errors.Is(err, pipeline.ErrUnsupportedSourceType):
		return false
	}
	return true
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Printf("job status update failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

func (s *Server) completeJob(ctx context.Context, jobID string, outcome domain.JobOutcome) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.Complete(ctx, jobID, outcome); err != nil {
		s.logger.Printf("job completion failed job_id=%s status=%s err=%v", jobID, outcome.Status, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.ConvertImagePayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed job_id=%s event=%s err=%v", payload.JobID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

func (s *Server) recordUsage(ctx context.Context, jobID string, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	userID := "anonymous"
	if s.jobStore != nil {
		job, ok, err := s.jobStore.Get(ctx, jobID)
		if err != nil {
			s.logger.Printf("usage lookup failed job_id=%s err=%v", jobID, err)
		} else if ok && strings.TrimSpace(job.UserID) != "" {
			userID = job.UserID
		}
	}

	bytesSaved := max(0, result.SourceBytes-result.Output.Bytes)
	computeTimeMS := max(1, computeDuration.Milliseconds())

	usage := domain.UsageLog{
		UserID:        userID,
		JobID:         jobID,
		Backend:       result.Conversion.Backend,
		InputBytes:    result.SourceBytes,
		OutputBytes:   result.Output.Bytes,
		BytesSaved:    bytesSaved,
		ComputeTimeMS: computeTimeMS,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed job_id=%s err=%v", jobID, err)
		return
	}

	s.metrics.bytesSavedTotal.Add(float64(bytesSaved))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))
}
