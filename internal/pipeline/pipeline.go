package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/photo-relay/internal/bridge"
	"github.com/example/photo-relay/internal/emit"
	"github.com/example/photo-relay/internal/intake"
	"github.com/example/photo-relay/internal/logging"
	"github.com/example/photo-relay/internal/repository"
	"github.com/example/photo-relay/internal/transcode"
)

// ErrTransferInFlight is returned when a user starts a transfer while a
// previous one is still running. Single-slot by design: overlapping cycles
// would interleave their chunk emissions on the shared host channel.
var ErrTransferInFlight = errors.New("a transfer is already in flight for this user")

// Repository defines the persistence operations needed by the pipeline.
type Repository interface {
	SaveLog(ctx context.Context, log *repository.TransferLog) error
	FindByTransferIDAndUser(ctx context.Context, transferID, userID string) (*repository.TransferLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// HostBridge is the channel to the host runtime. Readiness is an explicit
// precondition checked before emission starts, not an ambient lookup.
type HostBridge interface {
	Ready() bool
	Send(ctx context.Context, object, method, payload string) error
}

// Options carries the per-stage limits of the pipeline.
type Options struct {
	Intake    intake.Config
	Transcode transcode.Config
	ChunkSize int
}

// Outcome summarizes a completed transfer cycle.
type Outcome struct {
	TransferID   string
	SourceWidth  int
	SourceHeight int
	TargetWidth  int
	TargetHeight int
	EncodedBytes int
	ChunkCount   int
	Delivered    bool
}

// Pipeline orchestrates one validate, transcode, emit cycle per transfer.
type Pipeline struct {
	opts           Options
	repo           Repository
	cache          Cache
	host           HostBridge
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	inflight       sync.Map
}

type cachedTransfer struct {
	TransferID    string    `json:"transfer_id"`
	UserID        string    `json:"user_id"`
	SourceWidth   int       `json:"source_width"`
	SourceHeight  int       `json:"source_height"`
	TargetWidth   int       `json:"target_width"`
	TargetHeight  int       `json:"target_height"`
	EncodedBytes  int       `json:"encoded_bytes"`
	ChunkCount    int       `json:"chunk_count"`
	Delivered     bool      `json:"delivered"`
	FailureReason string    `json:"failure_reason"`
	CreatedAt     time.Time `json:"created_at"`
}

// New constructs a pipeline instance.
func New(opts Options, repo Repository, cache Cache, host HostBridge, logger *zap.Logger) *Pipeline {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = emit.DefaultChunkSize
	}
	return &Pipeline{
		opts:           opts,
		repo:           repo,
		cache:          cache,
		host:           host,
		logger:         logger.Named("pipeline"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Transfer runs a full cycle for one candidate: validate, transcode, emit to
// the host runtime, then record the outcome. All failure modes terminate the
// cycle here; nothing propagates past this boundary unclassified.
func (p *Pipeline) Transfer(ctx context.Context, userID string, cand intake.Candidate) (*Outcome, error) {
	if _, busy := p.inflight.LoadOrStore(userID, struct{}{}); busy {
		return nil, ErrTransferInFlight
	}
	defer p.inflight.Delete(userID)

	transferID := uuid.NewString()
	opLogger := logging.WithOperation(p.logger, "pipeline.transfer", transferID)

	cacheKey := fmt.Sprintf("transfer:%s", transferID)
	if err := p.withRedisRetry(ctx, transferID, "cache.set.processing", func() error {
		return p.cache.Set(ctx, cacheKey, "processing", time.Minute)
	}); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return nil, err
	}

	log := &repository.TransferLog{
		TransferID: transferID,
		UserID:     userID,
		InputBytes: len(cand.Data),
	}

	accepted, err := intake.Validate(cand, p.opts.Intake)
	if err != nil {
		var reject *intake.RejectError
		if errors.As(err, &reject) {
			log.FailureReason = string(reject.Reason)
			log.SourceWidth = reject.Width
			log.SourceHeight = reject.Height
		} else {
			log.FailureReason = "intake_failed"
		}
		opLogger.Warn("candidate rejected", zap.String("reason", log.FailureReason), zap.Error(err))
		p.record(ctx, opLogger, cacheKey, log)
		return nil, err
	}
	log.SourceWidth = accepted.Width
	log.SourceHeight = accepted.Height

	result, err := transcode.Transcode(accepted.Image, p.opts.Transcode)
	if err != nil {
		wrapped := logging.NewOperationError("pipeline.transcode", transferID, err)
		opLogger.Error("transcode failed", zap.Error(wrapped))
		log.FailureReason = "encode_failed"
		p.record(ctx, opLogger, cacheKey, log)
		return nil, wrapped
	}
	log.TargetWidth = result.Width
	log.TargetHeight = result.Height
	log.EncodedBytes = len(result.JPEG)

	if p.host.Ready() {
		sent, err := emit.Emit(ctx, result.Base64, p.opts.ChunkSize, hostSink{host: p.host})
		log.ChunkCount = sent
		if err != nil {
			wrapped := logging.NewOperationError("pipeline.emit", transferID, err)
			opLogger.Error("chunk emission failed", zap.Error(wrapped), zap.Int("chunks_sent", sent))
			log.FailureReason = "sink_failed"
			p.record(ctx, opLogger, cacheKey, log)
			return nil, wrapped
		}
		log.Delivered = true
	} else {
		opLogger.Warn("no host runtime attached, dropping emission")
	}

	log.CreatedAt = time.Now().UTC()
	if err := p.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("pipeline.save_log", transferID, err)
		opLogger.Error("failed to persist transfer log", zap.Error(wrapped))
		return nil, wrapped
	}

	if err := p.cacheOutcome(ctx, opLogger, cacheKey, log); err != nil {
		return nil, err
	}

	opLogger.Info("transfer finished",
		zap.Int("source_width", log.SourceWidth),
		zap.Int("source_height", log.SourceHeight),
		zap.Int("target_width", log.TargetWidth),
		zap.Int("target_height", log.TargetHeight),
		zap.Int("chunk_count", log.ChunkCount),
		zap.Bool("delivered", log.Delivered))

	return &Outcome{
		TransferID:   transferID,
		SourceWidth:  log.SourceWidth,
		SourceHeight: log.SourceHeight,
		TargetWidth:  log.TargetWidth,
		TargetHeight: log.TargetHeight,
		EncodedBytes: log.EncodedBytes,
		ChunkCount:   log.ChunkCount,
		Delivered:    log.Delivered,
	}, nil
}

// ReportCameraDenied forwards a camera permission refusal to the host runtime.
func (p *Pipeline) ReportCameraDenied(ctx context.Context) error {
	if !p.host.Ready() {
		p.logger.Warn("no host runtime attached, dropping camera permission notice")
		return nil
	}
	return p.host.Send(ctx, bridge.ReceiverObject, bridge.MethodCameraPermissionDenied, "")
}

// GetTransfer retrieves a cached transfer outcome or loads from persistence.
func (p *Pipeline) GetTransfer(ctx context.Context, userID, transferID string) (*repository.TransferLog, error) {
	cacheKey := fmt.Sprintf("transfer:%s", transferID)
	if cached, err := p.withRedisGet(ctx, transferID, "cache.get.transfer", cacheKey); err == nil {
		var payload cachedTransfer
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			logging.WithOperation(p.logger, "pipeline.get_transfer", transferID).Warn("failed to decode cached transfer", zap.Error(err))
		} else if payload.UserID == userID {
			return &repository.TransferLog{
				TransferID:    payload.TransferID,
				UserID:        payload.UserID,
				SourceWidth:   payload.SourceWidth,
				SourceHeight:  payload.SourceHeight,
				TargetWidth:   payload.TargetWidth,
				TargetHeight:  payload.TargetHeight,
				EncodedBytes:  payload.EncodedBytes,
				ChunkCount:    payload.ChunkCount,
				Delivered:     payload.Delivered,
				FailureReason: payload.FailureReason,
				CreatedAt:     payload.CreatedAt,
			}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logging.WithOperation(p.logger, "pipeline.get_transfer", transferID).Warn("failed to read cache", zap.Error(err))
	}

	return p.repo.FindByTransferIDAndUser(ctx, transferID, userID)
}

// record persists a failed cycle's log and caches the outcome, best effort.
func (p *Pipeline) record(ctx context.Context, opLogger *zap.Logger, cacheKey string, log *repository.TransferLog) {
	log.CreatedAt = time.Now().UTC()
	if err := p.repo.SaveLog(ctx, log); err != nil {
		opLogger.Warn("failed to record transfer failure", zap.Error(err))
		return
	}
	if err := p.cacheOutcome(ctx, opLogger, cacheKey, log); err != nil {
		opLogger.Warn("failed to cache transfer failure", zap.Error(err))
	}
}

func (p *Pipeline) cacheOutcome(ctx context.Context, opLogger *zap.Logger, cacheKey string, log *repository.TransferLog) error {
	cached := cachedTransfer{
		TransferID:    log.TransferID,
		UserID:        log.UserID,
		SourceWidth:   log.SourceWidth,
		SourceHeight:  log.SourceHeight,
		TargetWidth:   log.TargetWidth,
		TargetHeight:  log.TargetHeight,
		EncodedBytes:  log.EncodedBytes,
		ChunkCount:    log.ChunkCount,
		Delivered:     log.Delivered,
		FailureReason: log.FailureReason,
		CreatedAt:     log.CreatedAt,
	}

	serialized, err := json.Marshal(cached)
	if err != nil {
		opLogger.Error("failed to serialize transfer outcome", zap.Error(err))
		return err
	}

	if err := p.withRedisRetry(ctx, log.TransferID, "cache.set.outcome", func() error {
		return p.cache.Set(ctx, cacheKey, string(serialized), 5*time.Minute)
	}); err != nil {
		opLogger.Error("failed to cache transfer outcome", zap.Error(err))
		return err
	}
	return nil
}

// hostSink adapts the host bridge to the emitter's sink contract.
type hostSink struct {
	host HostBridge
}

func (s hostSink) SendChunk(ctx context.Context, chunk string) error {
	return s.host.Send(ctx, bridge.ReceiverObject, bridge.MethodImageChunk, chunk)
}

func (s hostSink) Complete(ctx context.Context) error {
	return s.host.Send(ctx, bridge.ReceiverObject, bridge.MethodTransferComplete, "")
}

func (p *Pipeline) withRedisRetry(ctx context.Context, transferID, operation string, fn func() error) error {
	if p.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, transferID, err)
	}

	backoff := p.initialBackoff
	opLogger := logging.WithOperation(p.logger, operation, transferID)
	var err error
	for attempt := 0; attempt < p.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, transferID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= p.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == p.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, transferID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, transferID, err)
}

func (p *Pipeline) withRedisGet(ctx context.Context, transferID, operation, cacheKey string) (string, error) {
	var result string
	err := p.withRedisRetry(ctx, transferID, operation, func() error {
		value, err := p.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
