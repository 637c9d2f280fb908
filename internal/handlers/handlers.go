package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/example/photo-relay/internal/auth"
	"github.com/example/photo-relay/internal/bridge"
	"github.com/example/photo-relay/internal/emit"
	"github.com/example/photo-relay/internal/intake"
	"github.com/example/photo-relay/internal/pipeline"
)

// MaxUploadSize caps the multipart body accepted by the upload route.
const MaxUploadSize = 5 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 32 << 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, p *pipeline.Pipeline, hub *bridge.Hub, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/bridge", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		hub.Run(conn)
	})

	authed := router.Group("/", authMiddleware)

	authed.POST("/transfer", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		file, err := c.FormFile("photo")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
			return
		}
		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo exceeds the upload limit"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open photo"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read photo"})
			return
		}

		cand := intake.Candidate{
			Data:     data,
			MIMEType: file.Header.Get("Content-Type"),
		}

		outcome, err := p.Transfer(c.Request.Context(), userID, cand)
		if err != nil {
			status, message := transferErrorResponse(err)
			c.JSON(status, gin.H{"error": message})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"transfer_id":   outcome.TransferID,
			"source_width":  outcome.SourceWidth,
			"source_height": outcome.SourceHeight,
			"target_width":  outcome.TargetWidth,
			"target_height": outcome.TargetHeight,
			"encoded_bytes": outcome.EncodedBytes,
			"chunk_count":   outcome.ChunkCount,
			"delivered":     outcome.Delivered,
		})
	})

	authed.GET("/transfer/:id", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		transferID := c.Param("id")
		if transferID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		log, err := p.GetTransfer(c.Request.Context(), userID, transferID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "transfer not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"transfer_id":    log.TransferID,
			"user_id":        log.UserID,
			"source_width":   log.SourceWidth,
			"source_height":  log.SourceHeight,
			"target_width":   log.TargetWidth,
			"target_height":  log.TargetHeight,
			"encoded_bytes":  log.EncodedBytes,
			"chunk_count":    log.ChunkCount,
			"delivered":      log.Delivered,
			"failure_reason": log.FailureReason,
			"created_at":     log.CreatedAt,
		})
	})

	authed.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := p.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	authed.POST("/camera/denied", func(c *gin.Context) {
		if err := p.ReportCameraDenied(c.Request.Context()); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to notify host runtime"})
			return
		}
		c.Status(http.StatusAccepted)
	})
}

// transferErrorResponse maps pipeline failures onto HTTP statuses and
// user-presentable messages.
func transferErrorResponse(err error) (int, string) {
	var reject *intake.RejectError
	if errors.As(err, &reject) {
		switch reject.Reason {
		case intake.RejectOversize:
			return http.StatusRequestEntityTooLarge, reject.UserMessage()
		case intake.RejectUnsupportedType:
			return http.StatusUnsupportedMediaType, reject.UserMessage()
		default:
			return http.StatusUnprocessableEntity, reject.UserMessage()
		}
	}

	var sinkErr *emit.SinkError
	if errors.As(err, &sinkErr) {
		return http.StatusBadGateway, "image processing failed"
	}

	if errors.Is(err, pipeline.ErrTransferInFlight) {
		return http.StatusConflict, err.Error()
	}

	return http.StatusInternalServerError, "image processing failed"
}
