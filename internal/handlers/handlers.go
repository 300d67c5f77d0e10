package handlers

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/id-bridge/internal/auth"
	"github.com/example/id-bridge/internal/biometrics"
	"github.com/example/id-bridge/internal/bridgeerr"
	"github.com/example/id-bridge/internal/capture"
	"github.com/example/id-bridge/internal/document"
	"github.com/example/id-bridge/internal/repository"
	"github.com/example/id-bridge/internal/session"
	"github.com/example/id-bridge/internal/usecase"
)

// MaxUploadSize is the default request body cap. Face match carries two base64
// images, so it needs headroom over a single capture.
const MaxUploadSize = 10 << 20

// Bridge is the operation surface served over HTTP.
type Bridge interface {
	Initialize(ctx context.Context, userID string, opts session.Options) (string, error)
	CaptureFace(ctx context.Context, userID, deviceID string, opts capture.FaceOptions) (string, *capture.FaceResult, error)
	ProcessPassiveLiveness(ctx context.Context, userID string, req biometrics.LivenessRequest) (string, *biometrics.LivenessResult, error)
	ProcessFaceMatch(ctx context.Context, userID string, req biometrics.FaceMatchRequest) (string, *biometrics.FaceMatchResult, error)
	CaptureAndProcessDocument(ctx context.Context, userID, deviceID string, opts capture.DocumentOptions) (string, *document.Result, error)
	GetOperation(ctx context.Context, userID, requestID string) (*repository.OperationLog, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// DeviceHub serves the paired-device websocket and authenticates devices itself.
type DeviceHub interface {
	http.Handler
	Connected() int
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, bridge Bridge, devices DeviceHub, authMiddleware gin.HandlerFunc, maxBody int64) {
	if maxBody <= 0 {
		maxBody = MaxUploadSize
	}

	router.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if devices != nil {
			body["devices"] = devices.Connected()
		}
		c.JSON(http.StatusOK, body)
	})
	if devices != nil {
		router.GET("/v1/devices/ws", gin.WrapH(devices))
	}

	v1 := router.Group("/v1", authMiddleware, limitBody(maxBody))

	v1.POST("/initialize", func(c *gin.Context) {
		var opts session.Options
		if !bindJSON(c, &opts, false) {
			return
		}
		requestID, err := bridge.Initialize(c.Request.Context(), userID(c), opts)
		if err != nil {
			respondError(c, requestID, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"request_id": requestID, "initialized": true})
	})

	v1.POST("/devices/:device/face", func(c *gin.Context) {
		var opts capture.FaceOptions
		if !bindJSON(c, &opts, true) {
			return
		}
		requestID, result, err := bridge.CaptureFace(c.Request.Context(), userID(c), c.Param("device"), opts)
		if err != nil {
			respondError(c, requestID, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"request_id": requestID, "result": result})
	})

	v1.POST("/liveness", func(c *gin.Context) {
		var req biometrics.LivenessRequest
		if !bindJSON(c, &req, false) {
			return
		}
		requestID, result, err := bridge.ProcessPassiveLiveness(c.Request.Context(), userID(c), req)
		if err != nil {
			respondError(c, requestID, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"request_id": requestID, "result": result})
	})

	v1.POST("/facematch", func(c *gin.Context) {
		var req biometrics.FaceMatchRequest
		if !bindJSON(c, &req, false) {
			return
		}
		requestID, result, err := bridge.ProcessFaceMatch(c.Request.Context(), userID(c), req)
		if err != nil {
			respondError(c, requestID, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"request_id": requestID, "result": result})
	})

	v1.POST("/devices/:device/documents", func(c *gin.Context) {
		var opts capture.DocumentOptions
		if !bindJSON(c, &opts, true) {
			return
		}
		requestID, result, err := bridge.CaptureAndProcessDocument(c.Request.Context(), userID(c), c.Param("device"), opts)
		if err != nil {
			respondError(c, requestID, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"request_id": requestID, "result": result})
	})

	v1.GET("/operations/:id", func(c *gin.Context) {
		log, err := bridge.GetOperation(c.Request.Context(), userID(c), c.Param("id"))
		if errors.Is(err, usecase.ErrOperationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "NotFound", "message": "operation not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": string(bridgeerr.Internal), "message": "failed to load operation"})
			return
		}
		resp := gin.H{
			"request_id": log.RequestID,
			"operation":  log.Operation,
			"outcome":    log.Outcome,
			"latency_ms": log.LatencyMs,
			"created_at": log.CreatedAt,
		}
		if log.DeviceID.Valid {
			resp["device_id"] = log.DeviceID.String
		}
		if log.ErrorCode.Valid {
			resp["error_code"] = log.ErrorCode.String
		}
		c.JSON(http.StatusOK, resp)
	})

	v1.GET("/metrics", func(c *gin.Context) {
		summary, err := bridge.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": string(bridgeerr.Internal), "message": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func userID(c *gin.Context) string {
	id, _ := auth.GetUserID(c.Request.Context())
	return id
}

func limitBody(maxBody int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBody {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"code": string(bridgeerr.InvalidRequest), "message": "request body too large"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		c.Next()
	}
}

// bindJSON decodes the request body into v and writes the error response itself.
// optional bodies may be empty, with or without a content type.
func bindJSON(c *gin.Context, v any, optional bool) bool {
	if optional && emptyBody(c.Request) {
		return true
	}
	if ct := c.ContentType(); !strings.EqualFold(ct, gin.MIMEJSON) {
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{"code": string(bridgeerr.InvalidRequest), "message": "content type must be application/json"})
		return false
	}
	if err := c.ShouldBindJSON(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"code": string(bridgeerr.InvalidRequest), "message": "request body too large"})
		case optional && errors.Is(err, io.EOF):
			return true
		default:
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"code": string(bridgeerr.InvalidRequest), "message": "malformed JSON body"})
		}
		return false
	}
	return true
}

// emptyBody reports whether r carries no body bytes. Chunked requests are
// peeked, and the peeked byte stays readable.
func emptyBody(r *http.Request) bool {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return true
	}
	if r.ContentLength > 0 {
		return false
	}
	br := bufio.NewReader(r.Body)
	if _, err := br.Peek(1); errors.Is(err, io.EOF) {
		return true
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{br, r.Body}
	return false
}

func respondError(c *gin.Context, requestID string, err error) {
	be, ok := bridgeerr.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": string(bridgeerr.Internal), "message": "internal error", "request_id": requestID})
		return
	}
	body := gin.H{"code": string(be.Code), "message": be.Message, "request_id": requestID}
	if be.ResultCode != nil {
		body["result_code"] = *be.ResultCode
	}
	c.JSON(StatusFor(be.Code), body)
}

// StatusFor maps a bridge error code to its HTTP status. Codes reported by the
// vendor itself fall through to 502.
func StatusFor(code bridgeerr.Code) int {
	switch code {
	case bridgeerr.InvalidRequest, bridgeerr.InvalidImage, bridgeerr.InvalidOptions, bridgeerr.InvalidCredentials:
		return http.StatusBadRequest
	case bridgeerr.InvalidToken:
		return http.StatusUnauthorized
	case bridgeerr.NoActivity:
		return http.StatusNotFound
	case bridgeerr.NotInitialized, bridgeerr.OperationInProgress, bridgeerr.UserCanceled:
		return http.StatusConflict
	case bridgeerr.ImageTooBlurry, bridgeerr.ImageHasGlare, bridgeerr.CaptureFailed, bridgeerr.ImageConversionFail:
		return http.StatusUnprocessableEntity
	case bridgeerr.Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
