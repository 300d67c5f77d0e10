package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/guregu/null.v4"
	"gorm.io/gorm"

	"github.com/example/id-bridge/internal/biometrics"
	"github.com/example/id-bridge/internal/bridgeerr"
	"github.com/example/id-bridge/internal/capture"
	"github.com/example/id-bridge/internal/document"
	"github.com/example/id-bridge/internal/logging"
	"github.com/example/id-bridge/internal/repository"
	"github.com/example/id-bridge/internal/sdkconfig"
	"github.com/example/id-bridge/internal/session"
)

// Operation names recorded in the audit log.
const (
	OpInitialize      = "initialize"
	OpCaptureFace     = "captureFace"
	OpPassiveLiveness = "processPassiveLiveness"
	OpFaceMatch       = "processFaceMatch"
	OpCaptureDocument = "captureAndProcessDocument"
)

const auditWriteTimeout = 5 * time.Second

// OperationRepository defines the persistence operations needed by the use case.
type OperationRepository interface {
	SaveLog(ctx context.Context, log *repository.OperationLog) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.OperationLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Initializer owns the vendor configuration.
type Initializer interface {
	Initialize(ctx context.Context, requestID string, opts session.Options) (*sdkconfig.Config, error)
	Current() (*sdkconfig.Config, error)
}

// Analyzer runs the biometric analysis operations.
type Analyzer interface {
	ProcessPassiveLiveness(ctx context.Context, cfg *sdkconfig.Config, requestID string, req biometrics.LivenessRequest) (*biometrics.LivenessResult, error)
	ProcessFaceMatch(ctx context.Context, cfg *sdkconfig.Config, requestID string, req biometrics.FaceMatchRequest) (*biometrics.FaceMatchResult, error)
}

// DocumentWorkflow runs the document capture state machine.
type DocumentWorkflow interface {
	CaptureAndProcess(ctx context.Context, cfg *sdkconfig.Config, requestID string, dev document.Capturer, opts capture.DocumentOptions) (*document.Result, error)
}

// BridgeUseCase is the single entry point for the bridge operations. Every call
// gets a request id and exactly one audit record.
type BridgeUseCase struct {
	repo        OperationRepository
	initializer Initializer
	devices     capture.Locator
	analyzer    Analyzer
	workflow    DocumentWorkflow
	logger      *zap.Logger
	now         func() time.Time
}

// NewBridgeUseCase constructs a new use case instance.
func NewBridgeUseCase(repo OperationRepository, initializer Initializer, devices capture.Locator, analyzer Analyzer, workflow DocumentWorkflow, logger *zap.Logger) *BridgeUseCase {
	return &BridgeUseCase{
		repo:        repo,
		initializer: initializer,
		devices:     devices,
		analyzer:    analyzer,
		workflow:    workflow,
		logger:      logger.Named("bridge_usecase"),
		now:         time.Now,
	}
}

// Initialize validates and applies the vendor configuration.
func (uc *BridgeUseCase) Initialize(ctx context.Context, userID string, opts session.Options) (string, error) {
	requestID := uuid.NewString()
	start := uc.now()
	_, err := uc.initializer.Initialize(ctx, requestID, opts)
	uc.record(ctx, requestID, userID, OpInitialize, "", start, err)
	return requestID, err
}

// CaptureFace launches the face camera on a paired device.
func (uc *BridgeUseCase) CaptureFace(ctx context.Context, userID, deviceID string, opts capture.FaceOptions) (string, *capture.FaceResult, error) {
	requestID := uuid.NewString()
	start := uc.now()

	result, err := func() (*capture.FaceResult, error) {
		dev, err := uc.devices.Device(deviceID)
		if err != nil {
			return nil, err
		}
		return capture.CaptureFace(ctx, dev, opts)
	}()
	uc.record(ctx, requestID, userID, OpCaptureFace, deviceID, start, err)
	return requestID, result, err
}

// ProcessPassiveLiveness scores a face image for liveness.
func (uc *BridgeUseCase) ProcessPassiveLiveness(ctx context.Context, userID string, req biometrics.LivenessRequest) (string, *biometrics.LivenessResult, error) {
	requestID := uuid.NewString()
	start := uc.now()

	result, err := func() (*biometrics.LivenessResult, error) {
		cfg, err := uc.initializer.Current()
		if err != nil {
			return nil, err
		}
		return uc.analyzer.ProcessPassiveLiveness(ctx, cfg, requestID, req)
	}()
	uc.record(ctx, requestID, userID, OpPassiveLiveness, "", start, err)
	return requestID, result, err
}

// ProcessFaceMatch compares two face images.
func (uc *BridgeUseCase) ProcessFaceMatch(ctx context.Context, userID string, req biometrics.FaceMatchRequest) (string, *biometrics.FaceMatchResult, error) {
	requestID := uuid.NewString()
	start := uc.now()

	result, err := func() (*biometrics.FaceMatchResult, error) {
		cfg, err := uc.initializer.Current()
		if err != nil {
			return nil, err
		}
		return uc.analyzer.ProcessFaceMatch(ctx, cfg, requestID, req)
	}()
	uc.record(ctx, requestID, userID, OpFaceMatch, "", start, err)
	return requestID, result, err
}

// CaptureAndProcessDocument runs the document workflow on a paired device.
func (uc *BridgeUseCase) CaptureAndProcessDocument(ctx context.Context, userID, deviceID string, opts capture.DocumentOptions) (string, *document.Result, error) {
	requestID := uuid.NewString()
	start := uc.now()

	result, err := func() (*document.Result, error) {
		cfg, err := uc.initializer.Current()
		if err != nil {
			return nil, err
		}
		dev, err := uc.devices.Device(deviceID)
		if err != nil {
			return nil, err
		}
		return uc.workflow.CaptureAndProcess(ctx, cfg, requestID, dev, opts)
	}()
	uc.record(ctx, requestID, userID, OpCaptureDocument, deviceID, start, err)
	return requestID, result, err
}

// GetOperation returns the audit record of one of the caller's operations.
func (uc *BridgeUseCase) GetOperation(ctx context.Context, userID, requestID string) (*repository.OperationLog, error) {
	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOperationNotFound
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}

// ErrOperationNotFound is returned when no audit record matches.
var ErrOperationNotFound = errors.New("operation not found")

// record writes the audit entry. Failures are logged and never reach the caller.
func (uc *BridgeUseCase) record(ctx context.Context, requestID, userID, operation, deviceID string, start time.Time, opErr error) {
	entry := &repository.OperationLog{
		RequestID: requestID,
		UserID:    userID,
		Operation: operation,
		DeviceID:  null.NewString(deviceID, deviceID != ""),
		Outcome:   outcomeOf(opErr),
		LatencyMs: uc.now().Sub(start).Milliseconds(),
		CreatedAt: start.UTC(),
	}
	if opErr != nil {
		entry.ErrorCode = null.StringFrom(string(bridgeerr.CodeOf(opErr)))
	}

	opLogger := logging.WithDevice(logging.WithOperation(uc.logger, "usecase."+operation, requestID), deviceID)
	if opErr != nil {
		opLogger.Info("operation failed", zap.String("code", entry.ErrorCode.String), zap.Error(opErr))
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()
	if err := uc.repo.SaveLog(auditCtx, entry); err != nil {
		opLogger.Error("failed to persist operation log", zap.String("failed_operation", logging.OperationOf(err)), zap.Error(err))
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return repository.OutcomeSuccess
	case bridgeerr.CodeOf(err) == bridgeerr.UserCanceled:
		return repository.OutcomeCanceled
	default:
		return repository.OutcomeFailure
	}
}
