package document

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/id-bridge/internal/acuant"
	"github.com/example/id-bridge/internal/bridgeerr"
	"github.com/example/id-bridge/internal/capture"
	"github.com/example/id-bridge/internal/imageprocessor"
	"github.com/example/id-bridge/internal/logging"
	"github.com/example/id-bridge/internal/sdkconfig"
)

// Minimum front-side quality scores accepted by the workflow.
const (
	MinSharpness = 50
	MinGlare     = 50
)

const deleteTimeout = 15 * time.Second

// Capturer presents the document camera and the back-side prompt on a paired device.
type Capturer interface {
	ID() string
	LaunchDocumentCapture(ctx context.Context, opts capture.DocumentOptions, front bool) (*capture.Outcome, error)
	PromptBackSide(ctx context.Context) (capture.Decision, error)
}

// Evaluator scores and crops a raw capture.
type Evaluator interface {
	Evaluate(ctx context.Context, requestID string, raw []byte) (*imageprocessor.EvaluatedImage, error)
}

// Processor is the remote document-processing service.
type Processor interface {
	CreateInstance(ctx context.Context, cfg *sdkconfig.Config, opts acuant.InstanceOptions) (string, error)
	UploadImage(ctx context.Context, cfg *sdkconfig.Config, instanceID string, side acuant.Side, image []byte) error
	GetDocument(ctx context.Context, cfg *sdkconfig.Config, instanceID string) (*acuant.IDResult, error)
	DeleteInstance(ctx context.Context, cfg *sdkconfig.Config, instanceID string) error
}

// Result is the terminal OCR payload of a successful workflow.
type Result struct {
	FrontImage            string `json:"frontImage,omitempty"`
	BackImage             string `json:"backImage,omitempty"`
	FullName              string `json:"fullName,omitempty"`
	FirstName             string `json:"firstName,omitempty"`
	LastName              string `json:"lastName,omitempty"`
	DateOfBirth           string `json:"dateOfBirth,omitempty"`
	DocumentNumber        string `json:"documentNumber,omitempty"`
	ExpirationDate        string `json:"expirationDate,omitempty"`
	IssueDate             string `json:"issueDate,omitempty"`
	Address               string `json:"address,omitempty"`
	Country               string `json:"country,omitempty"`
	Nationality           string `json:"nationality,omitempty"`
	Sex                   string `json:"sex,omitempty"`
	IsProcessed           bool   `json:"isProcessed"`
	DocumentType          string `json:"documentType"`
	ClassificationDetails string `json:"classificationDetails,omitempty"`
	BarcodeString         string `json:"barcodeString,omitempty"`
}

// Workflow runs document capture sessions, at most one per device.
type Workflow struct {
	processor Processor
	evaluator Evaluator
	logger    *zap.Logger

	mu     sync.Mutex
	active map[string]*captureSession

	// deletes tracks best-effort instance deletions still running.
	deletes sync.WaitGroup
}

// NewWorkflow wires the workflow to its remote capabilities.
func NewWorkflow(processor Processor, evaluator Evaluator, logger *zap.Logger) *Workflow {
	return &Workflow{
		processor: processor,
		evaluator: evaluator,
		logger:    logger.Named("document_workflow"),
		active:    make(map[string]*captureSession),
	}
}

// CaptureAndProcess drives one document through capture, evaluation, upload and
// OCR retrieval. It returns exactly one result or one coded error.
func (w *Workflow) CaptureAndProcess(ctx context.Context, cfg *sdkconfig.Config, requestID string, dev Capturer, opts capture.DocumentOptions) (*Result, error) {
	if dev == nil {
		return nil, bridgeerr.New(bridgeerr.NoActivity, "No capture device is connected")
	}

	s := &captureSession{
		cfg:       cfg,
		dev:       dev,
		opts:      opts,
		requestID: requestID,
		logger:    logging.WithDevice(logging.WithOperation(w.logger, "document.capture_and_process", requestID), dev.ID()),
	}
	if err := w.acquire(s); err != nil {
		return nil, err
	}
	defer w.release(s)

	return w.run(ctx, s)
}

// Wait blocks until pending best-effort deletions finish.
func (w *Workflow) Wait() {
	w.deletes.Wait()
}

func (w *Workflow) acquire(s *captureSession) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.active[s.dev.ID()]; busy {
		return bridgeerr.Newf(bridgeerr.OperationInProgress, "A document capture is already running on device %q", s.dev.ID())
	}
	w.active[s.dev.ID()] = s
	return nil
}

func (w *Workflow) release(s *captureSession) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active[s.dev.ID()] == s {
		delete(w.active, s.dev.ID())
	}
}

// run steps the session until it reaches a terminal state, then cleans up once.
func (w *Workflow) run(ctx context.Context, s *captureSession) (*Result, error) {
	s.reset()
	s.capturingFront = true
	s.state = AwaitingFrontCapture

	var err error
	for !s.state.Terminal() {
		from := s.state
		var next State
		next, err = w.step(ctx, s)
		if err != nil {
			next = Failed
			if bridgeerr.CodeOf(err) == bridgeerr.UserCanceled {
				next = Canceled
			}
		}
		s.logger.Debug("document workflow transition", zap.Stringer("from", from), zap.Stringer("to", next))
		s.state = next
	}

	result := s.result
	instanceID := s.instanceID
	final := s.state
	s.reset()

	if final != Succeeded {
		s.logger.Info("document workflow ended", zap.Stringer("state", final), zap.String("code", string(bridgeerr.CodeOf(err))))
		return nil, err
	}
	s.logger.Info("document workflow succeeded", zap.String("document_type", result.DocumentType))
	w.deleteInstance(ctx, s.cfg, s.logger, instanceID)
	return result, nil
}

func (w *Workflow) step(ctx context.Context, s *captureSession) (State, error) {
	switch s.state {
	case AwaitingFrontCapture:
		return w.captureFront(ctx, s)
	case AwaitingBackDecision:
		return w.decideBack(ctx, s)
	case AwaitingBackCapture:
		return w.captureBack(ctx, s)
	case EvaluatingFront:
		return w.evaluateFront(ctx, s)
	case CreatingInstance:
		return w.createInstance(ctx, s)
	case UploadingFront:
		return w.uploadFront(ctx, s)
	case EvaluatingBack:
		return w.evaluateBack(ctx, s)
	case UploadingBack:
		return w.uploadBack(ctx, s)
	case FetchingResult:
		return w.fetchResult(ctx, s)
	default:
		return Failed, bridgeerr.Newf(bridgeerr.Internal, "document workflow cannot step from state %s", s.state)
	}
}

// deleteInstance removes the remote instance in the background. Its outcome is
// only logged.
func (w *Workflow) deleteInstance(ctx context.Context, cfg *sdkconfig.Config, logger *zap.Logger, instanceID string) {
	if instanceID == "" {
		return
	}
	w.deletes.Add(1)
	go func() {
		defer w.deletes.Done()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
		defer cancel()
		if err := w.processor.DeleteInstance(dctx, cfg, instanceID); err != nil {
			logger.Warn("failed to delete document instance", zap.String("instance_id", instanceID), zap.Error(err))
			return
		}
		logger.Debug("document instance deleted", zap.String("instance_id", instanceID))
	}()
}
