package document

import (
	"context"
	"image"

	"go.uber.org/zap"

	"github.com/example/id-bridge/internal/acuant"
	"github.com/example/id-bridge/internal/bridgeerr"
	"github.com/example/id-bridge/internal/capture"
	"github.com/example/id-bridge/internal/imagecodec"
	"github.com/example/id-bridge/internal/imageprocessor"
	"github.com/example/id-bridge/internal/sdkconfig"
)

// captureSession is the state threaded through one workflow run. Only the
// goroutine running the workflow touches it.
type captureSession struct {
	cfg       *sdkconfig.Config
	dev       Capturer
	opts      capture.DocumentOptions
	requestID string
	logger    *zap.Logger

	state          State
	capturingFront bool
	front          []byte
	back           []byte
	frontImage     image.Image
	backImage      image.Image
	barcode        string
	frontEval      *imageprocessor.EvaluatedImage
	backEval       *imageprocessor.EvaluatedImage
	instanceID     string
	result         *Result
}

// reset clears everything a run produces so nothing leaks into the next one.
func (s *captureSession) reset() {
	s.state = Idle
	s.capturingFront = true
	s.front = nil
	s.back = nil
	s.frontImage = nil
	s.backImage = nil
	s.barcode = ""
	s.frontEval = nil
	s.backEval = nil
	s.instanceID = ""
	s.result = nil
}

func (w *Workflow) captureFront(ctx context.Context, s *captureSession) (State, error) {
	outcome, decoded, err := launch(ctx, s, "document capture")
	if err != nil {
		return Failed, err
	}
	s.front, s.frontImage = outcome.Image, decoded
	s.barcode = outcome.Barcode
	s.capturingFront = false
	return AwaitingBackDecision, nil
}

func (w *Workflow) decideBack(ctx context.Context, s *captureSession) (State, error) {
	decision, err := s.dev.PromptBackSide(ctx)
	if err != nil {
		return Failed, capture.LaunchError(err, "document capture")
	}
	switch decision {
	case capture.DecisionYes:
		return AwaitingBackCapture, nil
	case capture.DecisionNo:
		return EvaluatingFront, nil
	default:
		return Canceled, bridgeerr.New(bridgeerr.UserCanceled, "User canceled document capture")
	}
}

func (w *Workflow) captureBack(ctx context.Context, s *captureSession) (State, error) {
	outcome, decoded, err := launch(ctx, s, "back side capture")
	if err != nil {
		return Failed, err
	}
	s.back, s.backImage = outcome.Image, decoded
	return EvaluatingFront, nil
}

func (w *Workflow) evaluateFront(ctx context.Context, s *captureSession) (State, error) {
	evaluated, err := w.evaluator.Evaluate(ctx, s.requestID, s.front)
	if err != nil {
		s.logger.Warn("front image evaluation failed", zap.Error(err))
		return Failed, bridgeerr.Wrap(bridgeerr.ImageEvaluationFailed, acuant.Description(err, "Failed to evaluate image"), err)
	}
	if evaluated.Sharpness < MinSharpness {
		return Failed, bridgeerr.Newf(bridgeerr.ImageTooBlurry, "Image is too blurry (sharpness: %d)", evaluated.Sharpness)
	}
	if evaluated.Glare < MinGlare {
		return Failed, bridgeerr.Newf(bridgeerr.ImageHasGlare, "Image has too much glare (glare: %d)", evaluated.Glare)
	}
	s.frontEval = evaluated
	return CreatingInstance, nil
}

func (w *Workflow) createInstance(ctx context.Context, s *captureSession) (State, error) {
	opts := acuant.DefaultInstanceOptions(s.cfg.SubscriptionID(), s.dev.ID())
	id, err := w.processor.CreateInstance(ctx, s.cfg, opts)
	if err != nil {
		s.logger.Warn("failed to create document instance", zap.Error(err))
		return Failed, bridgeerr.Wrap(bridgeerr.CreateInstanceFailed, acuant.Description(err, "Failed to create instance"), err)
	}
	s.instanceID = id
	return UploadingFront, nil
}

func (w *Workflow) uploadFront(ctx context.Context, s *captureSession) (State, error) {
	if err := w.processor.UploadImage(ctx, s.cfg, s.instanceID, acuant.SideFront, s.frontEval.Image); err != nil {
		s.logger.Warn("failed to upload front image", zap.Error(err))
		return Failed, bridgeerr.Wrap(bridgeerr.UploadFrontFailed, acuant.Description(err, "Failed to upload front image"), err)
	}
	if s.back != nil {
		return EvaluatingBack, nil
	}
	return FetchingResult, nil
}

// evaluateBack only crops the back side; it is not quality gated.
func (w *Workflow) evaluateBack(ctx context.Context, s *captureSession) (State, error) {
	evaluated, err := w.evaluator.Evaluate(ctx, s.requestID, s.back)
	if err != nil {
		s.logger.Warn("back image evaluation failed", zap.Error(err))
		return Failed, bridgeerr.Wrap(bridgeerr.ImageEvaluationFailed, acuant.Description(err, "Failed to evaluate back image"), err)
	}
	s.backEval = evaluated
	return UploadingBack, nil
}

func (w *Workflow) uploadBack(ctx context.Context, s *captureSession) (State, error) {
	if err := w.processor.UploadImage(ctx, s.cfg, s.instanceID, acuant.SideBack, s.backEval.Image); err != nil {
		s.logger.Warn("failed to upload back image", zap.Error(err))
		return Failed, bridgeerr.Wrap(bridgeerr.UploadBackFailed, acuant.Description(err, "Failed to upload back image"), err)
	}
	return FetchingResult, nil
}

func (w *Workflow) fetchResult(ctx context.Context, s *captureSession) (State, error) {
	doc, err := w.processor.GetDocument(ctx, s.cfg, s.instanceID)
	if err != nil {
		s.logger.Warn("failed to get document data", zap.Error(err))
		return Failed, bridgeerr.Wrap(bridgeerr.GetDataFailed, acuant.Description(err, "Failed to get document data"), err)
	}
	result, err := s.assemble(doc)
	if err != nil {
		return Failed, err
	}
	s.result = result
	return Succeeded, nil
}

func (s *captureSession) assemble(doc *acuant.IDResult) (*Result, error) {
	r := &Result{
		FullName:              doc.FullName,
		FirstName:             doc.FirstName,
		LastName:              doc.LastName,
		DateOfBirth:           doc.DateOfBirth,
		DocumentNumber:        doc.DocumentNumber,
		ExpirationDate:        doc.ExpirationDate,
		IssueDate:             doc.IssueDate,
		Address:               doc.Address,
		Country:               doc.Country,
		Nationality:           doc.Nationality,
		Sex:                   doc.Sex,
		IsProcessed:           true,
		DocumentType:          doc.DocumentType,
		ClassificationDetails: doc.ClassificationDetails,
		BarcodeString:         s.barcode,
	}
	if r.DocumentType == "" {
		r.DocumentType = "Unknown"
	}

	var err error
	if r.FrontImage, err = imagecodec.EncodeJPEG(s.frontImage); err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.ImageConversionFail, "Failed to encode front image", err)
	}
	if s.backImage != nil {
		if r.BackImage, err = imagecodec.EncodeJPEG(s.backImage); err != nil {
			return nil, bridgeerr.Wrap(bridgeerr.ImageConversionFail, "Failed to encode back image", err)
		}
	}
	return r, nil
}

// launch opens the document camera for the side the session is waiting on. The
// capture must decode before any vendor call sees it.
func launch(ctx context.Context, s *captureSession, what string) (*capture.Outcome, image.Image, error) {
	outcome, err := s.dev.LaunchDocumentCapture(ctx, s.opts, s.capturingFront)
	if err != nil {
		return nil, nil, capture.LaunchError(err, what)
	}
	if err := capture.OutcomeError(outcome, what); err != nil {
		return nil, nil, err
	}
	if len(outcome.Image) == 0 {
		return nil, nil, bridgeerr.Newf(bridgeerr.CaptureFailed, "No image returned from %s", what)
	}
	decoded, err := imagecodec.Decode(outcome.Image)
	if err != nil {
		return nil, nil, bridgeerr.Wrap(bridgeerr.ImageConversionFail, "Failed to decode captured image", err)
	}
	return outcome, decoded, nil
}
