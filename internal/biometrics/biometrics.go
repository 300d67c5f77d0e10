package biometrics

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/id-bridge/internal/acuant"
	"github.com/example/id-bridge/internal/bridgeerr"
	"github.com/example/id-bridge/internal/imagecodec"
	"github.com/example/id-bridge/internal/logging"
	"github.com/example/id-bridge/internal/sdkconfig"
)

// Assessment is the normalized liveness verdict. Callers should decide on it
// rather than on the vendor-scaled score.
type Assessment string

const (
	Live        Assessment = "Live"
	NotLive     Assessment = "NotLive"
	PoorQuality Assessment = "PoorQuality"
	Error       Assessment = "Error"
)

// LivenessRequest carries one base64 JPEG face image.
type LivenessRequest struct {
	JPEGData string `json:"jpegData"`
}

// LivenessResult is the normalized liveness reply.
type LivenessResult struct {
	Score         int        `json:"score"`
	Assessment    Assessment `json:"assessment"`
	TransactionID string     `json:"transactionId,omitempty"`
}

// FaceMatchRequest carries the two faces to compare.
type FaceMatchRequest struct {
	FaceOneData string `json:"faceOneData"`
	FaceTwoData string `json:"faceTwoData"`
}

// FaceMatchResult is the face match reply.
type FaceMatchResult struct {
	IsMatch bool `json:"isMatch"`
	Score   int  `json:"score"`
}

// Vendor is the subset of the vendor client used for analysis.
type Vendor interface {
	PassiveLiveness(ctx context.Context, cfg *sdkconfig.Config, jpeg []byte) (*acuant.LivenessResponse, error)
	FaceMatch(ctx context.Context, cfg *sdkconfig.Config, faceOne, faceTwo []byte) (*acuant.FaceMatchResponse, error)
}

// Service forwards captured images to the vendor analysis services.
type Service struct {
	vendor Vendor
	logger *zap.Logger
}

// NewService builds the analysis bridge.
func NewService(vendor Vendor, logger *zap.Logger) *Service {
	return &Service{vendor: vendor, logger: logger.Named("biometrics")}
}

// ProcessPassiveLiveness assesses whether the face image comes from a live person.
func (s *Service) ProcessPassiveLiveness(ctx context.Context, cfg *sdkconfig.Config, requestID string, req LivenessRequest) (*LivenessResult, error) {
	if strings.TrimSpace(req.JPEGData) == "" {
		return nil, bridgeerr.New(bridgeerr.InvalidRequest, "Missing jpegData")
	}
	raw, _, err := imagecodec.DecodeBase64(req.JPEGData)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.InvalidImage, "Failed to decode base64 image data", err)
	}

	opLogger := logging.WithOperation(s.logger, "biometrics.passive_liveness", requestID)
	resp, err := s.vendor.PassiveLiveness(ctx, cfg, raw)
	if err != nil {
		opLogger.Warn("passive liveness call failed", zap.Error(err))
		return nil, vendorError(err, "Passive liveness processing failed")
	}
	if resp.ErrorCode != "" || resp.Error != "" {
		code := resp.ErrorCode
		if code == "" {
			code = string(bridgeerr.VendorUnknown)
		}
		msg := resp.Error
		if msg == "" {
			msg = "Passive liveness processing failed"
		}
		return nil, bridgeerr.New(bridgeerr.Code(code), msg)
	}

	result := &LivenessResult{Assessment: Error, TransactionID: resp.TransactionID}
	if resp.LivenessResult != nil {
		result.Score = resp.LivenessResult.Score
		result.Assessment = normalizeAssessment(resp.LivenessResult.LivenessAssessment)
	}
	opLogger.Info("passive liveness assessed", zap.String("assessment", string(result.Assessment)))
	return result, nil
}

// ProcessFaceMatch compares two faces, typically a document portrait and a selfie.
func (s *Service) ProcessFaceMatch(ctx context.Context, cfg *sdkconfig.Config, requestID string, req FaceMatchRequest) (*FaceMatchResult, error) {
	if strings.TrimSpace(req.FaceOneData) == "" || strings.TrimSpace(req.FaceTwoData) == "" {
		return nil, bridgeerr.New(bridgeerr.InvalidRequest, "Missing faceOneData or faceTwoData")
	}

	var faceOne, faceTwo []byte
	var g errgroup.Group
	g.Go(func() error {
		raw, _, err := imagecodec.DecodeBase64(req.FaceOneData)
		faceOne = raw
		return err
	})
	g.Go(func() error {
		raw, _, err := imagecodec.DecodeBase64(req.FaceTwoData)
		faceTwo = raw
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.InvalidImage, "Failed to decode base64 image data", err)
	}

	opLogger := logging.WithOperation(s.logger, "biometrics.face_match", requestID)
	resp, err := s.vendor.FaceMatch(ctx, cfg, faceOne, faceTwo)
	if err != nil {
		opLogger.Warn("face match call failed", zap.Error(err))
		return nil, bridgeerr.Wrap(bridgeerr.FaceMatchError, acuant.Description(err, "Face match processing failed"), err)
	}
	// The vendor can answer 200 with an error payload.
	if resp.Error != nil {
		msg := resp.Error.Description
		if msg == "" {
			msg = "Face match failed"
		}
		return nil, bridgeerr.New(bridgeerr.FaceMatchError, msg)
	}

	opLogger.Info("face match completed", zap.Bool("is_match", resp.IsMatch))
	return &FaceMatchResult{IsMatch: resp.IsMatch, Score: resp.Score}, nil
}

func normalizeAssessment(v string) Assessment {
	switch strings.ToLower(v) {
	case "live":
		return Live
	case "notlive":
		return NotLive
	case "poorquality":
		return PoorQuality
	default:
		return Error
	}
}

func vendorError(err error, fallback string) error {
	var apiErr *acuant.APIError
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		return bridgeerr.Wrap(bridgeerr.Code(apiErr.Code), acuant.Description(err, fallback), err)
	}
	return bridgeerr.Wrap(bridgeerr.VendorUnknown, acuant.Description(err, fallback), err)
}
