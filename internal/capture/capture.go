package capture

import (
	"context"
	"errors"

	"github.com/example/id-bridge/internal/bridgeerr"
	"github.com/example/id-bridge/internal/imagecodec"
)

// FaceResult is returned by a successful face capture.
type FaceResult struct {
	JPEGData string `json:"jpegData"`
	ImageURI string `json:"imageUri,omitempty"`
}

// CaptureFace launches the face camera on dev and waits for its terminal event.
func CaptureFace(ctx context.Context, dev Device, opts FaceOptions) (*FaceResult, error) {
	if dev == nil {
		return nil, bridgeerr.New(bridgeerr.NoActivity, "No capture device is connected")
	}
	outcome, err := dev.LaunchFaceCapture(ctx, opts)
	if err != nil {
		return nil, LaunchError(err, "face capture")
	}
	if err := OutcomeError(outcome, "face capture"); err != nil {
		return nil, err
	}
	if len(outcome.Image) == 0 {
		return nil, bridgeerr.New(bridgeerr.CaptureFailed, "No image returned from face capture")
	}
	jpegData, err := imagecodec.Reencode(outcome.Image)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.ImageConversionFail, "Failed to decode captured image", err)
	}
	return &FaceResult{JPEGData: jpegData, ImageURI: outcome.ImageURI}, nil
}

// OutcomeError maps a canceled or failed camera outcome to its coded error; it
// returns nil for a successful outcome.
func OutcomeError(o *Outcome, what string) error {
	switch o.Status {
	case StatusOK:
		return nil
	case StatusCanceled:
		return bridgeerr.Newf(bridgeerr.UserCanceled, "User canceled %s", what)
	default:
		msg := o.Message
		if msg == "" {
			return bridgeerr.Newf(bridgeerr.CaptureFailed, "%s failed with result code: %d", capitalize(what), o.ResultCode).WithResultCode(o.ResultCode)
		}
		return bridgeerr.New(bridgeerr.CaptureFailed, msg).WithResultCode(o.ResultCode)
	}
}

// LaunchError maps a failure to reach or hear back from the device.
func LaunchError(err error, what string) error {
	if _, ok := bridgeerr.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return bridgeerr.Wrap(bridgeerr.UserCanceled, "Request canceled during "+what, err)
	}
	return bridgeerr.Wrap(bridgeerr.CaptureFailed, capitalize(what)+" failed", err)
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
