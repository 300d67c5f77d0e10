package capture

import (
	"context"
	"errors"
)

// Status is the terminal state reported by the device camera UI.
type Status string

const (
	StatusOK       Status = "ok"
	StatusCanceled Status = "canceled"
	StatusFailed   Status = "failed"
)

// Decision is the user's answer to the back-side prompt.
type Decision string

const (
	DecisionYes    Decision = "yes"
	DecisionNo     Decision = "no"
	DecisionCancel Decision = "cancel"
)

// FaceOptions tunes the face capture screen.
type FaceOptions struct {
	CaptureTime int  `json:"captureTime,omitempty"`
	ShowOval    bool `json:"showOval,omitempty"`
}

// DocumentOptions tunes the document camera.
type DocumentOptions struct {
	AutoCapture      *bool `json:"autoCapture,omitempty"`
	ShowDetectionBox *bool `json:"showDetectionBox,omitempty"`
}

// Outcome is the single terminal event produced by one camera launch.
type Outcome struct {
	Status     Status
	Image      []byte
	ImageURI   string
	Barcode    string
	ResultCode int
	Message    string
}

// ErrDeviceGone is returned when the device disconnects with a command pending.
var ErrDeviceGone = errors.New("capture device disconnected")

// Device is a paired UI-capable device that can present capture screens.
type Device interface {
	ID() string
	LaunchFaceCapture(ctx context.Context, opts FaceOptions) (*Outcome, error)
	LaunchDocumentCapture(ctx context.Context, opts DocumentOptions, front bool) (*Outcome, error)
	PromptBackSide(ctx context.Context) (Decision, error)
}

// Locator finds a connected device.
type Locator interface {
	Device(id string) (Device, error)
}
