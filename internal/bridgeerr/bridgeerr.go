package bridgeerr

import (
	"errors"
	"fmt"
)

// Code is the machine-readable failure code returned to the application layer.
type Code string

const (
	InvalidToken       Code = "InvalidToken"
	InvalidCredentials Code = "InvalidCredentials"
	InvalidOptions     Code = "InvalidOptions"
	InitFailed         Code = "InitializationFailed"
	NotInitialized     Code = "NotInitialized"

	NoActivity          Code = "NoActivity"
	CaptureFailed       Code = "CaptureFailed"
	UserCanceled        Code = "UserCanceled"
	ImageConversionFail Code = "ImageConversionFailed"

	InvalidRequest Code = "InvalidRequest"
	InvalidImage   Code = "InvalidImage"
	FaceMatchError Code = "FaceMatchError"
	VendorUnknown  Code = "Unknown"

	ImageTooBlurry        Code = "ImageTooBlurry"
	ImageHasGlare         Code = "ImageHasGlare"
	ImageEvaluationFailed Code = "ImageEvaluationFailed"
	CreateInstanceFailed  Code = "CreateInstanceFailed"
	UploadFrontFailed     Code = "UploadFrontFailed"
	UploadBackFailed      Code = "UploadBackFailed"
	GetDataFailed         Code = "GetDataFailed"

	OperationInProgress Code = "OperationInProgress"
	Internal            Code = "InternalError"
)

// Error is a coded failure surfaced exactly once per operation.
type Error struct {
	Code    Code
	Message string
	// ResultCode carries the platform capture result code when the device reported one.
	ResultCode *int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to a cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithResultCode records the platform result code on the error.
func (e *Error) WithResultCode(rc int) *Error {
	e.ResultCode = &rc
	return e
}

// CodeOf extracts the failure code, defaulting to Internal for uncoded errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return Internal
}

// As returns the coded error in err's chain, if any.
func As(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
