package imageprocessor

import "context"

// EvaluatedImage is the image-preparation verdict for one raw capture.
type EvaluatedImage struct {
	Sharpness int
	Glare     int
	DPI       int
	// Image holds the cropped, processed bytes to upload.
	Image []byte
}

// Client exposes the image evaluation used by the document workflow.
type Client interface {
	Evaluate(ctx context.Context, requestID string, raw []byte) (*EvaluatedImage, error)
}
