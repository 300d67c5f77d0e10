package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/id-bridge/internal/bridgeerr"
	"github.com/example/id-bridge/internal/imagecodec"
)

type stubDevice struct {
	outcome *Outcome
	err     error
}

func (s *stubDevice) ID() string { return "stub" }

func (s *stubDevice) LaunchFaceCapture(ctx context.Context, opts FaceOptions) (*Outcome, error) {
	return s.outcome, s.err
}

func (s *stubDevice) LaunchDocumentCapture(ctx context.Context, opts DocumentOptions, front bool) (*Outcome, error) {
	return s.outcome, s.err
}

func (s *stubDevice) PromptBackSide(ctx context.Context) (Decision, error) {
	return DecisionNo, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCaptureFaceSuccessReencodesJPEG(t *testing.T) {
	dev := &stubDevice{outcome: &Outcome{Status: StatusOK, Image: pngBytes(t), ImageURI: "file:///face.jpg"}}

	res, err := CaptureFace(context.Background(), dev, FaceOptions{ShowOval: true})
	require.NoError(t, err)
	assert.Equal(t, "file:///face.jpg", res.ImageURI)

	raw, err := imagecodec.DecodeBytes(res.JPEGData)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, raw[:2], "expected JPEG SOI marker")
}

func TestCaptureFaceOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		dev    *stubDevice
		code   bridgeerr.Code
		result *int
	}{
		{"canceled", &stubDevice{outcome: &Outcome{Status: StatusCanceled}}, bridgeerr.UserCanceled, nil},
		{"failed", &stubDevice{outcome: &Outcome{Status: StatusFailed, ResultCode: 7}}, bridgeerr.CaptureFailed, intPtr(7)},
		{"no image", &stubDevice{outcome: &Outcome{Status: StatusOK}}, bridgeerr.CaptureFailed, nil},
		{"bad image", &stubDevice{outcome: &Outcome{Status: StatusOK, Image: []byte("not an image")}}, bridgeerr.ImageConversionFail, nil},
		{"device gone", &stubDevice{err: ErrDeviceGone}, bridgeerr.CaptureFailed, nil},
		{"request canceled", &stubDevice{err: context.Canceled}, bridgeerr.UserCanceled, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CaptureFace(context.Background(), tc.dev, FaceOptions{})
			require.Error(t, err)
			be, ok := bridgeerr.As(err)
			require.True(t, ok, "expected coded error, got %v", err)
			assert.Equal(t, tc.code, be.Code)
			if tc.result != nil {
				require.NotNil(t, be.ResultCode)
				assert.Equal(t, *tc.result, *be.ResultCode)
			}
		})
	}
}

func TestCaptureFaceWithoutDevice(t *testing.T) {
	_, err := CaptureFace(context.Background(), nil, FaceOptions{})
	assert.Equal(t, bridgeerr.NoActivity, bridgeerr.CodeOf(err))
}

func TestLaunchErrorKeepsCodedErrors(t *testing.T) {
	coded := bridgeerr.New(bridgeerr.ImageConversionFail, "bad")
	assert.Same(t, coded, LaunchError(coded, "x"))
	assert.True(t, errors.Is(LaunchError(ErrDeviceGone, "x"), ErrDeviceGone))
}

func intPtr(v int) *int { return &v }
