package imagecodec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoders accepted from devices
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

// JPEGQuality is the fixed quality used for every outbound transport encoding.
const JPEGQuality = 80

// ErrNotImage is returned when a payload does not sniff as an image.
var ErrNotImage = errors.New("payload is not an image")

// EncodeBytes returns the standard base64 form of buf.
func EncodeBytes(buf []byte) string {
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeBytes decodes a standard base64 string. Line breaks, as emitted by some
// mobile encoders, are ignored.
func DecodeBytes(s string) ([]byte, error) {
	s = strings.NewReplacer("\n", "", "\r", "").Replace(strings.TrimSpace(s))
	return base64.StdEncoding.DecodeString(s)
}

// Decode turns compressed image bytes into an in-memory image.
func Decode(buf []byte) (image.Image, error) {
	if len(buf) == 0 {
		return nil, ErrNotImage
	}
	mt := mimetype.Detect(buf)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}
	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// DecodeBase64 decodes a base64 payload and validates that it holds an image.
func DecodeBase64(s string) ([]byte, image.Image, error) {
	raw, err := DecodeBytes(s)
	if err != nil {
		return nil, nil, err
	}
	img, err := Decode(raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, img, nil
}

// EncodeJPEG compresses img as JPEG at JPEGQuality and returns it base64 encoded.
func EncodeJPEG(img image.Image) (string, error) {
	buf, err := JPEG(img)
	if err != nil {
		return "", err
	}
	return EncodeBytes(buf), nil
}

// JPEG compresses img at JPEGQuality.
func JPEG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Reencode decodes buf and re-encodes it for transport.
func Reencode(buf []byte) (string, error) {
	img, err := Decode(buf)
	if err != nil {
		return "", err
	}
	return EncodeJPEG(img)
}
