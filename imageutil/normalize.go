// Package imageutil re-encodes inbound chat images under a byte-size
// budget before they are attached to a completion request. It is pure:
// no I/O, no external calls. Compression is best-effort — when an
// image cannot be decoded or re-encoded, the original payload is
// returned rather than failing the request.
package imageutil

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// DefaultBudgetKB is the byte budget applied when none is configured.
const DefaultBudgetKB = 4096

// JPEG re-encoding policy. Quality starts high and steps down to a
// floor before dimension scaling kicks in.
const (
	jpegInitialQuality = 85
	jpegQualityStep    = 10
	jpegQualityFloor   = 30
)

// ErrMalformedDataURI reports an image payload that is not a valid
// base64 data URI (missing the comma split or an unparseable header).
var ErrMalformedDataURI = errors.New("malformed image data URI")

// Normalize decodes a data-URI image and re-encodes it under budgetKB
// if necessary. It returns the (possibly re-encoded) base64 payload
// and its MIME type. Images already under budget are returned with
// their payload byte-for-byte unchanged.
func Normalize(dataURI string, budgetKB int) (string, string, error) {
	if budgetKB <= 0 {
		budgetKB = DefaultBudgetKB
	}

	header, payload, ok := strings.Cut(dataURI, ",")
	if !ok {
		return "", "", ErrMalformedDataURI
	}

	mimeType, err := mediaTypeFromHeader(header)
	if err != nil {
		return "", "", err
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", "", fmt.Errorf("%w: bad base64 payload: %v", ErrMalformedDataURI, err)
	}

	if sizeKB(raw) <= float64(budgetKB) {
		// Under budget: no re-encoding, preserve the original bytes.
		return payload, mimeType, nil
	}

	out, outMime := NormalizeBytes(raw, mimeType, budgetKB)
	return base64.StdEncoding.EncodeToString(out), outMime, nil
}

// NormalizeBytes re-encodes raw image bytes under budgetKB.
//
// Lossy photographic formats (JPEG) are re-encoded at decreasing
// quality until under budget or the quality floor is reached; if the
// floor alone is not enough, linear dimensions are scaled by
// sqrt(budget/size) and the image is encoded once more at floor
// quality. Lossless and other formats are only ever dimension-scaled,
// never quality-reduced.
//
// Never fails: on any decode or encode error the original bytes and
// MIME type are returned unchanged.
func NormalizeBytes(data []byte, mimeType string, budgetKB int) ([]byte, string) {
	if budgetKB <= 0 {
		budgetKB = DefaultBudgetKB
	}
	budget := float64(budgetKB)

	if sizeKB(data) <= budget {
		return data, mimeType
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return data, mimeType
	}

	if isLossy(mimeType) {
		out, err := compressJPEG(img, budget)
		if err != nil {
			return data, mimeType
		}
		return out, "image/jpeg"
	}

	format, err := formatForMIME(mimeType)
	if err != nil {
		return data, mimeType
	}

	scale := math.Sqrt(budget / sizeKB(data))
	if scale >= 1 {
		return data, mimeType
	}

	resized := scaleImage(img, scale)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format); err != nil {
		return data, mimeType
	}
	return buf.Bytes(), mimeType
}

// compressJPEG walks quality down from the initial level, then falls
// back to one sqrt-scaled resize at the floor.
func compressJPEG(img image.Image, budgetKB float64) ([]byte, error) {
	quality := jpegInitialQuality
	out, err := encodeJPEG(img, quality)
	if err != nil {
		return nil, err
	}

	for sizeKB(out) > budgetKB && quality > jpegQualityFloor {
		quality -= jpegQualityStep
		if quality < jpegQualityFloor {
			quality = jpegQualityFloor
		}
		out, err = encodeJPEG(img, quality)
		if err != nil {
			return nil, err
		}
	}

	if sizeKB(out) > budgetKB {
		scale := math.Sqrt(budgetKB / sizeKB(out))
		resized := scaleImage(img, scale)
		out, err = encodeJPEG(resized, jpegQualityFloor)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func scaleImage(img image.Image, scale float64) image.Image {
	bounds := img.Bounds()
	width := int(float64(bounds.Dx()) * scale)
	height := int(float64(bounds.Dy()) * scale)
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

func isLossy(mimeType string) bool {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return true
	default:
		return false
	}
}

func formatForMIME(mimeType string) (imaging.Format, error) {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return imaging.JPEG, nil
	case "image/png":
		return imaging.PNG, nil
	case "image/gif":
		return imaging.GIF, nil
	case "image/bmp":
		return imaging.BMP, nil
	case "image/tiff":
		return imaging.TIFF, nil
	default:
		return 0, fmt.Errorf("no encoder for %s", mimeType)
	}
}

// mediaTypeFromHeader parses the MIME type out of a data URI header
// such as "data:image/png;base64".
func mediaTypeFromHeader(header string) (string, error) {
	_, rest, ok := strings.Cut(header, ":")
	if !ok {
		return "", fmt.Errorf("%w: header %q has no media type", ErrMalformedDataURI, header)
	}
	mimeType, _, _ := strings.Cut(rest, ";")
	if mimeType == "" {
		return "", fmt.Errorf("%w: header %q has no media type", ErrMalformedDataURI, header)
	}
	return mimeType, nil
}

func sizeKB(data []byte) float64 {
	return float64(len(data)) / 1024
}
