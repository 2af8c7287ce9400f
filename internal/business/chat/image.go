package chat

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"
	"net/http"
	"path"
	"strings"

	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	maxImageDimension = 1920
	jpegQuality       = 80
)

// ErrNotAnImage is returned for empty uploads or bytes that are not an image.
var ErrNotAnImage = errors.New("upload is not an image")

// Photo is an uploaded sign picture as received from the client.
type Photo struct {
	Filename    string
	ContentType string
	Data        []byte
}

// PreparedImage is what gets sent to the backend plus the metadata shown in the chat.
type PreparedImage struct {
	Filename         string
	ContentType      string
	Data             []byte
	Preview          string
	OriginalSize     int64
	CompressedSize   int64
	CompressionRatio float64
	Dimensions       *model.Dimensions
	Compressed       bool
	Err              error
}

// checkPhoto reports whether p carries non-empty image bytes, either declared by
// content type or sniffed.
func checkPhoto(p Photo) error {
	if len(p.Data) == 0 {
		return ErrNotAnImage
	}
	if strings.HasPrefix(strings.ToLower(p.ContentType), "image/") {
		return nil
	}
	if strings.HasPrefix(http.DetectContentType(p.Data), "image/") {
		return nil
	}
	return ErrNotAnImage
}

// PrepareImage downsizes the photo to at most 1920px on its longest side and
// re-encodes it as JPEG. When decoding fails the original bytes are used unchanged
// and Err records why.
func PrepareImage(p Photo) (PreparedImage, error) {
	if err := checkPhoto(p); err != nil {
		return PreparedImage{}, err
	}
	original := int64(len(p.Data))
	fallback := PreparedImage{
		Filename:       p.Filename,
		ContentType:    contentTypeOf(p),
		Data:           p.Data,
		OriginalSize:   original,
		CompressedSize: original,
	}

	src, _, err := image.Decode(bytes.NewReader(p.Data))
	if err != nil {
		fallback.Err = fmt.Errorf("decode image: %w", err)
		fallback.Preview = dataURL(fallback.ContentType, p.Data)
		return fallback, nil
	}
	bounds := src.Bounds()
	fallback.Dimensions = &model.Dimensions{Width: bounds.Dx(), Height: bounds.Dy()}

	w, h := fitWithin(bounds.Dx(), bounds.Dy(), maxImageDimension)
	resized := w != bounds.Dx() || h != bounds.Dy()
	var img image.Image = src
	if resized {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		fallback.Err = fmt.Errorf("encode jpeg: %w", err)
		fallback.Preview = dataURL(fallback.ContentType, p.Data)
		return fallback, nil
	}

	// Re-encoding a small, already compressed image can grow it.
	if !resized && int64(buf.Len()) >= original {
		fallback.Compressed = true
		fallback.Preview = dataURL(fallback.ContentType, p.Data)
		return fallback, nil
	}

	out := buf.Bytes()
	return PreparedImage{
		Filename:         jpegName(p.Filename),
		ContentType:      "image/jpeg",
		Data:             out,
		Preview:          dataURL("image/jpeg", out),
		OriginalSize:     original,
		CompressedSize:   int64(len(out)),
		CompressionRatio: ratio(original, int64(len(out))),
		Dimensions:       &model.Dimensions{Width: w, Height: h},
		Compressed:       true,
	}, nil
}

func fitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		return max, int(math.Max(1, math.Round(float64(h)*float64(max)/float64(w))))
	}
	return int(math.Max(1, math.Round(float64(w)*float64(max)/float64(h)))), max
}

// ratio is the percentage size reduction, rounded to one decimal.
func ratio(original, compressed int64) float64 {
	if original <= 0 {
		return 0
	}
	pct := float64(original-compressed) / float64(original) * 100
	return math.Round(pct*10) / 10
}

func contentTypeOf(p Photo) string {
	if strings.HasPrefix(strings.ToLower(p.ContentType), "image/") {
		return p.ContentType
	}
	return http.DetectContentType(p.Data)
}

func dataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func jpegName(name string) string {
	if name == "" {
		return "parking-sign.jpg"
	}
	return strings.TrimSuffix(name, path.Ext(name)) + ".jpg"
}
