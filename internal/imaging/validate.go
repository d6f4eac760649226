// Package imaging checks that attachment bytes really are decodable images
// before they are sent to the model as inline data.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/fpt/gemini-discuss/pkg/discuss"
)

const (
	// MaxImageBytes caps a single inline image. Gemini rejects requests whose
	// inline payload exceeds 20 MB.
	MaxImageBytes = 20 * 1024 * 1024
	// MaxImagePixels guards against decompression bombs.
	MaxImagePixels = 50_000_000
)

var formatMIME = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
}

// Validate decodes data completely and returns the inline image to send.
// The MIME type comes from the decoded format; declaredMIME only breaks ties
// for aliases such as image/jpg.
func Validate(id string, data []byte, declaredMIME string) (discuss.Image, error) {
	if len(data) == 0 {
		return discuss.Image{}, &discuss.ValidationError{AttachmentID: id, Reason: "empty file"}
	}
	if len(data) > MaxImageBytes {
		return discuss.Image{}, &discuss.ValidationError{
			AttachmentID: id,
			Reason:       fmt.Sprintf("exceeds %dMB size limit", MaxImageBytes/1024/1024),
		}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return discuss.Image{}, &discuss.ValidationError{AttachmentID: id, Reason: "unrecognised image header", Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return discuss.Image{}, &discuss.ValidationError{AttachmentID: id, Reason: "zero-sized image"}
	}
	if cfg.Width*cfg.Height > MaxImagePixels {
		return discuss.Image{}, &discuss.ValidationError{
			AttachmentID: id,
			Reason:       fmt.Sprintf("%dx%d exceeds pixel limit", cfg.Width, cfg.Height),
		}
	}

	// Header parsing alone accepts truncated files; decode the pixel data too.
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return discuss.Image{}, &discuss.ValidationError{AttachmentID: id, Reason: "corrupt pixel data", Err: err}
	}

	mime, ok := formatMIME[format]
	if !ok {
		mime = normalizeMIME(declaredMIME)
	}
	if mime == "" {
		return discuss.Image{}, &discuss.ValidationError{AttachmentID: id, Reason: "unknown image format " + format}
	}

	return discuss.Image{MIMEType: mime, Data: data}, nil
}

// FilterImages validates every attachment and keeps the valid ones in order.
// Attachments without data are reported as validation errors too.
func FilterImages(attachments []discuss.Attachment) ([]discuss.Image, []error) {
	var (
		images []discuss.Image
		errs   []error
	)
	for _, att := range attachments {
		img, err := Validate(att.ID, att.Data, att.MIMEType)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		images = append(images, img)
	}
	return images, errs
}

// IsImageContentType reports whether a declared content type claims an image.
func IsImageContentType(ct string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "image/")
}

func normalizeMIME(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "image/jpg", "image/pjpeg":
		return "image/jpeg"
	case "":
		return ""
	}
	if !IsImageContentType(ct) {
		return ""
	}
	return ct
}
