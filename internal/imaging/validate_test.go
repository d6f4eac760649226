package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/fpt/gemini-discuss/pkg/discuss"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("Failed to encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestValidate_PNG(t *testing.T) {
	data := encodePNG(t, 16, 16)

	img, err := Validate("a1", data, "image/png")
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if img.MIMEType != "image/png" {
		t.Errorf("Expected image/png, got %s", img.MIMEType)
	}
	if !bytes.Equal(img.Data, data) {
		t.Error("Validate must not alter image bytes")
	}
}

func TestValidate_MIMEFromDecodedFormat(t *testing.T) {
	data := encodeJPEG(t)

	img, err := Validate("a1", data, "image/png")
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if img.MIMEType != "image/jpeg" {
		t.Errorf("Expected decoded format to win, got %s", img.MIMEType)
	}
}

func TestValidate_Rejects(t *testing.T) {
	full := encodePNG(t, 32, 32)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text file", []byte("just some notes, definitely not pixels")},
		{"truncated png", full[:len(full)/2]},
		{"pdf header", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate("bad", tt.data, "image/png")
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !discuss.IsValidationError(err) {
				t.Errorf("Expected ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestValidate_Oversized(t *testing.T) {
	data := make([]byte, MaxImageBytes+1)
	_, err := Validate("big", data, "image/png")
	if !discuss.IsValidationError(err) {
		t.Fatalf("Expected ValidationError for oversized file, got %v", err)
	}
}

func TestFilterImages_KeepsOrderAndSkipsInvalid(t *testing.T) {
	first := encodePNG(t, 4, 4)
	second := encodeJPEG(t)

	atts := []discuss.Attachment{
		{ID: "1", MIMEType: "image/png", Data: first},
		{ID: "2", MIMEType: "application/pdf", Data: []byte("%PDF-1.4")},
		{ID: "3", MIMEType: "image/jpeg", Data: second},
		{ID: "4", MIMEType: "image/png"},
	}

	images, errs := FilterImages(atts)
	if len(images) != 2 {
		t.Fatalf("Expected 2 images, got %d", len(images))
	}
	if !bytes.Equal(images[0].Data, first) || !bytes.Equal(images[1].Data, second) {
		t.Error("Images must keep attachment order")
	}
	if len(errs) != 2 {
		t.Errorf("Expected 2 validation errors, got %d", len(errs))
	}
}

func TestIsImageContentType(t *testing.T) {
	cases := map[string]bool{
		"image/png":       true,
		"IMAGE/JPEG":      true,
		" image/webp ":    true,
		"application/pdf": false,
		"":                false,
		"text/plain":      false,
	}
	for ct, want := range cases {
		if got := IsImageContentType(ct); got != want {
			t.Errorf("IsImageContentType(%q) = %v, want %v", ct, got, want)
		}
	}
}

func TestNormalizeMIME(t *testing.T) {
	cases := map[string]string{
		"image/jpg":            "image/jpeg",
		"image/png; charset=x": "image/png",
		"text/plain":           "",
		"":                     "",
	}
	for in, want := range cases {
		if got := normalizeMIME(in); got != want {
			t.Errorf("normalizeMIME(%q) = %q, want %q", in, got, want)
		}
	}
}
