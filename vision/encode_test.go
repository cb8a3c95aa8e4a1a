package vision

import (
	"image"
	"image/color"
	"strings"
	"testing"
)

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	return img
}

func TestDecodeRejectsEmptyAndGarbage(t *testing.T) {
	if _, err := Decode(nil); err != ErrEmptyImage {
		t.Errorf("Decode(nil) error = %v, want ErrEmptyImage", err)
	}
	if _, err := Decode([]byte("not an image")); err == nil {
		t.Error("Decode(garbage) succeeded")
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	payload, err := EncodeJPEG(solidImage(32, 24))
	if err != nil {
		t.Fatalf("EncodeJPEG() error = %v", err)
	}
	img, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 24 {
		t.Errorf("decoded bounds = %v, want 32x24", img.Bounds())
	}
}

func TestBoundDimensions(t *testing.T) {
	tests := []struct {
		name         string
		w, h, maxDim int
		wantW, wantH int
	}{
		{"within bounds untouched", 100, 50, 768, 100, 50},
		{"wide image scaled", 1000, 500, 500, 500, 250},
		{"tall image scaled", 300, 900, 300, 100, 300},
		{"zero maxDim uses default", 1536, 1536, 0, 768, 768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := BoundDimensions(solidImage(tt.w, tt.h), tt.maxDim)
			if out.Bounds().Dx() != tt.wantW || out.Bounds().Dy() != tt.wantH {
				t.Errorf("bounds = %dx%d, want %dx%d",
					out.Bounds().Dx(), out.Bounds().Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestPrepareFrame(t *testing.T) {
	payload, err := PrepareFrame(solidImage(2000, 1000), 400)
	if err != nil {
		t.Fatalf("PrepareFrame() error = %v", err)
	}
	img, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode(prepared) error = %v", err)
	}
	if img.Bounds().Dx() != 400 {
		t.Errorf("prepared width = %d, want 400", img.Bounds().Dx())
	}

	if _, err := PrepareFrame(nil, 400); err != ErrEmptyImage {
		t.Errorf("PrepareFrame(nil) error = %v, want ErrEmptyImage", err)
	}
}

func TestDataURLPrefix(t *testing.T) {
	url := DataURL([]byte{0xff, 0xd8})
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Errorf("DataURL prefix wrong: %q", url)
	}
}
