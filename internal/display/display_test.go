package display

import (
	"image/color"
	"testing"

	"github.com/strandlight/beamcast/internal/frame"
)

func TestPickDisplayPrimary(t *testing.T) {
	displays := []DisplayInfo{
		{ID: 1, Name: "HDMI-1", Width: 1920, Height: 1080},
		{ID: 2, Name: "DP-1", Width: 2560, Height: 1440, Primary: true},
	}

	got, err := pickDisplay(displays, 0)
	if err != nil {
		t.Fatalf("pickDisplay(0) error: %v", err)
	}
	if got.Name != "DP-1" {
		t.Errorf("pickDisplay(0) = %q, want primary DP-1", got.Name)
	}
}

func TestPickDisplayFallsBackToFirst(t *testing.T) {
	displays := []DisplayInfo{
		{ID: 1, Name: "HDMI-1"},
		{ID: 2, Name: "DP-1"},
	}

	got, err := pickDisplay(displays, 0)
	if err != nil {
		t.Fatalf("pickDisplay(0) error: %v", err)
	}
	if got.Name != "HDMI-1" {
		t.Errorf("pickDisplay(0) with no primary = %q, want first HDMI-1", got.Name)
	}
}

func TestPickDisplayByID(t *testing.T) {
	displays := []DisplayInfo{
		{ID: 1, Name: "HDMI-1", Primary: true},
		{ID: 2, Name: "DP-1"},
	}

	got, err := pickDisplay(displays, 2)
	if err != nil {
		t.Fatalf("pickDisplay(2) error: %v", err)
	}
	if got.Name != "DP-1" {
		t.Errorf("pickDisplay(2) = %q, want DP-1", got.Name)
	}

	if _, err := pickDisplay(displays, 7); err == nil {
		t.Error("pickDisplay(7) should fail for an unknown ID")
	}
	if _, err := pickDisplay(nil, 0); err == nil {
		t.Error("pickDisplay with no displays should fail")
	}
}

func TestEncodePadsScanlines(t *testing.T) {
	// 3 bytes per pixel, 4-byte scanline pad: a 3-pixel row is 9 bytes
	// of pixels padded to 12.
	s := &surface{width: 3, height: 2, depth: 24, bpp: 3, pad: 4}
	tex := frame.NewTexture(3, 2)
	tex.SetRGBA(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	tex.SetRGBA(2, 1, color.RGBA{R: 200, G: 150, B: 100, A: 255})

	row := s.encode(tex)
	if row != 12 {
		t.Fatalf("padded row = %d bytes, want 12", row)
	}
	if len(s.buf) != 24 {
		t.Fatalf("buffer = %d bytes, want 24", len(s.buf))
	}

	// Pixels are written blue-first.
	if s.buf[0] != 30 || s.buf[1] != 20 || s.buf[2] != 10 {
		t.Errorf("pixel (0,0) = %v, want BGR 30 20 10", s.buf[0:3])
	}
	di := 1*row + 2*s.bpp
	if s.buf[di] != 100 || s.buf[di+1] != 150 || s.buf[di+2] != 200 {
		t.Errorf("pixel (2,1) = %v, want BGR 100 150 200", s.buf[di:di+3])
	}
	for _, i := range []int{9, 10, 11, 21, 22, 23} {
		if s.buf[i] != 0 {
			t.Errorf("pad byte %d = %d, want 0", i, s.buf[i])
		}
	}
}

func TestEncodeDepth24ZeroesPadByte(t *testing.T) {
	s := &surface{width: 2, height: 1, depth: 24, bpp: 4, pad: 4}
	tex := frame.NewTexture(2, 1)
	tex.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 200})

	row := s.encode(tex)
	if row != 8 {
		t.Fatalf("padded row = %d bytes, want 8", row)
	}
	if s.buf[0] != 3 || s.buf[1] != 2 || s.buf[2] != 1 {
		t.Errorf("pixel (0,0) = %v, want BGR 3 2 1", s.buf[0:3])
	}
	if s.buf[3] != 0 {
		t.Errorf("depth-24 pad byte = %d, want 0", s.buf[3])
	}
}

func TestEncodeDepth32KeepsAlpha(t *testing.T) {
	s := &surface{width: 1, height: 1, depth: 32, bpp: 4, pad: 4}
	tex := frame.NewTexture(1, 1)
	tex.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 200})

	s.encode(tex)
	if s.buf[3] != 200 {
		t.Errorf("depth-32 alpha byte = %d, want 200", s.buf[3])
	}
}

func TestEncodeReusesBuffer(t *testing.T) {
	s := &surface{width: 4, height: 4, depth: 24, bpp: 4, pad: 4}
	tex := frame.NewTexture(4, 4)
	tex.Fill(color.RGBA{R: 9, G: 9, B: 9, A: 255})

	s.encode(tex)
	first := &s.buf[0]
	s.encode(tex)
	if first != &s.buf[0] {
		t.Error("encode reallocated its buffer between same-size frames")
	}
}
