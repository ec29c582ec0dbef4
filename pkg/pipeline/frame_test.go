package pipeline

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"
)

// pngHeader builds a PNG that declares w x h RGBA pixels but carries no
// image data.
func pngHeader(w, h uint32) []byte {
	chunk := func(typ string, data []byte) []byte {
		var b bytes.Buffer
		binary.Write(&b, binary.BigEndian, uint32(len(data)))
		b.WriteString(typ)
		b.Write(data)
		binary.Write(&b, binary.BigEndian, crc32.ChecksumIEEE(append([]byte(typ), data...)))
		return b.Bytes()
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	var b bytes.Buffer
	b.WriteString("\x89PNG\r\n\x1a\n")
	b.Write(chunk("IHDR", ihdr))
	b.Write(chunk("tEXt", []byte("Comment\x00oversized header only, no pixel data")))
	b.Write(chunk("IEND", nil))
	return b.Bytes()
}

func TestFrameFromBase64(t *testing.T) {
	raw := []byte("hello frame payload")

	tests := []struct {
		name       string
		in         string
		wantFormat string
		wantErr    bool
	}{
		{"bare padded", base64.StdEncoding.EncodeToString(raw), "", false},
		{"bare unpadded", base64.RawStdEncoding.EncodeToString(raw), "", false},
		{"data url", "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(raw), "jpeg", false},
		{"surrounding whitespace", "  " + base64.StdEncoding.EncodeToString(raw) + "\n", "", false},
		{"data url without comma", "data:image/png;base64", "", true},
		{"garbage", "!!!***", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := FrameFromBase64(tt.in)
			if tt.wantErr {
				var decodeErr *DecodeError
				if !errors.As(err, &decodeErr) {
					t.Fatalf("expected DecodeError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(f.Data) != string(raw) {
				t.Errorf("data: got %q", f.Data)
			}
			if f.Format != tt.wantFormat {
				t.Errorf("format: got %q, want %q", f.Format, tt.wantFormat)
			}
		})
	}
}

func TestFrameDecode(t *testing.T) {
	t.Run("valid png", func(t *testing.T) {
		img, err := pngFrame(t, 32, 24, 10).Decode()
		if err != nil {
			t.Fatal(err)
		}
		if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
			t.Errorf("bounds: %v", b)
		}
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Frame{}.Decode()
		if !errors.Is(err, ErrEmptyFrame) {
			t.Errorf("expected ErrEmptyFrame, got %v", err)
		}
	})

	t.Run("truncated png", func(t *testing.T) {
		f := pngFrame(t, 32, 32, 10)
		f.Data = f.Data[:len(f.Data)/2]
		_, err := f.Decode()
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
		if decodeErr.Format != "png" {
			t.Errorf("format: got %q", decodeErr.Format)
		}
	})
}

func TestFrameDecode_PixelLimit(t *testing.T) {
	t.Run("oversized header rejected", func(t *testing.T) {
		f := Frame{Data: pngHeader(20000, 20000), Format: "png"}
		if len(f.Data) < minFrameBytes {
			t.Fatalf("test frame too short: %d bytes", len(f.Data))
		}

		_, err := f.Decode()
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
		if !errors.Is(err, ErrFrameTooLarge) {
			t.Errorf("expected ErrFrameTooLarge, got %v", err)
		}
	})

	t.Run("limit is inclusive", func(t *testing.T) {
		f := pngFrame(t, 32, 24, 10)
		if _, err := f.DecodeLimit(32 * 24); err != nil {
			t.Errorf("frame at the limit: %v", err)
		}
		if _, err := f.DecodeLimit(32*24 - 1); !errors.Is(err, ErrFrameTooLarge) {
			t.Errorf("frame over the limit: got %v", err)
		}
	})

	t.Run("zero disables the limit", func(t *testing.T) {
		if _, err := pngFrame(t, 32, 24, 10).DecodeLimit(0); err != nil {
			t.Errorf("unlimited decode: %v", err)
		}
	})
}

func TestPacketRoundTrip(t *testing.T) {
	in := pngFrame(t, 16, 16, 50)
	b, err := EncodePacket(in, 42)
	if err != nil {
		t.Fatal(err)
	}

	f, p, err := DecodePacket(b)
	if err != nil {
		t.Fatal(err)
	}
	if p.Seq != 42 || f.Format != "png" || len(f.Data) != len(in.Data) {
		t.Errorf("packet: seq=%d format=%q len=%d", p.Seq, f.Format, len(f.Data))
	}
	if _, err := f.Decode(); err != nil {
		t.Errorf("decoded frame unusable: %v", err)
	}

	_, _, err = DecodePacket([]byte{0xc1})
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("expected DecodeError, got %v", err)
	}
}
