package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

func compressLZMA(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		t.Fatalf("lzma writer: %v", err)
	}
	if _, err := w.Write([]byte(s)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func compressXZ(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	if _, err := w.Write([]byte(s)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

const index = "ExportWarframes_en.json!00_abc\r\nExportUpgrades_en.json!00_def\r\nExportWeapons_en.json!00_ghi"

func TestRepairTrailingGarbage(t *testing.T) {
	valid := compressLZMA(t, index)
	garbage := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	for n := 0; n <= len(garbage); n++ {
		buf := append(append([]byte{}, valid...), garbage[:n]...)
		out, err := Repair(buf)
		if err != nil {
			t.Fatalf("%d trailing bytes: %v", n, err)
		}
		if string(out) != index {
			t.Fatalf("%d trailing bytes: got %q", n, out)
		}
	}
}

func TestDecodeConcatenatedFrames(t *testing.T) {
	buf := append(compressLZMA(t, "first\r\n"), compressLZMA(t, "second")...)
	out, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out) != "first\r\nsecond" {
		t.Fatalf("got %q", out)
	}
}

func TestDecodeXZ(t *testing.T) {
	out, err := Repair(append(compressXZ(t, index), 0x42, 0x42, 0x42))
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if string(out) != index {
		t.Fatalf("got %q", out)
	}
}

func TestRepairCorruptedFromStart(t *testing.T) {
	buf := compressLZMA(t, index)
	buf[0] = 0xff

	_, err := Repair(buf)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if de.Size != len(buf) || !strings.Contains(de.Error(), "no valid prefix") {
		t.Fatalf("unexpected error %v", de)
	}
}

func TestRepairEmpty(t *testing.T) {
	var de *DecodeError
	if _, err := Repair(nil); !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
}

func TestRepairTruncatedFrameKeepsPrefix(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 600; i++ {
		fmt.Fprintf(&sb, "Export%d_en.json!%08x\r\n", i, uint32(i)*2654435761)
	}
	text := sb.String()
	full := compressLZMA(t, text)

	for _, cut := range []int{1, 3, 10, 67} {
		out, err := Repair(full[:len(full)-cut])
		if err != nil {
			t.Fatalf("cut %d: %v", cut, err)
		}
		if len(out) == 0 || !strings.HasPrefix(text, string(out)) {
			t.Fatalf("cut %d: got %d bytes, want a non-empty prefix of %d", cut, len(out), len(text))
		}
	}
}

func TestDecodeTruncatedSecondFrame(t *testing.T) {
	second := compressLZMA(t, strings.Repeat("second frame payload ", 200))
	buf := append(compressLZMA(t, "first\r\n"), second[:len(second)-5]...)

	out, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(string(out), "first\r\n") {
		t.Fatalf("got %q", out)
	}
}
