package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// DecodeError is returned when no prefix of the buffer decodes.
type DecodeError struct {
	Size int // bytes in the original buffer
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %d byte stream: no valid prefix: %v", e.Size, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode decompresses back-to-back LZMA or XZ frames. Once one frame has
// decoded, an undecodable remainder is treated as garbage and dropped.
func Decode(buf []byte) ([]byte, error) {
	r := bytes.NewReader(buf)
	var out bytes.Buffer
	frames := 0

	for r.Len() > 0 {
		data, err := decodeFrame(r)
		if err != nil {
			// A frame cut short by the end of the buffer still yields
			// its decoded prefix, as from an interrupted download.
			if r.Len() == 0 && len(data) > 0 {
				out.Write(data)
				frames++
				break
			}
			if frames > 0 {
				break
			}
			return nil, err
		}
		out.Write(data)
		frames++
	}
	if frames == 0 {
		return nil, errors.New("empty stream")
	}
	return out.Bytes(), nil
}

// decodeFrame reads one frame from r. lzma reads through io.ByteReader when
// available, so r is left positioned at the first byte after the frame.
func decodeFrame(r *bytes.Reader) ([]byte, error) {
	if bytes.HasPrefix(peek(r, len(xzMagic)), xzMagic) {
		zr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("xz header: %w", err)
		}
		return readFrame(zr)
	}

	zr, err := lzma.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("lzma header: %w", err)
	}
	return readFrame(zr)
}

// maxDrain bounds the reads spent recovering output after a decode error.
const maxDrain = 1 << 12

// readFrame copies zr to the end of the frame. The lzma decoder can report
// a truncated stream before handing out the output it already produced, and
// its error is sticky, so after any error the buffered output is drained
// with further reads until they come back empty.
func readFrame(zr io.Reader) ([]byte, error) {
	var out bytes.Buffer
	buf := make([]byte, 32*1024)
	for {
		n, err := zr.Read(buf)
		out.Write(buf[:n])
		if err == nil {
			continue
		}
		for i := 0; i < maxDrain; i++ {
			k, _ := zr.Read(buf)
			if k == 0 {
				break
			}
			out.Write(buf[:k])
		}
		if errors.Is(err, io.EOF) {
			return out.Bytes(), nil
		}
		return out.Bytes(), fmt.Errorf("frame: %w", err)
	}
}

// peek returns up to n unread bytes without consuming them.
func peek(r *bytes.Reader, n int) []byte {
	if r.Len() < n {
		n = r.Len()
	}
	b := make([]byte, n)
	off, _ := r.Seek(0, io.SeekCurrent)
	_, _ = r.ReadAt(b, off)
	return b
}

// Repair trims the tail one byte at a time until the remaining prefix
// decodes. Inputs are small index files, so the linear walk is fine.
func Repair(data []byte) ([]byte, error) {
	var lastErr error
	for n := len(data); n > 0; n-- {
		out, err := Decode(data[:n])
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("empty stream")
	}
	return nil, &DecodeError{Size: len(data), Err: lastErr}
}
