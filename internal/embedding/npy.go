// internal/embedding/npy.go
package embedding

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var npyMagic = []byte("\x93NUMPY")

const (
	maxNPYHeader = 1 << 20
	maxNPYData   = 8 << 30
)

var (
	descrRe   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	fortranRe = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	shapeRe   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// LoadNPY reads a 2-D float32 or float64 matrix saved with numpy.save.
func LoadNPY(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embeddings file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat embeddings file: %w", err)
	}
	return readNPY(bufio.NewReader(f), info.Size())
}

// ReadNPY reads an npy matrix from r. The declared shape is bounded before
// anything is allocated for it.
func ReadNPY(r io.Reader) ([][]float32, error) {
	return readNPY(r, -1)
}

// readNPY reads from r; size is the total stream length, or -1 if unknown.
func readNPY(r io.Reader, size int64) ([][]float32, error) {
	magic := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("failed to read npy preamble: %w", err)
	}
	if !bytes.Equal(magic[:len(npyMagic)], npyMagic) {
		return nil, fmt.Errorf("not an npy file")
	}

	var headerLen int
	switch major := magic[len(npyMagic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("failed to read npy header length: %w", err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("failed to read npy header length: %w", err)
		}
		headerLen = int(n)
	default:
		return nil, fmt.Errorf("unsupported npy version %d", major)
	}
	if headerLen > maxNPYHeader {
		return nil, fmt.Errorf("npy header length %d exceeds %d bytes", headerLen, maxNPYHeader)
	}
	preamble := int64(len(magic)) + 2
	if magic[len(npyMagic)] != 1 {
		preamble += 2
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read npy header: %w", err)
	}
	descr, rows, cols, err := parseNPYHeader(string(header))
	if err != nil {
		return nil, err
	}

	var width int
	switch descr {
	case "<f4":
		width = 4
	case "<f8":
		width = 8
	default:
		return nil, fmt.Errorf("unsupported npy dtype %q", descr)
	}

	dataLen, err := npyDataLen(rows, cols, width)
	if err != nil {
		return nil, err
	}
	if size >= 0 {
		if avail := size - preamble - int64(headerLen); dataLen > avail {
			return nil, fmt.Errorf("npy shape (%d, %d) needs %d data bytes, file has %d", rows, cols, dataLen, avail)
		}
	}

	out := make([][]float32, 0, min(rows, 1<<16))
	buf := make([]byte, cols*width)
	for i := 0; i < rows; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("failed to read npy row %d: %w", i, err)
		}
		vec := make([]float32, cols)
		for j := range vec {
			if width == 4 {
				vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
			} else {
				vec[j] = float32(math.Float64frombits(binary.LittleEndian.Uint64(buf[j*8:])))
			}
		}
		out = append(out, vec)
	}
	return out, nil
}

// npyDataLen returns rows*cols*width, rejecting negative dimensions and
// matrices larger than maxNPYData.
func npyDataLen(rows, cols, width int) (int64, error) {
	if rows < 0 || cols < 0 {
		return 0, fmt.Errorf("negative npy shape (%d, %d)", rows, cols)
	}
	rowBytes := int64(width)
	if int64(cols) > maxNPYData/rowBytes {
		return 0, fmt.Errorf("npy row of %d columns exceeds %d bytes", cols, int64(maxNPYData))
	}
	rowBytes *= int64(cols)
	if rowBytes > 0 && int64(rows) > maxNPYData/rowBytes {
		return 0, fmt.Errorf("npy shape (%d, %d) exceeds %d bytes", rows, cols, int64(maxNPYData))
	}
	return int64(rows) * rowBytes, nil
}

func parseNPYHeader(h string) (descr string, rows, cols int, err error) {
	m := descrRe.FindStringSubmatch(h)
	if m == nil {
		return "", 0, 0, fmt.Errorf("npy header has no descr")
	}
	descr = m[1]

	if m := fortranRe.FindStringSubmatch(h); m != nil && m[1] == "True" {
		return "", 0, 0, fmt.Errorf("fortran-ordered npy arrays are not supported")
	}

	m = shapeRe.FindStringSubmatch(h)
	if m == nil {
		return "", 0, 0, fmt.Errorf("npy header has no shape")
	}
	var dims []int
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, convErr := strconv.Atoi(part)
		if convErr != nil {
			return "", 0, 0, fmt.Errorf("bad npy shape %q", m[1])
		}
		dims = append(dims, n)
	}
	if len(dims) != 2 {
		return "", 0, 0, fmt.Errorf("expected 2-D npy array, got shape (%s)", m[1])
	}
	return descr, dims[0], dims[1], nil
}

// WriteNPY writes vectors as a version 1.0 float32 npy matrix. All rows
// must have the same length.
func WriteNPY(w io.Writer, vectors [][]float32) error {
	cols := 0
	if len(vectors) > 0 {
		cols = len(vectors[0])
	}
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", len(vectors), cols)
	// Preamble plus header is padded to a multiple of 64 and ends in '\n'.
	total := len(npyMagic) + 2 + 2 + len(header) + 1
	if pad := total % 64; pad != 0 {
		header += strings.Repeat(" ", 64-pad)
	}
	header += "\n"

	if _, err := w.Write(npyMagic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{1, 0}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	buf := make([]byte, cols*4)
	for i, vec := range vectors {
		if len(vec) != cols {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(vec), cols)
		}
		for j, v := range vec {
			binary.LittleEndian.PutUint32(buf[j*4:], math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
