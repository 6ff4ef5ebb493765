package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
)

// The embedding matrix is persisted in NumPy .npy format (version 1.0,
// little-endian float32, C order) so the file stays interchangeable with
// numpy.load/numpy.save. The format is a fixed magic, a padded Python-dict
// header, then the raw row-major data.

var npyMagic = []byte("\x93NUMPY")

var (
	npyShapeRe   = regexp.MustCompile(`'shape':\s*\((\d+),\s*(\d+),?\s*\)`)
	npyDescrRe   = regexp.MustCompile(`'descr':\s*'<f4'`)
	npyFortranRe = regexp.MustCompile(`'fortran_order':\s*True`)
)

// WriteMatrix writes a 2-D float32 matrix as an .npy file. All rows must
// have the same length. The write is atomic via temp file + rename.
func WriteMatrix(path string, rows [][]float32) error {
	dim := 0
	if len(rows) > 0 {
		dim = len(rows[0])
	}
	for i, row := range rows {
		if len(row) != dim {
			return domain.ValidationError(fmt.Sprintf("row %d has length %d, want %d", i, len(row), dim), nil)
		}
	}

	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", len(rows), dim)
	// Total header size (magic + version + length field + dict + padding)
	// must be a multiple of 64, and the dict must end with a newline.
	headerLen := len(header) + 1
	total := len(npyMagic) + 2 + 2 + headerLen
	if pad := total % 64; pad != 0 {
		headerLen += 64 - pad
	}

	buf := make([]byte, 0, len(npyMagic)+4+headerLen+len(rows)*dim*4)
	buf = append(buf, npyMagic...)
	buf = append(buf, 1, 0) // version 1.0
	buf = binary.LittleEndian.AppendUint16(buf, uint16(headerLen))
	buf = append(buf, header...)
	for len(buf) < len(npyMagic)+4+headerLen-1 {
		buf = append(buf, ' ')
	}
	buf = append(buf, '\n')

	for _, row := range rows {
		for _, v := range row {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return domain.IOError("failed to create result directory", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return domain.IOError("failed to create temp vector file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return domain.IOError("failed to write temp vector file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return domain.IOError("failed to close temp vector file", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return domain.IOError("failed to replace vector file", err)
	}

	return nil
}

// ReadMatrix reads a 2-D float32 .npy file written by WriteMatrix or by
// numpy.save.
func ReadMatrix(path string) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.IOError("failed to read vector file", err)
	}

	if len(data) < len(npyMagic)+4 || string(data[:len(npyMagic)]) != string(npyMagic) {
		return nil, domain.ValidationError("vector file is not in npy format", nil)
	}

	major := data[len(npyMagic)]
	if major != 1 {
		return nil, domain.ValidationError(fmt.Sprintf("unsupported npy version %d", major), nil)
	}

	headerLen := int(binary.LittleEndian.Uint16(data[len(npyMagic)+2:]))
	headerEnd := len(npyMagic) + 4 + headerLen
	if len(data) < headerEnd {
		return nil, domain.ValidationError("vector file header is truncated", nil)
	}
	header := string(data[len(npyMagic)+4 : headerEnd])

	if !npyDescrRe.MatchString(header) {
		return nil, domain.ValidationError("vector file is not little-endian float32", nil)
	}
	if npyFortranRe.MatchString(header) {
		return nil, domain.ValidationError("fortran-order vector files are not supported", nil)
	}

	m := npyShapeRe.FindStringSubmatch(header)
	if m == nil {
		return nil, domain.ValidationError("vector file shape is not a 2-D matrix", nil)
	}
	numRows, _ := strconv.Atoi(m[1])
	dim, _ := strconv.Atoi(m[2])

	body := data[headerEnd:]
	if len(body) != numRows*dim*4 {
		return nil, domain.ValidationError(fmt.Sprintf("vector file body has %d bytes, want %d", len(body), numRows*dim*4), nil)
	}

	rows := make([][]float32, numRows)
	offset := 0
	for i := range rows {
		row := make([]float32, dim)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(body[offset:]))
			offset += 4
		}
		rows[i] = row
	}

	return rows, nil
}
