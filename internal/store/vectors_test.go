package store

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrixRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.npy")

	rows := [][]float32{
		{0.1, -0.5, 1.0, 0.25},
		{0.0, 0.0, 0.0, 0.0},
		{3.14, 2.71, -1.41, 0.001},
	}

	require.NoError(t, WriteMatrix(path, rows))

	got, err := ReadMatrix(path)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestMatrixEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.npy")

	require.NoError(t, WriteMatrix(path, nil))

	got, err := ReadMatrix(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteMatrixRejectsRaggedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.npy")

	err := WriteMatrix(path, [][]float32{{1, 2, 3}, {1, 2}})
	require.Error(t, err)
}

func TestMatrixFileLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.npy")

	require.NoError(t, WriteMatrix(path, [][]float32{{1, 2}, {3, 4}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	require.True(t, len(data) > 10)
	assert.Equal(t, "\x93NUMPY", string(data[:6]))
	assert.Equal(t, byte(1), data[6], "major version")
	assert.Equal(t, byte(0), data[7], "minor version")

	headerLen := int(binary.LittleEndian.Uint16(data[8:10]))
	assert.Equal(t, 0, (10+headerLen)%64, "header must pad to a 64-byte boundary")

	header := string(data[10 : 10+headerLen])
	assert.Contains(t, header, "'descr': '<f4'")
	assert.Contains(t, header, "'fortran_order': False")
	assert.Contains(t, header, "'shape': (2, 2)")
	assert.Equal(t, byte('\n'), data[10+headerLen-1], "header ends with newline")

	assert.Len(t, data[10+headerLen:], 2*2*4)
}

func TestReadMatrixRejectsGarbage(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content []byte
	}{
		{"not npy at all", []byte("hello world, definitely not npy")},
		{"truncated magic", []byte("\x93NUM")},
		{"wrong version", append([]byte("\x93NUMPY"), 9, 0, 2, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".npy")
			require.NoError(t, os.WriteFile(path, tt.content, 0o644))

			_, err := ReadMatrix(path)
			require.Error(t, err)
		})
	}
}

func TestReadMatrixRejectsTruncatedBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.npy")
	require.NoError(t, WriteMatrix(path, [][]float32{{1, 2, 3}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-4], 0o644))

	_, err = ReadMatrix(path)
	require.Error(t, err)
}
