package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlob_RoundTrip(t *testing.T) {
	blocks := []Block{
		{Name: "INFO", Data: []byte{1, 2, 3, 4}},
		{Name: "DATA", Data: []byte("payload")},
		{Name: "EMPTY", Data: nil},
	}

	blob, err := DecodeBlob(EncodeBlob(7, blocks))
	require.NoError(t, err)

	assert.Equal(t, 7, blob.Version)
	require.Len(t, blob.Blocks, 3)
	data, ok := blob.Block("DATA")
	require.True(t, ok)
	assert.Equal(t, "payload", string(data))
	empty, ok := blob.Block("EMPTY")
	assert.True(t, ok)
	assert.Empty(t, empty)
	_, ok = blob.Block("MISSING")
	assert.False(t, ok)
}

func TestBlob_Layout(t *testing.T) {
	data := EncodeBlob(1, []Block{{Name: "AB", Data: []byte{0xff}}})

	want := []byte{
		'A', 'F', 'R', 'C',
		1, 0, 0, 0, // version
		1, 0, 0, 0, // block count
		2, 'A', 'B',
		1, 0, 0, 0,
		0xff,
	}
	assert.Equal(t, want, data)
}

func TestDecodeBlob_Malformed(t *testing.T) {
	valid := EncodeBlob(1, []Block{{Name: "DATA", Data: []byte("abc")}})

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("NOPE"), valid[4:]...)},
		{"truncated header", valid[:6]},
		{"truncated payload", valid[:len(valid)-1]},
		{"trailing bytes", append(append([]byte{}, valid...), 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBlob(tt.data)
			assert.True(t, errors.Is(err, ErrInvalidBlob), "got %v", err)
		})
	}
}
