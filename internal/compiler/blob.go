package compiler

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// blobMagic opens every compiled resource file
const blobMagic = "AFRC"

// MaxBlockNameLength is the longest block name the blob format can carry
const MaxBlockNameLength = 255

// Block is a named chunk of compiled output
type Block struct {
	Name string
	Data []byte
}

// Blob is a decoded compiled resource
type Blob struct {
	Version int
	Blocks  []Block
}

// Block returns the data of the named block
func (b *Blob) Block(name string) ([]byte, bool) {
	for _, blk := range b.Blocks {
		if blk.Name == name {
			return blk.Data, true
		}
	}
	return nil, false
}

// ErrInvalidBlob is returned when compiled data is malformed
var ErrInvalidBlob = errors.New("invalid compiled resource")

// EncodeBlob serializes blocks. Layout (little endian): magic, uint32
// version, uint32 block count, then per block uint8 name length, name,
// uint32 data length, data.
func EncodeBlob(version int, blocks []Block) []byte {
	var buf bytes.Buffer
	buf.WriteString(blobMagic)
	binary.Write(&buf, binary.LittleEndian, uint32(version))
	binary.Write(&buf, binary.LittleEndian, uint32(len(blocks)))
	for _, blk := range blocks {
		buf.WriteByte(byte(len(blk.Name)))
		buf.WriteString(blk.Name)
		binary.Write(&buf, binary.LittleEndian, uint32(len(blk.Data)))
		buf.Write(blk.Data)
	}
	return buf.Bytes()
}

// DecodeBlob parses data produced by EncodeBlob
func DecodeBlob(data []byte) (*Blob, error) {
	r := bytes.NewReader(data)

	magic := make([]byte, len(blobMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != blobMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidBlob)
	}

	var version, count uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: truncated header", ErrInvalidBlob)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: truncated header", ErrInvalidBlob)
	}

	blob := &Blob{Version: int(version)}
	for i := uint32(0); i < count; i++ {
		nameLen, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated block %d", ErrInvalidBlob, i)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, fmt.Errorf("%w: truncated block name %d", ErrInvalidBlob, i)
		}
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("%w: truncated block %s", ErrInvalidBlob, name)
		}
		if int64(size) > int64(r.Len()) {
			return nil, fmt.Errorf("%w: block %s claims %d bytes, %d remain", ErrInvalidBlob, name, size, r.Len())
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("%w: truncated block %s", ErrInvalidBlob, name)
		}
		blob.Blocks = append(blob.Blocks, Block{Name: string(name), Data: payload})
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidBlob, r.Len())
	}

	return blob, nil
}
