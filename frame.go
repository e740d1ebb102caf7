package spiboot

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Complement returns the bitwise complement of b.
func Complement(b byte) byte {
	return b ^ 0xFF
}

// XORChecksum returns the running XOR of data, continuing from seed.
func XORChecksum(seed byte, data []byte) byte {
	for _, b := range data {
		seed ^= b
	}
	return seed
}

// NewCommandFrame returns the frame that opens a command: start of frame,
// command code and its complement.
func NewCommandFrame(cmd byte) []byte {
	return []byte{StartOfFrame, cmd, Complement(cmd)}
}

// NewAddressFrame returns the big-endian address followed by its XOR checksum.
func NewAddressFrame(address uint32) []byte {
	f := make([]byte, 5)
	binary.BigEndian.PutUint32(f, address)
	f[4] = XORChecksum(0, f[:4])
	return f
}

// NewSizeFrame returns size-1 and its complement. Legal sizes are 1 to MaxFrameSize.
func NewSizeFrame(size int) ([]byte, error) {
	if size < 1 || size > MaxFrameSize {
		return nil, errors.Wrapf(ErrBadParam, "size %d out of range 1-%d", size, MaxFrameSize)
	}
	n := byte(size - 1)
	return []byte{n, Complement(n)}, nil
}

// NewWriteMemoryFrame returns the data frame of the Write Memory command:
// length byte, payload padded with 0xFF to an even length, XOR checksum.
// The length byte is len(data)-1, or len(data) when a pad byte was added.
func NewWriteMemoryFrame(data []byte) ([]byte, error) {
	size := len(data)
	if size < 1 || size > MaxFrameSize {
		return nil, errors.Wrapf(ErrBadParam, "size %d out of range 1-%d", size, MaxFrameSize)
	}
	padded := size + size%2
	f := make([]byte, padded+2)
	f[0] = byte(padded - 1)
	copy(f[1:], data)
	if padded != size {
		f[padded] = 0xFF
	}
	f[padded+1] = XORChecksum(0, f[:padded+1])
	return f, nil
}

// NewEraseHeaderFrame returns the first data frame of the Erase command: the
// 16-bit erase code (pages-1 or a special code) and its XOR checksum.
func NewEraseHeaderFrame(code uint16) []byte {
	f := make([]byte, 3)
	binary.BigEndian.PutUint16(f, code)
	f[2] = XORChecksum(0, f[:2])
	return f
}

// IsSpecialErase reports whether code selects a mass or bank erase.
func IsSpecialErase(code uint16) bool {
	return code&eraseSpecials == eraseSpecials
}

// NewPageListChunks returns the big-endian page numbers start..start+count-1
// split into frames of at most MaxFrameSize bytes, together with the XOR
// checksum over all of them.
func NewPageListChunks(start, count uint32) ([][]byte, byte) {
	var (
		chunks   [][]byte
		checksum byte
	)
	const perChunk = MaxFrameSize / 2
	for first := start; first < start+count; first += perChunk {
		n := start + count - first
		if n > perChunk {
			n = perChunk
		}
		chunk := make([]byte, 2*n)
		for i := uint32(0); i < n; i++ {
			binary.BigEndian.PutUint16(chunk[2*i:], uint16(first+i))
		}
		checksum = XORChecksum(checksum, chunk)
		chunks = append(chunks, chunk)
	}
	return chunks, checksum
}

// NewWriteProtectFrames returns the two data frames of the Write Protect
// command: the page count pair and the start/end page pair, each checksummed.
func NewWriteProtectFrames(startPage, pageNum uint32) ([]byte, []byte) {
	n := byte(pageNum - 1)
	count := []byte{n, Complement(n), 0}
	count[2] = XORChecksum(0, count[:2])
	pages := []byte{byte(startPage), byte(startPage + pageNum - 1), 0}
	pages[2] = XORChecksum(0, pages[:2])
	return count, pages
}
