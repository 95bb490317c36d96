// Package quickxorhash implements QuickXorHash, the content hash OneDrive
// reports for files on personal drives.
//
// Each input byte is XORed into a 160-bit circular buffer at a bit offset
// that advances by 11 for every byte. The digest is the buffer with the
// total input length XORed, little-endian, into its last 8 bytes.
//
// See https://learn.microsoft.com/en-us/onedrive/developer/code-snippets/quickxorhash
package quickxorhash

import (
	"encoding/base64"
	"encoding/binary"
	"hash"
	"io"
)

const (
	// Size is the length, in bytes, of a QuickXorHash digest.
	Size = 20

	// BlockSize is the preferred write size. The hash itself has no block
	// structure.
	BlockSize = 64

	shift       = 11
	widthInBits = Size * 8
)

type digest struct {
	state  [Size]byte
	offset int // bit offset in state where the next byte lands
	length uint64
}

// New returns a hash.Hash computing QuickXorHash.
func New() hash.Hash {
	return &digest{}
}

func (d *digest) Write(p []byte) (int, error) {
	for _, b := range p {
		idx, bit := d.offset/8, uint(d.offset%8)
		d.state[idx] ^= b << bit
		if bit != 0 {
			// The byte straddles two cells; the high bits wrap to the next one.
			d.state[(idx+1)%Size] ^= b >> (8 - bit)
		}
		d.offset += shift
		if d.offset >= widthInBits {
			d.offset -= widthInBits
		}
	}
	d.length += uint64(len(p))
	return len(p), nil
}

// Sum appends the digest to b without changing the hash state.
func (d *digest) Sum(b []byte) []byte {
	out := d.state

	var length [8]byte
	binary.LittleEndian.PutUint64(length[:], d.length)
	for i, lb := range length {
		out[Size-len(length)+i] ^= lb
	}

	return append(b, out[:]...)
}

func (d *digest) Reset() { *d = digest{} }

func (d *digest) Size() int { return Size }

func (d *digest) BlockSize() int { return BlockSize }

// Sum returns the QuickXorHash of data.
func Sum(data []byte) [Size]byte {
	var d digest
	_, _ = d.Write(data)
	var out [Size]byte
	copy(out[:], d.Sum(nil))
	return out
}

// Encode renders a digest the way Graph reports it in hashes.quickXorHash.
func Encode(sum []byte) string {
	return base64.StdEncoding.EncodeToString(sum)
}

// FromReader hashes everything r yields and returns the base64 digest and
// the number of bytes read.
func FromReader(r io.Reader) (string, int64, error) {
	h := New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return Encode(h.Sum(nil)), n, nil
}
