// Package block implements the chain's smallest unit: an immutable-once-sealed
// record with an integer index, an opaque payload, a link to its predecessor,
// and a proof-of-work hash.
package block

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// HashSize is the length in bytes of a Block's hash and previous-link fields.
const HashSize = 32

// Hash is a 32-byte SHA-256 digest.
type Hash [HashSize]byte

// String renders the hash as lowercase hex, with no "0x" prefix — the form
// difficulty-suffix matching operates on.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Less reports whether h is numerically smaller than other, treating both as
// big-endian 256-bit integers. Used to tie-break two competing proofs of work
// for the same slot; any total order shared by all peers would do, but every
// peer must agree on the same one.
func (h Hash) Less(other Hash) bool {
	a := new(uint256.Int).SetBytes(h[:])
	b := new(uint256.Int).SetBytes(other[:])
	return a.Lt(b)
}

// Block is a position in the chain carrying an opaque payload.
//
// A freshly constructed Block has Hash and Prev all-zero and Nonce zero. It
// is mutated by queue admission (ID rewrite), promotion (Prev rewrite),
// mining (Nonce and Hash), and conflict resolution (Hash and Nonce replaced
// by a strictly-better peer hash). Once superseded by a later tail, a Block
// is never mutated again.
type Block struct {
	ID    uint64 `json:"id"`
	Data  string `json:"data"`
	Hash  Hash   `json:"hash"`
	Prev  Hash   `json:"prev"`
	Nonce uint64 `json:"nonce"`
}

// New constructs a Block with the given id and payload; Hash, Prev and Nonce
// start zeroed.
func New(id uint64, data string) Block {
	return Block{ID: id, Data: data}
}

// CalcHash computes the block's canonical SHA-256 digest: the big-endian
// 8-byte ID, the raw payload bytes, the 32-byte Prev, and the big-endian
// 8-byte Nonce, concatenated in that order. This layout is the wire contract
// peers must agree on — see spec §6.
func (b Block) CalcHash() Hash {
	var idBuf, nonceBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], b.ID)
	binary.BigEndian.PutUint64(nonceBuf[:], b.Nonce)

	h := sha256.New()
	h.Write(idBuf[:])
	h.Write([]byte(b.Data))
	h.Write(b.Prev[:])
	h.Write(nonceBuf[:])

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// UpdateHash recomputes and stores the block's hash.
func (b *Block) UpdateHash() {
	b.Hash = b.CalcHash()
}

// ValidateHash reports whether the stored hash matches the recomputed one.
func (b Block) ValidateHash() bool {
	return b.Hash == b.CalcHash()
}

// SatisfiesDifficulty reports whether the block's hex-encoded hash ends with
// suffix. An empty suffix is satisfied by every block.
func (b Block) SatisfiesDifficulty(suffix string) bool {
	return strings.HasSuffix(b.Hash.String(), suffix)
}

// Equals is full structural equality over every field.
func (b Block) Equals(other Block) bool {
	return b.ID == other.ID &&
		b.Data == other.Data &&
		b.Hash == other.Hash &&
		b.Prev == other.Prev &&
		b.Nonce == other.Nonce
}

// PreEquals reports whether b and other occupy the same slot with the same
// payload and predecessor — (ID, Data, Prev) — regardless of Nonce or Hash.
// Two blocks that PreEqual but differ in Hash/Nonce are competing proofs of
// work for the same position.
func (b Block) PreEquals(other Block) bool {
	return b.ID == other.ID && b.Data == other.Data && b.Prev == other.Prev
}

// String renders the block the way a node's logs or a chain dump would.
func (b Block) String() string {
	return fmt.Sprintf("#%d hash: %s, previous: %s, data %q, nonce %d",
		b.ID, b.Hash, b.Prev, b.Data, b.Nonce)
}
