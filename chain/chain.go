// Package chain implements the ordered sequence of sealed blocks plus the
// pending-payload queue awaiting sealing.
package chain

import (
	"fmt"
	"strings"

	"github.com/wooffie/powchain/block"
)

// Chain is an ordered sequence of sealed Blocks plus a FIFO of Blocks
// awaiting promotion to tail.
//
// Sealed is true when Blocks is empty, or when its last element has a valid
// proof-of-work; it is false when the last element is a candidate whose
// nonce has not yet been found. Exactly one Node mutates a Chain, so no
// locking is needed — see spec §9 ("single mutable owner").
type Chain struct {
	Blocks []block.Block `json:"blocks"`
	Sealed bool          `json:"status"`
	Queue  []block.Block `json:"queue"`
}

// New returns an empty, sealed Chain with no pending work.
func New() *Chain {
	return &Chain{Sealed: true}
}

// Clone returns a deep copy, safe for handing to another owner (e.g. when
// answering a ChainRequest or replacing a local chain wholesale).
func (c *Chain) Clone() *Chain {
	out := &Chain{
		Sealed: c.Sealed,
		Blocks: make([]block.Block, len(c.Blocks)),
		Queue:  make([]block.Block, len(c.Queue)),
	}
	copy(out.Blocks, c.Blocks)
	copy(out.Queue, c.Queue)
	return out
}

// AddQueue appends block to the pending queue, assigning its ID as
// len(Blocks)+len(Queue) — a stable, user-visible pre-index that is
// rewritten once the block is actually promoted. No validation is
// performed; FIFO order is preserved across interleaved calls.
func (c *Chain) AddQueue(b block.Block) {
	b.ID = uint64(len(c.Blocks) + len(c.Queue))
	c.Queue = append(c.Queue, b)
}

// TryAdd promotes the head of the queue into the tail of the chain: it pops
// the front of Queue, sets its Prev to the current tail's hash (or the
// all-zero hash for a genesis block), assigns its ID as len(Blocks), and
// appends it to Blocks. It returns false and does nothing if the chain is
// unsealed or the queue is empty.
//
// TryAdd never sets Sealed itself — a true return means an unsealed
// candidate now occupies the tail, and the caller (Node) must flip Sealed
// to false and dispatch the candidate to the miner.
func (c *Chain) TryAdd() bool {
	if !c.Sealed || len(c.Queue) == 0 {
		return false
	}

	b := c.Queue[0]
	c.Queue = c.Queue[1:]

	var prev block.Hash
	if len(c.Blocks) > 0 {
		prev = c.Blocks[len(c.Blocks)-1].Hash
	}
	b.Prev = prev
	b.ID = uint64(len(c.Blocks))
	c.Blocks = append(c.Blocks, b)
	return true
}

// HaveErrors returns the index of the first block violating chain
// integrity, or -1 if the chain is valid.
//
// When Sealed is false the last block — a PoW candidate — is excluded from
// hash validation, since it has no valid hash yet by definition.
func (c *Chain) HaveErrors() int {
	n := len(c.Blocks)
	if n == 0 {
		return -1
	}
	if !c.Sealed {
		n--
	}

	bad := -1
	for i := 0; i < n; i++ {
		b := c.Blocks[i]
		if b.ID != uint64(i) || !b.ValidateHash() {
			bad = i
			break
		}
	}
	limit := n
	if bad != -1 {
		limit = bad
	}
	for i := 1; i < limit; i++ {
		if c.Blocks[i].Prev != c.Blocks[i-1].Hash {
			return i
		}
	}
	return bad
}

// Tail returns the last block in the chain and true, or the zero Block and
// false if the chain is empty.
func (c *Chain) Tail() (block.Block, bool) {
	if len(c.Blocks) == 0 {
		return block.Block{}, false
	}
	return c.Blocks[len(c.Blocks)-1], true
}

// Equals reports whether two chains hold the same sealed status and the
// same sequence of blocks; the pending queue is not compared, matching the
// definition used by the reconciliation scenarios in spec §8.
func (c *Chain) Equals(other *Chain) bool {
	if c.Sealed != other.Sealed || len(c.Blocks) != len(other.Blocks) {
		return false
	}
	for i := range c.Blocks {
		if !c.Blocks[i].Equals(other.Blocks[i]) {
			return false
		}
	}
	return true
}

// String renders the chain's status, sealed blocks, and pending queue for
// logging and debugging.
func (c *Chain) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "sealed: %v\n", c.Sealed)
	for _, b := range c.Blocks {
		fmt.Fprintf(&sb, "%s\n", b)
	}
	for _, b := range c.Queue {
		fmt.Fprintf(&sb, "#-%d %q\n", b.ID, b.Data)
	}
	return sb.String()
}
