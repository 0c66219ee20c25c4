package node

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wooffie/powchain/block"
	"github.com/wooffie/powchain/chain"
	"github.com/wooffie/powchain/message"
)

// harness wires a Node, its Worker, and an outbound subscriber together and
// runs both loops under a cancellable context, mirroring how
// original_source/tests/node.rs drives the Rust Node/nonce_worker pair.
type harness struct {
	n      *Node
	in     chan message.Message
	out    chan message.Message
	sub    event.Subscription
	cancel context.CancelFunc
}

func newHarness(t *testing.T, c *chain.Chain, difficulty string) *harness {
	t.Helper()
	in := make(chan message.Message, 16)
	n := New(c, in, difficulty, 16)

	out := make(chan message.Message, 16)
	sub := n.Outbound().Subscribe(out)

	ctx, cancel := context.WithCancel(context.Background())
	go n.Worker().Run(ctx)
	go n.Run(ctx)

	h := &harness{n: n, in: in, out: out, sub: sub, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		sub.Unsubscribe()
	})
	return h
}

func (h *harness) send(msg message.Message) {
	h.in <- msg
}

func (h *harness) awaitOutbound(t *testing.T, timeout time.Duration) message.Message {
	t.Helper()
	select {
	case msg := <-h.out:
		return msg
	case <-time.After(timeout):
		t.Fatal("timed out waiting for outbound message")
		return message.Message{}
	}
}

func TestGenesisMine(t *testing.T) {
	h := newHarness(t, chain.New(), "0")

	h.send(message.NewBlockMsg(block.New(1337, "Some data")))
	msg := h.awaitOutbound(t, 5*time.Second)

	require.Equal(t, message.TagMinedBlock, msg.Tag)
	b := msg.MinedBlock
	assert.Equal(t, uint64(0), b.ID)
	assert.Equal(t, "Some data", b.Data)
	assert.Equal(t, block.Hash{}, b.Prev)
	assert.True(t, strings.HasSuffix(b.Hash.String(), "0"))
	assert.True(t, b.ValidateHash())
}

func TestSecondBlockLinksToFirst(t *testing.T) {
	h := newHarness(t, chain.New(), "0")

	h.send(message.NewBlockMsg(block.New(0, "Some data")))
	first := h.awaitOutbound(t, 5*time.Second).MinedBlock

	h.send(message.NewBlockMsg(block.New(0, "Some data")))
	second := h.awaitOutbound(t, 5*time.Second).MinedBlock

	assert.Equal(t, uint64(1), second.ID)
	assert.Equal(t, first.Hash, second.Prev)
	assert.True(t, strings.HasSuffix(second.Hash.String(), "0"))
}

func sealed(id uint64, data string, prev block.Hash) block.Block {
	b := block.New(id, data)
	b.Prev = prev
	b.UpdateHash()
	return b
}

func buildChain(n int) *chain.Chain {
	c := chain.New()
	var prev block.Hash
	for i := 0; i < n; i++ {
		b := sealed(uint64(i), "data", prev)
		c.Blocks = append(c.Blocks, b)
		prev = b.Hash
	}
	return c
}

func TestAdoptsLongerValidPeerChain(t *testing.T) {
	local := buildChain(2)
	h := newHarness(t, local, "0")

	peer := buildChain(5)
	h.send(message.ChainResponseMsg(peer))

	require.Eventually(t, func() bool {
		return len(h.n.Chain().Blocks) == 5
	}, time.Second, time.Millisecond)
	assert.True(t, h.n.Chain().Equals(peer))
}

func TestRejectsShorterPeerChain(t *testing.T) {
	local := buildChain(3)
	h := newHarness(t, local, "0")

	peer := buildChain(2)
	h.send(message.ChainResponseMsg(peer))

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.n.Chain().Blocks, 3)
}

func TestRejectsCorruptPeerChain(t *testing.T) {
	local := buildChain(3)
	h := newHarness(t, local, "0")

	peer := buildChain(5)
	peer.Blocks[2].Prev[0]++ // tamper
	h.send(message.ChainResponseMsg(peer))

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.n.Chain().Blocks, 3)
}

func TestRaceTieBreakOnSameSlot(t *testing.T) {
	local := buildChain(1)
	h := newHarness(t, local, "")
	tail := local.Blocks[0]

	// A competing, valid proof for the same slot: search nonces until the
	// recomputed hash is numerically smaller than the local tail's.
	smaller := tail
	for smaller.Nonce = tail.Nonce + 1; ; smaller.Nonce++ {
		smaller.UpdateHash()
		if smaller.Hash.Less(tail.Hash) {
			break
		}
	}

	h.send(message.MinedBlockMsg(smaller))

	require.Eventually(t, func() bool {
		got, _ := h.n.Chain().Tail()
		return got.Hash == smaller.Hash
	}, time.Second, time.Millisecond)
}

func TestPeerPreemptsOurMining(t *testing.T) {
	// Prepare the unsealed-tail state before the Node/Worker goroutines
	// start, so there is no concurrent access to chain internals.
	local := buildChain(1)
	local.AddQueue(block.New(0, "next"))
	require.True(t, local.TryAdd())
	local.Sealed = false
	tail, ok := local.Tail()
	require.True(t, ok)

	// The candidate was promoted before the Node started, so it is never
	// handed to the local Worker: only the peer's proof can seal it.
	h := newHarness(t, local, "0")

	peerBlock := tail
	for peerBlock.Nonce = 999; ; peerBlock.Nonce++ {
		peerBlock.UpdateHash()
		if peerBlock.SatisfiesDifficulty("0") {
			break
		}
	}

	h.send(message.MinedBlockMsg(peerBlock))

	require.Eventually(t, func() bool {
		got, _ := h.n.Chain().Tail()
		return h.n.Chain().Sealed && got.Hash == peerBlock.Hash
	}, time.Second, time.Millisecond)
}

func TestWorkerContractThroughNode(t *testing.T) {
	h := newHarness(t, chain.New(), "0")
	h.send(message.NewBlockMsg(block.New(0, "work")))
	msg := h.awaitOutbound(t, 5*time.Second)
	b := msg.MinedBlock
	assert.True(t, b.ValidateHash())
	assert.True(t, strings.HasSuffix(b.Hash.String(), "0"))
}
