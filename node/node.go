// Package node implements the chain-extension state machine and the
// conflict-resolution rules that let independent peers converge on a common
// chain: it owns a Chain and a Miner Worker, consumes inbound Messages, and
// publishes outbound Messages in reaction.
package node

import (
	"context"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/wooffie/powchain/block"
	"github.com/wooffie/powchain/chain"
	"github.com/wooffie/powchain/message"
	"github.com/wooffie/powchain/miner"
)

// Node orchestrates a Chain and a Miner Worker, reacting to inbound Messages
// from the network and publishing outbound ones in response.
//
// Node's reaction to a single inbound message runs to completion before the
// next select iteration — no interleaving — so the Chain never needs a
// lock: Node is its only mutator.
type Node struct {
	chain      *chain.Chain
	worker     *miner.Worker
	difficulty string

	inbound  <-chan message.Message
	outbound event.Feed

	log log.Logger
}

// New constructs a Node around an initial chain, an inbound message source,
// and a difficulty suffix. The caller subscribes to Outbound() to receive
// published messages and is responsible for running the Worker's Run loop
// against the same context passed to Node.Run (or a derived one) before
// calling Run, by calling Worker().
func New(c *chain.Chain, inbound <-chan message.Message, difficulty string, workerBuf int) *Node {
	return &Node{
		chain:      c,
		worker:     miner.New(workerBuf),
		difficulty: difficulty,
		inbound:    inbound,
		log:        log.New("module", "node"),
	}
}

// Worker returns the Node's Miner Worker, so the caller can start its Run
// loop alongside Node.Run.
func (n *Node) Worker() *miner.Worker { return n.worker }

// Outbound returns the feed of messages the Node publishes: ChainResponse on
// request, MinedBlock whenever the Node's own miner succeeds, and
// ChainRequest when it needs a peer's chain (empty chain, falling behind, or
// after rolling back a corrupted suffix). Transports
// subscribe with event.Feed.Subscribe.
func (n *Node) Outbound() *event.Feed { return &n.outbound }

// Chain returns the Node's current chain, for inspection (e.g. by an `ls`
// command in the interactive shell — out of this package's scope, but the
// accessor is how that collaborator would read state).
func (n *Node) Chain() *chain.Chain { return n.chain }

// Run consumes inbound messages and worker results until ctx is cancelled.
// Cancellation is the only terminal condition: a closed inbound channel is
// logged and otherwise ignored, matching the source's network-loop behavior.
func (n *Node) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-n.inbound:
			if !ok {
				n.log.Error("inbound channel closed")
				continue
			}
			n.handle(msg)

		case result := <-n.worker.Results():
			n.handleMined(result)
		}

		n.promote()
	}
}

// promote is the step that runs after every handled event: if the chain is
// sealed, try to move the head of the queue into the tail; if that
// succeeds, the chain is now unsealed and the new candidate is dispatched
// to the miner.
func (n *Node) promote() {
	if !n.chain.Sealed {
		return
	}
	if !n.chain.TryAdd() {
		return
	}
	n.chain.Sealed = false

	tail, ok := n.chain.Tail()
	if !ok {
		return // unreachable: TryAdd just appended one
	}
	n.worker.Submit(miner.Work{Candidate: tail, Difficulty: n.difficulty})
}

func (n *Node) handle(msg message.Message) {
	switch msg.Tag {
	case message.TagNewBlock:
		n.handleNewBlock(*msg.NewBlock)
	case message.TagChainRequest:
		n.handleChainRequest()
	case message.TagChainResponse:
		n.handleChainResponse(msg.Chain)
	case message.TagMinedBlock:
		n.handleMinedBlock(*msg.MinedBlock)
	default:
		n.log.Warn("dropping message with unknown tag", "tag", msg.Tag)
	}
}

// handleNewBlock admits a user/peer-proposed payload into the pending
// queue. Only Data matters: AddQueue reassigns ID, promotion reassigns Prev,
// and Hash and Nonce are overwritten when the candidate is sealed.
func (n *Node) handleNewBlock(b block.Block) {
	n.chain.AddQueue(b)
}

// handleChainRequest answers with a snapshot of the current chain.
func (n *Node) handleChainRequest() {
	n.publish(message.ChainResponseMsg(n.chain.Clone()))
	n.log.Info("served chain request")
}

// handleChainResponse adopts a peer's chain wholesale if it is valid and
// strictly longer than ours. The peer's pending queue is adopted as part of
// the swap — a decision spec §9 flags as likely wrong but observable
// behavior worth preserving rather than silently correcting.
func (n *Node) handleChainResponse(peer *chain.Chain) {
	if peer.HaveErrors() != -1 {
		n.log.Error("peer chain has errors, discarding")
		return
	}
	if len(peer.Blocks) > len(n.chain.Blocks) {
		n.chain = peer
		n.log.Warn("adopted longer chain from peer", "blocks", len(peer.Blocks))
	}
}

// handleMinedBlock processes a proof-of-work announcement.
//
// spec §9 flags the source's validation gate (hash != calc_hash() AND
// satisfies difficulty) as a likely bug, since it rejects only blocks that
// are simultaneously malformed and difficulty-satisfying — malformed blocks
// that merely fail difficulty slip through. This implementation uses the
// conservative, corrected gate: reject on EITHER a hash mismatch OR a
// difficulty failure.
func (n *Node) handleMinedBlock(b block.Block) {
	if b.Hash != b.CalcHash() || !b.SatisfiesDifficulty(n.difficulty) {
		n.log.Warn("rejecting mined block failing validation", "block", b)
		return
	}

	tail, ok := n.chain.Tail()
	if !ok {
		n.log.Info("chain is empty, requesting peer chain to bootstrap")
		n.publish(message.ChainRequestMsg())
		return
	}

	switch {
	case b.ID == tail.ID && n.chain.Sealed && b.PreEquals(tail) && b.Hash.Less(tail.Hash):
		n.chain.Blocks[len(n.chain.Blocks)-1].Hash = b.Hash
		n.chain.Blocks[len(n.chain.Blocks)-1].Nonce = b.Nonce
		n.log.Info("replaced tail with numerically smaller competing proof", "hash", b.Hash)

	case b.ID == tail.ID && !n.chain.Sealed && b.PreEquals(tail):
		n.chain.Blocks[len(n.chain.Blocks)-1].Hash = b.Hash
		n.chain.Blocks[len(n.chain.Blocks)-1].Nonce = b.Nonce
		n.chain.Sealed = true
		n.log.Info("took peer's proof of work for our candidate", "hash", b.Hash)

	case b.ID > tail.ID:
		n.log.Info("behind peer, requesting chain", "peer_id", b.ID, "our_id", tail.ID)
		n.publish(message.ChainRequestMsg())
	}

	n.repairIfCorrupt()
}

// repairIfCorrupt rolls the corrupted suffix of the chain back into the
// front of the pending queue and requests a fresh chain from peers. Payloads
// are preserved; all claimed work for the corrupted suffix is discarded.
func (n *Node) repairIfCorrupt() {
	idx := n.chain.HaveErrors()
	if idx == -1 {
		return
	}
	n.log.Warn("local chain corrupted, rolling back into queue", "from_index", idx)

	corrupted := append([]block.Block(nil), n.chain.Blocks[idx:]...)
	n.chain.Blocks = n.chain.Blocks[:idx]
	n.chain.Queue = append(corrupted, n.chain.Queue...)
	n.chain.Sealed = true

	n.publish(message.ChainRequestMsg())
}

// handleMined applies a solved nonce from the Worker to the current
// candidate tail. It only acts while the chain is unsealed, and it
// recomputes the hash as a guard against worker/state drift before
// committing.
func (n *Node) handleMined(result miner.Result) {
	if n.chain.Sealed {
		return
	}
	tail, ok := n.chain.Tail()
	if !ok {
		return // unreachable: an unsealed chain always has a candidate tail
	}

	candidate := tail
	candidate.Hash = result.Hash
	candidate.Nonce = result.Nonce
	if candidate.Hash != candidate.CalcHash() {
		n.log.Warn("discarding worker result that no longer matches candidate", "hash", result.Hash)
		return
	}

	n.chain.Blocks[len(n.chain.Blocks)-1] = candidate
	n.chain.Sealed = true
	n.log.Info("mined block", "id", candidate.ID, "hash", candidate.Hash)
	n.publish(message.MinedBlockMsg(candidate))
}

func (n *Node) publish(msg message.Message) {
	if sent := n.outbound.Send(msg); sent == 0 {
		n.log.Warn("no subscribers for outbound message", "message", msg)
	}
}
