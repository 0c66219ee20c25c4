// Package message defines the tagged-union wire protocol exchanged between
// a Node and its transport: block proposals, mined-block announcements, and
// chain-sync request/response pairs.
package message

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/wooffie/powchain/block"
	"github.com/wooffie/powchain/chain"
)

// Tag identifies which Message variant an Envelope carries.
type Tag string

const (
	TagNewBlock      Tag = "new_block"
	TagMinedBlock    Tag = "mined_block"
	TagChainRequest  Tag = "chain_request"
	TagChainResponse Tag = "chain_response"
)

// Message is the tagged union of everything that crosses the Node-Network
// boundary. Exactly one of the NewBlock/MinedBlock/Chain fields is set,
// selected by Tag; ChainRequest carries no payload.
type Message struct {
	Tag Tag

	// NewBlock carries a user/peer-proposed payload; only Data is kept by the
	// receiving Node; Hash, Prev and Nonce are ignored.
	NewBlock *block.Block

	// MinedBlock announces a sealed block with every field significant.
	MinedBlock *block.Block

	// Chain carries a full chain snapshot, present only on ChainResponse.
	Chain *chain.Chain
}

// NewBlockMsg builds a NewBlock message around the given payload.
func NewBlockMsg(b block.Block) Message {
	return Message{Tag: TagNewBlock, NewBlock: &b}
}

// MinedBlockMsg builds a MinedBlock announcement.
func MinedBlockMsg(b block.Block) Message {
	return Message{Tag: TagMinedBlock, MinedBlock: &b}
}

// ChainRequestMsg builds a bare ChainRequest.
func ChainRequestMsg() Message {
	return Message{Tag: TagChainRequest}
}

// ChainResponseMsg builds a ChainResponse carrying a chain snapshot.
func ChainResponseMsg(c *chain.Chain) Message {
	return Message{Tag: TagChainResponse, Chain: c}
}

// String renders the message for logs, mirroring the Display impl the
// original implementation carried for every variant.
func (m Message) String() string {
	switch m.Tag {
	case TagMinedBlock:
		return fmt.Sprintf("MinedBlock(%s)", m.MinedBlock)
	case TagNewBlock:
		return fmt.Sprintf("NewBlock(%s)", m.NewBlock.Data)
	case TagChainRequest:
		return "ChainRequest"
	case TagChainResponse:
		return fmt.Sprintf("ChainResponse:\n%s", m.Chain)
	default:
		return fmt.Sprintf("Message(unknown tag %q)", m.Tag)
	}
}

// envelope is the on-wire JSON shape: a tag naming the variant and a body
// carrying its payload, per spec §6.
type envelope struct {
	Tag  Tag             `json:"tag"`
	Body json.RawMessage `json:"body,omitempty"`
}

// MarshalJSON encodes the message as {"tag": ..., "body": ...}.
func (m Message) MarshalJSON() ([]byte, error) {
	env := envelope{Tag: m.Tag}

	var (
		body any
		err  error
	)
	switch m.Tag {
	case TagNewBlock:
		body = m.NewBlock
	case TagMinedBlock:
		body = m.MinedBlock
	case TagChainRequest:
		body = nil
	case TagChainResponse:
		body = m.Chain
	default:
		return nil, errors.Newf("message: cannot encode unknown tag %q", m.Tag)
	}

	if body != nil {
		env.Body, err = json.Marshal(body)
		if err != nil {
			return nil, errors.Wrapf(err, "message: encoding body for tag %q", m.Tag)
		}
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes a wire envelope back into a Message.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return errors.Wrap(err, "message: decoding envelope")
	}

	m.Tag = env.Tag
	switch env.Tag {
	case TagNewBlock:
		var b block.Block
		if err := json.Unmarshal(env.Body, &b); err != nil {
			return errors.Wrap(err, "message: decoding new_block body")
		}
		m.NewBlock = &b
	case TagMinedBlock:
		var b block.Block
		if err := json.Unmarshal(env.Body, &b); err != nil {
			return errors.Wrap(err, "message: decoding mined_block body")
		}
		m.MinedBlock = &b
	case TagChainRequest:
		// no payload
	case TagChainResponse:
		var c chain.Chain
		if err := json.Unmarshal(env.Body, &c); err != nil {
			return errors.Wrap(err, "message: decoding chain_response body")
		}
		m.Chain = &c
	default:
		return errors.Newf("message: unknown tag %q", env.Tag)
	}
	return nil
}
