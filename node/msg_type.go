package node

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gitzhang10/pohchain/chain"
	"github.com/gitzhang10/pohchain/mempool"
	"github.com/gitzhang10/pohchain/poh"
	"github.com/gitzhang10/pohchain/stake"
)

// Kind tags the payload of a frame.
type Kind string

const (
	HistoryEntriesKind        Kind = "HistoryEntries"
	RetransmissionRequestKind Kind = "RetransmissionRequest"
	BlockProposalKind         Kind = "BlockProposal"
	ConsensusVoteKind         Kind = "ConsensusVote"
	RegisterValidatorKind     Kind = "RegisterValidator"
	StakeTokensKind           Kind = "StakeTokens"
	TransactionKind           Kind = "Transaction"
	GossipMessageKind         Kind = "GossipMessage"
)

var ErrUnknownKind = errors.New("unknown message kind")

// Message is one of the protocol messages below. The set is closed.
type Message interface {
	Kind() Kind
	isMessage()
}

// HistoryEntries carries history entries starting at index Start of the
// sender's history.
type HistoryEntries struct {
	Start   uint64             `json:"start"`
	Entries []poh.HistoryEntry `json:"entries"`
}

// RetransmissionRequest asks for the sender's history from Index to its end.
type RetransmissionRequest struct {
	Index uint64 `json:"index"`
}

type BlockProposal struct {
	Block chain.Block `json:"block"`
}

type ConsensusVote struct {
	Block chain.Block `json:"block"`
	Vote  bool        `json:"vote"`
}

type RegisterValidator struct {
	Validator stake.Validator `json:"validator"`
}

type StakeTokens struct {
	ValidatorID string `json:"validator_id"`
	Amount      uint64 `json:"amount"`
}

type TransactionMsg struct {
	Tx mempool.Transaction `json:"tx"`
}

// GossipMessage is free-form text. It is counted and otherwise ignored.
type GossipMessage struct {
	Text string `json:"text"`
}

func (HistoryEntries) Kind() Kind        { return HistoryEntriesKind }
func (RetransmissionRequest) Kind() Kind { return RetransmissionRequestKind }
func (BlockProposal) Kind() Kind         { return BlockProposalKind }
func (ConsensusVote) Kind() Kind         { return ConsensusVoteKind }
func (RegisterValidator) Kind() Kind     { return RegisterValidatorKind }
func (StakeTokens) Kind() Kind           { return StakeTokensKind }
func (TransactionMsg) Kind() Kind        { return TransactionKind }
func (GossipMessage) Kind() Kind         { return GossipMessageKind }

func (HistoryEntries) isMessage()        {}
func (RetransmissionRequest) isMessage() {}
func (BlockProposal) isMessage()         {}
func (ConsensusVote) isMessage()         {}
func (RegisterValidator) isMessage()     {}
func (StakeTokens) isMessage()           {}
func (TransactionMsg) isMessage()        {}
func (GossipMessage) isMessage()         {}

type envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// encodeMessage returns the frame payload of msg.
func encodeMessage(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: msg.Kind(), Payload: payload})
}

// decodeMessage parses a frame payload produced by encodeMessage.
func decodeMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case HistoryEntriesKind:
		return decodePayload[HistoryEntries](env)
	case RetransmissionRequestKind:
		return decodePayload[RetransmissionRequest](env)
	case BlockProposalKind:
		return decodePayload[BlockProposal](env)
	case ConsensusVoteKind:
		return decodePayload[ConsensusVote](env)
	case RegisterValidatorKind:
		return decodePayload[RegisterValidator](env)
	case StakeTokensKind:
		return decodePayload[StakeTokens](env)
	case TransactionKind:
		return decodePayload[TransactionMsg](env)
	case GossipMessageKind:
		return decodePayload[GossipMessage](env)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
}

func decodePayload[T Message](env envelope) (Message, error) {
	var m T
	if err := json.Unmarshal(env.Payload, &m); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	return m, nil
}
