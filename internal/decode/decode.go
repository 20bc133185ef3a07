// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package decode implements the event decoder registry (§4.5): a map
// from (contractAddress|wildcard, topic0) to a pure, total Decoder
// function that turns a raw log into a normalized, JSON-serializable
// record. Decoders never panic on well-formed ABI-encoded data; a
// malformed log is reported through the returned error, never by
// aborting the caller.
package decode

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Kind tags which normalized shape a Record carries, the "tagged
// variant over a JSON column" treatment called for by the dynamically
// typed rows in the game's original source.
type Kind string

const (
	KindERC20Transfer   Kind = "ERC20_TRANSFER"
	KindStakeDeposit    Kind = "STAKE_DEPOSIT"
	KindStakeWithdraw   Kind = "STAKE_WITHDRAW"
	KindStakeReward     Kind = "STAKE_REWARD"
	KindCJewelMint      Kind = "CJEWEL_MINT"
	KindCJewelBurn      Kind = "CJEWEL_BURN"
	KindQuestRewardMint Kind = "QUEST_REWARD_MINT"
	KindPvEActivity     Kind = "PVE_ACTIVITY"
	KindPvELoot         Kind = "PVE_LOOT"
	KindBridgeIn        Kind = "BRIDGE_IN"
	KindBridgeOut       Kind = "BRIDGE_OUT"
	KindNativeTransfer  Kind = "NATIVE_TRANSFER"
)

// Record is a decoded, normalized log. DecoderKey identifies which
// decoder produced it (stored alongside raw_events so a future
// version of a decoder can still be told apart from an old one).
// Fields carries the decoder-specific payload as already-marshaled
// JSON, matching the raw_events.payload JSONB column.
type Record struct {
	Kind       Kind
	DecoderKey string
	Fields     json.RawMessage
}

// Decoder takes a raw log and returns a normalized Record. Decoders
// must be total: a malformed log (wrong topic count, truncated data)
// is reported as an error return, never a panic, so the indexer loop
// can log a warning and keep going per §4.3 step 6.
type Decoder func(log types.Log) (Record, error)

// marshalFields is the helper every concrete decoder uses so a JSON
// marshal failure (which should never happen for these plain structs)
// surfaces as a normal error rather than a panic.
func marshalFields(kind Kind, decoderKey string, fields interface{}) (Record, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return Record{}, fmt.Errorf("marshaling %s fields: %w", kind, err)
	}
	return Record{Kind: kind, DecoderKey: decoderKey, Fields: b}, nil
}

// requireTopics returns an error if log doesn't carry at least n
// topics (topic0 plus n-1 indexed arguments).
func requireTopics(log types.Log, n int) error {
	if len(log.Topics) < n {
		return fmt.Errorf("log at %s#%d: expected at least %d topics, got %d",
			log.TxHash.Hex(), log.Index, n, len(log.Topics))
	}
	return nil
}

func topicAddress(t common.Hash) common.Address {
	return common.BytesToAddress(t.Bytes())
}

// Unmarshal decodes a Record's Fields (or a raw_events.payload column
// read back from storage) into a concrete struct; callers that know a
// row's DecoderKey know which struct it produced.
func Unmarshal(raw json.RawMessage, out interface{}) error {
	return json.Unmarshal(raw, out)
}

// unmarshal is the package-internal alias used by this package's own
// tests, predating the exported Unmarshal added for cross-package
// consumers (internal/payment).
func unmarshal(raw json.RawMessage, out interface{}) error {
	return Unmarshal(raw, out)
}
