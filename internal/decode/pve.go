// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decode

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// PvE activity/loot topic0s (§4.5: "PvE activity and loot events").
var (
	PvEActivityTopic0 = crypto.Keccak256Hash([]byte("PvEActivityCompleted(address,uint256,uint256,bool)"))
	PvELootTopic0     = crypto.Keccak256Hash([]byte("PvELootDropped(address,uint256,address,uint256)"))
)

// PvEActivityFields records a completed PvE run.
type PvEActivityFields struct {
	Player  common.Address `json:"player"`
	HeroID  string         `json:"heroId"`
	Outcome string         `json:"outcome"` // "success" or "failure"
}

// DecodePvEActivity reads heroId from the indexed topic and
// (player, activityId, success) from the data section; activityId is
// not currently surfaced downstream so only the boolean outcome is
// normalized.
func DecodePvEActivity(log types.Log) (Record, error) {
	if err := requireTopics(log, 2); err != nil {
		return Record{}, err
	}
	if len(log.Data) < 96 {
		return Record{}, errShortData(log, "PvEActivityCompleted", 96)
	}
	heroID := new(big.Int).SetBytes(log.Topics[1].Bytes())
	success := log.Data[95] != 0

	outcome := "failure"
	if success {
		outcome = "success"
	}
	fields := PvEActivityFields{
		Player:  common.BytesToAddress(log.Data[:32]),
		HeroID:  heroID.String(),
		Outcome: outcome,
	}
	return marshalFields(KindPvEActivity, "pve_activity_v1", fields)
}

// PvELootFields records a single loot drop resulting from PvE play.
type PvELootFields struct {
	Player common.Address `json:"player"`
	HeroID string         `json:"heroId"`
	Item   common.Address `json:"item"`
	Amount string         `json:"amount"`
}

// DecodePvELoot reads heroId from the indexed topic and (player,
// item, amount) from the data section.
func DecodePvELoot(log types.Log) (Record, error) {
	if err := requireTopics(log, 2); err != nil {
		return Record{}, err
	}
	if len(log.Data) < 96 {
		return Record{}, errShortData(log, "PvELootDropped", 96)
	}
	heroID := new(big.Int).SetBytes(log.Topics[1].Bytes())
	item := common.BytesToAddress(log.Data[32:64])
	amount := new(big.Int).SetBytes(log.Data[64:96])

	fields := PvELootFields{
		Player: common.BytesToAddress(log.Data[:32]),
		HeroID: heroID.String(),
		Item:   item,
		Amount: amount.String(),
	}
	return marshalFields(KindPvELoot, "pve_loot_v1", fields)
}
