// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decode

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// QuestRewardMintTopic0 is keccak256 of the quest reward mint event
// signature (§4.5: "Quest reward mint (indexed hero id, player, pool
// id, token, amount)").
var QuestRewardMintTopic0 = crypto.Keccak256Hash([]byte("QuestRewardMint(uint256,address,uint256,address,uint256)"))

// QuestRewardMintFields is the normalized quest-reward payload.
type QuestRewardMintFields struct {
	HeroID string         `json:"heroId"`
	Player common.Address `json:"player"`
	PoolID string         `json:"poolId"`
	Token  common.Address `json:"token"`
	Amount string         `json:"amount"`
}

// DecodeQuestRewardMint unpacks the three indexed topics (heroId,
// player, poolId) plus the ABI-encoded (token, amount) tail.
func DecodeQuestRewardMint(log types.Log) (Record, error) {
	if err := requireTopics(log, 4); err != nil {
		return Record{}, err
	}
	if len(log.Data) < 64 {
		return Record{}, errShortData(log, "QuestRewardMint", 64)
	}
	heroID := new(big.Int).SetBytes(log.Topics[1].Bytes())
	poolID := new(big.Int).SetBytes(log.Topics[3].Bytes())
	token := common.BytesToAddress(log.Data[:32])
	amount := new(big.Int).SetBytes(log.Data[32:64])

	fields := QuestRewardMintFields{
		HeroID: heroID.String(),
		Player: topicAddress(log.Topics[2]),
		PoolID: poolID.String(),
		Token:  token,
		Amount: amount.String(),
	}
	return marshalFields(KindQuestRewardMint, "quest_reward_mint_v1", fields)
}
