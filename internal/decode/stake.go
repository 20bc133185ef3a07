// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decode

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hedgeledger/chainindexer/internal/store"
)

// Master-Gardener Deposit/Withdraw/RewardPaid topic0s. Both contract
// versions emit the same event shapes; the version tag lets C3/C4
// sum V1+V2 stake for the same underlying pool per §4.8.
var (
	StakeDepositTopic0  = crypto.Keccak256Hash([]byte("Deposit(address,uint256,uint256)"))
	StakeWithdrawTopic0 = crypto.Keccak256Hash([]byte("Withdraw(address,uint256,uint256)"))
	StakeRewardTopic0   = crypto.Keccak256Hash([]byte("RewardPaid(address,uint256,uint256)"))
)

// StakeEventFields is the normalized Deposit/Withdraw/Reward payload,
// shared across both Master-Gardener versions with a Version tag.
type StakeEventFields struct {
	Version store.PoolVersion `json:"version"`
	User    common.Address    `json:"user"`
	PoolID  uint32            `json:"poolId"`
	Amount  string            `json:"amount"`
}

func decodeStakeEvent(version store.PoolVersion, kind Kind, decoderKey string) Decoder {
	return func(log types.Log) (Record, error) {
		if err := requireTopics(log, 2); err != nil {
			return Record{}, err
		}
		if len(log.Data) < 64 {
			return Record{}, errShortData(log, string(kind), 64)
		}
		poolID := new(big.Int).SetBytes(log.Data[:32])
		amount := new(big.Int).SetBytes(log.Data[32:64])
		if !poolID.IsUint64() || poolID.Uint64() > 0xffffffff {
			return Record{}, fmt.Errorf("decode %s: pool id %s out of uint32 range", kind, poolID)
		}
		fields := StakeEventFields{
			Version: version,
			User:    topicAddress(log.Topics[1]),
			PoolID:  uint32(poolID.Uint64()),
			Amount:  amount.String(),
		}
		return marshalFields(kind, decoderKey, fields)
	}
}

// NewMasterGardenerV1Deposit, ... construct the six Master-Gardener
// decoders (Deposit/Withdraw/Reward × V1/V2) for registration against
// each chain's configured contract address.
func NewMasterGardenerV1Deposit() Decoder  { return decodeStakeEvent(store.PoolVersionV1, KindStakeDeposit, "mg_v1_deposit") }
func NewMasterGardenerV1Withdraw() Decoder { return decodeStakeEvent(store.PoolVersionV1, KindStakeWithdraw, "mg_v1_withdraw") }
func NewMasterGardenerV1Reward() Decoder   { return decodeStakeEvent(store.PoolVersionV1, KindStakeReward, "mg_v1_reward") }
func NewMasterGardenerV2Deposit() Decoder  { return decodeStakeEvent(store.PoolVersionV2, KindStakeDeposit, "mg_v2_deposit") }
func NewMasterGardenerV2Withdraw() Decoder { return decodeStakeEvent(store.PoolVersionV2, KindStakeWithdraw, "mg_v2_withdraw") }
func NewMasterGardenerV2Reward() Decoder   { return decodeStakeEvent(store.PoolVersionV2, KindStakeReward, "mg_v2_reward") }
