// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decode

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hedgeledger/chainindexer/internal/store"
)

// entry pairs the topic0 a DecoderKey decodes with the constructor
// that produces its Decoder.
type entry struct {
	topic0      common.Hash
	constructor func() Decoder
}

// keyedDecoders maps every §4.5 decoder's canonical key to how it is
// registered. "erc20_transfer" is intentionally absent: it is bound
// once as a wildcard by RegisterAll, not per subscription.
var keyedDecoders = map[string]entry{
	"cjewel_mint_burn":  {ERC20TransferTopic0, func() Decoder { return DecodeCJewelMintOrBurn }},
	"mg_v1_deposit":     {StakeDepositTopic0, NewMasterGardenerV1Deposit},
	"mg_v1_withdraw":    {StakeWithdrawTopic0, NewMasterGardenerV1Withdraw},
	"mg_v1_reward":      {StakeRewardTopic0, NewMasterGardenerV1Reward},
	"mg_v2_deposit":     {StakeDepositTopic0, NewMasterGardenerV2Deposit},
	"mg_v2_withdraw":    {StakeWithdrawTopic0, NewMasterGardenerV2Withdraw},
	"mg_v2_reward":      {StakeRewardTopic0, NewMasterGardenerV2Reward},
	"quest_reward_mint": {QuestRewardMintTopic0, func() Decoder { return DecodeQuestRewardMint }},
	"pve_activity":      {PvEActivityTopic0, func() Decoder { return DecodePvEActivity }},
	"pve_loot":          {PvELootTopic0, func() Decoder { return DecodePvELoot }},
	"bridge_in":         {BridgeInTopic0, NewBridgeInDecoder},
	"bridge_out":        {BridgeOutTopic0, NewBridgeOutDecoder},
}

// RegisterAll builds a Registry from a chain's configured contract
// subscriptions (§4.5, §3): the ERC-20 Transfer decoder is always
// bound as a wildcard fallback, then every subscription's DecoderKey
// is resolved to its address-specific decoder. Returns an error
// listing the first unrecognized DecoderKey encountered, so a typo in
// configuration fails loudly at startup rather than silently
// dropping events.
func RegisterAll(registry *Registry, subs []store.ContractSubscription) error {
	registry.Register(common.Address{}, ERC20TransferTopic0, DecodeERC20Transfer)

	for _, sub := range subs {
		if !sub.Enabled {
			continue
		}
		e, ok := keyedDecoders[sub.DecoderKey]
		if !ok {
			return fmt.Errorf("chain %d contract %s: unrecognized decoder key %q",
				sub.ChainID, sub.Address.Hex(), sub.DecoderKey)
		}
		registry.Register(sub.Address, e.topic0, e.constructor())
	}
	return nil
}
