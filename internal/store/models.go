// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PoolVersion distinguishes Master Gardener V1 from V2 staking contracts;
// both versions' staked LP for the same underlying pair are summed per
// §4.8 before computing a user's TVL share.
type PoolVersion string

const (
	PoolVersionV1 PoolVersion = "V1"
	PoolVersionV2 PoolVersion = "V2"
)

// PriceSourceTag is the provenance tag recorded alongside every USD
// valuation, per §4.7.
type PriceSourceTag string

const (
	PriceSourceDefiLlama  PriceSourceTag = "DEFILLAMA"
	PriceSourceCoingecko  PriceSourceTag = "COINGECKO"
	PriceSourceDexDerived PriceSourceTag = "DEX_DERIVED"
	PriceSourceDeprecated PriceSourceTag = "DEPRECATED"
	PriceSourceLegacy     PriceSourceTag = "LEGACY"
	PriceSourceUnvalued   PriceSourceTag = "UNVALUED"
)

// PaymentRequestStatus is the payment state machine's current state
// (§4.6).
type PaymentRequestStatus string

const (
	PaymentStatusPending  PaymentRequestStatus = "PENDING"
	PaymentStatusMatched  PaymentRequestStatus = "MATCHED"
	PaymentStatusExpired  PaymentRequestStatus = "EXPIRED"
	PaymentStatusConsumed PaymentRequestStatus = "CONSUMED"
	PaymentStatusFailed   PaymentRequestStatus = "FAILED"
)

// PaymentRequestKind distinguishes the two request flows the matcher
// serves.
type PaymentRequestKind string

const (
	PaymentKindDeposit        PaymentRequestKind = "DEPOSIT"
	PaymentKindPremiumService PaymentRequestKind = "PREMIUM_SERVICE"
)

// MatchStrategy records which of §4.6 step 3's strategies produced a
// match.
type MatchStrategy string

const (
	StrategyUniqueExact      MatchStrategy = "UNIQUE_EXACT"
	StrategyRequestedExact   MatchStrategy = "REQUESTED_EXACT"
	StrategyUniqueTolerance  MatchStrategy = "UNIQUE_TOLERANCE"
	StrategyWalletAmount     MatchStrategy = "WALLET_AMOUNT"
)

// BridgeDirection is IN for funds arriving on this chain, OUT for funds
// leaving it.
type BridgeDirection string

const (
	BridgeDirectionIn  BridgeDirection = "IN"
	BridgeDirectionOut BridgeDirection = "OUT"
)

// ChainDescriptor is the static per-chain configuration row (§3).
type ChainDescriptor struct {
	ChainID             uint64
	Name                string
	RPCEndpoints        []string
	NativeDecimals      uint8
	AvgBlockTimeSeconds float64
	ConfirmationDepth   uint64
}

// ContractSubscription is one (chain, address, decoder) indexing target
// (§3). Unique on (ChainID, Address, DecoderKey).
type ContractSubscription struct {
	ChainID    uint64
	Address    common.Address
	StartBlock uint64
	Topics     []common.Hash
	DecoderKey string
	Enabled    bool
}

// Checkpoint is the durable per-shard cursor described in §3/§4.2.
type Checkpoint struct {
	ChainID            uint64
	ContractAddress    common.Address
	ShardKey           string
	LastProcessedBlock uint64
	UpdatedAt          time.Time
}

// RawEvent is the exactly-once ingested, immutable event row. The
// decoded payload varies by decoder key; Payload carries the
// decoder-specific fields as a JSON column (§9's tagged-variant
// treatment of what the source kept as ad-hoc JSON blobs).
type RawEvent struct {
	ChainID         uint64
	BlockNumber     uint64
	BlockTimestamp  time.Time
	TxHash          common.Hash
	LogIndex        uint
	ContractAddress common.Address
	Topic0          common.Hash
	DecoderKey      string
	Payload         []byte // JSON-encoded decode.Record
	IngestedAt      time.Time
}

// Stake is the derived per-wallet LP position (§3), maintained only by
// the owning indexer shard for (ChainID, PoolID).
type Stake struct {
	ChainID       uint64
	PoolID        uint32
	WalletAddress common.Address
	LpAmount      *uint256.Int
	UpdatedAt     time.Time
	FirstSeenAt   time.Time
}

// PoolDescriptor is the static per-pool configuration (§3).
type PoolDescriptor struct {
	ChainID        uint64
	PoolID         uint32
	LpToken        common.Address
	Token0         common.Address
	Token1         common.Address
	MasterContract common.Address
	Version        PoolVersion
}

// LpPoolState is a periodic snapshot of on-chain reserves plus the
// prices used to value them (§3, §4.8).
type LpPoolState struct {
	ChainID       uint64
	PoolID        uint32
	AsOf          time.Time
	TotalLp       *uint256.Int
	Reserve0      *uint256.Int
	Reserve1      *uint256.Int
	Token0PriceUSD *uint256.Int // 6 fractional digits, nil if unpriced
	Token1PriceUSD *uint256.Int
}

// TokenPrice is one priced (chain, token, asOf) observation with
// provenance (§3, §4.7).
type TokenPrice struct {
	ChainID    uint64
	TokenAddr  common.Address
	AsOf       time.Time
	PriceUSD   *uint256.Int // 6 fractional digits
	Source     PriceSourceTag
	Confidence float64
}

// PaymentRequest is a pending or resolved off-chain payment request
// (§3, §4.6).
type PaymentRequest struct {
	ID             int64
	PlayerID       string
	Kind           PaymentRequestKind
	Status         PaymentRequestStatus
	FromWallet     *common.Address // nil if unbound
	ExpectedAmount *uint256.Int
	UniqueAmount   *uint256.Int
	ExpiresAt      time.Time
	CreatedAt      time.Time
	MatchedTxHash  *common.Hash
	MatchedAt      *time.Time
}

// MatchedTransfer records the on-chain transfer that resolved a
// PaymentRequest (§3, §4.6).
type MatchedTransfer struct {
	RequestID     int64
	TxHash        common.Hash
	BlockNumber   uint64
	FromAddress   common.Address
	Amount        *uint256.Int
	MatchedAt     time.Time
	MatchStrategy MatchStrategy
}

// BridgeEvent is a normalized cross-chain transfer record (§3).
type BridgeEvent struct {
	ChainID         uint64
	TxHash          common.Hash
	LogIndex        uint
	Direction       BridgeDirection
	TokenAddr       common.Address
	Amount          *uint256.Int
	Counterparty    common.Address
	CounterChainID  uint64
	UsdValueAtEvent *uint256.Int
	PricingSource   PriceSourceTag
	BlockNumber     uint64
	BlockTimestamp  time.Time
}

// WalletSnapshot is the daily operator-tracked-wallet balance capture
// (§4.9's "Daily wallet snapshot" job; the entity itself is a SPEC_FULL
// addition — §3 names the job but not its row shape).
type WalletSnapshot struct {
	ChainID        uint64
	Wallet         common.Address
	AsOf           time.Time
	NativeBalance  *uint256.Int
	ERC20Balances  []byte // JSON: map[token-address-hex]balance-decimal-string
}

// OperatorAlert is a durable record of a condition surfaced by §7's
// alerting rules (malformed-data rate, checkpoint freshness, fatal
// RPC/DB outage) so /status/indexers can list open alerts without
// relying on in-memory state surviving a restart.
type OperatorAlert struct {
	ID        int64
	Kind      string
	ChainID   uint64
	Detail    string
	RaisedAt  time.Time
	Resolved  bool
}
