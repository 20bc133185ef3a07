// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-bexpr"

	"github.com/hedgeledger/chainindexer/internal/scheduler"
	"github.com/hedgeledger/chainindexer/internal/store"
)

type indexerStatusResponse struct {
	Indexers []scheduler.IndexerStatus `json:"indexers"`
	Alerts   []store.OperatorAlert     `json:"alerts"`
}

// handleStatusIndexers serves GET /status/indexers (§6): the
// Scheduler's own lifecycle view of every registered indexer, plus
// any open operator alerts (checkpoint freshness, fatal outage) so a
// crashed-but-not-yet-restarted indexer's cause is visible alongside
// its state.
func (s *Server) handleStatusIndexers(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.OpenAlerts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, indexerStatusResponse{
		Indexers: s.scheduler.IndexerStatus(),
		Alerts:   alerts,
	})
}

type tvlResponse struct {
	TvlUSD  string  `json:"tvlUsd"`
	V1Share float64 `json:"v1Share"`
	V2Share float64 `json:"v2Share"`
	AsOf    string  `json:"asOf"`
	Priced  bool    `json:"priced"`
	Reason  string  `json:"reason,omitempty"`
}

// handlePoolTVL serves GET /pools/{chainId}/{poolId}/tvl (§6, §4.8).
// Scenario 6 (§8): when either side of the pool lacks a price, this
// returns {tvlUsd: "0", priced: false, reason: "missing price tokenN"}
// rather than a partial or misleading USD figure.
func (s *Server) handlePoolTVL(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	chainID, err := strconv.ParseUint(vars["chainId"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid chainId: %w", err))
		return
	}
	poolID, err := strconv.ParseUint(vars["poolId"], 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid poolId: %w", err))
		return
	}

	result, err := s.valuer.TVL(r.Context(), chainID, uint32(poolID))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	tvl := "0"
	if result.TvlUSD != nil {
		tvl = result.TvlUSD.Dec()
	}
	writeJSON(w, http.StatusOK, tvlResponse{
		TvlUSD:  tvl,
		V1Share: result.V1Share,
		V2Share: result.V2Share,
		AsOf:    result.AsOf.UTC().Format("2006-01-02T15:04:05Z"),
		Priced:  result.Priced,
		Reason:  result.Reason,
	})
}

type stakeResponse struct {
	ChainID  uint64 `json:"chainId"`
	PoolID   uint32 `json:"poolId"`
	LpAmount string `json:"lpAmount"`
}

// handleWalletStakes serves GET /wallets/{addr}/stakes (§6): every LP
// position held by a wallet across every chain and pool.
func (s *Server) handleWalletStakes(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	if !common.IsHexAddress(addr) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid wallet address %q", addr))
		return
	}

	stakes, err := s.store.StakesForWallet(r.Context(), common.HexToAddress(addr))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]stakeResponse, 0, len(stakes))
	for _, st := range stakes {
		out = append(out, stakeResponse{ChainID: st.ChainID, PoolID: st.PoolID, LpAmount: st.LpAmount.Dec()})
	}
	writeJSON(w, http.StatusOK, out)
}

type rewardResponse struct {
	ChainID     uint64                 `json:"chainId"`
	BlockNumber uint64                 `json:"blockNumber"`
	TxHash      string                 `json:"txHash"`
	Fields      map[string]interface{} `json:"fields"`
}

// handleHeroRewards serves GET /rewards/hero/{heroId}[?filter=expr]
// (§6): decoded quest-reward-mint records for a hero, optionally
// narrowed by a go-bexpr boolean expression evaluated against each
// record's decoded field map (e.g. "poolId==3").
func (s *Server) handleHeroRewards(w http.ResponseWriter, r *http.Request) {
	heroID := mux.Vars(r)["heroId"]

	events, err := s.store.RawEventsByHeroID(r.Context(), heroID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]rewardResponse, 0, len(events))
	for _, e := range events {
		var fields map[string]interface{}
		if err := json.Unmarshal(e.Payload, &fields); err != nil {
			continue
		}
		out = append(out, rewardResponse{
			ChainID: e.ChainID, BlockNumber: e.BlockNumber, TxHash: e.TxHash.Hex(), Fields: fields,
		})
	}

	if filter := r.URL.Query().Get("filter"); filter != "" {
		filtered, err := applyRewardFilter(out, filter)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		out = filtered
	}

	writeJSON(w, http.StatusOK, out)
}

// applyRewardFilter evaluates a go-bexpr expression against each
// reward's decoded field map, since quest-reward fields vary by
// decoder and aren't worth a dedicated Go struct per filterable shape.
func applyRewardFilter(rewards []rewardResponse, expr string) ([]rewardResponse, error) {
	eval, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	out := make([]rewardResponse, 0, len(rewards))
	for _, rw := range rewards {
		matched, err := eval.Evaluate(rw.Fields)
		if err != nil {
			return nil, fmt.Errorf("evaluating filter: %w", err)
		}
		if matched {
			out = append(out, rw)
		}
	}
	return out, nil
}

type paymentRequestResponse struct {
	ID             int64   `json:"id"`
	PlayerID       string  `json:"playerId"`
	Kind           string  `json:"kind"`
	Status         string  `json:"status"`
	FromWallet     *string `json:"fromWallet,omitempty"`
	ExpectedAmount string  `json:"expectedAmount"`
	UniqueAmount   string  `json:"uniqueAmount"`
	MatchedTxHash  *string `json:"matchedTxHash,omitempty"`
}

// handlePaymentRequest serves GET /payments/requests/{id} (§6).
func (s *Server) handlePaymentRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request id: %w", err))
		return
	}

	req, err := s.store.GetPaymentRequest(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if req == nil {
		writeError(w, http.StatusNotFound, errors.New("payment request not found"))
		return
	}

	resp := paymentRequestResponse{
		ID: req.ID, PlayerID: req.PlayerID, Kind: string(req.Kind), Status: string(req.Status),
		ExpectedAmount: req.ExpectedAmount.Dec(), UniqueAmount: req.UniqueAmount.Dec(),
	}
	if req.FromWallet != nil {
		hex := req.FromWallet.Hex()
		resp.FromWallet = &hex
	}
	if req.MatchedTxHash != nil {
		hex := req.MatchedTxHash.Hex()
		resp.MatchedTxHash = &hex
	}
	writeJSON(w, http.StatusOK, resp)
}
