// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package payment

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/hedgeledger/chainindexer/internal/store"
)

// maxUniqueAmountAttempts bounds the perturbation loop in
// ChooseUniqueAmount; exhausting it means an operator-visible
// configuration problem (far more concurrent pending requests of one
// kind than is plausible), not a transient condition worth retrying
// forever.
const maxUniqueAmountAttempts = 1000

// RequestPersister is the slice of Persister CreateRequest needs, kept
// separate from the transfer-matching Persister so a caller wiring up
// just request creation (e.g. the HTTP API) doesn't have to satisfy
// the whole matching interface.
type RequestPersister interface {
	UniqueAmountInUse(ctx context.Context, kind store.PaymentRequestKind, amount *uint256.Int) (bool, error)
	CreatePaymentRequest(ctx context.Context, req store.PaymentRequest) (int64, error)
}

// ChooseUniqueAmount perturbs expectedAmount's low-order wei upward
// until it is unused by any other active PENDING request of the same
// kind (§4.6 "the system perturbs the last few wei to a value unused
// by any other active PENDING request of the same kind").
func ChooseUniqueAmount(ctx context.Context, st RequestPersister, kind store.PaymentRequestKind, expectedAmount *uint256.Int) (*uint256.Int, error) {
	candidate := new(uint256.Int).Set(expectedAmount)
	one := uint256.NewInt(1)
	for attempt := 0; attempt < maxUniqueAmountAttempts; attempt++ {
		inUse, err := st.UniqueAmountInUse(ctx, kind, candidate)
		if err != nil {
			return nil, err
		}
		if !inUse {
			return candidate, nil
		}
		candidate = new(uint256.Int).Add(candidate, one)
	}
	return nil, fmt.Errorf("payment: could not find a unique amount for kind %s near %s after %d attempts",
		kind, expectedAmount.Dec(), maxUniqueAmountAttempts)
}

// CreateRequest creates a new PENDING request with a collision-free
// uniqueAmount (§4.6), returning its id.
func CreateRequest(ctx context.Context, st RequestPersister, req store.PaymentRequest) (int64, error) {
	unique, err := ChooseUniqueAmount(ctx, st, req.Kind, req.ExpectedAmount)
	if err != nil {
		return 0, err
	}
	req.UniqueAmount = unique
	return st.CreatePaymentRequest(ctx, req)
}
