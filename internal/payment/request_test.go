// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package payment

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/hedgeledger/chainindexer/internal/store"
)

type fakeRequestStore struct {
	inUse   map[string]bool
	created []store.PaymentRequest
	nextID  int64
}

func newFakeRequestStore(inUse ...string) *fakeRequestStore {
	m := make(map[string]bool, len(inUse))
	for _, s := range inUse {
		m[s] = true
	}
	return &fakeRequestStore{inUse: m}
}

func (f *fakeRequestStore) UniqueAmountInUse(_ context.Context, _ store.PaymentRequestKind, amount *uint256.Int) (bool, error) {
	return f.inUse[amount.Dec()], nil
}

func (f *fakeRequestStore) CreatePaymentRequest(_ context.Context, req store.PaymentRequest) (int64, error) {
	f.nextID++
	f.created = append(f.created, req)
	return f.nextID, nil
}

func TestChooseUniqueAmountReturnsExpectedWhenFree(t *testing.T) {
	st := newFakeRequestStore()
	got, err := ChooseUniqueAmount(context.Background(), st, store.PaymentKindDeposit, u("1000"))
	require.NoError(t, err)
	require.True(t, got.Eq(u("1000")))
}

func TestChooseUniqueAmountPerturbsOnCollision(t *testing.T) {
	st := newFakeRequestStore("1000", "1001", "1002")
	got, err := ChooseUniqueAmount(context.Background(), st, store.PaymentKindDeposit, u("1000"))
	require.NoError(t, err)
	require.True(t, got.Eq(u("1003")))
}

func TestChooseUniqueAmountGivesUpAfterMaxAttempts(t *testing.T) {
	// Every candidate in the perturbation range collides.
	_, err := ChooseUniqueAmount(context.Background(), alwaysInUseStore{}, store.PaymentKindDeposit, u("1000"))
	require.Error(t, err)
}

type alwaysInUseStore struct{}

func (alwaysInUseStore) UniqueAmountInUse(context.Context, store.PaymentRequestKind, *uint256.Int) (bool, error) {
	return true, nil
}

func (alwaysInUseStore) CreatePaymentRequest(context.Context, store.PaymentRequest) (int64, error) {
	return 0, nil
}

func TestCreateRequestAssignsUniqueAmountAndPersists(t *testing.T) {
	st := newFakeRequestStore("500")
	req := store.PaymentRequest{
		PlayerID:       "P42",
		Kind:           store.PaymentKindDeposit,
		ExpectedAmount: u("500"),
		ExpiresAt:      time.Now().Add(time.Hour),
	}
	id, err := CreateRequest(context.Background(), st, req)
	require.NoError(t, err)
	require.Equal(t, int64(1), id)
	require.Len(t, st.created, 1)
	require.True(t, st.created[0].UniqueAmount.Eq(u("501")))
}
