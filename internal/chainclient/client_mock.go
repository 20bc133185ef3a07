// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Code generated by hand in the style of mockgen for Client; kept in
// sync manually since no network access is available to run the
// generator in this environment. See go:generate directive below for
// the command that would regenerate it.

//go:generate go run go.uber.org/mock/mockgen -source=client.go -destination=client_mock.go -package=chainclient

package chainclient

import (
	"context"
	"math/big"
	"reflect"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/mock/gomock"
)

// MockClient is a mock of the Client interface.
type MockClient struct {
	ctrl     *gomock.Controller
	recorder *MockClientMockRecorder
}

// MockClientMockRecorder records expected calls on MockClient.
type MockClientMockRecorder struct {
	mock *MockClient
}

// NewMockClient returns a new mock Client.
func NewMockClient(ctrl *gomock.Controller) *MockClient {
	mock := &MockClient{ctrl: ctrl}
	mock.recorder = &MockClientMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected calls.
func (m *MockClient) EXPECT() *MockClientMockRecorder {
	return m.recorder
}

func (m *MockClient) ChainID() uint64 {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ChainID")
	return ret[0].(uint64)
}

func (mr *MockClientMockRecorder) ChainID() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ChainID", reflect.TypeOf((*MockClient)(nil).ChainID))
}

func (m *MockClient) Head(ctx context.Context) (uint64, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Head", ctx)
	return ret[0].(uint64), errOrNil(ret[1])
}

func (mr *MockClientMockRecorder) Head(ctx interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Head", reflect.TypeOf((*MockClient)(nil).Head), ctx)
}

func (m *MockClient) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetLogs", ctx, query)
	logs, _ := ret[0].([]types.Log)
	return logs, errOrNil(ret[1])
}

func (mr *MockClientMockRecorder) GetLogs(ctx, query interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetLogs", reflect.TypeOf((*MockClient)(nil).GetLogs), ctx, query)
}

func (m *MockClient) GetBlock(ctx context.Context, n uint64, withTx bool) (*types.Block, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetBlock", ctx, n, withTx)
	block, _ := ret[0].(*types.Block)
	return block, errOrNil(ret[1])
}

func (mr *MockClientMockRecorder) GetBlock(ctx, n, withTx interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetBlock", reflect.TypeOf((*MockClient)(nil).GetBlock), ctx, n, withTx)
}

func (m *MockClient) GetReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetReceipt", ctx, txHash)
	receipt, _ := ret[0].(*types.Receipt)
	return receipt, errOrNil(ret[1])
}

func (mr *MockClientMockRecorder) GetReceipt(ctx, txHash interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetReceipt", reflect.TypeOf((*MockClient)(nil).GetReceipt), ctx, txHash)
}

func (m *MockClient) Call(ctx context.Context, msg ethereum.CallMsg, atBlock *big.Int) ([]byte, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Call", ctx, msg, atBlock)
	b, _ := ret[0].([]byte)
	return b, errOrNil(ret[1])
}

func (mr *MockClientMockRecorder) Call(ctx, msg, atBlock interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Call", reflect.TypeOf((*MockClient)(nil).Call), ctx, msg, atBlock)
}

func (m *MockClient) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Balance", ctx, addr)
	b, _ := ret[0].(*big.Int)
	return b, errOrNil(ret[1])
}

func (mr *MockClientMockRecorder) Balance(ctx, addr interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Balance", reflect.TypeOf((*MockClient)(nil).Balance), ctx, addr)
}

func (m *MockClient) Close() {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Close")
}

func (mr *MockClientMockRecorder) Close() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Close", reflect.TypeOf((*MockClient)(nil).Close))
}

func errOrNil(v interface{}) error {
	if v == nil {
		return nil
	}
	return v.(error)
}
