package flow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"deposit-widget/pkg/apperr"
	"deposit-widget/pkg/client"
	mock_client "deposit-widget/pkg/client/mock"
	"deposit-widget/pkg/flow"
	"deposit-widget/pkg/poller"
	"deposit-widget/pkg/route"
	"deposit-widget/pkg/types"
	"deposit-widget/pkg/wallet"
	mock_wallet "deposit-widget/pkg/wallet/mock"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond

	userAddress = "0xABc1230000000000000000000000000000000001"
	depositAddr = "0x1111111111111111111111111111111111111111"
)

var usdc = types.Token{
	Symbol:     "USDC",
	Blockchain: "eth",
	ChainID:    1,
	Address:    "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
	Decimals:   6,
}

type walletSource struct {
	w wallet.Capability
}

func (ws walletSource) Wallet() wallet.Capability {
	return ws.w
}

func routeResponse() *client.RouteResponse {
	return &client.RouteResponse{
		IntentID: "intent-1",
		Route: types.Route{
			TransactionRequest: &types.TxRequest{To: depositAddr, Data: "0xa9059cbb"},
			Estimate:           types.Estimate{FromAmountUSD: "10", ToAmountUSD: "9.95", ToAmountMinUSD: "9.9"},
		},
	}
}

type FlowTestSuite struct {
	suite.Suite

	backend *mock_client.MockBackend
	wallet  *mock_wallet.MockCapability
	clock   *clock.Mock
	flow    *flow.Flow

	mu       sync.Mutex
	statuses []types.TxStatus
}

func TestRunFlowTestSuite(t *testing.T) {
	suite.Run(t, new(FlowTestSuite))
}

func (s *FlowTestSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.backend = mock_client.NewMockBackend(ctrl)
	s.wallet = mock_wallet.NewMockCapability(ctrl)
	s.clock = clock.NewMock()
	s.statuses = nil

	f, err := flow.New(flow.Config{
		Destination: types.Destination{
			ChainID: 8453,
			Token:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Address: depositAddr,
		},
		DestinationSymbol: "USDC",
		Wallet:            walletSource{w: s.wallet},
		Backend:           s.backend,
		Clock:             s.clock,
	})
	s.Nil(err)
	s.flow = f

	last := types.TxIdle
	f.OnChange(func(state flow.State) {
		if state.TxStatus == last {
			return
		}
		last = state.TxStatus
		s.mu.Lock()
		s.statuses = append(s.statuses, state.TxStatus)
		s.mu.Unlock()
	})
}

func (s *FlowTestSuite) TearDownTest() {
	s.flow.Close()
}

func (s *FlowTestSuite) observed() []types.TxStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.TxStatus(nil), s.statuses...)
}

func (s *FlowTestSuite) selectAndQuote() {
	s.flow.Navigate(flow.StepSelectToken)
	s.flow.SelectToken(usdc)
	s.flow.SetSourceAddress(userAddress)
	s.flow.Navigate(flow.StepCryptoPay)
	s.flow.SetAmount("10")

	s.clock.Add(route.DefaultDebounce)
	s.Eventually(func() bool {
		q := s.flow.State().Quote
		return !q.IsLoading && (q.Quote != nil || q.Err != nil)
	}, waitFor, tick)
}

func (s *FlowTestSuite) Test_Deposit_Success() {
	s.backend.EXPECT().BuildRoute(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req client.RouteRequest) (*client.RouteResponse, error) {
			s.Equal("10000000", req.FromAmount)
			s.Equal("0xabc1230000000000000000000000000000000001", req.FromAddress)
			s.Equal(types.ChainID(8453), req.ToChain)
			return routeResponse(), nil
		},
	)
	s.wallet.EXPECT().SendTransaction(gomock.Any(), gomock.Any(), types.ChainID(1)).Return("0xHASH", nil)
	s.backend.EXPECT().SubmitReceipt(gomock.Any(), "intent-1", "0xHASH").Return(nil).AnyTimes()
	gomock.InOrder(
		s.backend.EXPECT().GetStatus(gomock.Any(), "intent-1").Return(&types.StatusResponse{ID: "intent-1", Status: types.BackendProcessing}, nil),
		s.backend.EXPECT().GetStatus(gomock.Any(), "intent-1").Return(&types.StatusResponse{ID: "intent-1", Status: types.BackendProcessing}, nil),
		s.backend.EXPECT().GetStatus(gomock.Any(), "intent-1").Return(&types.StatusResponse{ID: "intent-1", Status: types.BackendBridging}, nil),
		s.backend.EXPECT().GetStatus(gomock.Any(), "intent-1").Return(&types.StatusResponse{ID: "intent-1", Status: types.BackendSuccess}, nil),
	)

	s.selectAndQuote()
	s.Equal("9.95", s.flow.State().Quote.Quote.EstimatedReceive)

	result, err := s.flow.Confirm(context.Background())
	s.Nil(err)
	s.Equal("0xHASH", result.TxHash)
	s.Equal(flow.StepProcessing, s.flow.State().Step)

	s.Eventually(func() bool {
		if s.flow.State().Step == flow.StepSuccess {
			return true
		}
		s.clock.Add(poller.DefaultInterval)
		return false
	}, waitFor, tick)

	state := s.flow.State()
	s.Equal(types.TxSuccess, state.TxStatus)
	s.Nil(state.Err)
	s.Equal(result, state.Result)
	s.Equal([]types.TxStatus{types.TxConfirming, types.TxProcessing, types.TxBridging, types.TxSuccess}, s.observed())
	s.False(s.flow.Poller().IsPolling)
}

func (s *FlowTestSuite) Test_Deposit_Rejected() {
	s.backend.EXPECT().BuildRoute(gomock.Any(), gomock.Any()).Return(routeResponse(), nil)
	s.wallet.EXPECT().SendTransaction(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", &wallet.RPCError{Code: wallet.CodeUserRejected, Message: "User rejected the request."})

	s.selectAndQuote()
	result, err := s.flow.Confirm(context.Background())

	s.Nil(result)
	s.Equal(apperr.KindUserRejected, apperr.KindOf(err))

	state := s.flow.State()
	s.Equal(flow.StepError, state.Step)
	s.Equal(types.TxError, state.TxStatus)
	s.Equal("Transaction cancelled.", state.Err.Message)
	s.Equal(flow.StepCryptoPay, state.Recovery)
	s.Nil(state.Result)
	s.Equal([]types.TxStatus{types.TxConfirming, types.TxError}, s.observed())
	s.False(s.flow.Poller().IsPolling)

	s.flow.Retry()
	s.Equal(flow.StepCryptoPay, s.flow.State().Step)
}

func (s *FlowTestSuite) Test_Confirm_WithoutQuote() {
	_, err := s.flow.Confirm(context.Background())

	s.ErrorIs(err, flow.ErrQuoteNotReady)
}

func (s *FlowTestSuite) Test_Confirm_WhileBusy() {
	s.flow.SetStatus(types.TxProcessing, nil)

	_, err := s.flow.Confirm(context.Background())

	s.ErrorIs(err, flow.ErrBusy)
}

func (s *FlowTestSuite) Test_QuoteError_SetsRecovery() {
	s.backend.EXPECT().BuildRoute(gomock.Any(), gomock.Any()).Return(nil, client.ErrRouteNotFound)

	s.selectAndQuote()

	state := s.flow.State()
	s.Equal(flow.StepCryptoPay, state.Step)
	s.Equal(apperr.KindRoute, state.Err.Kind)
	s.Equal(flow.StepSelectToken, state.Recovery)
}

func (s *FlowTestSuite) Test_Navigation() {
	s.flow.Back()
	s.Equal(flow.StepHome, s.flow.State().Step)

	s.flow.Navigate(flow.StepSelectToken)
	s.flow.Navigate(flow.StepSelectToken)
	s.flow.Navigate(flow.StepCryptoPay)
	s.Equal([]flow.Step{flow.StepHome, flow.StepSelectToken}, s.flow.History())

	s.flow.Back()
	s.Equal(flow.StepSelectToken, s.flow.State().Step)
	s.flow.Back()
	s.Equal(flow.StepHome, s.flow.State().Step)
	s.flow.Back()
	s.Equal(flow.StepHome, s.flow.State().Step)
	s.Empty(s.flow.History())
}

func (s *FlowTestSuite) Test_Back_ReturnsPreviousStep() {
	s.flow.Navigate(flow.StepSelectToken)
	s.flow.Navigate(flow.StepCryptoPay)
	s.flow.Navigate(flow.StepSelectToken)
	s.flow.Navigate(flow.StepCryptoPay)

	s.flow.Back()

	s.Equal(flow.StepSelectToken, s.flow.State().Step)
}

func (s *FlowTestSuite) Test_SetStatus_IsMonotonic() {
	s.flow.SetStatus(types.TxConfirming, nil)
	s.flow.SetStatus(types.TxBridging, nil)
	s.flow.SetStatus(types.TxProcessing, nil)

	s.Equal(types.TxBridging, s.flow.State().TxStatus)

	s.flow.SetStatus(types.TxSuccess, nil)
	s.flow.SetStatus(types.TxError, apperr.Timeout(""))

	state := s.flow.State()
	s.Equal(types.TxSuccess, state.TxStatus)
	s.Equal(flow.StepSuccess, state.Step)
	s.Nil(state.Err)
}

func (s *FlowTestSuite) Test_PollTimeout_RoutesToError() {
	s.flow.SetStatus(types.TxConfirming, nil)
	s.flow.SetStatus(types.TxProcessing, nil)
	s.flow.SetStatus(types.TxError, apperr.Timeout(""))

	state := s.flow.State()
	s.Equal(flow.StepError, state.Step)
	s.Equal(apperr.KindTimeout, state.Err.Kind)
	s.Equal(flow.StepHome, state.Recovery)
}

func (s *FlowTestSuite) Test_Reset() {
	s.backend.EXPECT().BuildRoute(gomock.Any(), gomock.Any()).Return(routeResponse(), nil)

	s.selectAndQuote()
	s.flow.SetStatus(types.TxError, apperr.Timeout(""))

	s.flow.Reset()

	state := s.flow.State()
	s.Equal(flow.StepHome, state.Step)
	s.Equal(types.TxIdle, state.TxStatus)
	s.Nil(state.Selection.Token)
	s.Empty(state.Selection.Amount)
	s.Equal(userAddress, state.Selection.Address)
	s.Equal(route.State{}, state.Quote)
	s.Nil(state.Err)
	s.Nil(state.Result)
	s.Empty(s.flow.History())
	s.Equal(poller.State{}, s.flow.Poller())
}

func (s *FlowTestSuite) Test_SyncWallet() {
	s.wallet.EXPECT().Address(gomock.Any()).Return(types.Address(userAddress), nil)

	err := s.flow.SyncWallet(context.Background())

	s.Nil(err)
	s.Equal(userAddress, s.flow.State().Selection.Address)
}

func (s *FlowTestSuite) Test_New_RequiresDestination() {
	_, err := flow.New(flow.Config{Wallet: walletSource{}, Backend: s.backend})

	s.NotNil(err)
}
