package submit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"deposit-widget/pkg/apperr"
	"deposit-widget/pkg/client"
	mock_client "deposit-widget/pkg/client/mock"
	"deposit-widget/pkg/submit"
	"deposit-widget/pkg/types"
	"deposit-widget/pkg/wallet"
	mock_wallet "deposit-widget/pkg/wallet/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type walletSource struct {
	w wallet.Capability
}

func (ws walletSource) Wallet() wallet.Capability {
	return ws.w
}

type recordingSink struct {
	mu       sync.Mutex
	statuses []types.TxStatus
	errs     []*apperr.Error
}

func (r *recordingSink) SetStatus(status types.TxStatus, err *apperr.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	r.errs = append(r.errs, err)
}

func (r *recordingSink) Statuses() []types.TxStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.TxStatus(nil), r.statuses...)
}

func testQuote() *types.RouteQuote {
	return &types.RouteQuote{
		IntentID:  "intent-1",
		TxRequest: &types.TxRequest{To: "0x1111111111111111111111111111111111111111", Value: "1000"},
	}
}

type SubmitterTestSuite struct {
	suite.Suite

	wallet    *mock_wallet.MockCapability
	backend   *mock_client.MockBackend
	sink      *recordingSink
	submitter *submit.Submitter
}

func TestRunSubmitterTestSuite(t *testing.T) {
	suite.Run(t, new(SubmitterTestSuite))
}

func (s *SubmitterTestSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.wallet = mock_wallet.NewMockCapability(ctrl)
	s.backend = mock_client.NewMockBackend(ctrl)
	s.sink = &recordingSink{}

	submitter, err := submit.NewSubmitter(submit.Config{
		Wallet:          walletSource{w: s.wallet},
		Backend:         s.backend,
		Sink:            s.sink,
		ReceiptRetries:  2,
		ReceiptInterval: time.Millisecond,
	})
	s.Nil(err)
	s.submitter = submitter
}

func (s *SubmitterTestSuite) Test_Submit_Success() {
	quote := testQuote()
	s.wallet.EXPECT().SendTransaction(gomock.Any(), quote.TxRequest, types.ChainID(1)).Return("0xHASH", nil)
	s.backend.EXPECT().SubmitReceipt(gomock.Any(), "intent-1", "0xHASH").Return(nil)

	result, err := s.submitter.Submit(context.Background(), quote, 1)
	s.submitter.Wait()

	s.Nil(err)
	s.Equal(&types.SubmissionResult{TxHash: "0xHASH", IntentID: "intent-1"}, result)
	s.Equal(result, s.submitter.Result())
	s.Equal([]types.TxStatus{types.TxConfirming, types.TxProcessing}, s.sink.Statuses())
}

func (s *SubmitterTestSuite) Test_Submit_UserRejected() {
	s.wallet.EXPECT().SendTransaction(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", &wallet.RPCError{Code: wallet.CodeUserRejected, Message: "User rejected the request."})

	result, err := s.submitter.Submit(context.Background(), testQuote(), 1)
	s.submitter.Wait()

	s.Nil(result)
	s.Nil(s.submitter.Result())
	s.Equal(apperr.KindUserRejected, apperr.KindOf(err))
	s.Equal("Transaction cancelled.", err.Error())
	s.Equal([]types.TxStatus{types.TxConfirming, types.TxError}, s.sink.Statuses())
	s.Equal(apperr.KindUserRejected, s.sink.errs[1].Kind)
}

func (s *SubmitterTestSuite) Test_Submit_FailureClearsPreviousResult() {
	gomock.InOrder(
		s.wallet.EXPECT().SendTransaction(gomock.Any(), gomock.Any(), gomock.Any()).Return("0xHASH", nil),
		s.wallet.EXPECT().SendTransaction(gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("insufficient funds for gas * price + value")),
	)
	s.backend.EXPECT().SubmitReceipt(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.submitter.Submit(context.Background(), testQuote(), 1)
	s.Nil(err)
	_, err = s.submitter.Submit(context.Background(), testQuote(), 1)
	s.submitter.Wait()

	s.Equal(apperr.KindInsufficientFunds, apperr.KindOf(err))
	s.Nil(s.submitter.Result())
}

func (s *SubmitterTestSuite) Test_Submit_EmptyHashIsAFailure() {
	s.wallet.EXPECT().SendTransaction(gomock.Any(), gomock.Any(), gomock.Any()).Return("", nil)

	_, err := s.submitter.Submit(context.Background(), testQuote(), 1)

	s.NotNil(err)
	s.Nil(s.submitter.Result())
	s.Equal([]types.TxStatus{types.TxConfirming, types.TxError}, s.sink.Statuses())
}

func (s *SubmitterTestSuite) Test_Submit_InvalidQuote() {
	for _, quote := range []*types.RouteQuote{nil, {IntentID: "x"}, {TxRequest: &types.TxRequest{}}} {
		_, err := s.submitter.Submit(context.Background(), quote, 1)

		s.ErrorIs(err, submit.ErrInvalidQuote)
	}
	s.Empty(s.sink.Statuses())
}

func (s *SubmitterTestSuite) Test_Submit_NoWallet() {
	submitter, err := submit.NewSubmitter(submit.Config{
		Wallet:  walletSource{},
		Backend: s.backend,
		Sink:    s.sink,
	})
	s.Nil(err)

	_, err = submitter.Submit(context.Background(), testQuote(), 1)

	s.ErrorIs(err, wallet.ErrNotConnected)
	s.Empty(s.sink.Statuses())
}

func (s *SubmitterTestSuite) Test_Receipt_FailureIsRetriedAndSwallowed() {
	s.wallet.EXPECT().SendTransaction(gomock.Any(), gomock.Any(), gomock.Any()).Return("0xHASH", nil)
	s.backend.EXPECT().SubmitReceipt(gomock.Any(), "intent-1", "0xHASH").Return(errors.New("connection reset")).Times(3)

	result, err := s.submitter.Submit(context.Background(), testQuote(), 1)
	s.submitter.Wait()

	s.Nil(err)
	s.Equal("0xHASH", result.TxHash)
	s.Equal([]types.TxStatus{types.TxConfirming, types.TxProcessing}, s.sink.Statuses())
}

func (s *SubmitterTestSuite) Test_Receipt_ClientErrorIsNotRetried() {
	s.wallet.EXPECT().SendTransaction(gomock.Any(), gomock.Any(), gomock.Any()).Return("0xHASH", nil)
	s.backend.EXPECT().SubmitReceipt(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&client.APIError{StatusCode: 404, Message: "unknown intent"}).Times(1)

	_, err := s.submitter.Submit(context.Background(), testQuote(), 1)
	s.submitter.Wait()

	s.Nil(err)
}

func (s *SubmitterTestSuite) Test_Reset() {
	s.wallet.EXPECT().SendTransaction(gomock.Any(), gomock.Any(), gomock.Any()).Return("0xHASH", nil)
	s.backend.EXPECT().SubmitReceipt(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, _ = s.submitter.Submit(context.Background(), testQuote(), 1)
	s.submitter.Wait()
	s.submitter.Reset()

	s.Nil(s.submitter.Result())
}

func (s *SubmitterTestSuite) Test_NewSubmitter_RequiresDependencies() {
	_, err := submit.NewSubmitter(submit.Config{})

	s.NotNil(err)
}
