package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/momo"
)

type stubMoMo struct {
	createResp *momo.CreateResponse
	queryResp  *momo.QueryResponse
	created    momo.CreateRequest
}

func (s *stubMoMo) Create(_ context.Context, req momo.CreateRequest) (*momo.CreateResponse, error) {
	s.created = req
	return s.createResp, nil
}

func (s *stubMoMo) Query(context.Context, string, string) (*momo.QueryResponse, error) {
	return s.queryResp, nil
}

func TestMoMoProviderInitiate(t *testing.T) {
	req := InitiateRequest{
		OrderID:               uuid.New(),
		ProviderTransactionID: "ord-1-1700000000000",
		RequestID:             uuid.NewString(),
		Amount:                225000,
		Items:                 []LineItem{{ID: "p1", Name: "Item A", Quantity: 1, UnitPrice: 200000, Total: 200000}},
		Payer:                 Payer{Name: "Minh Tran", Phone: "0907654321"},
	}

	t.Run("accepted", func(t *testing.T) {
		stub := &stubMoMo{createResp: &momo.CreateResponse{OrderID: req.ProviderTransactionID, PayURL: "https://pay.test/x"}}
		init, err := NewMoMoProvider(stub).Initiate(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "https://pay.test/x", init.PayURL)
		assert.Equal(t, req.ProviderTransactionID, stub.created.OrderID)
		assert.Equal(t, int64(225000), stub.created.Amount)
		assert.Equal(t, "VND", stub.created.Items[0].Currency)
		assert.Equal(t, "0907654321", stub.created.UserInfo.PhoneNumber)
	})

	t.Run("refused", func(t *testing.T) {
		stub := &stubMoMo{createResp: &momo.CreateResponse{OrderID: req.ProviderTransactionID, ResultCode: 22, Message: "amount out of range"}}
		_, err := NewMoMoProvider(stub).Initiate(context.Background(), req)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentFailed))
	})

	t.Run("missing pay url", func(t *testing.T) {
		stub := &stubMoMo{createResp: &momo.CreateResponse{OrderID: req.ProviderTransactionID}}
		_, err := NewMoMoProvider(stub).Initiate(context.Background(), req)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInconsistent))
	})
}

func TestMoMoProviderConfirmClassifies(t *testing.T) {
	cases := map[int]Outcome{0: OutcomeSettled, 1000: OutcomePending, 7002: OutcomePending, 1006: OutcomeFailed}
	for code, want := range cases {
		stub := &stubMoMo{queryResp: &momo.QueryResponse{ResultCode: code, TransID: 42}}
		conf, err := NewMoMoProvider(stub).Confirm(context.Background(), "ord-1")
		require.NoError(t, err)
		assert.Equal(t, want, conf.Outcome, "code %d", code)
		assert.Equal(t, "42", conf.ProviderOrderID)
	}
}

func TestConfirmationFromNotification(t *testing.T) {
	conf := ConfirmationFromNotification(momo.Notification{ResultCode: 9000, Message: "authorized"})
	assert.Equal(t, OutcomePending, conf.Outcome)
	assert.Empty(t, conf.ProviderOrderID)
}

func TestUnconfiguredProviderFailsAsDependency(t *testing.T) {
	var p Provider = Unconfigured{}

	_, err := p.Initiate(context.Background(), InitiateRequest{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = p.Confirm(context.Background(), "txn-1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
