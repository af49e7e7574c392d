package payments

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/momo"
)

const ProviderMoMo = "momo"

type momoAPI interface {
	Create(ctx context.Context, req momo.CreateRequest) (*momo.CreateResponse, error)
	Query(ctx context.Context, orderID, requestID string) (*momo.QueryResponse, error)
}

// MoMoProvider adapts the MoMo client to the Provider contract. The provider
// "orderId" carries our per-attempt provider transaction id.
type MoMoProvider struct {
	client momoAPI
}

func NewMoMoProvider(client momoAPI) *MoMoProvider {
	return &MoMoProvider{client: client}
}

func (p *MoMoProvider) Name() string { return ProviderMoMo }

func (p *MoMoProvider) Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error) {
	items := make([]momo.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, momo.Item{
			ID:       it.ID,
			Name:     it.Name,
			ImageURL: it.ImageURL,
			Price:    it.UnitPrice,
			Currency: "VND",
			Quantity: it.Quantity,
			Total:    it.Total,
		})
	}
	resp, err := p.client.Create(ctx, momo.CreateRequest{
		OrderID:   req.ProviderTransactionID,
		RequestID: req.RequestID,
		Amount:    req.Amount,
		OrderInfo: req.Description,
		ExtraData: "",
		Items:     items,
		UserInfo:  &momo.UserInfo{Name: req.Payer.Name, PhoneNumber: req.Payer.Phone},
	})
	if err != nil {
		return nil, err
	}
	if resp.ResultCode != momo.CodeSuccess {
		return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, "payment provider refused the request").
			WithDetails(map[string]any{"result_code": resp.ResultCode, "message": resp.Message})
	}
	if resp.PayURL == "" || resp.OrderID != req.ProviderTransactionID {
		return nil, pkgerrors.New(pkgerrors.CodeInconsistent, "payment provider response missing pay url or transaction id")
	}
	return &Initiation{PayURL: resp.PayURL, ResultCode: resp.ResultCode, Message: resp.Message}, nil
}

func (p *MoMoProvider) Confirm(ctx context.Context, providerTransactionID string) (*Confirmation, error) {
	resp, err := p.client.Query(ctx, providerTransactionID, uuid.NewString())
	if err != nil {
		return nil, err
	}
	conf := &Confirmation{
		Outcome:    outcomeFromMoMo(resp.Outcome()),
		ResultCode: resp.ResultCode,
		Message:    resp.Message,
	}
	if resp.TransID != 0 {
		conf.ProviderOrderID = strconv.FormatInt(resp.TransID, 10)
	}
	return conf, nil
}

// ConfirmationFromNotification turns a verified IPN or return payload into a Confirmation.
func ConfirmationFromNotification(n momo.Notification) *Confirmation {
	conf := &Confirmation{
		Outcome:    outcomeFromMoMo(momo.Classify(n.ResultCode)),
		ResultCode: n.ResultCode,
		Message:    n.Message,
	}
	if n.TransID != 0 {
		conf.ProviderOrderID = strconv.FormatInt(n.TransID, 10)
	}
	return conf
}

func outcomeFromMoMo(o momo.Outcome) Outcome {
	switch o {
	case momo.OutcomeSettled:
		return OutcomeSettled
	case momo.OutcomePending:
		return OutcomePending
	default:
		return OutcomeFailed
	}
}
