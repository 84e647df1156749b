package gateway

import (
	"context"
	"errors"
	"strings"

	stripe "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// StripeGateway collects escrow charges through Stripe Checkout and sends
// payouts through the Stripe Payouts API.
type StripeGateway struct {
	api        *client.API
	successURL string
	cancelURL  string
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway creates a gateway backed by the Stripe API.
func NewStripeGateway(apiKey, successURL, cancelURL string) *StripeGateway {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeGateway{
		api:        api,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// CreateCharge opens a Checkout Session for the escrow amount. The session ID
// is the provider reference that payment webhooks carry back.
func (g *StripeGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.Reference),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
			},
		},
	}
	params.AddMetadata("transaction_id", req.Reference)
	params.AddMetadata("payer_id", req.PayerID)

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrapStripeErr(err)
	}

	return &Charge{
		ProviderRef: sess.ID,
		CheckoutURL: sess.URL,
	}, nil
}

// CreateTransfer sends a payout to the worker's connected account.
func (g *StripeGateway) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	params := &stripe.PayoutParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
	}
	params.AddMetadata("transaction_id", req.Reference)
	params.AddMetadata("recipient_id", req.RecipientID)

	p, err := g.api.Payouts.New(params)
	if err != nil {
		return nil, wrapStripeErr(err)
	}

	return &Transfer{
		ProviderRef: p.ID,
		Status:      string(p.Status),
	}, nil
}

func wrapStripeErr(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return &Error{
			Provider: "stripe",
			Code:     string(se.Code),
			Message:  se.Msg,
		}
	}
	return &Error{
		Provider: "stripe",
		Code:     "unknown",
		Message:  err.Error(),
	}
}
