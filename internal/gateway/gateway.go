// Package gateway abstracts the external payment processor.
//
// Escrow charges are collected through hosted checkout and payouts are sent
// as transfers. The processor confirms both asynchronously via webhooks, so
// every call here returns a provider reference that later webhook events are
// matched against.
package gateway

import (
	"context"
	"fmt"
)

// ChargeRequest asks the processor to collect funds from a payer.
type ChargeRequest struct {
	Amount      int64  // minor units
	Currency    string // ISO 4217 code
	Reference   string // our transaction ID, echoed back in webhooks
	Description string
	PayerID     string
}

// Charge is the processor's record of a collection attempt.
type Charge struct {
	ProviderRef string // processor-side ID used to correlate webhooks
	CheckoutURL string // hosted payment page, empty for processors without one
}

// TransferRequest asks the processor to send funds to a recipient.
type TransferRequest struct {
	Amount      int64
	Currency    string
	Reference   string
	Description string
	RecipientID string
}

// Transfer is the processor's record of an outbound payment.
type Transfer struct {
	ProviderRef string
	Status      string // processor-side status at creation time
}

// Error is a failure reported by the payment processor.
type Error struct {
	Provider string
	Code     string
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s gateway error (%s): %s", e.Provider, e.Code, e.Message)
}

// Gateway is the payment processor interface.
type Gateway interface {
	// CreateCharge initiates collection of funds. It must be called before
	// any local ledger mutation so a processor failure leaves no partial
	// state behind.
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)

	// CreateTransfer initiates an outbound payment to a worker.
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
}
