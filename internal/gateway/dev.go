package gateway

import (
	"context"
	"sync"

	"github.com/Eaziking2002/talent-afro-sub001/internal/idgen"
)

// DevGateway is an in-process stand-in used when no processor API key is
// configured. Charges and transfers succeed immediately and are remembered
// so local tooling can drive webhook confirmations against them.
type DevGateway struct {
	mu        sync.Mutex
	charges   []ChargeRequest
	transfers []TransferRequest
}

var _ Gateway = (*DevGateway)(nil)

// NewDevGateway creates a development gateway.
func NewDevGateway() *DevGateway {
	return &DevGateway{}
}

func (g *DevGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	g.mu.Lock()
	g.charges = append(g.charges, req)
	g.mu.Unlock()

	return &Charge{
		ProviderRef: idgen.WithPrefix("dev_ch_"),
		CheckoutURL: "http://localhost/dev-checkout/" + req.Reference,
	}, nil
}

func (g *DevGateway) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	g.mu.Lock()
	g.transfers = append(g.transfers, req)
	g.mu.Unlock()

	return &Transfer{
		ProviderRef: idgen.WithPrefix("dev_po_"),
		Status:      "pending",
	}, nil
}

// Charges returns a copy of every charge request seen so far.
func (g *DevGateway) Charges() []ChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ChargeRequest, len(g.charges))
	copy(out, g.charges)
	return out
}

// Transfers returns a copy of every transfer request seen so far.
func (g *DevGateway) Transfers() []TransferRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]TransferRequest, len(g.transfers))
	copy(out, g.transfers)
	return out
}
