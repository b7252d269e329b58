package domain

import "context"

// Exchange is the signed exchange client consumed by the services. None of
// its methods retry.
type Exchange interface {
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
	CreateOrder(ctx context.Context, req OrderRequest) (ExchangeOrder, error)
	GetOrder(ctx context.Context, symbol, orderID string) (ExchangeOrder, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (ExchangeOrder, error)
	GetAccountBalance(ctx context.Context) ([]Balance, error)
}
