package store

import (
	"context"

	"escrowledger/internal/models"
)

type OrderStore struct {
	db DB
}

const orderColumns = `id, seller_id, seller_wallet_id, buyer_id, buyer_wallet_id, price, platform_fee, currency, status, created_at, updated_at`

func NewOrderStore(db DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) Create(ctx context.Context, tx Execer, order models.Order) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, seller_id, seller_wallet_id, price, platform_fee, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, order.ID, order.SellerID, order.SellerWalletID, order.Price, order.PlatformFee, order.Currency, order.Status)
	return err
}

func (s *OrderStore) GetByID(ctx context.Context, orderID string) (models.Order, error) {
	var row models.Order
	err := s.db.GetContext(ctx, &row, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return models.Order{}, err
	}
	return row, nil
}

func (s *OrderStore) GetForUpdate(ctx context.Context, tx Getter, orderID string) (models.Order, error) {
	var row models.Order
	err := tx.GetContext(ctx, &row, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID)
	if err != nil {
		return models.Order{}, err
	}
	return row, nil
}

// AttachBuyer records the buyer and moves the order out of `from`.
func (s *OrderStore) AttachBuyer(ctx context.Context, tx Execer, orderID, buyerID, buyerWalletID string, from, to models.OrderStatus) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET buyer_id = $1, buyer_wallet_id = $2, status = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`, buyerID, buyerWalletID, to, orderID, from)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// UpdateStatus is a compare-and-set on the order status.
func (s *OrderStore) UpdateStatus(ctx context.Context, tx Execer, orderID string, from, to models.OrderStatus) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, orderID, from)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}
