package store

import (
	"context"

	"escrowledger/internal/models"
)

type PaymentStore struct {
	db DB
}

const paymentColumns = `id, wallet_id, type, gateway, amount, fee, status, gateway_reference, gateway_payload, created_at, updated_at`

func NewPaymentStore(db DB) *PaymentStore {
	return &PaymentStore{db: db}
}

func (s *PaymentStore) Create(ctx context.Context, tx Execer, payment models.PaymentTransaction) error {
	payload := payment.GatewayPayload
	if payload == "" {
		payload = "{}"
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payment_transactions (id, wallet_id, type, gateway, amount, fee, status, gateway_reference, gateway_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, payment.ID, payment.WalletID, payment.Type, payment.Gateway, payment.Amount, payment.Fee,
		payment.Status, payment.GatewayReference, payload)
	return err
}

func (s *PaymentStore) GetByReference(ctx context.Context, reference string) (models.PaymentTransaction, error) {
	var row models.PaymentTransaction
	err := s.db.GetContext(ctx, &row, `SELECT `+paymentColumns+` FROM payment_transactions WHERE gateway_reference = $1`, reference)
	if err != nil {
		return models.PaymentTransaction{}, err
	}
	return row, nil
}

func (s *PaymentStore) GetByReferenceForUpdate(ctx context.Context, tx Getter, reference string) (models.PaymentTransaction, error) {
	var row models.PaymentTransaction
	err := tx.GetContext(ctx, &row, `
		SELECT `+paymentColumns+`
		FROM payment_transactions
		WHERE gateway_reference = $1
		FOR UPDATE
	`, reference)
	if err != nil {
		return models.PaymentTransaction{}, err
	}
	return row, nil
}

// UpdateStatus moves a non-terminal transaction to status and stores the
// payload of the event that caused it.
func (s *PaymentStore) UpdateStatus(ctx context.Context, tx Execer, paymentID string, status models.PaymentStatus, payload string) error {
	if payload == "" {
		payload = "{}"
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = $1, gateway_payload = $2, updated_at = NOW()
		WHERE id = $3 AND status IN ('PENDING', 'PROCESSING')
	`, status, payload, paymentID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}
