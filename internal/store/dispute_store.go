package store

import (
	"context"
	"time"

	"escrowledger/internal/models"
)

type DisputeStore struct {
	db DB
}

type DisputeResolutionInput struct {
	DisputeID    string
	Resolution   models.DisputeResolution
	BuyerAmount  int64
	SellerAmount int64
	ResolvedBy   string
	AdminNotes   string
	ResolvedAt   time.Time
}

const disputeColumns = `id, order_id, raised_by, reason, status, resolution, buyer_amount, seller_amount, resolved_by, admin_notes, created_at, resolved_at`

func NewDisputeStore(db DB) *DisputeStore {
	return &DisputeStore{db: db}
}

func (s *DisputeStore) Create(ctx context.Context, tx Execer, dispute models.Dispute) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO disputes (id, order_id, raised_by, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, dispute.ID, dispute.OrderID, dispute.RaisedBy, dispute.Reason, dispute.Status, dispute.CreatedAt)
	return err
}

func (s *DisputeStore) GetByOrder(ctx context.Context, orderID string) (models.Dispute, error) {
	var row models.Dispute
	err := s.db.GetContext(ctx, &row, `SELECT `+disputeColumns+` FROM disputes WHERE order_id = $1`, orderID)
	if err != nil {
		return models.Dispute{}, err
	}
	return row, nil
}

func (s *DisputeStore) GetByOrderForUpdate(ctx context.Context, tx Getter, orderID string) (models.Dispute, error) {
	var row models.Dispute
	err := tx.GetContext(ctx, &row, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE order_id = $1
		FOR UPDATE
	`, orderID)
	if err != nil {
		return models.Dispute{}, err
	}
	return row, nil
}

func (s *DisputeStore) Resolve(ctx context.Context, tx Execer, input DisputeResolutionInput) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE disputes
		SET status = 'RESOLVED', resolution = $1, buyer_amount = $2, seller_amount = $3,
		    resolved_by = $4, admin_notes = $5, resolved_at = $6
		WHERE id = $7 AND status = 'OPEN'
	`, input.Resolution, input.BuyerAmount, input.SellerAmount, input.ResolvedBy, input.AdminNotes, input.ResolvedAt, input.DisputeID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}
