package models

import "time"

type WalletStatus string

const (
	WalletActive    WalletStatus = "ACTIVE"
	WalletSuspended WalletStatus = "SUSPENDED"
)

type Wallet struct {
	ID                string       `db:"id" json:"id"`
	OwnerID           *string      `db:"owner_id" json:"owner_id,omitempty"`
	Currency          string       `db:"currency" json:"currency"`
	AvailableBalance  int64        `db:"available_balance" json:"available_balance"`
	LockedEscrowFunds int64        `db:"locked_escrow_funds" json:"locked_escrow_funds"`
	Status            WalletStatus `db:"status" json:"status"`
	IsSystem          bool         `db:"is_system" json:"is_system"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

func (w Wallet) Owner() string {
	if w.OwnerID == nil {
		return ""
	}
	return *w.OwnerID
}

type Direction string

const (
	Credit Direction = "CREDIT"
	Debit  Direction = "DEBIT"
)

// Bucket names the wallet balance column a ledger entry moves.
type Bucket string

const (
	BucketAvailable Bucket = "AVAILABLE"
	BucketLocked    Bucket = "LOCKED"
)

// Reference points at the row that caused a ledger entry.
type Reference struct {
	Table string
	ID    string
}

type LedgerEntry struct {
	ID             string    `db:"id" json:"id"`
	WalletID       string    `db:"wallet_id" json:"wallet_id"`
	Direction      Direction `db:"direction" json:"direction"`
	Bucket         Bucket    `db:"bucket" json:"bucket"`
	Amount         int64     `db:"amount" json:"amount"`
	Currency       string    `db:"currency" json:"currency"`
	Description    string    `db:"description" json:"description"`
	ReferenceTable string    `db:"reference_table" json:"reference_table"`
	ReferenceID    string    `db:"reference_id" json:"reference_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Signed returns the entry amount as a balance delta.
func (e LedgerEntry) Signed() int64 {
	if e.Direction == Debit {
		return -e.Amount
	}
	return e.Amount
}

type EscrowState string

const (
	EscrowLocked   EscrowState = "LOCKED"
	EscrowReleased EscrowState = "RELEASED"
	EscrowRefunded EscrowState = "REFUNDED"
)

type EscrowLock struct {
	ID           string     `db:"id" json:"id"`
	OrderID      string     `db:"order_id" json:"order_id"`
	WalletID     string     `db:"wallet_id" json:"wallet_id"`
	Amount       int64      `db:"amount" json:"amount"`
	PlatformFee  int64      `db:"platform_fee" json:"platform_fee"`
	RefundReason *string    `db:"refund_reason" json:"refund_reason,omitempty"`
	LockedAt     time.Time  `db:"locked_at" json:"locked_at"`
	ReleasedAt   *time.Time `db:"released_at" json:"released_at,omitempty"`
	RefundedAt   *time.Time `db:"refunded_at" json:"refunded_at,omitempty"`
}

// State derives the lock state from its terminal timestamps. A lock carrying
// both timestamps is corrupt and reported as ok=false.
func (l EscrowLock) State() (EscrowState, bool) {
	switch {
	case l.ReleasedAt != nil && l.RefundedAt != nil:
		return "", false
	case l.ReleasedAt != nil:
		return EscrowReleased, true
	case l.RefundedAt != nil:
		return EscrowRefunded, true
	default:
		return EscrowLocked, true
	}
}

type OrderStatus string

const (
	OrderActive    OrderStatus = "ACTIVE"
	OrderInEscrow  OrderStatus = "IN_ESCROW"
	OrderDisputed  OrderStatus = "DISPUTED"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

type Order struct {
	ID             string      `db:"id" json:"id"`
	SellerID       string      `db:"seller_id" json:"seller_id"`
	SellerWalletID string      `db:"seller_wallet_id" json:"seller_wallet_id"`
	BuyerID        *string     `db:"buyer_id" json:"buyer_id,omitempty"`
	BuyerWalletID  *string     `db:"buyer_wallet_id" json:"buyer_wallet_id,omitempty"`
	Price          int64       `db:"price" json:"price"`
	PlatformFee    int64       `db:"platform_fee" json:"platform_fee"`
	Currency       string      `db:"currency" json:"currency"`
	Status         OrderStatus `db:"status" json:"status"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

func (o Order) Buyer() string {
	if o.BuyerID == nil {
		return ""
	}
	return *o.BuyerID
}

type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "OPEN"
	DisputeResolved DisputeStatus = "RESOLVED"
)

type DisputeResolution string

const (
	ResolvedBuyer   DisputeResolution = "RESOLVED_BUYER"
	ResolvedSeller  DisputeResolution = "RESOLVED_SELLER"
	ResolvedPartial DisputeResolution = "RESOLVED_PARTIAL"
)

type Dispute struct {
	ID           string             `db:"id" json:"id"`
	OrderID      string             `db:"order_id" json:"order_id"`
	RaisedBy     string             `db:"raised_by" json:"raised_by"`
	Reason       string             `db:"reason" json:"reason"`
	Status       DisputeStatus      `db:"status" json:"status"`
	Resolution   *DisputeResolution `db:"resolution" json:"resolution,omitempty"`
	BuyerAmount  *int64             `db:"buyer_amount" json:"buyer_amount,omitempty"`
	SellerAmount *int64             `db:"seller_amount" json:"seller_amount,omitempty"`
	ResolvedBy   *string            `db:"resolved_by" json:"resolved_by,omitempty"`
	AdminNotes   *string            `db:"admin_notes" json:"admin_notes,omitempty"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	ResolvedAt   *time.Time         `db:"resolved_at" json:"resolved_at,omitempty"`
}

type PaymentType string

const (
	PaymentDeposit    PaymentType = "DEPOSIT"
	PaymentWithdrawal PaymentType = "WITHDRAWAL"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

type PaymentTransaction struct {
	ID               string        `db:"id" json:"id"`
	WalletID         string        `db:"wallet_id" json:"wallet_id"`
	Type             PaymentType   `db:"type" json:"type"`
	Gateway          string        `db:"gateway" json:"gateway"`
	Amount           int64         `db:"amount" json:"amount"`
	Fee              int64         `db:"fee" json:"fee"`
	Status           PaymentStatus `db:"status" json:"status"`
	GatewayReference string        `db:"gateway_reference" json:"gateway_reference"`
	GatewayPayload   string        `db:"gateway_payload" json:"gateway_payload"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Data       string    `db:"data" json:"data"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
