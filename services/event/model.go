package event

import (
	"encoding/json"
	"time"

	"engage-ledger/pkg/db/jsonmap"

	"github.com/google/uuid"
)

// Kind is serialized as its numeric value.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindSubmittedProof
	KindSubmissionApproved
	KindIssued
	KindClaimed
)

func (k Kind) String() string {
	switch k {
	case KindSubmittedProof:
		return "submitted_proof"
	case KindSubmissionApproved:
		return "submission_approved"
	case KindIssued:
		return "issued"
	case KindClaimed:
		return "claimed"
	default:
		return "unknown"
	}
}

// Log is one row of the append-only engage_event table. The capture trigger
// also sends it, encoded with row_to_json, as the notification payload.
type Log struct {
	ID              int64                        `gorm:"column:id;primaryKey" db:"id" json:"id"`
	OrgID           uuid.UUID                    `gorm:"column:org_id;type:uuid" db:"org_id" json:"org_id"`
	ProjectID       uuid.UUID                    `gorm:"column:project_id;type:uuid" db:"project_id" json:"project_id"`
	CampaignID      uuid.UUID                    `gorm:"column:campaign_id;type:uuid" db:"campaign_id" json:"campaign_id"`
	ChainID         int64                        `gorm:"column:chain_id" db:"chain_id" json:"chain_id"`
	SignerAddress   string                       `gorm:"column:signer_address" db:"signer_address" json:"signer_address"`
	UserID          string                       `gorm:"column:user_id" db:"user_id" json:"user_id"`
	OldSubmissions  jsonmap.Map[json.RawMessage] `gorm:"column:old_submissions" db:"old_submissions" json:"old_submissions"`
	OldAccepted     jsonmap.Map[bool]            `gorm:"column:old_accepted" db:"old_accepted" json:"old_accepted"`
	OldCouponSerial *string                      `gorm:"column:old_coupon_serial" db:"old_coupon_serial" json:"old_coupon_serial"`
	OldCouponURL    *string                      `gorm:"column:old_coupon_url" db:"old_coupon_url" json:"old_coupon_url"`
	NewSubmissions  jsonmap.Map[json.RawMessage] `gorm:"column:new_submissions" db:"new_submissions" json:"new_submissions"`
	NewAccepted     jsonmap.Map[bool]            `gorm:"column:new_accepted" db:"new_accepted" json:"new_accepted"`
	NewCouponSerial *string                      `gorm:"column:new_coupon_serial" db:"new_coupon_serial" json:"new_coupon_serial"`
	NewCouponURL    *string                      `gorm:"column:new_coupon_url" db:"new_coupon_url" json:"new_coupon_url"`
	CreatedAt       time.Time                    `gorm:"column:created_at" db:"created_at" json:"created_at"`
}

func (Log) TableName() string {
	return "engage_event"
}

// Event is the classified, client-facing view of a Log row.
type Event struct {
	ID            int64     `json:"id"`
	ProjectID     uuid.UUID `json:"project_id"`
	CampaignID    uuid.UUID `json:"campaign_id"`
	ChainID       int64     `json:"chain_id"`
	SignerAddress string    `json:"signer_address"`
	Kind          Kind      `json:"kind"`
	TaskIDs       []string  `json:"task_ids,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
