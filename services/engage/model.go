package engage

import (
	"encoding/json"
	"time"

	"engage-ledger/pkg/db/jsonmap"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// VoucherPolicy decides when a voucher created on task approval becomes
// redeemable.
type VoucherPolicy int16

const (
	PolicyManual VoucherPolicy = iota
	PolicyOnTaskCompletion
	PolicyOnAllTasksCompletion
	PolicyOnCampaignEnd
	PolicyOnSpecificDate
)

func (p VoucherPolicy) String() string {
	switch p {
	case PolicyManual:
		return "manual"
	case PolicyOnTaskCompletion:
		return "on_task_completion"
	case PolicyOnAllTasksCompletion:
		return "on_all_tasks_completion"
	case PolicyOnCampaignEnd:
		return "on_campaign_end"
	case PolicyOnSpecificDate:
		return "on_specific_date"
	default:
		return "unknown"
	}
}

type Task struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Link        string   `json:"link,omitempty"`
	Images      []string `json:"images,omitempty"`
	Point       *int64   `json:"point,omitempty"`
}

type Campaign struct {
	ID              uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	OrgID           uuid.UUID                 `gorm:"column:org_id;type:uuid"`
	ProjectID       uuid.UUID                 `gorm:"column:project_id;type:uuid"`
	Name            string                    `gorm:"column:name"`
	Tasks           datatypes.JSONSlice[Task] `gorm:"column:tasks"`
	VoucherPolicy   VoucherPolicy             `gorm:"column:voucher_policy"`
	VoucherExpireAt *datatypes.Date           `gorm:"column:voucher_expire_at"`
	EndAt           *datatypes.Date           `gorm:"column:end_at"`
	CreatedAt       time.Time                 `gorm:"column:created_at"`
	UpdatedAt       *time.Time                `gorm:"column:updated_at"`
}

func (Campaign) TableName() string {
	return "campaign"
}

type Engage struct {
	OrgID         uuid.UUID                    `gorm:"column:org_id;type:uuid;primaryKey"`
	ProjectID     uuid.UUID                    `gorm:"column:project_id;type:uuid"`
	CampaignID    uuid.UUID                    `gorm:"column:campaign_id;type:uuid;primaryKey"`
	ChainID       int64                        `gorm:"column:chain_id;primaryKey;autoIncrement:false"`
	SignerAddress string                       `gorm:"column:signer_address;primaryKey"`
	UserID        string                       `gorm:"column:user_id"`
	UserName      string                       `gorm:"column:user_name"`
	Submissions   jsonmap.Map[json.RawMessage] `gorm:"column:submissions"`
	Accepted      jsonmap.Map[bool]            `gorm:"column:accepted"`
	Messages      jsonmap.Map[string]          `gorm:"column:messages"`
	CouponIssueID *string                      `gorm:"column:coupon_issue_id"`
	CouponSerial  *string                      `gorm:"column:coupon_serial"`
	CouponURL     *string                      `gorm:"column:coupon_url"`
	CountryID     *int16                       `gorm:"column:country_id"`
	CreatedAt     time.Time                    `gorm:"column:created_at"`
	UpdatedAt     *time.Time                   `gorm:"column:updated_at"`
}

func (Engage) TableName() string {
	return "engage"
}

// Voucher is a ledger entry for one approved task. Balance only ever goes
// down, and stays within [0, value].
type Voucher struct {
	OrgID         uuid.UUID       `gorm:"column:org_id;type:uuid" json:"org_id"`
	ProjectID     uuid.UUID       `gorm:"column:project_id;type:uuid" json:"project_id"`
	CampaignID    uuid.UUID       `gorm:"column:campaign_id;type:uuid;primaryKey" json:"campaign_id"`
	ChainID       int64           `gorm:"column:chain_id;primaryKey;autoIncrement:false" json:"chain_id"`
	SignerAddress string          `gorm:"column:signer_address;primaryKey" json:"signer_address"`
	UserID        string          `gorm:"column:user_id" json:"user_id"`
	TaskID        string          `gorm:"column:task_id;primaryKey" json:"task_id"`
	Value         int64           `gorm:"column:value;check:balance_within_value,balance >= 0 AND balance <= value" json:"value"`
	Balance       int64           `gorm:"column:balance" json:"balance"`
	ValidFrom     *datatypes.Date `gorm:"column:valid_from" json:"valid_from"`
	ValidUntil    *datatypes.Date `gorm:"column:valid_until" json:"valid_until"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     *time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Voucher) TableName() string {
	return "voucher"
}

// Today is the UTC calendar date of t as a date column value.
func Today(t time.Time) datatypes.Date {
	y, m, d := t.UTC().Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// ApproveResult is returned by Approve.
type ApproveResult struct {
	UpdatedAt time.Time `json:"updated_at"`
}

// VoucherFilter narrows ListVouchers. Zero values are ignored.
type VoucherFilter struct {
	OrgID         uuid.UUID
	ProjectID     uuid.UUID
	CampaignID    uuid.UUID
	ChainID       int64
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
