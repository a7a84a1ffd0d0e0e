package reward

import (
	"time"

	"github.com/google/uuid"
)

// Scope is the owner of a reward link: a project or a campaign.
type Scope string

const (
	ScopeProject  Scope = "project"
	ScopeCampaign Scope = "campaign"
)

type Reward struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrgID     uuid.UUID  `gorm:"column:org_id;type:uuid" json:"org_id"`
	ProjectID uuid.UUID  `gorm:"column:project_id;type:uuid" json:"project_id"`
	Name      string     `gorm:"column:name" json:"name"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt *time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Reward) TableName() string {
	return "reward"
}

// Coupon is available while both UserID and MintedAt are nil.
type Coupon struct {
	RewardID  uuid.UUID  `gorm:"column:reward_id;type:uuid;primaryKey" json:"reward_id"`
	Number    int64      `gorm:"column:number;primaryKey;autoIncrement:false" json:"number"`
	URL       string     `gorm:"column:url" json:"url"`
	UserID    *string    `gorm:"column:user_id" json:"user_id"`
	MintedAt  *time.Time `gorm:"column:minted_at" json:"minted_at"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt *time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Coupon) TableName() string {
	return "coupon"
}

// LinkTerms are the redemption terms shared by project and campaign links.
// A nil or zero MaxMint/UserMint means unlimited.
type LinkTerms struct {
	Point    *int64 `gorm:"column:point" json:"point"`
	Active   bool   `gorm:"column:active" json:"active"`
	Approved bool   `gorm:"column:approved" json:"approved"`
	MaxMint  *int64 `gorm:"column:max_mint" json:"max_mint"`
	UserMint *int64 `gorm:"column:user_mint" json:"user_mint"`
}

func (t LinkTerms) redeemable() bool {
	return t.Active && t.Approved && t.Point != nil
}

type ProjectReward struct {
	OrgID     uuid.UUID `gorm:"column:org_id;type:uuid" json:"org_id"`
	ProjectID uuid.UUID `gorm:"column:project_id;type:uuid;primaryKey" json:"project_id"`
	RewardID  uuid.UUID `gorm:"column:reward_id;type:uuid;primaryKey" json:"reward_id"`
	LinkTerms `gorm:"embedded"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt *time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (ProjectReward) TableName() string {
	return "project_reward"
}

type CampaignReward struct {
	OrgID      uuid.UUID `gorm:"column:org_id;type:uuid" json:"org_id"`
	ProjectID  uuid.UUID `gorm:"column:project_id;type:uuid" json:"project_id"`
	CampaignID uuid.UUID `gorm:"column:campaign_id;type:uuid;primaryKey" json:"campaign_id"`
	RewardID   uuid.UUID `gorm:"column:reward_id;type:uuid;primaryKey" json:"reward_id"`
	LinkTerms  `gorm:"embedded"`
	CreatedAt  time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  *time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (CampaignReward) TableName() string {
	return "campaign_reward"
}

type RedeemRequest struct {
	UserID   string
	RewardID uuid.UUID
	Scope    Scope
	ScopeID  uuid.UUID
}

// VoucherConsumption records how much one voucher gave up for a redemption.
type VoucherConsumption struct {
	CampaignID    uuid.UUID `json:"campaign_id"`
	ChainID       int64     `json:"chain_id"`
	SignerAddress string    `json:"signer_address"`
	TaskID        string    `json:"task_id"`
	Minted        int64     `json:"minted"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type RedeemResult struct {
	Coupon   *Coupon              `json:"coupon"`
	Vouchers []VoucherConsumption `json:"vouchers"`
	Balance  int64                `json:"balance"`
}

// CouponFilter narrows a coupon list. Zero fields match everything.
type CouponFilter struct {
	RewardID     uuid.UUID
	MintedAfter  *time.Time
	MintedBefore *time.Time
}

// LinkRequest sets the terms of a project or campaign reward link. With
// KeepApproval the stored approval is kept and a new link starts unapproved.
type LinkRequest struct {
	OrgID        uuid.UUID
	ProjectID    uuid.UUID
	CampaignID   uuid.UUID
	RewardID     uuid.UUID
	Terms        LinkTerms
	KeepApproval bool
}
