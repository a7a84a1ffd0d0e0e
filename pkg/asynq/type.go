package asynq

import (
	"encoding/json"
	"time"

	"engage-ledger/pkg/taskname"

	"github.com/hibiken/asynq"
)

const (
	CouponAssignedTask = taskname.CouponAssigned
)

// CouponAssignedPayload is handed to the vendor worker once a coupon has been
// assigned locally.
type CouponAssignedPayload struct {
	RewardID string    `json:"reward_id"`
	Number   int64     `json:"number"`
	URL      string    `json:"url"`
	UserID   string    `json:"user_id"`
	Scope    string    `json:"scope"`
	ScopeID  string    `json:"scope_id"`
	MintedAt time.Time `json:"minted_at"`
}

func NewCouponAssignedTask(p CouponAssignedPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(CouponAssignedTask, payload, asynq.MaxRetry(10), asynq.Queue(taskname.QueueCritical)), nil
}

func ParseCouponAssignedTask(t *asynq.Task) (CouponAssignedPayload, error) {
	var p CouponAssignedPayload
	err := json.Unmarshal(t.Payload(), &p)
	return p, err
}
