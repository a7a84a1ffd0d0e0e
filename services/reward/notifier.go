package reward

import (
	"context"

	asynqtask "engage-ledger/pkg/asynq"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Notifier hands an assigned coupon to the vendor worker.
type Notifier interface {
	CouponAssigned(ctx context.Context, payload asynqtask.CouponAssignedPayload) error
}

type asynqNotifier struct {
	client *asynq.Client
}

func NewNotifier(client *asynq.Client) Notifier {
	if client == nil {
		return nil
	}
	return &asynqNotifier{client: client}
}

func (n *asynqNotifier) CouponAssigned(ctx context.Context, payload asynqtask.CouponAssignedPayload) error {
	task, err := asynqtask.NewCouponAssignedTask(payload)
	if err != nil {
		return err
	}

	info, err := n.client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}

	zap.L().Info("enqueued coupon assignment",
		zap.String("task_id", info.ID),
		zap.String("reward_id", payload.RewardID),
		zap.Int64("number", payload.Number),
	)
	return nil
}
