package taskname

const (
	// Reward tasks
	CouponAssigned = "coupon:assigned"
)

// Queues
const (
	QueueCritical = "critical"
)
