package rediskey

import "fmt"

// Key prefixes shared by every replica.
const (
	RedeemLockPrefix = "redeem:lock"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildRedeemLockKey returns "redeem:lock:{scope}:{scopeID}:{rewardID}:{userID}"
func BuildRedeemLockKey(scope, scopeID, rewardID, userID string) string {
	return NamespaceKey(RedeemLockPrefix, fmt.Sprintf("%s:%s:%s:%s", scope, scopeID, rewardID, userID))
}
