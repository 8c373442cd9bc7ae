package constant

import "time"

const (
	CheckInRateLimitKey = "checkin:rl:%s:%s"
	EventQrCacheKey     = "event:qr:%s"
	PaymentUserLockKey  = "payment:user_lock:%s:%s"
)

const (
	CheckInRateLimitTTL       = 5 * time.Second
	EventQrCacheTTL           = 1 * time.Minute
	PaymentUserLockDefaultTTL = 1 * time.Minute
)
