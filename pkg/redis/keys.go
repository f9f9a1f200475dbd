package redis

import "fmt"

// 键名统一在这里约定，避免散落在各处拼字符串。

// RateLimitUserKey 按用户限流。
func RateLimitUserKey(scope string, userID uint) string {
	return fmt.Sprintf("remit_mall:rate:%s:user:%d", scope, userID)
}

// RateLimitIPKey 解析不到用户时按 IP 限流（降级）。
func RateLimitIPKey(scope, ip string) string {
	return fmt.Sprintf("remit_mall:rate:%s:ip:%s", scope, ip)
}
