package lifecycle

import "remit_mall/internal/apperr"

// Flow 描述一张合法迁移图：当前态 -> 允许的目标态列表。
// 订单、汇款、银行转账三台状态机共用同一套校验入口，
// 合法迁移只在各自的 Flow 定义里出现一次。
type Flow map[string][]string

// Allowed 判断 current -> requested 是否在图内。
func (f Flow) Allowed(current, requested string) bool {
	for _, next := range f[current] {
		if next == requested {
			return true
		}
	}
	return false
}

// Check 校验一次迁移请求，非法时返回带当前态/目标态的业务错误。
func Check(entity string, f Flow, current, requested string) error {
	if f.Allowed(current, requested) {
		return nil
	}
	return apperr.StateTransition(entity, current, requested)
}

// Terminal 判断某个状态是否没有任何出边（终态）。
func (f Flow) Terminal(state string) bool {
	return len(f[state]) == 0
}
