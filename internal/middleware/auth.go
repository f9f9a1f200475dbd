package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"remit_mall/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// 认证由网关完成，这里只做操作人解析：
// 网关透传 X-User-ID，中间件查用户档案并把带可读姓名的 Actor 放进请求上下文，
// 后续 handler 显式取出传给引擎——不存在任何全局"当前用户"。

const actorKey = "actor"

// ResolveActor 解析操作人，解析不到直接 401。
func ResolveActor(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		idStr := c.GetHeader("X-User-ID")
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "缺少或无效的用户标识"})
			return
		}
		var u model.User
		if err := db.First(&u, uint(id)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "用户不存在"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "系统繁忙，请稍后再试"})
			return
		}
		c.Set(actorKey, u.Actor())
		c.Next()
	}
}

// RequireAdmin 管理员专属路由的前置拦截；引擎内部仍会二次校验。
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Actor(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": 403, "msg": "该操作仅限管理员"})
			return
		}
		c.Next()
	}
}

// Actor 从请求上下文取出操作人。
func Actor(c *gin.Context) model.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(model.Actor)
	return actor
}
