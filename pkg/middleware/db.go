package middleware

import (
	constants "Travault/pkg/constant"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// InjectDB 将数据库句柄放入请求上下文
func InjectDB(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(constants.DbField, db.WithContext(c.Request.Context()))
		c.Next()
	}
}

// RequestID 透传或生成请求ID
func RequestID(gen func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(constants.RequestID)
		if id == "" {
			id = gen()
		}
		c.Set(constants.RequestID, id)
		c.Header(constants.RequestID, id)
		c.Next()
	}
}
