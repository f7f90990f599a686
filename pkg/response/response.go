package response

import (
	"net/http"

	"Travault/pkg/errors"
	"Travault/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 统一响应信封：{success, message?, ...payload}
func envelope(success bool, msg string, data interface{}) gin.H {
	body := gin.H{"success": success}
	if msg != "" {
		body["message"] = msg
	}
	switch v := data.(type) {
	case nil:
	case gin.H:
		for k, val := range v {
			body[k] = val
		}
	case map[string]interface{}:
		for k, val := range v {
			body[k] = val
		}
	default:
		body["data"] = v
	}
	return body
}

// Success 200
func Success(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, envelope(true, msg, data))
}

// Created 201
func Created(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusCreated, envelope(true, msg, data))
}

// Fail 400
func Fail(c *gin.Context, msg string, data interface{}) {
	c.AbortWithStatusJSON(http.StatusBadRequest, envelope(false, msg, data))
}

// AbortWithStatus 以指定状态码返回失败信封
func AbortWithStatus(c *gin.Context, status int, msg string, data interface{}) {
	c.AbortWithStatusJSON(status, envelope(false, msg, data))
}

// Error 按错误码映射状态码，500 只返回通用消息
func Error(c *gin.Context, err error) {
	code := errors.GetCode(err)
	switch code {
	case errors.CodeValidation:
		AbortWithStatus(c, code, errors.GetMessage(err), gin.H{"errors": errors.GetFields(err)})
	case errors.CodeUnauthorized, errors.CodeForbidden, errors.CodeNotFound, errors.CodeConflict:
		AbortWithStatus(c, code, errors.GetMessage(err), nil)
	default:
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Error(err))
		AbortWithStatus(c, http.StatusInternalServerError, "Server error", nil)
	}
}
