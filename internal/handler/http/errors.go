package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/SwiftAkira/SpeedLink/internal/service"
)

// HandleServiceError 把服务层业务错误映射成 HTTP 状态码和错误码。
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAuthenticationFailed):
		ErrorResponse(c, http.StatusUnauthorized, "AUTH_FAILED", "invalid credentials")
	case errors.Is(err, service.ErrRegistrationFailed):
		ErrorResponse(c, http.StatusConflict, "EMAIL_EXISTS", "email already registered")
	case errors.Is(err, service.ErrPartyNotFound):
		ErrorResponse(c, http.StatusNotFound, "PARTY_NOT_FOUND", "party not found or expired")
	case errors.Is(err, service.ErrPartyFull):
		ErrorResponse(c, http.StatusConflict, "PARTY_FULL", "party is full")
	case errors.Is(err, service.ErrNotInParty):
		ErrorResponse(c, http.StatusNotFound, "NOT_IN_PARTY", "not a member of this party")
	case errors.Is(err, service.ErrUserNotFound):
		ErrorResponse(c, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
	case errors.Is(err, service.ErrInvalidInput):
		ErrorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, service.ErrCodeExhausted):
		// 码池被占满是容量问题，不是客户端的错
		ErrorResponse(c, http.StatusServiceUnavailable, "CODE_EXHAUSTED", "could not allocate a party code, try again later")
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred")
	}
}

// currentUserID 取出 Auth 中间件写入的用户 ID。
// 拿不到说明路由忘了挂中间件，按 401 处理。
func currentUserID(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get("user_id")
	if !exists {
		logrus.Warn("Handler: user_id not found in context, middleware missing or failed?")
		ErrorResponse(c, http.StatusUnauthorized, "AUTH_FAILED", "user not authenticated")
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	if !ok {
		logrus.Error("Handler: user_id in context is not uint")
		ErrorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return 0, false
	}
	return userID, true
}
