package service

import "errors"

// 服务层业务错误。Handler 层（HTTP 和 WebSocket）只依赖这些值
// 做状态码/错误码映射，不感知仓库层或驱动的错误细节。
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrPartyNotFound        = errors.New("party not found or expired")
	ErrPartyFull            = errors.New("party is full")
	ErrNotInParty           = errors.New("user is not a member of this party")
	ErrCodeExhausted        = errors.New("could not allocate a unique party code")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: email already exists")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInternalServer       = errors.New("internal server error")
)
