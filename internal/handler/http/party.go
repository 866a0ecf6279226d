package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/SwiftAkira/SpeedLink/internal/service"
)

// PartyHandler 封装了与队伍管理相关的 HTTP 处理逻辑。
// REST 接口和 WebSocket 事件走同一个 Service 层，行为完全一致；
// 这一层主要给移动端的非实时路径（启动时恢复状态、补看消息）用。
type PartyHandler struct {
	partyService    *service.PartyService
	realtimeService *service.RealtimeService
}

// NewPartyHandler 创建 PartyHandler 实例
func NewPartyHandler(partyService *service.PartyService, realtimeService *service.RealtimeService) *PartyHandler {
	if partyService == nil {
		panic("PartyService cannot be nil for PartyHandler")
	}
	if realtimeService == nil {
		panic("RealtimeService cannot be nil for PartyHandler")
	}
	return &PartyHandler{
		partyService:    partyService,
		realtimeService: realtimeService,
	}
}

// CreatePartyRequest 定义创建队伍请求的结构体
type CreatePartyRequest struct {
	Name string `json:"name" binding:"omitempty,max=100"`
}

// CreateParty 处理创建新队伍的请求
func (h *PartyHandler) CreateParty(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	var req CreatePartyRequest
	// 空请求体也是合法的：队伍名可选
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logCtx.WithError(err).Warn("Handler.CreateParty: Invalid input format")
			ErrorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
	}

	state, err := h.partyService.Create(c.Request.Context(), userID, req.Name)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logCtx.WithFields(logrus.Fields{"party_id": state.ID, "code": state.Code}).Info("Handler.CreateParty: Party created successfully")
	SuccessResponse(c, http.StatusCreated, gin.H{"party": state})
}

// JoinPartyRequest 定义加入队伍请求的结构体
type JoinPartyRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

// JoinParty 处理用户通过邀请码加入队伍的请求
func (h *PartyHandler) JoinParty(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	var req JoinPartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.JoinParty: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "code must be exactly 6 digits")
		return
	}

	state, _, err := h.partyService.JoinByCode(c.Request.Context(), userID, req.Code)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logCtx.WithField("party_id", state.ID).Info("Handler.JoinParty: User joined party successfully")
	SuccessResponse(c, http.StatusOK, gin.H{"party": state})
}

// GetParty 返回队伍的完整状态快照（仅限成员）
func (h *PartyHandler) GetParty(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	partyID, ok := parsePartyID(c)
	if !ok {
		return
	}

	// 非成员不能窥视别人队伍的位置数据
	isMember, err := h.partyService.IsMember(c.Request.Context(), partyID, userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if !isMember {
		ErrorResponse(c, http.StatusForbidden, "NOT_IN_PARTY", "not a member of this party")
		return
	}

	state, err := h.partyService.State(c.Request.Context(), partyID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"party": state})
}

// LeaveParty 处理用户离开队伍的请求
func (h *PartyHandler) LeaveParty(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	partyID, ok := parsePartyID(c)
	if !ok {
		return
	}

	if err := h.partyService.Leave(c.Request.Context(), userID, partyID); err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{"user_id": userID, "party_id": partyID}).Info("Handler.LeaveParty: User left party")
	SuccessResponse(c, http.StatusOK, gin.H{"partyId": partyID})
}

// MyParties 返回当前用户参与的所有有效队伍
func (h *PartyHandler) MyParties(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	parties, err := h.partyService.UserParties(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"parties": parties})
}

// PartyMessages 返回队伍最近的消息（断线补看用，仅限成员）
func (h *PartyHandler) PartyMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	partyID, ok := parsePartyID(c)
	if !ok {
		return
	}

	isMember, err := h.partyService.IsMember(c.Request.Context(), partyID, userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if !isMember {
		ErrorResponse(c, http.StatusForbidden, "NOT_IN_PARTY", "not a member of this party")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	messages, err := h.realtimeService.RecentMessages(c.Request.Context(), partyID, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"messages": messages})
}

// parsePartyID 解析 URL 里的 :partyId 参数
func parsePartyID(c *gin.Context) (uint, bool) {
	idStr := c.Param("partyId")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		ErrorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid party id")
		return 0, false
	}
	return uint(id), true
}
