package httpapi

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"sudooom.estate.chat/internal/auth"
	apperrors "sudooom.estate.chat/internal/errors"
	"sudooom.estate.chat/internal/model"
	"sudooom.estate.chat/internal/push"
	"sudooom.estate.chat/internal/repository"
	"sudooom.estate.chat/pkg/response"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// API REST 接口：推送订阅管理 + 会话/消息读取
// 实时核心之外的薄查询层
type API struct {
	dispatcher *push.Dispatcher
	convs      *repository.ConversationRepository
	msgs       *repository.MessageRepository
	logger     *slog.Logger
}

// NewAPI 创建 REST 接口
func NewAPI(dispatcher *push.Dispatcher, convs *repository.ConversationRepository, msgs *repository.MessageRepository) *API {
	return &API{
		dispatcher: dispatcher,
		convs:      convs,
		msgs:       msgs,
		logger:     slog.Default(),
	}
}

// Register 挂载路由
func (a *API) Register(r *gin.Engine, verifier *auth.Verifier) {
	api := r.Group("/api", AuthMiddleware(verifier))
	{
		api.POST("/push/subscriptions", a.subscribe)
		api.DELETE("/push/subscriptions", a.unsubscribe)
		api.GET("/conversations", a.listConversations)
		api.GET("/conversations/:id/messages", a.listMessages)
	}
}

// subscribeReq 订阅请求体
type subscribeReq struct {
	Endpoint string                 `json:"endpoint" binding:"required"`
	Keys     model.SubscriptionKeys `json:"keys" binding:"required"`
}

// subscribe 注册推送端点
func (a *API) subscribe(c *gin.Context) {
	var req subscribeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.ErrInvalidParams.Wrap(err))
		return
	}
	if req.Keys.P256dh == "" || req.Keys.Auth == "" {
		response.Error(c, apperrors.ErrInvalidParams)
		return
	}

	identity := identityFrom(c)
	sub, err := a.dispatcher.Subscribe(c.Request.Context(), identity.ID, req.Endpoint, req.Keys)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, sub)
}

// unsubscribeReq 退订请求体
type unsubscribeReq struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// unsubscribe 删除推送端点
func (a *API) unsubscribe(c *gin.Context) {
	var req unsubscribeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.ErrInvalidParams.Wrap(err))
		return
	}

	identity := identityFrom(c)
	if err := a.dispatcher.Unsubscribe(c.Request.Context(), identity.ID, req.Endpoint); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

// listConversations 获取当前用户的会话列表（含未读数）
func (a *API) listConversations(c *gin.Context) {
	identity := identityFrom(c)

	conversations, err := a.convs.ListByParticipant(c.Request.Context(), identity.ID)
	if err != nil {
		a.logger.Error("Failed to list conversations", "user_id", identity.ID, "error", err)
		response.Error(c, apperrors.ErrDBError.Wrap(err))
		return
	}

	response.Success(c, conversations)
}

// listMessages 分页获取会话历史消息，仅参与者可读
func (a *API) listMessages(c *gin.Context) {
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, apperrors.ErrInvalidParams)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	identity := identityFrom(c)
	if _, err := a.convs.GetForParticipant(c.Request.Context(), identity.ID, conversationID); err != nil {
		switch {
		case errors.Is(err, repository.ErrConversationNotFound):
			response.Error(c, apperrors.ErrConversationNotFound)
		case errors.Is(err, repository.ErrNotParticipant):
			response.Error(c, apperrors.ErrNotParticipant)
		default:
			response.Error(c, apperrors.ErrDBError.Wrap(err))
		}
		return
	}

	messages, err := a.msgs.ListByConversation(c.Request.Context(), conversationID, limit, offset)
	if err != nil {
		response.Error(c, apperrors.ErrDBError.Wrap(err))
		return
	}

	response.Success(c, messages)
}
