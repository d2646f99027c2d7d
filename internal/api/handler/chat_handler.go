package handler

import (
	"Taleweave/internal/api/dto"
	"Taleweave/internal/pkg/response"
	"Taleweave/internal/service"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService service.ChatService
}

func NewChatHandler(s service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: s,
	}
}

// CreatePrivateChat 获取或创建单聊
func (h *ChatHandler) CreatePrivateChat(c *gin.Context) {
	var req dto.CreatePrivateChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("userID")
	chat, err := h.chatService.GetOrCreatePrivateChat(c.Request.Context(), userID, req.PeerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, chat)
}

// CreateGroupChat 创建群聊
func (h *ChatHandler) CreateGroupChat(c *gin.Context) {
	var req dto.CreateGroupChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	userID := c.GetUint64("userID")
	chat, err := h.chatService.CreateGroupChat(c.Request.Context(), userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, chat)
}

// GetChatList 获取会话列表
func (h *ChatHandler) GetChatList(c *gin.Context) {
	var page dto.PageReq
	if err := c.ShouldBindQuery(&page); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	page.Normalize(20, 100)

	userID := c.GetUint64("userID")
	list, err := h.chatService.GetChatList(c.Request.Context(), userID, page.Limit, page.Offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, list)
}

// GetChatHistory 获取历史消息
func (h *ChatHandler) GetChatHistory(c *gin.Context) {
	var page dto.PageReq
	if err := c.ShouldBindQuery(&page); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	page.Normalize(50, 200)

	userID := c.GetUint64("userID")
	messages, err := h.chatService.GetChatHistory(c.Request.Context(), userID, c.Param("chat_id"), page.Limit, page.Offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, messages)
}

// SendMessage HTTP 方式发消息，和 WS 入口走同一条接入管道
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("userID")
	msg, err := h.chatService.SendMessage(c.Request.Context(), userID, c.Param("chat_id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, msg)
}

// EditMessage 编辑消息
func (h *ChatHandler) EditMessage(c *gin.Context) {
	var req dto.EditMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("userID")
	msg, err := h.chatService.EditMessage(c.Request.Context(), userID, c.Param("message_id"), req.Content)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, msg)
}

// DeleteMessage 删除消息
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	userID := c.GetUint64("userID")
	err := h.chatService.DeleteMessage(c.Request.Context(), userID, c.Param("message_id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

// AddReaction 添加表情回应
func (h *ChatHandler) AddReaction(c *gin.Context) {
	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("userID")
	err := h.chatService.AddReaction(c.Request.Context(), userID, c.Param("message_id"), req.Emoji)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

// RemoveReaction 移除表情回应
func (h *ChatHandler) RemoveReaction(c *gin.Context) {
	emoji := c.Query("emoji")
	if emoji == "" {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("userID")
	err := h.chatService.RemoveReaction(c.Request.Context(), userID, c.Param("message_id"), emoji)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

// MarkRead 会话内全部标记已读
func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID := c.GetUint64("userID")
	err := h.chatService.MarkMessagesRead(c.Request.Context(), userID, c.Param("chat_id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

// LeaveChat 退出群聊
func (h *ChatHandler) LeaveChat(c *gin.Context) {
	userID := c.GetUint64("userID")
	err := h.chatService.LeaveGroupChat(c.Request.Context(), userID, c.Param("chat_id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

// DeleteChat 删除会话
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	userID := c.GetUint64("userID")
	err := h.chatService.DeleteChat(c.Request.Context(), userID, c.Param("chat_id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}
