package api

import (
	"Taleweave/internal/api/middleware"
	"Taleweave/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		imGroup := apiGroup.Group("/im")
		{
			imGroup.GET("", group.WSHandler.Connect)

			authGroup := imGroup.Group("")
			authGroup.Use(middleware.AuthMiddleware())
			{
				authGroup.GET("/chats", group.ChatHandler.GetChatList)
				authGroup.POST("/chats/private", group.ChatHandler.CreatePrivateChat)
				authGroup.POST("/chats/group", group.ChatHandler.CreateGroupChat)
				authGroup.DELETE("/chats/:chat_id", group.ChatHandler.DeleteChat)
				authGroup.POST("/chats/:chat_id/leave", group.ChatHandler.LeaveChat)
				authGroup.GET("/chats/:chat_id/messages", group.ChatHandler.GetChatHistory)
				authGroup.POST("/chats/:chat_id/messages", group.ChatHandler.SendMessage)
				authGroup.POST("/chats/:chat_id/read", group.ChatHandler.MarkRead)

				authGroup.PUT("/messages/:message_id", group.ChatHandler.EditMessage)
				authGroup.DELETE("/messages/:message_id", group.ChatHandler.DeleteMessage)
				authGroup.POST("/messages/:message_id/reactions", group.ChatHandler.AddReaction)
				authGroup.DELETE("/messages/:message_id/reactions", group.ChatHandler.RemoveReaction)
			}
		}

		notificationGroup := apiGroup.Group("/notifications")
		notificationGroup.Use(middleware.AuthMiddleware())
		{
			notificationGroup.GET("/list", group.NotificationHandler.GetNotificationList)
			notificationGroup.GET("/unread", group.NotificationHandler.GetUnreadCount)
			notificationGroup.POST("/read", group.NotificationHandler.MarkRead)
			notificationGroup.POST("/read/all", group.NotificationHandler.MarkAllRead)
		}
	}

	return r
}
