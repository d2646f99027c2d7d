package wire

import (
	"Taleweave/internal/api"
	"Taleweave/internal/api/config"
	"Taleweave/internal/api/handler"
	"Taleweave/internal/job"
	"Taleweave/internal/pkg/cron"
	"Taleweave/internal/pkg/kafka"
	imongo "Taleweave/internal/pkg/mongo"
	"Taleweave/internal/pkg/ws"
	"Taleweave/internal/repository"
	"Taleweave/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router       *gin.Engine
	DB           *gorm.DB
	Hub          *ws.Hub
	KafkaManager *kafka.ConsumerManager
	CronMgr      *cron.Manager

	ChatRepo         imongo.ChatRepo
	MessageRepo      imongo.MessageRepo
	NotificationRepo imongo.NotificationRepo
}

func BuildApplication(db *gorm.DB, mongoDB *mongo.Database, cfg *config.Config) (*ApplicationContainer, error) {
	userRepo := repository.NewUserRepo(db)
	chatRepo := imongo.NewChatRepo(mongoDB)
	messageRepo := imongo.NewMessageRepo(mongoDB)
	notificationRepo := imongo.NewNotificationRepo(mongoDB)

	bus := ws.NewRedisBus()
	hub := ws.NewHub(bus, service.NewUserStatusWriter(userRepo))

	chatService := service.NewChatService(chatRepo, messageRepo, userRepo, hub)
	notificationService := service.NewNotificationService(notificationRepo, userRepo, hub)

	imAdapter := service.NewIMEventAdapter(chatService)
	imAdapter.BindHub(hub)

	handlers := &api.HandlersGroup{
		WSHandler:           handler.NewWsHandler(hub, imAdapter),
		ChatHandler:         handler.NewChatHandler(chatService),
		NotificationHandler: handler.NewNotificationHandler(notificationService),
	}

	router := api.SetupRouter(handlers)

	kafkaMgr, err := kafka.NewConsumerManager(cfg, notificationService)
	if err != nil {
		return nil, err
	}

	cronMgr := cron.NewCronManager(
		job.NewNotificationCleanJob(notificationRepo),
		job.NewChatRollupJob(chatRepo, messageRepo),
	)

	return &ApplicationContainer{
		Router:           router,
		DB:               db,
		Hub:              hub,
		KafkaManager:     kafkaMgr,
		CronMgr:          cronMgr,
		ChatRepo:         chatRepo,
		MessageRepo:      messageRepo,
		NotificationRepo: notificationRepo,
	}, nil
}
