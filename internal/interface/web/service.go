package web

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ArkLabsHQ/fastertasks/internal/core/application"
	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/pkg/monitor"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Application is the part of the application service the HTTP API exposes.
type Application interface {
	Ready() bool
	Workers() []monitor.TaskStatus
	Connect(ctx context.Context) (application.SessionInfo, error)
	Disconnect()
	Session() application.SessionInfo
	Tasks() application.TaskSnapshot
	Task(id uint64) (domain.Task, error)
	Refresh(ctx context.Context) (application.TaskSnapshot, error)
	CreateTask(ctx context.Context, maxParticipants uint64, amount *big.Int) (*domain.PendingTransaction, error)
	AllocateReward(ctx context.Context, taskID uint64, recipient string, amount *big.Int) (*domain.PendingTransaction, error)
	Withdraw(ctx context.Context) (*domain.PendingTransaction, error)
	VerifyTask(ctx context.Context, taskID uint64) (application.VerificationAck, error)
	Transactions() []domain.PendingTransaction
	SubscribeTransactions(ctx context.Context) <-chan domain.TxUpdate
	Price(ctx context.Context) application.PriceQuote
	Quote(ctx context.Context, rewardUSD decimal.Decimal) (application.FundingQuote, error)
}

type service struct {
	appSvc  Application
	network domain.Network
	version string
}

// NewService returns the JSON API consumed by the presentation layer.
func NewService(
	appSvc Application, network domain.Network, version string, sentryEnabled bool,
) http.Handler {
	gin.SetMode(gin.ReleaseMode)

	svc := &service{appSvc, network, version}

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(), MetricsMiddleware())
	if sentryEnabled {
		router.Use(SentryMiddleware())
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/v1/health", svc.health)

	v1 := router.Group("/v1")
	{
		v1.GET("/session", svc.getSession)
		v1.POST("/session/connect", svc.connect)
		v1.POST("/session/disconnect", svc.disconnect)
		v1.POST("/refresh", svc.refresh)

		v1.GET("/tasks", svc.listTasks)
		v1.POST("/tasks", svc.createTask)
		v1.GET("/tasks/:id", svc.getTask)
		v1.POST("/tasks/:id/allocate", svc.allocateReward)
		v1.POST("/tasks/:id/verify", svc.verifyTask)
		v1.POST("/withdraw", svc.withdraw)

		v1.GET("/transactions", svc.listTransactions)
		v1.GET("/transactions/events", svc.streamTransactions)
		v1.GET("/price", svc.getPrice)
		v1.GET("/quote", svc.getQuote)
	}

	return router
}
