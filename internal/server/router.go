package server

import (
	"time"

	"convo-server/internal/auth"
	"convo-server/internal/handler"
	"convo-server/internal/middleware"
	"convo-server/internal/pubsub"
	"convo-server/internal/store"
	"github.com/gin-gonic/gin"
)

type Deps struct {
	Store       store.Store
	Broker      pubsub.Broker
	TokenConfig auth.TokenConfig
	CORSOrigin  string
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.CORS(deps.CORSOrigin))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	resolver := &middleware.Resolver{Store: deps.Store, TokenConfig: deps.TokenConfig}

	throttle := middleware.NewLoginThrottle(10, time.Minute)
	authHandler := &handler.AuthHandler{Store: deps.Store, TokenConfig: deps.TokenConfig, Throttle: throttle}

	r.POST("/v1/auth/register", middleware.Authenticate(resolver, middleware.Exempt), authHandler.Register)
	r.POST("/v1/auth/login", middleware.Authenticate(resolver, middleware.Exempt), authHandler.Login)

	chatHandler := &handler.ChatHandler{Store: deps.Store, Broker: deps.Broker}

	protected := r.Group("/v1")
	protected.Use(middleware.Authenticate(resolver, middleware.RequiresAuth))
	protected.GET("/conversations", chatHandler.List)
	protected.GET("/conversations/:id", chatHandler.Get)
	protected.POST("/conversations", chatHandler.StartConversation)
	protected.POST("/conversations/:id/messages", chatHandler.Send)

	wsHandler := &handler.WebSocketHandler{Resolver: resolver, Broker: deps.Broker}
	r.GET("/ws", wsHandler.Serve)

	return r
}
