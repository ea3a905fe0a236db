package http

import (
	"github.com/gin-gonic/gin"

	"askcorpus/internal/bootstrap"
	"askcorpus/internal/transport/http/handler"
	"askcorpus/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	authHandler := handler.NewAuthHandler(app.AuthService)
	sessionHandler := handler.NewSessionHandler(app.Conversations)
	documentHandler := handler.NewDocumentHandler(app.Ingest)
	queryHandler := handler.NewQueryHandler(app.Queries)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	authed := v1.Group("")
	authed.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))

	authed.POST("/sessions", sessionHandler.Create)
	authed.GET("/sessions", sessionHandler.List)
	authed.DELETE("/sessions/:id", sessionHandler.Delete)
	authed.GET("/sessions/:id/history", sessionHandler.History)

	authed.POST("/documents", documentHandler.Upload)
	authed.GET("/documents", documentHandler.List)
	authed.GET("/documents/:id", documentHandler.Get)
	authed.DELETE("/documents/:id", documentHandler.Delete)

	authed.POST("/query", queryHandler.Ask)
	authed.POST("/query/tasks/:id/cancel", queryHandler.Cancel)

	return router
}
