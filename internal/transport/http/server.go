package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medtrak/internal/bootstrap"
	"medtrak/internal/model"
	"medtrak/internal/transport/http/handler"
	"medtrak/internal/transport/http/middleware"
	"medtrak/internal/transport/http/response"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = int64(app.Config.Storage.MaxUploadMB) << 20

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})))

	authHandler := handler.NewAuthHandler(app.Auth)
	recordHandler := handler.NewRecordHandler(app.Records)
	patientHandler := handler.NewPatientHandler(app.Auth, app.Records, app.Summary)
	dialogueHandler := handler.NewDialogueHandler(app.Sessions)

	authJWT := middleware.AuthJWT(app.Config.Auth.JWTSecret)
	mediaHandler := handler.NewMediaHandler(app.Store)
	router.GET("/media/*filepath", authJWT, mediaHandler.Serve)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", authJWT, authHandler.Me)

	patient := middleware.RequireRole(string(model.RolePatient))
	recordGroup := v1.Group("/records", authJWT, patient)
	recordGroup.GET("", recordHandler.List)
	recordGroup.POST("/text", recordHandler.CreateText)
	recordGroup.POST("/image", recordHandler.CreateImage)
	recordGroup.POST("/voice", recordHandler.CreateVoice)
	recordGroup.GET("/:id", recordHandler.Get)
	recordGroup.POST("/:id/followups/:index/response", recordHandler.AnswerFollowUp)
	recordGroup.GET("/:id/followups/stream", recordHandler.StreamFollowUps)

	dialogueGroup := v1.Group("/dialogue/sessions", authJWT, patient)
	dialogueGroup.POST("", dialogueHandler.Create)
	dialogueGroup.GET("/:id/messages", dialogueHandler.Messages)
	dialogueGroup.POST("/:id/messages", dialogueHandler.SendText)
	dialogueGroup.POST("/:id/images", dialogueHandler.SendImage)
	dialogueGroup.POST("/:id/voice", dialogueHandler.SendVoice)
	dialogueGroup.POST("/:id/mode", dialogueHandler.Mode)
	dialogueGroup.GET("/:id/events", dialogueHandler.Events)
	dialogueGroup.DELETE("/:id", dialogueHandler.Delete)

	provider := middleware.RequireRole(string(model.RoleProvider))
	patientGroup := v1.Group("/patients", authJWT, provider)
	patientGroup.GET("", patientHandler.List)
	patientGroup.GET("/:uid/records", patientHandler.Records)
	patientGroup.GET("/:uid/summary", patientHandler.Summary)

	router.NoRoute(func(c *gin.Context) {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "route not found")
	})
	return router
}
