package handler

import (
	"github.com/dafibh/loansync/internal/middleware"
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(e *echo.Echo, sessions middleware.SessionResolver, rateLimiter *middleware.RateLimiter, authHandler *AuthHandler, loanHandler *LoanHandler, wsHandler *WebSocketHandler) {
	requireSession := middleware.RequireSession(sessions)
	rateLimit := middleware.RateLimitMiddleware(rateLimiter)

	// Sign in (public)
	e.GET("/api/login", authHandler.Login, rateLimit)
	e.GET("/api/login-callback", authHandler.Callback, rateLimit)

	// Session exchange
	sessionGroup := e.Group("/api/session")
	sessionGroup.Use(rateLimit)
	sessionGroup.POST("", authHandler.CreateSession)
	sessionGroup.GET("", authHandler.GetSession, requireSession)
	sessionGroup.DELETE("", authHandler.DeleteSession)

	// API version 1
	api := e.Group("/api/v1")
	api.Use(rateLimit)

	// Schedule preview (public, pure calculation)
	api.POST("/schedule", loanHandler.PreviewSchedule)

	// Loan record routes (protected)
	records := api.Group("/records")
	records.Use(requireSession)
	records.GET("", loanHandler.ListRecords)
	records.POST("", loanHandler.CreateRecord)
	records.GET("/:fileId", loanHandler.GetRecord)
	records.PATCH("/:fileId", loanHandler.RenameRecord)
	records.GET("/:fileId/previous", loanHandler.PreviousRecord)
	records.PUT("/:fileId/terms", loanHandler.Calculate)
	records.POST("/:fileId/payments", loanHandler.MakePayment)
	records.DELETE("/:fileId/payments/last", loanHandler.UndoPayment)
	records.POST("/:fileId/edit", loanHandler.BeginEdit)
	records.DELETE("/:fileId/edit", loanHandler.CancelEdit)
	records.POST("/:fileId/edit/commit", loanHandler.CommitEdit)
	records.POST("/:fileId/edit/save", loanHandler.SaveEdit)
	records.POST("/:fileId/save", loanHandler.SaveRecord)
	records.PUT("/:fileId/auto-sync", loanHandler.SetAutoSync)
	records.POST("/:fileId/flush", loanHandler.Flush)
	records.DELETE("/:fileId/view", loanHandler.CloseView)

	// Event push
	e.GET("/ws", wsHandler.HandleWS)
}
