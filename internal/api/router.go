// Package api assembles the HTTP surface: routes, middleware and handlers.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ledgerly/ledgerly/internal/api/handlers"
	"github.com/ledgerly/ledgerly/internal/api/middleware"
	"github.com/ledgerly/ledgerly/internal/store"
)

// NewRouter wires every operation route. mode is gin's run mode
// ("debug" or "release").
func NewRouter(mode string, log zerolog.Logger, members store.LedgerRepository, e handlers.Engines) *gin.Engine {
	gin.SetMode(mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS())

	h := handlers.New(e)
	r.GET("/healthz", h.Health)

	v1 := r.Group("/api/v1")
	{
		fxGroup := v1.Group("/fx")
		{
			fxGroup.POST("/convert", h.Convert)
			fxGroup.POST("/batch-convert", h.BatchConvert)
		}

		ledgerGroup := v1.Group("/ledgers/:ledgerID")
		ledgerGroup.Use(middleware.Actor(members))
		{
			ledgerGroup.POST("/rules/test", h.TestRules)
			ledgerGroup.POST("/rules/apply", h.ApplyRules)
			ledgerGroup.POST("/accounts/:accountID/reconcile", h.ReconcileAccount)
			ledgerGroup.POST("/summaries/aggregate", h.AggregateSummaries)
			ledgerGroup.GET("/budgets/:budgetID/spent", h.BudgetSpent)
			ledgerGroup.GET("/budgets/:budgetID/status", h.BudgetStatus)
			ledgerGroup.POST("/insights/generate", h.GenerateInsights)
			ledgerGroup.POST("/subscriptions/generate", h.GenerateSubscriptionInstances)
			ledgerGroup.POST("/transfers", h.CreateTransfer)
			ledgerGroup.POST("/refunds", h.CreateRefund)
			ledgerGroup.POST("/jobs", h.EnqueueRecompute)
			ledgerGroup.GET("/jobs/:jobID", h.GetJob)
		}
	}
	return r
}
