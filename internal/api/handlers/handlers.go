// Package handlers exposes the engine operations over HTTP.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ledgerly/ledgerly/internal/aggregate"
	"github.com/ledgerly/ledgerly/internal/api/middleware"
	"github.com/ledgerly/ledgerly/internal/budget"
	"github.com/ledgerly/ledgerly/internal/domain"
	"github.com/ledgerly/ledgerly/internal/fx"
	"github.com/ledgerly/ledgerly/internal/insight"
	"github.com/ledgerly/ledgerly/internal/jobs"
	"github.com/ledgerly/ledgerly/internal/ledger"
	"github.com/ledgerly/ledgerly/internal/reconcile"
	"github.com/ledgerly/ledgerly/internal/rules"
	"github.com/ledgerly/ledgerly/internal/subscription"
)

// Engines bundles everything the HTTP layer dispatches to.
type Engines struct {
	FX            *fx.Service
	Rules         *rules.Engine
	Reconciler    *reconcile.Engine
	Aggregator    *aggregate.Engine
	Budgets       *budget.Calculator
	Insights      *insight.Engine
	Subscriptions *subscription.Generator
	Ledger        *ledger.Service
	Publisher     jobs.Publisher
	JobStore      jobs.JobStore
}

// Handler serves the engine operation surface.
type Handler struct {
	e Engines
}

func New(e Engines) *Handler {
	return &Handler{e: e}
}

// writeError maps domain failures onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case domain.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Convert handles POST /api/v1/fx/convert.
func (h *Handler) Convert(c *gin.Context) {
	var req struct {
		Amount decimal.Decimal `json:"amount" binding:"required"`
		From   string          `json:"from" binding:"required"`
		To     string          `json:"to" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	result := h.e.FX.Convert(c.Request.Context(), req.Amount, req.From, req.To)
	c.JSON(http.StatusOK, gin.H{"amount": result, "currency": req.To})
}

// BatchConvert handles POST /api/v1/fx/batch-convert.
func (h *Handler) BatchConvert(c *gin.Context) {
	var req struct {
		Items []struct {
			Value    decimal.Decimal `json:"value"`
			Currency string          `json:"currency"`
		} `json:"items" binding:"required"`
		Target string `json:"target" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	amounts := make([]fx.Amount, len(req.Items))
	for i, item := range req.Items {
		amounts[i] = fx.Amount{Value: item.Value, Currency: item.Currency}
	}
	results := h.e.FX.BatchConvert(c.Request.Context(), amounts, req.Target)
	c.JSON(http.StatusOK, gin.H{"amounts": results, "currency": req.Target})
}

// TestRules handles POST /api/v1/ledgers/:ledgerID/rules/test.
func (h *Handler) TestRules(c *gin.Context) {
	h.evaluateRules(c, rules.ModeTest)
}

// ApplyRules handles POST /api/v1/ledgers/:ledgerID/rules/apply.
func (h *Handler) ApplyRules(c *gin.Context) {
	h.evaluateRules(c, rules.ModeApply)
}

func (h *Handler) evaluateRules(c *gin.Context, mode rules.Mode) {
	var req struct {
		LookbackDays int `json:"lookback_days"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
	}
	result, err := h.e.Rules.Evaluate(c.Request.Context(), middleware.ActorFrom(c), c.Param("ledgerID"), req.LookbackDays, mode)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ReconcileAccount handles POST /api/v1/ledgers/:ledgerID/accounts/:accountID/reconcile.
func (h *Handler) ReconcileAccount(c *gin.Context) {
	var req struct {
		StatementBalance decimal.Decimal `json:"statement_balance" binding:"required"`
		SnapshotDate     string          `json:"snapshot_date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	snapshotDate, err := time.Parse("2006-01-02", req.SnapshotDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "snapshot_date must be YYYY-MM-DD"})
		return
	}
	result, err := h.e.Reconciler.Reconcile(c.Request.Context(), middleware.ActorFrom(c), c.Param("ledgerID"), c.Param("accountID"), snapshotDate, req.StatementBalance)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AggregateSummaries handles POST /api/v1/ledgers/:ledgerID/summaries/aggregate.
func (h *Handler) AggregateSummaries(c *gin.Context) {
	var req struct {
		Month          string `json:"month" binding:"required"`
		BackfillMonths int    `json:"backfill_months"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	month, err := domain.ParseYearMonth(req.Month)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "month must be YYYY-MM"})
		return
	}
	results, err := h.e.Aggregator.Aggregate(c.Request.Context(), middleware.ActorFrom(c), c.Param("ledgerID"), month, req.BackfillMonths)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": results, "count": len(results)})
}

// BudgetSpent handles GET /api/v1/ledgers/:ledgerID/budgets/:budgetID/spent.
func (h *Handler) BudgetSpent(c *gin.Context) {
	spent, err := h.e.Budgets.Spent(c.Request.Context(), c.Param("ledgerID"), c.Param("budgetID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"spent": spent})
}

// BudgetStatus handles GET /api/v1/ledgers/:ledgerID/budgets/:budgetID/status.
func (h *Handler) BudgetStatus(c *gin.Context) {
	status, err := h.e.Budgets.Status(c.Request.Context(), c.Param("ledgerID"), c.Param("budgetID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GenerateInsights handles POST /api/v1/ledgers/:ledgerID/insights/generate.
func (h *Handler) GenerateInsights(c *gin.Context) {
	var req struct {
		Month string `json:"month" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	month, err := domain.ParseYearMonth(req.Month)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "month must be YYYY-MM"})
		return
	}
	result, err := h.e.Insights.Generate(c.Request.Context(), middleware.ActorFrom(c), c.Param("ledgerID"), month)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GenerateSubscriptionInstances handles POST /api/v1/ledgers/:ledgerID/subscriptions/generate.
func (h *Handler) GenerateSubscriptionInstances(c *gin.Context) {
	var req struct {
		HorizonDays int `json:"horizon_days"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
	}
	result, err := h.e.Subscriptions.Generate(c.Request.Context(), middleware.ActorFrom(c), c.Param("ledgerID"), req.HorizonDays)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateTransfer handles POST /api/v1/ledgers/:ledgerID/transfers.
func (h *Handler) CreateTransfer(c *gin.Context) {
	var req struct {
		FromAccountID string          `json:"from_account_id" binding:"required"`
		ToAccountID   string          `json:"to_account_id" binding:"required"`
		Amount        decimal.Decimal `json:"amount" binding:"required"`
		CurrencyCode  string          `json:"currency_code" binding:"required"`
		Date          string          `json:"date" binding:"required"`
		Description   string          `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	out, in, err := h.e.Ledger.CreateTransfer(c.Request.Context(), middleware.ActorFrom(c), c.Param("ledgerID"), ledger.TransferInput{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		CurrencyCode:  req.CurrencyCode,
		Date:          date,
		Description:   req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"from": out, "to": in})
}

// CreateRefund handles POST /api/v1/ledgers/:ledgerID/refunds.
func (h *Handler) CreateRefund(c *gin.Context) {
	var req struct {
		OriginalTxnID string          `json:"original_txn_id" binding:"required"`
		AccountID     string          `json:"account_id" binding:"required"`
		Amount        decimal.Decimal `json:"amount" binding:"required"`
		CurrencyCode  string          `json:"currency_code" binding:"required"`
		Date          string          `json:"date" binding:"required"`
		Description   string          `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	refund, err := h.e.Ledger.CreateRefund(c.Request.Context(), middleware.ActorFrom(c), c.Param("ledgerID"), req.OriginalTxnID, ledger.RefundInput{
		AccountID:    req.AccountID,
		Amount:       req.Amount,
		CurrencyCode: req.CurrencyCode,
		Date:         date,
		Description:  req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, refund)
}

// EnqueueRecompute handles POST /api/v1/ledgers/:ledgerID/jobs. The job runs
// asynchronously on the worker; the response carries the job id for polling.
func (h *Handler) EnqueueRecompute(c *gin.Context) {
	var req struct {
		Type           string `json:"type" binding:"required"`
		Month          string `json:"month"`
		BackfillMonths int    `json:"backfill_months"`
		HorizonDays    int    `json:"horizon_days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	jobType := jobs.JobType(req.Type)
	switch jobType {
	case jobs.JobTypeAggregateSummaries, jobs.JobTypeGenerateInsights, jobs.JobTypeGenerateSubscriptions:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown job type: " + req.Type})
		return
	}
	if req.Month != "" {
		if _, err := domain.ParseYearMonth(req.Month); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "month must be YYYY-MM"})
			return
		}
	}

	job := &jobs.RecomputeJob{
		Type:           jobType,
		LedgerID:       c.Param("ledgerID"),
		ActorID:        middleware.ActorFrom(c).UserID,
		Month:          req.Month,
		BackfillMonths: req.BackfillMonths,
		HorizonDays:    req.HorizonDays,
	}
	if err := h.e.Publisher.Publish(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.JobID, "status": job.Status})
}

// GetJob handles GET /api/v1/ledgers/:ledgerID/jobs/:jobID.
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.e.JobStore.GetJob(c.Request.Context(), c.Param("jobID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if job.LedgerID != c.Param("ledgerID") {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
