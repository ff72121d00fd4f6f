package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	ingestionapp "github.com/reviewsync/backend/internal/application/ingestion"
	"github.com/reviewsync/backend/internal/domain/ingestion"
	"github.com/reviewsync/backend/internal/interfaces/http/dto"
)

// JobAPI is the application surface the fetch handler depends on.
type JobAPI interface {
	Submit(ctx context.Context, in ingestionapp.SubmitJobInput) (*ingestion.FetchJob, bool, error)
	Cancel(ctx context.Context, jobID uuid.UUID) (*ingestion.FetchJob, error)
	Status(ctx context.Context, jobID uuid.UUID) (*ingestionapp.JobStatusView, error)
	Items(ctx context.Context, jobID uuid.UUID) ([]*ingestion.ItemFetchResult, error)
	ListBySeller(ctx context.Context, sellerID string, limit, offset int, orderBy, orderDir string) ([]*ingestion.FetchJob, int64, error)
}

// FetchHandler exposes review fetch job submission and tracking
type FetchHandler struct {
	BaseHandler
	jobs JobAPI
}

// NewFetchHandler creates a new FetchHandler
func NewFetchHandler(jobs JobAPI) *FetchHandler {
	return &FetchHandler{jobs: jobs}
}

// RegisterRoutes registers fetch and job routes
func (h *FetchHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/fetch/reviews", h.SubmitFetch)

	jobs := rg.Group("/jobs")
	jobs.GET("/:id/status", h.GetJobStatus)
	jobs.GET("/:id/items", h.GetJobItems)
	jobs.POST("/:id/cancel", h.CancelJob)

	rg.GET("/sellers/:id/jobs", h.ListSellerJobs)
}

// SubmitFetch accepts a review fetch request and enqueues it
func (h *FetchHandler) SubmitFetch(c *gin.Context) {
	var req dto.SubmitFetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, dto.GetHTTPStatus(dto.ErrCodeValidation), dto.ErrCodeValidation, err.Error())
		return
	}

	// Header takes precedence over the body field
	idempotencyKey := c.GetHeader("Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = req.IdempotencyKey
	}

	job, created, err := h.jobs.Submit(c.Request.Context(), ingestionapp.SubmitJobInput{
		SellerID:       req.SellerID,
		ItemIDs:        req.ItemIDs,
		RequestedBy:    req.RequestedBy,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	resp := dto.JobAcceptedResponse{
		JobID:    job.ID.String(),
		Status:   job.Status.String(),
		Existing: !created,
	}
	if !created {
		h.Success(c, resp)
		return
	}
	h.Accepted(c, resp)
}

// GetJobStatus returns a job with its aggregated object keys
func (h *FetchHandler) GetJobStatus(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	view, err := h.jobs.Status(c.Request.Context(), jobID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, dto.JobStatusResponse{
		JobResponse:   dto.NewJobResponse(view.Job),
		RawKeys:       view.RawKeys,
		ProcessedKeys: view.ProcessedKeys,
	})
}

// GetJobItems returns the per-item outcomes of a job
func (h *FetchHandler) GetJobItems(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	rows, err := h.jobs.Items(c.Request.Context(), jobID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	out := make([]dto.ItemResultResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, dto.NewItemResultResponse(row))
	}
	h.Success(c, out)
}

// CancelJob cancels a pending or running job
func (h *FetchHandler) CancelJob(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	job, err := h.jobs.Cancel(c.Request.Context(), jobID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, dto.NewJobResponse(job))
}

// ListSellerJobs lists a seller's jobs, newest first
func (h *FetchHandler) ListSellerJobs(c *gin.Context) {
	sellerID := c.Param("id")
	if sellerID == "" {
		h.BadRequest(c, "seller id is required")
		return
	}

	var page dto.ListRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		h.Error(c, dto.GetHTTPStatus(dto.ErrCodeValidation), dto.ErrCodeValidation, err.Error())
		return
	}
	page.Normalize()

	jobs, total, err := h.jobs.ListBySeller(c.Request.Context(), sellerID, page.PageSize, page.Offset(), page.OrderBy, page.Order)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	out := make([]dto.JobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, dto.NewJobResponse(job))
	}
	h.SuccessWithMeta(c, out, total, page.Page, page.PageSize)
}

// jobID parses the :id path parameter, responding with 400 on bad input.
func (h *FetchHandler) jobID(c *gin.Context) (uuid.UUID, bool) {
	var req dto.JobIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "invalid job id")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		h.BadRequest(c, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}
