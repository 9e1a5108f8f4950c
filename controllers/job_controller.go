package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"finproof/services/analysis"
	"finproof/services/jobs"

	"github.com/gin-gonic/gin"
)

// JobController handles analysis job requests
type JobController struct {
	store    *jobs.Store
	registry *analysis.Registry
}

// NewJobController creates a new job controller
func NewJobController(store *jobs.Store, registry *analysis.Registry) *JobController {
	return &JobController{store: store, registry: registry}
}

// SubmitJob queues a new analysis job
// POST /api/jobs
func (jc *JobController) SubmitJob(c *gin.Context) {
	var req struct {
		Symbol       string                 `json:"symbol" binding:"required"`
		AnalysisType string                 `json:"analysis_type" binding:"required"`
		Parameters   map[string]interface{} `json:"parameters"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := jc.store.Submit(req.Symbol, req.AnalysisType, req.Parameters)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrUnknownAnalysisType), errors.Is(err, jobs.ErrInvalidParameters):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit job"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": job})
}

// SubmitBatch queues one job per analysis type for a symbol
// POST /api/jobs/batch
func (jc *JobController) SubmitBatch(c *gin.Context) {
	var req struct {
		Symbol        string                 `json:"symbol" binding:"required"`
		AnalysisTypes []string               `json:"analysis_types" binding:"required"`
		Parameters    map[string]interface{} `json:"parameters"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := jc.store.SubmitBatch(req.Symbol, req.AnalysisTypes, req.Parameters)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrUnknownAnalysisType), errors.Is(err, jobs.ErrInvalidParameters):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit jobs"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": created, "count": len(created)})
}

// GetJob returns a job by id
// GET /api/jobs/:id
func (jc *JobController) GetJob(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job id"})
		return
	}

	job, err := jc.store.Get(id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch job"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": job})
}

// GetJobResult returns the persisted result of a completed job
// GET /api/jobs/:id/result
func (jc *JobController) GetJobResult(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job id"})
		return
	}

	result, err := jc.store.GetResult(id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Result not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch result"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ListJobs returns jobs newest-first, optionally filtered by status or symbol
// GET /api/jobs
func (jc *JobController) ListJobs(c *gin.Context) {
	status := c.Query("status")
	symbol := c.Query("symbol")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	var (
		list interface{}
		err  error
	)
	if symbol != "" {
		list, err = jc.store.ListForSymbol(symbol, limit)
	} else {
		list, err = jc.store.List(status, limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": list})
}

// CancelJob removes a pending job from the queue
// POST /api/jobs/:id/cancel
func (jc *JobController) CancelJob(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job id"})
		return
	}

	if err := jc.store.Cancel(id); err != nil {
		if errors.Is(err, jobs.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "Job is no longer pending"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel job"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Job cancelled"})
}

// GetStatistics returns job counts per status
// GET /api/jobs/statistics
func (jc *JobController) GetStatistics(c *gin.Context) {
	counts, err := jc.store.Counts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": counts})
}

// ListModules returns the available analysis modules
// GET /api/modules
func (jc *JobController) ListModules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": jc.registry.List()})
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
