// Package handlers exposes the verification pipeline over HTTP.
package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"proof-verify-pipeline/pipeline"
	"proof-verify-pipeline/reviewstore"
)

// Handlers represents the HTTP handlers
type Handlers struct {
	pipe    *pipeline.Pipeline
	reviews *reviewstore.ReviewStore
}

// NewHandlers creates new HTTP handlers. reviews may be nil when the review
// database is not configured.
func NewHandlers(pipe *pipeline.Pipeline, reviews *reviewstore.ReviewStore) *Handlers {
	return &Handlers{pipe: pipe, reviews: reviews}
}

// RegisterRoutes wires all endpoints onto the router.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.HealthCheck)

	api := router.Group("/api/v3")
	{
		api.POST("/complaints", h.IngestComplaint)
		api.POST("/proofs", h.IngestProof)
		api.POST("/proofs/:proof_id/verify", h.VerifyProof)
		api.GET("/audits/:audit_id", h.GetAudit)
		api.GET("/reviews", h.ListReviews)
		api.POST("/reviews/:proof_id/decision", h.RecordDecision)
		api.GET("/stats", h.GetStats)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "proof-verify-pipeline",
	})
}

type complaintRequest struct {
	ComplaintID string  `json:"complaint_id" binding:"required"`
	ImageB64    string  `json:"image_b64" binding:"required"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timestamp   string  `json:"timestamp" binding:"required"`
	IssueType   string  `json:"issue_type"`
}

// IngestComplaint stores before-state evidence
func (h *Handlers) IngestComplaint(c *gin.Context) {
	var req complaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageB64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_b64 is not valid base64"})
		return
	}
	res, err := h.pipe.IngestComplaint(c.Request.Context(), pipeline.ComplaintInput{
		ComplaintID: req.ComplaintID,
		Image:       image,
		Lat:         req.Lat,
		Lon:         req.Lon,
		Timestamp:   req.Timestamp,
		IssueType:   req.IssueType,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type proofRequest struct {
	ProofID     string  `json:"proof_id" binding:"required"`
	ComplaintID string  `json:"complaint_id" binding:"required"`
	WorkerID    string  `json:"worker_id"`
	ImageB64    string  `json:"image_b64" binding:"required"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timestamp   string  `json:"timestamp" binding:"required"`
}

// IngestProof stores after-state evidence
func (h *Handlers) IngestProof(c *gin.Context) {
	var req proofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageB64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_b64 is not valid base64"})
		return
	}
	res, err := h.pipe.IngestProof(c.Request.Context(), pipeline.ProofInput{
		ProofID:     req.ProofID,
		ComplaintID: req.ComplaintID,
		WorkerID:    req.WorkerID,
		Image:       image,
		Lat:         req.Lat,
		Lon:         req.Lon,
		Timestamp:   req.Timestamp,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// VerifyProof runs the decision procedure for an ingested proof
func (h *Handlers) VerifyProof(c *gin.Context) {
	report, err := h.pipe.VerifyProof(c.Request.Context(), c.Param("proof_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetAudit returns a stored verification report by audit id
func (h *Handlers) GetAudit(c *gin.Context) {
	report, err := h.pipe.FetchAudit(c.Request.Context(), c.Param("audit_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListReviews returns pending review-queue entries
func (h *Handlers) ListReviews(c *gin.Context) {
	if h.reviews == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "review database not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	reviews, err := h.reviews.Pending(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reviews"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews, "count": len(reviews)})
}

type decisionRequest struct {
	ReviewerID string `json:"reviewer_id" binding:"required"`
	Decision   string `json:"decision" binding:"required"`
	Notes      string `json:"notes"`
}

// RecordDecision stores a reviewer's decision for a queued proof
func (h *Handlers) RecordDecision(c *gin.Context) {
	if h.reviews == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "review database not configured"})
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.reviews.RecordDecision(c.Request.Context(),
		c.Param("proof_id"), req.ReviewerID, req.Decision, req.Notes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

// GetStats returns review-queue statistics
func (h *Handlers) GetStats(c *gin.Context) {
	if h.reviews == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "review database not configured"})
		return
	}
	stats, err := h.reviews.QueueStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"review_queue": stats,
		"service":      "proof-verify-pipeline",
	})
}

func (h *Handlers) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pipeline.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, pipeline.ErrProofNotFound),
		errors.Is(err, pipeline.ErrComplaintNotFound),
		errors.Is(err, pipeline.ErrAuditNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
