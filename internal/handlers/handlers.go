package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/waste-report/internal/auth"
	"github.com/example/waste-report/internal/repository"
	"github.com/example/waste-report/internal/usecase"
)

// DefaultMaxUploadSize bounds request bodies on the image upload route when
// no other limit is configured.
const DefaultMaxUploadSize = 32 << 20

const maxReportsLimit = 100

// RecentReportsReader lists persisted reports.
type RecentReportsReader interface {
	GetRecentReports(ctx context.Context, limit int) ([]repository.Report, error)
}

// RewardsReader lists the rewards a user can redeem.
type RewardsReader interface {
	GetAvailableRewards(ctx context.Context, userID uint) ([]repository.AvailableReward, error)
}

// Deps are the collaborators the routes are served from.
type Deps struct {
	Registry       *usecase.Registry
	Impact         *usecase.ImpactService
	Reports        RecentReportsReader
	Rewards        RewardsReader
	Logger         *zap.Logger
	MaxUploadBytes int64
}

type handler struct {
	Deps
	logger *zap.Logger
}

type draftRequest struct {
	Location *string `json:"location"`
	Type     *string `json:"type"`
	Amount   *string `json:"amount"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Everything under
// /report and /reports requires authMiddleware to have run.
func RegisterRoutes(router *gin.Engine, deps Deps, authMiddleware gin.HandlerFunc) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = DefaultMaxUploadSize
	}
	h := &handler{Deps: deps, logger: deps.Logger.Named("handlers")}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/impact", h.impact)

	authed := router.Group("/", authMiddleware)
	authed.GET("/me", h.me)
	authed.GET("/rewards", h.rewards)
	authed.GET("/reports", h.recentReports)
	authed.GET("/report", h.snapshot)
	authed.DELETE("/report", h.discard)
	authed.POST("/report/image", h.selectImage)
	authed.PATCH("/report/draft", h.updateDraft)
	authed.POST("/report/verify", h.verify)
	authed.POST("/report/submit", h.submit)
}

func (h *handler) impact(c *gin.Context) {
	c.JSON(http.StatusOK, h.Impact.Summary(c.Request.Context()))
}

func (h *handler) recentReports(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxReportsLimit)
	}

	reports, err := h.Reports.GetRecentReports(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list reports", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load reports. Please try again."})
		return
	}
	views := make([]usecase.ReportView, 0, len(reports))
	for _, r := range reports {
		views = append(views, usecase.NewReportView(r))
	}
	c.JSON(http.StatusOK, gin.H{"reports": views})
}

func (h *handler) me(c *gin.Context) {
	w, ok := h.workflow(c)
	if !ok {
		return
	}
	id, _ := auth.GetIdentity(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"email": w.Email(), "role": id.Role, "userId": w.UserID()})
}

func (h *handler) rewards(c *gin.Context) {
	w, ok := h.workflow(c)
	if !ok {
		return
	}
	rewards, err := h.Rewards.GetAvailableRewards(c.Request.Context(), w.UserID())
	if err != nil {
		h.logger.Error("failed to list rewards", zap.Error(err), zap.Uint("user_id", w.UserID()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load rewards. Please try again."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rewards": rewards})
}

func (h *handler) snapshot(c *gin.Context) {
	w, ok := h.workflow(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, w.Snapshot())
}

func (h *handler) discard(c *gin.Context) {
	h.Registry.Discard(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h *handler) selectImage(c *gin.Context) {
	w, ok := h.workflow(c)
	if !ok {
		return
	}

	if c.Request.ContentLength > h.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": usecase.MsgImageTooLarge})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	file, err := c.FormFile("image")
	if err != nil {
		if isBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": usecase.MsgImageTooLarge})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return
	}

	snap, err := w.SelectImage(c.Request.Context(), usecase.UploadedImage{
		Filename: file.Filename,
		MIMEType: declaredType(file.Header.Get("Content-Type"), data),
		Data:     data,
	})
	if err != nil {
		h.reject(c, err, snap)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handler) updateDraft(c *gin.Context) {
	w, ok := h.workflow(c)
	if !ok {
		return
	}

	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Type != nil || req.Amount != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "waste type and amount are set by verification"})
		return
	}
	if req.Location == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location is required"})
		return
	}
	c.JSON(http.StatusOK, w.SetLocation(*req.Location))
}

func (h *handler) verify(c *gin.Context) {
	w, ok := h.workflow(c)
	if !ok {
		return
	}
	snap, err := w.Verify(c.Request.Context())
	if err != nil {
		h.reject(c, err, snap)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handler) submit(c *gin.Context) {
	w, ok := h.workflow(c)
	if !ok {
		return
	}

	var location *string
	if c.Request.ContentLength != 0 {
		var req draftRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Type != nil || req.Amount != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "waste type and amount are set by verification"})
			return
		}
		location = req.Location
	}

	var (
		snap usecase.Snapshot
		view *usecase.ReportView
		err  error
	)
	if location != nil {
		snap, view, err = w.SubmitWithLocation(c.Request.Context(), *location)
	} else {
		snap, view, err = w.Submit(c.Request.Context())
	}
	if err != nil {
		h.reject(c, err, snap)
		return
	}
	h.Impact.Invalidate(c.Request.Context())
	c.JSON(http.StatusCreated, gin.H{"report": view, "workflow": snap})
}

// workflow resolves the caller's workflow or writes the error response.
func (h *handler) workflow(c *gin.Context) (*usecase.Workflow, bool) {
	w, err := h.Registry.Get(c.Request.Context())
	if err == nil {
		return w, true
	}
	if errors.Is(err, usecase.ErrUnauthenticated) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": usecase.MsgUnauthenticated})
		return nil, false
	}
	h.logger.Error("failed to open report workflow", zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": usecase.MsgSomethingWentWrong})
	return nil, false
}

func (h *handler) reject(c *gin.Context, err error, snap usecase.Snapshot) {
	c.JSON(statusFor(err), gin.H{"error": usecase.UserMessage(err), "workflow": snap})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, usecase.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, usecase.ErrUnsupportedImageType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, usecase.ErrSubmitFailed):
		return http.StatusBadGateway
	case errors.Is(err, usecase.ErrNoImage),
		errors.Is(err, usecase.ErrImageNotReady),
		errors.Is(err, usecase.ErrVerifyInProgress),
		errors.Is(err, usecase.ErrSubmitInProgress),
		errors.Is(err, usecase.ErrVerifyAttemptsExhausted),
		errors.Is(err, usecase.ErrStaleVerification),
		errors.Is(err, usecase.ErrNotVerified),
		errors.Is(err, usecase.ErrNoWasteDetected):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large")
}

// declaredType prefers the MIME type sent with the file and sniffs the
// content when the client left it generic.
func declaredType(header string, data []byte) string {
	header = strings.TrimSpace(header)
	if header != "" && header != "application/octet-stream" {
		return header
	}
	return http.DetectContentType(data)
}
