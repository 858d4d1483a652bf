package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openkala/callboard/internal/auth"
	"github.com/openkala/callboard/internal/db"
	"github.com/openkala/callboard/internal/discovery"
	"github.com/openkala/callboard/internal/models"
	"github.com/openkala/callboard/internal/notify"
)

// Storage is the slice of the record store the handlers need. *db.Store
// satisfies it.
type Storage interface {
	List(ctx context.Context, params db.ListParams) (*db.ListResult, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Opportunity, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Stats(ctx context.Context) (map[string]any, error)
	ListScanRuns(ctx context.Context, limit int) ([]models.ScanRun, error)
	GetScanRun(ctx context.Context, id uuid.UUID) (*models.ScanRun, error)
}

// ScanAgent does the discovery work behind the scan, parse and review
// endpoints.
type ScanAgent interface {
	Run(ctx context.Context, opts discovery.ScanOptions, logf discovery.LogFunc) (*discovery.ScanReport, error)
	ParseText(ctx context.Context, rawText, sourceURL string, logf discovery.LogFunc) (*models.Opportunity, error)
	LearnFromRejection(ctx context.Context, o *models.Opportunity) error
}

// Embedder turns a search query into a vector for semantic ordering.
// Optional; without one, listing falls back to keyword ranking.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Server struct {
	Store    Storage
	Auth     *auth.Service
	Agent    ScanAgent
	Notifier notify.Notifier
	Embedder Embedder
	Echo     *echo.Echo

	adminSecret string

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

// Options carries everything NewServer cannot derive from the pool.
type Options struct {
	Agent       ScanAgent
	Embedder    Embedder
	Notifier    notify.Notifier
	AdminSecret string
	JWTSecret   string
	CORSOrigins []string
}

func NewServer(pool *pgxpool.Pool, opts Options) (*Server, error) {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	authService, err := auth.NewService(pool, opts.JWTSecret)
	if err != nil {
		return nil, err
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}

	s := &Server{
		Store:       db.NewStore(pool),
		Auth:        authService,
		Agent:       opts.Agent,
		Notifier:    notifier,
		Embedder:    opts.Embedder,
		Echo:        e,
		adminSecret: opts.AdminSecret,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.Echo.Group("/api/v1")
	api.GET("/opportunities", s.handleListOpportunities)
	api.GET("/opportunities/:id", s.handleGetOpportunity)
	api.GET("/stats", s.handleGetStats)

	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	// Operator routes: a reviewer's token or the admin secret.
	operator := api.Group("")
	operator.Use(s.Auth.AdminOrToken(s.adminSecret))
	operator.GET("/review/drafts", s.handleReviewDrafts)
	operator.POST("/review/:id/approve", s.handleApprove)
	operator.POST("/review/:id/reject", s.handleReject)
	operator.POST("/parse", s.handleParse)
	operator.POST("/scan", s.handleScan)
	operator.GET("/scan/runs", s.handleScanRuns)
	operator.GET("/scan/runs/:id", s.handleScanRun)
	operator.GET("/scan/job/:id", s.handleScanJob)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.Auth.Signup(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrOperatorExists) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.Auth.Login(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCreds) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListOpportunities(c echo.Context) error {
	q := c.QueryParam("q")
	limit, offset := pageParams(c)

	closingWithin := 0
	if v, err := strconv.Atoi(c.QueryParam("closing_within")); err == nil && v > 0 && v <= 365 {
		closingWithin = v
	}

	// Embed the query for semantic ordering; on failure fall back to
	// keyword rank.
	var queryEmbedding []float32
	if q != "" && s.Embedder != nil {
		aiCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		vec, err := s.Embedder.Embed(aiCtx, q)
		if err != nil {
			c.Logger().Errorf("query embedding failed: %v", err)
		} else {
			queryEmbedding = vec
		}
	}

	result, err := s.Store.List(c.Request().Context(), db.ListParams{
		Query:          q,
		QueryEmbedding: queryEmbedding,
		Status:         models.StatusPublished,
		Type:           c.QueryParam("type"),
		Scope:          c.QueryParam("scope"),
		ActiveOnly:     c.QueryParam("include_expired") != "true",
		MaxDaysLeft:    closingWithin,
		SortBy:         c.QueryParam("sort"),
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		c.Logger().Errorf("listing opportunities: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetOpportunity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid opportunity ID"})
	}

	o, err := s.Store.GetByID(c.Request().Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	// Drafts and rejected records stay behind the review endpoints.
	if o.Status != models.StatusPublished {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	return c.JSON(http.StatusOK, o)
}

func (s *Server) handleGetStats(c echo.Context) error {
	stats, err := s.Store.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleReviewDrafts(c echo.Context) error {
	limit, offset := pageParams(c)
	result, err := s.Store.List(c.Request().Context(), db.ListParams{
		Status: models.StatusDraft,
		SortBy: "newest",
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		c.Logger().Errorf("listing drafts: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleApprove(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid opportunity ID"})
	}
	ctx := c.Request().Context()

	o, err := s.Store.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	if err := s.Store.UpdateStatus(ctx, id, models.StatusPublished); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	o.Status = models.StatusPublished

	// The response does not wait for the webhook; the notification context
	// outlives the request, with its own deadline.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	go func() {
		defer cancel()
		if err := s.Notifier.OpportunityPublished(nctx, o); err != nil {
			log.Printf("[API] notifying for %q: %v", o.Title, err)
		}
	}()

	return c.JSON(http.StatusOK, o)
}

func (s *Server) handleReject(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid opportunity ID"})
	}
	ctx := c.Request().Context()

	o, err := s.Store.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	if err := s.Agent.LearnFromRejection(ctx, o); err != nil {
		c.Logger().Errorf("recording rejection of %q: %v", o.Title, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": models.StatusRejected})
}

type parseRequest struct {
	Text      string `json:"text"`
	SourceURL string `json:"source_url"`
}

func (s *Server) handleParse(c echo.Context) error {
	var req parseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text is required"})
	}

	logf := func(format string, args ...any) {
		log.Printf("[Parse] "+format, args...)
	}
	o, err := s.Agent.ParseText(c.Request().Context(), req.Text, req.SourceURL, logf)
	if errors.Is(err, discovery.ErrAlreadyKnown) {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	if err != nil {
		c.Logger().Errorf("parsing submission: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, o)
}

type scanRequest struct {
	Mode        string `json:"mode"`
	TargetCount int    `json:"target_count"`
}

func (s *Server) handleScan(c echo.Context) error {
	var req scanRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.Mode == "" {
		req.Mode = discovery.ModeDaily
	}
	if req.Mode != discovery.ModeDaily && req.Mode != discovery.ModeDeep {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "mode must be daily or deep"})
	}
	if req.TargetCount < 0 || req.TargetCount > 25 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "target_count must be between 0 and 25"})
	}

	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]any{
			"error":  "a scan is already running",
			"job_id": job.ID,
		})
	}

	// context.WithoutCancel detaches the scan from the HTTP lifecycle; the
	// timeout is the backstop.
	jobCtx, jobCancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), 30*time.Minute)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	opts := discovery.ScanOptions{Mode: req.Mode, TargetCount: req.TargetCount}
	go func() {
		defer jobCancel()
		logf := func(format string, args ...any) {
			log.Printf("[Scan "+jobID+"] "+format, args...)
		}
		report, err := s.Agent.Run(jobCtx, opts, logf)

		s.jobMu.Lock()
		job.EndedAt = time.Now()
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
		} else {
			job.Status = "completed"
			job.Result = scanSummary(report)
		}
		s.jobMu.Unlock()

		if err != nil {
			log.Printf("[Scan %s] failed: %v", jobID, err)
			return
		}
		log.Printf("[Scan %s] completed: %d accepted", jobID, report.Accepted)
	}()

	return c.JSON(http.StatusAccepted, map[string]any{
		"message": "Scan started",
		"job_id":  jobID,
		"poll":    "/api/v1/scan/job/" + jobID,
	})
}

func scanSummary(report *discovery.ScanReport) map[string]any {
	titles := make([]string, 0, len(report.Found))
	for _, o := range report.Found {
		titles = append(titles, o.Title)
	}
	return map[string]any{
		"mode":       report.Mode,
		"keywords":   report.Keywords,
		"candidates": report.Candidates,
		"evaluated":  report.Evaluated,
		"accepted":   report.Accepted,
		"duplicates": report.Duplicates,
		"rejected":   report.Rejected,
		"errors":     report.Errors,
		"found":      titles,
	}
}

func (s *Server) handleScanJob(c echo.Context) error {
	queried := c.Param("id")

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]any{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleScanRuns(c echo.Context) error {
	limit := 20
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}

	runs, err := s.Store.ListScanRuns(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if runs == nil {
		runs = []models.ScanRun{}
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleScanRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid run ID"})
	}

	run, err := s.Store.GetScanRun(c.Request().Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, run)
}

// pageParams reads limit and offset with the API-wide bounds.
func pageParams(c echo.Context) (limit, offset int) {
	limit = 20
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		offset = o
	}
	return limit, offset
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}
