// Package api exposes report harvesting over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sjsage522/listingharvester/internal/pipeline"
	errs "sjsage522/listingharvester/pkg/errors"
	"sjsage522/listingharvester/services/jobs"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Response headers carrying report metadata
const (
	HeaderListingCount = "X-Listing-Count"
	HeaderCaption      = "X-Report-Caption"
)

// Runner harvests one listing page into an encoded report
type Runner interface {
	Run(ctx context.Context, targetURL string) (*pipeline.Output, error)
}

// Options configures the HTTP surface
type Options struct {
	AllowedOrigins []string
	// Limiter throttles report requests; nil disables throttling
	Limiter *RateLimiter
}

// Server serves the report API
type Server struct {
	runner Runner
	queue  jobs.Queue
	router *gin.Engine
}

type reportRequest struct {
	URL     string `json:"url" form:"url"`
	ReplyTo string `json:"reply_to" form:"reply_to"`
}

// NewServer creates the API. A nil queue disables asynchronous jobs.
func NewServer(runner Runner, queue jobs.Queue, opts Options) *Server {
	s := &Server{
		runner: runner,
		queue:  queue,
		router: gin.New(),
	}

	s.router.Use(gin.Recovery(), RequestLogger())

	corsConfig := cors.DefaultConfig()
	if len(opts.AllowedOrigins) == 0 || (len(opts.AllowedOrigins) == 1 && opts.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = opts.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsConfig.ExposeHeaders = []string{HeaderListingCount, HeaderCaption, "Content-Disposition"}
	s.router.Use(cors.New(corsConfig))

	api := s.router.Group("/api")
	{
		api.GET("/health", s.health)

		harvest := api.Group("")
		if opts.Limiter != nil {
			harvest.Use(RateLimitMiddleware(opts.Limiter))
		}
		harvest.POST("/reports", s.createReport)
		harvest.POST("/jobs", s.enqueueJob)
	}

	return s
}

// Handler returns the HTTP handler of the API
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"jobs":   s.queue != nil,
	})
}

// createReport harvests the posted link and answers with the spreadsheet
func (s *Server) createReport(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}

	out, err := s.runner.Run(c.Request.Context(), req.URL)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header(HeaderListingCount, strconv.Itoa(out.Count))
	c.Header(HeaderCaption, out.Caption)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, out.Filename))
	c.Data(http.StatusOK, out.ContentType, out.Payload)
}

// enqueueJob queues the posted link for a worker and answers with the job ID
func (s *Server) enqueueJob(c *gin.Context) {
	if s.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job queue is not configured"})
		return
	}

	req, ok := bindRequest(c)
	if !ok {
		return
	}

	job := jobs.NewJob(req.URL, req.ReplyTo)
	id, err := s.queue.Enqueue(c.Request.Context(), job)
	if err != nil {
		writeError(c, errs.NewQueue(job.URL, "failed to enqueue job", err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": id, "url": job.URL})
}

// bindRequest reads the link from a JSON body, a form or a plain-text body
func bindRequest(c *gin.Context) (reportRequest, bool) {
	var req reportRequest
	if strings.HasPrefix(c.ContentType(), "text/plain") {
		body, err := c.GetRawData()
		if err != nil {
			writeError(c, errs.NewValidation("", "unreadable request body"))
			return req, false
		}
		req.URL = string(body)
	} else if err := c.ShouldBind(&req); err != nil {
		writeError(c, errs.NewValidation("", "malformed request body"))
		return req, false
	}

	req.URL = strings.TrimSpace(req.URL)
	if err := pipeline.ValidateURL(req.URL); err != nil {
		writeError(c, err)
		return req, false
	}
	return req, true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	errType := "internal"

	var ce *errs.CrawlerError
	if errors.As(err, &ce) {
		errType = string(ce.Type)
		switch ce.Type {
		case errs.ErrorTypeValidation:
			status = http.StatusBadRequest
		case errs.ErrorTypeNoContent:
			status = http.StatusUnprocessableEntity
		case errs.ErrorTypeNavigation, errs.ErrorTypeRendering:
			status = http.StatusBadGateway
		case errs.ErrorTypeCancelled:
			status = http.StatusServiceUnavailable
		case errs.ErrorTypeQueue:
			status = http.StatusServiceUnavailable
		}
	}

	message := err.Error()
	if ce != nil {
		message = ce.Message
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":   errType,
		"message": message,
	})
}
