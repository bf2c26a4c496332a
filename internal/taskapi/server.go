package taskapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fentz26/morningtrio/internal/models"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

const userKey = "userID"

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(token string) (userID string, ok bool)
}

// TokenMap authenticates against a fixed token -> user id table.
type TokenMap map[string]string

// Authenticate implements Authenticator.
func (m TokenMap) Authenticate(token string) (string, bool) {
	id, ok := m[token]
	return id, ok && id != ""
}

// Server provides the HTTP API for the task service.
type Server struct {
	service *Service
	auth    Authenticator
	addr    string
	router  *gin.Engine
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, auth Authenticator, addr string) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		service: service,
		auth:    auth,
		addr:    addr,
		router:  router,
	}

	router.GET("/health", s.handleHealth)

	api := router.Group("/", s.requireUser)
	{
		api.GET("/me", s.handleMe)
		api.GET("/tasks", s.handleListTasks)
		api.POST("/tasks", s.handleCreateTask)
		api.POST("/tasks/sync", s.handleSyncTasks)
		api.PUT("/tasks/:id", s.handleUpdateTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)
	}

	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("Starting MorningTrio task service on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) requireUser(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
		return
	}
	userID, ok := s.auth.Authenticate(strings.TrimSpace(token))
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
		return
	}
	c.Set(userKey, userID)
	c.Next()
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if err := s.service.Ping(c.Request.Context()); err != nil {
		resp.OK = false
		resp.DB = err.Error()
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func (s *Server) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"userId": c.GetString(userKey)})
}

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.service.ListTasks(c.Request.Context(), c.GetString(userKey))
	if err != nil {
		writeError(c, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	task, err := s.service.CreateTask(c.Request.Context(), c.GetString(userKey), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var patch models.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	task, err := s.service.UpdateTask(c.Request.Context(), c.GetString(userKey), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.service.DeleteTask(c.Request.Context(), c.GetString(userKey), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Tasks is a pointer so a missing or null array is told apart from an
// empty one.
type syncRequest struct {
	Tasks *[]models.SyncItem `json:"tasks"`
}

func (s *Server) handleSyncTasks(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Tasks == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tasks must be an array"})
		return
	}

	res, err := s.service.SyncTasks(c.Request.Context(), c.GetString(userKey), *req.Tasks)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		log.Printf("taskapi: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
