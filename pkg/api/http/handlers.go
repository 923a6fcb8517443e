package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chartport/chartport/internal/domain"
	"github.com/chartport/chartport/internal/ports"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// TaskResponse is the wire form of a conversion task
type TaskResponse struct {
	PageID       int64  `json:"page_id"`
	Ordinal      int    `json:"ordinal"`
	PageTitle    string `json:"page_title"`
	ProposedName string `json:"proposed_name,omitempty"`
	Status       string `json:"status"`
	LastError    string `json:"last_error,omitempty"`
	LastErrorMsg string `json:"last_error_msg,omitempty"`
	Attempts     int    `json:"attempts"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	NotBefore    string `json:"not_before,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleGetConfig returns the live pipeline configuration
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.runtime.Snapshot())
}

// handlePutConfig applies a partial update to the pipeline configuration.
// Fields absent from the body keep their current value.
func (s *Server) handlePutConfig(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	// Unmarshal over the current snapshot so omitted fields survive.
	updated := s.runtime.Snapshot()
	if err := json.Unmarshal(body, &updated); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	if err := s.runtime.Apply(updated); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_CONFIG",
				Message: err.Error(),
			},
		})
		return
	}

	s.logger.Info("pipeline configuration updated",
		zap.Int("concurrency", updated.Concurrency),
		zap.Bool("paused", updated.Paused))

	c.JSON(http.StatusOK, updated)
}

// handleListTasks lists tasks, optionally filtered by status
func (s *Server) handleListTasks(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: ErrorDetail{
					Code:    "INVALID_LIMIT",
					Message: "limit must be a positive integer",
				},
			})
			return
		}
		limit = n
	}

	var statuses []domain.Status
	if statusParam := c.Query("status"); statusParam != "" {
		for _, raw := range strings.Split(statusParam, ",") {
			statuses = append(statuses, domain.Status(strings.TrimSpace(raw)))
		}
	}

	list, err := s.store.List(c.Request.Context(), statuses, limit)
	if err != nil {
		s.logger.Error("failed to list tasks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORE_ERROR",
				Message: "Failed to retrieve tasks",
				Details: err.Error(),
			},
		})
		return
	}

	responses := make([]TaskResponse, len(list))
	for i, t := range list {
		responses[i] = taskToResponse(t)
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": responses,
		"total": len(responses),
	})
}

// handleGetTask returns one task by its page id and ordinal
func (s *Server) handleGetTask(c *gin.Context) {
	pageID, err := strconv.ParseInt(c.Param("page"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_KEY",
				Message: "page must be an integer page id",
			},
		})
		return
	}
	ordinal, err := strconv.Atoi(c.Param("ordinal"))
	if err != nil || ordinal < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_KEY",
				Message: "ordinal must be a non-negative integer",
			},
		})
		return
	}

	task, err := s.store.Get(c.Request.Context(), domain.TaskKey{PageID: pageID, Ordinal: ordinal})
	if err != nil {
		if errors.Is(err, ports.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: ErrorDetail{
					Code:    "NOT_FOUND",
					Message: "Task not found",
				},
			})
			return
		}
		s.logger.Error("failed to get task", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORE_ERROR",
				Message: "Failed to retrieve task",
				Details: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, taskToResponse(task))
}

// taskToResponse converts a task to its wire form
func taskToResponse(t *domain.ConversionTask) TaskResponse {
	resp := TaskResponse{
		PageID:       t.Key.PageID,
		Ordinal:      t.Key.Ordinal,
		PageTitle:    t.PageTitle,
		ProposedName: t.ProposedName,
		Status:       string(t.Status),
		LastError:    string(t.LastError),
		LastErrorMsg: t.LastErrorMsg,
		Attempts:     t.Attempts,
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    t.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if !t.NotBefore.IsZero() {
		resp.NotBefore = t.NotBefore.UTC().Format(time.RFC3339)
	}
	return resp
}
