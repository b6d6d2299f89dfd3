package task

import (
	"time"

	"github.com/google/uuid"
)

// CreateTaskRequest is the POST /tasks body.
type CreateTaskRequest struct {
	Provider  string         `json:"provider" binding:"required"`
	Operation string         `json:"operation" binding:"required"`
	Prompt    string         `json:"prompt" binding:"required"`
	Params    map[string]any `json:"params"`
}

// TaskResponse is the wire form of a task.
type TaskResponse struct {
	ID         uuid.UUID `json:"id"`
	Provider   string    `json:"provider"`
	Operation  string    `json:"operation"`
	Prompt     string    `json:"prompt"`
	Status     Status    `json:"status"`
	Cost       int64     `json:"cost"`
	ExternalID *string   `json:"external_id,omitempty"`
	ResultURL  *string   `json:"result_url,omitempty"`
	Error      *string   `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toTaskResponse(t *Task) *TaskResponse {
	return &TaskResponse{
		ID:         t.ID,
		Provider:   t.Provider,
		Operation:  t.Operation,
		Prompt:     t.Prompt,
		Status:     t.Status,
		Cost:       t.Cost,
		ExternalID: t.ExternalID,
		ResultURL:  t.ResultURL,
		Error:      t.Error,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}
