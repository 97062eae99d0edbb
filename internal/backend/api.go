package backend

import "github.com/sells-group/envprep/internal/task"

// Task API paths shared by the server and the remote client.
const (
	TasksPath  = "/v1/tasks"
	HealthPath = "/health"
)

// SubmitResponse is the body of a successful POST /v1/tasks.
type SubmitResponse struct {
	ID     string      `json:"id"`
	Status task.Status `json:"status"`
}

// ListResponse is the body of GET /v1/tasks.
type ListResponse struct {
	Tasks []task.Task `json:"tasks"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
