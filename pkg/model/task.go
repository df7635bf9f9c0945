package model

// Task is a unit of work an agent pulls for its node.
type Task struct {
	ID        string `json:"id"`
	Cmd       string `json:"cmd"`
	ProjectID string `json:"project_id,omitempty"`
}
