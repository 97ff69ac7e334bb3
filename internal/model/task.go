package model

import "time"

// Task is a single to-do item. UserID is the owner and never changes after
// creation.
type Task struct {
	ID          string    `json:"id"          db:"id"`
	UserID      string    `json:"userId"      db:"user_id"`
	Description string    `json:"description" db:"description"`
	Completed   bool      `json:"completed"   db:"completed"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt"   db:"updated_at"`
}

// TaskPatch is a partial update. A nil field is left unchanged.
type TaskPatch struct {
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Description == nil && p.Completed == nil
}
