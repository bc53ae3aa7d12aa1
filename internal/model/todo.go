package model

import "time"

type Todo struct {
	ID        string     `json:"id"`
	UserID    int        `json:"user_id"`
	Text      string     `json:"text"`
	Completed bool       `json:"completed"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Details   *string    `json:"details,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// TodoPatch 描述一次部分更新，nil 字段表示不修改
type TodoPatch struct {
	Text *string
	// SetDueDate 为 true 时用 DueDate 覆盖（DueDate 为 nil 即清空）
	SetDueDate bool
	DueDate    *time.Time
	SetDetails bool
	Details    *string
}

// Empty 是否没有任何字段需要更新
func (p TodoPatch) Empty() bool {
	return p.Text == nil && !p.SetDueDate && !p.SetDetails
}
