package api

import (
	"context"
	"time"
)

// Envelope 统一响应结构
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TodoDTO 待办 DTO（对外展示）
type TodoDTO struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CreateTodoRequest 创建待办请求
type CreateTodoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// UpdateTodoRequest 更新待办请求，缺省字段不修改
type UpdateTodoRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// TodoService 待办服务接口（由 service 层实现）
type TodoService interface {
	List(ctx context.Context) ([]TodoDTO, error)
	Get(ctx context.Context, id string) (*TodoDTO, error)
	Create(ctx context.Context, req *CreateTodoRequest) (*TodoDTO, error)
	Update(ctx context.Context, id string, req *UpdateTodoRequest) (*TodoDTO, error)
	Delete(ctx context.Context, id string) (*TodoDTO, error)
}
