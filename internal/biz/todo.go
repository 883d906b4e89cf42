package biz

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrTodoNotFound = errors.New("todo not found")
var ErrTitleRequired = errors.New("title is required")

// Todo 待办事项
type Todo struct {
	ID          string
	Title       string
	Description string
	Completed   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TodoPatch 部分更新，nil 字段保持不变
type TodoPatch struct {
	Title       *string
	Description *string
	Completed   *bool
}

// TodoRepo 待办仓库接口
type TodoRepo interface {
	// List 列出全部待办（顺序不保证）
	List(ctx context.Context) ([]*Todo, error)
	// Get 按 ID 获取，不存在返回 ErrTodoNotFound
	Get(ctx context.Context, id string) (*Todo, error)
	// Create 新增待办，由仓库分配 ID
	Create(ctx context.Context, todo *Todo) (*Todo, error)
	// Update 整体替换，不存在返回 ErrTodoNotFound
	Update(ctx context.Context, todo *Todo) (*Todo, error)
	// Delete 删除并返回被删除的待办
	Delete(ctx context.Context, id string) (*Todo, error)
}

// TodoUsecase 待办业务逻辑
type TodoUsecase struct {
	repo TodoRepo
	now  func() time.Time
}

// NewTodoUsecase 创建 TodoUsecase
func NewTodoUsecase(repo TodoRepo) *TodoUsecase {
	return &TodoUsecase{repo: repo, now: time.Now}
}

// List 列出待办
func (uc *TodoUsecase) List(ctx context.Context) ([]*Todo, error) {
	return uc.repo.List(ctx)
}

// Get 获取单个待办
func (uc *TodoUsecase) Get(ctx context.Context, id string) (*Todo, error) {
	return uc.repo.Get(ctx, id)
}

// Create 创建待办，标题去掉首尾空白后不能为空
func (uc *TodoUsecase) Create(ctx context.Context, title, description string) (*Todo, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	now := uc.now()
	return uc.repo.Create(ctx, &Todo{
		Title:       title,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// Update 部分更新待办
func (uc *TodoUsecase) Update(ctx context.Context, id string, patch TodoPatch) (*Todo, error) {
	todo, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, ErrTitleRequired
		}
		todo.Title = title
	}
	if patch.Description != nil {
		todo.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Completed != nil {
		todo.Completed = *patch.Completed
	}
	todo.UpdatedAt = uc.now()
	return uc.repo.Update(ctx, todo)
}

// Delete 删除待办
func (uc *TodoUsecase) Delete(ctx context.Context, id string) (*Todo, error) {
	return uc.repo.Delete(ctx, id)
}
