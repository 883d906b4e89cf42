package service

import (
	"context"

	"todo-backend/internal/api"
	"todo-backend/internal/biz"
)

// todoService 待办服务实现
type todoService struct {
	todoUsecase *biz.TodoUsecase
}

// NewTodoService 创建 TodoService
func NewTodoService(todoUsecase *biz.TodoUsecase) api.TodoService {
	return &todoService{
		todoUsecase: todoUsecase,
	}
}

func (s *todoService) List(ctx context.Context) ([]api.TodoDTO, error) {
	todos, err := s.todoUsecase.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]api.TodoDTO, 0, len(todos))
	for _, t := range todos {
		out = append(out, toDTO(t))
	}
	return out, nil
}

func (s *todoService) Get(ctx context.Context, id string) (*api.TodoDTO, error) {
	return wrap(s.todoUsecase.Get(ctx, id))
}

func (s *todoService) Create(ctx context.Context, req *api.CreateTodoRequest) (*api.TodoDTO, error) {
	return wrap(s.todoUsecase.Create(ctx, req.Title, req.Description))
}

// Update api DTO -> biz patch
func (s *todoService) Update(ctx context.Context, id string, req *api.UpdateTodoRequest) (*api.TodoDTO, error) {
	return wrap(s.todoUsecase.Update(ctx, id, biz.TodoPatch{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
	}))
}

func (s *todoService) Delete(ctx context.Context, id string) (*api.TodoDTO, error) {
	return wrap(s.todoUsecase.Delete(ctx, id))
}

func wrap(t *biz.Todo, err error) (*api.TodoDTO, error) {
	if err != nil {
		return nil, err
	}
	dto := toDTO(t)
	return &dto, nil
}

// toDTO biz -> api DTO
func toDTO(t *biz.Todo) api.TodoDTO {
	return api.TodoDTO{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
