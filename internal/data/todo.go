package data

import (
	"context"
	"strconv"
	"sync"
	"time"

	"todo-backend/internal/biz"
)

// memoryTodoRepo 内存待办仓库，重启即丢失
type memoryTodoRepo struct {
	mu     sync.RWMutex
	todos  map[string]*biz.Todo
	nextID int64
}

// NewMemoryTodoRepo 创建内存待办仓库，并写入一条欢迎待办
func NewMemoryTodoRepo() biz.TodoRepo {
	now := time.Now()
	r := &memoryTodoRepo{todos: make(map[string]*biz.Todo), nextID: 1}
	r.todos["1"] = &biz.Todo{
		ID:          "1",
		Title:       "Welcome to your to-do list!",
		Description: "This is your first task. You can edit or delete it.",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return r
}

func (r *memoryTodoRepo) List(_ context.Context) ([]*biz.Todo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*biz.Todo, 0, len(r.todos))
	for _, t := range r.todos {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

func (r *memoryTodoRepo) Get(_ context.Context, id string) (*biz.Todo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.todos[id]
	if !ok {
		return nil, biz.ErrTodoNotFound
	}
	c := *t
	return &c, nil
}

func (r *memoryTodoRepo) Create(_ context.Context, todo *biz.Todo) (*biz.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c := *todo
	c.ID = strconv.FormatInt(r.nextID, 10)
	r.todos[c.ID] = &c
	out := c
	return &out, nil
}

func (r *memoryTodoRepo) Update(_ context.Context, todo *biz.Todo) (*biz.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.todos[todo.ID]; !ok {
		return nil, biz.ErrTodoNotFound
	}
	c := *todo
	r.todos[c.ID] = &c
	out := c
	return &out, nil
}

func (r *memoryTodoRepo) Delete(_ context.Context, id string) (*biz.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.todos[id]
	if !ok {
		return nil, biz.ErrTodoNotFound
	}
	delete(r.todos, id)
	c := *t
	return &c, nil
}
