package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"todo-backend/internal/biz"

	"github.com/gorilla/mux"
)

// TodoHandler 待办接口处理器
type TodoHandler struct {
	todoService TodoService
	logger      *slog.Logger
}

// NewTodoHandler 创建 TodoHandler
func NewTodoHandler(todoService TodoService, logger *slog.Logger) *TodoHandler {
	return &TodoHandler{
		todoService: todoService,
		logger:      logger,
	}
}

// RegisterRoutes 注册路由到 mux.Router
func (h *TodoHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.list).Methods(http.MethodGet)
	r.HandleFunc("/", h.list).Methods(http.MethodGet)
	r.HandleFunc("", h.create).Methods(http.MethodPost)
	r.HandleFunc("/", h.create).Methods(http.MethodPost)
	r.HandleFunc("/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/{id}", h.update).Methods(http.MethodPut)
	r.HandleFunc("/{id}", h.delete).Methods(http.MethodDelete)
}

func (h *TodoHandler) list(w http.ResponseWriter, r *http.Request) {
	todos, err := h.todoService.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	count := len(todos)
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: todos, Count: &count})
}

func (h *TodoHandler) get(w http.ResponseWriter, r *http.Request) {
	todo, err := h.todoService.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: todo})
}

func (h *TodoHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Envelope{Message: "invalid request body: " + err.Error()})
		return
	}
	todo, err := h.todoService.Create(r.Context(), &req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{Success: true, Data: todo})
}

func (h *TodoHandler) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Envelope{Message: "invalid request body: " + err.Error()})
		return
	}
	todo, err := h.todoService.Update(r.Context(), mux.Vars(r)["id"], &req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: todo})
}

func (h *TodoHandler) delete(w http.ResponseWriter, r *http.Request) {
	todo, err := h.todoService.Delete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "Todo deleted successfully", Data: todo})
}

// fail 业务错误 -> HTTP 状态码
func (h *TodoHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, biz.ErrTodoNotFound):
		writeJSON(w, http.StatusNotFound, Envelope{Message: "Todo not found"})
	case errors.Is(err, biz.ErrTitleRequired):
		writeJSON(w, http.StatusBadRequest, Envelope{Message: "Title is required"})
	default:
		h.logger.Error("todo request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, Envelope{Message: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
