package upstream

import (
	"context"

	"github.com/hamed0406/dashwatch/internal/domain"
)

type TodoClient struct {
	*Client
}

func NewTodoClient(c *Client) *TodoClient { return &TodoClient{Client: c} }

// Todos returns GET /todos.
func (t *TodoClient) Todos(ctx context.Context) ([]domain.TodoItem, error) {
	var items []domain.TodoItem
	err := t.getJSON(ctx, "/todos", &items)
	return items, err
}
