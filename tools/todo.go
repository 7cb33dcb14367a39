// Todo list toolset.
//
// Each TodoList is private to one agent run. The four tools built by Tools
// share the list; nothing else can reach it.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// TodoItem is one entry of a TodoList. Task doubles as the lookup key.
type TodoItem struct {
	Task      string `json:"task"`
	Completed bool   `json:"completed"`
	Notes     string `json:"notes"`
}

// TodoList is an ordered scratchpad of tasks. Insertion order is display order.
type TodoList struct {
	mu    sync.Mutex
	items []TodoItem
}

// NewTodoList creates an empty list.
func NewTodoList() *TodoList {
	return &TodoList{}
}

// Add appends a pending task.
func (l *TodoList) Add(task string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = append(l.items, TodoItem{Task: task})
	return "Added: " + task
}

// Complete marks the first task equal to task as done.
func (l *TodoList) Complete(task string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.find(task)
	if i < 0 {
		return "Not found: " + task
	}
	l.items[i].Completed = true
	return "Completed: " + task
}

// Annotate replaces the notes of the first task equal to task.
func (l *TodoList) Annotate(task, notes string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.find(task)
	if i < 0 {
		return "Not found: " + task
	}
	l.items[i].Notes = notes
	return "Noted: " + task
}

// List renders the tasks as a numbered list.
func (l *TodoList) List() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.items) == 0 {
		return "No todos."
	}

	var b strings.Builder
	b.WriteString("Todos:")
	for i, item := range l.items {
		status := "○"
		if item.Completed {
			status = "✓"
		}
		fmt.Fprintf(&b, "\n%d. %s %s", i+1, status, item.Task)
		if item.Notes != "" {
			b.WriteString(" - " + item.Notes)
		}
	}
	return b.String()
}

// Items returns a copy of the current entries.
func (l *TodoList) Items() []TodoItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	items := make([]TodoItem, len(l.items))
	copy(items, l.items)
	return items
}

// find returns the index of the first item for task, or -1. Callers hold mu.
func (l *TodoList) find(task string) int {
	for i := range l.items {
		if l.items[i].Task == task {
			return i
		}
	}
	return -1
}

type todoArgs struct {
	Task  *string `json:"task"`
	Notes *string `json:"notes"`
}

func parseTodoArgs(args json.RawMessage, needNotes bool) (todoArgs, error) {
	var a todoArgs
	if err := decodeArgs(args, &a); err != nil {
		return a, err
	}
	if a.Task == nil {
		return a, fmt.Errorf("task is required")
	}
	if needNotes && a.Notes == nil {
		return a, fmt.Errorf("notes is required")
	}
	return a, nil
}

// Tools exposes the list as add_todo, complete_todo, add_notes_to_todo and list_todos.
func (l *TodoList) Tools() []Tool {
	taskParam := ToolParameter{Name: "task", ParamType: "string", Description: "The task text, used as its identifier", Required: true}

	withTask := func(needNotes bool, op func(a todoArgs) string) func(context.Context, json.RawMessage) (ToolResult, error) {
		return func(_ context.Context, args json.RawMessage) (ToolResult, error) {
			a, err := parseTodoArgs(args, needNotes)
			if err != nil {
				return FailureResult(err), nil
			}
			return SuccessResult(op(a)), nil
		}
	}
	validate := func(needNotes bool) func(json.RawMessage) error {
		return func(args json.RawMessage) error {
			_, err := parseTodoArgs(args, needNotes)
			return err
		}
	}

	return []Tool{
		&funcTool{
			meta: ToolMetadata{
				Name:        "add_todo",
				Description: "Add a new todo item",
				Parameters:  []ToolParameter{taskParam},
			},
			validate: validate(false),
			run:      withTask(false, func(a todoArgs) string { return l.Add(*a.Task) }),
		},
		&funcTool{
			meta: ToolMetadata{
				Name:        "complete_todo",
				Description: "Mark a todo as completed",
				Parameters:  []ToolParameter{taskParam},
			},
			validate: validate(false),
			run:      withTask(false, func(a todoArgs) string { return l.Complete(*a.Task) }),
		},
		&funcTool{
			meta: ToolMetadata{
				Name:        "add_notes_to_todo",
				Description: "Set the notes of a todo item, replacing any previous notes",
				Parameters: []ToolParameter{
					taskParam,
					{Name: "notes", ParamType: "string", Description: "Notes to attach", Required: true},
				},
			},
			validate: validate(true),
			run:      withTask(true, func(a todoArgs) string { return l.Annotate(*a.Task, *a.Notes) }),
		},
		&funcTool{
			meta: ToolMetadata{
				Name:        "list_todos",
				Description: "List all todos with their status",
			},
			run: func(context.Context, json.RawMessage) (ToolResult, error) {
				return SuccessResult(l.List()), nil
			},
		},
	}
}
