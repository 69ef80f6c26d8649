package mcp

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ldi/taskboard/pkg/models"
)

// Store is the task store the tools act on. The CLI passes either the
// database or the Redis cache wrapping it, so writes made here evict what the
// HTTP API has cached.
type Store interface {
	ListTasks(ctx context.Context) ([]*models.Task, error)
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	CreateTask(ctx context.Context, in models.TaskInput) (*models.Task, error)
	UpdateTask(ctx context.Context, id int64, patch models.TaskPatch) (*models.Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

// NewServer creates a new MCP server over the task store.
func NewServer(store Store) *server.MCPServer {
	s := server.NewMCPServer("Taskboard", "0.1.0")

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks, pinned first and then newest first. Optionally filter by column."),
		mcp.WithString("priority", mcp.Description("Column filter (urgent|later|someday)")),
	), listTasksHandler(store))

	s.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get a single task by id."),
		mcp.WithNumber("id", mcp.Description("Task id"), mcp.Required()),
	), getTaskHandler(store))

	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a task in one of the three columns."),
		mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
		mcp.WithString("priority", mcp.Description("Column (urgent|later|someday)"), mcp.Required()),
		mcp.WithArray("tags", mcp.Description("Tags, duplicates are dropped"), mcp.WithStringItems()),
		mcp.WithString("due_date", mcp.Description("Due date (YYYY-MM-DD)")),
		mcp.WithString("comments", mcp.Description("Free-form notes")),
		mcp.WithBoolean("pinned", mcp.Description("Pin the task to the top of its column")),
	), createTaskHandler(store))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Change any subset of a task's fields. Omitted fields are left unchanged; pass null for due_date or comments to clear them."),
		mcp.WithNumber("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("priority", mcp.Description("New column (urgent|later|someday)")),
		mcp.WithArray("tags", mcp.Description("Replacement tag list"), mcp.WithStringItems()),
		mcp.WithString("due_date", mcp.Description("New due date (YYYY-MM-DD)")),
		mcp.WithString("comments", mcp.Description("New comments")),
		mcp.WithBoolean("pinned", mcp.Description("New pinned flag")),
	), updateTaskHandler(store))

	s.AddTool(mcp.NewTool("move_task",
		mcp.WithDescription("Move a task to another column."),
		mcp.WithNumber("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("priority", mcp.Description("Target column (urgent|later|someday)"), mcp.Required()),
	), moveTaskHandler(store))

	s.AddTool(mcp.NewTool("pin_task",
		mcp.WithDescription("Pin or unpin a task."),
		mcp.WithNumber("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithBoolean("pinned", mcp.Description("Pinned flag (defaults to true)")),
	), pinTaskHandler(store))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task."),
		mcp.WithNumber("id", mcp.Description("Task id"), mcp.Required()),
	), deleteTaskHandler(store))

	s.AddTool(mcp.NewTool("board_status",
		mcp.WithDescription("Count tasks per column."),
	), boardStatusHandler(store))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func listTasksHandler(store Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		priority := mcp.ParseString(request, "priority", "")

		if priority != "" {
			if err := models.ValidatePriority(models.Priority(priority)); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}

		tasks, err := store.ListTasks(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if priority != "" {
			tasks = slices.DeleteFunc(tasks, func(t *models.Task) bool {
				return t.Priority != models.Priority(priority)
			})
		}

		return jsonResult(map[string]any{"tasks": tasks})
	}
}

func getTaskHandler(store Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := taskIDArg(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		task, err := store.GetTask(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(task)
	}
}

func createTaskHandler(store Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(request)
		in := models.TaskInput{
			Title:    mcp.ParseString(request, "title", ""),
			Priority: models.Priority(mcp.ParseString(request, "priority", "")),
			Pinned:   mcp.ParseBoolean(request, "pinned", false),
		}
		if raw, ok := args["tags"]; ok {
			tags, err := stringList(raw)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			in.Tags = tags
		}
		if due := mcp.ParseString(request, "due_date", ""); due != "" {
			in.DueDate = &due
		}
		if comments := mcp.ParseString(request, "comments", ""); comments != "" {
			in.Comments = &comments
		}

		task, err := store.CreateTask(ctx, in)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(task)
	}
}

func updateTaskHandler(store Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := taskIDArg(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		patch, err := patchFromArguments(arguments(request))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		task, err := store.UpdateTask(ctx, id, patch)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(task)
	}
}

func moveTaskHandler(store Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := taskIDArg(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		priority := models.Priority(mcp.ParseString(request, "priority", ""))

		task, err := store.UpdateTask(ctx, id, models.TaskPatch{Priority: models.Some(priority)})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task %d moved to %s", task.ID, task.Priority)), nil
	}
}

func pinTaskHandler(store Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := taskIDArg(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		pinned := mcp.ParseBoolean(request, "pinned", true)

		if _, err := store.UpdateTask(ctx, id, models.TaskPatch{Pinned: models.Some(pinned)}); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if pinned {
			return mcp.NewToolResultText(fmt.Sprintf("Task %d pinned", id)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task %d unpinned", id)), nil
	}
}

func deleteTaskHandler(store Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := taskIDArg(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := store.DeleteTask(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Task deleted successfully"), nil
	}
}

func boardStatusHandler(store Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tasks, err := store.ListTasks(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		counts := make(map[models.Priority]int, 3)
		for _, p := range models.Priorities() {
			counts[p] = 0
		}
		for _, t := range tasks {
			counts[t.Priority]++
		}
		return jsonResult(map[string]any{"counts": counts})
	}
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return map[string]any{}
	}
	return args
}

// patchFromArguments builds a partial update from the keys present in args.
// A JSON null clears due_date and comments.
func patchFromArguments(args map[string]any) (models.TaskPatch, error) {
	var patch models.TaskPatch

	for key, raw := range args {
		switch key {
		case "title":
			s, ok := raw.(string)
			if !ok {
				return patch, fieldError(key)
			}
			patch.Title = models.Some(s)
		case "priority":
			s, ok := raw.(string)
			if !ok {
				return patch, fieldError(key)
			}
			patch.Priority = models.Some(models.Priority(s))
		case "tags":
			tags, err := stringList(raw)
			if err != nil {
				return patch, err
			}
			patch.Tags = models.Some(tags)
		case "due_date":
			f, err := nullableString(key, raw)
			if err != nil {
				return patch, err
			}
			patch.DueDate = f
		case "comments":
			f, err := nullableString(key, raw)
			if err != nil {
				return patch, err
			}
			patch.Comments = f
		case "pinned":
			b, ok := raw.(bool)
			if !ok {
				return patch, fieldError(key)
			}
			patch.Pinned = models.Some(b)
		}
	}
	return patch, nil
}

func nullableString(key string, raw any) (models.Field[string], error) {
	if raw == nil {
		return models.Null[string](), nil
	}
	s, ok := raw.(string)
	if !ok {
		return models.Field[string]{}, fieldError(key)
	}
	return models.Some(s), nil
}

func stringList(raw any) ([]string, error) {
	if raw == nil {
		return []string{}, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fieldError("tags")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fieldError("tags")
		}
		out = append(out, s)
	}
	return out, nil
}

func fieldError(key string) error {
	return fmt.Errorf("%w: %s has the wrong type", models.ErrValidation, key)
}

func taskIDArg(request mcp.CallToolRequest) (int64, error) {
	switch v := arguments(request)["id"].(type) {
	case float64:
		if v == float64(int64(v)) && v > 0 {
			return int64(v), nil
		}
	case int:
		if v > 0 {
			return int64(v), nil
		}
	case int64:
		if v > 0 {
			return v, nil
		}
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			return id, nil
		}
	case nil:
		return 0, errors.New("id is required")
	}
	return 0, fmt.Errorf("invalid task id %v", arguments(request)["id"])
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
