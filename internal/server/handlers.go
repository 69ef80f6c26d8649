package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/ldi/taskboard/pkg/models"
)

const maxBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Store, logger *log.Logger) {
	e.GET("/api/tasks", listTasks(store))
	e.GET("/api/tasks/:id", getTask(store))
	e.POST("/api/tasks", createTask(store, logger))
	e.PATCH("/api/tasks/:id", updateTask(store, logger))
	e.DELETE("/api/tasks/:id", deleteTask(store, logger))
	e.GET("/healthz", healthz(store))
}

func listTasks(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		tasks, err := store.ListTasks(c.Request().Context())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, tasks)
	}
}

func getTask(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := taskID(c)
		if err != nil {
			return err
		}
		task, err := store.GetTask(c.Request().Context(), id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, task)
	}
}

func createTask(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in models.TaskInput
		if err := decodeBody(c.Request().Body, &in); err != nil {
			return err
		}
		task, err := store.CreateTask(c.Request().Context(), in)
		if err != nil {
			return err
		}
		logger.WithFields(log.Fields{"task_id": task.ID, "priority": task.Priority}).Debug("task created")
		return c.JSON(http.StatusCreated, task)
	}
}

func updateTask(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := taskID(c)
		if err != nil {
			return err
		}
		var patch models.TaskPatch
		if err := decodeBody(c.Request().Body, &patch); err != nil {
			return err
		}
		task, err := store.UpdateTask(c.Request().Context(), id, patch)
		if err != nil {
			return err
		}
		logger.WithField("task_id", id).Debug("task updated")
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := taskID(c)
		if err != nil {
			return err
		}
		if err := store.DeleteTask(c.Request().Context(), id); err != nil {
			return err
		}
		logger.WithField("task_id", id).Debug("task deleted")
		return c.JSON(http.StatusOK, messageResponse{Message: "Task deleted successfully"})
	}
}

func healthz(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.Ping(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "store unavailable")
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

// taskID parses the :id path segment. An id that is not a positive integer
// cannot name a task, so it is reported as not found.
func taskID(c echo.Context) (int64, error) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", models.ErrNotFound, raw)
	}
	return id, nil
}

// decodeBody parses a JSON request body. PATCH bodies rely on the
// absent/null distinction implemented by models.Field, which encoding/json
// preserves.
func decodeBody(body io.Reader, dst any) error {
	dec := json.NewDecoder(io.LimitReader(body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", models.ErrValidation)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", models.ErrValidation, err)
	}
	return nil
}
