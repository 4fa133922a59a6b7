package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/librapp/internal/scheduler"
	"github.com/mrlokans/librapp/internal/tasks"
)

// TaskQueue is the subset of the task client used over HTTP.
type TaskQueue interface {
	Add(tasks ...backlite.Task) *backlite.TaskAddOp
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}

// ScheduleReporter lists the cron jobs and their next runs.
type ScheduleReporter interface {
	Status() []scheduler.JobStatus
}

// TasksController handles task queue management endpoints.
type TasksController struct {
	client        TaskQueue
	schedule      ScheduleReporter
	retentionDays int
}

// NewTasksController creates a new TasksController. schedule may be nil.
func NewTasksController(client TaskQueue, schedule ScheduleReporter, retentionDays int) *TasksController {
	return &TasksController{client: client, schedule: schedule, retentionDays: retentionDays}
}

// TaskTypeInfo describes an available task type.
type TaskTypeInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Queue       string `json:"queue"`
}

// ListTaskTypes handles GET /api/tasks/types
// Returns the list of available task types that can be triggered.
func (tc *TasksController) ListTaskTypes(c *gin.Context) {
	types := []TaskTypeInfo{
		{
			Type:        "sweep_fines",
			Description: "Refresh the fines of every overdue loan",
			Queue:       tasks.SweepFinesTask{}.Config().Name,
		},
		{
			Type:        "cleanup_audit_events",
			Description: "Delete audit events past the retention period",
			Queue:       tasks.CleanupAuditEventsTask{}.Config().Name,
		},
	}

	c.JSON(http.StatusOK, gin.H{
		"task_types": types,
	})
}

// GetSchedule handles GET /api/tasks/schedule
func (tc *TasksController) GetSchedule(c *gin.Context) {
	jobs := []scheduler.JobStatus{}
	if tc.schedule != nil {
		jobs = tc.schedule.Status()
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// GetTaskStatus handles GET /api/tasks/:id
// Returns the status of a specific task.
func (tc *TasksController) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		respondBadRequest(c, "task ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := tc.client.Status(ctx, taskID)
	if err != nil {
		respondInternalError(c, err, "task status")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     taskID,
		"status": taskStatusToString(status),
	})
}

// RunTaskRequest is the request body for running a task.
type RunTaskRequest struct {
	// RetentionDays overrides the configured retention for cleanup_audit_events
	RetentionDays int `json:"retention_days,omitempty"`
}

// RunTask handles POST /api/tasks/:type/run
// Manually triggers a task of the specified type. The route shares its
// wildcard with GET /api/tasks/:id, so the type arrives as "id".
func (tc *TasksController) RunTask(c *gin.Context) {
	taskType := c.Param("id")

	var req RunTaskRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindingError(c, err)
			return
		}
	}

	var task backlite.Task
	switch taskType {
	case "sweep_fines":
		task = tasks.SweepFinesTask{Trigger: "manual"}

	case "cleanup_audit_events":
		days := req.RetentionDays
		if days <= 0 {
			days = tc.retentionDays
		}
		task = tasks.CleanupAuditEventsTask{RetentionDays: days}

	default:
		respondBadRequest(c, fmt.Sprintf("unknown task type: %s", taskType))
		return
	}

	ids, err := tc.client.Add(task).Save()
	if err != nil {
		respondInternalError(c, err, "enqueue task")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task_id": ids[0],
		"type":    taskType,
		"message": "task enqueued",
	})
}

func taskStatusToString(status backlite.TaskStatus) string {
	switch status {
	case backlite.TaskStatusPending:
		return "pending"
	case backlite.TaskStatusRunning:
		return "running"
	case backlite.TaskStatusSuccess:
		return "success"
	case backlite.TaskStatusFailure:
		return "failure"
	case backlite.TaskStatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
