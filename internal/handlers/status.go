package handlers

import (
	"errors"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/video-transcription/internal/progress"
	"github.com/codebuildervaibhav/video-transcription/internal/storage"
)

const defaultOutcomeLimit = 50

// OutcomeStore is the read side of the outcome database
type OutcomeStore interface {
	ListOutcomes(limit int) ([]storage.OutcomeRecord, error)
	GetOutcome(jobID string) (*storage.OutcomeRecord, error)
}

// LogSource returns recent log lines
type LogSource interface {
	GetLogs() []string
}

// StatusHandler serves read-only batch state
type StatusHandler struct {
	tracker   *progress.Tracker
	outcomes  OutcomeStore
	logs      LogSource
	version   string
	startedAt time.Time
}

// NewStatusHandler creates a status handler. outcomes and logs may be nil.
func NewStatusHandler(tracker *progress.Tracker, outcomes OutcomeStore, logs LogSource, version string) *StatusHandler {
	return &StatusHandler{
		tracker:   tracker,
		outcomes:  outcomes,
		logs:      logs,
		version:   version,
		startedAt: time.Now(),
	}
}

func (h *StatusHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"version": h.version,
	})
}

func progressResponse(s progress.Snapshot) fiber.Map {
	return fiber.Map{
		"total":     s.Total,
		"completed": s.Completed,
		"succeeded": s.Succeeded,
		"failed":    s.Failed,
		"percent":   s.Percent(),
		"done":      s.Done(),
		"last":      s.Last,
		"last_kind": s.LastKind,
	}
}

func (h *StatusHandler) Progress(c *fiber.Ctx) error {
	resp := progressResponse(h.tracker.Snapshot())
	resp["started"] = humanize.Time(h.startedAt)
	return c.JSON(resp)
}

func (h *StatusHandler) ListOutcomes(c *fiber.Ctx) error {
	if h.outcomes == nil {
		return c.Status(503).JSON(fiber.Map{"error": "Outcome database disabled"})
	}

	limit := c.QueryInt("limit", defaultOutcomeLimit)
	if limit <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "limit must be positive"})
	}

	records, err := h.outcomes.ListOutcomes(limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(records)
}

func (h *StatusHandler) OutcomeText(c *fiber.Ctx) error {
	if h.outcomes == nil {
		return c.Status(503).JSON(fiber.Map{"error": "Outcome database disabled"})
	}

	record, err := h.outcomes.GetOutcome(c.Params("id"))
	if errors.Is(err, storage.ErrOutcomeNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "Outcome not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if record.OutputPath == "" {
		return c.Status(404).JSON(fiber.Map{"error": "No transcript for this job"})
	}

	content, err := os.ReadFile(record.OutputPath)
	if errors.Is(err, os.ErrNotExist) {
		return c.Status(404).JSON(fiber.Map{"error": "Transcript file not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to read transcript file"})
	}

	return c.SendString(string(content))
}

func (h *StatusHandler) Logs(c *fiber.Ctx) error {
	lines := []string{}
	if h.logs != nil {
		lines = h.logs.GetLogs()
	}
	return c.JSON(fiber.Map{
		"logs": lines,
	})
}
