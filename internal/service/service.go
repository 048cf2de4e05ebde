package service

import (
	"context"

	"power_monitor/internal/logger"
	"power_monitor/internal/models"
	"power_monitor/internal/repository"
)

// EventLog exposes the append-only timeline with filtered read access.
type EventLog interface {
	Append(ctx context.Context, rec models.LogRecord) error
	List(ctx context.Context, f LogFilter) ([]models.LogRecord, error)
	Summarize(ctx context.Context) (LogSummary, error)
}

// ModeController runs the device's operating modes.
// Stop it via context cancellation or an off signal.
type ModeController interface {
	Run(ctx context.Context, signals <-chan models.Signal) error
	Mode() models.Mode
	Status() models.DeviceStatus
}

// Service aggregates the sub-services main wires together.
type Service struct {
	EventLog
	ModeController
}

// NewService wires the repository layer and device collaborators into concrete services.
func NewService(repos *repository.Repository, dev Devices, cfg Settings, log *logger.Logger) *Service {
	eventLog := NewEventLogService(repos.EventRepo)
	return &Service{
		EventLog:       eventLog,
		ModeController: NewController(dev, eventLog, cfg, log),
	}
}
