package services

import (
	"context"
	"log/slog"
	"time"
)

type WorkflowCleanupService interface {
	Start(ctx context.Context)
}

type workflowCleanupService struct {
	workflows WorkflowService
	logger    *slog.Logger
	interval  time.Duration
	idle      time.Duration
}

// NewWorkflowCleanupService stops shell workflows abandoned by their client.
func NewWorkflowCleanupService(workflows WorkflowService, logger *slog.Logger, intervalSeconds, idleSeconds int) WorkflowCleanupService {
	if intervalSeconds <= 0 {
		intervalSeconds = 60
	}
	if idleSeconds <= 0 {
		idleSeconds = 1800
	}
	return &workflowCleanupService{
		workflows: workflows,
		logger:    logger,
		interval:  time.Duration(intervalSeconds) * time.Second,
		idle:      time.Duration(idleSeconds) * time.Second,
	}
}

func (s *workflowCleanupService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.workflows.CleanupIdle(s.idle, time.Now()); removed > 0 {
				s.logger.Info("workflow cleanup removed", "count", removed)
			}
		}
	}
}
