package worker

import (
	"github.com/spec-kit/helpdesk-sla/internal/service"
)

// StartNotificationWorker subscribes the notification handlers, including the
// SLA breach escalation published by the sweep.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
