package worker

import (
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/realtime"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// StartRealtimeWorker subscribes the broadcaster so committed ticket events
// reach websocket rooms.
func StartRealtimeWorker(dispatcher events.Dispatcher, broadcaster *realtime.Broadcaster) {
	if dispatcher == nil || broadcaster == nil {
		return
	}
	broadcaster.RegisterHandlers(dispatcher)
}
