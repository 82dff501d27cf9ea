package action

import (
	"context"
	"fmt"

	"github.com/chorusflow/chorus/model"
	"github.com/chorusflow/chorus/notification"
)

// NotificationExecutor fans a message out over the channels named in the
// action config.
type NotificationExecutor struct {
	notifier *notification.Notifier
}

var _ Executor = new(NotificationExecutor)

func NewNotificationExecutor(notifier *notification.Notifier) *NotificationExecutor {
	return &NotificationExecutor{notifier: notifier}
}

func (e *NotificationExecutor) Type() model.ActionType {
	return model.ACTION_TYPE_NOTIFICATION
}

func (e *NotificationExecutor) Execute(ctx context.Context, config map[string]any, ec Context) (map[string]any, error) {
	message := configString(config, "message")
	if message == "" {
		return nil, fmt.Errorf("notification action requires a message")
	}
	var channels []string
	switch v := config["channels"].(type) {
	case []any:
		for _, c := range v {
			channels = append(channels, fmt.Sprintf("%v", c))
		}
	case []string:
		channels = v
	case string:
		channels = []string{v}
	}
	if channel := configString(config, "channel"); channel != "" {
		channels = append(channels, channel)
	}
	if len(channels) == 0 {
		channels = []string{"log"}
	}
	e.notifier.Notify(channels, message)
	return map[string]any{"channels": channels, "delivered": true}, nil
}
