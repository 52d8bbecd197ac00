package protocol

// MessageSendConfiguration carries optional execution configuration for
// message/send and message/stream.
type MessageSendConfiguration struct {
	// Blocking selects, for message/send, whether the caller wants the
	// dispatcher to block until the task reaches a resting state (true,
	// the default) or return the task immediately in its current state
	// (false). message/stream ignores Blocking: it always streams.
	Blocking *bool `json:"blocking,omitempty"`

	HistoryLength *int `json:"historyLength,omitempty"`
}

// IsBlocking reports the effective blocking mode, defaulting to true.
func (c *MessageSendConfiguration) IsBlocking() bool {
	if c == nil || c.Blocking == nil {
		return true
	}
	return *c.Blocking
}

// MessageSendParams is the params object for message/send and message/stream.
type MessageSendParams struct {
	Message       Message                    `json:"message"`
	Configuration *MessageSendConfiguration  `json:"configuration,omitempty"`
}

// TaskQueryParams is the params object for tasks/get.
type TaskQueryParams struct {
	ID            string         `json:"id"`
	HistoryLength *int           `json:"historyLength,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// TaskIDParams is the params object for tasks/cancel and tasks/resubscribe.
type TaskIDParams struct {
	ID string `json:"id"`
}

// GetTaskPushNotificationConfigParams is the params object for
// tasks/pushNotificationConfig/get.
type GetTaskPushNotificationConfigParams struct {
	ID             string `json:"id"`
	PushNotificationConfigID string `json:"pushNotificationConfigId,omitempty"`
}
