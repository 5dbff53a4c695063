package a2a

import (
	"encoding/json"
	"fmt"
)

// PushNotificationConfig tells the remote agent where and how to deliver
// asynchronous task updates. It is embedded in the message/send configuration
// when the client has a webhook configured.
type PushNotificationConfig struct {
	// URL is the absolute webhook URL the agent should POST updates to.
	URL string `json:"url"`

	// Token is a client-generated correlation token, unique per task. The
	// agent echoes it back in the notification payload so the receiver can
	// match the update to the originating request.
	Token string `json:"token,omitempty"`

	// Authentication tells the agent how to authenticate itself to the
	// webhook endpoint.
	Authentication *PushAuthenticationInfo `json:"authentication,omitempty"`
}

// PushAuthenticationInfo names the auth scheme and credentials the agent must
// present when calling the webhook.
type PushAuthenticationInfo struct {
	Schemes     []string `json:"schemes"` // e.g. ["Bearer"]
	Credentials string   `json:"credentials,omitempty"`
}

// TaskNotification is the JSON payload a remote agent POSTs to the webhook
// when a task changes state.
type TaskNotification struct {
	// CorrelationToken is the token from the PushNotificationConfig of the
	// originating send. Required.
	CorrelationToken string `json:"correlationToken"`

	// Status is the new task state.
	Status TaskState `json:"status"`

	// Artifacts are outputs accumulated by the task, if any.
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// ParseTaskNotification decodes and validates a webhook payload.
func ParseTaskNotification(data []byte) (*TaskNotification, error) {
	var n TaskNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decode task notification: %w", err)
	}
	if n.CorrelationToken == "" {
		return nil, fmt.Errorf("task notification: correlationToken is required")
	}
	if !n.Status.Valid() {
		return nil, fmt.Errorf("task notification: unknown status %q", n.Status)
	}
	return &n, nil
}
