// Package alarms delivers plant alarm conditions (safety overtemp trips,
// mandatory-sensor failures, aggregation faults) to an operator, adapted
// from the teacher's internal/notifications: same ntfy.sh POST shape, bound
// to a *Notifier instance instead of package-level state.
package alarms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier posts alarm messages to an ntfy.sh topic.
type Notifier struct {
	client *http.Client
	topic  string
}

// New binds a Notifier to topic. An empty topic disables delivery; Send
// then returns nil without making a request, matching the teacher's
// "notifications disabled" behavior without requiring callers to branch.
func New(topic string) *Notifier {
	if topic == "" {
		return &Notifier{}
	}
	return &Notifier{client: &http.Client{Timeout: 10 * time.Second}, topic: topic}
}

// Send delivers title/message as an ntfy.sh push notification.
func (n *Notifier) Send(ctx context.Context, title, message string) error {
	if n == nil || n.client == nil {
		return nil
	}

	url := fmt.Sprintf("https://ntfy.sh/%s", n.topic)
	payload := map[string]any{
		"topic":   n.topic,
		"title":   title,
		"message": message,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("alarms: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alarms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("alarms: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alarms: ntfy returned status %d", resp.StatusCode)
	}
	return nil
}

// Overtemp reports a heat source's hard-max safety trip, the alarm spec.md
// §4.10 step 12 requires the orchestrator to emit every tick it stays latched.
func (n *Notifier) Overtemp(ctx context.Context, sourceName string) error {
	return n.Send(ctx, "Heat source overtemp", fmt.Sprintf("%s tripped its hard safety limit and was shut down", sourceName))
}

// SensorFault reports a mandatory sensor that failed validation.
func (n *Notifier) SensorFault(ctx context.Context, entityName, sensor string) error {
	return n.Send(ctx, "Sensor fault", fmt.Sprintf("%s: mandatory sensor %q is unusable", entityName, sensor))
}
