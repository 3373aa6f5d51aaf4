package events

import (
	"encoding/json"
	"fmt"

	"github.com/thornfield/gatehouse/internal/audit"
)

// maxPayloadSize caps message payloads at 1MB, aligning with typical
// broker limits.
const maxPayloadSize = 1 << 20

// Publish sends a message to the given MQTT topic.
//
// QoS 0 is fire-and-forget, 1 guarantees at-least-once delivery, 2
// exactly-once. Retained messages are stored by the broker and delivered
// to new subscribers; use them for state topics only, never for events.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishAudit fans an audit record out to the event bus.
//
// Failures are logged and dropped: the persisted record in the database
// remains the source of truth, the bus is a convenience feed.
func (c *Client) PublishAudit(entry audit.Entry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Error("failed to encode audit event", "action", entry.Action, "error", err)
		}
		return
	}

	topic := auditTopic(c.cfg.TopicPrefix, entry.Action)
	if err := c.Publish(topic, payload, byte(c.cfg.QoS), false); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("failed to publish audit event", "topic", topic, "error", err)
		}
	}
}
