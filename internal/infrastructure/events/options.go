package events

import (
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/thornfield/gatehouse/internal/infrastructure/config"
)

// buildClientOptions creates paho MQTT options from the events config.
//
// The initial connection is a single attempt so startup fails fast when
// the broker is unreachable; reconnection after a drop retries with
// backoff in the background.
func buildClientOptions(cfg config.EventsConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(defaultMaxReconnectInterval)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	return opts
}

// configureLWT sets the Last Will and Testament so consumers detect an
// unexpected disconnect. Published by the broker, retained.
func configureLWT(opts *pahomqtt.ClientOptions, cfg config.EventsConfig) {
	willPayload := fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"unexpected_disconnect","timestamp":"%s"}`,
		cfg.ClientID,
		time.Now().UTC().Format(time.RFC3339),
	)

	opts.SetWill(statusTopic(cfg.TopicPrefix), willPayload, 1, true)
}

// buildOnlinePayload creates the JSON payload for online status messages.
func buildOnlinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"online","client_id":"%s","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// buildOfflinePayload creates the JSON payload for graceful offline status.
func buildOfflinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"graceful_shutdown","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// statusTopic returns the retained service status topic.
//
// Example: gatehouse/system/status
func statusTopic(prefix string) string {
	return prefix + "/system/status"
}

// auditTopic returns the topic for an audit action. Dots in the action
// name become topic levels so consumers can subscribe per category.
//
// Example: auth.login -> gatehouse/audit/auth/login
func auditTopic(prefix, action string) string {
	return prefix + "/audit/" + strings.ReplaceAll(action, ".", "/")
}
