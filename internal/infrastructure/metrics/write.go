package metrics

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// RecordLogin writes one login outcome.
//
// method is the credential source that decided the attempt ("local" or
// "directory"); result is "success" or "failure". Both are low-cardinality
// tags so dashboards can break attempts down by source and outcome.
func (c *Client) RecordLogin(method, result string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"logins",
		map[string]string{
			"method": method,
			"result": result,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordRevocation writes one session revocation event.
//
// via identifies what triggered it: "logout_all", "password_change" or
// "password_reset".
func (c *Client) RecordRevocation(via string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"revocations",
		map[string]string{
			"via": via,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point for measurements the helpers don't
// cover. Tags should stay low-cardinality.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
