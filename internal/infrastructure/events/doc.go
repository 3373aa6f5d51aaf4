// Package events publishes audit records to an MQTT broker so external
// consumers (SIEM collectors, dashboards) can follow authentication and
// access-policy activity in near real time.
//
// Publishing is best-effort. A broker outage never blocks or fails the
// operation being audited; the client reconnects in the background and
// resumes publishing once the broker returns.
package events
