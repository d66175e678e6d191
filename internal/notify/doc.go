// Package notify delivers alert trigger notifications to external
// channel endpoints (SMS and email gateways) over HTTP webhooks.
package notify
