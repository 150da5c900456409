// Package metrics provides the Prometheus collectors of the audio session service.
package metrics

// Label names shared by the collectors.
const (
	LabelDevice = "device"
	LabelKind   = "kind"
	LabelQueue  = "queue"
	LabelReason = "reason"
)

// Namespace prefixes every metric name.
const Namespace = "audiosessions"

// MQTT publish outcomes.
const (
	PublishOK         = "ok"
	PublishSuppressed = "suppressed"
	PublishFailed     = "failed"
)
