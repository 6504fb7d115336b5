package channel

// Inbound events sent by the dashboard backend.
const (
	EventConnected         = "connected"
	EventInstancesStatus   = "instances_status"
	EventStatusChange      = "status_change"
	EventUpdateResponse    = "update_response"
	EventMonitoringToggled = "monitoring_toggled"
	EventInstanceCreated   = "instance_created"
	EventInstanceUpdated   = "instance_updated"
	EventInstanceDeleted   = "instance_deleted"
	EventError             = "error"
)

// Outbound commands.
const (
	CommandGetInstancesStatus = "get_instances_status"
	CommandRequestUpdate      = "request_update"
	CommandToggleMonitoring   = "toggle_monitoring"
)

// RequestUpdatePayload asks the server to re-check one instance, or all when
// InstanceID is nil.
type RequestUpdatePayload struct {
	InstanceID any `json:"instanceId"`
}

// ToggleMonitoringPayload enables or disables health polling for an instance.
type ToggleMonitoringPayload struct {
	InstanceID   any  `json:"instanceId"`
	IsMonitoring bool `json:"isMonitoring"`
}
