package provider

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rileyhilliard/instsync/internal/channel"
	"github.com/rileyhilliard/instsync/internal/instance"
)

// ackPayload covers the fields shared by update_response and
// monitoring_toggled.
type ackPayload struct {
	Success      bool           `json:"success"`
	Message      string         `json:"message"`
	InstanceID   any            `json:"instanceId"`
	IsMonitoring *bool          `json:"isMonitoring"`
	Instance     map[string]any `json:"instance"`
}

// dispatch applies one inbound push event. Malformed events are logged and
// dropped; they never affect the connection.
func (p *Provider) dispatch(name string, data []byte) {
	var err error
	switch name {
	case channel.EventConnected:
		p.log.Debug("server greeted: %s", data)
	case channel.EventInstancesStatus:
		err = p.onSnapshot(data)
	case channel.EventStatusChange:
		err = p.onStatusChange(data)
	case channel.EventUpdateResponse:
		err = p.onUpdateResponse(data)
	case channel.EventMonitoringToggled:
		err = p.onMonitoringToggled(data)
	case channel.EventInstanceCreated:
		err = p.onInstanceCreated(data)
	case channel.EventInstanceUpdated:
		err = p.onInstanceUpdated(data)
	case channel.EventInstanceDeleted:
		err = p.onInstanceDeleted(data)
	case channel.EventError:
		p.onServerError(data)
	default:
		p.log.Debug("ignoring unknown event %q", name)
	}
	if err != nil {
		p.log.Warn("dropping %s event: %v", name, err)
	}
}

func (p *Provider) onSnapshot(data []byte) error {
	items, err := snapshotItems(data)
	if err != nil {
		return err
	}

	records := make([]instance.Record, 0, len(items))
	for i, item := range items {
		var raw map[string]any
		if err := json.Unmarshal(item, &raw); err != nil {
			p.log.Warn("snapshot entry %d is not an object", i)
			continue
		}
		r, err := instance.Decode(raw)
		if err != nil {
			p.log.Warn("snapshot entry %d: %v", i, err)
			continue
		}
		records = append(records, r)
	}
	if len(records) == 0 && len(items) > 0 {
		return fmt.Errorf("none of the %d snapshot entries decoded", len(items))
	}
	p.store.ApplySnapshot(records)
	p.acks.resolveAll(ackRefreshAll, nil, "")
	return nil
}

// snapshotItems accepts a JSON array or {"instances": [...]}. Anything else,
// null included, is rejected so it can't be mistaken for an empty snapshot.
func snapshotItems(data []byte) ([]json.RawMessage, error) {
	list := bytes.TrimSpace(data)
	if len(list) > 0 && list[0] == '{' {
		var wrapped struct {
			Instances json.RawMessage `json:"instances"`
		}
		if err := json.Unmarshal(list, &wrapped); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		list = bytes.TrimSpace(wrapped.Instances)
	}
	if len(list) == 0 || list[0] != '[' {
		return nil, fmt.Errorf("payload is neither a list nor {instances: [...]}")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(list, &items); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return items, nil
}

func (p *Provider) onStatusChange(data []byte) error {
	raw, err := decodeObject(data)
	if err != nil {
		return err
	}
	id, ok := eventID(raw)
	if !ok {
		return fmt.Errorf("missing instanceId")
	}
	fields := raw
	if changes, ok := raw["changes"].(map[string]any); ok {
		fields = changes
	}
	patch, err := instance.DecodePatch(fields)
	if err != nil {
		return err
	}
	if patch.Empty() {
		p.log.Debug("status_change for %s carried no known fields", id)
		return nil
	}
	p.store.ApplyPatch(id, patch)
	return nil
}

func (p *Provider) onUpdateResponse(data []byte) error {
	var ack ackPayload
	if err := json.Unmarshal(data, &ack); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if !ack.Success {
		err := &CommandError{Command: channel.CommandRequestUpdate, Message: ack.Message}
		if !p.acks.failOldest(err, ack.Message, ackRefreshOne, ackRefreshAll) {
			p.log.Warn("unmatched failed update_response: %s", ack.Message)
		}
		return nil
	}
	if ack.Instance == nil {
		return fmt.Errorf("successful update_response without instance")
	}
	r, err := instance.Decode(ack.Instance)
	if err != nil {
		return err
	}
	p.store.ApplyCreate(r)
	p.acks.resolve(ackRefreshOne, r.ID, nil, ack.Message)
	return nil
}

func (p *Provider) onMonitoringToggled(data []byte) error {
	var ack ackPayload
	if err := json.Unmarshal(data, &ack); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if !ack.Success {
		err := &CommandError{Command: channel.CommandToggleMonitoring, Message: ack.Message}
		if !p.acks.failOldest(err, ack.Message, ackToggle) {
			p.log.Warn("unmatched failed monitoring_toggled: %s", ack.Message)
		}
		return nil
	}
	id, ok := instance.ParseID(ack.InstanceID)
	if !ok {
		return fmt.Errorf("missing instanceId")
	}
	if ack.IsMonitoring != nil {
		p.store.ApplyPatch(id, instance.Patch{IsMonitoring: ack.IsMonitoring})
	}
	p.acks.resolve(ackToggle, id, nil, ack.Message)
	return nil
}

func (p *Provider) onInstanceCreated(data []byte) error {
	r, err := decodeInstanceEvent(data)
	if err != nil {
		return err
	}
	p.store.ApplyCreate(r)
	return nil
}

func (p *Provider) onInstanceUpdated(data []byte) error {
	r, err := decodeInstanceEvent(data)
	if err != nil {
		return err
	}
	p.store.ApplyUpdate(r)
	return nil
}

func (p *Provider) onInstanceDeleted(data []byte) error {
	raw, err := decodeObject(data)
	if err != nil {
		return err
	}
	id, ok := eventID(raw)
	if !ok {
		return fmt.Errorf("missing instanceId")
	}
	p.store.ApplyDelete(id)
	return nil
}

func (p *Provider) onServerError(data []byte) {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(data, &payload)
	p.log.Error("server error: %s", payload.Message)
	err := &CommandError{Command: channel.CommandGetInstancesStatus, Message: payload.Message}
	p.acks.failOldest(err, payload.Message, ackRefreshAll)
}

func decodeObject(data []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("payload is not an object")
	}
	return raw, nil
}

// decodeInstanceEvent accepts {instance: {...}} or a bare record.
func decodeInstanceEvent(data []byte) (instance.Record, error) {
	raw, err := decodeObject(data)
	if err != nil {
		return instance.Record{}, err
	}
	if inner, ok := raw["instance"].(map[string]any); ok {
		raw = inner
	}
	return instance.Decode(raw)
}

func eventID(raw map[string]any) (instance.ID, bool) {
	for _, key := range []string{"instanceId", "instance_id", "id"} {
		if v, ok := raw[key]; ok {
			return instance.ParseID(v)
		}
	}
	return "", false
}
