package event

import (
	"encoding/json"
	"fmt"
)

// Upgrader rewrites an event payload from one schema version to the next.
// Upgraders form a chain: v1→v2, v2→v3, applied in sequence until the
// payload reaches the current version.
type Upgrader func(payload map[string]interface{}) (map[string]interface{}, error)

// SetCurrentVersion declares the current schema version of an event type.
// Payloads at an older version are upgraded during Deserialize.
func (s *EventSerializer) SetCurrentVersion(eventType string, version int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version < 1 {
		version = 1
	}
	s.currentVersions[eventType] = version
}

// RegisterUpgrader registers an upgrader that lifts payloads of the given
// event type from fromVersion to fromVersion+1
func (s *EventSerializer) RegisterUpgrader(eventType string, fromVersion int, up Upgrader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upgraders[eventType] == nil {
		s.upgraders[eventType] = make(map[int]Upgrader)
	}
	s.upgraders[eventType][fromVersion] = up
}

// CurrentVersion returns the declared current schema version of an event
// type, defaulting to 1
func (s *EventSerializer) CurrentVersion(eventType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.currentVersions[eventType]; ok {
		return v
	}
	return 1
}

// ExtractVersion reads the schema_version field from a raw payload.
// Payloads without the field are treated as version 1.
func ExtractVersion(data []byte) int {
	var envelope struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return 1
	}
	if envelope.SchemaVersion < 1 {
		return 1
	}
	return envelope.SchemaVersion
}

// upgradePayload applies the upgrader chain to bring a payload to the
// current schema version. A gap in the chain is an error: a payload that
// cannot be upgraded must not be silently misread.
func (s *EventSerializer) upgradePayload(eventType string, data []byte) ([]byte, error) {
	current := s.CurrentVersion(eventType)
	version := ExtractVersion(data)
	if version >= current {
		return data, nil
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse payload for upgrade: %w", err)
	}

	for v := version; v < current; v++ {
		s.mu.RLock()
		up := s.upgraders[eventType][v]
		s.mu.RUnlock()
		if up == nil {
			return nil, fmt.Errorf("no upgrader from version %d for event type %s", v, eventType)
		}
		next, err := up(payload)
		if err != nil {
			return nil, fmt.Errorf("upgrade of %s from version %d failed: %w", eventType, v, err)
		}
		payload = next
		payload["schema_version"] = v + 1
	}

	return json.Marshal(payload)
}
