package mirror

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huectl/internal/bridge"
	"github.com/dokzlo13/huectl/internal/color"
)

// eventBlock is one entry of an event stream frame: a change kind plus the
// resources it touched.
type eventBlock struct {
	Type string            `json:"type"` // add, update, delete
	Data []json.RawMessage `json:"data"`
}

// resourcePatch is the sparse view of a changed resource. Absent fields stay
// nil and leave the mirrored resource untouched.
type resourcePatch struct {
	ID       string            `json:"id"`
	Type     ResourceType      `json:"type"`
	Metadata *metadataResource `json:"metadata"`
	Owner    *ResourceRef      `json:"owner"`
	On       *struct {
		On bool `json:"on"`
	} `json:"on"`
	Dimming *struct {
		Brightness float64 `json:"brightness"`
	} `json:"dimming"`
	Color *struct {
		XY *color.XY `json:"xy"`
	} `json:"color"`
	ColorTemperature *struct {
		Mirek *int `json:"mirek"`
	} `json:"color_temperature"`
	Status *string `json:"status"`
}

// ApplyEvent merges one event stream frame into the mirror. Unknown resource
// types and resources the mirror has never seen are skipped; structural
// changes (adds, deletes, renames) rebuild the name index.
func (m *Mirror) ApplyEvent(ev bridge.Event) {
	var blocks []eventBlock
	if err := json.Unmarshal(ev.Data, &blocks); err != nil {
		log.Warn().Err(err).Str("event_id", ev.ID).Msg("Discarding undecodable event frame")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reindex := false
	for _, block := range blocks {
		for _, item := range block.Data {
			switch block.Type {
			case "update":
				if m.applyUpdateLocked(item) {
					reindex = true
				}
			case "add":
				if err := m.applyAddLocked(item); err != nil {
					log.Warn().Err(err).Msg("Discarding undecodable resource add")
					continue
				}
				reindex = true
			case "delete":
				if m.applyDeleteLocked(item) {
					reindex = true
				}
			}
		}
	}
	if reindex {
		m.rebuildIndexLocked()
	}
}

// applyUpdateLocked patches one resource. Reports whether a name changed.
// Patched resources are cloned before mutation so snapshots handed to
// readers stay frozen.
func (m *Mirror) applyUpdateLocked(item json.RawMessage) bool {
	var p resourcePatch
	if err := json.Unmarshal(item, &p); err != nil {
		log.Warn().Err(err).Msg("Discarding undecodable resource update")
		return false
	}

	switch p.Type {
	case TypeLight:
		old, ok := m.lights[p.ID]
		if !ok {
			return false
		}
		light := *old
		renamed := false
		if p.Metadata != nil && p.Metadata.Name != "" && p.Metadata.Name != light.Name {
			light.Name = p.Metadata.Name
			renamed = true
		}
		if p.On != nil {
			light.On = p.On.On
		}
		if p.Dimming != nil {
			light.Brightness = p.Dimming.Brightness
		}
		if p.Color != nil && p.Color.XY != nil {
			light.XY = p.Color.XY
		}
		if p.ColorTemperature != nil && p.ColorTemperature.Mirek != nil {
			light.Mirek = *p.ColorTemperature.Mirek
		}
		m.lights[p.ID] = &light
		return renamed

	case TypeGroupedLight:
		old, ok := m.groupedLights[p.ID]
		if !ok {
			return false
		}
		grouped := *old
		if p.On != nil {
			grouped.On = p.On.On
		}
		if p.Dimming != nil {
			grouped.Brightness = p.Dimming.Brightness
		}
		m.groupedLights[p.ID] = &grouped
		return false

	case TypeConnectivity:
		if p.Status == nil {
			return false
		}
		deviceID := m.connOwners[p.ID]
		if deviceID == "" && p.Owner != nil {
			deviceID = p.Owner.ID
			m.connOwners[p.ID] = deviceID
		}
		if deviceID == "" {
			return false
		}
		m.propagateConnectivityLocked(deviceID, parseConnectivityStatus(*p.Status))
		return false

	case TypeDevice:
		old, ok := m.devices[p.ID]
		if !ok || p.Metadata == nil || p.Metadata.Name == "" || p.Metadata.Name == old.Name {
			return false
		}
		dev := *old
		dev.Name = p.Metadata.Name
		m.devices[p.ID] = &dev
		return true

	case TypeRoom:
		old, ok := m.rooms[p.ID]
		if !ok || p.Metadata == nil || p.Metadata.Name == "" || p.Metadata.Name == old.Name {
			return false
		}
		room := *old
		room.Name = p.Metadata.Name
		m.rooms[p.ID] = &room
		return true

	case TypeZone:
		old, ok := m.zones[p.ID]
		if !ok || p.Metadata == nil || p.Metadata.Name == "" || p.Metadata.Name == old.Name {
			return false
		}
		zone := *old
		zone.Name = p.Metadata.Name
		m.zones[p.ID] = &zone
		return true

	case TypeScene:
		old, ok := m.scenes[p.ID]
		if !ok || p.Metadata == nil || p.Metadata.Name == "" || p.Metadata.Name == old.Name {
			return false
		}
		scene := *old
		scene.Name = p.Metadata.Name
		m.scenes[p.ID] = &scene
		return false
	}
	return false
}

// propagateConnectivityLocked writes a device's new link state onto the
// device and every light it owns.
func (m *Mirror) propagateConnectivityLocked(deviceID string, status ConnectivityStatus) {
	if old, ok := m.devices[deviceID]; ok {
		dev := *old
		dev.Connectivity = status
		m.devices[deviceID] = &dev
	}
	for id, old := range m.lights {
		if old.OwnerID != deviceID {
			continue
		}
		light := *old
		light.Connectivity = status
		m.lights[id] = &light
	}
}

func (m *Mirror) applyAddLocked(item json.RawMessage) error {
	var kind struct {
		Type ResourceType `json:"type"`
	}
	if err := json.Unmarshal(item, &kind); err != nil {
		return err
	}

	switch kind.Type {
	case TypeLight:
		var r lightResource
		if err := json.Unmarshal(item, &r); err != nil {
			return err
		}
		light := r.toModel()
		if dev, ok := m.devices[light.OwnerID]; ok {
			light.Connectivity = dev.Connectivity
		}
		m.lights[r.ID] = light
	case TypeDevice:
		var r deviceResource
		if err := json.Unmarshal(item, &r); err != nil {
			return err
		}
		m.devices[r.ID] = r.toModel()
	case TypeRoom:
		var r groupResource
		if err := json.Unmarshal(item, &r); err != nil {
			return err
		}
		m.rooms[r.ID] = r.toRoom()
	case TypeZone:
		var r groupResource
		if err := json.Unmarshal(item, &r); err != nil {
			return err
		}
		m.zones[r.ID] = r.toZone()
	case TypeGroupedLight:
		var r groupedLightResource
		if err := json.Unmarshal(item, &r); err != nil {
			return err
		}
		m.groupedLights[r.ID] = r.toModel()
	case TypeScene:
		var r sceneResource
		if err := json.Unmarshal(item, &r); err != nil {
			return err
		}
		m.scenes[r.ID] = r.toModel()
	case TypeConnectivity:
		var r connectivityResource
		if err := json.Unmarshal(item, &r); err != nil {
			return err
		}
		m.connOwners[r.ID] = r.Owner.ID
		m.propagateConnectivityLocked(r.Owner.ID, parseConnectivityStatus(r.Status))
	default:
		return fmt.Errorf("unhandled resource type %q", kind.Type)
	}
	return nil
}

// applyDeleteLocked drops a resource. Reports whether a named resource went
// away.
func (m *Mirror) applyDeleteLocked(item json.RawMessage) bool {
	var p resourcePatch
	if err := json.Unmarshal(item, &p); err != nil {
		log.Warn().Err(err).Msg("Discarding undecodable resource delete")
		return false
	}

	switch p.Type {
	case TypeLight:
		delete(m.lights, p.ID)
		return true
	case TypeDevice:
		delete(m.devices, p.ID)
		return true
	case TypeRoom:
		delete(m.rooms, p.ID)
		return true
	case TypeZone:
		delete(m.zones, p.ID)
		return true
	case TypeGroupedLight:
		delete(m.groupedLights, p.ID)
	case TypeScene:
		delete(m.scenes, p.ID)
	case TypeConnectivity:
		delete(m.connOwners, p.ID)
	}
	return false
}
