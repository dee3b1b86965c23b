package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Client is the slice of the bridge API the mirror reads from.
type Client interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
}

// Mirror holds the last known state of the bridge's resource graph.
//
// Sync replaces the whole graph atomically; ApplyEvent patches individual
// resources in place. Readers always observe a consistent snapshot: lookups
// take the read lock and patched resources are replaced, never mutated.
type Mirror struct {
	client Client

	mu            sync.RWMutex
	lights        map[string]*Light
	devices       map[string]*Device
	rooms         map[string]*Room
	zones         map[string]*Zone
	groupedLights map[string]*GroupedLight
	scenes        map[string]*Scene
	connOwners    map[string]string // connectivity resource id -> device id
	names         map[string]Target
}

func New(client Client) *Mirror {
	return &Mirror{
		client:        client,
		lights:        map[string]*Light{},
		devices:       map[string]*Device{},
		rooms:         map[string]*Room{},
		zones:         map[string]*Zone{},
		groupedLights: map[string]*GroupedLight{},
		scenes:        map[string]*Scene{},
		connOwners:    map[string]string{},
		names:         map[string]Target{},
	}
}

// normalize folds a resource name into its index key: lowercase, letters
// and digits only. "Living Room" and "living-room" collide on purpose.
func normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Sync re-fetches every tracked collection and swaps the graph in one step.
// This is a replace, never a merge: resources deleted on the bridge between
// syncs disappear. A collection that fails to fetch stays empty for this
// pass; the other collections still land.
func (m *Mirror) Sync(ctx context.Context) error {
	type fetch struct {
		path string
		raw  json.RawMessage
		err  error
	}
	fetches := []*fetch{
		{path: "/resource/light"},
		{path: "/resource/device"},
		{path: "/resource/room"},
		{path: "/resource/zone"},
		{path: "/resource/grouped_light"},
		{path: "/resource/scene"},
		{path: "/resource/zigbee_connectivity"},
	}

	var wg sync.WaitGroup
	for _, f := range fetches {
		wg.Add(1)
		go func(f *fetch) {
			defer wg.Done()
			f.raw, f.err = m.client.Get(ctx, f.path)
		}(f)
	}
	wg.Wait()

	next := &state{
		lights:        map[string]*Light{},
		devices:       map[string]*Device{},
		rooms:         map[string]*Room{},
		zones:         map[string]*Zone{},
		groupedLights: map[string]*GroupedLight{},
		scenes:        map[string]*Scene{},
		connOwners:    map[string]string{},
	}

	for _, f := range fetches {
		if f.err != nil {
			log.Warn().Err(f.err).Str("path", f.path).Msg("Resource fetch failed, collection left empty this pass")
			continue
		}
		if err := next.ingest(f.path, f.raw); err != nil {
			return err
		}
	}

	// Join connectivity onto devices and their lights.
	for _, light := range next.lights {
		if dev, ok := next.devices[light.OwnerID]; ok {
			light.Connectivity = dev.Connectivity
		}
	}

	m.mu.Lock()
	m.lights = next.lights
	m.devices = next.devices
	m.rooms = next.rooms
	m.zones = next.zones
	m.groupedLights = next.groupedLights
	m.scenes = next.scenes
	m.connOwners = next.connOwners
	m.rebuildIndexLocked()
	m.mu.Unlock()

	log.Debug().
		Int("lights", len(next.lights)).
		Int("rooms", len(next.rooms)).
		Int("zones", len(next.zones)).
		Int("scenes", len(next.scenes)).
		Msg("Mirror synced")
	return nil
}

// state is a graph under construction, not yet visible to readers.
type state struct {
	lights        map[string]*Light
	devices       map[string]*Device
	rooms         map[string]*Room
	zones         map[string]*Zone
	groupedLights map[string]*GroupedLight
	scenes        map[string]*Scene
	connOwners    map[string]string
}

func (s *state) ingest(path string, raw json.RawMessage) error {
	items, err := decodeCollection(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, item := range items {
		switch path {
		case "/resource/light":
			var r lightResource
			if err := json.Unmarshal(item, &r); err != nil {
				return fmt.Errorf("failed to decode light: %w", err)
			}
			s.lights[r.ID] = r.toModel()
		case "/resource/device":
			var r deviceResource
			if err := json.Unmarshal(item, &r); err != nil {
				return fmt.Errorf("failed to decode device: %w", err)
			}
			s.devices[r.ID] = r.toModel()
		case "/resource/room":
			var r groupResource
			if err := json.Unmarshal(item, &r); err != nil {
				return fmt.Errorf("failed to decode room: %w", err)
			}
			s.rooms[r.ID] = r.toRoom()
		case "/resource/zone":
			var r groupResource
			if err := json.Unmarshal(item, &r); err != nil {
				return fmt.Errorf("failed to decode zone: %w", err)
			}
			s.zones[r.ID] = r.toZone()
		case "/resource/grouped_light":
			var r groupedLightResource
			if err := json.Unmarshal(item, &r); err != nil {
				return fmt.Errorf("failed to decode grouped light: %w", err)
			}
			s.groupedLights[r.ID] = r.toModel()
		case "/resource/scene":
			var r sceneResource
			if err := json.Unmarshal(item, &r); err != nil {
				return fmt.Errorf("failed to decode scene: %w", err)
			}
			s.scenes[r.ID] = r.toModel()
		case "/resource/zigbee_connectivity":
			var r connectivityResource
			if err := json.Unmarshal(item, &r); err != nil {
				return fmt.Errorf("failed to decode connectivity: %w", err)
			}
			s.connOwners[r.ID] = r.Owner.ID
			if dev, ok := s.devices[r.Owner.ID]; ok {
				dev.Connectivity = parseConnectivityStatus(r.Status)
			}
		}
	}
	return nil
}

// rebuildIndexLocked recomputes the name index. Later categories win name
// collisions: a zone called "kitchen" shadows a light called "kitchen".
// Devices resolve to their first light service so "hue go" addresses the
// lamp, not the enclosure.
func (m *Mirror) rebuildIndexLocked() {
	names := map[string]Target{}
	for _, dev := range m.devices {
		for _, svc := range dev.Services {
			if svc.Type != TypeLight {
				continue
			}
			if light, ok := m.lights[svc.ID]; ok {
				names[normalize(dev.Name)] = light
				break
			}
		}
	}
	for _, light := range m.lights {
		names[normalize(light.Name)] = light
	}
	for _, room := range m.rooms {
		names[normalize(room.Name)] = room
	}
	for _, zone := range m.zones {
		names[normalize(zone.Name)] = zone
	}
	delete(names, "")
	m.names = names
}

// FindTarget resolves a free-text name to a light, room or zone. Exact
// normalized matches win; otherwise the query may be contained in a name or
// a name contained in the query, most specific match first.
func (m *Mirror) FindTarget(query string) Target {
	key := normalize(query)
	if key == "" {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if t, ok := m.names[key]; ok {
		return t
	}

	keys := make([]string, 0, len(m.names))
	for k := range m.names {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Query is a fragment of a name: prefer the shortest name containing it.
	var best string
	for _, k := range keys {
		if strings.Contains(k, key) && (best == "" || len(k) < len(best)) {
			best = k
		}
	}
	if best != "" {
		return m.names[best]
	}

	// Name is a fragment of the query: prefer the longest such name.
	for _, k := range keys {
		if strings.Contains(key, k) && len(k) > len(best) {
			best = k
		}
	}
	if best != "" {
		return m.names[best]
	}
	return nil
}

// FindScene resolves a scene name, optionally restricted to the scenes of
// one group. The scope is a strict filter: with a scope set, scenes of
// other groups never match. Names match on substring containment in either
// direction.
func (m *Mirror) FindScene(query string, scope Target) *Scene {
	key := normalize(query)
	if key == "" {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var groupID string
	switch t := scope.(type) {
	case *Room:
		groupID = t.ID
	case *Zone:
		groupID = t.ID
	}

	ids := make([]string, 0, len(m.scenes))
	for id := range m.scenes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sc := m.scenes[id]
		name := normalize(sc.Name)
		if !strings.Contains(name, key) && !strings.Contains(key, name) {
			continue
		}
		if groupID != "" && sc.GroupID != groupID {
			continue
		}
		return sc
	}
	return nil
}

// LightsFor expands a target into its member lights. Rooms go through their
// member devices' light services; zones reference lights directly.
func (m *Mirror) LightsFor(target Target) []*Light {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch t := target.(type) {
	case *Light:
		if light, ok := m.lights[t.ID]; ok {
			return []*Light{light}
		}
		return nil
	case *Room:
		var lights []*Light
		for _, devID := range t.DeviceIDs() {
			dev, ok := m.devices[devID]
			if !ok {
				continue
			}
			for _, svc := range dev.Services {
				if svc.Type != TypeLight {
					continue
				}
				if light, ok := m.lights[svc.ID]; ok {
					lights = append(lights, light)
				}
			}
		}
		return lights
	case *Zone:
		var lights []*Light
		for _, id := range t.LightIDs() {
			if light, ok := m.lights[id]; ok {
				lights = append(lights, light)
			}
		}
		return lights
	}
	return nil
}

// AllLights returns every known light, sorted by name for stable output.
func (m *Mirror) AllLights() []*Light {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lights := make([]*Light, 0, len(m.lights))
	for _, l := range m.lights {
		lights = append(lights, l)
	}
	sort.Slice(lights, func(i, j int) bool { return lights[i].Name < lights[j].Name })
	return lights
}

// GroupedLightFor returns the id of the target's aggregate control service,
// or "" when the target is a bare light.
func (m *Mirror) GroupedLightFor(target Target) string {
	switch t := target.(type) {
	case *Room:
		return t.GroupedLightID
	case *Zone:
		return t.GroupedLightID
	}
	return ""
}

// ScenesFor lists the scenes owned by a room or zone, sorted by name.
func (m *Mirror) ScenesFor(target Target) []*Scene {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var groupID string
	switch t := target.(type) {
	case *Room:
		groupID = t.ID
	case *Zone:
		groupID = t.ID
	default:
		return nil
	}

	var scenes []*Scene
	for _, sc := range m.scenes {
		if sc.GroupID == groupID {
			scenes = append(scenes, sc)
		}
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].Name < scenes[j].Name })
	return scenes
}

// Light returns a light by id.
func (m *Mirror) Light(id string) (*Light, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.lights[id]
	return l, ok
}

// Scene returns a scene by id.
func (m *Mirror) Scene(id string) (*Scene, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scenes[id]
	return s, ok
}
