// Package mirror maintains an in-memory copy of the bridge's resource graph
// and a name index for fuzzy lookup. It is refreshed wholesale by Sync and
// patched incrementally from the event stream.
package mirror

import (
	"github.com/dokzlo13/huectl/internal/color"
)

// ResourceType is the closed set of resource kinds the mirror tracks.
// Type strings from the wire are decoded into this enum once, at the mirror
// boundary; everything past it switches exhaustively.
type ResourceType string

const (
	TypeLight        ResourceType = "light"
	TypeDevice       ResourceType = "device"
	TypeRoom         ResourceType = "room"
	TypeZone         ResourceType = "zone"
	TypeGroupedLight ResourceType = "grouped_light"
	TypeScene        ResourceType = "scene"
	TypeConnectivity ResourceType = "zigbee_connectivity"
)

// ConnectivityStatus is the Zigbee link state of a device.
type ConnectivityStatus string

const (
	StatusConnected           ConnectivityStatus = "connected"
	StatusDisconnected        ConnectivityStatus = "disconnected"
	StatusConnectivityIssue   ConnectivityStatus = "connectivity_issue"
	StatusUnidirectional      ConnectivityStatus = "unidirectional_incoming"
	StatusPendingDiscovery    ConnectivityStatus = "pending_discovery"
	StatusUnknownConnectivity ConnectivityStatus = "unknown"
)

// ResourceRef is a weak pointer to another resource, never ownership.
type ResourceRef struct {
	ID   string       `json:"rid"`
	Type ResourceType `json:"rtype"`
}

// GamutType classifies a light's color hardware generation.
type GamutType string

const (
	GamutTypeA     GamutType = "A"
	GamutTypeB     GamutType = "B"
	GamutTypeC     GamutType = "C"
	GamutTypeOther GamutType = "other"
)

// Light is a controllable light service.
type Light struct {
	ID      string
	Name    string
	OwnerID string // owning device

	On         bool
	Brightness float64 // 0-100

	SupportsColor bool
	SupportsMirek bool
	XY            *color.XY
	Mirek         int // 0 when unset
	MirekMin      int
	MirekMax      int

	GamutType GamutType
	Gamut     *color.Gamut

	// Connectivity is propagated from the owning device's zigbee service.
	// Reachability is always derived from it, never stored.
	Connectivity ConnectivityStatus
}

// Reachable reports whether the light's device is currently connected.
func (l *Light) Reachable() bool {
	return l.Connectivity == StatusConnected
}

// ColorGamut returns the gamut for color conversion: the explicit triangle
// when the bridge reported one, otherwise the triangle for the gamut class.
func (l *Light) ColorGamut() color.Gamut {
	if l.Gamut != nil {
		return *l.Gamut
	}
	switch l.GamutType {
	case GamutTypeA:
		return color.GamutA
	case GamutTypeB:
		return color.GamutB
	default:
		return color.GamutC
	}
}

// Device is a physical product exposing services (lights, connectivity).
type Device struct {
	ID           string
	Name         string
	ModelID      string
	Manufacturer string
	ProductName  string
	Services     []ResourceRef
	Connectivity ConnectivityStatus
}

// Room groups devices by physical location. Children are device references;
// reaching the lights means following room -> device -> light.
type Room struct {
	ID             string
	Name           string
	Archetype      string
	Children       []ResourceRef // devices
	Services       []ResourceRef
	GroupedLightID string
}

// DeviceIDs returns the ids of the room's member devices.
func (r *Room) DeviceIDs() []string {
	var ids []string
	for _, c := range r.Children {
		if c.Type == TypeDevice {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Zone groups lights by any criteria. Unlike Room, children reference
// lights directly.
type Zone struct {
	ID             string
	Name           string
	Archetype      string
	Children       []ResourceRef // lights
	Services       []ResourceRef
	GroupedLightID string
}

// LightIDs returns the ids of the zone's member lights.
func (z *Zone) LightIDs() []string {
	var ids []string
	for _, c := range z.Children {
		if c.Type == TypeLight {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// GroupedLight is the aggregate control surface of a room or zone, a
// write-optimized proxy rather than an independent light.
type GroupedLight struct {
	ID         string
	OwnerID    string
	OwnerType  ResourceType
	On         bool
	Brightness float64
}

// Scene is a stored light configuration owned by a room or zone.
type Scene struct {
	ID          string
	Name        string
	GroupID     string
	GroupType   ResourceType // room or zone
	Speed       float64      // dynamic palette speed, 0-1
	AutoDynamic bool
}

// Target is a name-addressable control target: *Light, *Room or *Zone.
type Target interface {
	TargetID() string
	TargetName() string
}

func (l *Light) TargetID() string   { return l.ID }
func (l *Light) TargetName() string { return l.Name }
func (r *Room) TargetID() string    { return r.ID }
func (r *Room) TargetName() string  { return r.Name }
func (z *Zone) TargetID() string    { return z.ID }
func (z *Zone) TargetName() string  { return z.Name }
