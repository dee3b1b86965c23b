package mirror

import (
	"encoding/json"
	"fmt"

	"github.com/dokzlo13/huectl/internal/color"
)

// Wire shapes of the CLIP v2 collections. Decoded here, at the mirror
// boundary, and converted into the typed model immediately.

type collectionEnvelope struct {
	Data []json.RawMessage `json:"data"`
}

func decodeCollection(raw json.RawMessage) ([]json.RawMessage, error) {
	var env collectionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode resource collection: %w", err)
	}
	return env.Data, nil
}

type metadataResource struct {
	Name      string `json:"name"`
	Archetype string `json:"archetype"`
}

type lightResource struct {
	ID       string           `json:"id"`
	Metadata metadataResource `json:"metadata"`
	Owner    ResourceRef      `json:"owner"`
	On       *struct {
		On bool `json:"on"`
	} `json:"on"`
	Dimming *struct {
		Brightness float64 `json:"brightness"`
	} `json:"dimming"`
	Color *struct {
		XY        *color.XY    `json:"xy"`
		Gamut     *color.Gamut `json:"gamut"`
		GamutType string       `json:"gamut_type"`
	} `json:"color"`
	ColorTemperature *struct {
		Mirek       *int `json:"mirek"`
		MirekSchema struct {
			MirekMinimum int `json:"mirek_minimum"`
			MirekMaximum int `json:"mirek_maximum"`
		} `json:"mirek_schema"`
	} `json:"color_temperature"`
}

func (r *lightResource) toModel() *Light {
	light := &Light{
		ID:           r.ID,
		Name:         r.Metadata.Name,
		OwnerID:      r.Owner.ID,
		Brightness:   100,
		GamutType:    GamutTypeC,
		Connectivity: StatusUnknownConnectivity,
	}

	if r.On != nil {
		light.On = r.On.On
	}
	if r.Dimming != nil {
		light.Brightness = r.Dimming.Brightness
	}
	if r.Color != nil {
		light.SupportsColor = true
		light.XY = r.Color.XY
		light.Gamut = r.Color.Gamut
		switch r.Color.GamutType {
		case "A":
			light.GamutType = GamutTypeA
		case "B":
			light.GamutType = GamutTypeB
		case "C":
			light.GamutType = GamutTypeC
		default:
			if r.Color.GamutType != "" {
				light.GamutType = GamutTypeOther
			}
		}
	}
	if r.ColorTemperature != nil {
		light.SupportsMirek = true
		if r.ColorTemperature.Mirek != nil {
			light.Mirek = *r.ColorTemperature.Mirek
		}
		light.MirekMin = r.ColorTemperature.MirekSchema.MirekMinimum
		light.MirekMax = r.ColorTemperature.MirekSchema.MirekMaximum
	}

	return light
}

type deviceResource struct {
	ID          string           `json:"id"`
	Metadata    metadataResource `json:"metadata"`
	ProductData struct {
		ModelID          string `json:"model_id"`
		ManufacturerName string `json:"manufacturer_name"`
		ProductName      string `json:"product_name"`
	} `json:"product_data"`
	Services []ResourceRef `json:"services"`
}

func (r *deviceResource) toModel() *Device {
	return &Device{
		ID:           r.ID,
		Name:         r.Metadata.Name,
		ModelID:      r.ProductData.ModelID,
		Manufacturer: r.ProductData.ManufacturerName,
		ProductName:  r.ProductData.ProductName,
		Services:     r.Services,
		Connectivity: StatusUnknownConnectivity,
	}
}

type groupResource struct {
	ID       string           `json:"id"`
	Metadata metadataResource `json:"metadata"`
	Children []ResourceRef    `json:"children"`
	Services []ResourceRef    `json:"services"`
}

func (r *groupResource) groupedLightID() string {
	for _, s := range r.Services {
		if s.Type == TypeGroupedLight {
			return s.ID
		}
	}
	return ""
}

func (r *groupResource) toRoom() *Room {
	return &Room{
		ID:             r.ID,
		Name:           r.Metadata.Name,
		Archetype:      r.Metadata.Archetype,
		Children:       r.Children,
		Services:       r.Services,
		GroupedLightID: r.groupedLightID(),
	}
}

func (r *groupResource) toZone() *Zone {
	return &Zone{
		ID:             r.ID,
		Name:           r.Metadata.Name,
		Archetype:      r.Metadata.Archetype,
		Children:       r.Children,
		Services:       r.Services,
		GroupedLightID: r.groupedLightID(),
	}
}

type groupedLightResource struct {
	ID    string      `json:"id"`
	Owner ResourceRef `json:"owner"`
	On    *struct {
		On bool `json:"on"`
	} `json:"on"`
	Dimming *struct {
		Brightness float64 `json:"brightness"`
	} `json:"dimming"`
}

func (r *groupedLightResource) toModel() *GroupedLight {
	g := &GroupedLight{
		ID:        r.ID,
		OwnerID:   r.Owner.ID,
		OwnerType: r.Owner.Type,
	}
	if r.On != nil {
		g.On = r.On.On
	}
	if r.Dimming != nil {
		g.Brightness = r.Dimming.Brightness
	}
	return g
}

type sceneResource struct {
	ID       string           `json:"id"`
	Metadata metadataResource `json:"metadata"`
	Group    ResourceRef      `json:"group"`
	Speed    float64          `json:"speed"`
	AutoDyn  bool             `json:"auto_dynamic"`
}

func (r *sceneResource) toModel() *Scene {
	return &Scene{
		ID:          r.ID,
		Name:        r.Metadata.Name,
		GroupID:     r.Group.ID,
		GroupType:   r.Group.Type,
		Speed:       r.Speed,
		AutoDynamic: r.AutoDyn,
	}
}

type connectivityResource struct {
	ID     string      `json:"id"`
	Owner  ResourceRef `json:"owner"`
	Status string      `json:"status"`
}

func parseConnectivityStatus(s string) ConnectivityStatus {
	switch ConnectivityStatus(s) {
	case StatusConnected, StatusDisconnected, StatusConnectivityIssue,
		StatusUnidirectional, StatusPendingDiscovery:
		return ConnectivityStatus(s)
	default:
		return StatusUnknownConnectivity
	}
}
