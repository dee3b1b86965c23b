// Package command turns free-form text into structured light control
// intents and executes them against the bridge.
package command

import (
	"fmt"
	"time"

	"github.com/dokzlo13/huectl/internal/color"
	"github.com/dokzlo13/huectl/internal/mirror"
)

// DefaultTransition is applied to state changes that carry no explicit
// transition override.
const DefaultTransition = 400 * time.Millisecond

// Action classifies a parsed command.
type Action string

const (
	ActionState       Action = "state"
	ActionScene       Action = "scene"
	ActionEffect      Action = "effect"
	ActionTimedEffect Action = "timed_effect"
	ActionSignal      Action = "signal"
	ActionManage      Action = "manage"
)

// InvalidCommandError reports text the interpreter could not make sense of.
type InvalidCommandError struct {
	Command string
	Reason  string
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("invalid command %q: %s", e.Command, e.Reason)
}

// TargetNotFoundError reports a name that resolved to no light, room or zone.
type TargetNotFoundError struct {
	Name string
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("no light, room or zone matches %q", e.Name)
}

// SceneNotFoundError reports a scene name with no match.
type SceneNotFoundError struct {
	Name string
}

func (e *SceneNotFoundError) Error() string {
	return fmt.Sprintf("no scene matches %q", e.Name)
}

// Wire fragments of a light state write. Absent sections are omitted so a
// write only touches what the command named.

type OnState struct {
	On bool `json:"on"`
}

type DimmingState struct {
	Brightness float64 `json:"brightness"`
}

type ColorState struct {
	XY color.XY `json:"xy"`
}

type MirekState struct {
	Mirek int `json:"mirek"`
}

type DynamicsState struct {
	Duration int `json:"duration"` // milliseconds
}

// StatePayload is the body of a light or grouped-light state write.
type StatePayload struct {
	On               *OnState       `json:"on,omitempty"`
	Dimming          *DimmingState  `json:"dimming,omitempty"`
	Color            *ColorState    `json:"color,omitempty"`
	ColorTemperature *MirekState    `json:"color_temperature,omitempty"`
	Dynamics         *DynamicsState `json:"dynamics,omitempty"`
}

// Empty reports whether the payload changes anything. Dynamics alone does
// not count, it only shapes a change.
func (p *StatePayload) Empty() bool {
	return p.On == nil && p.Dimming == nil && p.Color == nil && p.ColorTemperature == nil
}

// EffectPayload selects a built-in light effect.
type EffectPayload struct {
	Effects struct {
		Effect string `json:"effect"`
	} `json:"effects"`
}

func NewEffectPayload(effect string) *EffectPayload {
	p := &EffectPayload{}
	p.Effects.Effect = effect
	return p
}

// TimedEffectPayload runs a sunrise/sunset simulation over a duration.
type TimedEffectPayload struct {
	TimedEffects struct {
		Effect   string `json:"effect"`
		Duration int64  `json:"duration"` // milliseconds
	} `json:"timed_effects"`
}

func NewTimedEffectPayload(effect string, duration time.Duration) *TimedEffectPayload {
	p := &TimedEffectPayload{}
	p.TimedEffects.Effect = effect
	p.TimedEffects.Duration = duration.Milliseconds()
	return p
}

// SignalPayload flashes a light or group for a bounded duration.
type SignalPayload struct {
	Signaling struct {
		Signal   string `json:"signal"`
		Duration int64  `json:"duration"` // milliseconds
	} `json:"signaling"`
}

func NewSignalPayload(signal string, duration time.Duration) *SignalPayload {
	p := &SignalPayload{}
	p.Signaling.Signal = signal
	p.Signaling.Duration = duration.Milliseconds()
	return p
}

// IdentifyPayload triggers the breathe cycle on a single light.
type IdentifyPayload struct {
	Identify struct {
		Action string `json:"action"`
	} `json:"identify"`
}

func NewIdentifyPayload() *IdentifyPayload {
	p := &IdentifyPayload{}
	p.Identify.Action = "identify"
	return p
}

// RecallPayload activates a scene.
type RecallPayload struct {
	Recall struct {
		Action   string `json:"action"`
		Duration *int64 `json:"duration,omitempty"` // milliseconds
	} `json:"recall"`
}

func NewRecallPayload(duration time.Duration) *RecallPayload {
	p := &RecallPayload{}
	p.Recall.Action = "active"
	if duration > 0 {
		ms := duration.Milliseconds()
		p.Recall.Duration = &ms
	}
	return p
}

// renamePayload updates a resource's display name.
type renamePayload struct {
	Metadata struct {
		Name string `json:"name"`
	} `json:"metadata"`
}

// ManageOp is a resource management primitive.
type ManageOp string

const (
	ManageDeleteScene    ManageOp = "delete_scene"
	ManageRenameScene    ManageOp = "rename_scene"
	ManageRenameTarget   ManageOp = "rename_target"
	ManageDuplicateScene ManageOp = "duplicate_scene"
)

// ManageRequest is a parsed management command.
type ManageRequest struct {
	Op      ManageOp
	Scene   *mirror.Scene
	Target  mirror.Target
	NewName string
}

// ParsedCommand is a structured intent ready for execution.
type ParsedCommand struct {
	Action     Action
	Target     mirror.Target // nil means "all lights" for state intents
	TargetName string
	Scene      *mirror.Scene

	State      *StatePayload
	Transition time.Duration

	Effect         string
	EffectDuration time.Duration // timed effects and signals

	Signal string

	Manage *ManageRequest

	// UseGroupedLight selects the aggregate endpoint for room/zone targets.
	UseGroupedLight bool
}

// Result describes the outcome of an executed command.
type Result struct {
	Success        bool
	Message        string
	TargetName     string
	AffectedLights int
	Unreachable    []string // light names listed for the caller, still attempted
	Errors         []string
}
