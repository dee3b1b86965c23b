package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huectl/internal/mirror"
)

// Client is the slice of the bridge API the executor writes through. Group
// writes go through the stricter rate tier.
type Client interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Put(ctx context.Context, path string, body any) (json.RawMessage, error)
	PutGroup(ctx context.Context, path string, body any) (json.RawMessage, error)
	Post(ctx context.Context, path string, body any) (json.RawMessage, error)
	Delete(ctx context.Context, path string) (json.RawMessage, error)
}

// Executor turns parsed commands into bridge writes.
type Executor struct {
	client Client
	mirror *mirror.Mirror
}

func NewExecutor(client Client, m *mirror.Mirror) *Executor {
	return &Executor{client: client, mirror: m}
}

// Execute runs one parsed command. Failures land in the result rather than
// an error return: partial success is still success.
func (e *Executor) Execute(ctx context.Context, cmd *ParsedCommand) *Result {
	log.Debug().
		Str("action", string(cmd.Action)).
		Str("target", cmd.TargetName).
		Msg("Executing command")

	switch cmd.Action {
	case ActionState:
		return e.executeState(ctx, cmd)
	case ActionScene:
		return e.executeScene(ctx, cmd)
	case ActionEffect:
		return e.executeFragment(ctx, cmd, NewEffectPayload(cmd.Effect), fmt.Sprintf("Set %s effect", cmd.Effect))
	case ActionTimedEffect:
		message := fmt.Sprintf("Started %s (%d min)", cmd.Effect, int(cmd.EffectDuration.Minutes()))
		return e.executeFragment(ctx, cmd, NewTimedEffectPayload(cmd.Effect, cmd.EffectDuration), message)
	case ActionSignal:
		return e.executeSignal(ctx, cmd)
	case ActionManage:
		return e.executeManage(ctx, cmd)
	}
	return &Result{Success: false, Message: fmt.Sprintf("Unknown action type: %s", cmd.Action)}
}

func (e *Executor) executeState(ctx context.Context, cmd *ParsedCommand) *Result {
	if cmd.Target == nil {
		return e.perLight(ctx, cmd.State, e.mirror.AllLights(), cmd, "")
	}

	lights := e.mirror.LightsFor(cmd.Target)
	unreachable := unreachableNames(lights)

	// Fast path: one write to the aggregate endpoint covers the whole group.
	if cmd.UseGroupedLight {
		if groupedID := e.mirror.GroupedLightFor(cmd.Target); groupedID != "" {
			_, err := e.client.PutGroup(ctx, "/resource/grouped_light/"+groupedID, cmd.State)
			if err != nil {
				return &Result{
					Success:     false,
					Message:     fmt.Sprintf("Failed: %v", err),
					TargetName:  cmd.TargetName,
					Unreachable: unreachable,
					Errors:      []string{err.Error()},
				}
			}
			return &Result{
				Success:        true,
				Message:        stateMessage(cmd, len(lights)),
				TargetName:     cmd.TargetName,
				AffectedLights: len(lights),
				Unreachable:    unreachable,
			}
		}
	}
	return e.perLight(ctx, cmd.State, lights, cmd, "")
}

// perLight writes a payload to each light independently. One light's
// failure never aborts the others; unreachable lights are still attempted
// and the bridge gets the final say.
func (e *Executor) perLight(ctx context.Context, payload any, lights []*mirror.Light, cmd *ParsedCommand, message string) *Result {
	var errs []string
	succeeded := 0
	for _, light := range lights {
		if _, err := e.client.Put(ctx, "/resource/light/"+light.ID, payload); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", light.Name, err))
			continue
		}
		succeeded++
	}

	if message == "" {
		message = stateMessage(cmd, succeeded)
	}
	return &Result{
		Success:        succeeded > 0,
		Message:        message,
		TargetName:     cmd.TargetName,
		AffectedLights: succeeded,
		Unreachable:    unreachableNames(lights),
		Errors:         errs,
	}
}

func (e *Executor) executeScene(ctx context.Context, cmd *ParsedCommand) *Result {
	if cmd.Scene == nil {
		return &Result{Success: false, Message: "No scene specified"}
	}
	_, err := e.client.Put(ctx, "/resource/scene/"+cmd.Scene.ID, NewRecallPayload(cmd.Transition))
	if err != nil {
		return &Result{
			Success:    false,
			Message:    fmt.Sprintf("Failed to activate scene: %v", err),
			TargetName: cmd.TargetName,
			Errors:     []string{err.Error()},
		}
	}
	return &Result{
		Success:    true,
		Message:    fmt.Sprintf("Activated scene '%s'", cmd.Scene.Name),
		TargetName: cmd.TargetName,
	}
}

// executeFragment writes a single payload fragment (effect, timed effect,
// signal) to the resolved target: the grouped-light endpoint for groups,
// otherwise the light itself.
func (e *Executor) executeFragment(ctx context.Context, cmd *ParsedCommand, payload any, message string) *Result {
	lights := e.mirror.LightsFor(cmd.Target)
	unreachable := unreachableNames(lights)

	if cmd.UseGroupedLight {
		if groupedID := e.mirror.GroupedLightFor(cmd.Target); groupedID != "" {
			if _, err := e.client.PutGroup(ctx, "/resource/grouped_light/"+groupedID, payload); err != nil {
				return &Result{
					Success:     false,
					Message:     fmt.Sprintf("Failed: %v", err),
					TargetName:  cmd.TargetName,
					Unreachable: unreachable,
					Errors:      []string{err.Error()},
				}
			}
			return &Result{
				Success:        true,
				Message:        message,
				TargetName:     cmd.TargetName,
				AffectedLights: len(lights),
				Unreachable:    unreachable,
			}
		}
	}
	return e.perLight(ctx, payload, lights, cmd, message)
}

func (e *Executor) executeSignal(ctx context.Context, cmd *ParsedCommand) *Result {
	// Identify is a light-only endpoint; for groups it degrades to an
	// on/off signal with the identify duration.
	if cmd.Signal == "identify" {
		if light, ok := cmd.Target.(*mirror.Light); ok {
			if _, err := e.client.Put(ctx, "/resource/light/"+light.ID, NewIdentifyPayload()); err != nil {
				return &Result{
					Success:    false,
					Message:    fmt.Sprintf("Failed to identify: %v", err),
					TargetName: cmd.TargetName,
					Errors:     []string{err.Error()},
				}
			}
			return &Result{
				Success:        true,
				Message:        fmt.Sprintf("Identifying %s", light.Name),
				TargetName:     cmd.TargetName,
				AffectedLights: 1,
			}
		}
	}
	return e.executeFragment(ctx, cmd, NewSignalPayload("on_off", cmd.EffectDuration), fmt.Sprintf("Signaling %s", cmd.TargetName))
}

func (e *Executor) executeManage(ctx context.Context, cmd *ParsedCommand) *Result {
	req := cmd.Manage
	if req == nil {
		return &Result{Success: false, Message: "No management request"}
	}

	fail := func(format string, err error) *Result {
		return &Result{
			Success:    false,
			Message:    fmt.Sprintf(format, err),
			TargetName: cmd.TargetName,
			Errors:     []string{err.Error()},
		}
	}

	switch req.Op {
	case ManageDeleteScene:
		if _, err := e.client.Delete(ctx, "/resource/scene/"+req.Scene.ID); err != nil {
			return fail("Failed to delete scene: %v", err)
		}
		return &Result{
			Success:    true,
			Message:    fmt.Sprintf("Deleted scene '%s'", req.Scene.Name),
			TargetName: cmd.TargetName,
		}

	case ManageRenameScene:
		var body renamePayload
		body.Metadata.Name = req.NewName
		if _, err := e.client.Put(ctx, "/resource/scene/"+req.Scene.ID, &body); err != nil {
			return fail("Failed to rename scene: %v", err)
		}
		return &Result{
			Success:    true,
			Message:    fmt.Sprintf("Renamed scene '%s' to '%s'", req.Scene.Name, req.NewName),
			TargetName: cmd.TargetName,
		}

	case ManageRenameTarget:
		path, err := targetPath(req.Target)
		if err != nil {
			return fail("Failed to rename: %v", err)
		}
		var body renamePayload
		body.Metadata.Name = req.NewName
		if _, err := e.client.Put(ctx, path, &body); err != nil {
			return fail("Failed to rename: %v", err)
		}
		return &Result{
			Success:    true,
			Message:    fmt.Sprintf("Renamed '%s' to '%s'", req.Target.TargetName(), req.NewName),
			TargetName: cmd.TargetName,
		}

	case ManageDuplicateScene:
		if err := e.duplicateScene(ctx, req.Scene, req.NewName); err != nil {
			return fail("Failed to duplicate scene: %v", err)
		}
		return &Result{
			Success:    true,
			Message:    fmt.Sprintf("Duplicated scene '%s' as '%s'", req.Scene.Name, req.NewName),
			TargetName: cmd.TargetName,
		}
	}
	return &Result{Success: false, Message: fmt.Sprintf("Unknown management operation: %s", req.Op)}
}

// duplicateScene re-posts an existing scene's definition under a new name.
// The full definition (actions, palette) only lives on the bridge, so it is
// fetched fresh rather than read from the mirror.
func (e *Executor) duplicateScene(ctx context.Context, scene *mirror.Scene, newName string) error {
	raw, err := e.client.Get(ctx, "/resource/scene/"+scene.ID)
	if err != nil {
		return err
	}
	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode scene definition: %w", err)
	}
	if len(envelope.Data) == 0 {
		return fmt.Errorf("scene %s has no definition", scene.ID)
	}

	definition := envelope.Data[0]
	delete(definition, "id")
	delete(definition, "id_v1")
	metadata, _ := definition["metadata"].(map[string]any)
	if metadata == nil {
		metadata = map[string]any{}
		definition["metadata"] = metadata
	}
	metadata["name"] = newName

	_, err = e.client.Post(ctx, "/resource/scene", definition)
	return err
}

func targetPath(target mirror.Target) (string, error) {
	switch target.(type) {
	case *mirror.Light:
		return "/resource/light/" + target.TargetID(), nil
	case *mirror.Room:
		return "/resource/room/" + target.TargetID(), nil
	case *mirror.Zone:
		return "/resource/zone/" + target.TargetID(), nil
	}
	return "", fmt.Errorf("target %s cannot be renamed", target.TargetID())
}

func unreachableNames(lights []*mirror.Light) []string {
	var names []string
	for _, l := range lights {
		if !l.Reachable() {
			names = append(names, l.Name)
		}
	}
	return names
}

// stateMessage builds the human-readable summary of a state change.
func stateMessage(cmd *ParsedCommand, lightCount int) string {
	var parts []string
	payload := cmd.State

	switch {
	case payload == nil:
		parts = append(parts, "Applied")
	case payload.On != nil && payload.On.On:
		parts = append(parts, "Turned on")
	case payload.On != nil:
		parts = append(parts, "Turned off")
	case payload.Dimming != nil:
		parts = append(parts, fmt.Sprintf("Set to %.0f%%", payload.Dimming.Brightness))
	case payload.Color != nil:
		parts = append(parts, "Set color")
	case payload.ColorTemperature != nil:
		kelvin := 1_000_000 / payload.ColorTemperature.Mirek
		parts = append(parts, fmt.Sprintf("Set to %dK", kelvin))
	}

	if cmd.TargetName != "" {
		parts = append(parts, cmd.TargetName)
	}
	switch {
	case lightCount > 1:
		parts = append(parts, fmt.Sprintf("(%d lights)", lightCount))
	case lightCount == 1:
		parts = append(parts, "(1 light)")
	}
	return strings.Join(parts, " ")
}
