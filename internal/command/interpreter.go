package command

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dokzlo13/huectl/internal/color"
	"github.com/dokzlo13/huectl/internal/mirror"
)

// Keyword tables driving state-change parsing.
var (
	onKeywords  = map[string]bool{"on": true, "enable": true, "activate": true, "start": true}
	offKeywords = map[string]bool{"off": true, "disable": true, "deactivate": true, "stop": true, "kill": true}

	// Words stripped while hunting for a target name.
	prepositions = map[string]bool{
		"the": true, "in": true, "on": true, "at": true, "to": true,
		"for": true, "a": true, "an": true, "my": true,
	}
	actionVerbs = map[string]bool{
		"turn": true, "switch": true, "set": true, "make": true, "put": true,
		"change": true, "dim": true, "brighten": true, "light": true, "lights": true,
	}
)

// Scene names commonly present on a bridge, matched anywhere in a command.
var sceneKeywords = []string{
	"savanna sunset", "tropical twilight", "arctic aurora", "spring blossom",
	"relax", "concentrate", "energize", "reading", "read",
	"bright", "dimmed", "nightlight",
}

// Built-in light effects the bridge accepts.
var effectNames = []string{
	"candle", "fire", "prism", "sparkle", "opal", "glisten",
	"underwater", "cosmos", "sunbeam", "enchant",
}

var timedEffectNames = []string{"sunrise", "sunset"}

const (
	defaultTimedEffectDuration = 30 * time.Minute
	defaultSignalDuration      = 2 * time.Second
	defaultIdentifyDuration    = 5 * time.Second
)

var (
	modeRe        = regexp.MustCompile(`(\w+)\s+mode`)
	toColorRe     = regexp.MustCompile(`\bto\s+(.+?)(?:\s+at|\s+in|\s*$)`)
	makeColorRe   = regexp.MustCompile(`\b(?:make|set)\s+\w+\s+(\w+)`)
	inlineHexRe   = regexp.MustCompile(`#[0-9a-fA-F]{3,6}\b`)
	percentSpecRe = regexp.MustCompile(`\d+\s*%`)
	numericTokRe  = regexp.MustCompile(`^\d+%?$`)
	secondsRe     = regexp.MustCompile(`(?:in|over)\s+(\d+(?:\.\d+)?)\s*(?:s|sec|second)`)
	minutesRe     = regexp.MustCompile(`(?:in|over|for)?\s*(\d+)\s*(?:m\b|min|minute)`)
)

// Interpreter resolves free-form command text against the mirror.
type Interpreter struct {
	mirror *mirror.Mirror
}

func NewInterpreter(m *mirror.Mirror) *Interpreter {
	return &Interpreter{mirror: m}
}

// Parse turns command text into a structured intent. Parsing is read-only
// over the current mirror snapshot. Dispatch order, first match wins:
// management, effect, timed effect, signal, scene, state change.
func (i *Interpreter) Parse(input string) (*ParsedCommand, error) {
	// Trim before lowering so byte offsets computed on text stay valid when
	// slicing input to preserve the user's casing.
	input = strings.TrimSpace(input)
	text := strings.ToLower(input)
	if text == "" {
		return nil, &InvalidCommandError{Command: input, Reason: "empty command"}
	}

	parsers := []func(original, text string) (*ParsedCommand, error){
		i.parseManagement,
		i.parseEffect,
		i.parseTimedEffect,
		i.parseSignal,
		i.parseScene,
		i.parseState,
	}
	for _, parse := range parsers {
		cmd, err := parse(input, text)
		if err != nil {
			return nil, err
		}
		if cmd != nil {
			return cmd, nil
		}
	}
	return nil, &InvalidCommandError{Command: input, Reason: "could not understand command"}
}

// extractTarget strips verbs, prepositions, numbers, color words and the
// literal "mode" from text, then tries every contiguous token substring
// from longest to shortest against the mirror. Returns the resolved target
// and the candidate string; a non-empty candidate with a nil target means
// the name did not resolve.
func (i *Interpreter) extractTarget(text string) (mirror.Target, string) {
	var filtered []string
	for _, word := range strings.Fields(text) {
		if len(filtered) == 0 && actionVerbs[word] {
			continue
		}
		if prepositions[word] || word == "mode" {
			continue
		}
		if numericTokRe.MatchString(word) {
			continue
		}
		if _, isColor := color.ParseSpec(word, color.GamutC); isColor {
			continue
		}
		filtered = append(filtered, word)
	}
	if len(filtered) == 0 {
		return nil, ""
	}

	// Greedy longest contiguous match.
	for length := len(filtered); length > 0; length-- {
		for start := 0; start+length <= len(filtered); start++ {
			candidate := strings.Join(filtered[start:start+length], " ")
			if target := i.mirror.FindTarget(candidate); target != nil {
				return target, candidate
			}
		}
	}
	return nil, strings.Join(filtered, " ")
}

func isGroup(target mirror.Target) bool {
	switch target.(type) {
	case *mirror.Room, *mirror.Zone:
		return true
	}
	return false
}

// requireTarget resolves a target or reports why it could not. A (nil, nil)
// return means the text held no target at all and the parser should fall
// through.
func (i *Interpreter) requireTarget(text string) (mirror.Target, error) {
	target, candidate := i.extractTarget(text)
	if target != nil {
		return target, nil
	}
	if candidate == "" {
		return nil, nil
	}
	return nil, &TargetNotFoundError{Name: candidate}
}

func (i *Interpreter) parseManagement(input, text string) (*ParsedCommand, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, nil
	}
	verb := fields[0]
	switch verb {
	case "create":
		if !strings.Contains(text, "scene") && !strings.Contains(text, "room") &&
			!strings.Contains(text, "zone") {
			return nil, nil
		}
		return nil, &InvalidCommandError{Command: input, Reason: "creating resources is not supported from text commands"}

	case "delete":
		rest, ok := strings.CutPrefix(text, "delete scene ")
		if !ok {
			if strings.HasPrefix(text, "delete ") {
				return nil, &InvalidCommandError{Command: input, Reason: "only scenes can be deleted, try: delete scene <name>"}
			}
			return nil, nil
		}
		scene := i.mirror.FindScene(rest, nil)
		if scene == nil {
			return nil, &SceneNotFoundError{Name: rest}
		}
		return &ParsedCommand{
			Action:     ActionManage,
			TargetName: scene.Name,
			Manage:     &ManageRequest{Op: ManageDeleteScene, Scene: scene},
		}, nil

	case "rename":
		idx := strings.LastIndex(text, " to ")
		if idx < 0 {
			return nil, &InvalidCommandError{Command: input, Reason: "rename needs a new name, try: rename <name> to <new name>"}
		}
		subject := strings.TrimSpace(strings.TrimPrefix(text[:idx], "rename"))
		newName := strings.TrimSpace(input[idx+len(" to "):])
		if subject == "" || newName == "" {
			return nil, &InvalidCommandError{Command: input, Reason: "rename needs a name and a new name"}
		}
		if sceneName, ok := strings.CutPrefix(subject, "scene "); ok {
			scene := i.mirror.FindScene(sceneName, nil)
			if scene == nil {
				return nil, &SceneNotFoundError{Name: sceneName}
			}
			return &ParsedCommand{
				Action:     ActionManage,
				TargetName: scene.Name,
				Manage:     &ManageRequest{Op: ManageRenameScene, Scene: scene, NewName: newName},
			}, nil
		}
		target := i.mirror.FindTarget(subject)
		if target == nil {
			return nil, &TargetNotFoundError{Name: subject}
		}
		return &ParsedCommand{
			Action:     ActionManage,
			Target:     target,
			TargetName: target.TargetName(),
			Manage:     &ManageRequest{Op: ManageRenameTarget, Target: target, NewName: newName},
		}, nil

	case "duplicate":
		idx := strings.LastIndex(text, " as ")
		if idx < 0 {
			return nil, &InvalidCommandError{Command: input, Reason: "duplicate needs a new name, try: duplicate scene <name> as <new name>"}
		}
		subject := strings.TrimSpace(strings.TrimPrefix(text[:idx], "duplicate"))
		newName := strings.TrimSpace(input[idx+len(" as "):])
		sceneName, ok := strings.CutPrefix(subject, "scene ")
		if !ok || sceneName == "" || newName == "" {
			return nil, &InvalidCommandError{Command: input, Reason: "only scenes can be duplicated, try: duplicate scene <name> as <new name>"}
		}
		scene := i.mirror.FindScene(sceneName, nil)
		if scene == nil {
			return nil, &SceneNotFoundError{Name: sceneName}
		}
		return &ParsedCommand{
			Action:     ActionManage,
			TargetName: scene.Name,
			Manage:     &ManageRequest{Op: ManageDuplicateScene, Scene: scene, NewName: newName},
		}, nil
	}
	return nil, nil
}

func (i *Interpreter) parseEffect(input, text string) (*ParsedCommand, error) {
	tokens := map[string]bool{}
	for _, w := range strings.Fields(text) {
		tokens[w] = true
	}

	effect := ""
	for _, name := range effectNames {
		if tokens[name] {
			effect = name
			break
		}
	}
	if effect == "" {
		if !tokens["effect"] && !tokens["effects"] {
			return nil, nil
		}
		if tokens["stop"] || tokens["no"] || tokens["clear"] || tokens["cancel"] {
			effect = "no_effect"
		} else {
			return nil, nil
		}
	}

	remaining := removeWords(text, effect, "effect", "effects", "stop", "no", "clear", "cancel")
	target, err := i.requireTarget(remaining)
	if err != nil || target == nil {
		return nil, err
	}
	return &ParsedCommand{
		Action:          ActionEffect,
		Target:          target,
		TargetName:      target.TargetName(),
		Effect:          effect,
		UseGroupedLight: isGroup(target),
	}, nil
}

func (i *Interpreter) parseTimedEffect(input, text string) (*ParsedCommand, error) {
	effect := ""
	for _, name := range timedEffectNames {
		if strings.Contains(text, name) {
			effect = name
			break
		}
	}
	if effect == "" {
		return nil, nil
	}

	duration := defaultTimedEffectDuration
	remaining := strings.Replace(text, effect, "", 1)
	if m := minutesRe.FindStringSubmatch(remaining); m != nil {
		minutes, _ := strconv.Atoi(m[1])
		if minutes > 0 {
			duration = time.Duration(minutes) * time.Minute
		}
		remaining = strings.Replace(remaining, m[0], "", 1)
	}

	target, err := i.requireTarget(remaining)
	if err != nil || target == nil {
		return nil, err
	}
	return &ParsedCommand{
		Action:          ActionTimedEffect,
		Target:          target,
		TargetName:      target.TargetName(),
		Effect:          effect,
		EffectDuration:  duration,
		UseGroupedLight: isGroup(target),
	}, nil
}

func (i *Interpreter) parseSignal(input, text string) (*ParsedCommand, error) {
	tokens := map[string]bool{}
	for _, w := range strings.Fields(text) {
		tokens[w] = true
	}

	var signal string
	var duration time.Duration
	switch {
	case tokens["identify"]:
		signal, duration = "identify", defaultIdentifyDuration
	case tokens["flash"], tokens["blink"]:
		signal, duration = "on_off", defaultSignalDuration
	default:
		return nil, nil
	}

	remaining := removeWords(text, "identify", "flash", "blink")
	target, err := i.requireTarget(remaining)
	if err != nil || target == nil {
		return nil, err
	}
	return &ParsedCommand{
		Action:          ActionSignal,
		Target:          target,
		TargetName:      target.TargetName(),
		Signal:          signal,
		EffectDuration:  duration,
		UseGroupedLight: isGroup(target),
	}, nil
}

func (i *Interpreter) parseScene(input, text string) (*ParsedCommand, error) {
	// "<scene> mode in <target>". A miss on target or scene falls through
	// to the other parsers rather than erroring: the "mode" word may be
	// incidental.
	if m := modeRe.FindStringSubmatch(text); m != nil {
		sceneName := m[1]
		remaining := strings.Replace(text, m[0], "", 1)
		if target, _ := i.extractTarget(remaining); target != nil {
			if scene := i.mirror.FindScene(sceneName, target); scene != nil {
				return &ParsedCommand{
					Action:     ActionScene,
					Target:     target,
					TargetName: target.TargetName(),
					Scene:      scene,
				}, nil
			}
		}
	}

	// A bare scene keyword is only a scene command when both a room/zone
	// target and a matching scene exist; otherwise the word may be a color
	// or brightness and state parsing gets its chance.
	for _, keyword := range sceneKeywords {
		if !strings.Contains(text, keyword) {
			continue
		}
		remaining := strings.Replace(text, keyword, "", 1)
		target, _ := i.extractTarget(remaining)
		if target == nil || !isGroup(target) {
			continue
		}
		scene := i.mirror.FindScene(keyword, target)
		if scene == nil {
			continue
		}
		return &ParsedCommand{
			Action:     ActionScene,
			Target:     target,
			TargetName: target.TargetName(),
			Scene:      scene,
		}, nil
	}
	return nil, nil
}

func (i *Interpreter) parseState(input, text string) (*ParsedCommand, error) {
	payload := &StatePayload{}

	if on, ok := checkOnOff(text); ok {
		payload.On = &OnState{On: on}
	}
	if brightness, ok := color.BrightnessFromText(text); ok {
		payload.Dimming = &DimmingState{Brightness: brightness}
		if payload.On == nil {
			payload.On = &OnState{On: true}
		}
	}
	if setting, ok := i.extractColor(text); ok {
		if setting.IsTemperature() {
			payload.ColorTemperature = &MirekState{Mirek: setting.Mirek}
		} else {
			payload.Color = &ColorState{XY: *setting.XY}
		}
		if payload.On == nil {
			payload.On = &OnState{On: true}
		}
	}

	// A command with no effective change is not a state command.
	if payload.Empty() {
		return nil, nil
	}

	transition := extractTransition(text)
	payload.Dynamics = &DynamicsState{Duration: int(transition.Milliseconds())}

	// "all lights" bypasses target resolution entirely.
	if strings.Contains(text, "all") && strings.Contains(text, "light") {
		return &ParsedCommand{
			Action:     ActionState,
			TargetName: "all lights",
			State:      payload,
			Transition: transition,
		}, nil
	}

	target, err := i.requireTarget(text)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, nil
	}
	return &ParsedCommand{
		Action:          ActionState,
		Target:          target,
		TargetName:      target.TargetName(),
		State:           payload,
		Transition:      transition,
		UseGroupedLight: isGroup(target),
	}, nil
}

func checkOnOff(text string) (on bool, found bool) {
	for _, word := range strings.Fields(text) {
		if onKeywords[word] {
			return true, true
		}
		if offKeywords[word] {
			return false, true
		}
	}
	return false, false
}

// extractColor hunts for a color specification: the phrase after "to", the
// word after "make/set <target>", any lone token, then an inline hex code.
func (i *Interpreter) extractColor(text string) (color.Setting, bool) {
	if m := toColorRe.FindStringSubmatch(text); m != nil {
		spec := strings.TrimSpace(percentSpecRe.ReplaceAllString(m[1], ""))
		if spec != "" {
			if setting, ok := color.ParseSpec(spec, color.GamutC); ok {
				return setting, true
			}
		}
	}
	if m := makeColorRe.FindStringSubmatch(text); m != nil {
		if setting, ok := color.ParseSpec(m[1], color.GamutC); ok {
			return setting, true
		}
	}
	for _, word := range strings.Fields(text) {
		// Brightness words double as temperature presets; dimming wins.
		if _, isBrightness := color.BrightnessFromText(word); isBrightness {
			continue
		}
		if setting, ok := color.ParseSpec(word, color.GamutC); ok {
			return setting, true
		}
	}
	if m := inlineHexRe.FindString(text); m != "" {
		if setting, ok := color.ParseSpec(m, color.GamutC); ok {
			return setting, true
		}
	}
	return color.Setting{}, false
}

func extractTransition(text string) time.Duration {
	if m := secondsRe.FindStringSubmatch(text); m != nil {
		seconds, _ := strconv.ParseFloat(m[1], 64)
		return time.Duration(seconds * float64(time.Second))
	}
	if strings.Contains(text, "slow") {
		return 2 * time.Second
	}
	if strings.Contains(text, "instant") || strings.Contains(text, "immediate") {
		return 0
	}
	if strings.Contains(text, "quick") || strings.Contains(text, "fast") {
		return 100 * time.Millisecond
	}
	return DefaultTransition
}

func removeWords(text string, drop ...string) string {
	dropped := map[string]bool{}
	for _, w := range drop {
		dropped[w] = true
	}
	var kept []string
	for _, w := range strings.Fields(text) {
		if !dropped[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
