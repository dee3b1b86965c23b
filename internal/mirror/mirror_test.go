package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dokzlo13/huectl/internal/bridge"
)

// fakeClient serves canned collection payloads per resource path.
type fakeClient struct {
	payloads map[string]string
	failing  map[string]error
}

func (f *fakeClient) Get(_ context.Context, path string) (json.RawMessage, error) {
	if err, ok := f.failing[path]; ok {
		return nil, err
	}
	if body, ok := f.payloads[path]; ok {
		return json.RawMessage(body), nil
	}
	return json.RawMessage(`{"data":[]}`), nil
}

func testPayloads() map[string]string {
	return map[string]string{
		"/resource/light": `{"data":[
			{"id":"light-1","type":"light","metadata":{"name":"Desk Lamp"},
			 "owner":{"rid":"dev-1","rtype":"device"},
			 "on":{"on":true},"dimming":{"brightness":80},
			 "color":{"xy":{"x":0.4,"y":0.4},"gamut_type":"C"},
			 "color_temperature":{"mirek":300,"mirek_schema":{"mirek_minimum":153,"mirek_maximum":500}}},
			{"id":"light-2","type":"light","metadata":{"name":"Shelf"},
			 "owner":{"rid":"dev-2","rtype":"device"},
			 "on":{"on":false},"dimming":{"brightness":50}},
			{"id":"light-3","type":"light","metadata":{"name":"Kitchen"},
			 "owner":{"rid":"dev-3","rtype":"device"},
			 "on":{"on":false}}
		]}`,
		"/resource/device": `{"data":[
			{"id":"dev-1","type":"device","metadata":{"name":"Hue Go"},
			 "services":[{"rid":"light-1","rtype":"light"},{"rid":"conn-1","rtype":"zigbee_connectivity"}]},
			{"id":"dev-2","type":"device","metadata":{"name":"Shelf Strip"},
			 "services":[{"rid":"light-2","rtype":"light"},{"rid":"conn-2","rtype":"zigbee_connectivity"}]},
			{"id":"dev-3","type":"device","metadata":{"name":"Kitchen Bulb"},
			 "services":[{"rid":"light-3","rtype":"light"},{"rid":"conn-3","rtype":"zigbee_connectivity"}]}
		]}`,
		"/resource/room": `{"data":[
			{"id":"room-1","type":"room","metadata":{"name":"Office"},
			 "children":[{"rid":"dev-1","rtype":"device"},{"rid":"dev-2","rtype":"device"}],
			 "services":[{"rid":"grp-1","rtype":"grouped_light"}]}
		]}`,
		"/resource/zone": `{"data":[
			{"id":"zone-1","type":"zone","metadata":{"name":"Kitchen"},
			 "children":[{"rid":"light-3","rtype":"light"}],
			 "services":[{"rid":"grp-2","rtype":"grouped_light"}]}
		]}`,
		"/resource/grouped_light": `{"data":[
			{"id":"grp-1","type":"grouped_light","owner":{"rid":"room-1","rtype":"room"},"on":{"on":true}},
			{"id":"grp-2","type":"grouped_light","owner":{"rid":"zone-1","rtype":"zone"},"on":{"on":false}}
		]}`,
		"/resource/scene": `{"data":[
			{"id":"scene-1","type":"scene","metadata":{"name":"Relax"},"group":{"rid":"room-1","rtype":"room"}},
			{"id":"scene-2","type":"scene","metadata":{"name":"Relax"},"group":{"rid":"zone-1","rtype":"zone"}},
			{"id":"scene-3","type":"scene","metadata":{"name":"Energize"},"group":{"rid":"room-1","rtype":"room"}}
		]}`,
		"/resource/zigbee_connectivity": `{"data":[
			{"id":"conn-1","type":"zigbee_connectivity","owner":{"rid":"dev-1","rtype":"device"},"status":"connected"},
			{"id":"conn-2","type":"zigbee_connectivity","owner":{"rid":"dev-2","rtype":"device"},"status":"connectivity_issue"},
			{"id":"conn-3","type":"zigbee_connectivity","owner":{"rid":"dev-3","rtype":"device"},"status":"connected"}
		]}`,
	}
}

func syncedMirror(t *testing.T) *Mirror {
	t.Helper()
	m := New(&fakeClient{payloads: testPayloads()})
	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	return m
}

func TestSyncBuildsGraph(t *testing.T) {
	m := syncedMirror(t)

	light, ok := m.Light("light-1")
	if !ok {
		t.Fatal("light-1 missing after sync")
	}
	if !light.On || light.Brightness != 80 {
		t.Errorf("light-1 state = on:%v bri:%v, want on:true bri:80", light.On, light.Brightness)
	}
	if !light.SupportsColor || !light.SupportsMirek {
		t.Errorf("light-1 capabilities = color:%v mirek:%v, want both", light.SupportsColor, light.SupportsMirek)
	}
	if light.Mirek != 300 || light.MirekMin != 153 || light.MirekMax != 500 {
		t.Errorf("light-1 mirek = %d [%d,%d]", light.Mirek, light.MirekMin, light.MirekMax)
	}
	if !light.Reachable() {
		t.Error("light-1 should be reachable, device is connected")
	}

	shelf, _ := m.Light("light-2")
	if shelf.Reachable() {
		t.Error("light-2 should be unreachable, device has connectivity_issue")
	}
}

func TestFindTargetExactMatch(t *testing.T) {
	m := syncedMirror(t)

	if got := m.FindTarget("Desk Lamp"); got == nil || got.TargetID() != "light-1" {
		t.Fatalf("FindTarget(Desk Lamp) = %v, want light-1", got)
	}
	// Normalization ignores case and punctuation.
	if got := m.FindTarget("desk-lamp"); got == nil || got.TargetID() != "light-1" {
		t.Fatalf("FindTarget(desk-lamp) = %v, want light-1", got)
	}
}

func TestFindTargetSubstring(t *testing.T) {
	m := syncedMirror(t)

	// Query contained in a name.
	if got := m.FindTarget("desk"); got == nil || got.TargetID() != "light-1" {
		t.Fatalf("FindTarget(desk) = %v, want light-1", got)
	}
	// Name contained in the query.
	if got := m.FindTarget("the office please"); got == nil || got.TargetID() != "room-1" {
		t.Fatalf("FindTarget(the office please) = %v, want room-1", got)
	}
	if got := m.FindTarget("nonexistent"); got != nil {
		t.Fatalf("FindTarget(nonexistent) = %v, want nil", got)
	}
}

func TestFindTargetGroupShadowsLight(t *testing.T) {
	m := syncedMirror(t)

	// Both a light and a zone are called Kitchen; the zone wins.
	got := m.FindTarget("kitchen")
	if got == nil {
		t.Fatal("FindTarget(kitchen) = nil")
	}
	if _, ok := got.(*Zone); !ok {
		t.Fatalf("FindTarget(kitchen) = %T, want *Zone", got)
	}
}

func TestFindTargetDeviceResolvesToLight(t *testing.T) {
	m := syncedMirror(t)

	got := m.FindTarget("hue go")
	if got == nil {
		t.Fatal("FindTarget(hue go) = nil")
	}
	if light, ok := got.(*Light); !ok || light.ID != "light-1" {
		t.Fatalf("FindTarget(hue go) = %v, want light-1", got)
	}
}

func TestLightsForRoomAndZone(t *testing.T) {
	m := syncedMirror(t)

	room := m.FindTarget("office")
	lights := m.LightsFor(room)
	if len(lights) != 2 {
		t.Fatalf("LightsFor(office) returned %d lights, want 2", len(lights))
	}

	zone := m.FindTarget("kitchen")
	lights = m.LightsFor(zone)
	if len(lights) != 1 || lights[0].ID != "light-3" {
		t.Fatalf("LightsFor(kitchen) = %v, want [light-3]", lights)
	}

	all := m.AllLights()
	if len(all) != 3 {
		t.Fatalf("AllLights() returned %d, want 3", len(all))
	}
	if all[0].Name > all[1].Name || all[1].Name > all[2].Name {
		t.Error("AllLights() not sorted by name")
	}
}

func TestGroupedLightFor(t *testing.T) {
	m := syncedMirror(t)

	if id := m.GroupedLightFor(m.FindTarget("office")); id != "grp-1" {
		t.Errorf("GroupedLightFor(office) = %q, want grp-1", id)
	}
	if id := m.GroupedLightFor(m.FindTarget("desk lamp")); id != "" {
		t.Errorf("GroupedLightFor(desk lamp) = %q, want empty", id)
	}
}

func TestFindScene(t *testing.T) {
	m := syncedMirror(t)

	office := m.FindTarget("office")
	kitchen := m.FindTarget("kitchen")

	// Scoped lookup picks the scope's own scene over a same-named one.
	if sc := m.FindScene("relax", kitchen); sc == nil || sc.ID != "scene-2" {
		t.Fatalf("FindScene(relax, kitchen) = %v, want scene-2", sc)
	}
	if sc := m.FindScene("relax", office); sc == nil || sc.ID != "scene-1" {
		t.Fatalf("FindScene(relax, office) = %v, want scene-1", sc)
	}
	// The scope is a strict filter: another group's scene never matches.
	if sc := m.FindScene("energize", kitchen); sc != nil {
		t.Fatalf("FindScene(energize, kitchen) = %v, want nil", sc)
	}
	if sc := m.FindScene("energize", nil); sc == nil || sc.ID != "scene-3" {
		t.Fatalf("FindScene(energize) = %v, want scene-3", sc)
	}
	if sc := m.FindScene("missing", nil); sc != nil {
		t.Fatalf("FindScene(missing) = %v, want nil", sc)
	}

	scenes := m.ScenesFor(office)
	if len(scenes) != 2 || scenes[0].Name != "Energize" {
		t.Fatalf("ScenesFor(office) = %v, want [Energize Relax]", scenes)
	}
}

func TestSyncToleratesFetchFailures(t *testing.T) {
	client := &fakeClient{
		payloads: testPayloads(),
		failing:  map[string]error{"/resource/scene": errors.New("boom")},
	}
	m := New(client)
	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v, scene failure should be tolerated", err)
	}
	if _, ok := m.Light("light-1"); !ok {
		t.Error("lights missing despite tolerated scene failure")
	}
	if _, ok := m.Scene("scene-1"); ok {
		t.Error("failed collection should be empty for this pass")
	}
}

func TestSyncReplacesInsteadOfMerging(t *testing.T) {
	payloads := testPayloads()
	client := &fakeClient{payloads: payloads}
	m := New(client)
	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	payloads["/resource/light"] = `{"data":[
		{"id":"light-1","type":"light","metadata":{"name":"Desk Lamp"},"owner":{"rid":"dev-1","rtype":"device"}}
	]}`
	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("re-Sync() error = %v", err)
	}

	if _, ok := m.Light("light-2"); ok {
		t.Error("light-2 deleted on the bridge still present after resync")
	}
	if got := m.FindTarget("shelf strip"); got != nil && got.TargetID() == "light-2" {
		t.Error("name index still resolves a vanished light")
	}
}

func applyFrame(m *Mirror, frame string) {
	m.ApplyEvent(bridge.Event{ID: "1", Data: []byte(frame)})
}

func TestApplyEventPatchesLight(t *testing.T) {
	m := syncedMirror(t)

	applyFrame(m, `[{"type":"update","data":[
		{"id":"light-1","type":"light","on":{"on":false},"dimming":{"brightness":25}}
	]}]`)

	light, _ := m.Light("light-1")
	if light.On || light.Brightness != 25 {
		t.Errorf("light-1 after event = on:%v bri:%v, want on:false bri:25", light.On, light.Brightness)
	}
	// Untouched fields survive the partial merge.
	if light.Mirek != 300 || !light.SupportsColor {
		t.Error("partial update clobbered unrelated fields")
	}

	applyFrame(m, `[{"type":"update","data":[
		{"id":"light-1","type":"light","color":{"xy":{"x":0.2,"y":0.3}}}
	]}]`)
	light, _ = m.Light("light-1")
	if light.XY == nil || light.XY.X != 0.2 || light.XY.Y != 0.3 {
		t.Errorf("light-1 xy after event = %v, want (0.2,0.3)", light.XY)
	}
}

func TestApplyEventSnapshotsAreFrozen(t *testing.T) {
	m := syncedMirror(t)

	before, _ := m.Light("light-1")
	applyFrame(m, `[{"type":"update","data":[
		{"id":"light-1","type":"light","dimming":{"brightness":1}}
	]}]`)

	if before.Brightness != 80 {
		t.Errorf("held snapshot mutated to brightness %v", before.Brightness)
	}
	after, _ := m.Light("light-1")
	if after.Brightness != 1 {
		t.Errorf("mirror state = %v, want 1", after.Brightness)
	}
}

func TestApplyEventConnectivityPropagates(t *testing.T) {
	m := syncedMirror(t)

	applyFrame(m, `[{"type":"update","data":[
		{"id":"conn-1","type":"zigbee_connectivity","owner":{"rid":"dev-1","rtype":"device"},"status":"disconnected"}
	]}]`)

	light, _ := m.Light("light-1")
	if light.Reachable() {
		t.Error("light-1 should be unreachable after device disconnect")
	}

	applyFrame(m, `[{"type":"update","data":[
		{"id":"conn-1","type":"zigbee_connectivity","status":"connected"}
	]}]`)
	light, _ = m.Light("light-1")
	if !light.Reachable() {
		t.Error("light-1 should be reachable again, owner known from sync")
	}
}

func TestApplyEventRenameReindexes(t *testing.T) {
	m := syncedMirror(t)

	applyFrame(m, `[{"type":"update","data":[
		{"id":"light-1","type":"light","metadata":{"name":"Reading Light"}}
	]}]`)

	if got := m.FindTarget("reading light"); got == nil || got.TargetID() != "light-1" {
		t.Fatalf("FindTarget(reading light) = %v after rename", got)
	}
	if got := m.FindTarget("desk lamp"); got != nil {
		t.Fatalf("old name still resolves to %v after rename", got)
	}
}

func TestApplyEventAddAndDelete(t *testing.T) {
	m := syncedMirror(t)

	applyFrame(m, `[{"type":"add","data":[
		{"id":"light-9","type":"light","metadata":{"name":"Porch"},
		 "owner":{"rid":"dev-1","rtype":"device"},"on":{"on":true}}
	]}]`)
	got := m.FindTarget("porch")
	if got == nil || got.TargetID() != "light-9" {
		t.Fatalf("FindTarget(porch) = %v after add", got)
	}
	if light := got.(*Light); !light.Reachable() {
		t.Error("added light should inherit the owning device's connectivity")
	}

	applyFrame(m, `[{"type":"delete","data":[{"id":"light-9","type":"light"}]}]`)
	if _, ok := m.Light("light-9"); ok {
		t.Fatal("light-9 still present after delete")
	}
	if got := m.FindTarget("porch"); got != nil {
		t.Fatalf("deleted light still resolves to %v", got)
	}
}

func TestApplyEventGarbageIsIgnored(t *testing.T) {
	m := syncedMirror(t)

	applyFrame(m, `not json`)
	applyFrame(m, `[{"type":"update","data":[{"id":"unknown","type":"light","on":{"on":true}}]}]`)

	if _, ok := m.Light("light-1"); !ok {
		t.Error("mirror state lost after garbage events")
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Living Room":  "livingroom",
		"desk-lamp #2": "desklamp2",
		"  Hue Go  ":   "huego",
		"":             "",
	}
	for in, want := range cases {
		if got := normalize(in); got != want {
			t.Errorf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

// flipClient serves one of two payload generations, switched by flip.
type flipClient struct {
	mu   sync.Mutex
	gens [2]map[string]string
	n    int
}

func (f *flipClient) flip() {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
}

func (f *flipClient) Get(_ context.Context, path string) (json.RawMessage, error) {
	f.mu.Lock()
	body, ok := f.gens[f.n%2][path]
	f.mu.Unlock()
	if ok {
		return json.RawMessage(body), nil
	}
	return json.RawMessage(`{"data":[]}`), nil
}

func TestConcurrentFindTargetDuringSync(t *testing.T) {
	genA := testPayloads()
	genB := testPayloads()
	// Second generation replaces light-1 with light-9, same name but a
	// different id and brightness. A reader must always observe one whole
	// generation for a light, never fields of both.
	genB["/resource/light"] = `{"data":[
		{"id":"light-9","type":"light","metadata":{"name":"Desk Lamp"},
		 "owner":{"rid":"dev-1","rtype":"device"},
		 "on":{"on":true},"dimming":{"brightness":70}}
	]}`

	client := &flipClient{gens: [2]map[string]string{genA, genB}}
	m := New(client)
	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got := m.FindTarget("desk lamp")
				if got == nil {
					t.Error("FindTarget returned nil during resync, name exists in both generations")
					return
				}
				light, ok := got.(*Light)
				if !ok {
					t.Errorf("FindTarget resolved to %T, want *Light", got)
					return
				}
				switch light.ID {
				case "light-1":
					if light.Brightness != 80 {
						t.Errorf("light-1 brightness = %v, want 80: torn snapshot", light.Brightness)
						return
					}
				case "light-9":
					if light.Brightness != 70 {
						t.Errorf("light-9 brightness = %v, want 70: torn snapshot", light.Brightness)
						return
					}
				default:
					t.Errorf("FindTarget resolved unknown light %q", light.ID)
					return
				}
			}
		}()
	}

	// Event writer racing the syncs; it only flips the on state, which
	// neither brightness assertion above depends on.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			applyFrame(m, `[{"type":"update","data":[{"id":"light-1","type":"light","on":{"on":false}}]}]`)
		}
	}()

	for i := 0; i < 50; i++ {
		client.flip()
		if err := m.Sync(context.Background()); err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
	}

	close(stop)
	wg.Wait()
}
