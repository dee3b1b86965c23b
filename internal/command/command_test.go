package command

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dokzlo13/huectl/internal/mirror"
)

// recordedCall is one write captured by the fake bridge.
type recordedCall struct {
	Method string
	Path   string
	Group  bool
	Body   json.RawMessage
}

// fakeBridge serves canned payloads for reads and records every write.
type fakeBridge struct {
	payloads map[string]string
	fail     map[string]error
	calls    []recordedCall
}

func (f *fakeBridge) Get(_ context.Context, path string) (json.RawMessage, error) {
	if err := f.fail[path]; err != nil {
		return nil, err
	}
	if body, ok := f.payloads[path]; ok {
		return json.RawMessage(body), nil
	}
	return json.RawMessage(`{"data":[]}`), nil
}

func (f *fakeBridge) record(method, path string, group bool, body any) (json.RawMessage, error) {
	raw, _ := json.Marshal(body)
	f.calls = append(f.calls, recordedCall{Method: method, Path: path, Group: group, Body: raw})
	if err := f.fail[path]; err != nil {
		return nil, err
	}
	return json.RawMessage(`{"data":[]}`), nil
}

func (f *fakeBridge) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return f.record("PUT", path, false, body)
}

func (f *fakeBridge) PutGroup(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return f.record("PUT", path, true, body)
}

func (f *fakeBridge) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return f.record("POST", path, false, body)
}

func (f *fakeBridge) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return f.record("DELETE", path, false, nil)
}

// Fixture bridge: a Living Room (two lights, one unreachable), a Bedroom, a
// Den (no scenes), a Kitchen zone, and a standalone Desk Lamp.
func fixturePayloads() map[string]string {
	return map[string]string{
		"/resource/light": `{"data":[
			{"id":"light-a","type":"light","metadata":{"name":"Lamp Left"},"owner":{"rid":"dev-a","rtype":"device"},
			 "on":{"on":false},"dimming":{"brightness":100},
			 "color":{"xy":{"x":0.4,"y":0.4},"gamut_type":"C"},
			 "color_temperature":{"mirek":366,"mirek_schema":{"mirek_minimum":153,"mirek_maximum":500}}},
			{"id":"light-b","type":"light","metadata":{"name":"Lamp Right"},"owner":{"rid":"dev-b","rtype":"device"},
			 "on":{"on":false}},
			{"id":"light-c","type":"light","metadata":{"name":"Bedroom Lamp"},"owner":{"rid":"dev-c","rtype":"device"},
			 "on":{"on":false},"color":{"xy":{"x":0.3,"y":0.3},"gamut_type":"C"},
			 "color_temperature":{"mirek":300,"mirek_schema":{"mirek_minimum":153,"mirek_maximum":500}}},
			{"id":"light-d","type":"light","metadata":{"name":"Kitchen Strip"},"owner":{"rid":"dev-d","rtype":"device"},
			 "on":{"on":true},"dimming":{"brightness":80}},
			{"id":"light-e","type":"light","metadata":{"name":"Den Light"},"owner":{"rid":"dev-e","rtype":"device"},
			 "on":{"on":false}},
			{"id":"light-f","type":"light","metadata":{"name":"Desk Lamp"},"owner":{"rid":"dev-f","rtype":"device"},
			 "on":{"on":true},"dimming":{"brightness":60}}
		]}`,
		"/resource/device": `{"data":[
			{"id":"dev-a","type":"device","metadata":{"name":"Left Fixture"},"services":[{"rid":"light-a","rtype":"light"},{"rid":"conn-a","rtype":"zigbee_connectivity"}]},
			{"id":"dev-b","type":"device","metadata":{"name":"Right Fixture"},"services":[{"rid":"light-b","rtype":"light"},{"rid":"conn-b","rtype":"zigbee_connectivity"}]},
			{"id":"dev-c","type":"device","metadata":{"name":"Bedroom Fixture"},"services":[{"rid":"light-c","rtype":"light"},{"rid":"conn-c","rtype":"zigbee_connectivity"}]},
			{"id":"dev-d","type":"device","metadata":{"name":"Kitchen Fixture"},"services":[{"rid":"light-d","rtype":"light"},{"rid":"conn-d","rtype":"zigbee_connectivity"}]},
			{"id":"dev-e","type":"device","metadata":{"name":"Den Fixture"},"services":[{"rid":"light-e","rtype":"light"},{"rid":"conn-e","rtype":"zigbee_connectivity"}]},
			{"id":"dev-f","type":"device","metadata":{"name":"Desk Fixture"},"services":[{"rid":"light-f","rtype":"light"},{"rid":"conn-f","rtype":"zigbee_connectivity"}]}
		]}`,
		"/resource/room": `{"data":[
			{"id":"room-lr","type":"room","metadata":{"name":"Living Room"},
			 "children":[{"rid":"dev-a","rtype":"device"},{"rid":"dev-b","rtype":"device"}],
			 "services":[{"rid":"grp-lr","rtype":"grouped_light"}]},
			{"id":"room-br","type":"room","metadata":{"name":"Bedroom"},
			 "children":[{"rid":"dev-c","rtype":"device"}],
			 "services":[{"rid":"grp-br","rtype":"grouped_light"}]},
			{"id":"room-den","type":"room","metadata":{"name":"Den"},
			 "children":[{"rid":"dev-e","rtype":"device"}],
			 "services":[]}
		]}`,
		"/resource/zone": `{"data":[
			{"id":"zone-k","type":"zone","metadata":{"name":"Kitchen"},
			 "children":[{"rid":"light-d","rtype":"light"}],
			 "services":[{"rid":"grp-k","rtype":"grouped_light"}]}
		]}`,
		"/resource/grouped_light": `{"data":[
			{"id":"grp-lr","type":"grouped_light","owner":{"rid":"room-lr","rtype":"room"}},
			{"id":"grp-br","type":"grouped_light","owner":{"rid":"room-br","rtype":"room"}},
			{"id":"grp-k","type":"grouped_light","owner":{"rid":"zone-k","rtype":"zone"}}
		]}`,
		"/resource/scene": `{"data":[
			{"id":"scene-relax","type":"scene","metadata":{"name":"Relax"},"group":{"rid":"room-lr","rtype":"room"}},
			{"id":"scene-energize","type":"scene","metadata":{"name":"Energize"},"group":{"rid":"room-lr","rtype":"room"}}
		]}`,
		"/resource/zigbee_connectivity": `{"data":[
			{"id":"conn-a","type":"zigbee_connectivity","owner":{"rid":"dev-a","rtype":"device"},"status":"connected"},
			{"id":"conn-b","type":"zigbee_connectivity","owner":{"rid":"dev-b","rtype":"device"},"status":"disconnected"},
			{"id":"conn-c","type":"zigbee_connectivity","owner":{"rid":"dev-c","rtype":"device"},"status":"connected"},
			{"id":"conn-d","type":"zigbee_connectivity","owner":{"rid":"dev-d","rtype":"device"},"status":"connected"},
			{"id":"conn-e","type":"zigbee_connectivity","owner":{"rid":"dev-e","rtype":"device"},"status":"connected"},
			{"id":"conn-f","type":"zigbee_connectivity","owner":{"rid":"dev-f","rtype":"device"},"status":"connected"}
		]}`,
	}
}

// testPipeline builds a synced mirror, interpreter and executor over the
// fake bridge.
func testPipeline(t *testing.T) (*fakeBridge, *mirror.Mirror, *Interpreter, *Executor) {
	t.Helper()
	bridge := &fakeBridge{payloads: fixturePayloads(), fail: map[string]error{}}
	m := mirror.New(bridge)
	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	return bridge, m, NewInterpreter(m), NewExecutor(bridge, m)
}

func decodeState(t *testing.T, raw json.RawMessage) *StatePayload {
	t.Helper()
	var payload StatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed to decode recorded payload %s: %v", raw, err)
	}
	return &payload
}
