// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syncclient

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/rship-exec/lib/catalog"
	"github.com/bureau-foundation/rship-exec/lib/targettree"
	"github.com/bureau-foundation/rship-exec/myko"
)

func commandFrame(t *testing.T, actionID string, data string) []byte {
	t.Helper()
	frame := `{"event":"ws:m:command","data":{"commandId":"ExecTargetAction","command":{` +
		`"tx":"tx-1","createdAt":"2026-03-01T12:00:00Z","action":{"id":"` + actionID + `"},"data":` + data + `}}}`
	return []byte(frame)
}

type recordedCall struct {
	action catalog.Action
	data   string
}

func nodeWithAction(actionID string, schema map[string]any, handler catalog.ActionHandler) *fakeNode {
	return &fakeNode{
		id: "A",
		actions: []catalog.BoundAction{{
			Action:  catalog.Action{ID: actionID, TargetID: "A", Schema: schema},
			Handler: handler,
		}},
	}
}

func TestDispatchCommandRunsHandler(t *testing.T) {
	client, _ := newTestClient(t)
	var calls []recordedCall
	client.PublishTargetTree([]targettree.Node{nodeWithAction("A:set", nil,
		func(action catalog.Action, data json.RawMessage) error {
			calls = append(calls, recordedCall{action: action, data: string(data)})
			return nil
		})}, testInstance)

	client.HandleText(commandFrame(t, "A:set", `{"value":3}`))

	if len(calls) != 1 {
		t.Fatalf("handler called %d times, want 1", len(calls))
	}
	if calls[0].action.ID != "A:set" || calls[0].data != `{"value":3}` {
		t.Errorf("call = %+v", calls[0])
	}
	if got := testutil.ToFloat64(client.metrics.commands.WithLabelValues(resultOK)); got != 1 {
		t.Errorf("ok commands = %v, want 1", got)
	}
}

func TestDispatchCommandValidatesSchema(t *testing.T) {
	client, _ := newTestClient(t)
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{"type": "number"},
		},
	}
	calls := 0
	client.PublishTargetTree([]targettree.Node{nodeWithAction("A:set", schema,
		func(catalog.Action, json.RawMessage) error {
			calls++
			return nil
		})}, testInstance)

	client.HandleText(commandFrame(t, "A:set", `{"value":"high"}`))
	if calls != 0 {
		t.Error("handler ran for a payload that violates the schema")
	}
	if got := testutil.ToFloat64(client.metrics.commands.WithLabelValues(resultInvalid)); got != 1 {
		t.Errorf("invalid commands = %v, want 1", got)
	}

	client.HandleText(commandFrame(t, "A:set", `{"value":0.5}`))
	if calls != 1 {
		t.Errorf("handler calls = %d after valid payload, want 1", calls)
	}
}

func TestDispatchCommandRemovesGoneHandler(t *testing.T) {
	client, _ := newTestClient(t)
	client.PublishTargetTree([]targettree.Node{nodeWithAction("A:set", nil,
		func(catalog.Action, json.RawMessage) error { return catalog.ErrHandlerGone })}, testInstance)

	client.HandleText(commandFrame(t, "A:set", `null`))
	if client.HasHandler("A:set") {
		t.Error("handler still registered after ErrHandlerGone")
	}
}

func TestDispatchCommandHandlerErrorKeepsHandler(t *testing.T) {
	client, _ := newTestClient(t)
	client.PublishTargetTree([]targettree.Node{nodeWithAction("A:set", nil,
		func(catalog.Action, json.RawMessage) error { return errors.New("host busy") })}, testInstance)

	client.HandleText(commandFrame(t, "A:set", `null`))
	if !client.HasHandler("A:set") {
		t.Error("handler removed after an ordinary error")
	}
	if got := testutil.ToFloat64(client.metrics.commands.WithLabelValues(resultError)); got != 1 {
		t.Errorf("error commands = %v, want 1", got)
	}
}

func TestHandleTextDropsBadFrames(t *testing.T) {
	client, sender := newTestClient(t)

	tests := []struct {
		name   string
		frame  string
		reason string
	}{
		{"not JSON", `{"event":`, reasonMalformed},
		{"no event", `{"data":{}}`, reasonMalformed},
		{"unknown command", `{"event":"ws:m:command","data":{"commandId":"Reboot","command":{}}}`, reasonUnknown},
		{"unknown action", string(commandFrame(t, "nobody:set", `null`)), reasonNoHandler},
		{"response without tx", `{"event":"ws:m:query-response","data":{"upserts":[]}}`, reasonMalformed},
		{"response for unknown tx", `{"event":"ws:m:query-response","data":{"tx":"gone","sequence":0}}`, reasonNoQuery},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			counter := client.metrics.dropped.WithLabelValues(test.reason)
			before := testutil.ToFloat64(counter)
			client.HandleText([]byte(test.frame))
			if got := testutil.ToFloat64(counter); got != before+1 {
				t.Errorf("%s drops = %v, want %v", test.reason, got, before+1)
			}
		})
	}

	// Unrelated events are ignored without counting as drops.
	client.HandleText([]byte(`{"event":"ws:m:event","data":{}}`))
	if len(sender.frames) != 0 {
		t.Errorf("bad frames produced %d outbound frames", len(sender.frames))
	}
}

func TestRegisterQueryRoutesResponses(t *testing.T) {
	client, sender := newTestClient(t)
	var responses []myko.QueryResponse
	query := catalog.NewGetWebRTCConnections()
	if err := client.RegisterQuery(query, "WebRTCConnection", func(response myko.QueryResponse) {
		responses = append(responses, response)
	}); err != nil {
		t.Fatalf("RegisterQuery: %v", err)
	}
	if len(sender.frames) != 1 {
		t.Fatalf("sent %d frames, want 1", len(sender.frames))
	}

	for sequence := 0; sequence < 2; sequence++ {
		frame, err := json.Marshal(map[string]any{
			"event": myko.EventTypeQueryResponse,
			"data": map[string]any{
				"tx":       query.Tx(),
				"sequence": sequence,
				"upserts":  []any{},
				"deletes":  []string{"x"},
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		client.HandleText(frame)
	}

	if len(responses) != 2 {
		t.Fatalf("handler got %d responses, want 2", len(responses))
	}
	if responses[1].Sequence != 1 || len(responses[1].Deletes) != 1 {
		t.Errorf("second response = %+v", responses[1])
	}
}

func TestQueryTableIsBounded(t *testing.T) {
	sender := &fakeSender{}
	client, err := New(Config{Sender: sender, QueryCapacity: 1})
	if err != nil {
		t.Fatal(err)
	}
	called := map[string]int{}
	first := catalog.NewGetWebRTCConnections()
	second := catalog.NewGetWebRTCConnections()
	for _, query := range []catalog.GetWebRTCConnections{first, second} {
		tx := query.Tx()
		if err := client.RegisterQuery(query, "WebRTCConnection", func(myko.QueryResponse) { called[tx]++ }); err != nil {
			t.Fatal(err)
		}
	}

	client.DispatchQueryResponse(json.RawMessage(`{"tx":"` + first.Tx() + `"}`))
	client.DispatchQueryResponse(json.RawMessage(`{"tx":"` + second.Tx() + `"}`))
	if called[first.Tx()] != 0 {
		t.Error("superseded query still received a response")
	}
	if called[second.Tx()] != 1 {
		t.Errorf("current query called %d times, want 1", called[second.Tx()])
	}
}

func TestPulseEmitter(t *testing.T) {
	client, sender := newTestClient(t)
	var hints []any
	value := map[string]any{"value": 0.25}
	node := &fakeNode{
		id: "A",
		emitters: []catalog.BoundEmitter{{
			Emitter:   catalog.Emitter{ID: "A:updated", TargetID: "A"},
			ChangeKey: "/project/a.opacity",
			Handler: func(hint any) (any, error) {
				hints = append(hints, hint)
				return value, nil
			},
		}},
	}
	client.PublishTargetTree([]targettree.Node{node}, testInstance)
	sender.reset()

	client.PulseEmitter("/project/a.opacity", 0.25)
	client.PulseEmitter("/project/a.opacity", nil)
	client.PulseEmitter("/project/unknown", 1)

	pulses := sender.itemsOfType(t, "Pulse")
	if len(pulses) != 2 {
		t.Fatalf("sent %d pulses, want 2", len(pulses))
	}
	var first, second catalog.Pulse
	if err := json.Unmarshal(pulses[0], &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(pulses[1], &second); err != nil {
		t.Fatal(err)
	}
	if first.ID != "A:updated" || first.EmitterID != "A:updated" || first.Name != "Pulse" {
		t.Errorf("pulse = %+v", first)
	}
	data, ok := first.Data.(map[string]any)
	if !ok || data["value"] != 0.25 {
		t.Errorf("pulse data = %#v", first.Data)
	}
	if first.Hash == "" || first.Hash == second.Hash {
		t.Errorf("pulse hashes %q and %q must be present and distinct", first.Hash, second.Hash)
	}
	if len(hints) != 2 || hints[0] != 0.25 || hints[1] != nil {
		t.Errorf("handler hints = %v", hints)
	}
}

func TestPulseEmitterSkipsEmptyAndRemovesGone(t *testing.T) {
	client, sender := newTestClient(t)
	gone := false
	node := &fakeNode{
		id: "A",
		emitters: []catalog.BoundEmitter{{
			Emitter:   catalog.Emitter{ID: "A:updated"},
			ChangeKey: "/a.value",
			Handler: func(any) (any, error) {
				if gone {
					return nil, catalog.ErrHandlerGone
				}
				return nil, nil
			},
		}},
	}
	client.PublishTargetTree([]targettree.Node{node}, testInstance)
	sender.reset()

	client.PulseEmitter("/a.value", nil)
	if len(sender.frames) != 0 {
		t.Errorf("nil handler output produced %d frames", len(sender.frames))
	}

	gone = true
	client.PulseEmitter("/a.value", nil)
	if client.HasEmitter("/a.value") {
		t.Error("emitter still registered after ErrHandlerGone")
	}
}
