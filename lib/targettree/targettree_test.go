// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package targettree

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/rship-exec/lib/catalog"
	"github.com/bureau-foundation/rship-exec/lib/clock"
)

type fakeStore struct {
	ids  map[string]string
	puts int
}

func newFakeStore() *fakeStore { return &fakeStore{ids: make(map[string]string)} }

func (s *fakeStore) Get(key string) (string, bool) {
	id, ok := s.ids[key]
	return id, ok
}

func (s *fakeStore) Put(key, id string) error {
	s.ids[key] = id
	s.puts++
	return nil
}

type fakePulser struct {
	keys []string
}

func (p *fakePulser) PulseEmitter(changeKey string, _ any) {
	p.keys = append(p.keys, changeKey)
}

type fakeParameter struct {
	name   string
	style  string
	value  map[string]any
	gone   bool
	schema map[string]any
}

func (p *fakeParameter) Name() string  { return p.name }
func (p *fakeParameter) Label() string { return strings.ToUpper(p.name[:1]) + p.name[1:] }
func (p *fakeParameter) Style() string { return p.style }

func (p *fakeParameter) SchemaProperties() map[string]any { return p.schema }

func (p *fakeParameter) Value() (any, error) { return p.value, nil }

func (p *fakeParameter) Set(data map[string]any) error {
	if p.gone {
		return catalog.ErrHandlerGone
	}
	p.value = data
	return nil
}

func numberParameter(name string) *fakeParameter {
	return &fakeParameter{
		name:   name,
		style:  "Float",
		schema: map[string]any{"value": map[string]any{"type": "number"}},
	}
}

type fakePage struct {
	name       string
	parameters []Parameter
}

func (p *fakePage) Name() string            { return p.name }
func (p *fakePage) Parameters() []Parameter { return p.parameters }

type fakeComponent struct {
	path  string
	pages []Page
}

func (c *fakeComponent) Path() string  { return c.path }
func (c *fakeComponent) Name() string  { return c.path[strings.LastIndex(c.path, "/")+1:] }
func (c *fakeComponent) Kind() string  { return "baseCOMP" }
func (c *fakeComponent) Pages() []Page { return c.pages }

type togglingComponent struct {
	fakeComponent
	enabled   bool
	completes int
}

func (c *togglingComponent) SetEnabled(enabled bool) error {
	c.enabled = enabled
	return nil
}

func (c *togglingComponent) BulkComplete() error {
	c.completes++
	return nil
}

type videoComponent struct {
	fakeComponent
	track webrtc.TrackLocal
}

func (c *videoComponent) MediaTrack() webrtc.TrackLocal { return c.track }

func testEnv(store IDStore, pulser Pulser, logger *slog.Logger) Env {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Env{
		ServiceID: "show",
		Store:     store,
		Pulser:    pulser,
		Clock:     clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Logger:    logger,
	}
}

func twoPageComponent(path string) *fakeComponent {
	return &fakeComponent{
		path: path,
		pages: []Page{
			&fakePage{name: "Transform", parameters: []Parameter{numberParameter("tx"), numberParameter("ty")}},
			&fakePage{name: "Look", parameters: []Parameter{numberParameter("opacity")}},
		},
	}
}

func nodeIDs(nodes []Node) []string {
	ids := make([]string, len(nodes))
	for i, node := range nodes {
		ids[i] = node.ID()
	}
	return ids
}

func actionIDs(actions []catalog.BoundAction) []string {
	ids := make([]string, len(actions))
	for i, action := range actions {
		ids[i] = action.ID
	}
	return ids
}

func TestTreeStructure(t *testing.T) {
	store := newFakeStore()
	store.ids["/project/geo1"] = "base"
	base := NewBaseTarget(testEnv(store, nil, nil), twoPageComponent("/project/geo1"))

	want := []string{"base", "base:Transform", "base:tx", "base:ty", "base:Look", "base:opacity"}
	got := nodeIDs(base.CollectChildren())
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("CollectChildren ids = %v, want %v", got, want)
	}

	root := base.Target()
	if !root.RootLevel || len(root.ParentTargets) != 0 || root.Category != "baseCOMP" || root.Name != "geo1" {
		t.Errorf("base target = %+v", root)
	}
	if root.LastUpdated != "2026-03-01T12:00:00Z" {
		t.Errorf("LastUpdated = %q", root.LastUpdated)
	}

	page := base.Children()[0]
	pageTarget := page.Target()
	if pageTarget.Category != "Page" || pageTarget.RootLevel || pageTarget.ParentTargets[0] != "base" {
		t.Errorf("page target = %+v", pageTarget)
	}
	if len(page.Actions()) != 0 || len(page.Emitters()) != 0 {
		t.Error("page target carries its own actions or emitters")
	}

	leaf := page.Children()[0]
	leafTarget := leaf.Target()
	if leafTarget.ParentTargets[0] != "base:Transform" || leafTarget.Category != "Float" {
		t.Errorf("leaf target = %+v", leafTarget)
	}
	if got := actionIDs(leaf.Actions()); strings.Join(got, ",") != "base:tx:set,base:tx:resend" {
		t.Errorf("leaf actions = %v", got)
	}
	emitters := leaf.Emitters()
	if len(emitters) != 1 || emitters[0].ID != "base:tx:updated" || emitters[0].ChangeKey != "/project/geo1.tx" {
		t.Errorf("leaf emitters = %+v", emitters)
	}
}

func TestBaseTargetGeneratesAndStoresID(t *testing.T) {
	store := newFakeStore()
	first := NewBaseTarget(testEnv(store, nil, nil), twoPageComponent("/project/geo1"))
	if first.ID() == "" {
		t.Fatal("no id generated")
	}
	if store.ids["/project/geo1"] != first.ID() {
		t.Errorf("stored id = %q, want %q", store.ids["/project/geo1"], first.ID())
	}

	second := NewBaseTarget(testEnv(store, nil, nil), twoPageComponent("/project/geo1"))
	if second.ID() != first.ID() {
		t.Errorf("rebuilt id = %q, want stored %q", second.ID(), first.ID())
	}
	if store.puts != 1 {
		t.Errorf("puts = %d, want 1", store.puts)
	}
}

func TestFlattenRegeneratesDuplicateID(t *testing.T) {
	store := newFakeStore()
	// Two components share a stored id, as when a host object is
	// duplicated along with its storage.
	store.ids["/project/geo1"] = "dup"
	store.ids["/project/geo2"] = "dup"

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	env := testEnv(store, nil, logger)
	first := NewBaseTarget(env, twoPageComponent("/project/geo1"))
	second := NewBaseTarget(env, twoPageComponent("/project/geo2"))

	nodes := Flatten([]Node{first, second}, logger)

	if first.ID() != "dup" {
		t.Errorf("first id = %q, want dup", first.ID())
	}
	if second.ID() == "dup" || second.ID() == "" {
		t.Fatalf("second id = %q, want a fresh id", second.ID())
	}
	if store.ids["/project/geo2"] != second.ID() {
		t.Errorf("regenerated id not stored: %q", store.ids["/project/geo2"])
	}

	seen := make(map[string]bool)
	for _, id := range nodeIDs(nodes) {
		if seen[id] {
			t.Errorf("duplicate id %q after Flatten", id)
		}
		seen[id] = true
	}
	if len(nodes) != 12 {
		t.Errorf("len(nodes) = %d, want 12", len(nodes))
	}
	if !seen[second.ID()+":opacity"] {
		t.Errorf("leaves of regenerated base not rebuilt under %q", second.ID())
	}

	output := logs.String()
	if !strings.Contains(output, "level=WARN") || !strings.Contains(output, "old_id=dup") ||
		!strings.Contains(output, "new_id="+second.ID()) {
		t.Errorf("warning not logged as expected: %s", output)
	}
}

func TestFlattenRegeneratesDuplicateLeaf(t *testing.T) {
	store := newFakeStore()
	store.ids["/project/geo1"] = "base"
	component := &fakeComponent{
		path: "/project/geo1",
		pages: []Page{
			&fakePage{name: "A", parameters: []Parameter{numberParameter("size")}},
			&fakePage{name: "B", parameters: []Parameter{numberParameter("size")}},
		},
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	nodes := Flatten([]Node{NewBaseTarget(testEnv(store, nil, logger), component)}, logger)

	ids := nodeIDs(nodes)
	if ids[2] != "base:size" {
		t.Errorf("first leaf id = %q, want base:size", ids[2])
	}
	if ids[4] == "base:size" || !strings.HasPrefix(ids[4], "base:size:") {
		t.Errorf("second leaf id = %q, want regenerated", ids[4])
	}
	if !strings.Contains(logs.String(), "old_id=base:size") {
		t.Errorf("regeneration not logged: %s", logs.String())
	}
}

func TestLeafSetAndResend(t *testing.T) {
	store := newFakeStore()
	pulser := &fakePulser{}
	component := twoPageComponent("/project/geo1")
	base := NewBaseTarget(testEnv(store, pulser, nil), component)
	leaf := base.Children()[0].Children()[0]
	actions := leaf.Actions()

	set := actions[0]
	if err := set.Handler(set.Action, json.RawMessage(`{"value": 0.5}`)); err != nil {
		t.Fatalf("set handler: %v", err)
	}
	parameter := component.pages[0].Parameters()[0].(*fakeParameter)
	if parameter.value["value"] != 0.5 {
		t.Errorf("parameter value = %v, want 0.5", parameter.value)
	}

	value, err := leaf.Emitters()[0].Handler(nil)
	if err != nil {
		t.Fatalf("emitter handler: %v", err)
	}
	if value.(map[string]any)["value"] != 0.5 {
		t.Errorf("emitter value = %v", value)
	}

	resend := actions[1]
	if err := resend.Handler(resend.Action, nil); err != nil {
		t.Fatalf("resend handler: %v", err)
	}
	if len(pulser.keys) != 1 || pulser.keys[0] != "/project/geo1.tx" {
		t.Errorf("pulsed keys = %v", pulser.keys)
	}

	parameter.gone = true
	if err := set.Handler(set.Action, json.RawMessage(`{"value": 1}`)); !errors.Is(err, catalog.ErrHandlerGone) {
		t.Errorf("set on removed parameter: err = %v, want ErrHandlerGone", err)
	}
}

func TestLeafWithoutSchemaHasOnlyResend(t *testing.T) {
	component := &fakeComponent{
		path:  "/project/geo1",
		pages: []Page{&fakePage{name: "Info", parameters: []Parameter{&fakeParameter{name: "notes", style: "Header"}}}},
	}
	base := NewBaseTarget(testEnv(newFakeStore(), nil, nil), component)
	leaf := base.Children()[0].Children()[0]
	if got := actionIDs(leaf.Actions()); len(got) != 1 || !strings.HasSuffix(got[0], ":resend") {
		t.Errorf("actions = %v, want only resend", got)
	}
}

func TestBulkSetAndToggle(t *testing.T) {
	store := newFakeStore()
	store.ids["/project/geo1"] = "base"
	component := &togglingComponent{fakeComponent: *twoPageComponent("/project/geo1")}
	base := NewBaseTarget(testEnv(store, nil, nil), component)

	actions := base.Actions()
	if got := strings.Join(actionIDs(actions), ","); got != "base:bulk_set,base:enable,base:disable" {
		t.Fatalf("base actions = %s", got)
	}

	bulk := actions[0]
	properties := bulk.Schema["properties"].(map[string]any)
	if _, ok := properties["opacity"]; !ok || len(properties) != 3 {
		t.Errorf("bulk schema properties = %v", properties)
	}

	payload := json.RawMessage(`{"tx": {"value": 1}, "opacity": {"value": 0.25}, "ty": null, "unknown": {"value": 3}}`)
	if err := bulk.Handler(bulk.Action, payload); err != nil {
		t.Fatalf("bulk handler: %v", err)
	}
	pages := component.pages
	if got := pages[0].Parameters()[0].(*fakeParameter).value["value"]; got != 1.0 {
		t.Errorf("tx = %v, want 1", got)
	}
	if got := pages[0].Parameters()[1].(*fakeParameter).value; got != nil {
		t.Errorf("ty = %v, want untouched", got)
	}
	if got := pages[1].Parameters()[0].(*fakeParameter).value["value"]; got != 0.25 {
		t.Errorf("opacity = %v, want 0.25", got)
	}
	if component.completes != 1 {
		t.Errorf("BulkComplete calls = %d, want 1", component.completes)
	}

	if err := actions[2].Handler(actions[2].Action, nil); err != nil || component.enabled {
		t.Errorf("disable: err=%v enabled=%v", err, component.enabled)
	}
	if err := actions[1].Handler(actions[1].Action, nil); err != nil || !component.enabled {
		t.Errorf("enable: err=%v enabled=%v", err, component.enabled)
	}
}

func TestPlainComponentHasOnlyBulkSet(t *testing.T) {
	base := NewBaseTarget(testEnv(newFakeStore(), nil, nil), twoPageComponent("/project/geo1"))
	if got := actionIDs(base.Actions()); len(got) != 1 || !strings.HasSuffix(got[0], ":bulk_set") {
		t.Errorf("actions = %v", got)
	}
	if _, _, ok := base.Stream("m:show"); ok {
		t.Error("component without media reported a stream")
	}
}

func TestStreamForMediaSource(t *testing.T) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "camera")
	if err != nil {
		t.Fatalf("NewTrackLocalStaticSample: %v", err)
	}
	store := newFakeStore()
	store.ids["/project/camera"] = "cam"
	component := &videoComponent{fakeComponent: fakeComponent{path: "/project/camera"}, track: track}
	base := NewBaseTarget(testEnv(store, nil, nil), component)

	stream, got, ok := base.Stream("m:show")
	if !ok {
		t.Fatal("Stream reported no media")
	}
	if stream.ID != catalog.StreamID("cam", "m:show") || stream.Name != "/project/camera" {
		t.Errorf("stream = %+v", stream)
	}
	if got != track {
		t.Error("Stream returned a different track")
	}
}
