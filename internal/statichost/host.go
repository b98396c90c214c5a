// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statichost

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/bureau-foundation/rship-exec/lib/catalog"
	"github.com/bureau-foundation/rship-exec/lib/config"
	"github.com/bureau-foundation/rship-exec/lib/targettree"
)

// ErrUnknownComponent is returned for a path the host does not hold.
var ErrUnknownComponent = errors.New("statichost: unknown component")

// ErrNoVideo is returned when writing samples to a component without
// a video track.
var ErrNoVideo = errors.New("statichost: component has no video track")

const defaultVideoCodec = webrtc.MimeTypeVP8

// Host holds the components declared in configuration and exposes
// them as target trees.
//
// Set and RemoveComponent pulse emitters through env.Pulser and must
// run on the same goroutine that drives the sync client. WriteSample
// and Value are safe from any goroutine.
type Host struct {
	env    targettree.Env
	logger *slog.Logger

	mu         sync.Mutex
	components []*component
	byPath     map[string]*component
}

// New builds a host from its configuration.
func New(cfg config.HostConfig, env targettree.Env) (*Host, error) {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
		env.Logger = logger
	}
	host := &Host{
		env:    env,
		logger: logger,
		byPath: make(map[string]*component),
	}
	for _, componentConfig := range cfg.Components {
		if _, exists := host.byPath[componentConfig.Path]; exists {
			return nil, fmt.Errorf("component %s declared twice", componentConfig.Path)
		}
		built, err := newComponent(host, componentConfig)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", componentConfig.Path, err)
		}
		host.components = append(host.components, built)
		host.byPath[built.path] = built
	}
	return host, nil
}

// Roots returns one base target per live component, in declaration
// order. Target ids persist in env.Store across calls.
func (h *Host) Roots() []targettree.Node {
	h.mu.Lock()
	live := make([]*component, 0, len(h.components))
	for _, c := range h.components {
		if !c.removed {
			live = append(live, c)
		}
	}
	h.mu.Unlock()

	roots := make([]targettree.Node, 0, len(live))
	for _, c := range live {
		roots = append(roots, targettree.NewBaseTarget(h.env, c.facade()))
	}
	return roots
}

// RemoveComponent drops a component. Handlers bound to its targets
// report catalog.ErrHandlerGone from then on.
func (h *Host) RemoveComponent(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.byPath[path]
	if !ok || c.removed {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, path)
	}
	c.removed = true
	h.logger.Info("component removed", "path", path)
	return nil
}

// Set changes a parameter from the host side, as an operator edit
// would, and pulses its emitter.
func (h *Host) Set(path, name string, data map[string]any) error {
	p, err := h.parameter(path, name)
	if err != nil {
		return err
	}
	return p.Set(data)
}

// Value returns a parameter's current value.
func (h *Host) Value(path, name string) (any, error) {
	p, err := h.parameter(path, name)
	if err != nil {
		return nil, err
	}
	return p.Value()
}

// Enabled reports a toggleable component's enabled flag.
func (h *Host) Enabled(path string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.byPath[path]
	if !ok || c.removed {
		return false, fmt.Errorf("%w: %s", ErrUnknownComponent, path)
	}
	return c.enabled, nil
}

// WriteSample pushes one encoded media sample to a component's video
// track.
func (h *Host) WriteSample(path string, sample media.Sample) error {
	h.mu.Lock()
	c, ok := h.byPath[path]
	removed := ok && c.removed
	h.mu.Unlock()
	if !ok || removed {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, path)
	}
	if c.track == nil {
		return fmt.Errorf("%w: %s", ErrNoVideo, path)
	}
	return c.track.WriteSample(sample)
}

func (h *Host) parameter(path, name string) (*parameter, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.byPath[path]
	if !ok || c.removed {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComponent, path)
	}
	for _, pg := range c.pages {
		for _, p := range pg.parameters {
			if p.name == name {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("component %s has no parameter %q", path, name)
}

// component is one configured component. Optional capabilities are
// exposed through facade so the tree only sees the interfaces the
// component actually has.
type component struct {
	host     *Host
	path     string
	name     string
	kind     string
	toggle   bool
	enabled  bool
	removed  bool
	pages    []*page
	track    *webrtc.TrackLocalStaticSample
	bulkSets int
}

func newComponent(host *Host, cfg config.ComponentConfig) (*component, error) {
	c := &component{
		host:    host,
		path:    cfg.Path,
		name:    cfg.Name,
		kind:    cfg.Kind,
		toggle:  cfg.Toggle,
		enabled: true,
	}
	if c.name == "" {
		c.name = cfg.Path
	}
	for _, pageConfig := range cfg.Pages {
		pg := &page{name: pageConfig.Name}
		for _, parameterConfig := range pageConfig.Parameters {
			p, err := newParameter(c, parameterConfig)
			if err != nil {
				return nil, err
			}
			pg.parameters = append(pg.parameters, p)
		}
		c.pages = append(c.pages, pg)
	}
	if cfg.Video != nil {
		codec := cfg.Video.Codec
		if codec == "" {
			codec = defaultVideoCodec
		}
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: codec}, "video", cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("creating video track: %w", err)
		}
		c.track = track
	}
	return c, nil
}

// facade picks the wrapper that carries exactly the optional
// interfaces this component supports.
func (c *component) facade() targettree.Component {
	switch {
	case c.toggle && c.track != nil:
		return toggleVideoComponent{c}
	case c.toggle:
		return toggleComponent{c}
	case c.track != nil:
		return videoComponent{c}
	}
	return c
}

func (c *component) Path() string { return c.path }
func (c *component) Name() string { return c.name }
func (c *component) Kind() string { return c.kind }

func (c *component) Pages() []targettree.Page {
	pages := make([]targettree.Page, len(c.pages))
	for i, pg := range c.pages {
		pages[i] = pg
	}
	return pages
}

func (c *component) BulkComplete() error {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()
	if c.removed {
		return catalog.ErrHandlerGone
	}
	c.bulkSets++
	c.host.logger.Debug("bulk set applied", "path", c.path)
	return nil
}

func (c *component) setEnabled(enabled bool) error {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()
	if c.removed {
		return catalog.ErrHandlerGone
	}
	c.enabled = enabled
	c.host.logger.Info("component toggled", "path", c.path, "enabled", enabled)
	return nil
}

type toggleComponent struct{ *component }

func (t toggleComponent) SetEnabled(enabled bool) error { return t.setEnabled(enabled) }

type videoComponent struct{ *component }

func (v videoComponent) MediaTrack() webrtc.TrackLocal { return v.track }

type toggleVideoComponent struct{ *component }

func (t toggleVideoComponent) SetEnabled(enabled bool) error { return t.setEnabled(enabled) }
func (t toggleVideoComponent) MediaTrack() webrtc.TrackLocal { return t.track }

type page struct {
	name       string
	parameters []*parameter
}

func (p *page) Name() string { return p.name }

func (p *page) Parameters() []targettree.Parameter {
	parameters := make([]targettree.Parameter, len(p.parameters))
	for i, parameter := range p.parameters {
		parameters[i] = parameter
	}
	return parameters
}

type parameter struct {
	owner *component
	name  string
	label string
	style string
	shape shape
	value map[string]any
}

func newParameter(owner *component, cfg config.ParameterConfig) (*parameter, error) {
	s, err := shapeFor(cfg)
	if err != nil {
		return nil, err
	}
	label := cfg.Label
	if label == "" {
		label = cfg.Name
	}
	return &parameter{
		owner: owner,
		name:  cfg.Name,
		label: label,
		style: cfg.Style,
		shape: s,
		value: s.initialValues(cfg.Default),
	}, nil
}

func (p *parameter) Name() string  { return p.name }
func (p *parameter) Label() string { return p.label }
func (p *parameter) Style() string { return p.style }

func (p *parameter) SchemaProperties() map[string]any { return p.shape.properties() }

func (p *parameter) Value() (any, error) {
	host := p.owner.host
	host.mu.Lock()
	defer host.mu.Unlock()
	if p.owner.removed {
		return nil, catalog.ErrHandlerGone
	}
	if p.shape.pulse {
		return pulseToken(), nil
	}
	return maps.Clone(p.value), nil
}

// Set assigns the channels present in data and pulses the
// parameter's emitter. Keys outside the shape are ignored.
func (p *parameter) Set(data map[string]any) error {
	host := p.owner.host
	host.mu.Lock()
	if p.owner.removed {
		host.mu.Unlock()
		return catalog.ErrHandlerGone
	}
	if !p.shape.pulse {
		for _, key := range p.shape.keys() {
			if v, ok := data[key]; ok {
				p.value[key] = v
			}
		}
	}
	var current map[string]any
	if p.shape.pulse {
		current = pulseToken()
	} else {
		current = maps.Clone(p.value)
	}
	host.mu.Unlock()

	if host.env.Pulser != nil {
		host.env.Pulser.PulseEmitter(targettree.ChangeKey(p.owner.path, p.name), current)
	}
	return nil
}
