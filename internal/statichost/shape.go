// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statichost

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/bureau-foundation/rship-exec/lib/config"
)

// channel is one settable key of a parameter value.
type channel struct {
	key    string
	schema map[string]any
	// initial is the value before any set.
	initial any
}

// shape describes a parameter style: the keys its value carries and
// the schema of each.
type shape struct {
	channels []channel
	// pulse marks a momentary parameter. Its value is a fresh token on
	// every read and a set only counts a press.
	pulse bool
}

func numberSchema(kind string, minimum, maximum *float64) map[string]any {
	schema := map[string]any{"type": kind}
	if minimum != nil {
		schema["minimum"] = *minimum
	}
	if maximum != nil {
		schema["maximum"] = *maximum
	}
	return schema
}

func unitSchema() map[string]any {
	return map[string]any{"type": "number", "minimum": 0, "maximum": 1}
}

func fixedChannels(keys []string, schema func() map[string]any, initial any) []channel {
	channels := make([]channel, len(keys))
	for i, key := range keys {
		channels[i] = channel{key: key, schema: schema(), initial: initial}
	}
	return channels
}

// shapeFor maps a parameter style to its shape.
func shapeFor(parameter config.ParameterConfig) (shape, error) {
	numbers := func() map[string]any { return map[string]any{"type": "number"} }

	switch parameter.Style {
	case "Float", "Int":
		kind := "number"
		if parameter.Style == "Int" {
			kind = "integer"
		}
		keys := parameter.Components
		if len(keys) == 0 {
			keys = []string{"value"}
		}
		return shape{channels: fixedChannels(keys, func() map[string]any {
			return numberSchema(kind, parameter.Min, parameter.Max)
		}, 0)}, nil

	case "Str":
		return shape{channels: []channel{{key: "value", schema: map[string]any{"type": "string"}, initial: ""}}}, nil

	case "Toggle":
		return shape{channels: []channel{{key: "value", schema: map[string]any{"type": "boolean"}, initial: false}}}, nil

	case "Pulse":
		return shape{channels: []channel{{key: "value", schema: map[string]any{"type": "null"}}}, pulse: true}, nil

	case "File":
		return shape{channels: []channel{{key: "value", schema: map[string]any{"$ref": "asset-path"}, initial: ""}}}, nil

	case "Sequence":
		return shape{channels: []channel{{key: "blocks", schema: numbers(), initial: 1}}}, nil

	case "WH":
		return shape{channels: fixedChannels([]string{"w", "h"}, numbers, 0)}, nil
	case "XY":
		return shape{channels: fixedChannels([]string{"x", "y"}, numbers, 0)}, nil
	case "XYZ":
		return shape{channels: fixedChannels([]string{"x", "y", "z"}, numbers, 0)}, nil
	case "XYZW":
		return shape{channels: fixedChannels([]string{"x", "y", "z", "w"}, numbers, 0)}, nil
	case "RGB":
		return shape{channels: fixedChannels([]string{"r", "g", "b"}, unitSchema, 0)}, nil
	case "RGBA":
		return shape{channels: fixedChannels([]string{"r", "g", "b", "a"}, unitSchema, 0)}, nil
	case "UV":
		return shape{channels: fixedChannels([]string{"u", "v"}, unitSchema, 0)}, nil
	case "UVW":
		return shape{channels: fixedChannels([]string{"u", "v", "w"}, unitSchema, 0)}, nil

	case "Menu", "StrMenu":
		if len(parameter.Menu) == 0 {
			return shape{}, fmt.Errorf("parameter %s: %s style needs menu entries", parameter.Name, parameter.Style)
		}
		options := make([]any, len(parameter.Menu))
		for i, entry := range parameter.Menu {
			title := entry.Label
			if title == "" {
				title = entry.Name
			}
			options[i] = map[string]any{"const": entry.Name, "title": title}
		}
		schema := map[string]any{"type": "string", "oneOf": options}
		return shape{channels: []channel{{key: "value", schema: schema, initial: parameter.Menu[0].Name}}}, nil
	}
	return shape{}, fmt.Errorf("parameter %s: unknown style %q", parameter.Name, parameter.Style)
}

func (s shape) properties() map[string]any {
	properties := make(map[string]any, len(s.channels))
	for _, channel := range s.channels {
		properties[channel.key] = channel.schema
	}
	return properties
}

func (s shape) keys() []string {
	keys := make([]string, len(s.channels))
	for i, channel := range s.channels {
		keys[i] = channel.key
	}
	return keys
}

// initialValues returns the starting value, applying a configured
// default. A scalar default sets a single-channel value; a map
// default sets the channels it names.
func (s shape) initialValues(fallback any) map[string]any {
	values := make(map[string]any, len(s.channels))
	for _, channel := range s.channels {
		values[channel.key] = channel.initial
	}
	switch value := fallback.(type) {
	case nil:
	case map[string]any:
		for key, v := range value {
			if slices.Contains(s.keys(), key) {
				values[key] = v
			}
		}
	default:
		if len(s.channels) == 1 {
			values[s.channels[0].key] = value
		}
	}
	return values
}

func pulseToken() map[string]any {
	return map[string]any{"value": uuid.NewString()}
}
