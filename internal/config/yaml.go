// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package config

import (
	"reflect"
	"strconv"
	"time"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

var durationType = reflect.TypeFor[time.Duration]()

// MarshalYAML renders c in the layout Load reads, with durations written as
// Go duration strings ("15m0s") rather than nanosecond counts.
func (c Config) MarshalYAML() (any, error) {
	return toNode(reflect.ValueOf(c))
}

// Render returns the YAML form of c.
func Render(c Config) ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, oops.Code("CONFIG_RENDER_FAILED").Wrap(err)
	}
	return out, nil
}

func toNode(v reflect.Value) (*yaml.Node, error) {
	if v.Type() == durationType {
		return scalar(time.Duration(v.Int()).String(), "!!str"), nil
	}

	switch v.Kind() {
	case reflect.Struct:
		node := &yaml.Node{Kind: yaml.MappingNode}
		t := v.Type()
		for i := range t.NumField() {
			field := t.Field(i)
			name := field.Tag.Get("yaml")
			if name == "" || name == "-" {
				continue
			}
			child, err := toNode(v.Field(i))
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, scalar(name, "!!str"), child)
		}
		return node, nil
	case reflect.Slice:
		node := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for i := range v.Len() {
			child, err := toNode(v.Index(i))
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil
	case reflect.String:
		return scalar(v.String(), "!!str"), nil
	case reflect.Bool:
		return scalar(strconv.FormatBool(v.Bool()), ""), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return scalar(strconv.FormatInt(v.Int(), 10), ""), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return scalar(strconv.FormatUint(v.Uint(), 10), ""), nil
	case reflect.Float32, reflect.Float64:
		return scalar(strconv.FormatFloat(v.Float(), 'g', -1, 64), ""), nil
	default:
		return nil, oops.Code("CONFIG_RENDER_FAILED").With("kind", v.Kind().String()).Errorf("unsupported config field kind")
	}
}

// scalar builds a scalar node. An empty tag lets the value resolve on its own.
func scalar(value, tag string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}
