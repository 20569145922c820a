package ir

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeYAML parses a single YAML document into a Value.
//
// The node tree is walked directly instead of decoding into any, so that
// floats are rejected rather than silently widened and duplicate keys are
// reported. Strings and keys are NFC-normalized. Aliases are expanded; merge keys ("<<") are not supported.
func DecodeYAML(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if doc.Kind == 0 {
		return Object{}, nil
	}
	return fromYAMLNode(&doc, nil)
}

func fromYAMLNode(n *yaml.Node, at Path) (Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Object{}, nil
		}
		return fromYAMLNode(n.Content[0], at)

	case yaml.AliasNode:
		return fromYAMLNode(n.Alias, at)

	case yaml.MappingNode:
		obj := make(Object, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode, valNode := n.Content[i], n.Content[i+1]
			if keyNode.ShortTag() == "!!merge" {
				return nil, yamlErr(keyNode, at, "merge keys are not supported")
			}
			if keyNode.Kind != yaml.ScalarNode {
				return nil, yamlErr(keyNode, at, "mapping keys must be scalars")
			}
			key := nfc(keyNode.Value)
			if _, dup := obj[key]; dup {
				return nil, yamlErr(keyNode, at, fmt.Sprintf("duplicate key %q", key))
			}
			val, err := fromYAMLNode(valNode, at.Child(key))
			if err != nil {
				return nil, err
			}
			obj[key] = val
		}
		return obj, nil

	case yaml.SequenceNode:
		l := make(List, len(n.Content))
		for i, elem := range n.Content {
			val, err := fromYAMLNode(elem, at.Index(i))
			if err != nil {
				return nil, err
			}
			l[i] = val
		}
		return l, nil

	case yaml.ScalarNode:
		return fromYAMLScalar(n, at)

	default:
		return nil, yamlErr(n, at, fmt.Sprintf("unsupported node kind %d", n.Kind))
	}
}

func fromYAMLScalar(n *yaml.Node, at Path) (Value, error) {
	switch n.ShortTag() {
	case "!!str":
		return String(nfc(n.Value)), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, yamlErr(n, at, fmt.Sprintf("integer out of range: %s", n.Value))
		}
		return Int(i), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, yamlErr(n, at, err.Error())
		}
		return Bool(b), nil
	case "!!null":
		return Null{}, nil
	case "!!float":
		return nil, yamlErr(n, at, fmt.Sprintf("%s: %s", ErrFloat, n.Value))
	default:
		return nil, yamlErr(n, at, fmt.Sprintf("unsupported scalar tag %s", n.ShortTag()))
	}
}

func yamlErr(n *yaml.Node, at Path, msg string) error {
	if len(at) > 0 {
		return fmt.Errorf("line %d: %s: %s", n.Line, at, msg)
	}
	return fmt.Errorf("line %d: %s", n.Line, msg)
}
