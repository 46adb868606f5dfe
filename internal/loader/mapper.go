package loader

import (
	"fmt"
	"strings"
)

// Mapping styles accepted by GetMapper.
const (
	StyleIdentity = "identity"
	StyleDotted   = "dotted"
)

// WeightMapper maps a hierarchical parameter name ("/0/W") to the key it is
// stored under in a weights file.
type WeightMapper interface {
	MapName(name string) (string, error)
}

// IdentityMapper looks parameters up under their own names.
type IdentityMapper struct{}

// MapName returns name unchanged.
func (IdentityMapper) MapName(name string) (string, error) { return name, nil }

// DottedMapper uses the dotted keys written by PyTorch-style state dicts:
//   - /0/W -> 0.W
//   - /features/1/gamma -> features.1.gamma
type DottedMapper struct {
	// Prefix is prepended to every key, for example "model.".
	Prefix string
}

// MapName converts name to its dotted key.
func (m DottedMapper) MapName(name string) (string, error) {
	trimmed := strings.TrimPrefix(name, "/")
	if trimmed == "" {
		return "", fmt.Errorf("cannot map empty name %q", name)
	}
	return m.Prefix + strings.ReplaceAll(trimmed, "/", "."), nil
}

// GetMapper returns the mapper for a style name.
func GetMapper(style, prefix string) (WeightMapper, error) {
	switch style {
	case "", StyleIdentity:
		if prefix != "" {
			return nil, fmt.Errorf("style %q takes no prefix", StyleIdentity)
		}
		return IdentityMapper{}, nil
	case StyleDotted:
		return DottedMapper{Prefix: prefix}, nil
	default:
		return nil, fmt.Errorf("unknown weight name style %q", style)
	}
}
