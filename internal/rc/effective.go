package rc

import (
	"maps"
	"slices"
)

// EffectiveConfig is the merged result of all configuration layers. It is
// immutable: every accessor returns copies.
type EffectiveConfig struct {
	values map[string]string
}

// Merge folds layers left to right. On a key collision the later layer wins.
func Merge(layers ...map[string]string) EffectiveConfig {
	merged := make(map[string]string)

	for _, layer := range layers {
		maps.Copy(merged, layer)
	}

	return EffectiveConfig{values: merged}
}

// Lookup returns the value for key and whether any layer defined it.
func (c EffectiveConfig) Lookup(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Get returns the value for key, or "" when undefined.
func (c EffectiveConfig) Get(key string) string {
	return c.values[key]
}

// Len returns the number of defined keys.
func (c EffectiveConfig) Len() int {
	return len(c.values)
}

// Keys returns the defined keys in sorted order.
func (c EffectiveConfig) Keys() []string {
	return slices.Sorted(maps.Keys(c.values))
}

// Map returns a copy of the underlying key/value pairs.
func (c EffectiveConfig) Map() map[string]string {
	return maps.Clone(c.values)
}

// Settings returns the pairs as a map[string]any, the shape viper merges.
func (c EffectiveConfig) Settings() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}

	return out
}
