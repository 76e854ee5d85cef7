package commands

import "slices"

// Registry indexes command definitions by name and alias.
type Registry struct {
	defs   []Definition
	byName map[string]int
}

// NewRegistry indexes defs. A later definition never shadows an earlier
// name or alias.
func NewRegistry(defs []Definition) *Registry {
	r := &Registry{defs: defs, byName: make(map[string]int, len(defs))}
	for i, d := range defs {
		for _, key := range append([]string{d.Name}, d.Aliases...) {
			if _, taken := r.byName[key]; !taken {
				r.byName[key] = i
			}
		}
	}
	return r
}

// Lookup finds the command called name that is available on channel.
func (r *Registry) Lookup(channel, name string) (Definition, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Definition{}, false
	}
	d := r.defs[i]
	if len(d.Channels) > 0 && !slices.Contains(d.Channels, channel) {
		return Definition{}, false
	}
	return d, true
}

// ForChannel lists the commands available on channel in definition order.
func (r *Registry) ForChannel(channel string) []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		if len(d.Channels) == 0 || slices.Contains(d.Channels, channel) {
			out = append(out, d)
		}
	}
	return out
}
