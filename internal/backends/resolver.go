package backends

import (
	"sort"

	"lsgw/internal/protocol"
)

// Resolver answers which backends serve a path. It reads the registries
// and never blocks.
type Resolver struct {
	reg *Registries
}

// NewResolver creates a resolver over reg.
func NewResolver(reg *Registries) *Resolver {
	return &Resolver{reg: reg}
}

// ByPath returns the ids of every registered backend with a language
// pattern matching path, sorted. It does not look at the filesystem.
func (r *Resolver) ByPath(path string) []string {
	var ids []string
	for id, d := range r.reg.Descriptors.All() {
		if d.Matches(path) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ByID returns a handle when the backend is both constructed and
// initialized.
func (r *Resolver) ByID(id string) (*Handle, bool) {
	caps, ok := r.reg.Capabilities.GetOrNil(id)
	if !ok {
		return nil, false
	}
	inst, ok := r.reg.Instances.GetOrNil(id)
	if !ok {
		return nil, false
	}
	desc, _ := r.reg.Descriptors.GetOrNil(id)
	return &Handle{ID: id, Instance: inst, Capabilities: caps, Descriptor: desc}, true
}

// Ready returns the handles of the ready backends matching path, in ByPath
// order. Backends that are not ready are left out.
func (r *Resolver) Ready(path string) []*Handle {
	return r.handles(r.ByPath(path))
}

// All returns every ready handle, sorted by id.
func (r *Resolver) All() []*Handle {
	return r.handles(r.reg.Descriptors.IDs())
}

// ByWatch returns the ready handles whose watch globs match path.
func (r *Resolver) ByWatch(path string) []*Handle {
	var out []*Handle
	for _, h := range r.All() {
		if h.Descriptor != nil && h.Descriptor.Watches(path) {
			out = append(out, h)
		}
	}
	return out
}

func (r *Resolver) handles(ids []string) []*Handle {
	out := make([]*Handle, 0, len(ids))
	for _, id := range ids {
		if h, ok := r.ByID(id); ok {
			out = append(out, h)
		}
	}
	return out
}

// LanguageRegexes lists every {languageId, namePattern} pair across the
// registered backends, ordered by backend id then language id.
func (r *Resolver) LanguageRegexes() []protocol.LanguageRegex {
	out := []protocol.LanguageRegex{}
	for _, id := range r.reg.Descriptors.IDs() {
		d, _ := r.reg.Descriptors.GetOrNil(id)
		for _, p := range d.MatchPatterns {
			out = append(out, protocol.LanguageRegex{
				LanguageID:  p.LanguageID,
				NamePattern: p.Pattern.String(),
			})
		}
	}
	return out
}
