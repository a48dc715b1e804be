package backends

import (
	"regexp"
	"sort"

	"lsgw/internal/backends/lsp"
	"lsgw/internal/protocol"
	"lsgw/internal/registry"
)

// LanguagePattern pairs a language id with the file-name pattern that
// selects it.
type LanguagePattern struct {
	LanguageID string
	Pattern    *regexp.Regexp
}

// Descriptor is the immutable description of one backend, created once
// during ingestion.
type Descriptor struct {
	// ID is the backend's unique identifier
	ID string

	// MatchPatterns select the document paths this backend serves
	MatchPatterns []LanguagePattern

	// WatchPatterns select the file events forwarded to this backend
	WatchPatterns []*GlobMatcher

	// Communication opens the byte streams to the backend
	Communication lsp.Communicator

	// Constructor builds the live handle from the streams
	Constructor lsp.Constructor

	// Local backends are launched and checked on this machine
	Local bool

	// ProjectsRoot is where the backend sees the workspace; empty uses
	// the gateway default
	ProjectsRoot string

	// InitializationOptions are passed verbatim in the handshake
	InitializationOptions map[string]interface{}
}

// Matches reports whether any language pattern matches path.
func (d *Descriptor) Matches(path string) bool {
	for _, p := range d.MatchPatterns {
		if p.Pattern.MatchString(path) {
			return true
		}
	}
	return false
}

// Watches reports whether any watch glob matches path.
func (d *Descriptor) Watches(path string) bool {
	for _, g := range d.WatchPatterns {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// Registries hold all backend runtime state, one registry per lifecycle
// stage, plus the per-id lock table that serializes lifecycle steps.
type Registries struct {
	Descriptors  *registry.Registry[*Descriptor]
	Streams      *registry.Registry[*lsp.Streams]
	Instances    *registry.Registry[lsp.Instance]
	Capabilities *registry.Registry[*protocol.ServerCapabilities]
	Locks        *registry.Locks
}

// NewRegistries creates empty registries.
func NewRegistries() *Registries {
	return &Registries{
		Descriptors:  registry.New[*Descriptor]("backend"),
		Streams:      registry.New[*lsp.Streams]("streams"),
		Instances:    registry.New[lsp.Instance]("instance"),
		Capabilities: registry.New[*protocol.ServerCapabilities]("capabilities"),
		Locks:        &registry.Locks{},
	}
}

// Handle is a ready backend: an initialized instance plus what it
// advertised.
type Handle struct {
	ID           string
	Instance     lsp.Instance
	Capabilities *protocol.ServerCapabilities
	Descriptor   *Descriptor
}

// Status summarizes how far a backend got through its lifecycle.
type Status struct {
	ID            string   `json:"id"`
	Languages     []string `json:"languages"`
	Communication string   `json:"communication"`
	Local         bool     `json:"local"`
	StreamsReady  bool     `json:"streamsReady"`
	InstanceReady bool     `json:"instanceReady"`
	Initialized   bool     `json:"initialized"`
}

// Statuses returns one Status per known backend, sorted by id.
func (r *Registries) Statuses() []Status {
	out := make([]Status, 0, r.Descriptors.Len())
	for _, id := range r.Descriptors.IDs() {
		d, _ := r.Descriptors.GetOrNil(id)
		st := Status{
			ID:            id,
			Local:         d.Local,
			StreamsReady:  r.Streams.Contains(id),
			InstanceReady: r.Instances.Contains(id),
			Initialized:   r.Capabilities.Contains(id),
		}
		if d.Communication != nil {
			st.Communication = d.Communication.Kind()
		}
		for _, p := range d.MatchPatterns {
			st.Languages = append(st.Languages, p.LanguageID)
		}
		sort.Strings(st.Languages)
		out = append(out, st)
	}
	return out
}
