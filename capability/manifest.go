package capability

// Manifest is what a plugin reports during the HELLO handshake: its
// identity and the full list of capabilities it can serve.
type Manifest struct {
	Name         string        `json:"name" yaml:"name"`
	Version      string        `json:"version" yaml:"version"`
	Description  string        `json:"description,omitempty" yaml:"description,omitempty"`
	Author       *string       `json:"author,omitempty" yaml:"author,omitempty"`
	Capabilities []*Capability `json:"caps" yaml:"caps"`
}

// NewManifest builds a Manifest from a name/version/description triple
// and its capability list.
func NewManifest(name, version, description string, caps []*Capability) *Manifest {
	return &Manifest{
		Name:         name,
		Version:      version,
		Description:  description,
		Capabilities: caps,
	}
}

// Find returns the capability whose key's canonical string matches idStr,
// or nil.
func (m *Manifest) Find(idStr string) *Capability {
	for _, c := range m.Capabilities {
		if c.IDString() == idStr {
			return c
		}
	}
	return nil
}

// KeyStrings returns the canonical string of every capability's key, in
// manifest order.
func (m *Manifest) KeyStrings() []string {
	out := make([]string, 0, len(m.Capabilities))
	for _, c := range m.Capabilities {
		out = append(out, c.IDString())
	}
	return out
}
