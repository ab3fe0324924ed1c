// Package capability defines the Capability record, its argument and
// output schema shapes, and the Manifest that groups a plugin's
// capabilities together.
package capability

import "github.com/tetraplex/capmesh/capkey"

// ArgType is the primitive type a capability argument or output declares.
type ArgType string

const (
	ArgString  ArgType = "string"
	ArgInteger ArgType = "integer"
	ArgNumber  ArgType = "number"
	ArgBoolean ArgType = "boolean"
	ArgArray   ArgType = "array"
	ArgObject  ArgType = "object"
	ArgBinary  ArgType = "binary"
)

// Validation constrains a value beyond its primitive type.
type Validation struct {
	Min           *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max           *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	MinLength     *int     `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength     *int     `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Pattern       *string  `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty" yaml:"allowed_values,omitempty"`
}

// Arg describes a single positional or flagged argument.
type Arg struct {
	Name        string      `json:"name" yaml:"name"`
	Type        ArgType     `json:"type" yaml:"type"`
	Description string      `json:"description" yaml:"description"`
	Position    *int        `json:"position,omitempty" yaml:"position,omitempty"`
	CLIFlag     *string     `json:"cli_flag,omitempty" yaml:"cli_flag,omitempty"`
	Validation  *Validation `json:"validation,omitempty" yaml:"validation,omitempty"`
	Default     interface{} `json:"default_value,omitempty" yaml:"default_value,omitempty"`
}

// Arguments groups a capability's required and optional argument lists.
type Arguments struct {
	Required []Arg `json:"required,omitempty" yaml:"required,omitempty"`
	Optional []Arg `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// IsEmpty reports whether neither list carries any argument.
func (a *Arguments) IsEmpty() bool {
	return a == nil || (len(a.Required) == 0 && len(a.Optional) == 0)
}

// Find looks up an argument by name across both lists.
func (a *Arguments) Find(name string) *Arg {
	if a == nil {
		return nil
	}
	for i := range a.Required {
		if a.Required[i].Name == name {
			return &a.Required[i]
		}
	}
	for i := range a.Optional {
		if a.Optional[i].Name == name {
			return &a.Optional[i]
		}
	}
	return nil
}

// Output describes a capability's return value shape.
type Output struct {
	Type        ArgType     `json:"type" yaml:"type"`
	SchemaRef   *string     `json:"schema_ref,omitempty" yaml:"schema_ref,omitempty"`
	ContentType *string     `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Validation  *Validation `json:"validation,omitempty" yaml:"validation,omitempty"`
	Description string      `json:"description" yaml:"description"`
}

// Capability is a plugin's advertisement of one operation: its capability
// key, version, the opaque command name the plugin dispatches on, its
// argument/output schema, and free-form metadata.
type Capability struct {
	Key          *capkey.Key       `json:"id" yaml:"id"`
	Version      string            `json:"version" yaml:"version"`
	Command      string            `json:"command" yaml:"command"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	AcceptsStdin bool              `json:"accepts_stdin,omitempty" yaml:"accepts_stdin,omitempty"`
	Arguments    *Arguments        `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Output       *Output           `json:"output,omitempty" yaml:"output,omitempty"`
}

// New creates a Capability with empty metadata and argument lists.
func New(key *capkey.Key, version, command string) *Capability {
	return &Capability{
		Key:       key,
		Version:   version,
		Command:   command,
		Metadata:  make(map[string]string),
		Arguments: &Arguments{},
	}
}

// IDString returns the capability's key in canonical string form.
func (c *Capability) IDString() string {
	return c.Key.ToString()
}

// CanHandle reports whether this capability's key can handle request.
func (c *Capability) CanHandle(request *capkey.Key) bool {
	return c.Key.CanHandle(request)
}

// IsMoreSpecificThan compares capabilities by their keys' specificity.
func (c *Capability) IsMoreSpecificThan(other *Capability) bool {
	if other == nil {
		return true
	}
	return c.Key.IsMoreSpecificThan(other.Key)
}

// Metadata accessors.

func (c *Capability) GetMetadata(name string) (string, bool) {
	if c.Metadata == nil {
		return "", false
	}
	v, ok := c.Metadata[name]
	return v, ok
}

func (c *Capability) SetMetadata(name, value string) {
	if c.Metadata == nil {
		c.Metadata = make(map[string]string)
	}
	c.Metadata[name] = value
}

// Equals compares two capabilities by key, version, description, and
// metadata (deep).
func (c *Capability) Equals(other *Capability) bool {
	if other == nil {
		return false
	}
	if !c.Key.Equals(other.Key) {
		return false
	}
	if c.Version != other.Version || c.Description != other.Description {
		return false
	}
	if len(c.Metadata) != len(other.Metadata) {
		return false
	}
	for k, v := range c.Metadata {
		if ov, ok := other.Metadata[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
