package capkey

// Builder is a fluent constructor for Key values.
type Builder struct {
	tags map[string]string
}

// NewBuilder starts an empty builder.
func NewBuilder() *Builder {
	return &Builder{tags: make(map[string]string)}
}

// Tag sets an arbitrary tag and returns the builder for chaining.
func (b *Builder) Tag(name, value string) *Builder {
	b.tags[name] = value
	return b
}

func (b *Builder) Type(v string) *Builder   { return b.Tag("type", v) }
func (b *Builder) Action(v string) *Builder { return b.Tag("action", v) }
func (b *Builder) Target(v string) *Builder { return b.Tag("target", v) }
func (b *Builder) Format(v string) *Builder { return b.Tag("format", v) }
func (b *Builder) Output(v string) *Builder { return b.Tag("output", v) }

// BinaryOutput sets output=binary.
func (b *Builder) BinaryOutput() *Builder { return b.Output("binary") }

// JSONOutput sets output=json.
func (b *Builder) JSONOutput() *Builder { return b.Output("json") }

// Build finalizes the key. Fails with InvalidFormat if no tags were set.
func (b *Builder) Build() (*Key, error) {
	return FromTags(b.tags)
}

// FromKey seeds a builder with an existing key's tags, for targeted
// mutation (add/replace a handful of tags without reconstructing the rest).
func FromKey(k *Key) *Builder {
	b := NewBuilder()
	for name, v := range k.tags {
		b.tags[name] = v
	}
	return b
}
