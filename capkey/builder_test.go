package capkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderFluent(t *testing.T) {
	k, err := NewBuilder().
		Type("document").
		Action("generate").
		Target("thumbnail").
		BinaryOutput().
		Build()
	require.NoError(t, err)

	assert.Equal(t, "action=generate;output=binary;target=thumbnail;type=document", k.ToString())
}

func TestBuilderEmptyFails(t *testing.T) {
	_, err := NewBuilder().Build()
	require.Error(t, err)
	assert.Equal(t, ErrorInvalidFormat, err.(*Error).Code)
}

func TestFromKeyMutation(t *testing.T) {
	base := mustKey(t, "type=document;action=generate")
	mutated, err := FromKey(base).Action("extract").Build()
	require.NoError(t, err)

	v, _ := mutated.Action()
	assert.Equal(t, "extract", v)
	v, _ = mutated.Type()
	assert.Equal(t, "document", v)
	// base is untouched
	v, _ = base.Action()
	assert.Equal(t, "generate", v)
}
