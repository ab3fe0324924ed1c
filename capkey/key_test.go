package capkey

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStringBasics(t *testing.T) {
	k, err := FromString("action=transform;format=json;type=data_processing")
	require.NoError(t, err)

	v, ok := k.Tag("type")
	assert.True(t, ok)
	assert.Equal(t, "data_processing", v)
}

func TestCanonicalStringSorted(t *testing.T) {
	k, err := FromString("type=document;action=generate;target=thumbnail;format=pdf")
	require.NoError(t, err)
	assert.Equal(t, "action=generate;format=pdf;target=thumbnail;type=document", k.ToString())
}

func TestCanonicalStringNoTrailingSeparator(t *testing.T) {
	k, err := FromString("type=document;")
	require.NoError(t, err)
	assert.Equal(t, "type=document", k.ToString())
}

func TestRoundTripLaw(t *testing.T) {
	inputs := []string{
		"action=generate;type=document",
		"type=document;format=*;action=generate",
		"a=1;b=2;c=3",
	}
	for _, s := range inputs {
		k, err := FromString(s)
		require.NoError(t, err)
		k2, err := FromString(k.ToString())
		require.NoError(t, err)
		assert.True(t, k.Equals(k2))
	}
}

func TestEmptyStringIsInvalidFormat(t *testing.T) {
	k, err := FromString("")
	assert.Nil(t, k)
	require.Error(t, err)
	assert.Equal(t, ErrorInvalidFormat, err.(*Error).Code)
}

func TestMissingEqualsIsInvalidTagFormat(t *testing.T) {
	k, err := FromString("type=document;invalid_tag")
	assert.Nil(t, k)
	require.Error(t, err)
	assert.Equal(t, ErrorInvalidTagFormat, err.(*Error).Code)
}

func TestEmptyTagSide(t *testing.T) {
	_, err := FromString("key=")
	require.Error(t, err)
	assert.Equal(t, ErrorEmptyTag, err.(*Error).Code)

	_, err = FromString("=value")
	require.Error(t, err)
	assert.Equal(t, ErrorEmptyTag, err.(*Error).Code)
}

func TestInvalidCharacter(t *testing.T) {
	_, err := FromString("type@invalid=value")
	require.Error(t, err)
	assert.Equal(t, ErrorInvalidCharacter, err.(*Error).Code)
}

func TestDoubleEqualsIsInvalidTagFormat(t *testing.T) {
	_, err := FromString("a=b=c")
	require.Error(t, err)
	assert.Equal(t, ErrorInvalidTagFormat, err.(*Error).Code)
}

func TestMatchesCapWildcard(t *testing.T) {
	k, err := FromString("type=data_processing;action=*")
	require.NoError(t, err)

	req1, err := FromString("type=data_processing;action=transform;format=json")
	require.NoError(t, err)
	assert.True(t, k.CanHandle(req1))

	req2, err := FromString("type=compute")
	require.NoError(t, err)
	assert.False(t, k.CanHandle(req2))
}

func TestMatchesMissingTagOnCapIsWildcard(t *testing.T) {
	k, err := FromString("action=generate;type=document")
	require.NoError(t, err)

	req, err := FromString("action=generate;type=document;format=pdf")
	require.NoError(t, err)
	// k lacks "format" entirely -- treated as wildcard, so it handles the request.
	assert.True(t, k.CanHandle(req))
}

func TestCapHandlesItself(t *testing.T) {
	k, err := FromString("action=generate;type=document")
	require.NoError(t, err)
	assert.True(t, k.CanHandle(k))
}

func TestSpecificityDecreasesUnderWildcard(t *testing.T) {
	k, err := FromString("action=generate;type=document")
	require.NoError(t, err)
	before := k.Specificity()
	after := k.WithWildcardTag("action").Specificity()
	assert.LessOrEqual(t, after, before)
}

func TestWithWildcardTagNoopWhenAbsent(t *testing.T) {
	k, err := FromString("type=document")
	require.NoError(t, err)
	same := k.WithWildcardTag("nonexistent")
	assert.True(t, k.Equals(same))
}

func TestIsCompatibleWithDoesNotImplyEquals(t *testing.T) {
	a, err := FromString("type=document;action=*")
	require.NoError(t, err)
	b, err := FromString("type=document;action=generate")
	require.NoError(t, err)

	assert.True(t, a.CanHandle(b))
	assert.True(t, b.CanHandle(a))
	assert.False(t, a.Equals(b))
	assert.True(t, a.IsCompatibleWith(b))
}

func TestSubsetAndMerge(t *testing.T) {
	k, err := FromString("type=document;action=generate;target=thumbnail")
	require.NoError(t, err)

	sub := k.Subset([]string{"type", "action"})
	assert.Equal(t, "action=generate;type=document", sub.ToString())

	other, err := FromString("action=extract;format=pdf")
	require.NoError(t, err)
	merged := k.Merge(other)
	v, _ := merged.Tag("action")
	assert.Equal(t, "extract", v)
	v, _ = merged.Tag("format")
	assert.Equal(t, "pdf", v)
	v, _ = merged.Tag("target")
	assert.Equal(t, "thumbnail", v)
}

func TestConvenienceAccessors(t *testing.T) {
	k, err := FromString("type=document;action=generate;target=thumbnail;format=pdf;output=binary")
	require.NoError(t, err)

	v, _ := k.Type()
	assert.Equal(t, "document", v)
	v, _ = k.Action()
	assert.Equal(t, "generate", v)
	v, _ = k.Target()
	assert.Equal(t, "thumbnail", v)
	v, _ = k.Format()
	assert.Equal(t, "pdf", v)
	assert.True(t, k.IsBinary())
}

func TestJSONRoundTrip(t *testing.T) {
	k, err := FromString("type=document;action=generate")
	require.NoError(t, err)

	data, err := json.Marshal(k)
	require.NoError(t, err)
	assert.Equal(t, `"action=generate;type=document"`, string(data))

	var k2 Key
	require.NoError(t, json.Unmarshal(data, &k2))
	assert.True(t, k.Equals(&k2))
}
