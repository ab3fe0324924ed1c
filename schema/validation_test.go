package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetraplex/capmesh/capability"
	"github.com/tetraplex/capmesh/capkey"
)

func mustKey(t *testing.T, s string) *capkey.Key {
	t.Helper()
	k, err := capkey.FromString(s)
	require.NoError(t, err)
	return k
}

func capWithArgs(t *testing.T, required, optional []capability.Arg) *capability.Capability {
	c := capability.New(mustKey(t, "type=document;action=generate"), "1.0.0", "generate")
	c.Arguments = &capability.Arguments{Required: required, Optional: optional}
	return c
}

func TestValidateArgumentsTooMany(t *testing.T) {
	c := capWithArgs(t, []capability.Arg{{Name: "a", Type: capability.ArgString}}, nil)
	err := ValidateArguments(c, []interface{}{"x", "y"})
	require.Error(t, err)
	assert.Equal(t, KindTooManyArguments, err.(*Error).Kind)
}

func TestValidateArgumentsMissingRequired(t *testing.T) {
	c := capWithArgs(t, []capability.Arg{{Name: "path", Type: capability.ArgString}}, nil)
	err := ValidateArguments(c, nil)
	require.Error(t, err)
	assert.Equal(t, KindMissingRequiredArgument, err.(*Error).Kind)
	assert.Equal(t, "path", err.(*Error).ArgumentName)
}

func TestValidateArgumentsTypeMismatch(t *testing.T) {
	c := capWithArgs(t, []capability.Arg{{Name: "count", Type: capability.ArgInteger}}, nil)
	err := ValidateArguments(c, []interface{}{"not-a-number"})
	require.Error(t, err)
	assert.Equal(t, KindInvalidArgumentType, err.(*Error).Kind)
}

func TestValidateArgumentsIntegerRejectsFloat(t *testing.T) {
	c := capWithArgs(t, []capability.Arg{{Name: "count", Type: capability.ArgInteger}}, nil)
	err := ValidateArguments(c, []interface{}{3.5})
	require.Error(t, err)
	assert.Equal(t, KindInvalidArgumentType, err.(*Error).Kind)

	assert.NoError(t, ValidateArguments(c, []interface{}{3.0}))
}

func TestValidateArgumentsRulesMinMax(t *testing.T) {
	min, max := 1.0, 10.0
	c := capWithArgs(t, []capability.Arg{{
		Name: "n", Type: capability.ArgInteger,
		Validation: &capability.Validation{Min: &min, Max: &max},
	}}, nil)

	assert.NoError(t, ValidateArguments(c, []interface{}{5.0}))

	err := ValidateArguments(c, []interface{}{100.0})
	require.Error(t, err)
	assert.Equal(t, KindArgumentValidationFailed, err.(*Error).Kind)
}

func TestValidateArgumentsPatternIgnoredWhenInvalid(t *testing.T) {
	bad := "([invalid"
	c := capWithArgs(t, []capability.Arg{{
		Name: "s", Type: capability.ArgString,
		Validation: &capability.Validation{Pattern: &bad},
	}}, nil)
	// An uncompilable pattern is silently ignored, never an error.
	assert.NoError(t, ValidateArguments(c, []interface{}{"anything"}))
}

func TestValidateArgumentsAllowedValues(t *testing.T) {
	c := capWithArgs(t, []capability.Arg{{
		Name: "mode", Type: capability.ArgString,
		Validation: &capability.Validation{AllowedValues: []string{"fast", "slow"}},
	}}, nil)
	assert.NoError(t, ValidateArguments(c, []interface{}{"fast"}))

	err := ValidateArguments(c, []interface{}{"turbo"})
	require.Error(t, err)
	assert.Equal(t, KindArgumentValidationFailed, err.(*Error).Kind)
}

func TestValidateArgumentsOptionalSkippedWhenAbsent(t *testing.T) {
	c := capWithArgs(t, nil, []capability.Arg{{Name: "opt", Type: capability.ArgString}})
	assert.NoError(t, ValidateArguments(c, nil))
}

func TestValidateOutputMissingDefinition(t *testing.T) {
	c := capability.New(mustKey(t, "type=document"), "1.0.0", "cmd")
	err := ValidateOutput(c, "anything")
	require.Error(t, err)
	assert.Equal(t, KindInvalidCapabilitySchema, err.(*Error).Kind)
}

func TestValidateOutputBinaryByteLength(t *testing.T) {
	min, max := 2.0, 4.0
	c := capability.New(mustKey(t, "type=document"), "1.0.0", "cmd")
	c.Output = &capability.Output{
		Type:       capability.ArgBinary,
		Validation: &capability.Validation{Min: &min, Max: &max},
	}

	assert.NoError(t, ValidateOutput(c, []byte("abc")))

	err := ValidateOutput(c, []byte("a"))
	require.Error(t, err)
	assert.Equal(t, KindOutputValidationFailed, err.(*Error).Kind)
}

func TestValidateOutputTypeMatrix(t *testing.T) {
	c := capability.New(mustKey(t, "type=document"), "1.0.0", "cmd")
	c.Output = &capability.Output{Type: capability.ArgObject}

	assert.NoError(t, ValidateOutput(c, map[string]interface{}{"k": "v"}))

	err := ValidateOutput(c, "not-an-object")
	require.Error(t, err)
	assert.Equal(t, KindInvalidOutputType, err.(*Error).Kind)
}

func TestValidateCapabilitySchemaRequiredDefault(t *testing.T) {
	def := "x"
	c := capWithArgs(t, []capability.Arg{{Name: "a", Type: capability.ArgString, Default: def}}, nil)
	err := ValidateCapabilitySchema(c)
	require.Error(t, err)
	assert.Equal(t, KindInvalidCapabilitySchema, err.(*Error).Kind)
}

func TestValidateCapabilitySchemaDuplicatePosition(t *testing.T) {
	p0 := 0
	c := capWithArgs(t, []capability.Arg{
		{Name: "a", Type: capability.ArgString, Position: &p0},
		{Name: "b", Type: capability.ArgString, Position: &p0},
	}, nil)
	err := ValidateCapabilitySchema(c)
	require.Error(t, err)
	assert.Equal(t, KindInvalidCapabilitySchema, err.(*Error).Kind)
}

func TestValidateCapabilitySchemaDuplicateFlag(t *testing.T) {
	flag := "--in"
	c := capWithArgs(t, []capability.Arg{
		{Name: "a", Type: capability.ArgString, CLIFlag: &flag},
		{Name: "b", Type: capability.ArgString, CLIFlag: &flag},
	}, nil)
	err := ValidateCapabilitySchema(c)
	require.Error(t, err)
	assert.Equal(t, KindInvalidCapabilitySchema, err.(*Error).Kind)
}

func TestValidateCapabilitySchemaOK(t *testing.T) {
	p0, p1 := 0, 1
	f0, f1 := "--in", "--out"
	c := capWithArgs(t, []capability.Arg{
		{Name: "a", Type: capability.ArgString, Position: &p0, CLIFlag: &f0},
		{Name: "b", Type: capability.ArgString, Position: &p1, CLIFlag: &f1},
	}, nil)
	assert.NoError(t, ValidateCapabilitySchema(c))
}
