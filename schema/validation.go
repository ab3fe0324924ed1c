// Package schema validates request argument vectors and capability
// outputs against the Arg/Output declarations a capability carries, and
// checks a capability's own schema for internal consistency.
package schema

import (
	"fmt"
	"regexp"

	"github.com/tetraplex/capmesh/capability"
)

// Error kinds for the schema validator, matching the §7 validation taxonomy.
const (
	KindUnknownCapability         = "UnknownCapability"
	KindMissingRequiredArgument   = "MissingRequiredArgument"
	KindTooManyArguments          = "TooManyArguments"
	KindInvalidArgumentType       = "InvalidArgumentType"
	KindArgumentValidationFailed  = "ArgumentValidationFailed"
	KindInvalidOutputType         = "InvalidOutputType"
	KindOutputValidationFailed    = "OutputValidationFailed"
	KindInvalidCapabilitySchema   = "InvalidCapabilitySchema"
)

// Error is a typed validation failure carrying the offending cap/argument
// and, where relevant, the failed rule and the value that failed it.
type Error struct {
	Kind          string
	CapabilityID  string
	ArgumentName  string
	ExpectedType  string
	ActualType    string
	ActualValue   interface{}
	Rule          string
	Message       string
}

func (e *Error) Error() string { return e.Message }

func newError(kind, capID, msg string) *Error {
	return &Error{Kind: kind, CapabilityID: capID, Message: msg}
}

func unknownCapability(capID string) *Error {
	return newError(KindUnknownCapability, capID,
		fmt.Sprintf("unknown capability %q: not registered or advertised", capID))
}

func missingRequiredArgument(capID, argName string) *Error {
	return &Error{
		Kind:         KindMissingRequiredArgument,
		CapabilityID: capID,
		ArgumentName: argName,
		Message:      fmt.Sprintf("capability %q requires argument %q but it was not provided", capID, argName),
	}
}

func invalidArgumentType(capID, argName, expected, actual string, value interface{}) *Error {
	return &Error{
		Kind:         KindInvalidArgumentType,
		CapabilityID: capID,
		ArgumentName: argName,
		ExpectedType: expected,
		ActualType:   actual,
		ActualValue:  value,
		Message:      fmt.Sprintf("capability %q argument %q expects type %q but received %q (%v)", capID, argName, expected, actual, value),
	}
}

func argumentValidationFailed(capID, argName, rule string, value interface{}) *Error {
	return &Error{
		Kind:         KindArgumentValidationFailed,
		CapabilityID: capID,
		ArgumentName: argName,
		Rule:         rule,
		ActualValue:  value,
		Message:      fmt.Sprintf("capability %q argument %q failed validation rule %q with value %v", capID, argName, rule, value),
	}
}

func invalidOutputType(capID, expected, actual string, value interface{}) *Error {
	return &Error{
		Kind:         KindInvalidOutputType,
		CapabilityID: capID,
		ExpectedType: expected,
		ActualType:   actual,
		ActualValue:  value,
		Message:      fmt.Sprintf("capability %q output expects type %q but received %q (%v)", capID, expected, actual, value),
	}
}

func outputValidationFailed(capID, rule string, value interface{}) *Error {
	return &Error{
		Kind:         KindOutputValidationFailed,
		CapabilityID: capID,
		Rule:         rule,
		ActualValue:  value,
		Message:      fmt.Sprintf("capability %q output failed validation rule %q with value %v", capID, rule, value),
	}
}

func invalidCapabilitySchema(capID, msg string) *Error {
	return newError(KindInvalidCapabilitySchema, capID, fmt.Sprintf("capability %q: %s", capID, msg))
}

// ValidateArguments validates a positional argument vector against a
// capability's required/optional argument declarations, per §4.2.
func ValidateArguments(cap *capability.Capability, args []interface{}) error {
	capID := cap.IDString()
	a := cap.Arguments
	if a == nil {
		a = &capability.Arguments{}
	}

	maxArgs := len(a.Required) + len(a.Optional)
	if len(args) > maxArgs {
		return &Error{
			Kind:         KindTooManyArguments,
			CapabilityID: capID,
			Message:      fmt.Sprintf("capability %q expects at most %d arguments but received %d", capID, maxArgs, len(args)),
		}
	}

	for i := range a.Required {
		if i >= len(args) {
			return missingRequiredArgument(capID, a.Required[i].Name)
		}
		if err := validateOneArgument(capID, &a.Required[i], args[i]); err != nil {
			return err
		}
	}

	requiredCount := len(a.Required)
	for j := range a.Optional {
		idx := requiredCount + j
		if idx < len(args) {
			if err := validateOneArgument(capID, &a.Optional[j], args[idx]); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateOneArgument(capID string, def *capability.Arg, value interface{}) error {
	if err := checkType(capID, def.Name, def.Type, value); err != nil {
		return err
	}
	return checkRules(capID, def.Name, def.Validation, value, func(rule string, v interface{}) *Error {
		return argumentValidationFailed(capID, def.Name, rule, v)
	})
}

func checkType(capID, name string, t capability.ArgType, value interface{}) error {
	actual := valueTypeName(value)
	matches := false

	switch t {
	case capability.ArgString:
		_, matches = value.(string)
	case capability.ArgInteger:
		if num, ok := numericValue(value); ok {
			matches = num == float64(int64(num))
		}
	case capability.ArgNumber:
		_, matches = numericValue(value)
	case capability.ArgBoolean:
		_, matches = value.(bool)
	case capability.ArgArray:
		_, matches = value.([]interface{})
	case capability.ArgObject:
		_, matches = value.(map[string]interface{})
	case capability.ArgBinary:
		_, matches = value.(string)
	}

	if !matches {
		return invalidArgumentType(capID, name, string(t), actual, value)
	}
	return nil
}

// checkRules applies min/max/minLength/maxLength/pattern/allowedValues,
// delegating error construction to mkErr so the same code serves both
// argument and output validation.
func checkRules(capID, name string, v *capability.Validation, value interface{}, mkErr func(rule string, v interface{}) *Error) error {
	if v == nil {
		return nil
	}

	if v.Min != nil {
		if num, ok := numericValue(value); ok && num < *v.Min {
			return mkErr(fmt.Sprintf("minimum value %v", *v.Min), value)
		}
	}
	if v.Max != nil {
		if num, ok := numericValue(value); ok && num > *v.Max {
			return mkErr(fmt.Sprintf("maximum value %v", *v.Max), value)
		}
	}
	if v.MinLength != nil {
		if s, ok := value.(string); ok && len(s) < *v.MinLength {
			return mkErr(fmt.Sprintf("minimum length %d", *v.MinLength), value)
		}
	}
	if v.MaxLength != nil {
		if s, ok := value.(string); ok && len(s) > *v.MaxLength {
			return mkErr(fmt.Sprintf("maximum length %d", *v.MaxLength), value)
		}
	}
	if v.Pattern != nil {
		if s, ok := value.(string); ok {
			// A pattern that fails to compile is silently ignored, matching
			// the reference validator.
			if re, err := regexp.Compile(*v.Pattern); err == nil && !re.MatchString(s) {
				return mkErr(fmt.Sprintf("pattern %q", *v.Pattern), value)
			}
		}
	}
	if len(v.AllowedValues) > 0 {
		if s, ok := value.(string); ok {
			allowed := false
			for _, a := range v.AllowedValues {
				if s == a {
					allowed = true
					break
				}
			}
			if !allowed {
				return mkErr(fmt.Sprintf("allowed values: %v", v.AllowedValues), value)
			}
		}
	}
	return nil
}

// ValidateOutput validates an output value against a capability's output
// declaration. A binary output is measured by byte length rather than
// string rules; a missing output declaration is itself a schema defect.
func ValidateOutput(cap *capability.Capability, output interface{}) error {
	capID := cap.IDString()
	def := cap.Output
	if def == nil {
		return invalidCapabilitySchema(capID, "no output definition specified")
	}

	if def.Type == capability.ArgBinary {
		return validateBinaryOutput(capID, def, output)
	}

	actual := valueTypeName(output)
	matches := false
	switch def.Type {
	case capability.ArgString:
		_, matches = output.(string)
	case capability.ArgInteger:
		if num, ok := numericValue(output); ok {
			matches = num == float64(int64(num))
		}
	case capability.ArgNumber:
		_, matches = numericValue(output)
	case capability.ArgBoolean:
		_, matches = output.(bool)
	case capability.ArgArray:
		_, matches = output.([]interface{})
	case capability.ArgObject:
		_, matches = output.(map[string]interface{})
	}
	if !matches {
		return invalidOutputType(capID, string(def.Type), actual, output)
	}

	return checkRules(capID, "", def.Validation, output, func(rule string, v interface{}) *Error {
		return outputValidationFailed(capID, rule, v)
	})
}

// validateBinaryOutput treats min/max as byte-length bounds on a []byte
// (or base64 string) value rather than string-content rules.
func validateBinaryOutput(capID string, def *capability.Output, output interface{}) error {
	var n int
	switch v := output.(type) {
	case []byte:
		n = len(v)
	case string:
		n = len(v)
	default:
		return invalidOutputType(capID, string(capability.ArgBinary), valueTypeName(output), output)
	}

	if def.Validation == nil {
		return nil
	}
	if def.Validation.Min != nil && float64(n) < *def.Validation.Min {
		return outputValidationFailed(capID, fmt.Sprintf("minimum length %v", *def.Validation.Min), output)
	}
	if def.Validation.Max != nil && float64(n) > *def.Validation.Max {
		return outputValidationFailed(capID, fmt.Sprintf("maximum length %v", *def.Validation.Max), output)
	}
	return nil
}

func valueTypeName(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	case float32, float64:
		return "number"
	case string:
		return "string"
	case []byte:
		return "binary"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func numericValue(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// ValidateCapabilitySchema checks a capability's own argument declarations
// for internal consistency: I5 (no default on a required argument), I6
// (unique positions), I7 (unique CLI flags).
func ValidateCapabilitySchema(cap *capability.Capability) error {
	capID := cap.IDString()
	if cap.Arguments == nil {
		return nil
	}

	for _, arg := range cap.Arguments.Required {
		if arg.Default != nil {
			return invalidCapabilitySchema(capID,
				fmt.Sprintf("required argument %q cannot have a default value", arg.Name))
		}
	}

	positions := make(map[int]string)
	all := append(append([]capability.Arg{}, cap.Arguments.Required...), cap.Arguments.Optional...)
	for _, arg := range all {
		if arg.Position != nil {
			if existing, ok := positions[*arg.Position]; ok {
				return invalidCapabilitySchema(capID,
					fmt.Sprintf("duplicate argument position %d for arguments %q and %q", *arg.Position, existing, arg.Name))
			}
			positions[*arg.Position] = arg.Name
		}
	}

	flags := make(map[string]string)
	for _, arg := range all {
		if arg.CLIFlag != nil {
			if existing, ok := flags[*arg.CLIFlag]; ok {
				return invalidCapabilitySchema(capID,
					fmt.Sprintf("duplicate CLI flag %q for arguments %q and %q", *arg.CLIFlag, existing, arg.Name))
			}
			flags[*arg.CLIFlag] = arg.Name
		}
	}

	return nil
}
