package utils

import "github.com/invopop/jsonschema"

// GenerateSchema reflects T into the JSON schema handed to provider
// structured-output modes. Strict response formats reject open or
// referenced schemas, so the result is closed to extra properties,
// fully inlined, and hoists the root struct rather than nesting it
// under a definition.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	var v T
	return reflector.Reflect(v)
}
