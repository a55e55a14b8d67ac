package agent

import (
	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a JSON schema from the shape of T. Structs are closed
// to extra properties; maps stay open.
func SchemaFor[T any]() *jsonschema.Schema {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	var v T
	return r.Reflect(v)
}
