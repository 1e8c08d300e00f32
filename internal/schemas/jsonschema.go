package schemas

import (
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/dtokit/pkg/dto"
)

// JSONSchema describes the records produced by a schema as a JSON Schema
// document. Properties keep field declaration order. Every typed field also
// admits null, since absent input leaves the field null.
func JSONSchema(e Entry) *jsonschema.Schema {
	props := orderedmap.New[string, *jsonschema.Schema]()
	for _, f := range e.Schema.Fields() {
		props.Set(f.Name, fieldSchema(f.Type))
	}
	return &jsonschema.Schema{
		Version:              jsonschema.Version,
		ID:                   jsonschema.ID("urn:dtokit:schema:" + e.Name()),
		Title:                e.Name(),
		Description:          e.Description,
		Type:                 "object",
		Properties:           props,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

func fieldSchema(t dto.Type) *jsonschema.Schema {
	var base *jsonschema.Schema
	switch t {
	case dto.TypeInt:
		base = &jsonschema.Schema{Type: "integer"}
	case dto.TypeFloat:
		base = &jsonschema.Schema{Type: "number"}
	case dto.TypeString:
		base = &jsonschema.Schema{Type: "string"}
	case dto.TypeBool:
		base = &jsonschema.Schema{Type: "boolean"}
	case dto.TypeObject:
		base = &jsonschema.Schema{Type: "object"}
	case dto.TypeArray:
		base = &jsonschema.Schema{Type: "array"}
	case dto.TypeDate:
		base = &jsonschema.Schema{Type: "string", Format: "date-time"}
	default:
		return &jsonschema.Schema{}
	}
	return &jsonschema.Schema{AnyOf: []*jsonschema.Schema{base, {Type: "null"}}}
}
