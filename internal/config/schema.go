package config

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// Schema describes the configuration file format.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		FieldNameTag:   "yaml",
		DoNotReference: true,
	}
	schema := reflector.ReflectFromType(reflect.TypeOf(Config{}))
	schema.Title = "bomberboy configuration"
	schema.Description = "Configuration file for the bomberboy rollback arena."
	return schema
}

// SchemaJSON returns the schema as indented JSON.
func SchemaJSON() ([]byte, error) {
	data, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("config: marshal schema: %w", err)
	}
	return append(data, '\n'), nil
}
