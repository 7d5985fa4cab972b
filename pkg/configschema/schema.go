// Package configschema generates a JSON Schema for the configuration file.
package configschema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/nimburion/entitykit/pkg/config"
)

// enums lists the closed value sets of string keys, by dotted key.
var enums = map[string][]any{
	"log.level":     {"debug", "info", "warn", "error"},
	"log.format":    {"json", "text"},
	"database.type": {config.DatabaseTypeMemory, config.DatabaseTypePostgres, config.DatabaseTypeMySQL, config.DatabaseTypeMongoDB},
	"eventbus.type": {config.EventBusTypeNone, config.EventBusTypeKafka},
}

// BuildSchema returns the schema of config.Config with property names as
// they appear in the file and defaults taken from defaults, or from
// config.DefaultConfig when nil. Every key is optional; secret keys are
// marked write-only.
func BuildSchema(defaults *config.Config) (*jsonschema.Schema, error) {
	opts := &jsonschema.ForOptions{
		IgnoreInvalidTypes: true,
		TypeSchemas: map[reflect.Type]*jsonschema.Schema{
			reflect.TypeOf(time.Duration(0)): {Type: "string"},
		},
	}
	t := reflect.TypeOf(config.Config{})
	schema, err := jsonschema.ForType(t, opts)
	if err != nil {
		return nil, fmt.Errorf("build config schema: %w", err)
	}
	if defaults == nil {
		defaults = config.DefaultConfig()
	}
	annotate(schema, t, reflect.ValueOf(*defaults), "")

	schema.Title = defaults.Service.Name + " configuration"
	schema.Schema = "https://json-schema.org/draft/2020-12/schema"
	return schema, nil
}

// annotate renames properties to their mapstructure keys and fills in
// defaults, enums and write-only markers.
func annotate(schema *jsonschema.Schema, t reflect.Type, value reflect.Value, path string) {
	if schema == nil || t.Kind() != reflect.Struct {
		return
	}
	schema.Required = nil
	renamed := make(map[string]*jsonschema.Schema, len(schema.Properties))
	order := make([]string, 0, t.NumField())

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		prop, ok := schema.Properties[jsonName(field)]
		if !field.IsExported() || !ok {
			continue
		}
		key := keyName(field)
		dotted := key
		if path != "" {
			dotted = path + "." + key
		}
		fv := value.Field(i)

		if field.Type.Kind() == reflect.Struct {
			annotate(prop, field.Type, fv, dotted)
		} else if raw, ok := defaultValue(fv); ok {
			prop.Default = raw
		}
		if e, ok := enums[dotted]; ok {
			prop.Enum = e
		}
		if field.Tag.Get("secret") == "true" {
			prop.WriteOnly = true
			prop.Default = nil
		}
		renamed[key] = prop
		order = append(order, key)
	}
	schema.Properties = renamed
	schema.PropertyOrder = order
}

func defaultValue(v reflect.Value) (json.RawMessage, bool) {
	if !v.IsValid() || (v.Kind() == reflect.Slice && v.IsZero()) {
		return nil, false
	}
	var payload any = v.Interface()
	if d, ok := payload.(time.Duration); ok {
		payload = d.String()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}
	return raw, true
}

func keyName(field reflect.StructField) string {
	if tag := strings.Split(field.Tag.Get("mapstructure"), ",")[0]; tag != "" && tag != "-" {
		return tag
	}
	return strings.ToLower(field.Name)
}

// jsonName is the property name jsonschema.ForType assigns to field.
func jsonName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("json"); ok {
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			return name
		}
	}
	return field.Name
}
