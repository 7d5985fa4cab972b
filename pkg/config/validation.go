package config

import (
	"fmt"
	"reflect"
	"strings"
)

// String renders the configuration as indented key: value lines using the
// config file keys. Fields tagged secret:"true" are shown as *** when set.
func (c *Config) String() string {
	var sb strings.Builder
	writeSection(&sb, reflect.ValueOf(c).Elem(), 0)
	return sb.String()
}

func writeSection(sb *strings.Builder, v reflect.Value, depth int) {
	indent := strings.Repeat("  ", depth)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		key := field.Tag.Get("mapstructure")
		if key == "" || key == "-" {
			key = field.Name
		}
		value := v.Field(i)

		switch {
		case value.Kind() == reflect.Struct:
			fmt.Fprintf(sb, "%s%s:\n", indent, key)
			writeSection(sb, value, depth+1)
		case field.Tag.Get("secret") == "true" && !value.IsZero():
			fmt.Fprintf(sb, "%s%s: ***\n", indent, key)
		case value.Kind() == reflect.Slice && value.Len() == 0:
			fmt.Fprintf(sb, "%s%s: []\n", indent, key)
		case value.Kind() == reflect.Slice:
			fmt.Fprintf(sb, "%s%s:\n", indent, key)
			for j := 0; j < value.Len(); j++ {
				fmt.Fprintf(sb, "%s  - %v\n", indent, value.Index(j).Interface())
			}
		default:
			fmt.Fprintf(sb, "%s%s: %v\n", indent, key, value.Interface())
		}
	}
}
