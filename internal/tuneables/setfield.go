package tuneables

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// setField applies value to the dotted path inside doc (e.g.
// "advisory_gate.note_threshold"), matching on each struct field's json
// tag. Used only by sparkctl's tuneables set subcommand, which accepts
// paths and string values from the operator's shell and needs a single
// generic setter rather than a switch over every leaf.
func setField(doc *Document, path string, value interface{}) error {
	parts := strings.Split(path, ".")
	if len(parts) != 2 {
		return fmt.Errorf("tuneables: path must be section.field, got %q", path)
	}
	v := reflect.ValueOf(doc).Elem()
	section, ok := fieldByJSONTag(v, parts[0])
	if !ok {
		return fmt.Errorf("tuneables: unknown section %q", parts[0])
	}
	if section.Kind() != reflect.Struct {
		return fmt.Errorf("tuneables: section %q is not a struct", parts[0])
	}
	field, ok := fieldByJSONTag(section, parts[1])
	if !ok {
		return fmt.Errorf("tuneables: unknown field %q in section %q", parts[1], parts[0])
	}
	if !field.CanSet() {
		return fmt.Errorf("tuneables: field %q is not settable", path)
	}
	return assign(field, value)
}

func fieldByJSONTag(v reflect.Value, tag string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		jsonTag := t.Field(i).Tag.Get("json")
		name := strings.Split(jsonTag, ",")[0]
		if name == tag {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func assign(field reflect.Value, value interface{}) error {
	str := fmt.Sprintf("%v", value)
	switch field.Kind() {
	case reflect.String:
		field.SetString(str)
	case reflect.Bool:
		b, err := strconv.ParseBool(str)
		if err != nil {
			return fmt.Errorf("tuneables: %q is not a bool: %w", str, err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return fmt.Errorf("tuneables: %q is not an int: %w", str, err)
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("tuneables: %q is not a float: %w", str, err)
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("tuneables: unsupported field kind %s", field.Kind())
	}
	return nil
}
