package binder

import (
	"fmt"
	"net/http"
	"reflect"
)

// Path creates a path parameter binder using the router's extractor.
// Fields are matched by `path:"name"` tags; untagged fields are ignored so
// body fields never collide with path segments.
//
//	binder.Path(chi.URLParam)
func Path(extractor func(r *http.Request, key string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if extractor == nil {
			return fmt.Errorf("%w: extractor function is nil", ErrFailedToParsePath)
		}

		rv, err := structValue(v, ErrFailedToParsePath)
		if err != nil {
			return err
		}
		rt := rv.Type()

		for i := range rv.NumField() {
			field := rv.Field(i)
			fieldType := rt.Field(i)
			if !field.CanSet() {
				continue
			}

			name, ok := explicitTag(fieldType, "path")
			if !ok {
				continue
			}

			value := extractor(r, name)
			if value == "" {
				continue
			}

			if err := setFieldValue(field, fieldType.Type, []string{value}); err != nil {
				return fmt.Errorf("%w: field %s: %v", ErrFailedToParsePath, fieldType.Name, err)
			}
		}

		return nil
	}
}

func explicitTag(field reflect.StructField, tagName string) (string, bool) {
	tag := field.Tag.Get(tagName)
	if tag == "" || tag == "-" {
		return "", false
	}
	name, _ := parseFieldTag(field, tagName)
	return name, true
}
