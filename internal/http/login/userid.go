package login

import (
	"fmt"
	"reflect"
	"strings"

	domainauth "github.com/target/loginkit/internal/domain/auth"
)

// UserID extracts the id of user. It honours domainauth.Identifier, then a
// map key named attr, then a struct field whose name or json tag matches attr.
// Zero values count as missing.
func UserID(user domainauth.Principal, attr string) (string, bool) {
	if !domainauth.Present(user) {
		return "", false
	}
	if id, ok := user.(domainauth.Identifier); ok {
		v := id.PrincipalID()
		return v, v != ""
	}
	return Attribute(user, attr)
}

// Attribute reads the map key or struct field attr from user and formats it
// as a string. Zero values count as missing.
func Attribute(user domainauth.Principal, attr string) (string, bool) {
	if !domainauth.Present(user) {
		return "", false
	}
	v := reflect.ValueOf(user)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return "", false
		}
		f := v.MapIndex(reflect.ValueOf(attr).Convert(v.Type().Key()))
		return stringify(f)
	case reflect.Struct:
		return stringify(structField(v, attr))
	default:
		return "", false
	}
}

func structField(v reflect.Value, attr string) reflect.Value {
	t := v.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if tag == attr || strings.EqualFold(sf.Name, attr) {
			return v.Field(i)
		}
	}
	return reflect.Value{}
}

func stringify(v reflect.Value) (string, bool) {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	if !v.IsValid() || v.IsZero() {
		return "", false
	}
	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String(), true
	}
	return fmt.Sprint(v.Interface()), true
}
