package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Get resolves a dotted key such as "settings.max_history" against cfg and
// returns its value as a string.
func (c *Config) Get(key string) (string, error) {
	v, err := lookup(reflect.ValueOf(c).Elem(), strings.Split(key, "."))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", v.Interface()), nil
}

// Set resolves a dotted key and assigns value to it, converting value to
// the field's underlying type (int, int64, or string).
func (c *Config) Set(key, value string) error {
	v, err := lookup(reflect.ValueOf(c).Elem(), strings.Split(key, "."))
	if err != nil {
		return err
	}
	if !v.CanSet() {
		return fmt.Errorf("config: key %q is not settable", key)
	}

	switch v.Kind() {
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("config: key %q expects an integer: %w", key, err)
		}
		v.SetInt(n)
	case reflect.String:
		v.SetString(value)
	case reflect.Slice:
		v.Set(reflect.ValueOf(strings.Split(value, ",")))
	default:
		return fmt.Errorf("config: key %q has unsupported type %s", key, v.Kind())
	}
	return nil
}

func lookup(v reflect.Value, path []string) (reflect.Value, error) {
	if len(path) == 0 {
		return v, nil
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("config: key segment %q is not a struct", path[0])
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("yaml")
		if tag == path[0] {
			return lookup(v.Field(i), path[1:])
		}
	}
	return reflect.Value{}, fmt.Errorf("config: unknown key %q", strings.Join(path, "."))
}
