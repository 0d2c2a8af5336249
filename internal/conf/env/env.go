// Package env contains a function to load configuration from environment.
package env

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// Unmarshaler can be implemented to override the unmarshaling process.
type Unmarshaler interface {
	UnmarshalEnv(prefix string, v string) error
}

func loadEnvInternal(env map[string]string, prefix string, rv reflect.Value) error {
	if i, ok := rv.Addr().Interface().(Unmarshaler); ok {
		if ev, ok := env[prefix]; ok {
			err := i.UnmarshalEnv(prefix, ev)
			if err != nil {
				return fmt.Errorf("%s: %w", prefix, err)
			}
		}
		return nil
	}

	rt := rv.Type()

	switch rt.Kind() {
	case reflect.String:
		if ev, ok := env[prefix]; ok {
			rv.SetString(ev)
		}
		return nil

	case reflect.Int, reflect.Int64:
		if ev, ok := env[prefix]; ok {
			iv, err := strconv.ParseInt(ev, 10, rt.Bits())
			if err != nil {
				return fmt.Errorf("%s: %w", prefix, err)
			}
			rv.SetInt(iv)
		}
		return nil

	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		if ev, ok := env[prefix]; ok {
			iv, err := strconv.ParseUint(ev, 10, rt.Bits())
			if err != nil {
				return fmt.Errorf("%s: %w", prefix, err)
			}
			rv.SetUint(iv)
		}
		return nil

	case reflect.Bool:
		if ev, ok := env[prefix]; ok {
			switch strings.ToLower(ev) {
			case "yes", "true":
				rv.SetBool(true)

			case "no", "false":
				rv.SetBool(false)

			default:
				return fmt.Errorf("%s: invalid value '%s'", prefix, ev)
			}
		}
		return nil

	case reflect.Slice:
		if rt.Elem().Kind() == reflect.String {
			if ev, ok := env[prefix]; ok {
				vals := reflect.MakeSlice(rt, 0, 0)
				if ev != "" {
					for _, v := range strings.Split(ev, ",") {
						vals = reflect.Append(vals, reflect.ValueOf(v).Convert(rt.Elem()))
					}
				}
				rv.Set(vals)
			}
			return nil
		}

	case reflect.Struct:
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			jsonTag := strings.Split(f.Tag.Get("json"), ",")[0]

			// load only public fields
			if jsonTag == "" || jsonTag == "-" {
				continue
			}

			err := loadEnvInternal(env, prefix+"_"+strings.ToUpper(jsonTag), rv.Field(i))
			if err != nil {
				return err
			}
		}
		return nil
	}

	return fmt.Errorf("unsupported type: %v", rt)
}

func loadWithEnv(env map[string]string, prefix string, v interface{}) error {
	return loadEnvInternal(env, prefix, reflect.ValueOf(v).Elem())
}

func envToMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		tmp := strings.SplitN(kv, "=", 2)
		env[tmp[0]] = tmp[1]
	}
	return env
}

// Load loads the configuration from the environment.
// Each field is read from the variable named prefix + "_" + its uppercase JSON key.
func Load(prefix string, v interface{}) error {
	return loadWithEnv(envToMap(), prefix, v)
}
