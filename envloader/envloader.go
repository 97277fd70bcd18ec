package envloader

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load preenche uma struct com valores de variáveis de ambiente, usando as
// tags `env:"NOME[,required]"` e `envDefault`.
func Load(config any) error {
	val := reflect.ValueOf(config)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return &InvalidConfigError{Value: val.Type()}
	}
	return loadStruct(val.Elem(), os.LookupEnv)
}

// LoadFrom é como Load, mas lê os valores de um mapa (útil em testes e no
// toolkit, que recebe overrides por flag).
func LoadFrom(config any, env map[string]string) error {
	val := reflect.ValueOf(config)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return &InvalidConfigError{Value: val.Type()}
	}
	return loadStruct(val.Elem(), func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
}

// MustLoad é similar ao Load, mas panic em caso de erro
func MustLoad(config any) {
	if err := Load(config); err != nil {
		panic(err)
	}
}

type lookupFunc func(string) (string, bool)

func loadStruct(val reflect.Value, lookup lookupFunc) error {
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := loadStruct(field, lookup); err != nil {
				return err
			}
			continue
		}

		if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if field.IsNil() {
				field.Set(reflect.New(field.Type().Elem()))
			}
			if err := loadStruct(field.Elem(), lookup); err != nil {
				return err
			}
			continue
		}

		name, required := parseTag(fieldType.Tag.Get("env"))
		if name == "" {
			continue
		}

		value, ok := lookup(name)
		if !ok || value == "" {
			value = fieldType.Tag.Get("envDefault")
		}
		if value == "" {
			if required {
				return &MissingVarError{FieldName: fieldType.Name, EnvVar: name}
			}
			continue
		}

		if err := setFieldValue(field, value); err != nil {
			return &FieldError{
				FieldName: fieldType.Name,
				EnvVar:    name,
				Value:     value,
				Err:       err,
			}
		}
	}

	return nil
}

func parseTag(tag string) (name string, required bool) {
	parts := strings.Split(tag, ",")
	name = strings.TrimSpace(parts[0])
	for _, opt := range parts[1:] {
		if strings.TrimSpace(opt) == "required" {
			required = true
		}
	}
	return name, required
}

// setFieldValue define o valor de um campo baseado no seu tipo
func setFieldValue(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(intValue)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		uintValue, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(uintValue)

	case reflect.Bool:
		boolValue, err := strconv.ParseBool(strings.ToLower(value))
		if err != nil {
			return err
		}
		field.SetBool(boolValue)

	case reflect.Float32, reflect.Float64:
		floatValue, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return &UnsupportedTypeError{Type: field.Type()}
		}
		var items []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		field.Set(reflect.ValueOf(items).Convert(field.Type()))

	default:
		return &UnsupportedTypeError{Type: field.Type()}
	}

	return nil
}
