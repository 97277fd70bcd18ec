package injector

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
)

// Regex para capturar padrões ${tipo.chave}
// Ex: ${env.REDIS_ADDR}, ${ssm./ledger/redis/password}, ${secret.ledger/dd}
var pattern = regexp.MustCompile(`\$\{(env|ssm|secret)\.([^}]+)\}`)

// ValueResolver busca valores remotos (SSM e Secrets Manager).
// Implementado por *awsconf.Resolver.
type ValueResolver interface {
	Parameter(ctx context.Context, path string) (string, error)
	Secret(ctx context.Context, id string) (string, error)
}

type Injector struct {
	resolver ValueResolver
}

// New cria um Injector. Com resolver nil apenas ${env.X} é resolvido;
// ${ssm.X} e ${secret.X} retornam erro.
func New(resolver ValueResolver) *Injector {
	return &Injector{resolver: resolver}
}

// Inject percorre a struct (ponteiro) substituindo as referências em strings,
// mapas, slices e ponteiros aninhados.
func (i *Injector) Inject(ctx context.Context, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("target deve ser um ponteiro para struct não nulo")
	}
	return i.injectRecursive(ctx, v.Elem())
}

func (i *Injector) injectRecursive(ctx context.Context, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for k := 0; k < t.NumField(); k++ {
			field := t.Field(k)
			value := v.Field(k)
			if !field.IsExported() {
				continue
			}

			// Tag env tem precedência sobre o valor do YAML
			if tag := field.Tag.Get("env"); tag != "" && value.Kind() == reflect.String && value.CanSet() {
				if val, ok := os.LookupEnv(tag); ok {
					value.SetString(val)
				}
			}

			if err := i.injectRecursive(ctx, value); err != nil {
				return fmt.Errorf("%s: %w", field.Name, err)
			}
		}

	case reflect.String:
		if v.CanSet() {
			out, err := i.interpolateString(ctx, v.String())
			if err != nil {
				return err
			}
			v.SetString(out)
		}

	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && !v.IsNil() {
			return i.injectMap(ctx, v)
		}

	case reflect.Ptr:
		if !v.IsNil() {
			return i.injectRecursive(ctx, v.Elem())
		}

	case reflect.Slice:
		for j := 0; j < v.Len(); j++ {
			if err := i.injectRecursive(ctx, v.Index(j)); err != nil {
				return err
			}
		}
	}
	return nil
}

// interpolateString realiza a substituição baseada em Regex
func (i *Injector) interpolateString(ctx context.Context, input string) (string, error) {
	if !strings.Contains(input, "${") {
		return input, nil
	}

	var err error
	result := pattern.ReplaceAllStringFunc(input, func(match string) string {
		if err != nil {
			return match
		}
		sub := pattern.FindStringSubmatch(match)
		val, resolveErr := i.fetchValue(ctx, sub[1], sub[2])
		if resolveErr != nil {
			err = resolveErr
			return match
		}
		return val
	})

	return result, err
}

// injectMap lida com mapas dinâmicos (map[string]string e map[string]any)
func (i *Injector) injectMap(ctx context.Context, v reflect.Value) error {
	iter := v.MapRange()
	updates := make(map[string]reflect.Value)

	for iter.Next() {
		key := iter.Key()
		elem := iter.Value()
		if elem.Kind() == reflect.Interface {
			elem = elem.Elem()
		}
		if !elem.IsValid() {
			continue
		}

		switch elem.Kind() {
		case reflect.String:
			newVal, err := i.interpolateString(ctx, elem.String())
			if err != nil {
				return fmt.Errorf("%s: %w", key.String(), err)
			}
			updates[key.String()] = reflect.ValueOf(newVal).Convert(v.Type().Elem())
		case reflect.Map:
			if elem.Type().Key().Kind() == reflect.String {
				if err := i.injectMap(ctx, elem); err != nil {
					return err
				}
			}
		}
	}

	for k, val := range updates {
		v.SetMapIndex(reflect.ValueOf(k).Convert(v.Type().Key()), val)
	}
	return nil
}

// fetchValue centraliza a busca de dados
func (i *Injector) fetchValue(ctx context.Context, sourceType, key string) (string, error) {
	switch sourceType {
	case "env":
		return os.Getenv(key), nil

	case "ssm":
		if i.resolver == nil {
			return "", fmt.Errorf("sem resolver para ${ssm.%s}", key)
		}
		return i.resolver.Parameter(ctx, key)

	case "secret":
		if i.resolver == nil {
			return "", fmt.Errorf("sem resolver para ${secret.%s}", key)
		}
		return i.resolver.Secret(ctx, key)
	}

	return "", fmt.Errorf("fonte desconhecida %q", sourceType)
}
