// Package config loads gate configuration from struct tag defaults, an
// optional YAML or JSON file, and environment variables, in that order of
// increasing priority:
//
//	envDefault struct tags  (lowest priority)
//	YAML/JSON config file
//	Environment variables   (highest priority)
//
// # Struct Tags
//
//   - `env:"VAR_NAME"` maps the field to an environment variable. On a
//     nested struct it becomes a prefix for the child fields.
//   - `envDefault:"value"` is applied when the field is zero-valued.
//   - `required:"true"` fails loading if the field is still zero.
//
// # Usage
//
//	type GateConfig struct {
//	    Listen   string `env:"LISTEN" envDefault:":8080" yaml:"listen"`
//	    Upstream string `env:"UPSTREAM" yaml:"upstream" required:"true"`
//	}
//
//	cfg := config.MustLoad[GateConfig](
//	    config.New().WithEnvPrefix("OAUTHGATE").WithFile("oauthgate.yaml"),
//	)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/oauthgate/pkg/errors"
)

// durationType distinguishes time.Duration from plain int64 fields.
var durationType = reflect.TypeOf(time.Duration(0))

// LookupFunc resolves an environment variable. It has the signature of
// [os.LookupEnv].
type LookupFunc func(key string) (string, bool)

// Loader resolves configuration in layers. Create one with [New].
//
// Loader is not safe for concurrent use.
type Loader struct {
	envPrefix string
	filePath  string
	lookup    LookupFunc
}

// New creates a Loader that reads environment variables only.
func New() *Loader {
	return &Loader{lookup: os.LookupEnv}
}

// WithEnvPrefix prepends prefix and an underscore to every env tag. The
// prefix is uppercased.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets a .yaml, .yml or .json file to read. A missing file is not
// an error. Paths containing ".." are rejected at load time.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithLookup replaces the environment lookup, typically with a map-backed
// function in tests.
func (l *Loader) WithLookup(fn LookupFunc) *Loader {
	if fn != nil {
		l.lookup = fn
	}
	return l
}

// Load populates cfg, which must be a non-nil pointer to a struct, and then
// validates `required` tags and the optional [Validator] implementation.
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a pointer to a struct")
	}

	if err := walk(rv, l.envPrefix, "", applyDefault); err != nil {
		return err
	}
	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}
	if err := walk(rv, l.envPrefix, "", l.applyEnv); err != nil {
		return err
	}
	return validate(cfg, rv)
}

// MustLoad loads a T and panics on failure. Use it in main.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	var unmarshal func([]byte, any) error
	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	case ".json":
		unmarshal = json.Unmarshal
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}
	if err := unmarshal(data, cfg); err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to parse %q", l.filePath)
	}
	return nil
}

// leaf is a settable non-struct field found by walk.
type leaf struct {
	value  reflect.Value
	field  reflect.StructField
	envKey string // empty when the field has no env tag
	path   string // dotted Go field path, e.g. "OAuth.ClientID"
}

// walk calls fn for every settable leaf field of rv, descending into
// nested structs. A nested struct's env tag extends the env prefix of its
// children.
func walk(rv reflect.Value, prefix, path string, fn func(leaf) error) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		value, sf := rv.Field(i), rt.Field(i)
		if !value.CanSet() {
			continue
		}
		envTag := sf.Tag.Get("env")
		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		if value.Kind() == reflect.Struct && sf.Type != durationType {
			if err := walk(value, joinKey(prefix, envTag), fieldPath, fn); err != nil {
				return err
			}
			continue
		}

		lf := leaf{value: value, field: sf, path: fieldPath}
		if envTag != "" {
			lf.envKey = joinKey(prefix, envTag)
		}
		if err := fn(lf); err != nil {
			return err
		}
	}
	return nil
}

func applyDefault(lf leaf) error {
	def := lf.field.Tag.Get("envDefault")
	if def == "" || !lf.value.IsZero() {
		return nil
	}
	if err := setField(lf.value, def); err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: bad default for field %q", lf.path)
	}
	return nil
}

func (l *Loader) applyEnv(lf leaf) error {
	if lf.envKey == "" {
		return nil
	}
	raw, ok := l.lookup(lf.envKey)
	if !ok {
		return nil
	}
	if err := setField(lf.value, raw); err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to set field %q from env var %q", lf.path, lf.envKey)
	}
	return nil
}

func joinKey(prefix, key string) string {
	if prefix == "" || key == "" {
		return prefix + key
	}
	return prefix + "_" + key
}

// setField parses raw into v. Supported kinds are string (including named
// string types such as auth.Secret), bool, signed and unsigned integers,
// time.Duration, and comma-separated []string.
func setField(v reflect.Value, raw string) error {
	if v.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		v.SetInt(int64(d))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice of %s", v.Type().Elem().Kind())
		}
		items := splitList(raw)
		out := reflect.MakeSlice(v.Type(), len(items), len(items))
		for i, item := range items {
			out.Index(i).SetString(item)
		}
		v.Set(out)
	default:
		return fmt.Errorf("unsupported field kind %s", v.Kind())
	}
	return nil
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
