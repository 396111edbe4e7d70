package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/aretw0/arepl/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML or JSON settings file over Default(). A missing file
// yields the defaults.
func Load(path string) (Settings, error) {
	settings := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, fmt.Errorf("failed to read settings: %w", err)
	}

	raw := map[string]any{}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &raw); err != nil {
			return settings, fmt.Errorf("%w: failed to parse %s: %v", domain.ErrConfiguration, path, err)
		}
	} else if err := yaml.Unmarshal(data, &raw); err != nil {
		return settings, fmt.Errorf("%w: failed to parse %s: %v", domain.ErrConfiguration, path, err)
	}

	if err := Decode(raw, &settings); err != nil {
		return settings, err
	}
	return settings, settings.Validate()
}

// Decode applies raw keys onto settings. Durations are accepted as
// milliseconds (numbers) or Go duration strings ("1.5s").
func Decode(raw map[string]any, settings *Settings) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(durationHook, mapstructure.StringToSliceHookFunc(",")),
		ErrorUnused:      true,
		WeaklyTypedInput: false,
		Result:           settings,
	})
	if err != nil {
		return fmt.Errorf("failed to create settings decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func durationHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return time.ParseDuration(v)
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case uint64:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	default:
		return data, nil
	}
}
