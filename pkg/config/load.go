package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

// Load reads a YAML file on top of Default. A missing file yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using default config", "path", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cfg against its struct tags. Errors name the yaml keys.
func Validate(cfg Config) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	var errs []error
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, e := range verrs {
			path := strings.TrimPrefix(e.Namespace(), "Config.")
			errs = append(errs, fmt.Errorf(
				"key=\"%s\", value=\"%v\", failed \"%s\" validation",
				path,
				e.Value(),
				e.ActualTag(),
			))
		}
	}

	// a weak cache keeps live values, encoded copies would have no owner
	if cfg.Cache.Kind == CacheWeak && cfg.Cache.Codec != "" && cfg.Cache.Codec != CodecNone {
		errs = append(errs, fmt.Errorf(
			"key=\"cache.codec\", value=\"%s\", failed \"weak_codec\" validation", cfg.Cache.Codec))
	}

	return errors.Join(errs...)
}
