package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"reflect"

	"gopkg.in/yaml.v3"
)

// RawSecurityConfig carries the string form of fields that need parsing
// before they become domain configuration.
type RawSecurityConfig struct {
	AdminCredential *string  `json:"adminCredential" yaml:"adminCredential"`
	AdminNetworks   []string `json:"adminNetworks" yaml:"adminNetworks"`
	TLSCrtFile      *string  `json:"tlsCrtFile" yaml:"tlsCrtFile"`
	TLSKeyFile      *string  `json:"tlsKeyFile" yaml:"tlsKeyFile"`
}

func (r RawSecurityConfig) ToDomain() (SecurityConfig, error) {
	networks := make([]netip.Prefix, 0, len(r.AdminNetworks))
	for _, raw := range r.AdminNetworks {
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return SecurityConfig{}, fmt.Errorf("can not parse admin network %q: %w", raw, err)
		}
		networks = append(networks, prefix)
	}
	return SecurityConfig{
		AdminCredential: r.AdminCredential,
		AdminNetworks:   networks,
		TLSCrtFile:      r.TLSCrtFile,
		TLSKeyFile:      r.TLSKeyFile,
	}, nil
}

func LoadAppConfig(dir string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	var server ServerConfig
	if err := loadFileInto(dir, "server", &server); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Server, server)

	var rawSec RawSecurityConfig
	if err := loadFileInto(dir, "security", &rawSec); err != nil {
		return nil, err
	}
	parsedSec, err := rawSec.ToDomain()
	if err != nil {
		return nil, err
	}
	mergeInto(&cfg.Security, parsedSec)

	var rooms RoomsConfig
	if err := loadFileInto(dir, "rooms", &rooms); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Rooms, rooms)

	var quality QualityConfig
	if err := loadFileInto(dir, "quality", &quality); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Quality, quality)

	var client ClientConfig
	if err := loadFileInto(dir, "client", &client); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Client, client)

	return &cfg, nil
}

func loadFileInto(dir, filenameBase string, target interface{}) error {
	basePath := filepath.Join(dir, filenameBase)

	if f, err := os.Open(basePath + ".yaml"); err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(target); err != nil {
			if errors.Is(err, io.EOF) {
				slog.Warn("config file is empty, using defaults", "file", basePath+".yaml")
				return nil
			}
			return err
		}
		return nil
	}

	if f, err := os.Open(basePath + ".json"); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(target); err != nil {
			if errors.Is(err, io.EOF) {
				slog.Warn("config file is empty, using defaults", "file", basePath+".json")
				return nil
			}
			return err
		}
		return nil
	}

	return nil
}

func mergeInto(dst, src interface{}) {
	dstVal := reflect.ValueOf(dst).Elem()
	srcVal := reflect.ValueOf(src)

	mergeValues(dstVal, srcVal)
}

func mergeValues(dstVal, srcVal reflect.Value) {
	for i := 0; i < srcVal.NumField(); i++ {
		srcField := srcVal.Field(i)
		dstField := dstVal.Field(i)

		switch srcField.Kind() {
		case reflect.Struct:
			mergeValues(dstField, srcField)
		case reflect.Slice:
			if !srcField.IsNil() && srcField.Len() > 0 {
				dstField.Set(srcField)
			}
		case reflect.Map:
			if !srcField.IsNil() && srcField.Len() > 0 {
				dstField.Set(srcField)
			}
		case reflect.Pointer:
			if !srcField.IsNil() {
				dstField.Set(srcField)
			}
		default:
			if !srcField.IsZero() {
				dstField.Set(srcField)
			}
		}
	}
}
