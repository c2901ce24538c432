package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const configFlagName = "config"

var cfgFile string

// ConfigHook adjusts the loaded configuration, for example to fold renamed
// keys into their current names.
type ConfigHook func(v *viper.Viper) error

func addConfigFlag(fs *pflag.FlagSet) {
	fs.StringVarP(&cfgFile, configFlagName, "c", cfgFile, "Read configuration from the specified `FILE`. JSON, YAML and TOML are supported.")
}

func bindFlags(fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == configFlagName {
			return
		}
		errs = append(errs, viper.BindPFlag(f.Name, f))
	})
	return errors.Join(errs...)
}

// readConfig loads .env, enables environment lookups and reads the config
// file. Keys map to variables by upper-casing and replacing "." and "-" with
// "_": zeeho.vehicle-id is ZEEHO_VEHICLE_ID.
func readConfig(defaultFile string, hooks []ConfigHook) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	file := cfgFile
	if file == "" {
		file = existingFile(defaultFile)
	}
	if file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read configuration file %s: %w", file, err)
		}
	}

	for _, hook := range hooks {
		if err := hook(viper.GetViper()); err != nil {
			return err
		}
	}
	return nil
}

func existingFile(path string) string {
	if path == "" {
		return ""
	}
	path = ExpandHome(path)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}

// ConfigFileUsed returns the config file that was read, if any.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// Unmarshal decodes the current configuration into opts, then completes and
// validates it.
func Unmarshal(opts NamedFlagSetOptions) error {
	if err := viper.Unmarshal(opts, viper.DecodeHook(decodeHook())); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := opts.Complete(); err != nil {
		return err
	}
	return opts.Validate()
}

// WatchConfig calls fn after the config file changes and has been re-read.
// It does nothing when no config file is in use.
func WatchConfig(fn func()) bool {
	if viper.ConfigFileUsed() == "" {
		return false
	}
	viper.OnConfigChange(func(fsnotify.Event) { fn() })
	viper.WatchConfig()
	return true
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		minutesToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

var durationType = reflect.TypeOf(time.Duration(0))

// minutesToDurationHook reads bare numbers as minutes when the target is a
// time.Duration, the unit saved by the desktop widget.
func minutesToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != durationType || from == durationType {
			return data, nil
		}

		v := reflect.ValueOf(data)
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(v.Int()) * time.Minute, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(v.Uint()) * time.Minute, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(v.Float() * float64(time.Minute)), nil
		}
		return data, nil
	}
}
