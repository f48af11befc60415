package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Loader resolves settings from the environment first, then an optional
// config file named by CONFIG_FILE, then registered defaults.
type Loader struct {
	v *viper.Viper
}

func New(defaults map[string]any) (*Loader, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return &Loader{v: v}, nil
}

func (l *Loader) String(key string) string {
	return strings.TrimSpace(l.v.GetString(key))
}

func (l *Loader) RequiredString(key string) (string, error) {
	v := l.String(key)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func (l *Loader) Bool(key string) bool {
	return l.v.GetBool(key)
}

func (l *Loader) Int(key string) (int, error) {
	raw := l.String(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", key, raw)
	}
	return n, nil
}

func (l *Loader) Duration(key string) (time.Duration, error) {
	raw := l.String(key)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (got %q)", key, raw)
	}
	return d, nil
}

// List splits a comma separated value, dropping blanks.
func (l *Loader) List(key string) []string {
	var out []string
	for _, part := range strings.Split(l.String(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (l *Loader) Port(key string) (string, error) {
	v := l.String(key)
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return v, nil
}
