// Package config locates the service configuration file for the CLI.
package config

import (
	"errors"

	"github.com/spf13/viper"
)

// SearchPaths are checked in order when no --config flag is given.
var SearchPaths = []string{".", "/etc/setops/", "$HOME/.setops"}

// ResolvePath returns explicit when set, otherwise the first setops.{yaml,json,toml}
// found on SearchPaths. An empty result means defaults and SETOPS_* env only.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	v := viper.New()
	v.SetConfigName("setops")
	for _, p := range SearchPaths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", err
	}
	return v.ConfigFileUsed(), nil
}
