// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// A config holds flag defaults read from a YAML file, such as
//
//	url: https://gerrit.wikimedia.org/r/
//	user: gopher
//	level: debug
type config struct {
	URL      string `yaml:"url"`
	Insecure bool   `yaml:"insecure"`
	Netrc    string `yaml:"netrc"`
	User     string `yaml:"user"`
	Basic    bool   `yaml:"basic"`
	Level    string `yaml:"level"`
}

// defaultConfigFile returns the config file used when --config is not set.
func defaultConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "gerritrest", "config.yaml")
}

// readConfig reads the config file. A missing default file is not an error.
func readConfig(file string, explicit bool) (*config, error) {
	cfg := new(config)
	if file == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return cfg, nil
}

// applyConfig fills in the flags not set on the command line
// from the config file.
func applyConfig(cmd *cobra.Command, flags *gerritFlags) error {
	file, explicit := flags.config, flags.config != ""
	if !explicit {
		file = defaultConfigFile()
	}
	cfg, err := readConfig(file, explicit)
	if err != nil {
		return err
	}
	changed := cmd.Flags().Changed
	if !changed("url") && cfg.URL != "" {
		flags.url = cfg.URL
	}
	if !changed("insecure") && cfg.Insecure {
		flags.insecure = true
	}
	if !changed("netrc") && cfg.Netrc != "" {
		flags.netrc = cfg.Netrc
	}
	if !changed("user") && cfg.User != "" {
		flags.user = cfg.User
	}
	if !changed("basic") && cfg.Basic {
		flags.basic = true
	}
	if !changed("level") && cfg.Level != "" {
		flags.level = cfg.Level
	}
	return nil
}
