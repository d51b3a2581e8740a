/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package tftp

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// fileServerConfig is the on-disk YAML shape for a ServerConfig: Mode is
// spelled out as a word rather than the AccessMode iota so the file stays
// readable independent of the Go type's internal encoding.
type fileServerConfig struct {
	Addr     string        `yaml:"addr"`
	Root     string        `yaml:"root"`
	WriteDir string        `yaml:"write_dir"`
	Mode     string        `yaml:"mode"`
	Timeout  time.Duration `yaml:"timeout"`
}

func parseAccessMode(s string) (AccessMode, error) {
	switch s {
	case "", "getandput":
		return GetAndPut, nil
	case "getonly":
		return GetOnly, nil
	case "putonly":
		return PutOnly, nil
	default:
		return 0, fmt.Errorf("tftp: unknown mode %q", s)
	}
}

// ReadServerConfig loads a ServerConfig from a YAML file, in the style of
// sptp's ReadConfig: read the whole file, unmarshal onto defaults.
func ReadServerConfig(path string) (ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServerConfig{}, err
	}
	var fc fileServerConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return ServerConfig{}, err
	}
	mode, err := parseAccessMode(fc.Mode)
	if err != nil {
		return ServerConfig{}, err
	}
	return ServerConfig{
		Addr:     fc.Addr,
		Root:     fc.Root,
		WriteDir: fc.WriteDir,
		Mode:     mode,
		Client:   ClientConfig{Timeout: fc.Timeout},
	}, nil
}
