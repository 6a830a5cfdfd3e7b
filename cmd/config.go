package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/atrium-social/atrium/types"
)

type Config struct {
	ApConfig types.ApConfig `yaml:"apConfig"`
	Server   Server         `yaml:"server"`
	NodeInfo types.NodeInfo `yaml:"nodeInfo"`
}

type Server struct {
	Dsn           string `yaml:"dsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

// LoadConfig reads yaml files in order, later files overriding earlier
// ones.
func LoadConfig(paths []string) (Config, error) {
	var config Config

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, err
		}
	}

	return config, nil
}
