package common

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

type NetworkConfig struct {
	Name          string `yaml:"name"`
	Symbol        string `yaml:"symbol"`
	AddressPrefix string `yaml:"address_prefix"`
}

type NetworksConfig struct {
	Networks []NetworkConfig `yaml:"networks"`
}

// LoadNetworkConfig reads the withdrawal network list. A missing file is not
// an error: withdrawals then accept any network string.
func LoadNetworkConfig(networksFile string) ([]NetworkConfig, error) {
	var networksPath string
	if filepath.IsAbs(networksFile) {
		networksPath = networksFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		networksPath = filepath.Join(wd, networksFile)
	}

	data, err := os.ReadFile(networksPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", networksFile, err)
	}

	var config NetworksConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", networksFile, err)
	}

	for i, network := range config.Networks {
		if network.Name == "" {
			return nil, fmt.Errorf("network at index %d missing name", i)
		}
	}

	return config.Networks, nil
}
