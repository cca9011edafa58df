package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	checkChainIdCallTimeout = 5 * time.Second
	networksFileName        = "networks.yaml"
)

var networkNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$`)

// NetworksConfig is the root of networks.yaml.
type NetworksConfig struct {
	Networks []NetworkConfig `yaml:"networks"`
}

// NetworkConfig is a built-in network entry.
type NetworkConfig struct {
	Network `yaml:",inline"`
	// Disabled networks are not loaded.
	Disabled bool `yaml:"disabled"`
}

// LoadNetworks reads <configDirPath>/networks.yaml and returns the enabled
// networks indexed by chain id.
//
// A network without rpc_url takes it from the <NAME>_NETWORK_RPC environment
// variable. When checkChainIDs is set, every RPC endpoint must report the configured chain id.
func LoadNetworks(configDirPath string, checkChainIDs bool) (map[uint64]Network, error) {
	networksPath := filepath.Join(configDirPath, networksFileName)
	f, err := os.Open(networksPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg NetworksConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.verifyVariables(); err != nil {
		return nil, err
	}

	if err := cfg.verifyRPCs(checkChainIDs); err != nil {
		return nil, err
	}

	return cfg.getEnabled(), nil
}

// verifyVariables validates names and required fields and applies defaults in place.
func (cfg *NetworksConfig) verifyVariables() error {
	validate := validator.New()
	seen := make(map[uint64]string)

	for i, nc := range cfg.Networks {
		if nc.Disabled {
			continue
		}

		if !networkNameRegex.MatchString(nc.Name) {
			return fmt.Errorf("invalid network name '%s', should match snake_case format", nc.Name)
		}
		if err := validate.Struct(nc.Network); err != nil {
			return fmt.Errorf("invalid network '%s': %w", nc.Name, err)
		}
		if other, ok := seen[nc.ChainID]; ok {
			return fmt.Errorf("networks '%s' and '%s' share chain id %d", other, nc.Name, nc.ChainID)
		}
		seen[nc.ChainID] = nc.Name

		if nc.VMName == "" {
			cfg.Networks[i].VMName = VMNameEVM
		}
		if nc.NetworkToken.Decimals == 0 {
			cfg.Networks[i].NetworkToken.Decimals = 18
		}
	}

	return nil
}

// verifyRPCs fills missing RPC URLs from <NETWORK_NAME_UPPERCASE>_NETWORK_RPC.
func (cfg *NetworksConfig) verifyRPCs(checkChainIDs bool) error {
	for i, nc := range cfg.Networks {
		if nc.Disabled {
			continue
		}

		rpcURL := nc.RPCURL
		if envURL := os.Getenv(fmt.Sprintf("%s_NETWORK_RPC", strings.ToUpper(nc.Name))); envURL != "" {
			rpcURL = envURL
		}
		if rpcURL == "" {
			return fmt.Errorf("missing RPC url for network '%s'", nc.Name)
		}

		if checkChainIDs {
			if err := checkChainId(rpcURL, nc.ChainID); err != nil {
				return fmt.Errorf("network '%s' ChainID check failed: %w", nc.Name, err)
			}
		}

		cfg.Networks[i].RPCURL = rpcURL
	}

	return nil
}

func (cfg *NetworksConfig) getEnabled() map[uint64]Network {
	enabled := make(map[uint64]Network)
	for _, nc := range cfg.Networks {
		if !nc.Disabled {
			enabled[nc.ChainID] = nc.Network
		}
	}
	return enabled
}

// checkChainId verifies that the RPC endpoint serves the expected chain.
func checkChainId(rpcURL string, expectedChainID uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), checkChainIdCallTimeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("failed to connect to network RPC: %w", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID from network RPC: %w", err)
	}

	if chainID.Uint64() != expectedChainID {
		return fmt.Errorf("unexpected chain ID from network RPC: got %d, want %d", chainID.Uint64(), expectedChainID)
	}

	return nil
}
