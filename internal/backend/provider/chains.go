package provider

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chain.yaml.
type ChainDefinitions struct {
	Default string                     `yaml:"default"`
	Chains  map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single chain endpoint definition.
type ChainDefinition struct {
	Type           string                     `yaml:"type"`
	RPCURL         string                     `yaml:"rpc_url"`
	BundlerURL     string                     `yaml:"bundler_url"`
	ChainID        int64                      `yaml:"chain_id"`
	Registry       string                     `yaml:"registry"`
	NativeSymbol   string                     `yaml:"native_symbol"`
	NativeDecimals int                        `yaml:"native_decimals"`
	Tokens         map[string]TokenDefinition `yaml:"tokens"`
	Description    string                     `yaml:"description"`
}

// TokenDefinition describes an ERC-20 token accepted as payroll currency.
type TokenDefinition struct {
	Address  string `yaml:"address"`
	Decimals int    `yaml:"decimals"`
}

// Load parses the YAML file containing chain metadata. An empty path yields
// an empty definition set.
func Load(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}
	return Parse(content)
}

// Parse decodes chain definitions from raw YAML.
func Parse(content []byte) (ChainDefinitions, error) {
	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	for name, def := range defs.Chains {
		if def.Type == "" {
			def.Type = "evm"
		}
		for symbol, token := range def.Tokens {
			if strings.TrimSpace(token.Address) == "" {
				return ChainDefinitions{}, fmt.Errorf("链 %s 的代币 %s 缺少合约地址", name, symbol)
			}
		}
		defs.Chains[name] = def
	}
	return defs, nil
}
