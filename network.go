package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const VMNameEVM = "EVM"

// NetworkToken is the native currency of a network.
type NetworkToken struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Symbol      string `json:"symbol" yaml:"symbol" validate:"required"`
	Decimals    uint8  `json:"decimals" yaml:"decimals"`
	Description string `json:"description,omitempty" yaml:"description"`
	LogoURI     string `json:"logoUri,omitempty" yaml:"logo_uri"`
}

// Network is a chain the wallet can operate on.
type Network struct {
	ChainID      uint64       `json:"chainId" yaml:"chain_id" validate:"required"`
	ChainName    string       `json:"chainName" yaml:"chain_name" validate:"required"`
	Name         string       `json:"-" yaml:"name"`
	VMName       string       `json:"vmName" yaml:"vm_name"`
	RPCURL       string       `json:"rpcUrl" yaml:"rpc_url"`
	ExplorerURL  string       `json:"explorerUrl,omitempty" yaml:"explorer_url"`
	LogoURI      string       `json:"logoUri,omitempty" yaml:"logo_uri"`
	IsTestnet    bool         `json:"isTestnet" yaml:"is_testnet"`
	NetworkToken NetworkToken `json:"networkToken" yaml:"network_token"`
	IsCustom     bool         `json:"isCustom,omitempty" yaml:"-"`
}

func (n Network) CaipID() string {
	return CaipChainID(n.ChainID)
}

// CustomNetwork is a network added by a dApp through wallet_addEthereumChain.
type CustomNetwork struct {
	ChainID      uint64                           `gorm:"column:chain_id;primaryKey;autoIncrement:false"`
	ChainName    string                           `gorm:"column:chain_name;not null"`
	RPCURL       string                           `gorm:"column:rpc_url;not null"`
	ExplorerURL  string                           `gorm:"column:explorer_url"`
	LogoURI      string                           `gorm:"column:logo_uri"`
	IsTestnet    bool                             `gorm:"column:is_testnet;not null"`
	NetworkToken datatypes.JSONType[NetworkToken] `gorm:"column:network_token;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (CustomNetwork) TableName() string {
	return "custom_networks"
}

func (c CustomNetwork) toNetwork() Network {
	return Network{
		ChainID:      c.ChainID,
		ChainName:    c.ChainName,
		VMName:       VMNameEVM,
		RPCURL:       c.RPCURL,
		ExplorerURL:  c.ExplorerURL,
		LogoURI:      c.LogoURI,
		IsTestnet:    c.IsTestnet,
		NetworkToken: c.NetworkToken.Data(),
		IsCustom:     true,
	}
}

// NetworkStore resolves networks by chain id. Built-in networks come from
// networks.yaml and take precedence over custom networks stored in the database.
type NetworkStore struct {
	db      *gorm.DB
	builtin map[uint64]Network
}

func NewNetworkStore(db *gorm.DB, builtin map[uint64]Network) *NetworkStore {
	if builtin == nil {
		builtin = make(map[uint64]Network)
	}
	return &NetworkStore{db: db, builtin: builtin}
}

// Get returns the network with the given chain id. The boolean is false when
// the network is unknown.
func (s *NetworkStore) Get(chainID uint64) (Network, bool, error) {
	if n, ok := s.builtin[chainID]; ok {
		return n, true, nil
	}

	var custom CustomNetwork
	err := s.db.Where("chain_id = ?", chainID).First(&custom).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Network{}, false, nil
	}
	if err != nil {
		return Network{}, false, fmt.Errorf("failed to load custom network %d: %w", chainID, err)
	}
	return custom.toNetwork(), true, nil
}

// List returns every known network ordered by chain id.
func (s *NetworkStore) List() ([]Network, error) {
	var customs []CustomNetwork
	if err := s.db.Order("chain_id").Find(&customs).Error; err != nil {
		return nil, fmt.Errorf("failed to list custom networks: %w", err)
	}

	networks := make([]Network, 0, len(s.builtin)+len(customs))
	for _, n := range s.builtin {
		networks = append(networks, n)
	}
	for _, c := range customs {
		if _, ok := s.builtin[c.ChainID]; ok {
			continue
		}
		networks = append(networks, c.toNetwork())
	}
	sort.Slice(networks, func(i, j int) bool { return networks[i].ChainID < networks[j].ChainID })
	return networks, nil
}

// AddCustom stores n as a custom network, replacing a previous custom network
// with the same chain id. Built-in networks cannot be overridden.
func (s *NetworkStore) AddCustom(n Network) error {
	if _, ok := s.builtin[n.ChainID]; ok {
		return fmt.Errorf("network %d is built in", n.ChainID)
	}

	custom := CustomNetwork{
		ChainID:      n.ChainID,
		ChainName:    n.ChainName,
		RPCURL:       n.RPCURL,
		ExplorerURL:  n.ExplorerURL,
		LogoURI:      n.LogoURI,
		IsTestnet:    n.IsTestnet,
		NetworkToken: datatypes.NewJSONType(n.NetworkToken),
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"chain_name", "rpc_url", "explorer_url", "logo_uri", "is_testnet", "network_token", "updated_at"}),
	}).Create(&custom).Error
	if err != nil {
		return fmt.Errorf("failed to store custom network %d: %w", n.ChainID, err)
	}
	return nil
}
