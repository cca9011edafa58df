package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/atomic"
	"gorm.io/gorm"

	"github.com/corewallet/wcnode/pkg/sign"
)

// ErrAccountNotFound is returned when an account index is out of range.
var ErrAccountNotFound = errors.New("account does not exist")

// Account is a wallet account as presented to dApps and the UI.
type Account struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	AddressC string `json:"addressC"`
	Active   bool   `json:"active"`
}

// WalletSettings is the persisted wallet state. There is a single row.
type WalletSettings struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	DeveloperMode bool      `gorm:"column:developer_mode;not null" json:"developerMode"`
	ActiveChainID uint64    `gorm:"column:active_chain_id;not null" json:"activeChainId"`
	ActiveAccount int       `gorm:"column:active_account;not null" json:"activeAccount"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (WalletSettings) TableName() string {
	return "wallet_settings"
}

const walletSettingsID = 1

// WalletState exposes the active account, the active chain and the developer
// mode flag. Reads are lock free; writes are persisted before they become visible.
type WalletState struct {
	db      *gorm.DB
	keyring *sign.Keyring

	developerMode *atomic.Bool
	activeChainID *atomic.Uint64
	activeAccount *atomic.Int64

	// mu serializes writers so the stored row and the atomics agree.
	mu sync.Mutex
}

// NewWalletState loads the persisted settings, creating them from defaults on first start.
func NewWalletState(db *gorm.DB, keyring *sign.Keyring, defaults WalletSettings) (*WalletState, error) {
	if keyring == nil || keyring.Len() == 0 {
		return nil, errors.New("wallet has no accounts")
	}

	settings := WalletSettings{ID: walletSettingsID}
	err := db.Where("id = ?", walletSettingsID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = defaults
		settings.ID = walletSettingsID
		if err := db.Create(&settings).Error; err != nil {
			return nil, fmt.Errorf("failed to create wallet settings: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load wallet settings: %w", err)
	}

	if settings.ActiveAccount < 0 || settings.ActiveAccount >= keyring.Len() {
		settings.ActiveAccount = 0
	}

	return &WalletState{
		db:            db,
		keyring:       keyring,
		developerMode: atomic.NewBool(settings.DeveloperMode),
		activeChainID: atomic.NewUint64(settings.ActiveChainID),
		activeAccount: atomic.NewInt64(int64(settings.ActiveAccount)),
	}, nil
}

func (w *WalletState) DeveloperMode() bool {
	return w.developerMode.Load()
}

func (w *WalletState) ActiveChainID() uint64 {
	return w.activeChainID.Load()
}

func (w *WalletState) ActiveAccountIndex() int {
	return int(w.activeAccount.Load())
}

// Settings returns a snapshot of the current state.
func (w *WalletState) Settings() WalletSettings {
	return WalletSettings{
		DeveloperMode: w.DeveloperMode(),
		ActiveChainID: w.ActiveChainID(),
		ActiveAccount: w.ActiveAccountIndex(),
	}
}

func (w *WalletState) SetDeveloperMode(enabled bool) error {
	return w.update(map[string]any{"developer_mode": enabled}, func() {
		w.developerMode.Store(enabled)
	})
}

func (w *WalletState) SetActiveChainID(chainID uint64) error {
	return w.update(map[string]any{"active_chain_id": chainID}, func() {
		w.activeChainID.Store(chainID)
	})
}

// SelectAccount makes the account at index the active one.
func (w *WalletState) SelectAccount(index int) error {
	if index < 0 || index >= w.keyring.Len() {
		return ErrAccountNotFound
	}
	return w.update(map[string]any{"active_account": index}, func() {
		w.activeAccount.Store(int64(index))
	})
}

func (w *WalletState) update(columns map[string]any, apply func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	columns["updated_at"] = time.Now()
	err := w.db.Model(&WalletSettings{}).Where("id = ?", walletSettingsID).Updates(columns).Error
	if err != nil {
		return fmt.Errorf("failed to update wallet settings: %w", err)
	}
	apply()
	return nil
}

// Account returns the account at index.
func (w *WalletState) Account(index int) (Account, bool) {
	signer, ok := w.keyring.Signer(index)
	if !ok {
		return Account{}, false
	}
	return Account{
		Index:    index,
		Name:     fmt.Sprintf("Account %d", index+1),
		AddressC: signer.Address().Hex(),
		Active:   index == w.ActiveAccountIndex(),
	}, true
}

func (w *WalletState) ActiveAccount() Account {
	account, _ := w.Account(w.ActiveAccountIndex())
	return account
}

func (w *WalletState) Accounts() []Account {
	accounts := make([]Account, 0, w.keyring.Len())
	for i := 0; i < w.keyring.Len(); i++ {
		account, _ := w.Account(i)
		accounts = append(accounts, account)
	}
	return accounts
}

// AccountByAddress finds the account owning a hex address, case-insensitively.
func (w *WalletState) AccountByAddress(address string) (Account, bool) {
	if !common.IsHexAddress(address) {
		return Account{}, false
	}
	index, ok := w.keyring.IndexOf(common.HexToAddress(address))
	if !ok {
		return Account{}, false
	}
	return w.Account(index)
}

func (w *WalletState) Signer(index int) (sign.Signer, bool) {
	return w.keyring.Signer(index)
}
