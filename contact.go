package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrContactNotFound is returned for an unknown contact id.
var ErrContactNotFound = errors.New("contact does not exist")

// Contact is an address book entry.
type Contact struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Address   string    `gorm:"column:address;not null" json:"address"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (Contact) TableName() string {
	return "contacts"
}

type ContactStore struct {
	db *gorm.DB
}

func NewContactStore(db *gorm.DB) *ContactStore {
	return &ContactStore{db: db}
}

func (s *ContactStore) List() ([]Contact, error) {
	var contacts []Contact
	if err := s.db.Order("name").Find(&contacts).Error; err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, nil
}

func (s *ContactStore) Get(id string) (Contact, error) {
	var contact Contact
	err := s.db.Where("id = ?", id).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Contact{}, ErrContactNotFound
	}
	if err != nil {
		return Contact{}, fmt.Errorf("failed to load contact %s: %w", id, err)
	}
	return contact, nil
}

// Create stores c, assigning a new id when c has none.
func (s *ContactStore) Create(c Contact) (Contact, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := s.db.Create(&c).Error; err != nil {
		return Contact{}, fmt.Errorf("failed to create contact: %w", err)
	}
	return c, nil
}

func (s *ContactStore) Update(c Contact) error {
	res := s.db.Model(&Contact{}).Where("id = ?", c.ID).Updates(map[string]any{
		"name":       c.Name,
		"address":    c.Address,
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update contact %s: %w", c.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrContactNotFound
	}
	return nil
}

func (s *ContactStore) Remove(id string) error {
	res := s.db.Where("id = ?", id).Delete(&Contact{})
	if res.Error != nil {
		return fmt.Errorf("failed to remove contact %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrContactNotFound
	}
	return nil
}
