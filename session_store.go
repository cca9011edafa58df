package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionRecord is the local record of an approved WalletConnect session.
type SessionRecord struct {
	Topic      string         `gorm:"column:topic;primaryKey;type:varchar(255)" json:"topic"`
	ProposalID uint64         `gorm:"column:proposal_id" json:"proposalId"`
	DAppName   string         `gorm:"column:dapp_name;type:varchar(255)" json:"dappName"`
	DAppURL    string         `gorm:"column:dapp_url;type:varchar(1024)" json:"dappUrl"`
	Icons      pq.StringArray `gorm:"column:icons;type:text[]" json:"icons"`
	Chains     pq.StringArray `gorm:"column:chains;type:text[]" json:"chains"`
	Accounts   pq.StringArray `gorm:"column:accounts;type:text[]" json:"accounts"`
	Namespaces datatypes.JSON `gorm:"column:namespaces" json:"namespaces"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

func (SessionRecord) TableName() string {
	return "wc_sessions"
}

// Session rebuilds the transport view of the record.
func (r SessionRecord) Session() (*Session, error) {
	s := &Session{
		Topic: r.Topic,
		Peer: PeerMetadata{
			Name:  r.DAppName,
			URL:   r.DAppURL,
			Icons: r.Icons,
		},
	}
	if len(r.Namespaces) > 0 {
		if err := json.Unmarshal(r.Namespaces, &s.Namespaces); err != nil {
			return nil, fmt.Errorf("failed to decode namespaces of session %s: %w", r.Topic, err)
		}
	}
	return s, nil
}

type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Save creates or replaces the record of a session.
func (s *SessionStore) Save(proposalID uint64, session Session) error {
	namespaces, err := json.Marshal(session.Namespaces)
	if err != nil {
		return err
	}

	var chains, accounts []string
	for _, ns := range session.Namespaces {
		chains = append(chains, ns.Chains...)
		accounts = append(accounts, ns.Accounts...)
	}

	record := &SessionRecord{
		Topic:      session.Topic,
		ProposalID: proposalID,
		DAppName:   session.Peer.Name,
		DAppURL:    session.Peer.URL,
		Icons:      session.Peer.Icons,
		Chains:     chains,
		Accounts:   accounts,
		Namespaces: datatypes.JSON(namespaces),
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(record).Error
}

func (s *SessionStore) Get(topic string) (SessionRecord, bool, error) {
	var record SessionRecord
	err := s.db.Where("topic = ?", topic).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, err
	}
	return record, true, nil
}

func (s *SessionStore) List(options *ListOptions) ([]SessionRecord, error) {
	query := applyListOptions(s.db, "created_at", SortTypeDescending, options)
	var records []SessionRecord
	err := query.Find(&records).Error
	return records, err
}

// Topics returns the topics of every stored session.
func (s *SessionStore) Topics() ([]string, error) {
	var topics []string
	err := s.db.Model(&SessionRecord{}).Order("created_at").Pluck("topic", &topics).Error
	return topics, err
}

func (s *SessionStore) Delete(topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	return s.db.Where("topic IN ?", topics).Delete(&SessionRecord{}).Error
}

func (s *SessionStore) Count() (int64, error) {
	var count int64
	err := s.db.Model(&SessionRecord{}).Count(&count).Error
	return count, err
}
