package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/corewallet/wcnode/pkg/rpc"
)

// RequestStatus is the lifecycle state of a recorded request.
type RequestStatus string

const (
	RequestStatusReceived         RequestStatus = "received"
	RequestStatusAwaitingApproval RequestStatus = "awaiting_approval"
	RequestStatusSucceeded        RequestStatus = "succeeded"
	RequestStatusFailed           RequestStatus = "failed"
	RequestStatusRejected         RequestStatus = "rejected"
	// RequestStatusAbandoned marks a request a previous run never answered.
	// It is not final, so a redelivery of the request is processed again.
	RequestStatusAbandoned RequestStatus = "abandoned"
)

// IsFinal reports whether no further transitions are expected.
func (s RequestStatus) IsFinal() bool {
	return s == RequestStatusSucceeded || s == RequestStatusFailed || s == RequestStatusRejected
}

// RequestRecord is the persisted history of a dApp request.
type RequestRecord struct {
	ID           uint64         `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Method       string         `gorm:"column:method;type:varchar(255);not null" json:"method"`
	Topic        string         `gorm:"column:topic;type:varchar(255);index" json:"topic,omitempty"`
	ChainID      string         `gorm:"column:chain_id;type:varchar(64)" json:"chainId,omitempty"`
	DAppName     string         `gorm:"column:dapp_name;type:varchar(255)" json:"dappName"`
	DAppURL      string         `gorm:"column:dapp_url;type:varchar(1024)" json:"dappUrl"`
	Params       datatypes.JSON `gorm:"column:params" json:"params,omitempty"`
	Status       RequestStatus  `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	Result       datatypes.JSON `gorm:"column:result" json:"result,omitempty"`
	ErrorCode    int            `gorm:"column:error_code" json:"errorCode,omitempty"`
	ErrorMessage string         `gorm:"column:error_message;type:text" json:"errorMessage,omitempty"`
	TxHash       string         `gorm:"column:tx_hash;type:varchar(66)" json:"txHash,omitempty"`
	CreatedAt    time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func (RequestRecord) TableName() string {
	return "rpc_requests"
}

// RequestStore keeps the status history of every processed request.
type RequestStore struct {
	db *gorm.DB
}

func NewRequestStore(db *gorm.DB) *RequestStore {
	return &RequestStore{db: db}
}

// RecordReceived creates the record of req, or resets it when a request with
// the same id was stored before and never reached a final status.
func (s *RequestStore) RecordReceived(req Request) error {
	peer := req.Peer()
	params := req.Params
	if req.IsSessionProposal() {
		b, err := json.Marshal(req.Proposal)
		if err != nil {
			return err
		}
		params = b
	}

	record := &RequestRecord{
		ID:       req.ID,
		Method:   req.Method,
		Topic:    req.Topic,
		ChainID:  req.ChainID,
		DAppName: peer.Name,
		DAppURL:  peer.URL,
		Params:   datatypes.JSON(params),
		Status:   RequestStatusReceived,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"method", "topic", "chain_id", "dapp_name", "dapp_url", "params", "status", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "rpc_requests.status NOT IN (?, ?, ?)", Vars: []any{
				RequestStatusSucceeded, RequestStatusFailed, RequestStatusRejected,
			}},
		}},
	}).Create(record).Error
}

// IsResolved reports whether req already reached a final status in an earlier
// run. A proposal and a request sharing an id are told apart by method.
func (s *RequestStore) IsResolved(req Request) (bool, error) {
	record, ok, err := s.Get(req.ID)
	if err != nil || !ok {
		return false, err
	}
	sameKind := (record.Method == MethodSessionProposal) == req.IsSessionProposal()
	return sameKind && record.Status.IsFinal(), nil
}

func (s *RequestStore) MarkAwaitingApproval(id uint64) error {
	return s.update(id, map[string]any{"status": RequestStatusAwaitingApproval})
}

// RecordResult stores the terminal outcome of a request.
func (s *RequestStore) RecordResult(id uint64, result Result) error {
	columns := map[string]any{}
	switch result.Kind {
	case ResultSuccess:
		value, err := result.MarshalValue()
		if err != nil {
			return err
		}
		columns["status"] = RequestStatusSucceeded
		columns["result"] = datatypes.JSON(value)
	case ResultFailure:
		status := RequestStatusFailed
		if result.Err.Code == rpc.CodeUserRejected {
			status = RequestStatusRejected
		}
		columns["status"] = status
		columns["error_code"] = result.Err.Code
		columns["error_message"] = result.Err.Message
	default:
		return fmt.Errorf("result %s is not terminal", result.Kind)
	}
	return s.update(id, columns)
}

func (s *RequestStore) SetTxHash(id uint64, txHash string) error {
	return s.update(id, map[string]any{"tx_hash": txHash})
}

func (s *RequestStore) update(id uint64, columns map[string]any) error {
	columns["updated_at"] = time.Now()
	return s.db.Model(&RequestRecord{}).Where("id = ?", id).Updates(columns).Error
}

// Get returns the record of a request id.
func (s *RequestStore) Get(id uint64) (RequestRecord, bool, error) {
	var record RequestRecord
	err := s.db.Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RequestRecord{}, false, nil
	}
	if err != nil {
		return RequestRecord{}, false, err
	}
	return record, true, nil
}

// RequestFilter narrows List results. Empty fields match everything.
type RequestFilter struct {
	Topic  string
	Status RequestStatus
}

// List returns request records, newest first unless options say otherwise.
func (s *RequestStore) List(filter RequestFilter, options *ListOptions) ([]RequestRecord, error) {
	query := applyListOptions(s.db, "created_at", SortTypeDescending, options)
	if filter.Topic != "" {
		query = query.Where("topic = ?", filter.Topic)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var records []RequestRecord
	err := query.Find(&records).Error
	return records, err
}

// AbandonInFlight marks every request left received or awaiting approval as
// abandoned. It runs at startup, when no request can have a live waiter, and
// returns the number of records changed.
func (s *RequestStore) AbandonInFlight() (int64, error) {
	res := s.db.Model(&RequestRecord{}).
		Where("status IN ?", []RequestStatus{RequestStatusReceived, RequestStatusAwaitingApproval}).
		Updates(map[string]any{"status": RequestStatusAbandoned, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

// Pending returns the requests still waiting for the user, oldest first.
func (s *RequestStore) Pending() ([]RequestRecord, error) {
	var records []RequestRecord
	err := s.db.Where("status = ?", RequestStatusAwaitingApproval).Order("created_at ASC").Find(&records).Error
	return records, err
}

// DeleteOlderThan removes final and abandoned records created before cutoff.
func (s *RequestStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res := s.db.Where("created_at < ? AND status IN ?", cutoff, []RequestStatus{
		RequestStatusSucceeded, RequestStatusFailed, RequestStatusRejected, RequestStatusAbandoned,
	}).Delete(&RequestRecord{})
	return res.RowsAffected, res.Error
}

func (s *RequestStore) CountByStatus() (map[RequestStatus]int64, error) {
	var rows []struct {
		Status RequestStatus
		Count  int64
	}
	err := s.db.Model(&RequestRecord{}).Select("status, count(*) as count").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[RequestStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
