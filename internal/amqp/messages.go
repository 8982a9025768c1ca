package amqp

import (
	"errors"
	"time"

	"github.com/bytedance/sonic"
)

type ChangeAction string

const (
	ActionCreated ChangeAction = "created"
	ActionUpdated ChangeAction = "updated"
	ActionDeleted ChangeAction = "deleted"
)

// TransactionChangedMessage announces that one of a user's transactions changed.
// It carries only identifiers; the worker refetches the month it points at.
type TransactionChangedMessage struct {
	TransactionID int64        `json:"transactionId"`
	UserID        string       `json:"userId"`
	YearMonth     string       `json:"yearMonth"`
	Action        ChangeAction `json:"action"`
	Timestamp     time.Time    `json:"timestamp"`
}

// NewTransactionChangedMessage creates a message stamped with the current time.
func NewTransactionChangedMessage(action ChangeAction, id int64, userID, yearMonth string) *TransactionChangedMessage {
	return &TransactionChangedMessage{
		TransactionID: id,
		UserID:        userID,
		YearMonth:     yearMonth,
		Action:        action,
		Timestamp:     time.Now(),
	}
}

// Validate rejects messages the worker cannot act on.
func (m *TransactionChangedMessage) Validate() error {
	if m.UserID == "" {
		return errors.New("missing user id")
	}
	if len(m.YearMonth) != len("2006-01") {
		return errors.New("missing or malformed year-month")
	}
	switch m.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return nil
	default:
		return errors.New("unknown action")
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionChangedMessage) ToJSON() ([]byte, error) {
	return sonic.ConfigDefault.Marshal(m)
}

// TransactionChangedMessageFromJSON parses and validates a message body.
func TransactionChangedMessageFromJSON(data []byte) (*TransactionChangedMessage, error) {
	var msg TransactionChangedMessage
	if err := sonic.ConfigDefault.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
