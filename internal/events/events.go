// Package events is the in-process bus connecting writers of local data with
// the caches that display it.
package events

import (
	"wallet-sync-go/internal/models"
)

type Kind string

const (
	KindMessageNew         Kind = "message:new"
	KindTransactionUpdate  Kind = "transaction:update"
	KindMessageDeleted     Kind = "message:deleted"
	KindInteractionUpdated Kind = "interaction:updated"
	KindDataUpdated        Kind = "data:updated"
)

// Event is a closed union; only the types in this package implement it.
type Event interface {
	Kind() Kind
	sealed()
}

type MessageNew struct {
	Message models.Message
	// Owner is the profile the message was stored for.
	Owner string
}

type TransactionUpdate struct {
	Transaction models.Transaction
	Owner       string
}

type MessageDeleted struct {
	MessageId     string
	InteractionId string
	Owner         string
}

type InteractionUpdated struct {
	Interaction models.Interaction
	Owner       string
}

// DataUpdated is published by the reconciler after every store write.
type DataUpdated struct {
	RecordKind  models.RecordKind
	Owner       string
	UpsertedIds []string
	DeletedIds  []string
	Checkpoint  string
}

func (MessageNew) Kind() Kind         { return KindMessageNew }
func (TransactionUpdate) Kind() Kind  { return KindTransactionUpdate }
func (MessageDeleted) Kind() Kind     { return KindMessageDeleted }
func (InteractionUpdated) Kind() Kind { return KindInteractionUpdated }
func (DataUpdated) Kind() Kind        { return KindDataUpdated }

func (MessageNew) sealed()         {}
func (TransactionUpdate) sealed()  {}
func (MessageDeleted) sealed()     {}
func (InteractionUpdated) sealed() {}
func (DataUpdated) sealed()        {}
