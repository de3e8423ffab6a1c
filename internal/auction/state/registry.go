// Package state holds the process-wide registry the scheduler, the bid
// handler and the HTTP boundary share.
package state

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	auctionerrors "auctionworker/internal/auction/errors"
	"auctionworker/pkg/model"
)

type Key string

const (
	KeyAuctionDocument  Key = "auction_document"
	KeyAuctionProtocol  Key = "auction_protocol"
	KeyAuctionData      Key = "auction_data"
	KeyServerActionLock Key = "server_actions"
	KeyEndAuctionEvent  Key = "end_auction_event"
	KeyServer           Key = "server"
)

// DeepCopier is implemented by composite values. Get hands out a copy of
// them so readers never alias the stored value.
type DeepCopier interface {
	DeepCopy() any
}

// Server is the handle end_auction stops.
type Server interface {
	Shutdown(ctx context.Context) error
}

type Schema map[Key]reflect.Type

// DefaultSchema is the layout the worker runs with.
func DefaultSchema() Schema {
	return Schema{
		KeyAuctionDocument:  reflect.TypeOf((*model.AuctionDocument)(nil)),
		KeyAuctionProtocol:  reflect.TypeOf((*model.Protocol)(nil)),
		KeyAuctionData:      reflect.TypeOf((*model.Tender)(nil)),
		KeyServerActionLock: reflect.TypeOf((*sync.Mutex)(nil)),
		KeyEndAuctionEvent:  reflect.TypeOf((*Event)(nil)),
		KeyServer:           reflect.TypeOf((*Server)(nil)).Elem(),
	}
}

// Registry is a typed key/value store with a schema fixed at construction.
type Registry struct {
	mu     sync.RWMutex
	schema Schema
	values map[Key]any
}

// NewRegistry builds a registry for schema, seeded with a fresh lock and
// end event when the schema declares them. A map or slice type that does not
// implement DeepCopier cannot be copied on read and panics.
func NewRegistry(schema Schema) *Registry {
	copier := reflect.TypeOf((*DeepCopier)(nil)).Elem()
	for key, typ := range schema {
		switch typ.Kind() {
		case reflect.Map, reflect.Slice:
			if !typ.Implements(copier) {
				panic(fmt.Sprintf("state: %s of type %s must implement DeepCopier", key, typ))
			}
		}
	}

	r := &Registry{schema: schema, values: make(map[Key]any, len(schema))}
	if _, ok := schema[KeyServerActionLock]; ok {
		r.MustSet(KeyServerActionLock, &sync.Mutex{})
	}
	if _, ok := schema[KeyEndAuctionEvent]; ok {
		r.MustSet(KeyEndAuctionEvent, NewEvent())
	}
	return r
}

func New() *Registry {
	return NewRegistry(DefaultSchema())
}

// Set stores value under key. Unknown keys and values of the wrong type are
// rejected.
func (r *Registry) Set(key Key, value any) error {
	typ, ok := r.schema[key]
	if !ok {
		return fmt.Errorf("%w: %s", auctionerrors.ErrUnknownKey, key)
	}
	if value == nil || !reflect.TypeOf(value).AssignableTo(typ) {
		return fmt.Errorf("%w: %s wants %s, got %T", auctionerrors.ErrWrongType, key, typ, value)
	}

	r.mu.Lock()
	r.values[key] = value
	r.mu.Unlock()
	return nil
}

// MustSet is Set for callers that treat a contract violation as fatal.
func (r *Registry) MustSet(key Key, value any) {
	if err := r.Set(key, value); err != nil {
		panic(err)
	}
}

// Get returns the value under key. Composite values come back as deep
// copies; handles such as the lock are returned as stored.
func (r *Registry) Get(key Key) (any, bool) {
	r.mu.RLock()
	value, ok := r.values[key]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c, ok := value.(DeepCopier); ok {
		return c.DeepCopy(), true
	}
	return value, true
}

func (r *Registry) Has(key Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.values[key]
	return ok
}

func (r *Registry) Delete(key Key) {
	r.mu.Lock()
	delete(r.values, key)
	r.mu.Unlock()
}

// Document returns a copy of the auction document, or nil before one was
// loaded.
func (r *Registry) Document() *model.AuctionDocument {
	v, ok := r.Get(KeyAuctionDocument)
	if !ok {
		return nil
	}
	return v.(*model.AuctionDocument)
}

func (r *Registry) SetDocument(doc *model.AuctionDocument) {
	r.MustSet(KeyAuctionDocument, doc.Clone())
}

func (r *Registry) Protocol() *model.Protocol {
	v, ok := r.Get(KeyAuctionProtocol)
	if !ok {
		return nil
	}
	return v.(*model.Protocol)
}

func (r *Registry) SetProtocol(p *model.Protocol) {
	r.MustSet(KeyAuctionProtocol, p.Clone())
}

func (r *Registry) Tender() *model.Tender {
	v, ok := r.Get(KeyAuctionData)
	if !ok {
		return nil
	}
	return v.(*model.Tender)
}

func (r *Registry) SetTender(t *model.Tender) {
	r.MustSet(KeyAuctionData, t.Clone())
}

// Lock is the lock every document mutation runs under.
func (r *Registry) Lock() *sync.Mutex {
	v, _ := r.Get(KeyServerActionLock)
	return v.(*sync.Mutex)
}

func (r *Registry) EndEvent() *Event {
	v, _ := r.Get(KeyEndAuctionEvent)
	return v.(*Event)
}

func (r *Registry) Server() Server {
	v, ok := r.Get(KeyServer)
	if !ok {
		return nil
	}
	return v.(Server)
}

func (r *Registry) SetServer(s Server) {
	r.MustSet(KeyServer, s)
}
