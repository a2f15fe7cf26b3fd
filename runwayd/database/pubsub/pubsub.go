// Package pubsub broadcasts notifications between control plane replicas.
// Job creation is announced here so dispatchers wake up without polling.
package pubsub

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/xerrors"
)

// EventJobPosted is published with the job ID as payload whenever a new
// job enters the pending state.
const EventJobPosted = "job_posted"

// Listener represents a pubsub handler.
type Listener func(ctx context.Context, message []byte)

// Pubsub is a generic interface for broadcasting and receiving messages.
type Pubsub interface {
	Subscribe(event string, listener Listener) (cancel func(), err error)
	Publish(event string, message []byte) error
	Close() error
}

type pgPubsub struct {
	ctx        context.Context
	cancel     context.CancelFunc
	pgListener *pq.Listener
	db         *sql.DB

	mut       sync.Mutex
	listeners map[string]map[uuid.UUID]Listener
}

// NewPostgres creates a Pubsub over PostgreSQL LISTEN/NOTIFY. The sql.DB
// is used for publishing, the URL opens a dedicated listen connection.
func NewPostgres(ctx context.Context, db *sql.DB, connectURL string) (Pubsub, error) {
	errCh := make(chan error, 1)
	listener := pq.NewListener(connectURL, time.Second, time.Minute, func(_ pq.ListenerEventType, err error) {
		select {
		case errCh <- err:
		default:
		}
	})
	select {
	case err := <-errCh:
		if err != nil {
			_ = listener.Close()
			return nil, xerrors.Errorf("create pq listener: %w", err)
		}
	case <-ctx.Done():
		_ = listener.Close()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &pgPubsub{
		ctx:        ctx,
		cancel:     cancel,
		pgListener: listener,
		db:         db,
		listeners:  make(map[string]map[uuid.UUID]Listener),
	}
	go p.listen()
	return p, nil
}

func (p *pgPubsub) Subscribe(event string, listener Listener) (cancel func(), err error) {
	p.mut.Lock()
	defer p.mut.Unlock()

	err = p.pgListener.Listen(event)
	if errors.Is(err, pq.ErrChannelAlreadyOpen) {
		err = nil
	}
	if err != nil {
		return nil, xerrors.Errorf("listen: %w", err)
	}

	eventListeners, ok := p.listeners[event]
	if !ok {
		eventListeners = map[uuid.UUID]Listener{}
		p.listeners[event] = eventListeners
	}
	id := uuid.New()
	eventListeners[id] = listener

	return func() {
		p.mut.Lock()
		defer p.mut.Unlock()
		listeners := p.listeners[event]
		delete(listeners, id)
		if len(listeners) == 0 {
			_ = p.pgListener.Unlisten(event)
		}
	}, nil
}

func (p *pgPubsub) Publish(event string, message []byte) error {
	// pg_notify doesn't support the channel as a prepared statement
	// parameter, so the event name is quoted instead.
	//nolint:gosec
	_, err := p.db.ExecContext(p.ctx, `SELECT pg_notify(`+pq.QuoteLiteral(event)+`, $1)`, message)
	if err != nil {
		return xerrors.Errorf("exec pg_notify: %w", err)
	}
	return nil
}

func (p *pgPubsub) Close() error {
	p.cancel()
	return p.pgListener.Close()
}

func (p *pgPubsub) listen() {
	for {
		var notif *pq.Notification
		var ok bool
		select {
		case <-p.ctx.Done():
			return
		case notif, ok = <-p.pgListener.Notify:
			if !ok {
				return
			}
		}
		// A nil notification can be dispatched on reconnect.
		if notif == nil {
			continue
		}
		p.receive(notif)
	}
}

func (p *pgPubsub) receive(notif *pq.Notification) {
	p.mut.Lock()
	defer p.mut.Unlock()
	listeners, ok := p.listeners[notif.Channel]
	if !ok {
		return
	}
	extra := []byte(notif.Extra)
	for _, listener := range listeners {
		go listener(p.ctx, extra)
	}
}
