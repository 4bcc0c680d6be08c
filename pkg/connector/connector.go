// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/mx-puppet-steam/pkg/puppet"
	"github.com/aiku/mx-puppet-steam/pkg/steamapi"
)

// ClientFactory creates a fresh Steam connection for a new session.
type ClientFactory func() steamapi.Client

// WebClientFactory creates the secondary web-session transport for a session.
type WebClientFactory func() steamapi.WebClient

// ErrNotLinked is returned for operations on an account with no live session.
var ErrNotLinked = errors.New("account is not linked")

// Connector owns the set of live per-account sessions, keyed by puppet id.
// It has an explicit lifecycle: sessions exist only between LinkAccount and
// UnlinkAccount, and at most one session exists per account at any time.
type Connector struct {
	bridge       puppet.Bridge
	config       Config
	newClient    ClientFactory
	newWebClient WebClientFactory
	log          zerolog.Logger

	mu       sync.Mutex
	sessions map[int64]*sessionSlot
}

// sessionSlot serializes link/unlink operations for one puppet id. Holding
// slot.mu across teardown guarantees a second link waits for the first
// session's teardown to complete before logging on.
type sessionSlot struct {
	mu     sync.Mutex
	client *Client
}

// NewConnector creates a registry wired to the given bridge collaborator and
// client factories.
func NewConnector(bridge puppet.Bridge, config Config, newClient ClientFactory, newWebClient WebClientFactory, log zerolog.Logger) (*Connector, error) {
	if err := config.PostProcess(); err != nil {
		return nil, fmt.Errorf("failed to post-process config: %w", err)
	}
	return &Connector{
		bridge:       bridge,
		config:       config,
		newClient:    newClient,
		newWebClient: newWebClient,
		log:          log,
		sessions:     make(map[int64]*sessionSlot),
	}, nil
}

func (sc *Connector) slot(puppetID int64) *sessionSlot {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	s, ok := sc.sessions[puppetID]
	if !ok {
		s = &sessionSlot{}
		sc.sessions[puppetID] = s
	}
	return s
}

// LinkAccount tears down any existing session for the account and starts a
// new one with the given credentials. Connection establishment is
// asynchronous; the call returns once the logon attempt is underway.
// Concurrent calls for the same account serialize.
func (sc *Connector) LinkAccount(ctx context.Context, puppetID int64, data *puppet.Data) error {
	sc.log.Info().Int64("puppet_id", puppetID).Msg("Linking account")
	slot := sc.slot(puppetID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.client != nil {
		slot.client.teardown()
		slot.client = nil
	}

	client := newClient(sc, puppetID, data)
	slot.client = client
	client.start(ctx)
	return nil
}

// UnlinkAccount closes the account's connection gracefully. No-op if the
// account is not linked.
func (sc *Connector) UnlinkAccount(_ context.Context, puppetID int64) {
	sc.log.Info().Int64("puppet_id", puppetID).Msg("Unlinking account")
	slot := sc.slot(puppetID)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.client == nil {
		return
	}
	slot.client.teardown()
	slot.client = nil
}

// Session returns the live session for the account, or nil.
func (sc *Connector) Session(puppetID int64) *Client {
	sc.mu.Lock()
	s, ok := sc.sessions[puppetID]
	sc.mu.Unlock()
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// HandleMatrixMessage routes an outbound text message to the session owning
// the room.
func (sc *Connector) HandleMatrixMessage(ctx context.Context, room puppet.RemoteRoom, data *puppet.MessageEvent) error {
	session := sc.Session(room.PuppetID)
	if session == nil {
		return ErrNotLinked
	}
	return session.HandleMatrixMessage(ctx, room, data)
}

// HandleMatrixImage routes an outbound image to the session owning the room.
func (sc *Connector) HandleMatrixImage(ctx context.Context, room puppet.RemoteRoom, data *puppet.FileEvent) error {
	session := sc.Session(room.PuppetID)
	if session == nil {
		return ErrNotLinked
	}
	return session.HandleMatrixImage(ctx, room, data)
}

// HandleMatrixTyping routes a typing signal to the session owning the room.
func (sc *Connector) HandleMatrixTyping(ctx context.Context, room puppet.RemoteRoom, typing bool) error {
	session := sc.Session(room.PuppetID)
	if session == nil {
		return ErrNotLinked
	}
	return session.HandleMatrixTyping(ctx, room, typing)
}

// HandleMatrixReadReceipt routes a read receipt to the session owning the
// room.
func (sc *Connector) HandleMatrixReadReceipt(ctx context.Context, room puppet.RemoteRoom, upTo time.Time) error {
	session := sc.Session(room.PuppetID)
	if session == nil {
		return ErrNotLinked
	}
	return session.HandleMatrixReadReceipt(ctx, room, upTo)
}

// CreateRoom resolves a room identifier into room metadata for the framework,
// answering its room-creation hook.
func (sc *Connector) CreateRoom(ctx context.Context, room puppet.RemoteRoom) (*puppet.RemoteRoom, error) {
	session := sc.Session(room.PuppetID)
	if session == nil {
		return nil, ErrNotLinked
	}
	return session.ResolveRoom(ctx, room)
}

// CreateUser resolves a remote user id into user metadata for the framework.
func (sc *Connector) CreateUser(ctx context.Context, user puppet.RemoteUser) (*puppet.RemoteUser, error) {
	session := sc.Session(user.PuppetID)
	if session == nil {
		return nil, ErrNotLinked
	}
	return session.ResolveUser(ctx, user)
}
