// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mx-puppet-steam/pkg/connector/msgconv"
	"github.com/aiku/mx-puppet-steam/pkg/puppet"
	"github.com/aiku/mx-puppet-steam/pkg/steamapi"
)

// emoticonKind is the namespace under which emoticon assets are cached and
// fetched from the CDN.
const emoticonKind = "emoticonlarge"

var (
	// ErrWebSessionTimeout resolves deferred actions whose web session never
	// arrived within the configured bound.
	ErrWebSessionTimeout = errors.New("timed out waiting for web session")
	// ErrSessionClosed resolves deferred actions cancelled by unlink.
	ErrSessionClosed = errors.New("session closed")
)

// Client is one live account session: a Steam connection, its secondary web
// session, and the caches owned by it. All inbound events are processed on a
// single run loop in connection order; teardown stops the loop and closes the
// connection.
type Client struct {
	connector *Connector
	bridge    puppet.Bridge
	puppetID  int64
	log       zerolog.Logger

	client steamapi.Client
	web    steamapi.WebClient
	cache  *MetadataCache
	echo   *EchoSuppressor
	conv   *msgconv.Converter

	mu           sync.Mutex
	data         *puppet.Data
	webReady     bool
	deferred     []*deferredAction
	sentEventIDs []string
	reconnected  bool

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// deferredAction is a queued closure waiting on the web session. It executes
// at most once: on flush, on timeout, or on cancellation.
type deferredAction struct {
	id    uuid.UUID
	fn    func(error)
	once  sync.Once
	timer *time.Timer
}

func (a *deferredAction) fire(err error) {
	a.once.Do(func() {
		if a.timer != nil {
			a.timer.Stop()
		}
		a.fn(err)
	})
}

func newClient(sc *Connector, puppetID int64, data *puppet.Data) *Client {
	log := sc.log.With().Int64("puppet_id", puppetID).Str("component", "steam_session").Logger()
	c := &Client{
		connector: sc,
		bridge:    sc.bridge,
		puppetID:  puppetID,
		log:       log,
		client:    sc.newClient(),
		web:       sc.newWebClient(),
		data:      data,
		echo:      &EchoSuppressor{},
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
	c.cache = NewMetadataCache(c.client)
	c.conv = &msgconv.Converter{
		Resolver:       (*sessionResolver)(c),
		StickerBaseURL: sc.config.StickerBaseURL,
		EmoticonHeight: sc.config.EmoticonHeight,
		Sticker:        sc.config.StickerOptions(),
	}
	return c
}

// start begins the event loop and kicks off the asynchronous logon.
func (c *Client) start(ctx context.Context) {
	go c.run()
	go func() {
		creds := c.credentials()
		if err := c.client.LogOn(ctx, creds); err != nil {
			c.log.Error().Err(err).Msg("Failed to start logon")
			c.sendStatus(ctx, fmt.Sprintf("**disconnected!**: failed to connect. %v", err))
		}
	}()
}

// run consumes connection events in order until teardown. Handlers for one
// session never interleave; ordering across sessions is not guaranteed.
func (c *Client) run() {
	defer close(c.doneChan)
	ctx := context.Background()
	for {
		select {
		case <-c.stopChan:
			return
		case evt, ok := <-c.client.Events():
			if !ok {
				return
			}
			c.handleEvent(ctx, evt)
		}
	}
}

// teardown closes the connection, cancels deferred actions, and waits for
// the run loop to exit so a replacement session never overlaps this one.
func (c *Client) teardown() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	c.client.LogOff()
	c.cancelDeferred()
	select {
	case <-c.doneChan:
	case <-time.After(5 * time.Second):
		c.log.Warn().Msg("Timed out waiting for event loop to stop")
	}
}

func (c *Client) credentials() steamapi.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Credentials()
}

// SteamID returns the session's own canonical identity.
func (c *Client) SteamID() steamapi.SteamID {
	return c.client.SteamID()
}

// Echo exposes the session's echo suppressor.
func (c *Client) Echo() *EchoSuppressor {
	return c.echo
}

// Cache exposes the session's metadata cache.
func (c *Client) Cache() *MetadataCache {
	return c.cache
}

func (c *Client) sendStatus(ctx context.Context, msg string) {
	if err := c.bridge.SendStatusMessage(ctx, c.puppetID, msg); err != nil {
		c.log.Warn().Err(err).Msg("Failed to send status message")
	}
}

// runWhenWebSession executes fn once the secondary web session is available.
// If it never arrives, fn fires with ErrWebSessionTimeout after the
// configured bound; unlink fires it with ErrSessionClosed. Queued actions
// flush in FIFO order and execute at most once.
func (c *Client) runWhenWebSession(fn func(error)) {
	c.mu.Lock()
	if c.webReady {
		c.mu.Unlock()
		fn(nil)
		return
	}
	act := &deferredAction{id: uuid.New(), fn: fn}
	act.timer = time.AfterFunc(c.connector.config.WebSessionTimeout(), func() {
		c.expireDeferred(act.id)
	})
	c.deferred = append(c.deferred, act)
	c.mu.Unlock()
}

func (c *Client) flushDeferred() {
	c.mu.Lock()
	c.webReady = true
	acts := c.deferred
	c.deferred = nil
	c.mu.Unlock()
	for _, act := range acts {
		act.fire(nil)
	}
}

func (c *Client) expireDeferred(actID uuid.UUID) {
	c.mu.Lock()
	var expired *deferredAction
	for i, act := range c.deferred {
		if act.id == actID {
			expired = act
			c.deferred = append(c.deferred[:i], c.deferred[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	if expired != nil {
		expired.fire(ErrWebSessionTimeout)
	}
}

func (c *Client) cancelDeferred() {
	c.mu.Lock()
	acts := c.deferred
	c.deferred = nil
	c.mu.Unlock()
	for _, act := range acts {
		act.fire(ErrSessionClosed)
	}
}

// recordSentEvent remembers a remote event id this session delivered itself,
// so its echo on the primary channel is not re-delivered.
func (c *Client) recordSentEvent(eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentEventIDs = append(c.sentEventIDs, eventID)
}

func (c *Client) wasSentEvent(eventID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sent := range c.sentEventIDs {
		if sent == eventID {
			return true
		}
	}
	return false
}

// sessionResolver adapts the session's caches to the normalizer's Resolver
// contract.
type sessionResolver Client

var _ msgconv.Resolver = (*sessionResolver)(nil)

func (r *sessionResolver) ResolveProduct(ctx context.Context, appID uint32) (*steamapi.ProductInfo, error) {
	return r.cache.GetProduct(ctx, appID)
}

// ResolveEmoticon returns the content URI for an emoticon, fetching the CDN
// asset and persisting it through the emote cache on first use.
func (r *sessionResolver) ResolveEmoticon(ctx context.Context, name string) (id.ContentURIString, error) {
	emoteID := emoticonKind + "/" + name
	uri, ok, err := r.bridge.EmoteSync().Get(ctx, emoteID)
	if err != nil {
		return "", fmt.Errorf("failed to query emote cache: %w", err)
	}
	if ok {
		return uri, nil
	}

	assetURL := r.connector.config.EmoticonBaseURL + "/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build emoticon request: %w", err)
	}
	client := r.conv.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download emoticon %q: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download emoticon %q: status %d", name, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read emoticon %q: %w", name, err)
	}

	uri, err = r.bridge.UploadContent(ctx, data, "image/png")
	if err != nil {
		return "", fmt.Errorf("failed to upload emoticon %q: %w", name, err)
	}
	if err := r.bridge.EmoteSync().Set(ctx, emoteID, uri); err != nil {
		// The upload succeeded; a cache write failure only costs a re-upload.
		(*Client)(r).log.Warn().Err(err).Str("emote", emoteID).Msg("Failed to persist emote cache entry")
	}
	return uri, nil
}
