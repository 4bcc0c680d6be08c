// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix/event"

	"github.com/aiku/mx-puppet-steam/pkg/connector/msgconv"
	"github.com/aiku/mx-puppet-steam/pkg/puppet"
	"github.com/aiku/mx-puppet-steam/pkg/steamapi"
)

// handleEvent dispatches one connection event. Called only from the run loop,
// so handlers for a session never reorder across suspension points.
func (c *Client) handleEvent(ctx context.Context, evt steamapi.Event) {
	switch e := evt.(type) {
	case steamapi.LoggedOnEvent:
		c.handleLoggedOn(ctx, e)
	case steamapi.UserEvent:
		c.handleUser(ctx, e)
	case steamapi.LoginKeyEvent:
		c.handleLoginKey(ctx, e)
	case steamapi.WebSessionEvent:
		c.handleWebSession(e)
	case steamapi.ErrorEvent:
		c.handleError(ctx, e)
	case steamapi.DisconnectedEvent:
		c.handleDisconnected(ctx, e)
	case steamapi.FriendMessageEvent:
		c.handleFriendMessage(ctx, e)
	case steamapi.ChatMessageEvent:
		c.handleChatMessage(ctx, e)
	case steamapi.FriendTypingEvent:
		c.handleFriendTyping(ctx, e)
	default:
		c.log.Trace().Type("event_type", evt).Msg("Unhandled event type")
	}
}

func (c *Client) handleLoggedOn(ctx context.Context, evt steamapi.LoggedOnEvent) {
	c.log.Info().Str("steam_id", evt.SteamID.String()).Msg("Logged on")
	if err := c.bridge.SetUserID(ctx, c.puppetID, evt.SteamID.String()); err != nil {
		c.log.Error().Err(err).Msg("Failed to report canonical user id")
	}
	c.sendStatus(ctx, fmt.Sprintf("connected as %s(%s)!", evt.VanityURL, evt.SteamID))

	if err := c.client.SetPersona(ctx, steamapi.PersonaStateOnline); err != nil {
		c.log.Warn().Err(err).Msg("Failed to set default persona state")
	}
	if err := c.client.WebLogOn(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Failed to request web session")
	}
}

// handleUser stores a pushed persona snapshot and bridges presence. Presence
// for the session's own identity is never reported.
func (c *Client) handleUser(ctx context.Context, evt steamapi.UserEvent) {
	c.cache.PushPersona(evt.SteamID, evt.Persona)

	if !c.connector.config.BridgePresence || evt.Persona == nil {
		return
	}
	if evt.SteamID == c.SteamID() {
		return
	}

	user := puppet.RemoteUser{
		PuppetID:  c.puppetID,
		UserID:    MakeUserID(evt.SteamID),
		Name:      evt.Persona.PlayerName,
		AvatarURL: evt.Persona.AvatarURLMedium,
	}
	if err := c.bridge.SetUserPresence(ctx, user, personaStateToPresence(evt.Persona.PersonaState)); err != nil {
		c.log.Warn().Err(err).Str("steam_id", evt.SteamID.String()).Msg("Failed to set presence")
	}

	status := c.gameStatus(ctx, evt.Persona)
	if err := c.bridge.SetUserStatus(ctx, user, status); err != nil {
		c.log.Warn().Err(err).Str("steam_id", evt.SteamID.String()).Msg("Failed to set status")
	}
}

// gameStatus derives the free-text activity line from the persona's game
// fields, preferring the product catalog name over the pushed one.
func (c *Client) gameStatus(ctx context.Context, persona *steamapi.Persona) string {
	name := persona.GameName
	if persona.GameID != 0 {
		if product, err := c.cache.GetProduct(ctx, persona.GameID); err == nil {
			name = product.Name
		} else {
			c.log.Debug().Err(err).Uint32("app_id", persona.GameID).Msg("Falling back to pushed game name")
		}
	}
	if name == "" {
		return ""
	}
	return "Playing " + name
}

// personaStateToPresence collapses the network's persona states down to the
// three-valued presence model.
func personaStateToPresence(state steamapi.PersonaState) event.Presence {
	switch state {
	case steamapi.PersonaStateBusy, steamapi.PersonaStateAway, steamapi.PersonaStateSnooze:
		return event.PresenceUnavailable
	case steamapi.PersonaStateOnline, steamapi.PersonaStateLookingToPlay, steamapi.PersonaStateLookingToTrade:
		return event.PresenceOnline
	default:
		return event.PresenceOffline
	}
}

// handleLoginKey persists a rotated credential blob. Persistence runs off the
// event loop so it never blocks message delivery.
func (c *Client) handleLoginKey(ctx context.Context, evt steamapi.LoginKeyEvent) {
	c.log.Info().Msg("Received new login key")
	c.mu.Lock()
	c.data.LoginKey = evt.LoginKey
	data := *c.data
	c.mu.Unlock()

	go func() {
		if err := c.bridge.SetPuppetData(ctx, c.puppetID, &data); err != nil {
			c.log.Error().Err(err).Msg("Failed to persist rotated login key")
		}
	}()
}

func (c *Client) handleWebSession(evt steamapi.WebSessionEvent) {
	c.log.Info().Str("session_id", evt.SessionID).Msg("Web session established")
	c.web.SetCookies(evt.Cookies)
	c.flushDeferred()
}

// handleError reports the failure and leaves the session registered but
// inert until explicitly re-linked.
func (c *Client) handleError(ctx context.Context, evt steamapi.ErrorEvent) {
	c.log.Error().Err(evt.Err).Msg("Connection error")
	c.sendStatus(ctx, fmt.Sprintf("**disconnected!**: failed to connect. %v", evt.Err))
}

// handleDisconnected re-establishes an expired logon session once with the
// stored credentials; a second disconnect leaves the session inert.
func (c *Client) handleDisconnected(ctx context.Context, evt steamapi.DisconnectedEvent) {
	c.log.Warn().Str("reason", evt.Reason).Msg("Disconnected")
	c.mu.Lock()
	alreadyTried := c.reconnected
	c.reconnected = true
	c.mu.Unlock()
	if alreadyTried {
		c.sendStatus(ctx, fmt.Sprintf("**disconnected!**: %s", evt.Reason))
		return
	}
	c.log.Info().Msg("Reconnecting with stored credentials")
	go func() {
		if err := c.client.LogOn(ctx, c.credentials()); err != nil {
			c.log.Error().Err(err).Msg("Reconnect failed")
			c.sendStatus(ctx, fmt.Sprintf("**disconnected!**: failed to connect. %v", err))
		}
	}()
}

func (c *Client) handleFriendMessage(ctx context.Context, evt steamapi.FriendMessageEvent) {
	eventID := MakeEventID(evt.ServerTimestamp, evt.Ordinal)
	if evt.Echo && c.wasSentEvent(eventID) {
		// Echo of a message this session delivered itself.
		return
	}

	segments, err := c.conv.Normalize(ctx, &msgconv.Message{
		PlainText: evt.MessageNoBBCode,
		Nodes:     evt.BBCodeParsed,
		LocalEcho: evt.Echo,
	})
	if err != nil {
		c.log.Error().Err(err).Str("event_id", eventID).Msg("Failed to normalize friend message")
		return
	}

	if evt.Echo && c.consumePendingImages(segments) {
		c.log.Debug().Str("event_id", eventID).Msg("Suppressed echo of outbound image")
		return
	}

	sender := evt.FriendSteamID
	if evt.Echo {
		sender = c.SteamID()
	}
	params, err := c.sendParams(ctx, puppet.RemoteRoom{
		PuppetID: c.puppetID,
		RoomID:   MakeDirectRoomID(evt.FriendSteamID),
		IsDirect: true,
	}, sender, eventID)
	if err != nil {
		c.log.Error().Err(err).Str("event_id", eventID).Msg("Failed to build send params")
		return
	}

	c.deliverSegments(ctx, params, segments)
}

func (c *Client) handleChatMessage(ctx context.Context, evt steamapi.ChatMessageEvent) {
	eventID := MakeEventID(evt.ServerTimestamp, evt.Ordinal)

	segments, err := c.conv.Normalize(ctx, &msgconv.Message{
		PlainText: evt.MessageNoBBCode,
		Nodes:     evt.BBCodeParsed,
	})
	if err != nil {
		c.log.Error().Err(err).Str("event_id", eventID).Msg("Failed to normalize chat message")
		return
	}

	params, err := c.sendParams(ctx, puppet.RemoteRoom{
		PuppetID: c.puppetID,
		RoomID:   MakeGroupRoomID(evt.GroupID, evt.ChatID),
		Name:     evt.ChatName,
	}, evt.SenderSteamID, eventID)
	if err != nil {
		c.log.Error().Err(err).Str("event_id", eventID).Msg("Failed to build send params")
		return
	}

	c.deliverSegments(ctx, params, segments)
}

func (c *Client) handleFriendTyping(ctx context.Context, evt steamapi.FriendTypingEvent) {
	params := &puppet.ReceiveParams{
		Room: puppet.RemoteRoom{
			PuppetID: c.puppetID,
			RoomID:   MakeDirectRoomID(evt.FriendSteamID),
			IsDirect: true,
		},
		User: puppet.RemoteUser{
			PuppetID: c.puppetID,
			UserID:   MakeUserID(evt.FriendSteamID),
		},
	}
	if err := c.bridge.SetUserTyping(ctx, params, true); err != nil {
		c.log.Warn().Err(err).Msg("Failed to bridge typing signal")
	}
}

// consumePendingImages reports whether any image segment matches a pending
// outbound reference, consuming it. A match means the whole event is the echo
// of an image this session sent through the web transport.
func (c *Client) consumePendingImages(segments []msgconv.Segment) bool {
	for _, seg := range segments {
		img, ok := seg.(msgconv.ImageSegment)
		if !ok || img.URL == "" {
			continue
		}
		if c.echo.ConsumeIfPending(img.URL) {
			return true
		}
	}
	return false
}

// sendParams builds the destination descriptor for one inbound event,
// resolving the sender's persona for name and avatar.
func (c *Client) sendParams(ctx context.Context, room puppet.RemoteRoom, sender steamapi.SteamID, eventID string) (*puppet.ReceiveParams, error) {
	persona, err := c.cache.GetPersona(ctx, sender)
	if err != nil {
		return nil, err
	}
	return &puppet.ReceiveParams{
		Room: room,
		User: puppet.RemoteUser{
			PuppetID:  c.puppetID,
			UserID:    MakeUserID(sender),
			Name:      persona.PlayerName,
			AvatarURL: persona.AvatarURLMedium,
		},
		EventID: eventID,
	}, nil
}

// deliverSegments dispatches normalized segments to the bridge in order.
func (c *Client) deliverSegments(ctx context.Context, params *puppet.ReceiveParams, segments []msgconv.Segment) {
	for _, seg := range segments {
		var err error
		switch s := seg.(type) {
		case msgconv.TextSegment:
			err = c.bridge.SendMessage(ctx, params, &puppet.MessageEvent{
				EventID:       params.EventID,
				Body:          s.Body,
				FormattedBody: s.FormattedBody,
			})
		case msgconv.ImageSegment:
			err = c.bridge.SendImage(ctx, params, &puppet.FileEvent{
				EventID: params.EventID,
				URL:     s.URL,
				Data:    s.Data,
			})
		}
		if err != nil {
			c.log.Error().Err(err).Str("event_id", params.EventID).Msg("Failed to deliver segment")
			return
		}
	}
}
