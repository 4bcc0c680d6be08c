// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aiku/mx-puppet-steam/pkg/puppet"
	"github.com/aiku/mx-puppet-steam/pkg/steamapi"
)

// ErrUnknownRoom is returned when a room identifier decodes to neither a
// direct conversation nor a chat group room.
var ErrUnknownRoom = errors.New("unknown room id")

// HandleMatrixMessage sends an outbound text message and records the
// server-assigned event id so the echo is not re-delivered.
func (c *Client) HandleMatrixMessage(ctx context.Context, room puppet.RemoteRoom, data *puppet.MessageEvent) error {
	parsed := ParseRoomID(room.RoomID)
	var (
		sent *steamapi.SentMessage
		err  error
	)
	switch parsed.Kind {
	case RoomDirect:
		sent, err = c.client.Chat().SendFriendMessage(ctx, parsed.Friend, data.Body)
	case RoomGroup:
		sent, err = c.client.Chat().SendChatMessage(ctx, parsed.GroupID, parsed.ChatID, data.Body)
	default:
		c.log.Warn().Str("room_id", room.RoomID).Msg("Dropping message for unknown room")
		c.sendStatus(ctx, fmt.Sprintf("cannot send to unknown room %s", room.RoomID))
		return ErrUnknownRoom
	}
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	remoteID := MakeEventID(sent.ServerTimestamp, sent.Ordinal)
	c.recordSentEvent(remoteID)
	if err := c.bridge.EventSync().Insert(ctx, room, data.EventID, remoteID); err != nil {
		c.log.Warn().Err(err).Str("event_id", remoteID).Msg("Failed to record event id mapping")
	}
	return nil
}

// HandleMatrixImage sends an outbound image through the web transport. Images
// can only go to one-to-one conversations; the transfer is deferred until the
// web session is available and the resulting community URL is marked so the
// network's echo of it is suppressed.
func (c *Client) HandleMatrixImage(ctx context.Context, room puppet.RemoteRoom, data *puppet.FileEvent) error {
	parsed := ParseRoomID(room.RoomID)
	if parsed.Kind != RoomDirect {
		c.sendStatus(ctx, "images can only be sent to friends")
		return nil
	}

	payload := data.Data
	if len(payload) == 0 && data.URL != "" {
		var err error
		payload, err = c.download(ctx, data.URL)
		if err != nil {
			return fmt.Errorf("failed to fetch image content: %w", err)
		}
	}
	if len(payload) == 0 {
		return errors.New("image event has no content")
	}

	friend := parsed.Friend
	matrixEventID := data.EventID
	bgCtx := context.WithoutCancel(ctx)
	c.runWhenWebSession(func(err error) {
		if err != nil {
			c.log.Error().Err(err).Msg("Web session unavailable for image send")
			c.sendStatus(bgCtx, fmt.Sprintf("failed to send image: %v", err))
			return
		}
		echoURL, err := c.web.SendImageToUser(bgCtx, friend, payload)
		if err != nil {
			c.log.Error().Err(err).Msg("Failed to send image")
			c.sendStatus(bgCtx, fmt.Sprintf("failed to send image: %v", err))
			return
		}
		c.echo.MarkPending(echoURL)
		if err := c.bridge.EventSync().Insert(bgCtx, room, matrixEventID, echoURL); err != nil {
			c.log.Warn().Err(err).Str("echo_url", echoURL).Msg("Failed to record event id mapping")
		}
	})
	return nil
}

// HandleMatrixTyping forwards a started-typing signal. The network has no
// stop-typing message, so typing=false is a no-op.
func (c *Client) HandleMatrixTyping(ctx context.Context, room puppet.RemoteRoom, typing bool) error {
	if !typing {
		return nil
	}
	parsed := ParseRoomID(room.RoomID)
	if parsed.Kind != RoomDirect {
		return nil
	}
	return c.client.Chat().SendFriendTyping(ctx, parsed.Friend)
}

// HandleMatrixReadReceipt acknowledges all messages in the room up to the
// given server timestamp.
func (c *Client) HandleMatrixReadReceipt(ctx context.Context, room puppet.RemoteRoom, upTo time.Time) error {
	parsed := ParseRoomID(room.RoomID)
	switch parsed.Kind {
	case RoomDirect:
		return c.client.Chat().AckFriendMessage(ctx, parsed.Friend, upTo)
	case RoomGroup:
		return c.client.Chat().AckChatMessage(ctx, parsed.GroupID, parsed.ChatID, upTo)
	default:
		return ErrUnknownRoom
	}
}

// ResolveRoom answers the framework's room-creation hook with metadata for a
// decoded room identifier.
func (c *Client) ResolveRoom(ctx context.Context, room puppet.RemoteRoom) (*puppet.RemoteRoom, error) {
	parsed := ParseRoomID(room.RoomID)
	switch parsed.Kind {
	case RoomDirect:
		return &puppet.RemoteRoom{
			PuppetID: c.puppetID,
			RoomID:   room.RoomID,
			IsDirect: true,
		}, nil
	case RoomGroup:
		groups, err := c.client.Chat().GetGroups(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list chat groups: %w", err)
		}
		for _, group := range groups {
			if group.GroupID != parsed.GroupID {
				continue
			}
			for _, chat := range group.ChatRooms {
				if chat.ChatID == parsed.ChatID {
					name := chat.Name
					if name == "" {
						name = group.Name
					}
					return &puppet.RemoteRoom{
						PuppetID: c.puppetID,
						RoomID:   room.RoomID,
						Name:     name,
					}, nil
				}
			}
		}
		c.sendStatus(ctx, fmt.Sprintf("cannot resolve chat group room %s", room.RoomID))
		return nil, fmt.Errorf("chat group room %s not found", room.RoomID)
	default:
		c.sendStatus(ctx, fmt.Sprintf("unsupported room %s", room.RoomID))
		return nil, ErrUnknownRoom
	}
}

// ResolveUser answers the framework's user-creation hook with persona
// metadata for a remote user id.
func (c *Client) ResolveUser(ctx context.Context, user puppet.RemoteUser) (*puppet.RemoteUser, error) {
	steamID, err := steamapi.ParseSteamID(user.UserID)
	if err != nil || !steamID.IsValid() {
		return nil, fmt.Errorf("invalid user id %q", user.UserID)
	}
	persona, err := c.cache.GetPersona(ctx, steamID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve persona: %w", err)
	}
	return &puppet.RemoteUser{
		PuppetID:  c.puppetID,
		UserID:    user.UserID,
		Name:      persona.PlayerName,
		AvatarURL: persona.AvatarURLMedium,
	}, nil
}

func (c *Client) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	client := c.conv.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
