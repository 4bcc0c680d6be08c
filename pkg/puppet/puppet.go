// Copyright 2024-2026 Aiku AI

// Package puppet defines the contracts of the external Matrix bridging
// framework. The core invokes these; it never implements them. Presence and
// content references use mautrix types so a mautrix-based framework can
// satisfy the interfaces directly.
package puppet

import (
	"context"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mx-puppet-steam/pkg/steamapi"
)

// Data is the persisted credential blob for one linked account.
type Data struct {
	AccountName string `json:"accountName"`
	LoginKey    string `json:"loginKey,omitempty"`
	ScreenName  string `json:"screenName,omitempty"`
}

// Credentials converts the stored blob into logon credentials.
func (d *Data) Credentials() steamapi.Credentials {
	return steamapi.Credentials{
		AccountName:      d.AccountName,
		LoginKey:         d.LoginKey,
		RememberPassword: true,
	}
}

// RemoteRoom identifies a bridged room on the Steam side.
type RemoteRoom struct {
	PuppetID int64
	RoomID   string
	IsDirect bool
	Name     string
}

// RemoteUser identifies a bridged Steam user.
type RemoteUser struct {
	PuppetID  int64
	UserID    string
	Name      string
	AvatarURL string
}

// ReceiveParams locates an inbound event: the room it belongs to, the sending
// user, and a stable remote event id for deduplication.
type ReceiveParams struct {
	Room    RemoteRoom
	User    RemoteUser
	EventID string
}

// MessageEvent is a text payload in either direction.
type MessageEvent struct {
	EventID       string
	Body          string
	FormattedBody string
}

// FileEvent is an image payload in either direction. Exactly one of URL,
// MXC or Data is set.
type FileEvent struct {
	EventID  string
	Filename string
	URL      string
	MXC      id.ContentURIString
	Data     []byte
}

// Bridge is the federated-protocol collaborator. All methods are
// fault-returning and safe to call from any session goroutine.
type Bridge interface {
	// SetUserID reports the resolved canonical remote identity for a linked
	// account once login completes.
	SetUserID(ctx context.Context, puppetID int64, userID string) error
	// SendStatusMessage posts a human-readable notice on the account's
	// administrative channel.
	SendStatusMessage(ctx context.Context, puppetID int64, msg string) error
	// SetPuppetData persists a rotated credential blob.
	SetPuppetData(ctx context.Context, puppetID int64, data *Data) error
	SetUserPresence(ctx context.Context, user RemoteUser, presence event.Presence) error
	SetUserStatus(ctx context.Context, user RemoteUser, status string) error
	SendMessage(ctx context.Context, params *ReceiveParams, msg *MessageEvent) error
	SendImage(ctx context.Context, params *ReceiveParams, file *FileEvent) error
	SetUserTyping(ctx context.Context, params *ReceiveParams, typing bool) error
	// UploadContent stores binary content with the homeserver and returns its
	// content URI.
	UploadContent(ctx context.Context, data []byte, mimeType string) (id.ContentURIString, error)
	EventSync() EventSync
	EmoteSync() EmoteSync
}

// EventSync is the framework's append-only per-room event id ledger.
type EventSync interface {
	Insert(ctx context.Context, room RemoteRoom, matrixEventID, remoteEventID string) error
}

// EmoteSync memoizes uploaded emote assets keyed by emote id.
type EmoteSync interface {
	Get(ctx context.Context, emoteID string) (id.ContentURIString, bool, error)
	Set(ctx context.Context, emoteID string, uri id.ContentURIString) error
}
