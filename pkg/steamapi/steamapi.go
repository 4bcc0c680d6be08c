// Copyright 2024-2026 Aiku AI

// Package steamapi defines the contracts for the Steam clients the bridge
// core consumes. The wire protocol itself is not implemented here; a real
// client (or a test fake) satisfies these interfaces and feeds events into
// the per-session event channel.
package steamapi

import (
	"context"
	"time"
)

// Credentials is the mutable credential blob for one account. LoginKey is
// rotated by the server after login; the bridge persists the updated blob.
type Credentials struct {
	AccountName      string `json:"accountName"`
	Password         string `json:"password,omitempty"`
	LoginKey         string `json:"loginKey,omitempty"`
	RememberPassword bool   `json:"rememberPassword"`
}

// Client is one live Steam connection. LogOn is asynchronous: it returns once
// the attempt is started and the outcome arrives as a LoggedOnEvent or
// ErrorEvent on Events. All events for one client are emitted in connection
// order.
type Client interface {
	LogOn(ctx context.Context, creds Credentials) error
	LogOff()
	// Events delivers connection events until LogOff; the channel is closed
	// when the connection is torn down.
	Events() <-chan Event
	// SteamID returns the canonical identity, zero before logon completes.
	SteamID() SteamID
	GetPersonas(ctx context.Context, ids []SteamID) (map[SteamID]*Persona, error)
	GetProductInfo(ctx context.Context, appIDs []uint32) (map[uint32]*ProductInfo, error)
	SetPersona(ctx context.Context, state PersonaState) error
	// WebLogOn requests secondary web-session credentials; the cookies arrive
	// asynchronously as a WebSessionEvent.
	WebLogOn(ctx context.Context) error
	Chat() ChatAPI
}

// ChatAPI is the messaging surface of a Client.
type ChatAPI interface {
	SendFriendMessage(ctx context.Context, friend SteamID, message string) (*SentMessage, error)
	SendChatMessage(ctx context.Context, groupID, chatID, message string) (*SentMessage, error)
	SendFriendTyping(ctx context.Context, friend SteamID) error
	AckFriendMessage(ctx context.Context, friend SteamID, upTo time.Time) error
	AckChatMessage(ctx context.Context, groupID, chatID string, upTo time.Time) error
	GetGroups(ctx context.Context) ([]*GroupInfo, error)
}

// WebClient is the secondary web-session transport. It is unusable until
// SetCookies has been called with the cookies from a WebSessionEvent.
type WebClient interface {
	SetCookies(cookies []string)
	// SendImageToUser uploads an image to a friend chat and returns the
	// resulting community URL under which the network will echo it back.
	SendImageToUser(ctx context.Context, friend SteamID, data []byte) (string, error)
}

// SentMessage identifies a message accepted by the server.
type SentMessage struct {
	ServerTimestamp time.Time
	Ordinal         int
}

// Event is a connection event emitted by a Client.
type Event interface {
	steamEvent()
}

// LoggedOnEvent signals a completed logon.
type LoggedOnEvent struct {
	SteamID   SteamID
	VanityURL string
}

// UserEvent is an unsolicited persona snapshot push.
type UserEvent struct {
	SteamID SteamID
	Persona *Persona
}

// LoginKeyEvent carries a server-issued renewed login key.
type LoginKeyEvent struct {
	LoginKey string
}

// WebSessionEvent carries the cookies for the secondary web session.
type WebSessionEvent struct {
	SessionID string
	Cookies   []string
}

// ErrorEvent signals a fatal connection error; the connection is dead.
type ErrorEvent struct {
	Err error
}

// DisconnectedEvent signals a non-fatal disconnect, typically an expired
// logon session that can be re-established with the stored credentials.
type DisconnectedEvent struct {
	Reason string
}

// FriendMessageEvent is a one-to-one chat message. Echo marks a copy of a
// message the account itself sent from another client.
type FriendMessageEvent struct {
	FriendSteamID   SteamID
	Message         string
	MessageNoBBCode string
	BBCodeParsed    []BBCodeField
	ServerTimestamp time.Time
	Ordinal         int
	Echo            bool
	LowPriority     bool
}

// ChatMessageEvent is a message in a room of a multi-room chat group.
type ChatMessageEvent struct {
	GroupID         string
	ChatID          string
	ChatName        string
	SenderSteamID   SteamID
	Message         string
	MessageNoBBCode string
	BBCodeParsed    []BBCodeField
	ServerTimestamp time.Time
	Ordinal         int
	Mentions        *Mentions
}

// FriendTypingEvent signals that a friend started typing.
type FriendTypingEvent struct {
	FriendSteamID   SteamID
	ServerTimestamp time.Time
}

func (LoggedOnEvent) steamEvent()      {}
func (UserEvent) steamEvent()          {}
func (LoginKeyEvent) steamEvent()      {}
func (WebSessionEvent) steamEvent()    {}
func (ErrorEvent) steamEvent()         {}
func (DisconnectedEvent) steamEvent()  {}
func (FriendMessageEvent) steamEvent() {}
func (ChatMessageEvent) steamEvent()   {}
func (FriendTypingEvent) steamEvent()  {}
