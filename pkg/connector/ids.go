// Copyright 2024-2026 Aiku AI

package connector

import (
	"fmt"
	"strings"
	"time"

	"github.com/aiku/mx-puppet-steam/pkg/steamapi"
)

// Room identifiers come in two shapes: a bare SteamID64 for a one-to-one
// conversation, and "group-<groupID>-<chatID>" for one room of a multi-room
// chat group. The literal prefix plus digit-only bodies keep the two shapes
// from ever colliding.
const groupRoomPrefix = "group-"

// RoomKind classifies a decoded room identifier.
type RoomKind int

const (
	RoomInvalid RoomKind = iota
	RoomDirect
	RoomGroup
)

// ParsedRoom is the result of decoding a room identifier. Kind is RoomInvalid
// for anything that matches neither shape; that is a recoverable result, not
// a fault.
type ParsedRoom struct {
	Kind    RoomKind
	Friend  steamapi.SteamID
	GroupID string
	ChatID  string
}

// MakeDirectRoomID creates a room identifier for a one-to-one conversation.
func MakeDirectRoomID(friend steamapi.SteamID) string {
	return friend.String()
}

// MakeGroupRoomID creates a room identifier for one room of a chat group.
func MakeGroupRoomID(groupID, chatID string) string {
	return groupRoomPrefix + groupID + "-" + chatID
}

// ParseRoomID decodes a room identifier. Decoding is total: every string maps
// to exactly one shape or to RoomInvalid. Direct ids must be structurally
// valid SteamID64s; digit-only strings that fail the bit-field check are
// invalid too.
func ParseRoomID(roomID string) ParsedRoom {
	if rest, ok := strings.CutPrefix(roomID, groupRoomPrefix); ok {
		groupID, chatID, found := strings.Cut(rest, "-")
		if !found || !isDigits(groupID) || !isDigits(chatID) {
			return ParsedRoom{Kind: RoomInvalid}
		}
		return ParsedRoom{Kind: RoomGroup, GroupID: groupID, ChatID: chatID}
	}
	if !isDigits(roomID) {
		return ParsedRoom{Kind: RoomInvalid}
	}
	id, err := steamapi.ParseSteamID(roomID)
	if err != nil || !id.IsValid() {
		return ParsedRoom{Kind: RoomInvalid}
	}
	return ParsedRoom{Kind: RoomDirect, Friend: id}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MakeEventID creates the stable remote event id for a delivered message.
func MakeEventID(serverTimestamp time.Time, ordinal int) string {
	return fmt.Sprintf("%s::%d", serverTimestamp.UTC().Format(time.RFC3339), ordinal)
}

// MakeUserID creates a remote user id from a SteamID.
func MakeUserID(id steamapi.SteamID) string {
	return id.String()
}
