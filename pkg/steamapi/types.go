// Copyright 2024-2026 Aiku AI

package steamapi

import (
	"fmt"
	"strconv"
	"time"
)

// SteamID is a 64-bit Steam identifier. The bit layout is
// universe (8) | account type (4) | instance (20) | account ID (32).
type SteamID uint64

const (
	universeShift    = 56
	accountTypeShift = 52
	instanceShift    = 32

	accountTypeIndividual = 1
	maxUniverse           = 5
	maxAccountType        = 10
	maxDesktopInstance    = 4
)

// ParseSteamID parses a decimal SteamID64 string. The result may still be
// structurally invalid; check IsValid.
func ParseSteamID(s string) (SteamID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid steam id %q: %w", s, err)
	}
	return SteamID(v), nil
}

func (id SteamID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Universe returns the universe field (1 = public).
func (id SteamID) Universe() uint8 {
	return uint8(id >> universeShift)
}

// AccountType returns the account type field (1 = individual).
func (id SteamID) AccountType() uint8 {
	return uint8(id>>accountTypeShift) & 0xf
}

// Instance returns the instance field.
func (id SteamID) Instance() uint32 {
	return uint32(id>>instanceShift) & 0xfffff
}

// AccountID returns the low 32-bit account number.
func (id SteamID) AccountID() uint32 {
	return uint32(id)
}

// IsValid reports whether the id is structurally valid: known universe and
// account type, non-zero account number, and a sane instance for individual
// accounts. A digit string that merely parses does not qualify.
func (id SteamID) IsValid() bool {
	u := id.Universe()
	if u == 0 || u > maxUniverse {
		return false
	}
	t := id.AccountType()
	if t == 0 || t > maxAccountType {
		return false
	}
	if id.AccountID() == 0 {
		return false
	}
	if t == accountTypeIndividual && id.Instance() > maxDesktopInstance {
		return false
	}
	return true
}

// PersonaState is the online state reported for a Steam user.
type PersonaState int

const (
	PersonaStateOffline PersonaState = iota
	PersonaStateOnline
	PersonaStateBusy
	PersonaStateAway
	PersonaStateSnooze
	PersonaStateLookingToTrade
	PersonaStateLookingToPlay
	PersonaStateInvisible
)

// Persona is an identity snapshot for one Steam user. Fields mirror what the
// network pushes; unknown fields are left zero.
type Persona struct {
	PlayerName      string
	PersonaState    PersonaState
	GameID          uint32
	GameName        string
	AvatarURLIcon   string
	AvatarURLMedium string
	AvatarURLFull   string
	LastLogoff      time.Time
	LastLogon       time.Time
}

// ProductInfo is the metadata of a playable application.
type ProductInfo struct {
	AppID        uint32
	Name         string
	Type         string
	ReleaseState string
	Developer    string
	Publisher    string
}

// GroupInfo describes a multi-room chat group.
type GroupInfo struct {
	GroupID       string
	Name          string
	DefaultChatID string
	ChatRooms     []ChatRoom
}

// ChatRoom is one room within a chat group.
type ChatRoom struct {
	ChatID string
	Name   string
}

// Mentions carries the mention flags of a group chat message.
type Mentions struct {
	MentionAll      bool
	MentionHere     bool
	MentionSteamIDs []SteamID
}
