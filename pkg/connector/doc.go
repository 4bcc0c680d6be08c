// Copyright 2024-2026 Aiku AI

// Package connector implements a Matrix-Steam puppeting bridge core: session
// management for linked Steam accounts plus normalization of Steam chat
// messages into deliverable Matrix content.
//
// # Core Types
//
// [Connector] is the session registry. Sessions exist only between
// LinkAccount and UnlinkAccount, at most one per account; re-linking tears
// the old session down completely before the new one logs on. All outbound
// Matrix traffic routes through the registry to the session owning the room.
//
// [Client] is one live account session: the primary Steam connection, the
// secondary web session used for image uploads, and the metadata caches owned
// by the session. Inbound connection events are processed on a single loop in
// connection order.
//
// The web session arrives asynchronously after logon. Actions that need it
// (image sends) queue through [Client.runWhenWebSession] and flush in FIFO
// order when the cookies arrive, fail after a configured timeout, or are
// cancelled by unlink.
//
// # Echo Suppression
//
// Messages the account sends from another client arrive back as echoes. Two
// mechanisms keep them from looping: event ids recorded at send time drop
// echoes of messages this session delivered itself, and [EchoSuppressor]
// drops the network's echo of images sent through the web transport by
// matching the community URL.
//
// # Sub-packages
//
//   - msgconv normalizes Steam message markup (emoticons, stickers, game
//     invites, images) into ordered text and image segments.
package connector
