// Copyright 2024-2026 Aiku AI

// Package msgconv converts Steam chat messages into ordered protocol-neutral
// segments. A message with no parsed markup becomes a single text segment;
// markup nodes are resolved per tag kind and adjacent text runs are merged.
// Normalization is all-or-nothing per message: a failing asset or metadata
// lookup fails the whole message without touching the session.
package msgconv

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strconv"

	"maunium.net/go/mautrix/id"

	"github.com/aiku/mx-puppet-steam/pkg/steamapi"
)

// Segment is one atomic deliverable unit of a normalized message.
type Segment interface {
	segment()
}

// TextSegment carries a plain body and an optional HTML-rendered body.
type TextSegment struct {
	Body          string
	FormattedBody string
}

// ImageSegment references an image by remote URL or inline payload.
type ImageSegment struct {
	URL  string
	Data []byte
}

func (TextSegment) segment()  {}
func (ImageSegment) segment() {}

// NodeKind classifies a markup node tag. The set is closed; anything
// unrecognized is KindOther.
type NodeKind int

const (
	KindOther NodeKind = iota
	KindText
	KindImage
	KindEmoticon
	KindSticker
	KindGameInvite
)

func classifyTag(tag string) NodeKind {
	switch tag {
	case "text":
		return KindText
	case "img":
		return KindImage
	case "emoticon":
		return KindEmoticon
	case "sticker":
		return KindSticker
	case "gameinvite":
		return KindGameInvite
	default:
		return KindOther
	}
}

// Resolver supplies the identity and asset lookups segment resolution needs.
// The session's metadata cache and emote cache satisfy it.
type Resolver interface {
	// ResolveEmoticon returns the content URI of the named emoticon asset,
	// fetching and persisting it on first use.
	ResolveEmoticon(ctx context.Context, name string) (id.ContentURIString, error)
	// ResolveProduct returns metadata for the given app id.
	ResolveProduct(ctx context.Context, appID uint32) (*steamapi.ProductInfo, error)
}

// Message is one inbound chat message to normalize. Nodes is nil when the
// network did not supply a parsed markup tree.
type Message struct {
	PlainText string
	Nodes     []steamapi.BBCodeField
	LocalEcho bool
}

// Converter normalizes messages for one session.
type Converter struct {
	Resolver       Resolver
	HTTP           *http.Client
	StickerBaseURL string
	EmoticonHeight int
	Sticker        StickerOptions
}

// Normalize turns one inbound message into a non-empty ordered segment list.
// An all-suppressed input degenerates to a single empty text segment.
func (c *Converter) Normalize(ctx context.Context, msg *Message) ([]Segment, error) {
	if msg.Nodes == nil {
		return []Segment{TextSegment{Body: msg.PlainText}}, nil
	}

	var segments []Segment
	for _, field := range msg.Nodes {
		switch f := field.(type) {
		case steamapi.BBCodeText:
			segments = append(segments, TextSegment{Body: string(f)})
		case *steamapi.BBCodeNode:
			seg, err := c.resolveNode(ctx, f, msg)
			if err != nil {
				return nil, err
			}
			if seg == nil {
				// Unknown tag: the whole message falls back to plain text.
				return []Segment{TextSegment{Body: msg.PlainText}}, nil
			}
			segments = append(segments, seg)
		}
	}

	return mergeSegments(segments), nil
}

// resolveNode converts one markup node. A nil segment with nil error requests
// the whole-message plain-text fallback.
func (c *Converter) resolveNode(ctx context.Context, node *steamapi.BBCodeNode, msg *Message) (Segment, error) {
	switch classifyTag(node.Tag) {
	case KindText:
		return TextSegment{Body: node.Text()}, nil

	case KindImage:
		return ImageSegment{URL: node.Attrs["src"]}, nil

	case KindEmoticon:
		name := node.Text()
		uri, err := c.Resolver.ResolveEmoticon(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve emoticon %q: %w", name, err)
		}
		alt := html.EscapeString(":" + name + ":")
		return TextSegment{
			Body: ":" + name + ":",
			FormattedBody: `<img alt="` + alt + `" title="` + alt +
				`" height="` + strconv.Itoa(c.EmoticonHeight) +
				`" src="` + string(uri) + `" data-mx-emoticon />`,
		}, nil

	case KindSticker:
		data, err := c.convertSticker(ctx, node.Attrs["type"])
		if err != nil {
			return nil, fmt.Errorf("failed to convert sticker: %w", err)
		}
		return ImageSegment{Data: data}, nil

	case KindGameInvite:
		appID, err := strconv.ParseUint(node.Attrs["appid"], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid gameinvite appid %q: %w", node.Attrs["appid"], err)
		}
		product, err := c.Resolver.ResolveProduct(ctx, uint32(appID))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve product %d: %w", appID, err)
		}
		if msg.LocalEcho {
			// Suppressed, but still occupies its slot in the sequence.
			return TextSegment{}, nil
		}
		return TextSegment{Body: "You were invited to play " + product.Name}, nil

	default:
		return nil, nil
	}
}

// mergeSegments drops empty text segments that are not the sole segment and
// merges runs of adjacent text segments, joining bodies with a single space.
// A formatted body defaults to the plain body before merging so formatting
// already present on a neighbor is never dropped. The result is never empty.
func mergeSegments(segments []Segment) []Segment {
	var merged []Segment
	for _, seg := range segments {
		if t, ok := seg.(TextSegment); ok && t.Body == "" {
			continue
		}
		if len(merged) > 0 {
			if last, ok := merged[len(merged)-1].(TextSegment); ok {
				if cur, ok2 := seg.(TextSegment); ok2 {
					if last.FormattedBody == "" {
						last.FormattedBody = last.Body
					}
					if cur.FormattedBody == "" {
						cur.FormattedBody = cur.Body
					}
					last.Body += " " + cur.Body
					last.FormattedBody += " " + cur.FormattedBody
					merged[len(merged)-1] = last
					continue
				}
			}
		}
		merged = append(merged, seg)
	}
	if len(merged) == 0 {
		return []Segment{TextSegment{}}
	}
	return merged
}
