// Copyright 2024-2026 Aiku AI

package steamapi

import (
	"strings"
)

// BBCodeField is one element of a parsed message: either literal text
// (BBCodeText) or a markup node (*BBCodeNode).
type BBCodeField interface {
	bbcodeField()
}

// BBCodeText is a literal text run between markup nodes.
type BBCodeText string

// BBCodeNode is one markup element with a tag, attributes and ordered child
// content. Depth is bounded by the input but not fixed.
type BBCodeNode struct {
	Tag     string
	Attrs   map[string]string
	Content []BBCodeField
}

func (BBCodeText) bbcodeField()  {}
func (*BBCodeNode) bbcodeField() {}

// Text returns the node's sole text content, or "" if the first child is not
// text. Emoticon nodes carry their name this way.
func (n *BBCodeNode) Text() string {
	if len(n.Content) == 0 {
		return ""
	}
	if t, ok := n.Content[0].(BBCodeText); ok {
		return string(t)
	}
	return ""
}

// ParseBBCode parses Steam chat markup of the form
// [tag attr="value"]content[/tag] into an ordered field sequence. Anything
// that does not form a well-terminated tag is kept as literal text, so
// parsing never fails. Returns nil for an empty message.
func ParseBBCode(s string) []BBCodeField {
	if s == "" {
		return nil
	}
	var fields []BBCodeField
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			fields = append(fields, BBCodeText(text.String()))
			text.Reset()
		}
	}

	for i := 0; i < len(s); {
		if s[i] != '[' {
			text.WriteByte(s[i])
			i++
			continue
		}
		node, next, ok := parseNode(s, i)
		if !ok {
			text.WriteByte(s[i])
			i++
			continue
		}
		flush()
		fields = append(fields, node)
		i = next
	}
	flush()
	return fields
}

// parseNode parses one complete [tag ...]...[/tag] element starting at the
// '[' at position i. Reports ok=false if the input is not a well-formed
// element, in which case the caller treats the bracket as literal text.
func parseNode(s string, i int) (*BBCodeNode, int, bool) {
	name, attrs, bodyStart, ok := parseOpenTag(s, i)
	if !ok {
		return nil, 0, false
	}
	closeTag := "[/" + name + "]"
	depth := 1
	j := bodyStart
	for j < len(s) {
		if strings.HasPrefix(s[j:], closeTag) {
			depth--
			if depth == 0 {
				inner := s[bodyStart:j]
				node := &BBCodeNode{Tag: name, Attrs: attrs}
				if inner != "" {
					node.Content = ParseBBCode(inner)
				}
				return node, j + len(closeTag), true
			}
			j += len(closeTag)
			continue
		}
		if n2, _, _, ok2 := parseOpenTag(s, j); ok2 && n2 == name {
			depth++
		}
		j++
	}
	return nil, 0, false
}

// parseOpenTag parses "[name key=value key2=\"value\"]" starting at the '['
// at position i and returns the tag name, attributes and the index just past
// the closing ']'.
func parseOpenTag(s string, i int) (name string, attrs map[string]string, next int, ok bool) {
	if i >= len(s) || s[i] != '[' {
		return "", nil, 0, false
	}
	j := i + 1
	for j < len(s) && isTagChar(s[j]) {
		j++
	}
	if j == i+1 {
		return "", nil, 0, false
	}
	name = s[i+1 : j]
	attrs = map[string]string{}
	for {
		for j < len(s) && s[j] == ' ' {
			j++
		}
		if j >= len(s) {
			return "", nil, 0, false
		}
		if s[j] == ']' {
			return name, attrs, j + 1, true
		}
		k := j
		for k < len(s) && isTagChar(s[k]) {
			k++
		}
		if k == j || k >= len(s) || s[k] != '=' {
			return "", nil, 0, false
		}
		key := s[j:k]
		k++
		var val string
		if k < len(s) && s[k] == '"' {
			end := strings.IndexByte(s[k+1:], '"')
			if end < 0 {
				return "", nil, 0, false
			}
			val = s[k+1 : k+1+end]
			k += end + 2
		} else {
			start := k
			for k < len(s) && s[k] != ' ' && s[k] != ']' {
				k++
			}
			val = s[start:k]
		}
		attrs[key] = val
		j = k
	}
}

func isTagChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
