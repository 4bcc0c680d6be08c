// Copyright 2024-2026 Aiku AI

package connector

import (
	_ "embed"
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"time"

	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"

	"github.com/aiku/mx-puppet-steam/pkg/connector/msgconv"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the Steam connector configuration. The sticker transcode
// constants are surfaced here rather than hard-coded; the defaults match the
// community renderer.
type Config struct {
	// EmoticonBaseURL is the CDN prefix for emoticon assets.
	EmoticonBaseURL string `yaml:"emoticon_base_url"`
	// StickerBaseURL is the CDN prefix for sticker economy assets.
	StickerBaseURL string `yaml:"sticker_base_url"`
	// EmoticonHeight is the inline display height for rendered emoticons.
	EmoticonHeight int `yaml:"emoticon_height"`
	// StickerAlphaThreshold keys out pixels whose alpha falls below it.
	StickerAlphaThreshold int `yaml:"sticker_alpha_threshold"`
	// StickerTransparencyKey is the GIF transparent key color, hex RGB.
	StickerTransparencyKey string `yaml:"sticker_transparency_key"`
	// WebSessionTimeoutSeconds bounds how long deferred actions wait for the
	// secondary web session before firing with an error.
	WebSessionTimeoutSeconds int `yaml:"web_session_timeout_seconds"`
	TypingTimeout            int `yaml:"typing_timeout"`
	// BridgePresence disables presence/status bridging when false.
	BridgePresence bool `yaml:"bridge_presence"`

	transparencyKey color.NRGBA `yaml:"-"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess fills defaults and parses the transparency key.
func (c *Config) PostProcess() error {
	if c.EmoticonBaseURL == "" {
		c.EmoticonBaseURL = "https://community.cloudflare.steamstatic.com/economy/emoticonlarge"
	}
	if c.StickerBaseURL == "" {
		c.StickerBaseURL = "https://community.cloudflare.steamstatic.com/economy/sticker"
	}
	if c.EmoticonHeight <= 0 {
		c.EmoticonHeight = 32
	}
	if c.StickerAlphaThreshold <= 0 {
		c.StickerAlphaThreshold = 200
	}
	if c.StickerAlphaThreshold > 255 {
		return fmt.Errorf("sticker_alpha_threshold must be <= 255, got %d", c.StickerAlphaThreshold)
	}
	if c.StickerTransparencyKey == "" {
		c.StickerTransparencyKey = "#FF00FF"
	}
	key, err := parseHexColor(c.StickerTransparencyKey)
	if err != nil {
		return fmt.Errorf("failed to parse sticker_transparency_key: %w", err)
	}
	c.transparencyKey = key
	if c.WebSessionTimeoutSeconds <= 0 {
		c.WebSessionTimeoutSeconds = 10
	}
	if c.TypingTimeout <= 0 {
		c.TypingTimeout = 5
	}
	return nil
}

// WebSessionTimeout returns the deferred-action timeout as a duration.
func (c *Config) WebSessionTimeout() time.Duration {
	return time.Duration(c.WebSessionTimeoutSeconds) * time.Second
}

// StickerOptions returns the transcode options derived from the config.
func (c *Config) StickerOptions() msgconv.StickerOptions {
	return msgconv.StickerOptions{
		AlphaThreshold:  uint8(c.StickerAlphaThreshold),
		TransparencyKey: c.transparencyKey,
	}
}

func parseHexColor(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) != 6 {
		return color.NRGBA{}, fmt.Errorf("want 6 hex digits, got %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.NRGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 0xFF,
	}, nil
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "emoticon_base_url")
	helper.Copy(up.Str, "sticker_base_url")
	helper.Copy(up.Int, "emoticon_height")
	helper.Copy(up.Int, "sticker_alpha_threshold")
	helper.Copy(up.Str, "sticker_transparency_key")
	helper.Copy(up.Int, "web_session_timeout_seconds")
	helper.Copy(up.Int, "typing_timeout")
	helper.Copy(up.Bool, "bridge_presence")
}

// GetConfig returns the example config and upgrader for the framework.
func (sc *Connector) GetConfig() (example string, data any, upgrader up.Upgrader) {
	return ExampleConfig, &sc.config, &up.StructUpgrader{
		SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
		Blocks:         nil,
		Base:           ExampleConfig,
	}
}
