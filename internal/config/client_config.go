package config

import (
	"errors"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultBaseURL             = "http://localhost:8080/api/v1"
	defaultPollInterval        = 3 * time.Second
	defaultRequestTimeout      = 10 * time.Second
	defaultNearBottomThreshold = 200
	defaultSwipeThreshold      = 120
	defaultFlickVelocity       = 800
	defaultSettleDelay         = 300 * time.Millisecond
)

// ChatConfig tunes the chat screen.
type ChatConfig struct {
	// NearBottomThreshold is the distance (in rendered units) from the end of
	// the list under which new messages auto-scroll the view.
	NearBottomThreshold float64 `toml:"near_bottom_threshold"`
}

// CardsConfig tunes the partner card stack gestures.
type CardsConfig struct {
	SwipeThreshold float64       `toml:"swipe_threshold"`
	FlickVelocity  float64       `toml:"flick_velocity"`
	SettleDelay    time.Duration `toml:"settle_delay"`
}

// LocationConfig is the position sent with discovery requests.
type LocationConfig struct {
	Lat float64 `toml:"lat"`
	Lon float64 `toml:"lon"`
}

// ClientConfig is the terminal client configuration. It is read from a TOML
// file and may be overridden by TAALMEET_* environment variables.
//
//	base_url = "http://localhost:8080/api/v1"
//	user_id = "anna"
//	poll_interval = "3s"
//
//	[cards]
//	swipe_threshold = 120
type ClientConfig struct {
	BaseURL        string         `toml:"base_url"`
	UserID         string         `toml:"user_id"`
	PollInterval   time.Duration  `toml:"poll_interval"`
	RequestTimeout time.Duration  `toml:"request_timeout"`
	Chat           ChatConfig     `toml:"chat"`
	Cards          CardsConfig    `toml:"cards"`
	Location       LocationConfig `toml:"location"`
}

// FixupAndValidate fills zero values with defaults and checks the result.
func (c *ClientConfig) FixupAndValidate() error {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.Chat.NearBottomThreshold == 0 {
		c.Chat.NearBottomThreshold = defaultNearBottomThreshold
	}
	if c.Cards.SwipeThreshold == 0 {
		c.Cards.SwipeThreshold = defaultSwipeThreshold
	}
	if c.Cards.FlickVelocity == 0 {
		c.Cards.FlickVelocity = defaultFlickVelocity
	}
	if c.Cards.SettleDelay == 0 {
		c.Cards.SettleDelay = defaultSettleDelay
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("config: base_url must be an absolute http(s) URL")
	}
	if strings.TrimSpace(c.UserID) == "" {
		return errors.New("config: user_id must not be empty")
	}
	if c.PollInterval < 0 || c.RequestTimeout < 0 || c.Cards.SettleDelay < 0 {
		return errors.New("config: durations must be positive")
	}
	if c.Chat.NearBottomThreshold < 0 || c.Cards.SwipeThreshold < 0 || c.Cards.FlickVelocity < 0 {
		return errors.New("config: thresholds must be positive")
	}
	if c.Location.Lat < -90 || c.Location.Lat > 90 || c.Location.Lon < -180 || c.Location.Lon > 180 {
		return errors.New("config: location out of range")
	}
	return nil
}

// applyEnv overlays TAALMEET_* variables on top of file values.
func (c *ClientConfig) applyEnv() {
	c.BaseURL = getenv("TAALMEET_BASE_URL", c.BaseURL)
	c.UserID = getenv("TAALMEET_USER_ID", c.UserID)
	c.PollInterval = getdur("TAALMEET_POLL_INTERVAL", c.PollInterval)
	c.RequestTimeout = getdur("TAALMEET_REQUEST_TIMEOUT", c.RequestTimeout)
	c.Chat.NearBottomThreshold = getfloat("TAALMEET_NEAR_BOTTOM_THRESHOLD", c.Chat.NearBottomThreshold)
	c.Cards.SwipeThreshold = getfloat("TAALMEET_SWIPE_THRESHOLD", c.Cards.SwipeThreshold)
	c.Cards.FlickVelocity = getfloat("TAALMEET_FLICK_VELOCITY", c.Cards.FlickVelocity)
	c.Cards.SettleDelay = getdur("TAALMEET_SETTLE_DELAY", c.Cards.SettleDelay)
	c.Location.Lat = getfloat("TAALMEET_LAT", c.Location.Lat)
	c.Location.Lon = getfloat("TAALMEET_LON", c.Location.Lon)
}

// LoadClient parses b as a TOML client config body, applies environment
// overrides and validates the result.
func LoadClient(b []byte) (*ClientConfig, error) {
	cfg := new(ClientConfig)
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClientFile loads the client config from path. An empty path means
// "no file": only defaults and environment overrides apply.
func LoadClientFile(path string) (*ClientConfig, error) {
	if path == "" {
		return LoadClient(nil)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadClient(b)
}
