// Package config builds the functional-options configuration values for
// the broker and the client, generalized from the teacher's
// options.go (Options/Option/newOptions) into separate server and
// client configs, plus the teacher's JSON-loaded CONFIG struct
// (options.go's package-level config) promoted into a loadable Config
// type.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/golang-io/requests"

	"github.com/coldbrook/mqttd/packet"
)

// Listen mirrors the teacher's Listen struct: one network endpoint.
type Listen struct {
	URL      string `json:"url"`
	CertFile string `json:"certFile"`
	KeyFile  string `json:"keyFile"`
}

// Config is the broker's JSON-loaded configuration, generalizing the
// teacher's package-level CONFIG (options.go).
type Config struct {
	MQTT        Listen            `json:"mqtt"`
	MQTTs       Listen            `json:"mqtts"`
	HTTP        Listen            `json:"http"`
	Auth        map[string]string `json:"auth"`
	AllowAnon   bool              `json:"allowAnonymous"`
	MaxQoS      uint8             `json:"maxQoS"`
	ConnectWait time.Duration     `json:"connectWait"`
}

// Load reads a JSON config file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Default matches the teacher's CONFIG zero value: anonymous access
// allowed via the empty-username/empty-password entry.
func Default() *Config {
	return &Config{
		MQTT:        Listen{URL: "tcp://127.0.0.1:1883"},
		HTTP:        Listen{URL: "tcp://127.0.0.1:9090"},
		Auth:        map[string]string{"": ""},
		AllowAnon:   true,
		MaxQoS:      2,
		ConnectWait: 5 * time.Second,
	}
}

// Authenticate reports whether username/password are acceptable,
// mirroring the teacher's config.GetAuth lookup (options.go).
func (c *Config) Authenticate(username, password string) bool {
	if c.AllowAnon && username == "" {
		return true
	}
	want, ok := c.Auth[username]
	return ok && want == password
}

// ServerOptions configures one Server, generalizing the teacher's
// Options struct (client-only in the teacher) to the broker side.
type ServerOptions struct {
	Config      *Config
	KeepAliveOK func(keepAlive uint16) bool
}

type ServerOption func(*ServerOptions)

func NewServerOptions(opts ...ServerOption) ServerOptions {
	options := ServerOptions{Config: Default()}
	for _, o := range opts {
		o(&options)
	}
	return options
}

func WithConfig(cfg *Config) ServerOption {
	return func(o *ServerOptions) { o.Config = cfg }
}

// ClientOptions mirrors the teacher's Options/Option/newOptions
// (options.go), generalized with a KeepAlive duration the teacher
// never exposed (it relied on the default PINGREQ cadence only).
type ClientOptions struct {
	URL           string
	ClientID      string
	Version       byte
	Username      string
	Password      string
	KeepAlive     time.Duration
	CleanSession  bool
	Subscriptions []packet.Subscription
	Will          *packet.Message
}

type ClientOption func(*ClientOptions)

func NewClientOptions(opts ...ClientOption) ClientOptions {
	options := ClientOptions{
		URL:          "tcp://127.0.0.1:1883",
		ClientID:     "mqtt-" + requests.GenId(),
		Version:      packet.VERSION311,
		KeepAlive:    60 * time.Second,
		CleanSession: true,
	}
	for _, o := range opts {
		o(&options)
	}
	return options
}

func WithURL(url string) ClientOption {
	return func(o *ClientOptions) { o.URL = url }
}

func WithClientID(id string) ClientOption {
	return func(o *ClientOptions) { o.ClientID = id }
}

func WithCredentials(username, password string) ClientOption {
	return func(o *ClientOptions) { o.Username, o.Password = username, password }
}

func WithKeepAlive(d time.Duration) ClientOption {
	return func(o *ClientOptions) { o.KeepAlive = d }
}

func WithCleanSession(clean bool) ClientOption {
	return func(o *ClientOptions) { o.CleanSession = clean }
}

func WithWill(msg *packet.Message) ClientOption {
	return func(o *ClientOptions) { o.Will = msg }
}

func WithSubscription(subs ...packet.Subscription) ClientOption {
	return func(o *ClientOptions) { o.Subscriptions = append(o.Subscriptions, subs...) }
}

// WithVersion mirrors the teacher's generic Version[T ~string|~byte]
// option (options.go).
func WithVersion[T ~string | ~byte](version T) ClientOption {
	return func(o *ClientOptions) {
		switch v := any(version).(type) {
		case byte:
			o.Version = v
		case string:
			switch v {
			case "5.0.0", "5":
				o.Version = packet.VERSION500
			case "3.1.1", "4":
				o.Version = packet.VERSION311
			default:
				panic(fmt.Errorf("mqtt: version %q not supported", v))
			}
		}
	}
}
