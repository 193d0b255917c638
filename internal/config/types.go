// Package config manages application configuration from config files,
// environment variables and default values.
package config

import (
	"errors"
	"strings"
	"time"
)

// ErrConfiguration is wrapped by every error returned from Load. Callers treat
// it as a fatal startup condition.
var ErrConfiguration = errors.New("configuration error")

// Config defines the application configuration. Values can be set via environment
// variables prefixed with IRCRELAY_ (e.g., IRCRELAY_IRC_SERVER) or through the
// config file.
type Config struct {
	IRC        IRCConfig        `mapstructure:"irc"`
	Completion CompletionConfig `mapstructure:"completion"`
	Bot        BotConfig        `mapstructure:"bot"`
	Security   SecurityConfig   `mapstructure:"security"`
	Log        LogConfig        `mapstructure:"log"`
	Messages   MessagesConfig   `mapstructure:"messages"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// IRCConfig holds connection parameters for the single IRC network.
type IRCConfig struct {
	Server                string        `mapstructure:"server"                   validate:"required"`
	Port                  int           `mapstructure:"port"                     validate:"required,min=1,max=65535"`
	TLS                   bool          `mapstructure:"tls"`
	TLSInsecureSkipVerify bool          `mapstructure:"tls_insecure_skip_verify"`
	Nickname              string        `mapstructure:"nickname"                 validate:"required"`
	RealName              string        `mapstructure:"realname"`
	Channels              []string      `mapstructure:"channels"                 validate:"required,min=1,dive,required"`
	Password              string        `mapstructure:"password"`
	NickServPassword      string        `mapstructure:"nickserv_password"`
	CommandPrefix         string        `mapstructure:"command_prefix"           validate:"required"`
	DialTimeout           time.Duration `mapstructure:"dial_timeout"             validate:"min=1s,max=5m"`
	PingFrequency         time.Duration `mapstructure:"ping_frequency"           validate:"min=0s,max=1h"`
	PingTimeout           time.Duration `mapstructure:"ping_timeout"             validate:"min=0s,max=1h"`
	MaxNickRetries        int           `mapstructure:"max_nick_retries"         validate:"min=0,max=50"`
}

// CompletionConfig holds the language model backend settings.
type CompletionConfig struct {
	Backend             string        `mapstructure:"backend"                validate:"oneof=ollama openai gemini"`
	APIURL              string        `mapstructure:"api_url"                validate:"omitempty,url"`
	APIKey              string        `mapstructure:"api_key"                validate:"required_if=Backend gemini"`
	Model               string        `mapstructure:"model"                  validate:"required"`
	DefaultSystemPrompt string        `mapstructure:"default_system_prompt"  validate:"required"`
	ContextMessages     int           `mapstructure:"context_messages_count" validate:"min=1,max=500"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"        validate:"min=1s,max=10m"`
	Temperature         float32       `mapstructure:"temperature"            validate:"min=0,max=2"`
	Breaker             BreakerConfig `mapstructure:"breaker"`

	// ChannelPrompts is decoded separately because the settings editor may
	// store it as an encoded string instead of a mapping. Keys are lowercase.
	ChannelPrompts map[string]string `mapstructure:"-"`
}

// SystemPrompt returns the per-channel override for channel, or the default prompt.
func (c CompletionConfig) SystemPrompt(channel string) string {
	if p, ok := c.ChannelPrompts[strings.ToLower(channel)]; ok && strings.TrimSpace(p) != "" {
		return p
	}
	return c.DefaultSystemPrompt
}

// BreakerConfig configures the circuit breaker around the completion backend.
// MaxFailures of 0 disables it.
type BreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures" validate:"min=0"`
	OpenTimeout time.Duration `mapstructure:"open_timeout" validate:"min=0s"`
}

// BotConfig holds operational timings.
type BotConfig struct {
	ReconnectMinDelay     time.Duration `mapstructure:"reconnect_min_delay"      validate:"min=1ms"`
	ReconnectMaxDelay     time.Duration `mapstructure:"reconnect_max_delay"      validate:"gtefield=ReconnectMinDelay"`
	ReconnectAttempts     int           `mapstructure:"reconnect_attempts"       validate:"min=0"`
	MessageRateLimitDelay time.Duration `mapstructure:"message_rate_limit_delay" validate:"min=0s"`
	IdentifyWait          time.Duration `mapstructure:"identify_wait"            validate:"min=0s,max=1m"`
}

// SecurityConfig lists senders and keywords that are silently dropped.
type SecurityConfig struct {
	BlockedNicks       []string `mapstructure:"blocked_nicks"`
	SpamFilterKeywords []string `mapstructure:"spam_filter_keywords"`
}

// LogConfig is consumed by the logger only.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
	File   string `mapstructure:"file"`
}

// MessagesConfig holds every user-facing string. Placeholders in braces
// ({nick}, {botnick}, {prefix}, {model}, {command}, {version}, {error}) are expanded by
// the handlers.
type MessagesConfig struct {
	Timeout           string `mapstructure:"timeout"            validate:"required"`
	NetworkError      string `mapstructure:"network_error"      validate:"required"`
	MalformedResponse string `mapstructure:"malformed_response" validate:"required"`
	EmptyContent      string `mapstructure:"empty_content"      validate:"required"`
	BackendError      string `mapstructure:"backend_error"      validate:"required"`
	MentionHint       string `mapstructure:"mention_hint"       validate:"required"`
	Help              string `mapstructure:"help"               validate:"required"`
	Info              string `mapstructure:"info"               validate:"required"`
	Pong              string `mapstructure:"pong"               validate:"required"`
	UnknownCommand    string `mapstructure:"unknown_command"    validate:"required"`
}

// SchedulerConfig maps task names to their schedule.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig configures a single periodic task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}
