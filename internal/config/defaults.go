package config

import "time"

// Default values for configuration
const (
	// IRC defaults
	DefaultCommandPrefix  = "!"
	DefaultDialTimeout    = 30 * time.Second
	DefaultPingFrequency  = 90 * time.Second
	DefaultPingTimeout    = 60 * time.Second
	DefaultMaxNickRetries = 5

	// Completion defaults
	DefaultBackend            = "ollama"
	DefaultAPIURL             = "http://localhost:11434/api/chat"
	DefaultModel              = "llama3"
	DefaultSystemPrompt       = "You are a helpful AI assistant chatting in an IRC channel. Keep answers short."
	DefaultContextMessages    = 5
	DefaultRequestTimeout     = 90 * time.Second
	DefaultTemperature        = 0.7
	DefaultBreakerMaxFailures = 0
	DefaultBreakerOpenTimeout = time.Minute

	// Bot defaults
	DefaultReconnectMinDelay = 15 * time.Second
	DefaultReconnectMaxDelay = 300 * time.Second
	DefaultReconnectAttempts = 10 // 0 retries forever
	DefaultMessageRateLimit  = 1500 * time.Millisecond
	DefaultIdentifyWait      = 5 * time.Second

	// Log defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultStatusReportSchedule = "0 */15 * * * *"
)

// DefaultMessages are the user-facing strings used when the config file does
// not override them.
var DefaultMessages = MessagesConfig{
	Timeout:           "Sorry {nick}, my brain is taking too long to answer. Try again later.",
	NetworkError:      "Sorry {nick}, a technical problem keeps me from reaching my brain.",
	MalformedResponse: "Sorry {nick}, my brain sent back a response I could not read.",
	EmptyContent:      "Sorry {nick}, I could not come up with an answer.",
	BackendError:      "Sorry {nick}, my brain reported an error: {error}",
	MentionHint:       "Yes? You called? Try '{prefix}help' or ask me a question.",
	Help:              "Available commands: {prefix}ping, {prefix}help, {prefix}info. To chat, start your message with my nickname ({botnick}:) followed by your question.",
	Info:              "I am a chat bot backed by a language model (model: {model}). Version {version}.",
	Pong:              "Pong!",
	UnknownCommand:    "Unknown command '{command}'. Type {prefix}help for the list of commands.",
}

// DefaultTasks are the periodic tasks enabled out of the box.
var DefaultTasks = map[string]TaskConfig{
	"status_report": {Enabled: true, Schedule: DefaultStatusReportSchedule},
}

var defaults = map[string]any{
	"irc.command_prefix":   DefaultCommandPrefix,
	"irc.dial_timeout":     DefaultDialTimeout,
	"irc.ping_frequency":   DefaultPingFrequency,
	"irc.ping_timeout":     DefaultPingTimeout,
	"irc.max_nick_retries": DefaultMaxNickRetries,
	"irc.tls":              false,

	"completion.backend":                DefaultBackend,
	"completion.api_url":                DefaultAPIURL,
	"completion.model":                  DefaultModel,
	"completion.default_system_prompt":  DefaultSystemPrompt,
	"completion.context_messages_count": DefaultContextMessages,
	"completion.request_timeout":        DefaultRequestTimeout,
	"completion.temperature":            DefaultTemperature,
	"completion.breaker.max_failures":   DefaultBreakerMaxFailures,
	"completion.breaker.open_timeout":   DefaultBreakerOpenTimeout,

	"bot.reconnect_min_delay":      DefaultReconnectMinDelay,
	"bot.reconnect_max_delay":      DefaultReconnectMaxDelay,
	"bot.reconnect_attempts":       DefaultReconnectAttempts,
	"bot.message_rate_limit_delay": DefaultMessageRateLimit,
	"bot.identify_wait":            DefaultIdentifyWait,

	"log.level":  DefaultLogLevel,
	"log.format": DefaultLogFormat,

	"messages.timeout":            DefaultMessages.Timeout,
	"messages.network_error":      DefaultMessages.NetworkError,
	"messages.malformed_response": DefaultMessages.MalformedResponse,
	"messages.empty_content":      DefaultMessages.EmptyContent,
	"messages.backend_error":      DefaultMessages.BackendError,
	"messages.mention_hint":       DefaultMessages.MentionHint,
	"messages.help":               DefaultMessages.Help,
	"messages.info":               DefaultMessages.Info,
	"messages.pong":               DefaultMessages.Pong,
	"messages.unknown_command":    DefaultMessages.UnknownCommand,

	"scheduler.tasks.status_report.enabled":  DefaultTasks["status_report"].Enabled,
	"scheduler.tasks.status_report.schedule": DefaultTasks["status_report"].Schedule,
}
