package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override config keys.
const EnvPrefix = "IRCRELAY"

// Load loads and validates configuration from:
// 1. Default values
// 2. the config file at path (optional when path is empty)
// 3. IRCRELAY_* environment variables
func Load(path string, log *slog.Logger) (*Config, error) {
	if log == nil {
		log = slog.Default()
	}

	v := viper.New()
	setDefaults(v)

	if err := loadConfig(v, path); err != nil {
		return nil, fmt.Errorf("%w: failed to load config file: %v", ErrConfiguration, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	cfg.Completion.ChannelPrompts = parseChannelPrompts(v.Get("completion.channel_prompts"), nil, log)
	normalize(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	log.Debug("Configuration loaded",
		"config_file", v.ConfigFileUsed(),
		"server", cfg.IRC.Server,
		"port", cfg.IRC.Port,
		"channels", cfg.IRC.Channels,
		"backend", cfg.Completion.Backend,
		"model", cfg.Completion.Model)

	return cfg, nil
}

// loadConfig reads the config file into v and enables environment overrides.
func loadConfig(v *viper.Viper, path string) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			// No file: defaults and environment only.
			return nil
		}
		return err
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// bindEnv registers keys without defaults so AutomaticEnv can resolve them
// during Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"irc.server", "irc.port", "irc.nickname", "irc.realname", "irc.channels",
		"irc.password", "irc.nickserv_password", "irc.tls_insecure_skip_verify",
		"completion.api_key", "completion.channel_prompts",
		"security.blocked_nicks", "security.spam_filter_keywords",
		"log.file",
	} {
		_ = v.BindEnv(key)
	}
}

// normalize fills derived values and trims list entries.
func normalize(cfg *Config) {
	cfg.IRC.Server = strings.TrimSpace(cfg.IRC.Server)
	cfg.IRC.Nickname = strings.TrimSpace(cfg.IRC.Nickname)
	if strings.TrimSpace(cfg.IRC.RealName) == "" {
		cfg.IRC.RealName = cfg.IRC.Nickname
	}
	cfg.IRC.Channels = trimList(cfg.IRC.Channels)
	cfg.Security.BlockedNicks = trimList(cfg.Security.BlockedNicks)
	cfg.Security.SpamFilterKeywords = trimList(cfg.Security.SpamFilterKeywords)
	cfg.Completion.Backend = strings.ToLower(strings.TrimSpace(cfg.Completion.Backend))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
