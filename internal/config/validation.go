package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Validate checks the struct tags and the cross-field rules the tags cannot
// express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Completion.Backend == "ollama" && c.Completion.APIURL == "" {
		return errors.New("completion.api_url is required for the ollama backend")
	}
	if strings.ContainsAny(c.IRC.Nickname, " \t,:") {
		return fmt.Errorf("irc.nickname %q contains invalid characters", c.IRC.Nickname)
	}
	for _, t := range c.Scheduler.Tasks {
		if t.Enabled && strings.TrimSpace(t.Schedule) == "" {
			return errors.New("enabled scheduler task has an empty schedule")
		}
	}
	return nil
}

// parseChannelPrompts decodes the per-channel system prompt table. The table
// may be a mapping or a JSON/YAML encoded string. Anything that cannot be
// decoded leaves fallback in place.
func parseChannelPrompts(raw any, fallback map[string]string, log *slog.Logger) map[string]string {
	if fallback == nil {
		fallback = map[string]string{}
	}

	switch v := raw.(type) {
	case nil:
		return fallback
	case map[string]string:
		return lowerKeys(v)
	case map[string]any:
		out := make(map[string]string, len(v))
		for ch, p := range v {
			s, ok := p.(string)
			if !ok {
				log.Warn("Ignoring malformed channel prompt table, value is not a string", "channel", ch)
				return fallback
			}
			out[strings.ToLower(ch)] = s
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		var decoded map[string]string
		if err := yaml.Unmarshal([]byte(v), &decoded); err != nil {
			log.Warn("Ignoring malformed channel prompt table", "error", err)
			return fallback
		}
		return lowerKeys(decoded)
	default:
		log.Warn("Ignoring channel prompt table of unexpected type", "type", fmt.Sprintf("%T", raw))
		return fallback
	}
}

func lowerKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}
