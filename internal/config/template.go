package config

import (
	"strings"
	"time"
)

// Template returns every default as a nested document, plus sample values for
// the settings that have none. Durations are rendered as strings such as "15s".
func Template() map[string]any {
	doc := make(map[string]any)
	for key, value := range defaults {
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		setPath(doc, strings.Split(key, "."), value)
	}

	setPath(doc, []string{"irc", "server"}, "irc.libera.chat")
	setPath(doc, []string{"irc", "port"}, 6697)
	setPath(doc, []string{"irc", "tls"}, true)
	setPath(doc, []string{"irc", "nickname"}, "ircrelay")
	setPath(doc, []string{"irc", "channels"}, []string{"#ircrelay"})
	setPath(doc, []string{"security", "blocked_nicks"}, []string{})
	setPath(doc, []string{"security", "spam_filter_keywords"}, []string{})
	return doc
}

func setPath(doc map[string]any, path []string, value any) {
	for _, part := range path[:len(path)-1] {
		next, ok := doc[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			doc[part] = next
		}
		doc = next
	}
	doc[path[len(path)-1]] = value
}
