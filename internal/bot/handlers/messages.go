package handlers

import "strings"

// expand substitutes {name} placeholders in a configured message.
func expand(tmpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// addressed prefixes text with the nickname it answers.
func addressed(nick, text string) string {
	return nick + ": " + text
}
