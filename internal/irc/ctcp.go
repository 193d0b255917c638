package irc

import "strings"

const ctcpDelim = "\x01"

// parseCTCP splits a CTCP framed message body into its command and argument.
func parseCTCP(text string) (command, args string, ok bool) {
	if len(text) < 2 || !strings.HasPrefix(text, ctcpDelim) {
		return "", "", false
	}
	body := strings.TrimSuffix(strings.TrimPrefix(text, ctcpDelim), ctcpDelim)
	if body == "" {
		return "", "", false
	}
	command, args, _ = strings.Cut(body, " ")
	return strings.ToUpper(command), args, true
}

func ctcpQuote(text string) string {
	return ctcpDelim + strings.ReplaceAll(text, ctcpDelim, "") + ctcpDelim
}
