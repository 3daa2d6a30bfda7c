package tgui

import "strings"

// MaxCallbackData is Telegram's callback_data limit in bytes.
const MaxCallbackData = 64

// Data formats callback data as "prefix:action[:payload]".
func Data(prefix, action, payload string) string {
	prefix = strings.TrimSpace(prefix)
	action = strings.TrimSpace(action)
	if payload == "" {
		return prefix + ":" + action
	}
	return prefix + ":" + action + ":" + payload
}

// ParseData splits data produced by Data. ok is false unless both prefix
// and action are present.
func ParseData(data string) (prefix, action, payload string, ok bool) {
	parts := strings.SplitN(strings.TrimPrefix(data, "\f"), ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	if len(parts) == 3 {
		payload = parts[2]
	}
	return parts[0], parts[1], payload, true
}
