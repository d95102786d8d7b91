package mqtt

import "strings"

// Topic layout, below the configured prefix:
//
//	presence/<role>/<identity>/<session>  client -> gateway, "online" or "offline" (LWT)
//	inbox/<identity>/<session>            gateway -> client, JSON envelopes
//	response/<identity>                   client -> gateway, offer decisions
//	pong/<identity>/<session>             client -> gateway, heartbeat replies
const (
	kindPresence = "presence"
	kindInbox    = "inbox"
	kindResponse = "response"
	kindPong     = "pong"
)

func (c Config) filter(kind string, levels int) string {
	return c.TopicPrefix + "/" + kind + strings.Repeat("/+", levels)
}

func (c Config) inboxTopic(identity, session string) string {
	return c.TopicPrefix + "/" + kindInbox + "/" + identity + "/" + session
}

// parseTopic returns the wildcard levels of topic when it matches
// <prefix>/<kind>/ followed by exactly n non-empty levels.
func (c Config) parseTopic(topic, kind string, n int) ([]string, bool) {
	rest, ok := strings.CutPrefix(topic, c.TopicPrefix+"/"+kind+"/")
	if !ok {
		return nil, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != n {
		return nil, false
	}
	for _, p := range parts {
		if p == "" {
			return nil, false
		}
	}
	return parts, true
}
