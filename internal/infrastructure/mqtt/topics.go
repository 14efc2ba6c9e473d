package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "tuyarelay"

// Topics builds relay topic names under a common prefix.
//
//	topics := mqtt.Topics{Prefix: "tuyarelay"}
//	topics.Dispatch("MainFan") // "tuyarelay/dispatch/MainFan"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.TrimSuffix(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// SystemStatus is the retained online/offline topic, also used for the LWT.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// Dispatch is the topic for outcome events of one device type.
//
// Wildcard characters in deviceType are replaced so a client-supplied name
// can never widen a subscriber's match.
func (t Topics) Dispatch(deviceType string) string {
	return t.prefix() + "/dispatch/" + sanitiseLevel(deviceType)
}

// AllDispatch matches every dispatch event.
func (t Topics) AllDispatch() string {
	return t.prefix() + "/dispatch/+"
}

// Rejected is the topic for validation rejections.
func (t Topics) Rejected() string {
	return t.prefix() + "/rejected"
}

// Command is the inbound control topic.
func (t Topics) Command() string {
	return t.prefix() + "/command"
}

// All matches every relay topic.
func (t Topics) All() string {
	return t.prefix() + "/#"
}

func sanitiseLevel(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
