// Package mqtt publishes relay events to an MQTT broker.
//
// The broker is optional. When enabled, the relay announces itself on a
// retained status topic (with a Last Will so crashes show up as offline),
// publishes one event per dispatch outcome and per rejected message, and
// accepts control messages on a command topic as an alternative ingress to
// the WebSocket listener.
//
// # Topics
//
//	{prefix}/system/status           retained online/offline, LWT
//	{prefix}/dispatch/{deviceType}   dispatch outcome events
//	{prefix}/rejected                validation rejections
//	{prefix}/command                 inbound control messages
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().Dispatch("MainFan")
//	err = client.PublishJSON(topic, event, false)
package mqtt
