// Package protocol defines the JSON envelope spoken by the game's
// remote-control WebSocket and its encoder/decoder.
//
// Every message is a header+body document:
//
//	{"body":{...},"header":{"requestId":"...","messagePurpose":"event","version":1,"messageType":"commandRequest"}}
//
// Outbound subscriptions carry ZeroRequestID; outbound commands carry a
// fresh identifier from GenerateID that the game echoes in its
// commandResponse.
package protocol
