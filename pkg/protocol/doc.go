// ABOUTME: Anomaly wire protocol package
// ABOUTME: Binary packet codec, channel numbering and handshake frames
// Package protocol implements the Anomaly wire protocol.
//
// All integers are big-endian and floats are IEEE-754 big-endian float32.
// Packets are flat concatenations of fields with no padding; variable
// sections are length-prefixed. Decoding never panics: a short or
// malformed buffer returns ErrTruncated and nothing from the packet is
// applied.
//
// Each channel carries one packet kind:
//
//	0 input   client -> server, reliable
//	1 command server -> client, reliable
//	2 sprite  server -> client, unreliable (newer frame supersedes older)
//	3 content server -> client, reliable
//	4 audio   server -> client, reliable
//
// Example:
//
//	payload := protocol.EncodeSprites(items)
//	items, err := protocol.DecodeSprites(payload)
package protocol
