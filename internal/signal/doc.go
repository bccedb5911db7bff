// Package signal defines the JSON envelope exchanged with signaling clients.
//
// Offers and answers carry a session description in "sdp"; trickled ICE
// candidates carry an object in "candidate". Any other "type" value decodes
// to KindUnknown rather than failing, so newer clients can add message types
// without breaking older relays.
package signal
