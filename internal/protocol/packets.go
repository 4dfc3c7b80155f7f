// Package protocol implements the matchmaking wire contract: the request
// line sent to the matchmaking service, framing of the response it returns,
// and strict validation of the JSON body into a MatchResponse.
package protocol

import "github.com/smorey2/yojimbo/internal/address"

// Wire constants shared with the matchmaking service.
const (
	ConnectTokenBytes    = 1024 // encrypted connect token size
	KeyBytes             = 32   // client/server session key size
	MaxServersPerConnect = 8    // maximum serverAddresses entries
	MaxAddressLength     = address.MaxAddressLength
)

// DefaultResponseBufferBytes is the default capacity of the response
// accumulation buffer.
const DefaultResponseBufferBytes = 4 * 1024

// JSON field names of the match response body.
const (
	FieldConnectTokenData            = "connectTokenData"
	FieldConnectTokenNonce           = "connectTokenNonce"
	FieldConnectTokenExpireTimestamp = "connectTokenExpireTimestamp"
	FieldServerAddresses             = "serverAddresses"
	FieldClientToServerKey           = "clientToServerKey"
	FieldServerToClientKey           = "serverToClientKey"
)

// HeaderBodyDelimiter separates the response header block from the body.
const HeaderBodyDelimiter = "\r\n\r\n"
