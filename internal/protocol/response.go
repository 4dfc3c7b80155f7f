package protocol

import (
	"errors"
	"io"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/smorey2/yojimbo/internal/address"
)

// MatchResponse is everything a game client needs to connect to a server
// handed out by the matchmaking service. Fixed-size arrays keep it a plain
// value: assigning it copies every byte.
type MatchResponse struct {
	ConnectTokenData            [ConnectTokenBytes]byte
	ConnectTokenNonce           uint64
	ConnectTokenExpireTimestamp uint64
	ServerAddresses             [MaxServersPerConnect]address.Address
	NumServerAddresses          int
	ClientToServerKey           [KeyBytes]byte
	ServerToClientKey           [KeyBytes]byte
}

// Addresses returns the populated server addresses in preference order.
func (r *MatchResponse) Addresses() []address.Address {
	out := make([]address.Address, r.NumServerAddresses)
	copy(out, r.ServerAddresses[:r.NumServerAddresses])
	return out
}

// IsZero reports whether r is the empty response.
func (r *MatchResponse) IsZero() bool {
	return *r == (MatchResponse{})
}

type fieldSpec struct {
	name string
	typ  jsoniter.ValueType
}

// requiredFields lists every field of the body with its JSON type.
var requiredFields = []fieldSpec{
	{FieldConnectTokenData, jsoniter.StringValue},
	{FieldConnectTokenNonce, jsoniter.StringValue},
	{FieldConnectTokenExpireTimestamp, jsoniter.StringValue},
	{FieldServerAddresses, jsoniter.ArrayValue},
	{FieldClientToServerKey, jsoniter.StringValue},
	{FieldServerToClientKey, jsoniter.StringValue},
}

// ParseMatchResponse validates a JSON response body and decodes it. The
// result is all-or-nothing: on any failure the zero MatchResponse is
// returned together with a *ValidationError. Unknown fields are ignored.
func ParseMatchResponse(body []byte) (MatchResponse, error) {
	if !validDocument(body) {
		return MatchResponse{}, &ValidationError{Field: "$", Reason: ErrInvalidJSON}
	}
	doc := jsoniter.Get(body)
	if doc.ValueType() != jsoniter.ObjectValue {
		return MatchResponse{}, &ValidationError{Field: "$", Reason: ErrInvalidJSON}
	}

	for _, f := range requiredFields {
		v := doc.Get(f.name)
		switch v.ValueType() {
		case f.typ:
		case jsoniter.InvalidValue:
			return MatchResponse{}, &ValidationError{Field: f.name, Reason: ErrMissingField}
		default:
			return MatchResponse{}, invalid(f.name, ErrWrongType, "got %s", typeName(v.ValueType()))
		}
	}

	var resp MatchResponse

	if err := decodeFixedField(doc, FieldConnectTokenData, resp.ConnectTokenData[:]); err != nil {
		return MatchResponse{}, err
	}

	var err error
	if resp.ConnectTokenNonce, err = integerField(doc, FieldConnectTokenNonce); err != nil {
		return MatchResponse{}, err
	}
	if resp.ConnectTokenExpireTimestamp, err = integerField(doc, FieldConnectTokenExpireTimestamp); err != nil {
		return MatchResponse{}, err
	}

	servers := doc.Get(FieldServerAddresses)
	count := servers.Size()
	if count > MaxServersPerConnect {
		return MatchResponse{}, invalid(FieldServerAddresses, ErrTooManyServers, "%d > %d", count, MaxServersPerConnect)
	}
	for i := 0; i < count; i++ {
		entry := servers.Get(i)
		if entry.ValueType() != jsoniter.StringValue {
			return MatchResponse{}, invalid(FieldServerAddresses, ErrWrongType, "entry %d is %s", i, typeName(entry.ValueType()))
		}
		text, err := DecodeString(entry.ToString(), MaxAddressLength)
		if err != nil {
			return MatchResponse{}, invalid(FieldServerAddresses, ErrInvalidAddress, "entry %d: %v", i, err)
		}
		addr, err := address.Parse(text)
		if err != nil {
			return MatchResponse{}, invalid(FieldServerAddresses, ErrInvalidAddress, "entry %d: %v", i, err)
		}
		resp.ServerAddresses[i] = addr
	}
	resp.NumServerAddresses = count

	if err := decodeFixedField(doc, FieldClientToServerKey, resp.ClientToServerKey[:]); err != nil {
		return MatchResponse{}, err
	}
	if err := decodeFixedField(doc, FieldServerToClientKey, resp.ServerToClientKey[:]); err != nil {
		return MatchResponse{}, err
	}

	return resp, nil
}

// validDocument reports whether body holds exactly one JSON value,
// optionally surrounded by whitespace.
func validDocument(body []byte) bool {
	iter := jsoniter.ParseBytes(jsoniter.ConfigDefault, body)
	iter.Skip()
	if iter.Error != nil {
		return false
	}
	// Only whitespace may follow; the iterator reports io.EOF once exhausted.
	iter.WhatIsNext()
	return iter.Error == io.EOF
}

func decodeFixedField(doc jsoniter.Any, field string, out []byte) error {
	if err := DecodeFixed(doc.Get(field).ToString(), out); err != nil {
		return &ValidationError{Field: field, Reason: reasonOf(err), Detail: err.Error()}
	}
	return nil
}

// integerField parses a base-10 string into the 64-bit pattern of the
// integer. Negative values keep their two's-complement bits.
func integerField(doc jsoniter.Any, field string) (uint64, error) {
	s := doc.Get(field).ToString()
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, nil
	}
	// ParseInt also takes a leading '+', which is not a valid integer here.
	if !strings.HasPrefix(s, "-") {
		return 0, invalid(field, ErrInvalidInteger, "%q", s)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, invalid(field, ErrInvalidInteger, "%q", s)
	}
	return uint64(v), nil
}

func reasonOf(err error) error {
	for _, sentinel := range []error{ErrDecodedLength, ErrBufferOverflow, ErrBase64} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return err
}

func typeName(t jsoniter.ValueType) string {
	switch t {
	case jsoniter.StringValue:
		return "string"
	case jsoniter.NumberValue:
		return "number"
	case jsoniter.NilValue:
		return "null"
	case jsoniter.BoolValue:
		return "bool"
	case jsoniter.ArrayValue:
		return "array"
	case jsoniter.ObjectValue:
		return "object"
	default:
		return "invalid"
	}
}

// ResponseBody is the JSON document served by the matchmaking service.
type ResponseBody struct {
	ConnectTokenData            string   `json:"connectTokenData"`
	ConnectTokenNonce           string   `json:"connectTokenNonce"`
	ConnectTokenExpireTimestamp string   `json:"connectTokenExpireTimestamp"`
	ServerAddresses             []string `json:"serverAddresses"`
	ClientToServerKey           string   `json:"clientToServerKey"`
	ServerToClientKey           string   `json:"serverToClientKey"`
}

// NewResponseBody encodes a MatchResponse into its wire document.
func NewResponseBody(resp *MatchResponse) ResponseBody {
	body := ResponseBody{
		ConnectTokenData:            EncodeData(resp.ConnectTokenData[:]),
		ConnectTokenNonce:           strconv.FormatUint(resp.ConnectTokenNonce, 10),
		ConnectTokenExpireTimestamp: strconv.FormatUint(resp.ConnectTokenExpireTimestamp, 10),
		ServerAddresses:             make([]string, 0, resp.NumServerAddresses),
		ClientToServerKey:           EncodeData(resp.ClientToServerKey[:]),
		ServerToClientKey:           EncodeData(resp.ServerToClientKey[:]),
	}
	for _, addr := range resp.Addresses() {
		body.ServerAddresses = append(body.ServerAddresses, EncodeData([]byte(addr.String())))
	}
	return body
}

// Marshal renders the body with the same JSON library used to parse it.
func (b ResponseBody) Marshal() ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(b)
}
