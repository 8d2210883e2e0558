// Package proto defines the jamnet broadcast wire protocol: a tagged JSON
// envelope carrying one of three payloads (catalog request, catalog response,
// chat). Everything travels on the one shared pubsub topic; addressing is a
// local decision made by each subscriber.
package proto

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/petervdpas/jamnet/internal/catalog"
)

const (
	DefaultTopic = "jamnet.catalog.v1"
	MdnsTag      = "jamnet-mdns"
)

// Envelope kinds.
const (
	KindRequest  = "request"
	KindResponse = "response"
	KindChat     = "chat"
)

// Request scopes.
const (
	ScopeAll = "all"
	ScopeOne = "one"
)

// ErrUnclassifiable marks a payload matching none of the known shapes.
// Arbitrary traffic on a shared topic is expected, so this is not surfaced
// to the operator.
var ErrUnclassifiable = errors.New("payload matches no known message shape")

// Envelope is the broadcast wire type. Kind selects which payload field is
// set; exactly one of Request/Response/Chat is non-nil on a valid envelope.
type Envelope struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	From string `json:"from"`
	TS   int64  `json:"ts"`

	Request  *CatalogRequest  `json:"request,omitempty"`
	Response *CatalogResponse `json:"response,omitempty"`
	Chat     *ChatMessage     `json:"chat,omitempty"`
}

// CatalogRequest asks peers for their public songs. Scope "all" addresses
// every subscriber; scope "one" addresses only Target.
type CatalogRequest struct {
	Scope  string `json:"scope"`
	Target string `json:"target,omitempty"`
}

// CatalogResponse answers a request. Songs is always pre-filtered to public
// entries by the sender; Receiver names the peer whose request is answered.
type CatalogResponse struct {
	Scope    string         `json:"scope"`
	Songs    []catalog.Song `json:"songs"`
	Receiver string         `json:"receiver"`
}

// ChatMessage is unaddressed free text, displayed by every subscriber.
type ChatMessage struct {
	Text string `json:"text"`
}

// Inbound is a raw payload delivered off the broadcast topic.
type Inbound struct {
	From string
	Data []byte
}

func NewRequest(from string, scope, target string) Envelope {
	return Envelope{
		Kind:    KindRequest,
		ID:      uuid.NewString(),
		From:    from,
		TS:      NowMillis(),
		Request: &CatalogRequest{Scope: scope, Target: target},
	}
}

func NewResponse(from string, resp CatalogResponse) Envelope {
	return Envelope{
		Kind:     KindResponse,
		ID:       uuid.NewString(),
		From:     from,
		TS:       NowMillis(),
		Response: &resp,
	}
}

func NewChat(from, text string) Envelope {
	return Envelope{
		Kind: KindChat,
		ID:   uuid.NewString(),
		From: from,
		TS:   NowMillis(),
		Chat: &ChatMessage{Text: text},
	}
}

func NowMillis() int64 { return time.Now().UnixMilli() }

// Classify parses an inbound payload into an envelope. Tagged payloads are
// authoritative: the kind field must match a populated payload. Untagged
// payloads fall back to structural matching in the fixed priority order
// response, request, chat — the legacy rule, kept for mixed channels. Any
// payload satisfying two shapes lands on the higher-priority one; the tagged
// form exists precisely to avoid that ambiguity.
func Classify(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, ErrUnclassifiable
	}

	switch e.Kind {
	case KindResponse:
		if e.Response != nil {
			return e, nil
		}
		return Envelope{}, ErrUnclassifiable
	case KindRequest:
		if e.Request != nil && validScope(e.Request.Scope) {
			return e, nil
		}
		return Envelope{}, ErrUnclassifiable
	case KindChat:
		if e.Chat != nil {
			return e, nil
		}
		return Envelope{}, ErrUnclassifiable
	case "":
		return classifyUntagged(data)
	default:
		return Envelope{}, ErrUnclassifiable
	}
}

func classifyUntagged(data []byte) (Envelope, error) {
	var resp CatalogResponse
	if err := json.Unmarshal(data, &resp); err == nil && resp.Receiver != "" && resp.Songs != nil {
		return Envelope{Kind: KindResponse, Response: &resp}, nil
	}

	var req CatalogRequest
	if err := json.Unmarshal(data, &req); err == nil && validScope(req.Scope) {
		return Envelope{Kind: KindRequest, Request: &req}, nil
	}

	var chat ChatMessage
	if err := json.Unmarshal(data, &chat); err == nil && chat.Text != "" {
		return Envelope{Kind: KindChat, Chat: &chat}, nil
	}

	return Envelope{}, ErrUnclassifiable
}

func validScope(s string) bool {
	return s == ScopeAll || s == ScopeOne
}

// AddressedToSelf reports whether a response envelope answers this node.
// Responses for other peers are expected background noise.
func (e Envelope) AddressedToSelf(selfID string) bool {
	return e.Kind == KindResponse && e.Response != nil && e.Response.Receiver == selfID
}

// RequestsSelf reports whether a request envelope should be answered by this
// node: scope "all" always, scope "one" only when the target matches.
func (e Envelope) RequestsSelf(selfID string) bool {
	if e.Kind != KindRequest || e.Request == nil {
		return false
	}
	switch e.Request.Scope {
	case ScopeAll:
		return true
	case ScopeOne:
		return e.Request.Target == selfID
	}
	return false
}

// Marshal encodes an envelope for publishing.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
