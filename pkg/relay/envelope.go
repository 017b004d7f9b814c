package relay

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Envelope types exchanged over a pairing topic
const (
	TypeProposal = "proposal"
	TypeApprove  = "approve"
	TypeReject   = "reject"
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeDelete   = "delete"
)

// Envelope is the decrypted message body
type Envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *EnvelopeError  `json:"error,omitempty"`
}

type EnvelopeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

// ErrorCode exposes the wallet error code for classification
func (e *EnvelopeError) ErrorCode() int {
	return e.Code
}

// Proposal is sent by the dapp side to request a session
type Proposal struct {
	RequiredNamespaces Namespaces `json:"requiredNamespaces"`
	Metadata           Metadata   `json:"metadata"`
}

// Metadata describes the requesting application
type Metadata struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	ProjectID string `json:"projectId"`
}

// Approval is the wallet's answer to a proposal
type Approval struct {
	Namespaces Namespaces `json:"namespaces"`
}

// SessionRequest carries a method call for a specific chain
type SessionRequest struct {
	Chain  string          `json:"chainId"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// NewSymKey returns a fresh 32 byte symmetric key
func NewSymKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate sym key: %w", err)
	}
	return key, nil
}

// TopicFromKey derives the pairing topic from the symmetric key
func TopicFromKey(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])
}

// FormatURI builds the shareable pairing uri
func FormatURI(topic string, key []byte) string {
	return fmt.Sprintf("wc:%s@2?relay-protocol=irn&symKey=%s", topic, hex.EncodeToString(key))
}

// ParseURI extracts the topic and symmetric key from a pairing uri
func ParseURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "wc:")
	if !ok {
		return "", nil, fmt.Errorf("not a pairing uri: %s", uri)
	}

	head, query, ok := strings.Cut(rest, "?")
	if !ok {
		return "", nil, fmt.Errorf("pairing uri without parameters")
	}
	topic, version, ok := strings.Cut(head, "@")
	if !ok || version != "2" {
		return "", nil, fmt.Errorf("unsupported pairing version in %s", uri)
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return "", nil, fmt.Errorf("invalid pairing parameters: %w", err)
	}
	key, err := hex.DecodeString(values.Get("symKey"))
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return "", nil, fmt.Errorf("invalid symKey")
	}
	if TopicFromKey(key) != topic {
		return "", nil, fmt.Errorf("topic does not match symKey")
	}

	return topic, key, nil
}

// Seal encrypts an envelope with the pairing key
func Seal(key []byte, env *Envelope) (string, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}

	plain, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed envelope
func Open(key []byte, msg string) (*Envelope, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("message too short")
	}

	plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt message: %w", err)
	}

	env := new(Envelope)
	if err := json.Unmarshal(plain, env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return env, nil
}
