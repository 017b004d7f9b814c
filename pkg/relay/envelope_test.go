package relay_test

import (
	"testing"

	"deposit-widget/pkg/relay"
	"github.com/stretchr/testify/suite"
)

type EnvelopeTestSuite struct {
	suite.Suite

	key []byte
}

func TestRunEnvelopeTestSuite(t *testing.T) {
	suite.Run(t, new(EnvelopeTestSuite))
}

func (s *EnvelopeTestSuite) SetupTest() {
	key, err := relay.NewSymKey()
	s.Nil(err)
	s.key = key
}

func (s *EnvelopeTestSuite) Test_ParseURI_ValidURI() {
	topic := relay.TopicFromKey(s.key)

	gotTopic, gotKey, err := relay.ParseURI(relay.FormatURI(topic, s.key))

	s.Nil(err)
	s.Equal(topic, gotTopic)
	s.Equal(s.key, gotKey)
}

func (s *EnvelopeTestSuite) Test_ParseURI_Invalid() {
	other, err := relay.NewSymKey()
	s.Nil(err)

	_, _, err = relay.ParseURI(relay.FormatURI(relay.TopicFromKey(other), s.key))
	s.NotNil(err)

	_, _, err = relay.ParseURI("https://example.com")
	s.NotNil(err)

	_, _, err = relay.ParseURI("wc:abc@1?relay-protocol=irn&symKey=00")
	s.NotNil(err)
}

func (s *EnvelopeTestSuite) Test_OpenWithWrongKey() {
	sealed, err := relay.Seal(s.key, &relay.Envelope{ID: "1", Type: relay.TypeDelete})
	s.Nil(err)
	other, err := relay.NewSymKey()
	s.Nil(err)

	_, err = relay.Open(other, sealed)

	s.NotNil(err)
}

func (s *EnvelopeTestSuite) Test_OpenSealed() {
	sealed, err := relay.Seal(s.key, &relay.Envelope{ID: "1", Type: relay.TypeDelete})
	s.Nil(err)

	env, err := relay.Open(s.key, sealed)

	s.Nil(err)
	s.Equal("1", env.ID)
	s.Equal(relay.TypeDelete, env.Type)
}
