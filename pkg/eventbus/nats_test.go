package eventbus

import (
	"context"
	"testing"
	"time"

	"cosmossdk.io/log"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/sharepool/indexer"
	"github.com/openalpha/sharepool/x/pool/types"
)

func sampleEvent() indexer.Event {
	return indexer.Event{
		Seq:    12,
		Type:   types.EventTypeDonationMade,
		PoolID: 3,
		Height: 40,
		Time:   time.Unix(1700000000, 0).UTC(),
		Attributes: map[string]string{
			types.AttributeKeyPoolID: "3",
			types.AttributeKeyDonor:  "dave",
			types.AttributeKeyAmount: "250",
		},
	}
}

func TestMessageEncoding(t *testing.T) {
	ev := sampleEvent()

	msg, err := NewMessage(DefaultSubjectPrefix, ev)
	require.NoError(t, err)
	require.Equal(t, "sharepool.events.donation_made", msg.Subject)
	require.Equal(t, "12", msg.Header.Get(nats.MsgIdHdr))

	decoded, err := DecodeMessage(msg)
	require.NoError(t, err)
	require.Equal(t, ev, decoded)
}

func TestDecodeRejectsMismatchedID(t *testing.T) {
	msg, err := NewMessage(DefaultSubjectPrefix, sampleEvent())
	require.NoError(t, err)
	msg.Header.Set(nats.MsgIdHdr, "13")

	_, err = DecodeMessage(msg)
	require.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeMessage(&nats.Msg{Subject: "x", Data: []byte("{")})
	require.Error(t, err)
}

func TestSubscriberDefaults(t *testing.T) {
	s := NewSubscriber(nil, "", "", log.NewNopLogger())
	require.Equal(t, "sharepool.events.>", s.Subject())
	require.Equal(t, DefaultQueueGroup, s.queue)
	require.NoError(t, s.Stop())
}

func TestPublisherWithoutConnection(t *testing.T) {
	p := NewPublisher(nil, "")
	require.Error(t, p.Consume(context.Background(), sampleEvent()))
	require.NoError(t, p.Close())
}
