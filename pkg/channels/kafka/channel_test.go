package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/ruleflow/pkg/events"
)

func TestParseBrokers(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "empty", raw: "", want: nil},
		{name: "single", raw: "localhost:9092", want: []string{"localhost:9092"}},
		{name: "trims blanks", raw: " a:9092, ,b:9092 ", want: []string{"a:9092", "b:9092"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseBrokers(tt.raw))
		})
	}
}

func TestCreateChannel_NoBrokers(t *testing.T) {
	pub, sub, err := CreateChannel(watermill.NopLogger{}, nil, "ruleflow")
	require.ErrorIs(t, err, ErrNoBrokers)
	assert.Nil(t, pub)
	assert.Nil(t, sub)
}

func TestRecordKey(t *testing.T) {
	msg := message.NewMessage("1", []byte("{}"))
	msg.Metadata.Set(events.EventMetadataKey, "leave:L1")

	key, err := recordKey(events.Topic, msg)
	require.NoError(t, err)
	assert.Equal(t, "leave:L1", key)
}
