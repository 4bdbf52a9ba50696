package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventDesk/internal/dto"
)

type fakePublisher struct {
	msgs [][]byte
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, msg []byte) error {
	f.msgs = append(f.msgs, msg)
	return f.err
}

func TestChangeNotifier_Notify(t *testing.T) {
	log := zerolog.Nop()
	pub := &fakePublisher{}

	NewChangeNotifier(pub, "instance-1", &log).Notify(context.Background(), "events")

	require.Len(t, pub.msgs, 1)
	var msg dto.ChangeMessage
	require.NoError(t, json.Unmarshal(pub.msgs[0], &msg))
	assert.Equal(t, "events", msg.Collection)
	assert.Equal(t, "instance-1", msg.Origin)
	assert.False(t, msg.ChangedAt.IsZero())
}

func TestChangeNotifier_PublishErrorIsSwallowed(t *testing.T) {
	log := zerolog.Nop()
	pub := &fakePublisher{err: errors.New("channel closed")}

	assert.NotPanics(t, func() {
		NewChangeNotifier(pub, "i", &log).Notify(context.Background(), "registrations")
	})
	assert.Len(t, pub.msgs, 1)
}
