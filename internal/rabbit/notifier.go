package rabbit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"eventDesk/internal/dto"
)

type publisher interface {
	Publish(ctx context.Context, message []byte) error
}

// ChangeNotifier announces local writes to the other instances.
type ChangeNotifier struct {
	pub    publisher
	origin string
	log    *zerolog.Logger
}

func NewChangeNotifier(pub publisher, origin string, log *zerolog.Logger) *ChangeNotifier {
	return &ChangeNotifier{pub: pub, origin: origin, log: log}
}

func (n *ChangeNotifier) Notify(ctx context.Context, collection string) {
	payload, err := json.Marshal(dto.ChangeMessage{
		Collection: collection,
		Origin:     n.origin,
		ChangedAt:  time.Now().UTC(),
	})
	if err != nil {
		n.log.Error().Err(err).Msg("failed to marshal change message")
		return
	}
	if err := n.pub.Publish(ctx, payload); err != nil {
		n.log.Warn().Err(err).Str("collection", collection).Msg("failed to publish change message")
	}
}
