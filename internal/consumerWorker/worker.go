package consumerWorker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"eventDesk/internal/dto"
)

type consumer interface {
	Consume(handler func([]byte) error) error
}

type Trigger interface {
	Trigger(reason string)
}

// Reader turns change messages from other instances into sync requests.
type Reader struct {
	RMQ     consumer
	sync    Trigger
	origin  string
	log     *zerolog.Logger
	done    chan struct{}
	cancel  context.CancelFunc
	started bool
}

func NewReader(rmq consumer, sync Trigger, origin string, log *zerolog.Logger) *Reader {
	return &Reader{
		RMQ:    rmq,
		sync:   sync,
		origin: origin,
		log:    log,
		done:   make(chan struct{}),
	}
}

func (r *Reader) handle(body []byte) error {
	var msg dto.ChangeMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal change message: %w", err)
	}
	if msg.Origin == r.origin {
		return nil
	}
	r.log.Info().
		Str("collection", msg.Collection).
		Str("origin", msg.Origin).
		Time("changed_at", msg.ChangedAt).
		Msg("remote change announced")
	r.sync.Trigger("peer change: " + msg.Collection)
	return nil
}

func (r *Reader) Start(ctx context.Context) error {
	cctx, cancel := context.WithCancel(ctx)
	if err := r.RMQ.Consume(r.handle); err != nil {
		cancel()
		return fmt.Errorf("start consuming: %w", err)
	}
	r.cancel = cancel
	r.started = true
	r.log.Info().Msg("change reader started")

	go func() {
		defer close(r.done)
		<-cctx.Done()
		r.log.Info().Msg("change reader stopped")
	}()
	return nil
}

func (r *Reader) Stop() {
	if r.started {
		r.cancel()
		<-r.done
	}
}
