package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Publisher receives the payload of every notification.
type Publisher interface {
	Publish(topic string)
}

// Listener relays Postgres NOTIFY payloads on one channel to a Publisher.
// It holds a dedicated connection outside the database/sql pool.
type Listener struct {
	connString string
	channel    string
	pub        Publisher
	log        *zap.Logger
	backoff    time.Duration
}

func NewListener(connString, channel string, pub Publisher, log *zap.Logger) *Listener {
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{connString: connString, channel: channel, pub: pub, log: log, backoff: 2 * time.Second}
}

// Run listens until ctx is done, reconnecting after connection failures.
func (l *Listener) Run(ctx context.Context) {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		l.log.Warn("notification listener disconnected", zap.String("channel", l.channel), zap.Error(err))
		select {
		case <-time.After(l.backoff):
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.log.Info("listening for changes", zap.String("channel", l.channel))
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Payload != "" {
			l.pub.Publish(n.Payload)
		}
	}
}
