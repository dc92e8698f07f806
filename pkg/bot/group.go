package bot

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ChatAll sends message to every bot in parallel and returns the exchanges
// in bot order. Each bot owns its session, so no state is shared.
func ChatAll(ctx context.Context, bots []*Bot, message string) []Exchange {
	out := make([]Exchange, len(bots))
	g, ctx := errgroup.WithContext(ctx)
	for i, b := range bots {
		g.Go(func() error {
			out[i] = b.Chat(ctx, message)
			return nil
		})
	}
	// Chat never returns an error.
	_ = g.Wait()
	return out
}

// Script is the ordered messages of one simulated user.
type Script struct {
	UserID   string
	Messages []string
}

// Simulate plays each script against its own bot, created by newBot, with
// at most limit users in flight (no limit when limit <= 0). Every session
// is closed when its script ends. Bots are returned in script order.
func Simulate(ctx context.Context, scripts []Script, limit int, newBot func(Script) (*Bot, error)) ([]*Bot, error) {
	bots := make([]*Bot, len(scripts))
	for i, s := range scripts {
		b, err := newBot(s)
		if err != nil {
			return nil, err
		}
		bots[i] = b
	}

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, s := range scripts {
		b := bots[i]
		g.Go(func() error {
			defer b.Close()
			for _, msg := range s.Messages {
				if err := ctx.Err(); err != nil {
					return err
				}
				b.Chat(ctx, msg)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return bots, err
	}
	return bots, nil
}
