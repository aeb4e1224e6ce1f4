package binance

import (
	"context"
	"time"

	"github.com/quantarc/quantarc/internal/session"
)

// Listen keys are valid for 60 minutes; refreshing at 50 leaves headroom for
// the session manager's own refresh margin.
const listenKeyLifetime = 50 * time.Minute

// listenKeySource issues user data stream listen keys as session tokens.
type listenKeySource struct {
	client Client
	now    func() time.Time
}

var _ session.TokenSource = (*listenKeySource)(nil)

func newListenKeySource(client Client) *listenKeySource {
	return &listenKeySource{
		client: client,
		now:    time.Now,
	}
}

func (s *listenKeySource) Issue(ctx context.Context) (session.Token, error) {
	key, err := s.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return session.Token{}, classifyError(err, "failed to start user data stream")
	}

	return session.Token{
		Value:     key,
		ExpiresAt: s.now().Add(listenKeyLifetime),
	}, nil
}
