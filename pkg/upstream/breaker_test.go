package upstream

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngoyal88/studybuddy-relay/pkg/ai"
	"github.com/ngoyal88/studybuddy-relay/pkg/chat"
)

type stubStream struct {
	frags []string
	err   error
}

func (s *stubStream) Recv() (string, error) {
	if len(s.frags) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	f := s.frags[0]
	s.frags = s.frags[1:]
	return f, nil
}

func (s *stubStream) Usage() *ai.Usage { return nil }
func (s *stubStream) Close() error     { return nil }

type stubCompleter struct {
	err       error
	streamErr error
}

func (c *stubCompleter) Complete(context.Context, Request) (*Completion, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &Completion{Message: chat.Message{Role: chat.RoleAssistant, Content: "ok"}}, nil
}

func (c *stubCompleter) Stream(context.Context, Request) (Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &stubStream{frags: []string{"a"}, err: c.streamErr}, nil
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	stub := &stubCompleter{err: errors.New("500")}
	b := NewBreaker(stub, BreakerSettings{Name: "trip-test", ConsecutiveFailures: 3, OpenTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.Complete(ctx, Request{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.Complete(ctx, Request{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	_, err = b.Stream(ctx, Request{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreaker_CanceledCallsDoNotTrip(t *testing.T) {
	stub := &stubCompleter{err: context.Canceled}
	b := NewBreaker(stub, BreakerSettings{Name: "cancel-test", ConsecutiveFailures: 1})

	for i := 0; i < 3; i++ {
		_, err := b.Complete(context.Background(), Request{})
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_MidStreamFailureCounts(t *testing.T) {
	stub := &stubCompleter{streamErr: errors.New("connection reset")}
	b := NewBreaker(stub, BreakerSettings{Name: "stream-test", ConsecutiveFailures: 1})

	s, err := b.Stream(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "closed", b.State())

	text, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "a", text)

	_, err = s.Recv()
	require.Error(t, err)
	require.NoError(t, s.Close())

	assert.Equal(t, "open", b.State())
}

func TestBreaker_StreamSuccess(t *testing.T) {
	b := NewBreaker(&stubCompleter{}, BreakerSettings{Name: "ok-test", ConsecutiveFailures: 1})

	s, err := b.Stream(context.Background(), Request{})
	require.NoError(t, err)
	for {
		if _, err := s.Recv(); err != nil {
			assert.ErrorIs(t, err, io.EOF)
			break
		}
	}
	require.NoError(t, s.Close())
	assert.Equal(t, "closed", b.State())

	c, err := b.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", c.Message.Content)
}
