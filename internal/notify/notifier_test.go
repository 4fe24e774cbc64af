package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (s *recordingSender) Send(ctx context.Context, title, message string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByEvent(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{"copier.error"}, discardLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "copier.error", "boom", "details"))
	require.NoError(t, n.Notify(ctx, "trade.copied", "fill", "details"))

	assert.Equal(t, []string{"boom"}, sender.titles)
}

func TestNotifyEmptyFilterAllowsEverything(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "anything.at.all", "title", "msg"))
	assert.Len(t, sender.titles, 1)
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{"copier.error"}, discardLogger())

	require.NoError(t, n.NotifyAll(context.Background(), "maintenance", "msg"))
	assert.Equal(t, []string{"maintenance"}, sender.titles)
}

func TestDispatchContinuesPastFailingSenders(t *testing.T) {
	failing := &recordingSender{name: "telegram", err: errors.New("429")}
	healthy := &recordingSender{name: "discord"}
	n := NewNotifier([]Sender{failing, healthy}, nil, discardLogger())

	err := n.Notify(context.Background(), "copier.error", "boom", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")

	// The failure did not block the second channel.
	assert.Len(t, healthy.titles, 1)
}

func TestNotifyWithoutSenders(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	assert.NoError(t, n.Notify(context.Background(), "copier.error", "boom", "msg"))
}
