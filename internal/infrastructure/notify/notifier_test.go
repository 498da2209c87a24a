package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHeadline(t *testing.T) {
	tests := []struct {
		name string
		in   shared.Notification
		want string
	}{
		{
			name: "with subject",
			in:   shared.Notification{Topic: shared.TopicMismatchRepaired, Subject: "Route 7"},
			want: "Delivery Sheet Mismatch Repaired: Route 7",
		},
		{
			name: "without subject",
			in:   shared.Notification{Topic: shared.TopicLargeDiscount},
			want: "Invoice Group Large Discount",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Headline(tt.in))
		})
	}
}

func TestLogNotifier(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	err := n.Notify(context.Background(), shared.Notification{
		Topic:    shared.TopicSubSheetCreated,
		TenantID: uuid.New(),
		Subject:  "Courier A",
		Fields:   map[string]any{"items": 3},
	})
	require.NoError(t, err)

	logs := recorded.FilterMessage("Sub Sheet Created: Courier A").All()
	require.Len(t, logs, 1)
	assert.Equal(t, shared.TopicSubSheetCreated, logs[0].ContextMap()["topic"])
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(context.Context, shared.Notification) error {
	s.calls++
	return s.err
}

func TestMulti(t *testing.T) {
	failing := &stubNotifier{err: errors.New("redis down")}
	ok := &stubNotifier{}

	err := Multi{failing, ok}.Notify(context.Background(), shared.Notification{Topic: shared.TopicSheetGenerated})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls, "later notifiers still run after a failure")

	assert.NoError(t, Multi{ok}.Notify(context.Background(), shared.Notification{}))
}
