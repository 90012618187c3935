package events

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteAuditLine(t *testing.T) {
	ev := Event{
		Kind:       KindEquipmentBooking,
		Action:     "APPROVED",
		BookingID:  7,
		ResourceID: 3,
		OwnerID:    11,
		ActorID:    2,
		Status:     "APPROVED",
		OccurredAt: time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC),
	}
	body, err := json.Marshal(ev)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeAuditLine(&buf, body))
	require.True(t, strings.HasSuffix(buf.String(), "\n"))

	var got Event
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got))
	require.Equal(t, ev, got)
}

func TestWriteAuditLineRejectsMalformed(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, writeAuditLine(&buf, []byte("{not json")))
	require.Error(t, writeAuditLine(&buf, []byte(`{"kind":"MEETING"}`)))
	require.Zero(t, buf.Len())
}

func TestAuditConsumerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "bookings.log")
	c := NewAuditConsumer("amqp://unused", path, nil)

	for i := uint64(1); i <= 2; i++ {
		body, err := json.Marshal(Event{Kind: KindMeeting, BookingID: i, Status: "SCHEDULED"})
		require.NoError(t, err)
		require.NoError(t, c.handle(body))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2)
}

func TestSleepHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, sleep(ctx, time.Hour))
	require.True(t, sleep(context.Background(), time.Millisecond))
}
