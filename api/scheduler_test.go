package api

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logger"
)

type stubDue struct {
	calls atomic.Int32
	due   []ledger.ScheduledTransaction
	err   error
}

func (s *stubDue) Due(ctx context.Context, asOf ledger.Epoch) ([]ledger.ScheduledTransaction, error) {
	s.calls.Add(1)
	return s.due, s.err
}

func TestReminderScanner_Scan(t *testing.T) {
	var buf bytes.Buffer
	stub := &stubDue{due: []ledger.ScheduledTransaction{
		{ID: 4, TemplateID: 2, NextDate: ledger.MustEpoch("2024-05-01"), ReminderDays: 7},
	}}
	rs := NewReminderScanner(stub, logger.NewWithWriter(&buf, "info"))
	rs.Now = func() ledger.Epoch { return ledger.MustEpoch("2024-04-28") }

	assert.Equal(t, 1, rs.Scan(t.Context()))
	assert.Contains(t, buf.String(), `"schedule_id":4`)
	assert.Contains(t, buf.String(), `"reminder_date":"2024-04-24"`)

	stub.err = errors.New("boom")
	assert.Zero(t, rs.Scan(t.Context()))
	assert.Contains(t, buf.String(), "failed to list due schedules")
}

func TestReminderScanner_StartStop(t *testing.T) {
	stub := &stubDue{}
	rs := NewReminderScanner(stub, logger.NewWithWriter(&bytes.Buffer{}, "error"))
	rs.CheckInterval = 5 * time.Millisecond

	rs.Start(t.Context())
	rs.Start(t.Context())
	require.Eventually(t, func() bool { return stub.calls.Load() >= 2 }, time.Second, time.Millisecond)
	rs.Stop()

	calls := stub.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, stub.calls.Load(), "no scans after Stop")
	rs.Stop()
}

func TestReminderScanner_Disabled(t *testing.T) {
	stub := &stubDue{}
	rs := NewReminderScanner(stub, logger.NewWithWriter(&bytes.Buffer{}, "error"))
	rs.CheckInterval = 0

	rs.Start(t.Context())
	rs.Stop()
	assert.Zero(t, stub.calls.Load())
}
