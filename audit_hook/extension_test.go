package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithook "github.com/xraph/custody/audit_hook"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/types"
)

type captured struct {
	events []*audithook.AuditEvent
}

func (c *captured) recorder() audithook.RecorderFunc {
	return func(_ context.Context, evt *audithook.AuditEvent) error {
		c.events = append(c.events, evt)
		return nil
	}
}

func TestRecordsSignalMetadata(t *testing.T) {
	ctx := context.Background()
	var c captured
	ext := audithook.New(c.recorder())

	scheduleID := id.NewScheduleID("custody:vesting", "alice", 0)
	require.NoError(t, ext.OnScheduleRevoked(ctx, &plugin.ScheduleRevoked{
		ScheduleID:  scheduleID,
		Beneficiary: "alice",
		Released:    types.NewAmount(40),
		Reclaimed:   types.NewAmount(60),
	}))

	require.Len(t, c.events, 1)
	evt := c.events[0]
	assert.Equal(t, audithook.ActionScheduleRevoked, evt.Action)
	assert.Equal(t, audithook.ResourceSchedule, evt.Resource)
	assert.Equal(t, scheduleID.String(), evt.ResourceID)
	assert.Equal(t, audithook.SeverityWarning, evt.Severity)
	assert.Equal(t, "60", evt.Metadata["reclaimed"])
}

func TestCategoryStatusMapsToPauseAndResume(t *testing.T) {
	ctx := context.Background()
	var c captured
	ext := audithook.New(c.recorder())

	require.NoError(t, ext.OnCategoryStatusChanged(ctx, &plugin.CategoryStatusChanged{Name: "team"}))
	require.NoError(t, ext.OnCategoryStatusChanged(ctx, &plugin.CategoryStatusChanged{Name: "team", Active: true}))

	require.Len(t, c.events, 2)
	assert.Equal(t, audithook.ActionCategoryPaused, c.events[0].Action)
	assert.Equal(t, audithook.ActionCategoryResumed, c.events[1].Action)
}

func TestEnabledAndDisabledActions(t *testing.T) {
	ctx := context.Background()
	evt := &plugin.EmergencySwept{Account: "custody:distribution", To: "treasury", Amount: types.NewAmount(1)}

	var only captured
	ext := audithook.New(only.recorder(), audithook.WithEnabledActions(audithook.ActionTokensReleased))
	require.NoError(t, ext.OnEmergencySwept(ctx, evt))
	assert.Empty(t, only.events)

	var all captured
	ext = audithook.New(all.recorder(), audithook.WithDisabledActions(audithook.ActionTokensReleased))
	require.NoError(t, ext.OnEmergencySwept(ctx, evt))
	require.Len(t, all.events, 1)
	assert.Equal(t, audithook.SeverityCritical, all.events[0].Severity)
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	failing := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	})
	ext := audithook.New(failing, audithook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	err := ext.OnAPYUpdated(context.Background(), &plugin.APYUpdated{Tier: "flexible", OldAPY: 500, NewAPY: 600})
	assert.NoError(t, err)
}
