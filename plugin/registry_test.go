package plugin_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/types"
)

type namedPlugin struct{ name string }

func (p *namedPlugin) Name() string { return p.name }

type releaseCounter struct {
	namedPlugin
	calls atomic.Int32
	err   error
}

func (p *releaseCounter) OnTokensReleased(context.Context, *plugin.TokensReleased) error {
	p.calls.Add(1)
	return p.err
}

type slowPlugin struct {
	namedPlugin
	release chan struct{}
}

func (p *slowPlugin) OnCategoryCreated(ctx context.Context, _ *plugin.CategoryCreated) error {
	select {
	case <-p.release:
	case <-ctx.Done():
	}
	return nil
}

func quietRegistry() *plugin.Registry {
	return plugin.NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	r := quietRegistry()
	require.NoError(t, r.Register(&namedPlugin{name: "audit"}))
	require.Error(t, r.Register(&namedPlugin{name: "audit"}))

	assert.Equal(t, 1, r.Count())
	assert.NotNil(t, r.Get("audit"))
	assert.Nil(t, r.Get("metrics"))
	assert.Len(t, r.List(), 1)
}

func TestEmitReachesOnlyImplementers(t *testing.T) {
	r := quietRegistry()
	counter := &releaseCounter{namedPlugin: namedPlugin{name: "counter"}}
	require.NoError(t, r.Register(counter))
	require.NoError(t, r.Register(&namedPlugin{name: "bare"}))

	evt := &plugin.TokensReleased{Beneficiary: "alice", Amount: types.NewAmount(10), At: 1}
	r.EmitTokensReleased(context.Background(), evt)
	r.EmitStakeCreated(context.Background(), &plugin.StakeCreated{})

	assert.Equal(t, int32(1), counter.calls.Load())
}

func TestEmitContinuesPastFailingPlugin(t *testing.T) {
	r := quietRegistry()
	failing := &releaseCounter{namedPlugin: namedPlugin{name: "failing"}, err: errors.New("boom")}
	healthy := &releaseCounter{namedPlugin: namedPlugin{name: "healthy"}}
	require.NoError(t, r.Register(failing))
	require.NoError(t, r.Register(healthy))

	r.EmitTokensReleased(context.Background(), &plugin.TokensReleased{})

	assert.Equal(t, int32(1), failing.calls.Load())
	assert.Equal(t, int32(1), healthy.calls.Load())
}

func TestEmitTimesOutSlowPlugin(t *testing.T) {
	r := quietRegistry().WithTimeout(20 * time.Millisecond)
	slow := &slowPlugin{namedPlugin: namedPlugin{name: "slow"}, release: make(chan struct{})}
	defer close(slow.release)
	require.NoError(t, r.Register(slow))

	start := time.Now()
	r.EmitCategoryCreated(context.Background(), &plugin.CategoryCreated{Name: "team"})
	assert.Less(t, time.Since(start), time.Second)
}
