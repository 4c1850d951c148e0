package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/custody"
	"github.com/xraph/custody/access"
	"github.com/xraph/custody/api"
	"github.com/xraph/custody/clock"
	"github.com/xraph/custody/observability"
	"github.com/xraph/custody/staking"
	"github.com/xraph/custody/store/memory"
	tokenmem "github.com/xraph/custody/token/memory"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/vesting"
)

const (
	t0  int64 = 1_700_000_000
	day int64 = 86_400

	admin types.Address = "admin"
	alice types.Address = "alice"
)

type envelope struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	ctx    context.Context
	c      *custody.Custody
	ledger *tokenmem.Ledger
	clock  *clock.Manual
	srv    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := prometheus.NewRegistry()
	f := &fixture{
		ctx:    context.Background(),
		ledger: tokenmem.New(),
		clock:  clock.NewManualUnix(t0),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	c, err := custody.New(memory.New(), f.ledger,
		custody.WithLogger(logger),
		custody.WithClock(f.clock),
		custody.WithAuthorizer(access.NewStatic(admin)),
		custody.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
	)
	require.NoError(t, err)
	require.NoError(t, c.Start(f.ctx))
	t.Cleanup(func() { _ = c.Stop() })
	f.c = c

	h := api.NewHandler(c, api.WithLogger(logger), api.WithMetrics(reg))
	f.srv = httptest.NewServer(api.NewRouter(h))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) get(t *testing.T, path string) (int, envelope) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	status, env := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", env.Status)
}

func TestScheduleRoutes(t *testing.T) {
	f := newFixture(t)
	v := f.c.Vesting()
	f.ledger.Mint(v.Account(), types.NewAmount(365_000))

	sc, err := v.CreateSchedule(f.ctx, admin, custody.ScheduleParams{
		Beneficiary: alice,
		Kind:        vesting.KindLinear,
		Start:       t0,
		Duration:    365 * day,
		SlicePeriod: 1,
		Amount:      types.NewAmount(365_000),
	})
	require.NoError(t, err)
	f.clock.SetUnix(t0 + 100*day)

	status, env := f.get(t, "/v1/vesting/schedules/"+sc.ID.String())
	require.Equal(t, http.StatusOK, status)

	var view struct {
		ID         string `json:"id"`
		Vested     string `json:"vested"`
		Releasable string `json:"releasable"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, sc.ID.String(), view.ID)
	assert.Equal(t, "100000", view.Vested)
	assert.Equal(t, "100000", view.Releasable)

	status, env = f.get(t, "/v1/vesting/beneficiaries/ALICE/schedules")
	require.Equal(t, http.StatusOK, status)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	status, _ = f.get(t, "/v1/vesting/totals")
	assert.Equal(t, http.StatusOK, status)
}

func TestScheduleRouteErrors(t *testing.T) {
	f := newFixture(t)

	status, env := f.get(t, "/v1/vesting/schedules/not-an-id")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)

	status, _ = f.get(t, "/v1/vesting/beneficiaries/alice/schedules?limit=-1")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStakingRoutes(t *testing.T) {
	f := newFixture(t)
	s := f.c.Staking()
	require.NoError(t, s.UpdateAPY(f.ctx, admin, staking.TierFlexible, 100))

	f.ledger.Mint(alice, types.NewAmount(10_000))
	f.ledger.Approve(alice, s.Account(), types.NewAmount(10_000))
	_, err := s.Stake(f.ctx, alice, types.NewAmount(10_000), staking.TierFlexible)
	require.NoError(t, err)
	f.clock.SetUnix(t0 + 365*day)

	status, env := f.get(t, "/v1/staking/accounts/alice/position")
	require.Equal(t, http.StatusOK, status)
	var view struct {
		Amount         string `json:"amount"`
		PendingRewards string `json:"pending_rewards"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "10000", view.Amount)
	assert.Equal(t, "100", view.PendingRewards)

	status, env = f.get(t, "/v1/staking/apy")
	require.Equal(t, http.StatusOK, status)
	var table map[string]int64
	require.NoError(t, json.Unmarshal(env.Data, &table))
	assert.Equal(t, int64(100), table[string(staking.TierFlexible)])
	assert.Len(t, table, len(staking.Tiers()))

	status, env = f.get(t, "/v1/staking/accounts/bob/position")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Code)
}

func TestDistributionRoutes(t *testing.T) {
	f := newFixture(t)
	d := f.c.Distribution()
	f.ledger.Mint(d.Account(), types.NewAmount(1_000))

	_, err := d.CreateCategory(f.ctx, admin, "team", types.NewAmount(1_000), 10)
	require.NoError(t, err)
	_, err = d.DistributeToRecipient(f.ctx, admin, "team", alice, types.NewAmount(250))
	require.NoError(t, err)

	status, env := f.get(t, "/v1/distribution/categories/team")
	require.Equal(t, http.StatusOK, status)
	var cat struct {
		Distributed string `json:"distributed"`
		Recipients  int64  `json:"recipients"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &cat))
	assert.Equal(t, "250", cat.Distributed)
	assert.Equal(t, int64(1), cat.Recipients)

	status, env = f.get(t, "/v1/distribution/categories/team/recipients")
	require.Equal(t, http.StatusOK, status)
	var recipients []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &recipients))
	assert.Len(t, recipients, 1)

	status, _ = f.get(t, "/v1/distribution/recipients/alice")
	assert.Equal(t, http.StatusOK, status)

	status, _ = f.get(t, "/v1/distribution/categories/ghost/recipients")
	assert.Equal(t, http.StatusNotFound, status)

	status, env = f.get(t, "/v1/distribution/totals")
	require.Equal(t, http.StatusOK, status)
	var totals struct {
		Outstanding string `json:"outstanding"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &totals))
	assert.Equal(t, "750", totals.Outstanding)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "custody_vesting_releases_total")
}
