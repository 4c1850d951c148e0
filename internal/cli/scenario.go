package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/custody"
	"github.com/xraph/custody/access"
	audithook "github.com/xraph/custody/audit_hook"
	"github.com/xraph/custody/clock"
	"github.com/xraph/custody/staking"
	"github.com/xraph/custody/store/memory"
	tokenmem "github.com/xraph/custody/token/memory"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/vesting"
)

// Scenario is a scripted sequence of custody operations.
type Scenario struct {
	Name   string   `yaml:"name"`
	Start  int64    `yaml:"start"`
	Admins []string `yaml:"admins"`
	Steps  []Step   `yaml:"steps"`
}

// Step is one scenario operation. Which fields apply depends on Action.
//
// Account names starting with "$" resolve to engine custody accounts:
// $vesting, $staking and $distribution.
type Step struct {
	Action string `yaml:"action"`

	// Clock control, applied before the action.
	Advance time.Duration `yaml:"advance"`
	At      int64         `yaml:"at"`

	Caller  string `yaml:"caller"`
	Account string `yaml:"account"`
	Spender string `yaml:"spender"`
	To      string `yaml:"to"`

	// Vesting.
	Beneficiary string        `yaml:"beneficiary"`
	Sequence    uint64        `yaml:"sequence"`
	Kind        string        `yaml:"kind"`
	Cliff       time.Duration `yaml:"cliff"`
	Duration    time.Duration `yaml:"duration"`
	Slice       time.Duration `yaml:"slice"`

	// Staking.
	Tier string `yaml:"tier"`
	APY  int64  `yaml:"apy"`

	// Distribution.
	Category   string   `yaml:"category"`
	Capacity   string   `yaml:"capacity"`
	Cap        int64    `yaml:"cap"`
	Recipients []Payout `yaml:"recipients"`

	Amount string `yaml:"amount"`

	// ExpectError makes the step pass only if it fails with an error whose
	// message contains this text.
	ExpectError string `yaml:"expect_error"`
}

// Payout is one batch entry.
type Payout struct {
	Address string `yaml:"address"`
	Amount  string `yaml:"amount"`
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

// ParseScenario decodes a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, errors.New("parse scenario: no steps")
	}
	for i, st := range sc.Steps {
		if st.Action == "" {
			return nil, fmt.Errorf("parse scenario: step %d has no action", i+1)
		}
	}
	return &sc, nil
}

// StepResult records the outcome of one step.
type StepResult struct {
	Index  int    `json:"index"`
	Action string `json:"action"`
	At     int64  `json:"at"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	OK     bool   `json:"ok"`
}

// Report is the outcome of a scenario run.
type Report struct {
	Name     string                  `json:"name"`
	Steps    []StepResult            `json:"steps"`
	Events   []*audithook.AuditEvent `json:"events"`
	Balances map[string]types.Amount `json:"balances"`
	Failed   int                     `json:"failed"`
}

func (r *Report) String() string {
	var b strings.Builder
	if r.Name != "" {
		fmt.Fprintf(&b, "scenario: %s\n", r.Name)
	}
	for _, st := range r.Steps {
		mark := "ok  "
		if !st.OK {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "%s %3d %-20s t=%d", mark, st.Index, st.Action, st.At)
		if st.Result != "" {
			fmt.Fprintf(&b, " %s", st.Result)
		}
		if st.Error != "" {
			fmt.Fprintf(&b, " error=%q", st.Error)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "signals: %d\n", len(r.Events))
	for _, evt := range r.Events {
		fmt.Fprintf(&b, "  %-32s %s\n", evt.Action, evt.ResourceID)
	}
	b.WriteString("balances:\n")
	names := make([]string, 0, len(r.Balances))
	for n := range r.Balances {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&b, "  %-24s %s\n", n, r.Balances[n])
	}
	fmt.Fprintf(&b, "failed: %d", r.Failed)
	return b.String()
}

// Simulator runs scenarios against memory backends.
type Simulator struct {
	Custody *custody.Custody
	Ledger  *tokenmem.Ledger
	Clock   *clock.Manual

	ctx      context.Context
	mu       sync.Mutex
	events   []*audithook.AuditEvent
	accounts map[types.Address]struct{}
}

// NewSimulator builds engines on a memory store, memory ledger and manual
// clock starting at start.
func NewSimulator(ctx context.Context, start int64, admins []string, logger *slog.Logger) (*Simulator, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if start == 0 {
		start = time.Now().Unix()
	}

	s := &Simulator{
		Ledger:   tokenmem.New(),
		Clock:    clock.NewManualUnix(start),
		ctx:      ctx,
		accounts: make(map[types.Address]struct{}),
	}

	adminAddrs := make([]types.Address, 0, len(admins))
	for _, a := range admins {
		adminAddrs = append(adminAddrs, types.ParseAddress(a))
	}

	recorder := audithook.RecorderFunc(func(_ context.Context, evt *audithook.AuditEvent) error {
		s.mu.Lock()
		s.events = append(s.events, evt)
		s.mu.Unlock()
		return nil
	})

	c, err := custody.New(memory.New(), s.Ledger,
		custody.WithLogger(logger),
		custody.WithClock(s.Clock),
		custody.WithAuthorizer(access.NewStatic(adminAddrs...)),
		custody.WithPlugin(audithook.New(recorder, audithook.WithLogger(logger))),
	)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	s.Custody = c
	for _, a := range []types.Address{c.Vesting().Account(), c.Staking().Account(), c.Distribution().Account()} {
		s.accounts[a] = struct{}{}
	}
	return s, nil
}

// Run executes every step in order. A failing step is recorded and the run
// continues.
func (s *Simulator) Run(sc *Scenario) *Report {
	r := &Report{Name: sc.Name}
	for i, st := range sc.Steps {
		if st.At != 0 {
			s.Clock.SetUnix(st.At)
		}
		if st.Advance != 0 {
			s.Clock.Advance(st.Advance)
		}

		res := StepResult{Index: i + 1, Action: st.Action, At: clock.Unix(s.Clock)}
		out, err := s.apply(st)
		switch {
		case st.ExpectError != "" && err == nil:
			res.Error = fmt.Sprintf("expected error containing %q", st.ExpectError)
		case st.ExpectError != "" && strings.Contains(err.Error(), st.ExpectError):
			res.OK = true
			res.Error = err.Error()
		case err != nil:
			res.Error = err.Error()
		default:
			res.OK = true
			res.Result = out
		}
		if !res.OK {
			r.Failed++
		}
		r.Steps = append(r.Steps, res)
	}

	s.mu.Lock()
	r.Events = append([]*audithook.AuditEvent(nil), s.events...)
	s.mu.Unlock()
	r.Balances = make(map[string]types.Amount, len(s.accounts))
	for a := range s.accounts {
		bal, err := s.Ledger.BalanceOf(s.ctx, a)
		if err == nil {
			r.Balances[a.String()] = bal
		}
	}
	return r
}

// Close stops the engines.
func (s *Simulator) Close() error {
	return s.Custody.Stop()
}

func (s *Simulator) addr(name string) types.Address {
	var a types.Address
	switch name {
	case "$vesting":
		a = s.Custody.Vesting().Account()
	case "$staking":
		a = s.Custody.Staking().Account()
	case "$distribution":
		a = s.Custody.Distribution().Account()
	default:
		a = types.ParseAddress(name)
	}
	if !a.IsZero() {
		s.accounts[a] = struct{}{}
	}
	return a
}

func (s *Simulator) apply(st Step) (string, error) {
	ctx := s.ctx
	c := s.Custody
	caller := s.addr(st.Caller)

	amount := types.ZeroAmount()
	if st.Amount != "" {
		a, err := types.ParseAmount(st.Amount)
		if err != nil {
			return "", fmt.Errorf("amount: %w", err)
		}
		amount = a
	}

	switch st.Action {
	case "mint":
		s.Ledger.Mint(s.addr(st.Account), amount)
		return amount.String(), nil
	case "approve":
		s.Ledger.Approve(s.addr(st.Account), s.addr(st.Spender), amount)
		return amount.String(), nil

	// Vesting
	case "create_schedule":
		sc, err := c.Vesting().CreateSchedule(ctx, caller, custody.ScheduleParams{
			Beneficiary: s.addr(st.Beneficiary),
			Kind:        vesting.Kind(st.Kind),
			Start:       clock.Unix(s.Clock),
			Cliff:       int64(st.Cliff / time.Second),
			Duration:    int64(st.Duration / time.Second),
			SlicePeriod: max(int64(st.Slice/time.Second), 1),
			Amount:      amount,
		})
		if err != nil {
			return "", err
		}
		return "schedule=" + sc.ID.String(), nil
	case "release":
		return amount.String(), c.Vesting().Release(ctx, caller, s.scheduleID(st), amount)
	case "release_all":
		released, err := c.Vesting().ReleaseAll(ctx, caller, s.scheduleID(st))
		return released.String(), err
	case "revoke":
		return "", c.Vesting().Revoke(ctx, caller, s.scheduleID(st))

	// Staking
	case "stake":
		p, err := c.Staking().Stake(ctx, caller, amount, staking.Tier(st.Tier))
		if err != nil {
			return "", err
		}
		return "position=" + p.ID.String(), nil
	case "claim":
		reward, err := c.Staking().ClaimRewards(ctx, caller)
		return reward.String(), err
	case "unstake":
		evt, err := c.Staking().Unstake(ctx, caller)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("principal=%s rewards=%s", evt.Principal, evt.Rewards), nil
	case "emergency_withdraw":
		evt, err := c.Staking().EmergencyWithdraw(ctx, caller)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("principal=%s forfeited=%s", evt.Principal, evt.Forfeited), nil
	case "update_apy":
		return "", c.Staking().UpdateAPY(ctx, caller, staking.Tier(st.Tier), st.APY)
	case "add_rewards_reserve":
		return amount.String(), c.Staking().AddRewardsReserve(ctx, caller, amount)
	case "distribute_rewards":
		return amount.String(), c.Staking().DistributeRewards(ctx, caller, amount)

	// Distribution
	case "create_category":
		capacity, err := types.ParseAmount(st.Capacity)
		if err != nil {
			return "", fmt.Errorf("capacity: %w", err)
		}
		cat, err := c.Distribution().CreateCategory(ctx, caller, st.Category, capacity, st.Cap)
		if err != nil {
			return "", err
		}
		return "category=" + cat.ID.String(), nil
	case "pause_category":
		return "", c.Distribution().PauseCategory(ctx, caller, st.Category)
	case "resume_category":
		return "", c.Distribution().ResumeCategory(ctx, caller, st.Category)
	case "distribute":
		_, err := c.Distribution().DistributeToRecipient(ctx, caller, st.Category, s.addr(st.To), amount)
		return amount.String(), err
	case "distribute_batch":
		addrs := make([]types.Address, 0, len(st.Recipients))
		amounts := make([]types.Amount, 0, len(st.Recipients))
		for _, p := range st.Recipients {
			a, err := types.ParseAmount(p.Amount)
			if err != nil {
				return "", fmt.Errorf("recipient %s amount: %w", p.Address, err)
			}
			addrs = append(addrs, s.addr(p.Address))
			amounts = append(amounts, a)
		}
		paid, err := c.Distribution().DistributeBatch(ctx, caller, st.Category, addrs, amounts)
		return fmt.Sprintf("recipients=%d", len(paid)), err
	case "withdraw_unused":
		return amount.String(), c.Distribution().WithdrawUnusedTokens(ctx, caller, s.addr(st.To), amount)
	case "emergency_sweep":
		swept, err := c.Distribution().EmergencyWithdraw(ctx, caller, s.addr(st.To))
		return swept.String(), err
	}

	return "", fmt.Errorf("unknown action %q", st.Action)
}

func (s *Simulator) scheduleID(st Step) custody.ID {
	return s.Custody.Vesting().ScheduleIDAt(s.addr(st.Beneficiary), st.Sequence)
}
