package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/custody"
	"github.com/xraph/custody/distribution"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/staking"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/vesting"
)

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.custody.Store().Ping(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "store unreachable")
		return
	}
	writeSuccess(w, map[string]string{"store": "ok"})
}

// ──────────────────────────────────────────────────
// Vesting
// ──────────────────────────────────────────────────

func (h *Handler) vestingTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	totals, err := h.custody.Vesting().Totals(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	withdrawable, err := h.custody.Vesting().Withdrawable(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, map[string]any{
		"totals":       totals,
		"withdrawable": withdrawable,
	})
}

type scheduleView struct {
	*vesting.Schedule
	Vested     types.Amount `json:"vested"`
	Releasable types.Amount `json:"releasable"`
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scheduleID, err := id.ParseScheduleID(chi.URLParam(r, "schedule_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	engine := h.custody.Vesting()
	sc, err := engine.Schedule(ctx, scheduleID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	vested, err := engine.Vested(ctx, scheduleID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	releasable, err := engine.Releasable(ctx, scheduleID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, scheduleView{Schedule: sc, Vested: vested, Releasable: releasable})
}

func (h *Handler) schedules(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	list, err := h.custody.Vesting().Schedules(r.Context(), addressParam(r), vesting.ListOpts{
		IncludeRevoked: r.URL.Query().Get("include_revoked") == "true",
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, list)
}

// ──────────────────────────────────────────────────
// Staking
// ──────────────────────────────────────────────────

func (h *Handler) stakingTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.custody.Staking().Totals(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, totals)
}

func (h *Handler) apyTable(w http.ResponseWriter, r *http.Request) {
	table := make(map[staking.Tier]int64, len(staking.Tiers()))
	for _, tier := range staking.Tiers() {
		apy, err := h.custody.Staking().APY(r.Context(), tier)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		table[tier] = apy
	}
	writeSuccess(w, table)
}

type positionView struct {
	*staking.Position
	PendingRewards types.Amount `json:"pending_rewards"`
}

func (h *Handler) position(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := addressParam(r)

	p, err := h.custody.Staking().Position(ctx, account)
	if errors.Is(err, custody.ErrNotActive) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no active position")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	pending, err := h.custody.Staking().PendingRewards(ctx, account)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, positionView{Position: p, PendingRewards: pending})
}

func (h *Handler) positions(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	list, err := h.custody.Staking().Positions(r.Context(), addressParam(r), staking.ListOpts{
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, list)
}

// ──────────────────────────────────────────────────
// Distribution
// ──────────────────────────────────────────────────

func (h *Handler) distributionTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	totals, err := h.custody.Distribution().Totals(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	withdrawable, err := h.custody.Distribution().Withdrawable(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, map[string]any{
		"totals":       totals,
		"outstanding":  totals.Outstanding(),
		"withdrawable": withdrawable,
	})
}

func (h *Handler) categories(w http.ResponseWriter, r *http.Request) {
	list, err := h.custody.Distribution().Categories(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, list)
}

func (h *Handler) category(w http.ResponseWriter, r *http.Request) {
	c, err := h.custody.Distribution().Category(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, c)
}

func (h *Handler) recipients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	if _, err := h.custody.Distribution().Category(ctx, name); err != nil {
		writeDomainError(w, err)
		return
	}
	list, err := h.custody.Distribution().Recipients(ctx, name, distribution.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, list)
}

func (h *Handler) recipient(w http.ResponseWriter, r *http.Request) {
	rec, err := h.custody.Distribution().Recipient(r.Context(), addressParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, rec)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func addressParam(r *http.Request) types.Address {
	return types.ParseAddress(chi.URLParam(r, "address"))
}

// pagination reads limit and offset. It writes a 400 and reports false when
// either is malformed.
func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", p.name+" must be a non-negative integer")
			return 0, 0, false
		}
		*p.dst = n
	}
	return limit, offset, true
}
