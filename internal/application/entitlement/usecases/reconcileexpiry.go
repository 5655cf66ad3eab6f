package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"captionly/internal/domain/entitlement"
	"captionly/internal/domain/usage"
	"captionly/internal/infrastructure/cache"
	"captionly/internal/shared/biztime"
	"captionly/internal/shared/logger"
)

// ReconcileExpiryUseCase resolves the effective entitlement for a user before
// any quota or checkout decision. Expiry is lazy: nothing stores an expired
// tier, the lapsed window is collapsed to free on first observation.
type ReconcileExpiryUseCase struct {
	entitlementRepo  entitlement.Repository
	ledgerRepo       usage.LedgerRepository
	entitlementCache cache.EntitlementCache
	logger           logger.Interface
}

func NewReconcileExpiryUseCase(
	entitlementRepo entitlement.Repository,
	ledgerRepo usage.LedgerRepository,
	entitlementCache cache.EntitlementCache,
	logger logger.Interface,
) *ReconcileExpiryUseCase {
	return &ReconcileExpiryUseCase{
		entitlementRepo:  entitlementRepo,
		ledgerRepo:       ledgerRepo,
		entitlementCache: entitlementCache,
		logger:           logger,
	}
}

// Execute returns the user's current entitlement, downgrading a lapsed
// subscription window first. A missing row is materialized as free.
func (uc *ReconcileExpiryUseCase) Execute(ctx context.Context, userID uint) (*entitlement.Entitlement, error) {
	ent, err := uc.entitlementRepo.GetByUserID(ctx, userID)
	if errors.Is(err, entitlement.ErrNotFound) {
		return uc.createFree(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}

	now := biztime.NowUTC()
	if !ent.IsExpired(now) {
		return ent, nil
	}

	downgraded, err := uc.entitlementRepo.DowngradeExpired(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to downgrade expired entitlement: %w", err)
	}

	if downgraded {
		uc.logger.Infow("expired subscription collapsed to free",
			"user_id", userID,
			"previous_tier", ent.Tier(),
		)

		freeLimit := entitlement.LimitsFor(entitlement.TierFree).MonthlyLimit
		period := usage.CurrentPeriod(now)
		if err := uc.ledgerRepo.ResyncLimit(ctx, userID, period, freeLimit); err != nil {
			uc.logger.Warnw("failed to resync usage limit after downgrade", "error", err, "user_id", userID)
		}

		if uc.entitlementCache != nil {
			if err := uc.entitlementCache.Invalidate(ctx, userID); err != nil {
				uc.logger.Warnw("failed to invalidate entitlement cache", "error", err, "user_id", userID)
			}
		}
	}

	// re-read: a concurrent renewal webhook may have restored premium
	ent, err = uc.entitlementRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload entitlement: %w", err)
	}

	return ent, nil
}

// EffectiveView is the subset of entitlement state the quota and usage read
// paths need. It can be served from a cached snapshot without touching the
// database.
type EffectiveView struct {
	Tier            entitlement.Tier
	Limits          entitlement.TierLimits
	SubscriptionEnd *time.Time
	TrialActivated  bool
}

// View resolves the effective tier for hot read paths. A fresh cached
// snapshot answers without a database round trip; otherwise the row is read,
// a lapsed window is collapsed through Execute, and the result is cached. A
// user with no row is reported as free without materializing one; the first
// billing transition creates it.
func (uc *ReconcileExpiryUseCase) View(ctx context.Context, userID uint) (*EffectiveView, error) {
	if view := uc.cachedView(ctx, userID); view != nil {
		return view, nil
	}

	ent, err := uc.entitlementRepo.GetByUserID(ctx, userID)
	if errors.Is(err, entitlement.ErrNotFound) {
		uc.markAbsent(ctx, userID)
		return freeView(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}

	if ent.IsExpired(biztime.NowUTC()) {
		ent, err = uc.Execute(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	uc.cacheSnapshot(ctx, ent)
	return viewOf(ent), nil
}

// cachedView returns a view served from the snapshot cache, or nil when the
// cache is absent, missed, or holds a lapsed window.
func (uc *ReconcileExpiryUseCase) cachedView(ctx context.Context, userID uint) *EffectiveView {
	if uc.entitlementCache == nil {
		return nil
	}

	snap, err := uc.entitlementCache.GetSnapshot(ctx, userID)
	if err != nil {
		uc.logger.Warnw("entitlement cache read failed", "error", err, "user_id", userID)
		return nil
	}
	if snap == nil {
		return nil
	}
	if snap.NotFound {
		return freeView()
	}

	tier, err := entitlement.NewTier(snap.Tier)
	if err != nil {
		return nil
	}
	if snap.SubscriptionEnd.IsZero() {
		if tier != entitlement.TierFree {
			return nil
		}
		return freeView()
	}
	if !snap.SubscriptionEnd.After(biztime.NowUTC()) {
		// lapsed snapshot; the database path collapses the window
		return nil
	}

	end := snap.SubscriptionEnd
	return &EffectiveView{
		Tier:            tier,
		Limits:          entitlement.LimitsFor(tier),
		SubscriptionEnd: &end,
		TrialActivated:  snap.TrialActivated,
	}
}

func (uc *ReconcileExpiryUseCase) cacheSnapshot(ctx context.Context, ent *entitlement.Entitlement) {
	if uc.entitlementCache == nil {
		return
	}

	snap := &cache.CachedEntitlement{
		Tier:           ent.Tier().String(),
		TrialActivated: ent.TrialActivated(),
	}
	if end := ent.SubscriptionEnd(); end != nil {
		snap.SubscriptionEnd = *end
	}

	if err := uc.entitlementCache.SetSnapshot(ctx, ent.UserID(), snap); err != nil {
		uc.logger.Warnw("failed to cache entitlement snapshot", "error", err, "user_id", ent.UserID())
	}
}

func (uc *ReconcileExpiryUseCase) markAbsent(ctx context.Context, userID uint) {
	if uc.entitlementCache == nil {
		return
	}
	if err := uc.entitlementCache.SetNullMarker(ctx, userID); err != nil {
		uc.logger.Warnw("failed to cache entitlement null marker", "error", err, "user_id", userID)
	}
}

func freeView() *EffectiveView {
	return &EffectiveView{
		Tier:   entitlement.TierFree,
		Limits: entitlement.LimitsFor(entitlement.TierFree),
	}
}

func viewOf(ent *entitlement.Entitlement) *EffectiveView {
	return &EffectiveView{
		Tier:            ent.Tier(),
		Limits:          ent.Limits(),
		SubscriptionEnd: ent.SubscriptionEnd(),
		TrialActivated:  ent.TrialActivated(),
	}
}

func (uc *ReconcileExpiryUseCase) createFree(ctx context.Context, userID uint) (*entitlement.Entitlement, error) {
	ent, err := entitlement.NewEntitlement(userID)
	if err != nil {
		return nil, err
	}

	if err := uc.entitlementRepo.Create(ctx, ent); err != nil {
		// a concurrent request may have created it first
		existing, getErr := uc.entitlementRepo.GetByUserID(ctx, userID)
		if getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create entitlement: %w", err)
	}

	uc.logger.Infow("free entitlement created", "user_id", userID)

	return ent, nil
}
