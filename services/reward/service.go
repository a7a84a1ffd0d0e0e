package reward

import (
	"context"
	"time"

	asynqtask "engage-ledger/pkg/asynq"
	"engage-ledger/pkg/config"
	"engage-ledger/pkg/db/option"
	"engage-ledger/pkg/db/pagination"
	"engage-ledger/pkg/errutil"
	"engage-ledger/pkg/featureflags"
	"engage-ledger/pkg/rediskey"
	"engage-ledger/pkg/repository"
	"engage-ledger/services/engage"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// fifoOrder spends the vouchers that expire first. Vouchers without an expiry
// go last.
const fifoOrder = "valid_until IS NULL, valid_until ASC, created_at ASC"

var couponOrderColumns = []string{"minted_at"}

type Service struct {
	db *gorm.DB

	reward         repository.Repository[Reward]
	coupon         repository.Repository[Coupon]
	projectReward  repository.Repository[ProjectReward]
	campaignReward repository.Repository[CampaignReward]
	voucher        repository.Repository[engage.Voucher]

	locker   Locker
	notifier Notifier
	flags    featureflags.FeatureFlag
	lockTTL  time.Duration

	now func() time.Time
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Config   *config.Config
	Locker   Locker                   `optional:"true"`
	Notifier Notifier                 `optional:"true"`
	Flags    featureflags.FeatureFlag `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	lockTTL := 10 * time.Second
	if p.Config != nil && p.Config.Redeem.LockTTL > 0 {
		lockTTL = p.Config.Redeem.LockTTL
	}

	return &Service{
		db: p.DB,

		reward:         repository.ProvideStore[Reward](p.DB),
		coupon:         repository.ProvideStore[Coupon](p.DB),
		projectReward:  repository.ProvideStore[ProjectReward](p.DB),
		campaignReward: repository.ProvideStore[CampaignReward](p.DB),
		voucher:        repository.ProvideStore[engage.Voucher](p.DB),

		locker:   p.Locker,
		notifier: p.Notifier,
		flags:    p.Flags,
		lockTTL:  lockTTL,

		now: func() time.Time { return time.Now().UTC() },
	}
}

func traceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// Redeem spends the user's vouchers in scope on one coupon of the reward.
// The coupon pick, the voucher debits and the coupon assignment commit
// together or not at all.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (res *RedeemResult, err error) {
	start := time.Now()
	defer func() {
		observeRedeem(req.Scope, err, time.Since(start))
	}()

	if req.Scope != ScopeProject && req.Scope != ScopeCampaign {
		return nil, errutil.BadRequest("unsupported redemption scope", nil)
	}
	if req.UserID == "" {
		return nil, errutil.Unauthorized("missing user", nil)
	}

	log := zap.L().With(traceFields(ctx)...).With(
		zap.String("user_id", req.UserID),
		zap.String("reward_id", req.RewardID.String()),
		zap.String("scope", string(req.Scope)),
		zap.String("scope_id", req.ScopeID.String()),
	)

	if s.flags != nil && !s.flags.Enabled(ctx, featureflags.RedemptionEnabled, req.UserID) {
		return nil, errutil.ServiceUnavailable("redemption is disabled", nil)
	}

	if s.locker != nil {
		key := rediskey.BuildRedeemLockKey(string(req.Scope), req.ScopeID.String(), req.RewardID.String(), req.UserID)
		unlock, err := s.locker.Lock(ctx, key, s.lockTTL)
		if err != nil {
			return nil, errutil.Internal("failed to acquire redemption lock", err)
		}
		defer unlock(context.WithoutCancel(ctx))
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.redeem(ctx, tx, req, now, log)
		return err
	})
	if err != nil {
		log.Warn("redeem failed", zap.Error(err))
		return nil, err
	}

	log.Info("reward redeemed",
		zap.Int64("number", res.Coupon.Number),
		zap.Int("vouchers", len(res.Vouchers)),
		zap.Int64("balance", res.Balance),
	)

	if s.notifier != nil {
		if err := s.notifier.CouponAssigned(ctx, asynqtask.CouponAssignedPayload{
			RewardID: req.RewardID.String(),
			Number:   res.Coupon.Number,
			URL:      res.Coupon.URL,
			UserID:   req.UserID,
			Scope:    string(req.Scope),
			ScopeID:  req.ScopeID.String(),
			MintedAt: now,
		}); err != nil {
			log.Error("failed to enqueue coupon assignment", zap.Error(err))
		}
	}

	return res, nil
}

func (s *Service) redeem(ctx context.Context, tx *gorm.DB, req RedeemRequest, now time.Time, log *zap.Logger) (*RedeemResult, error) {
	couponTx := s.coupon.WithTrx(tx)
	voucherTx := s.voucher.WithTrx(tx)

	available := option.ApplyOperator(
		option.Condition{Field: "user_id", Operator: option.IsNull},
		option.Condition{Field: "minted_at", Operator: option.IsNull},
	)

	coupon, err := couponTx.FindOne(ctx, &Coupon{RewardID: req.RewardID},
		available,
		option.WithSortBy(option.QuerySortBy{SortBy: "number", OrderBy: "asc"}),
		option.WithSkipLocked(),
	)
	if err != nil {
		log.Error("failed to pick coupon", zap.Error(err))
		return nil, errutil.Internal("failed to pick coupon", err)
	}
	if coupon == nil {
		return nil, errutil.NotFound("no coupon available", nil)
	}

	terms, scoped, err := s.loadTerms(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	// Coupons belong to the reward, so the cap spans every link of it.
	if terms.MaxMint != nil && *terms.MaxMint > 0 {
		assigned, err := couponTx.Count(ctx, &Coupon{RewardID: req.RewardID},
			option.ApplyOperator(option.Condition{Field: "user_id", Operator: option.IsNotNull}))
		if err != nil {
			return nil, errutil.Internal("failed to count assigned coupons", err)
		}
		if assigned >= *terms.MaxMint {
			return nil, errutil.NotFound("reward is sold out", nil)
		}
	}

	if terms.UserMint != nil && *terms.UserMint > 0 {
		userID := req.UserID
		owned, err := couponTx.Count(ctx, &Coupon{RewardID: req.RewardID, UserID: &userID})
		if err != nil {
			return nil, errutil.Internal("failed to count user coupons", err)
		}
		if owned >= *terms.UserMint {
			return nil, errutil.LimitReached("user mint limit reached", nil)
		}
	}

	vouchers, err := voucherTx.Find(ctx, scoped,
		engage.Eligible(now),
		option.ApplyOperator(option.Condition{Field: "balance", Operator: option.GT, Value: 0}),
		option.WithOrderExpr(fifoOrder),
		option.WithLockingUpdate(),
	)
	if err != nil {
		log.Error("failed to load vouchers", zap.Error(err))
		return nil, errutil.Internal("failed to load vouchers", err)
	}

	cost := *terms.Point
	var sum int64
	for _, v := range vouchers {
		sum += v.Balance
	}
	if sum < cost {
		return nil, errutil.NotFound("insufficient point balance", nil)
	}

	consumed, err := s.consume(ctx, tx, vouchers, cost, now)
	if err != nil {
		return nil, err
	}

	userID := req.UserID
	rows, err := couponTx.Update(ctx, &Coupon{RewardID: coupon.RewardID, Number: coupon.Number},
		map[string]any{
			"user_id":    userID,
			"minted_at":  now,
			"updated_at": now,
		},
		available,
	)
	if err != nil {
		log.Error("failed to assign coupon", zap.Error(err))
		return nil, errutil.Internal("failed to assign coupon", err)
	}
	if rows == 0 {
		return nil, errutil.NotFound("coupon was assigned concurrently", nil)
	}

	coupon.UserID = &userID
	coupon.MintedAt = &now
	coupon.UpdatedAt = &now

	return &RedeemResult{
		Coupon:   coupon,
		Vouchers: consumed,
		Balance:  sum - cost,
	}, nil
}

// consume debits vouchers in order until cost is covered. The voucher that
// covers the rest keeps the remainder; later vouchers are untouched.
func (s *Service) consume(ctx context.Context, tx *gorm.DB, vouchers []*engage.Voucher, cost int64, now time.Time) ([]VoucherConsumption, error) {
	voucherTx := s.voucher.WithTrx(tx)
	out := make([]VoucherConsumption, 0, len(vouchers))

	var total int64
	for _, v := range vouchers {
		old := v.Balance
		total += old

		last := total >= cost
		var balance int64
		if last {
			balance = total - cost
		}

		rows, err := voucherTx.Update(ctx, nil, map[string]any{
			"balance":    balance,
			"updated_at": now,
		}, option.WithFields(map[string]any{
			"campaign_id":    v.CampaignID,
			"chain_id":       v.ChainID,
			"signer_address": v.SignerAddress,
			"task_id":        v.TaskID,
			"balance":        old,
		}))
		if err != nil {
			return nil, errutil.Internal("failed to debit voucher", err)
		}
		if rows == 0 {
			return nil, errutil.Conflict("voucher balance changed concurrently", nil)
		}

		out = append(out, VoucherConsumption{
			CampaignID:    v.CampaignID,
			ChainID:       v.ChainID,
			SignerAddress: v.SignerAddress,
			TaskID:        v.TaskID,
			Minted:        old - balance,
			UpdatedAt:     now,
		})

		if last {
			break
		}
	}
	return out, nil
}

// loadTerms returns the link terms for the scope and the voucher query that
// selects the user's vouchers in it.
func (s *Service) loadTerms(ctx context.Context, tx *gorm.DB, req RedeemRequest) (LinkTerms, *engage.Voucher, error) {
	var (
		terms  LinkTerms
		found  bool
		scoped = &engage.Voucher{UserID: req.UserID}
	)

	switch req.Scope {
	case ScopeProject:
		link, err := s.projectReward.WithTrx(tx).FindOne(ctx, &ProjectReward{ProjectID: req.ScopeID, RewardID: req.RewardID})
		if err != nil {
			return terms, nil, errutil.Internal("failed to load project reward", err)
		}
		if link != nil {
			terms, found = link.LinkTerms, true
		}
		scoped.ProjectID = req.ScopeID
	case ScopeCampaign:
		link, err := s.campaignReward.WithTrx(tx).FindOne(ctx, &CampaignReward{CampaignID: req.ScopeID, RewardID: req.RewardID})
		if err != nil {
			return terms, nil, errutil.Internal("failed to load campaign reward", err)
		}
		if link != nil {
			terms, found = link.LinkTerms, true
		}
		scoped.CampaignID = req.ScopeID
	}

	if !found || !terms.redeemable() {
		return terms, nil, errutil.NotFound("reward is not available", nil)
	}
	return terms, scoped, nil
}

func validateTerms(t LinkTerms) error {
	var details []errutil.Detail
	if t.Point != nil && *t.Point < 0 {
		details = append(details, errutil.Detail{Field: "point", Message: "must not be negative"})
	}
	if t.MaxMint != nil && *t.MaxMint < 0 {
		details = append(details, errutil.Detail{Field: "max_mint", Message: "must not be negative"})
	}
	if t.UserMint != nil && *t.UserMint < 0 {
		details = append(details, errutil.Detail{Field: "user_mint", Message: "must not be negative"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid reward terms", nil, errutil.WithDetails(details...))
	}
	return nil
}

var (
	termColumns = []string{"point", "active", "approved", "max_mint", "user_mint", "updated_at"}
	// editorColumns leave a stored approval untouched.
	editorColumns = []string{"point", "active", "max_mint", "user_mint", "updated_at"}
)

// linkConflict upserts on keys and only overwrites rows of the same org.
func linkConflict(table string, keepApproval bool, keys ...string) clause.OnConflict {
	columns := make([]clause.Column, 0, len(keys))
	for _, k := range keys {
		columns = append(columns, clause.Column{Name: k})
	}
	updates := termColumns
	if keepApproval {
		updates = editorColumns
	}
	return clause.OnConflict{
		Columns:   columns,
		Where:     clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: table + ".org_id = excluded.org_id"}}},
		DoUpdates: clause.AssignmentColumns(updates),
	}
}

// prepareLink validates the terms and checks the reward exists.
func (s *Service) prepareLink(ctx context.Context, tx *gorm.DB, req *LinkRequest) error {
	if err := validateTerms(req.Terms); err != nil {
		return err
	}
	if req.KeepApproval {
		req.Terms.Approved = false
	}

	reward, err := s.reward.WithTrx(tx).FindOne(ctx, &Reward{ID: req.RewardID})
	if err != nil {
		return errutil.Internal("failed to load reward", err)
	}
	if reward == nil {
		return errutil.NotFound("reward not found", nil)
	}
	return nil
}

// UpsertProjectLink creates or replaces the terms of a project reward.
func (s *Service) UpsertProjectLink(ctx context.Context, req LinkRequest) (*ProjectReward, error) {
	var link *ProjectReward
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.prepareLink(ctx, tx, &req); err != nil {
			return err
		}

		now := s.now()
		res := tx.Clauses(linkConflict(ProjectReward{}.TableName(), req.KeepApproval, "project_id", "reward_id")).
			Create(&ProjectReward{
				OrgID:     req.OrgID,
				ProjectID: req.ProjectID,
				RewardID:  req.RewardID,
				LinkTerms: req.Terms,
				CreatedAt: now,
				UpdatedAt: &now,
			})
		if res.Error != nil {
			zap.L().With(traceFields(ctx)...).Error("failed to upsert project reward", zap.Error(res.Error))
			return errutil.Internal("failed to upsert project reward", res.Error)
		}
		if res.RowsAffected == 0 {
			return errutil.Forbidden("project reward belongs to another organization", nil)
		}

		stored, err := s.projectReward.WithTrx(tx).FindOne(ctx, &ProjectReward{ProjectID: req.ProjectID, RewardID: req.RewardID})
		if err != nil {
			return errutil.Internal("failed to load project reward", err)
		}
		link = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// UpsertCampaignLink creates or replaces the terms of a campaign reward.
func (s *Service) UpsertCampaignLink(ctx context.Context, req LinkRequest) (*CampaignReward, error) {
	var link *CampaignReward
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.prepareLink(ctx, tx, &req); err != nil {
			return err
		}

		now := s.now()
		res := tx.Clauses(linkConflict(CampaignReward{}.TableName(), req.KeepApproval, "campaign_id", "reward_id")).
			Create(&CampaignReward{
				OrgID:      req.OrgID,
				ProjectID:  req.ProjectID,
				CampaignID: req.CampaignID,
				RewardID:   req.RewardID,
				LinkTerms:  req.Terms,
				CreatedAt:  now,
				UpdatedAt:  &now,
			})
		if res.Error != nil {
			zap.L().With(traceFields(ctx)...).Error("failed to upsert campaign reward", zap.Error(res.Error))
			return errutil.Internal("failed to upsert campaign reward", res.Error)
		}
		if res.RowsAffected == 0 {
			return errutil.Forbidden("campaign reward belongs to another organization", nil)
		}

		stored, err := s.campaignReward.WithTrx(tx).FindOne(ctx, &CampaignReward{CampaignID: req.CampaignID, RewardID: req.RewardID})
		if err != nil {
			return errutil.Internal("failed to load campaign reward", err)
		}
		link = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// ListCoupons lists the coupons the user has redeemed.
func (s *Service) ListCoupons(ctx context.Context, userID string, filter CouponFilter, params pagination.ListParams) ([]*Coupon, error) {
	opts, err := params.Options(couponOrderColumns...)
	if err != nil {
		return nil, err
	}

	var conds []option.Condition
	if filter.MintedAfter != nil {
		conds = append(conds, option.Condition{Field: "minted_at", Operator: option.GTE, Value: filter.MintedAfter.UTC()})
	}
	if filter.MintedBefore != nil {
		conds = append(conds, option.Condition{Field: "minted_at", Operator: option.LTE, Value: filter.MintedBefore.UTC()})
	}
	if len(conds) > 0 {
		opts = append(opts, option.ApplyOperator(conds...))
	}

	coupons, err := s.coupon.Find(ctx, &Coupon{RewardID: filter.RewardID, UserID: &userID}, opts...)
	if err != nil {
		zap.L().With(traceFields(ctx)...).Error("failed to list coupons", zap.Error(err))
		return nil, errutil.Internal("failed to list coupons", err)
	}
	return coupons, nil
}

// GetCoupon returns one coupon redeemed by the user.
func (s *Service) GetCoupon(ctx context.Context, userID string, rewardID uuid.UUID, number int64) (*Coupon, error) {
	coupon, err := s.coupon.FindOne(ctx, &Coupon{RewardID: rewardID, UserID: &userID},
		option.WithFields(map[string]any{"number": number}))
	if err != nil {
		return nil, errutil.Internal("failed to get coupon", err)
	}
	if coupon == nil {
		return nil, errutil.NotFound("coupon not found", nil)
	}
	return coupon, nil
}

// AddCoupons appends coupons for urls, numbered after the reward's highest
// existing coupon in the order given.
func (s *Service) AddCoupons(ctx context.Context, rewardID uuid.UUID, urls []string) ([]*Coupon, error) {
	if len(urls) == 0 {
		return nil, errutil.EmptyUpdateSet("no coupon urls supplied", nil)
	}

	var coupons []*Coupon
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reward, err := s.reward.WithTrx(tx).FindOne(ctx, &Reward{ID: rewardID})
		if err != nil {
			return errutil.Internal("failed to load reward", err)
		}
		if reward == nil {
			return errutil.NotFound("reward not found", nil)
		}

		next, err := nextCouponNumber(ctx, tx, rewardID)
		if err != nil {
			return errutil.Internal("failed to compute next coupon number", err)
		}

		now := s.now()
		coupons = make([]*Coupon, 0, len(urls))
		for i, url := range urls {
			coupons = append(coupons, &Coupon{
				RewardID:  rewardID,
				Number:    next + int64(i),
				URL:       url,
				CreatedAt: now,
			})
		}
		if err := s.coupon.WithTrx(tx).BatchCreate(ctx, coupons); err != nil {
			return errutil.Internal("failed to create coupons", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().With(traceFields(ctx)...).Info("coupons added",
		zap.String("reward_id", rewardID.String()),
		zap.Int("count", len(coupons)),
		zap.Int64("first", coupons[0].Number),
	)
	return coupons, nil
}

func nextCouponNumber(ctx context.Context, tx *gorm.DB, rewardID uuid.UUID) (int64, error) {
	var max int64
	err := tx.WithContext(ctx).Model(&Coupon{}).
		Where(&Coupon{RewardID: rewardID}).
		Select("COALESCE(MAX(number), 0)").
		Scan(&max).Error
	return max + 1, err
}
