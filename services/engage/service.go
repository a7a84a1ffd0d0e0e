package engage

import (
	"context"
	"time"

	"engage-ledger/pkg/db/jsonmap"
	"engage-ledger/pkg/db/option"
	"engage-ledger/pkg/db/pagination"
	"engage-ledger/pkg/errutil"
	"engage-ledger/pkg/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var voucherOrderColumns = []string{"created_at", "updated_at", "valid_from", "valid_until"}

type Service struct {
	db *gorm.DB

	campaign repository.Repository[Campaign]
	engage   repository.Repository[Engage]
	voucher  repository.Repository[Voucher]

	now func() time.Time
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db: p.DB,

		campaign: repository.ProvideStore[Campaign](p.DB),
		engage:   repository.ProvideStore[Engage](p.DB),
		voucher:  repository.ProvideStore[Voucher](p.DB),

		now: func() time.Time { return time.Now().UTC() },
	}
}

type ApproveRequest struct {
	OrgID         uuid.UUID
	CampaignID    uuid.UUID
	ChainID       int64
	SignerAddress string
	Accepted      map[string]bool
}

func logFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// Approve records accept/reject decisions for an engagement's tasks. A task
// with a point value that flips to accepted gets a voucher; one that flips to
// rejected loses it. Everything happens in one transaction.
func (s *Service) Approve(ctx context.Context, req ApproveRequest) (*ApproveResult, error) {
	if len(req.Accepted) == 0 {
		return nil, errutil.EmptyUpdateSet("accepted must not be empty", nil)
	}

	log := zap.L().With(logFields(ctx)...).With(
		zap.String("campaign_id", req.CampaignID.String()),
		zap.Int64("chain_id", req.ChainID),
		zap.String("signer_address", req.SignerAddress),
	)

	var result ApproveResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		campaignTx := s.campaign.WithTrx(tx)
		engageTx := s.engage.WithTrx(tx)
		voucherTx := s.voucher.WithTrx(tx)

		campaign, err := campaignTx.FindOne(ctx, &Campaign{ID: req.CampaignID, OrgID: req.OrgID})
		if err != nil {
			log.Error("failed to load campaign", zap.Error(err))
			return errutil.Internal("failed to load campaign", err)
		}
		if campaign == nil {
			return errutil.NotFound("campaign not found", nil)
		}

		key := option.WithFields(map[string]any{
			"org_id":         req.OrgID,
			"campaign_id":    req.CampaignID,
			"chain_id":       req.ChainID,
			"signer_address": req.SignerAddress,
		})
		signerVouchers := wallet(req.CampaignID, req.ChainID, req.SignerAddress)

		engage, err := engageTx.FindOne(ctx, nil, key, option.WithLockingUpdate())
		if err != nil {
			log.Error("failed to load engage", zap.Error(err))
			return errutil.Internal("failed to load engage", err)
		}
		if engage == nil {
			return errutil.NotFound("engage not found", nil)
		}

		now := s.now()
		today := Today(now)
		changed := false

		for _, task := range campaign.Tasks {
			if task.Point == nil {
				continue
			}
			accept, ok := req.Accepted[task.ID]
			if !ok || accept == engage.Accepted.Get(task.ID) {
				continue
			}
			changed = true

			if !accept {
				if _, err := voucherTx.Delete(ctx, nil, signerVouchers,
					option.WithFields(map[string]any{"task_id": task.ID})); err != nil {
					log.Error("failed to delete voucher", zap.String("task_id", task.ID), zap.Error(err))
					return errutil.Internal("failed to delete voucher", err)
				}
				continue
			}

			if *task.Point < 0 {
				return errutil.ValidationFailed("task point must not be negative", nil,
					errutil.WithDetails(errutil.Detail{Field: "tasks." + task.ID + ".point", Message: "negative"}))
			}

			voucher := &Voucher{
				OrgID:         req.OrgID,
				ProjectID:     campaign.ProjectID,
				CampaignID:    req.CampaignID,
				ChainID:       req.ChainID,
				SignerAddress: req.SignerAddress,
				UserID:        engage.UserID,
				TaskID:        task.ID,
				Value:         *task.Point,
				Balance:       *task.Point,
				ValidFrom:     s.validFrom(campaign, today, log),
				ValidUntil:    campaign.VoucherExpireAt,
				CreatedAt:     now,
			}
			if err := voucherTx.Create(ctx, voucher); err != nil {
				log.Error("failed to create voucher", zap.String("task_id", task.ID), zap.Error(err))
				return errutil.Internal("failed to create voucher", err)
			}
		}

		merged := engage.Accepted.Merge(req.Accepted)

		if campaign.VoucherPolicy == PolicyOnAllTasksCompletion {
			before := allAccepted(campaign.Tasks, engage.Accepted)
			after := allAccepted(campaign.Tasks, merged)
			if changed || before != after {
				var validFrom *datatypes.Date
				if after {
					validFrom = &today
				}
				if _, err := voucherTx.Update(ctx, nil, map[string]any{
					"valid_from": validFrom,
					"updated_at": now,
				}, signerVouchers); err != nil {
					log.Error("failed to resync voucher validity", zap.Error(err))
					return errutil.Internal("failed to resync voucher validity", err)
				}
			}
		}

		if _, err := engageTx.Update(ctx, nil, map[string]any{
			"accepted":   merged,
			"updated_at": now,
		}, key); err != nil {
			log.Error("failed to update engage", zap.Error(err))
			return errutil.Internal("failed to update engage", err)
		}

		result.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("engage approved", zap.Int("decisions", len(req.Accepted)))
	return &result, nil
}

func (s *Service) validFrom(c *Campaign, today datatypes.Date, log *zap.Logger) *datatypes.Date {
	switch c.VoucherPolicy {
	case PolicyOnTaskCompletion:
		return &today
	case PolicyOnCampaignEnd:
		return c.EndAt
	case PolicyOnAllTasksCompletion:
		// set by the resync once the merged decisions are known
		return nil
	default:
		log.Warn("voucher policy does not set valid_from", zap.Stringer("voucher_policy", c.VoucherPolicy))
		return nil
	}
}

// wallet selects the vouchers of one signer in a campaign on one chain.
func wallet(campaignID uuid.UUID, chainID int64, signerAddress string) option.QueryOption {
	return option.WithFields(map[string]any{
		"campaign_id":    campaignID,
		"chain_id":       chainID,
		"signer_address": signerAddress,
	})
}

func allAccepted(tasks []Task, accepted jsonmap.Map[bool]) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if !accepted.Get(t.ID) {
			return false
		}
	}
	return true
}

// Eligible restricts a voucher query to vouchers redeemable on the UTC date
// of now.
func Eligible(now time.Time) option.QueryOption {
	today := Today(now)
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Where("valid_from <= ?", today).
			Where("(valid_until IS NULL OR valid_until >= ?)", today)
	}
}

// ListVouchers returns the user's vouchers.
func (s *Service) ListVouchers(ctx context.Context, userID string, filter VoucherFilter, params pagination.ListParams) ([]*Voucher, error) {
	opts, err := params.Options(voucherOrderColumns...)
	if err != nil {
		return nil, err
	}

	var conds []option.Condition
	if filter.CreatedAfter != nil {
		conds = append(conds, option.Condition{Field: "created_at", Operator: option.GTE, Value: filter.CreatedAfter.UTC()})
	}
	if filter.CreatedBefore != nil {
		conds = append(conds, option.Condition{Field: "created_at", Operator: option.LTE, Value: filter.CreatedBefore.UTC()})
	}
	if len(conds) > 0 {
		opts = append(opts, option.ApplyOperator(conds...))
	}

	vouchers, err := s.voucher.Find(ctx, &Voucher{
		UserID:     userID,
		OrgID:      filter.OrgID,
		ProjectID:  filter.ProjectID,
		CampaignID: filter.CampaignID,
		ChainID:    filter.ChainID,
	}, opts...)
	if err != nil {
		zap.L().With(logFields(ctx)...).Error("failed to list vouchers", zap.Error(err))
		return nil, errutil.Internal("failed to list vouchers", err)
	}
	return vouchers, nil
}

func (s *Service) GetVoucher(ctx context.Context, campaignID uuid.UUID, chainID int64, signerAddress, taskID string) (*Voucher, error) {
	voucher, err := s.voucher.FindOne(ctx, nil, wallet(campaignID, chainID, signerAddress),
		option.WithFields(map[string]any{"task_id": taskID}))
	if err != nil {
		return nil, errutil.Internal("failed to get voucher", err)
	}
	if voucher == nil {
		return nil, errutil.NotFound("voucher not found", nil)
	}
	return voucher, nil
}

// ProjectPoint sums the user's currently redeemable balance in a project.
func (s *Service) ProjectPoint(ctx context.Context, userID string, projectID uuid.UUID) (int64, error) {
	var total int64
	err := Eligible(s.now())(s.db.WithContext(ctx).Model(&Voucher{})).
		Where(&Voucher{UserID: userID, ProjectID: projectID}).
		Select("COALESCE(SUM(balance), 0)").
		Scan(&total).Error
	if err != nil {
		zap.L().With(logFields(ctx)...).Error("failed to sum project point", zap.Error(err))
		return 0, errutil.Internal("failed to sum project point", err)
	}
	return total, nil
}
