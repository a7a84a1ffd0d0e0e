package httpapi

import (
	"net/http"

	"engage-ledger/pkg/db/pagination"
	"engage-ledger/pkg/errutil"
	"engage-ledger/services/reward"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *Handler) RedeemProject(c *gin.Context) {
	h.redeem(c, reward.ScopeProject, "project_id")
}

func (h *Handler) RedeemCampaign(c *gin.Context) {
	h.redeem(c, reward.ScopeCampaign, "campaign_id")
}

// redeem spends the caller's vouchers in scope on one coupon of the reward.
func (h *Handler) redeem(c *gin.Context, scope reward.Scope, scopeParam string) {
	user, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	scopeID, err := pathUUID(c, scopeParam)
	if err != nil {
		_ = c.Error(err)
		return
	}
	rewardID, err := pathUUID(c, "reward_id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	res, err := h.reward.Redeem(c.Request.Context(), reward.RedeemRequest{
		UserID:   user.ID,
		RewardID: rewardID,
		Scope:    scope,
		ScopeID:  scopeID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// ListCoupons lists the coupons the caller has redeemed.
func (h *Handler) ListCoupons(c *gin.Context) {
	user, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var params pagination.ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		_ = c.Error(invalid("query", err.Error(), err))
		return
	}

	var filter reward.CouponFilter
	if filter.RewardID, err = queryUUID(c, "reward_id"); err != nil {
		_ = c.Error(err)
		return
	}
	if filter.MintedAfter, err = queryTime(c, "minted_after"); err != nil {
		_ = c.Error(err)
		return
	}
	if filter.MintedBefore, err = queryTime(c, "minted_before"); err != nil {
		_ = c.Error(err)
		return
	}

	coupons, err := h.reward.ListCoupons(c.Request.Context(), user.ID, filter, params)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, coupons)
}

func (h *Handler) GetCoupon(c *gin.Context) {
	user, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	rewardID, err := pathUUID(c, "reward_id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	number, err := pathInt(c, "number")
	if err != nil {
		_ = c.Error(err)
		return
	}

	coupon, err := h.reward.GetCoupon(c.Request.Context(), user.ID, rewardID, number)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, coupon)
}

// linkBody carries reward link terms. Approved is honored for admins only;
// everyone else keeps the stored approval.
type linkBody struct {
	Point    *int64 `json:"point"`
	Active   bool   `json:"active"`
	Approved *bool  `json:"approved"`
	MaxMint  *int64 `json:"max_mint"`
	UserMint *int64 `json:"user_mint"`
}

func (b linkBody) request(orgID, projectID, rewardID uuid.UUID, admin bool) reward.LinkRequest {
	req := reward.LinkRequest{
		OrgID:     orgID,
		ProjectID: projectID,
		RewardID:  rewardID,
		Terms: reward.LinkTerms{
			Point:    b.Point,
			Active:   b.Active,
			MaxMint:  b.MaxMint,
			UserMint: b.UserMint,
		},
		KeepApproval: !admin || b.Approved == nil,
	}
	if b.Approved != nil {
		req.Terms.Approved = *b.Approved
	}
	return req
}

// bindLink checks editor permission on the org and reads the shared path
// parameters and body of both link routes.
func (h *Handler) bindLink(c *gin.Context) (reward.LinkRequest, bool) {
	user, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return reward.LinkRequest{}, false
	}

	orgID, err := pathUUID(c, "org_id")
	if err != nil {
		_ = c.Error(err)
		return reward.LinkRequest{}, false
	}
	if !user.CanEdit(orgID) {
		_ = c.Error(errutil.Forbidden("editor permission required", nil))
		return reward.LinkRequest{}, false
	}

	projectID, err := pathUUID(c, "project_id")
	if err != nil {
		_ = c.Error(err)
		return reward.LinkRequest{}, false
	}
	rewardID, err := pathUUID(c, "reward_id")
	if err != nil {
		_ = c.Error(err)
		return reward.LinkRequest{}, false
	}

	var body linkBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(invalid("body", "expected reward terms", err))
		return reward.LinkRequest{}, false
	}
	return body.request(orgID, projectID, rewardID, user.IsAdmin()), true
}

// UpsertProjectLink sets the terms under which a project's vouchers redeem
// the reward.
func (h *Handler) UpsertProjectLink(c *gin.Context) {
	req, ok := h.bindLink(c)
	if !ok {
		return
	}

	link, err := h.reward.UpsertProjectLink(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, link)
}

func (h *Handler) UpsertCampaignLink(c *gin.Context) {
	req, ok := h.bindLink(c)
	if !ok {
		return
	}

	campaignID, err := pathUUID(c, "campaign_id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	req.CampaignID = campaignID

	link, err := h.reward.UpsertCampaignLink(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, link)
}
