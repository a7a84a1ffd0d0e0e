package httpapi

import (
	"net/http"
	"strings"

	"engage-ledger/pkg/db/pagination"
	"engage-ledger/pkg/errutil"
	"engage-ledger/services/engage"

	"github.com/gin-gonic/gin"
)

type approveBody struct {
	Accepted map[string]bool `json:"accepted"`
}

// Approve records task decisions for one engagement.
func (h *Handler) Approve(c *gin.Context) {
	user, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	orgID, err := pathUUID(c, "org_id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !user.CanEdit(orgID) {
		_ = c.Error(errutil.Forbidden("editor permission required", nil))
		return
	}

	campaignID, err := pathUUID(c, "campaign_id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	chainID, err := pathInt(c, "chain_id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	var body approveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(invalid("body", "expected {\"accepted\": {task_id: bool}}", err))
		return
	}

	res, err := h.engage.Approve(c.Request.Context(), engage.ApproveRequest{
		OrgID:         orgID,
		CampaignID:    campaignID,
		ChainID:       chainID,
		SignerAddress: c.Param("signer_address"),
		Accepted:      body.Accepted,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// ListVouchers lists the caller's vouchers.
func (h *Handler) ListVouchers(c *gin.Context) {
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

	var filter engage.VoucherFilter
	if filter.OrgID, err = queryUUID(c, "org_id"); err != nil {
		_ = c.Error(err)
		return
	}
	if filter.ProjectID, err = queryUUID(c, "project_id"); err != nil {
		_ = c.Error(err)
		return
	}
	if filter.CampaignID, err = queryUUID(c, "campaign_id"); err != nil {
		_ = c.Error(err)
		return
	}
	if filter.ChainID, err = queryInt(c, "chain_id"); err != nil {
		_ = c.Error(err)
		return
	}
	if filter.CreatedAfter, err = queryTime(c, "created_after"); err != nil {
		_ = c.Error(err)
		return
	}
	if filter.CreatedBefore, err = queryTime(c, "created_before"); err != nil {
		_ = c.Error(err)
		return
	}

	vouchers, err := h.engage.ListVouchers(c.Request.Context(), user.ID, filter, params)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, vouchers)
}

// GetVoucher returns one voucher of a wallet the caller has proven to own.
func (h *Handler) GetVoucher(c *gin.Context) {
	user, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	campaignID, err := pathUUID(c, "campaign_id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	chainID, err := pathInt(c, "chain_id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	signer := strings.ToLower(c.Param("signer_address"))

	if !user.HasWalletClaim(chainID, signer) {
		_ = c.Error(errutil.Forbidden("wallet not linked to this account", nil))
		return
	}

	voucher, err := h.engage.GetVoucher(c.Request.Context(), campaignID, chainID, signer, c.Param("task_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, voucher)
}

// ProjectPoint returns the caller's spendable balance in a project.
func (h *Handler) ProjectPoint(c *gin.Context) {
	user, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	projectID, err := pathUUID(c, "project_id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	point, err := h.engage.ProjectPoint(c.Request.Context(), user.ID, projectID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "point": point})
}
