package httpapi

import (
	"net/http"
	"time"

	"engage-ledger/pkg/broadcast"
	"engage-ledger/pkg/config"
	"engage-ledger/pkg/gen"
	"engage-ledger/pkg/health"
	"engage-ledger/pkg/middleware"
	"engage-ledger/services/engage"
	"engage-ledger/services/event"
	"engage-ledger/services/reward"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"golang.org/x/time/rate"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		middleware.NewVerifier,
		NewHandler,
		NewRouter,
	),
)

type Handler struct {
	engage    *engage.Service
	reward    *reward.Service
	events    *event.LogReader
	hub       *broadcast.Hub[event.Event]
	heartbeat time.Duration
}

type HandlerParams struct {
	fx.In
	Config *config.Config
	Engage *engage.Service
	Reward *reward.Service
	Events *event.LogReader
	Hub    *broadcast.Hub[event.Event]
}

func NewHandler(p HandlerParams) *Handler {
	heartbeat := p.Config.Events.Heartbeat
	if heartbeat <= 0 {
		heartbeat = time.Second
	}
	return &Handler{
		engage:    p.Engage,
		reward:    p.Reward,
		events:    p.Events,
		hub:       p.Hub,
		heartbeat: heartbeat,
	}
}

type RouterParams struct {
	fx.In
	Config   *config.Config
	Handler  *Handler
	Health   health.HealthService
	Verifier *middleware.Verifier
	Node     *gen.SnowflakeNode
}

// NewRouter wires every route onto a gin engine.
func NewRouter(p RouterParams) http.Handler {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(p.Node),
		middleware.Logger(),
		middleware.Error(),
	)

	r.GET("/health/liveness", p.Health.Liveness)
	r.GET("/health/readiness", p.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := p.Handler
	r.GET("/events", h.ListEvents)
	r.GET("/events/stream",
		middleware.RateLimit(rate.Limit(p.Config.Events.StreamRate), p.Config.Events.StreamBurst),
		h.StreamEvents,
	)

	authed := r.Group("/", middleware.Auth(p.Verifier))
	authed.PATCH("/cm/engage/:org_id/:campaign_id/:chain_id/:signer_address", h.Approve)
	authed.PATCH("/cm/project-reward/:org_id/:project_id/:reward_id", h.UpsertProjectLink)
	authed.PATCH("/cm/campaign-reward/:org_id/:project_id/:campaign_id/:reward_id", h.UpsertCampaignLink)
	authed.POST("/project-rewards/:project_id/:reward_id", h.RedeemProject)
	authed.POST("/campaign-rewards/:campaign_id/:reward_id", h.RedeemCampaign)
	authed.GET("/vouchers", h.ListVouchers)
	authed.GET("/vouchers/:campaign_id/:chain_id/:signer_address/:task_id", h.GetVoucher)
	authed.GET("/projects/:project_id/point", h.ProjectPoint)
	authed.GET("/coupons", h.ListCoupons)
	authed.GET("/coupons/:reward_id/:number", h.GetCoupon)

	return r
}
