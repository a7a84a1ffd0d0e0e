package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"engage-ledger/pkg/broadcast"
	"engage-ledger/pkg/config"
	"engage-ledger/pkg/db/jsonmap"
	"engage-ledger/pkg/gen"
	"engage-ledger/pkg/health"
	"engage-ledger/pkg/middleware"
	"engage-ledger/services/engage"
	"engage-ledger/services/event"
	"engage-ledger/services/reward"
	"engage-ledger/services/testutil"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

func point(v int64) *int64 { return &v }

type env struct {
	db       *gorm.DB
	hub      *broadcast.Hub[event.Event]
	router   http.Handler
	orgID    uuid.UUID
	project  uuid.UUID
	campaign uuid.UUID
	reward   uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := testutil.NewTestDB(t,
		&engage.Campaign{}, &engage.Engage{}, &engage.Voucher{},
		&reward.Reward{}, &reward.Coupon{}, &reward.ProjectReward{}, &reward.CampaignReward{},
		&event.Log{},
	)

	cfg := &config.Config{NodeID: 1}
	cfg.Auth.Secret = testSecret
	cfg.Events.Heartbeat = 20 * time.Millisecond
	cfg.Events.StreamRate = 100
	cfg.Events.StreamBurst = 100

	node, err := gen.NewSnowflakeNode(cfg)
	require.NoError(t, err)
	logs, err := event.NewLogReader(db)
	require.NoError(t, err)

	hub := broadcast.New[event.Event](10)
	t.Cleanup(hub.Close)

	handler := NewHandler(HandlerParams{
		Config: cfg,
		Engage: engage.NewService(engage.ServiceParams{DB: db}),
		Reward: reward.NewService(reward.ServiceParams{DB: db, Config: cfg}),
		Events: logs,
		Hub:    hub,
	})

	e := &env{
		db:       db,
		hub:      hub,
		orgID:    uuid.New(),
		project:  uuid.New(),
		campaign: uuid.New(),
		reward:   uuid.New(),
	}
	e.router = NewRouter(RouterParams{
		Config:   cfg,
		Handler:  handler,
		Health:   health.ProvideHealth(health.HealthParams{DB: db}),
		Verifier: middleware.NewVerifier(cfg),
		Node:     node,
	})

	expire := datatypes.Date(time.Now().UTC().AddDate(1, 0, 0))
	require.NoError(t, db.Create(&engage.Campaign{
		ID:              e.campaign,
		OrgID:           e.orgID,
		ProjectID:       e.project,
		Name:            "launch",
		Tasks:           []engage.Task{{ID: "follow", Point: point(5)}, {ID: "share", Point: point(3)}},
		VoucherPolicy:   engage.PolicyOnTaskCompletion,
		VoucherExpireAt: &expire,
	}).Error)
	require.NoError(t, db.Create(&engage.Engage{
		OrgID:         e.orgID,
		ProjectID:     e.project,
		CampaignID:    e.campaign,
		ChainID:       1,
		SignerAddress: "0xabc",
		UserID:        "user-1",
		Accepted:      jsonmap.New(map[string]bool{}),
	}).Error)

	require.NoError(t, db.Create(&reward.Reward{ID: e.reward, OrgID: e.orgID, ProjectID: e.project, Name: "tee"}).Error)
	require.NoError(t, db.Create(&reward.ProjectReward{
		OrgID: e.orgID, ProjectID: e.project, RewardID: e.reward,
		LinkTerms: reward.LinkTerms{Point: point(4), Active: true, Approved: true},
	}).Error)
	require.NoError(t, db.Create(&reward.Coupon{RewardID: e.reward, Number: 1, URL: "https://coupons.example.com/1"}).Error)

	return e
}

func token(t *testing.T, subject string, custom middleware.Claims) string {
	t.Helper()
	sig, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte(testSecret)},
		(&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)
	raw, err := jwt.Signed(sig).
		Claims(jwt.Claims{Subject: subject, Expiry: jwt.NewNumericDate(time.Now().Add(time.Hour))}).
		Claims(custom).
		Serialize()
	require.NoError(t, err)
	return raw
}

func (e *env) do(t *testing.T, method, path, tok, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Error.Code
}

func TestApproveAndRedeem(t *testing.T) {
	e := newEnv(t)

	editor := token(t, "admin-1", middleware.Claims{Orgs: map[string]int64{e.orgID.String(): middleware.EditorPermission}})
	user := token(t, "user-1", middleware.Claims{Wallets: map[string]bool{"1/0xabc": true}})

	approvePath := fmt.Sprintf("/cm/engage/%s/%s/1/0xabc", e.orgID, e.campaign)

	t.Run("requires auth", func(t *testing.T) {
		w := e.do(t, http.MethodPatch, approvePath, "", `{"accepted":{"follow":true}}`)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("requires editor", func(t *testing.T) {
		w := e.do(t, http.MethodPatch, approvePath, user, `{"accepted":{"follow":true}}`)
		require.Equal(t, http.StatusForbidden, w.Code)
		require.Equal(t, "forbidden", errorCode(t, w))
	})

	t.Run("empty decisions", func(t *testing.T) {
		w := e.do(t, http.MethodPatch, approvePath, editor, `{"accepted":{}}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Equal(t, "empty_update_set", errorCode(t, w))
	})

	t.Run("unknown engagement", func(t *testing.T) {
		w := e.do(t, http.MethodPatch, fmt.Sprintf("/cm/engage/%s/%s/1/0xdef", e.orgID, e.campaign), editor, `{"accepted":{"follow":true}}`)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad chain id", func(t *testing.T) {
		w := e.do(t, http.MethodPatch, fmt.Sprintf("/cm/engage/%s/%s/one/0xabc", e.orgID, e.campaign), editor, `{"accepted":{"follow":true}}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("approve", func(t *testing.T) {
		w := e.do(t, http.MethodPatch, approvePath, editor, `{"accepted":{"follow":true}}`)
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), "updated_at")
	})

	t.Run("point", func(t *testing.T) {
		w := e.do(t, http.MethodGet, fmt.Sprintf("/projects/%s/point", e.project), user, "")
		require.Equal(t, http.StatusOK, w.Code)

		var out struct {
			Point int64 `json:"point"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		require.Equal(t, int64(5), out.Point)
	})

	t.Run("list vouchers", func(t *testing.T) {
		w := e.do(t, http.MethodGet, "/vouchers?_s=-created_at&chain_id=1", user, "")
		require.Equal(t, http.StatusOK, w.Code)

		var out []engage.Voucher
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		require.Len(t, out, 1)
		require.Equal(t, "follow", out[0].TaskID)

		w = e.do(t, http.MethodGet, "/vouchers?_s=balance", user, "")
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Equal(t, "invalid_order", errorCode(t, w))
	})

	t.Run("get voucher", func(t *testing.T) {
		path := fmt.Sprintf("/vouchers/%s/1/0xABC/follow", e.campaign)
		w := e.do(t, http.MethodGet, path, user, "")
		require.Equal(t, http.StatusOK, w.Code)

		stranger := token(t, "user-2", middleware.Claims{})
		w = e.do(t, http.MethodGet, path, stranger, "")
		require.Equal(t, http.StatusForbidden, w.Code)

		w = e.do(t, http.MethodGet, fmt.Sprintf("/vouchers/%s/1/0xabc/share", e.campaign), user, "")
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("redeem", func(t *testing.T) {
		w := e.do(t, http.MethodPost, fmt.Sprintf("/project-rewards/%s/%s", e.project, e.reward), user, "")
		require.Equal(t, http.StatusOK, w.Code)

		var out reward.RedeemResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		require.Equal(t, int64(1), out.Coupon.Number)
		require.Equal(t, int64(1), out.Balance)
		require.Len(t, out.Vouchers, 1)
		require.Equal(t, int64(4), out.Vouchers[0].Minted)
	})

	t.Run("redeem sold out", func(t *testing.T) {
		w := e.do(t, http.MethodPost, fmt.Sprintf("/project-rewards/%s/%s", e.project, e.reward), user, "")
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("redeem campaign without link", func(t *testing.T) {
		w := e.do(t, http.MethodPost, fmt.Sprintf("/campaign-rewards/%s/%s", e.campaign, e.reward), user, "")
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRewardLinks(t *testing.T) {
	e := newEnv(t)

	orgs := map[string]int64{e.orgID.String(): middleware.EditorPermission}
	editor := token(t, "editor-1", middleware.Claims{Orgs: orgs})
	admin := token(t, "admin-1", middleware.Claims{Orgs: orgs, Admin: 1})
	viewer := token(t, "user-1", middleware.Claims{Orgs: map[string]int64{e.orgID.String(): 1}})

	projectPath := fmt.Sprintf("/cm/project-reward/%s/%s/%s", e.orgID, e.project, e.reward)
	campaignPath := fmt.Sprintf("/cm/campaign-reward/%s/%s/%s/%s", e.orgID, e.project, e.campaign, e.reward)

	decode := func(t *testing.T, w *httptest.ResponseRecorder) reward.LinkTerms {
		t.Helper()
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var out reward.LinkTerms
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return out
	}

	t.Run("requires editor", func(t *testing.T) {
		w := e.do(t, http.MethodPatch, projectPath, viewer, `{"point":6,"active":true}`)
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("invalid terms", func(t *testing.T) {
		w := e.do(t, http.MethodPatch, projectPath, editor, `{"point":-1}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Equal(t, "validation_failed", errorCode(t, w))

		w = e.do(t, http.MethodPatch, projectPath, editor, `{"point":"six"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("editor keeps approval", func(t *testing.T) {
		out := decode(t, e.do(t, http.MethodPatch, projectPath, editor, `{"point":6,"active":true,"approved":false}`))
		require.Equal(t, int64(6), *out.Point)
		require.True(t, out.Approved)
	})

	t.Run("admin sets approval", func(t *testing.T) {
		out := decode(t, e.do(t, http.MethodPatch, projectPath, admin, `{"point":6,"active":true,"approved":false}`))
		require.False(t, out.Approved)
	})

	t.Run("campaign link", func(t *testing.T) {
		out := decode(t, e.do(t, http.MethodPatch, campaignPath, editor, `{"point":2,"active":true,"approved":true}`))
		require.False(t, out.Approved)

		out = decode(t, e.do(t, http.MethodPatch, campaignPath, admin, `{"point":2,"active":true,"approved":true}`))
		require.True(t, out.Approved)

		var stored reward.CampaignReward
		require.NoError(t, e.db.Where(&reward.CampaignReward{CampaignID: e.campaign, RewardID: e.reward}).Take(&stored).Error)
		require.Equal(t, e.orgID, stored.OrgID)
		require.Equal(t, int64(2), *stored.Point)
	})

	t.Run("unknown reward", func(t *testing.T) {
		w := e.do(t, http.MethodPatch, fmt.Sprintf("/cm/project-reward/%s/%s/%s", e.orgID, e.project, uuid.New()), editor, `{"point":1}`)
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCoupons(t *testing.T) {
	e := newEnv(t)

	owner, other := "user-1", "user-2"
	day := func(d int) *time.Time {
		v := time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC)
		return &v
	}
	require.NoError(t, e.db.Model(&reward.Coupon{}).
		Where("reward_id = ? AND number = ?", e.reward, 1).
		Updates(map[string]any{"user_id": owner, "minted_at": day(1)}).Error)
	require.NoError(t, e.db.Create([]*reward.Coupon{
		{RewardID: e.reward, Number: 2, URL: "https://coupons.example.com/2", UserID: &owner, MintedAt: day(5)},
		{RewardID: e.reward, Number: 3, URL: "https://coupons.example.com/3", UserID: &other, MintedAt: day(2)},
	}).Error)

	user := token(t, owner, middleware.Claims{})

	t.Run("requires auth", func(t *testing.T) {
		w := e.do(t, http.MethodGet, "/coupons", "", "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("list", func(t *testing.T) {
		w := e.do(t, http.MethodGet, "/coupons?_s=-minted_at&reward_id="+e.reward.String(), user, "")
		require.Equal(t, http.StatusOK, w.Code)

		var out []reward.Coupon
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		require.Len(t, out, 2)
		require.Equal(t, int64(2), out[0].Number)
		require.Equal(t, int64(1), out[1].Number)
	})

	t.Run("minted window", func(t *testing.T) {
		w := e.do(t, http.MethodGet, "/coupons?minted_after=2026-10-02T00:00:00Z&minted_before=2026-10-31T00:00:00Z", user, "")
		require.Equal(t, http.StatusOK, w.Code)

		var out []reward.Coupon
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		require.Len(t, out, 1)
		require.Equal(t, int64(2), out[0].Number)

		w = e.do(t, http.MethodGet, "/coupons?minted_after=yesterday", user, "")
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get", func(t *testing.T) {
		w := e.do(t, http.MethodGet, fmt.Sprintf("/coupons/%s/1", e.reward), user, "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), "https://coupons.example.com/1")

		w = e.do(t, http.MethodGet, fmt.Sprintf("/coupons/%s/3", e.reward), user, "")
		require.Equal(t, http.StatusNotFound, w.Code)

		w = e.do(t, http.MethodGet, fmt.Sprintf("/coupons/%s/first", e.reward), user, "")
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListEvents(t *testing.T) {
	e := newEnv(t)

	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	rows := []event.Log{
		{OrgID: e.orgID, ProjectID: e.project, CampaignID: e.campaign, ChainID: 1, SignerAddress: "0xabc",
			NewSubmissions: jsonmap.New(map[string]json.RawMessage{"follow": json.RawMessage(`"x"`)}), CreatedAt: base},
		{OrgID: e.orgID, ProjectID: e.project, CampaignID: e.campaign, ChainID: 1, SignerAddress: "0xabc",
			CreatedAt: base.Add(time.Minute)},
	}
	require.NoError(t, e.db.Create(&rows).Error)

	w := e.do(t, http.MethodGet, "/events?_l=10", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.EqualValues(t, 1, out[0]["kind"])
	require.Equal(t, []any{"follow"}, out[0]["task_ids"])

	w = e.do(t, http.MethodGet, "/events?filter=nope%20%3D%201", "", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/events?_s=id", "", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamEvents(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)

	// idle stream gets a heartbeat first
	require.True(t, lines.Scan())
	require.Equal(t, ": keep-alive", lines.Text())

	require.Eventually(t, func() bool { return e.hub.Receivers() == 1 }, time.Second, 10*time.Millisecond)
	e.hub.Publish(event.Event{ID: 9, CampaignID: e.campaign, Kind: event.KindClaimed, SignerAddress: "0xabc"})

	var data string
	for lines.Scan() {
		if strings.HasPrefix(lines.Text(), "data: ") {
			data = strings.TrimPrefix(lines.Text(), "data: ")
			break
		}
	}

	var ev event.Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	require.Equal(t, int64(9), ev.ID)
	require.Equal(t, event.KindClaimed, ev.Kind)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/health/liveness", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/health/readiness", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}
