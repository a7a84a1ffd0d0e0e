package event

import (
	"context"
	"fmt"
	"testing"
	"time"

	"engage-ledger/pkg/broadcast"
	"engage-ledger/pkg/config"
	"engage-ledger/pkg/db"
	"engage-ledger/services/testutil"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func recvWithin(t *testing.T, r *broadcast.Receiver[Event], d time.Duration) (Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return r.Recv(ctx)
}

func TestHandlePayload(t *testing.T) {
	hub := broadcast.New[Event](10)
	l := &Listener{hub: hub}
	rx := hub.Subscribe()
	defer rx.Close()

	campaign := uuid.New()
	payload := fmt.Sprintf(`{
		"id": 42,
		"org_id": %q,
		"project_id": %q,
		"campaign_id": %q,
		"chain_id": 1,
		"signer_address": "0xabc",
		"user_id": "user-1",
		"old_submissions": {"t1": "proof"},
		"old_accepted": null,
		"old_coupon_serial": null,
		"old_coupon_url": null,
		"new_submissions": {"t1": "proof"},
		"new_accepted": {"t1": true},
		"new_coupon_serial": null,
		"new_coupon_url": null,
		"created_at": "2026-10-18T12:00:00.123456+00:00"
	}`, uuid.New(), uuid.New(), campaign)

	l.handlePayload(context.Background(), []byte(payload))

	ev, err := recvWithin(t, rx, time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(42), ev.ID)
	require.Equal(t, campaign, ev.CampaignID)
	require.Equal(t, KindSubmissionApproved, ev.Kind)
	require.Equal(t, []string{"t1"}, ev.TaskIDs)
}

func TestHandlePayloadDrops(t *testing.T) {
	hub := broadcast.New[Event](10)
	l := &Listener{hub: hub}
	rx := hub.Subscribe()
	defer rx.Close()

	// not json
	l.handlePayload(context.Background(), []byte(`{"id":`))
	// nothing changed
	l.handlePayload(context.Background(), []byte(fmt.Sprintf(
		`{"id": 1, "campaign_id": %q, "old_accepted": {"t1": true}, "new_accepted": {"t1": true}}`, uuid.New())))

	_, err := recvWithin(t, rx, 50*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandlePayloadIDOnly(t *testing.T) {
	db := testutil.NewTestDB(t, &Log{})
	rows := seedLogs(t, db)
	reader, err := NewLogReader(db)
	require.NoError(t, err)

	hub := broadcast.New[Event](10)
	l := &Listener{hub: hub, logs: reader}
	rx := hub.Subscribe()
	defer rx.Close()

	l.handlePayload(context.Background(), []byte(fmt.Sprintf(`{"id": %d}`, rows[3].ID)))

	ev, err := recvWithin(t, rx, time.Second)
	require.NoError(t, err)
	require.Equal(t, rows[3].ID, ev.ID)
	require.Equal(t, "0xdef", ev.SignerAddress)
	require.Equal(t, KindSubmittedProof, ev.Kind)
}

func TestListenerHealth(t *testing.T) {
	srv := grpchealth.NewServer()
	l := &Listener{health: srv, channel: db.NotifyChannel}

	status := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: HealthService})
		require.NoError(t, err)
		return resp.Status
	}

	l.onConnEvent(pq.ListenerEventConnected, nil)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, status())

	l.onConnEvent(pq.ListenerEventDisconnected, fmt.Errorf("connection reset"))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status())

	l.onConnEvent(pq.ListenerEventReconnected, nil)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, status())
}

func TestNewListenerUsesTriggerChannel(t *testing.T) {
	cfg := &config.Config{}
	cfg.Events.MinReconnect = time.Second
	cfg.Events.MaxReconnect = time.Minute

	l := NewListener(ListenerParams{Config: cfg, Hub: broadcast.New[Event](1)})
	require.Equal(t, db.NotifyChannel, l.channel)
	require.Equal(t, time.Second, l.minReconnect)
	require.Equal(t, time.Minute, l.maxReconnect)
}
