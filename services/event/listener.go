package event

import (
	"context"
	"encoding/json"
	"time"

	"engage-ledger/pkg/broadcast"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the name the listener reports under in grpc health.
const HealthService = "engage.listener"

const pingInterval = 90 * time.Second

var publishedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "engage_events_published_total",
	Help: "Classified engage events handed to the fan-out hub.",
}, []string{"kind"})

// Listener turns notifications on the capture channel into Events on the hub.
type Listener struct {
	dsn          string
	channel      string
	minReconnect time.Duration
	maxReconnect time.Duration

	hub    *broadcast.Hub[Event]
	logs   *LogReader
	health *grpchealth.Server
}

func (l *Listener) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	if l.health != nil {
		l.health.SetServingStatus(HealthService, status)
	}
}

func (l *Listener) onConnEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		zap.L().Info("[LISTENER] connected", zap.String("channel", l.channel))
		l.setStatus(healthpb.HealthCheckResponse_SERVING)
	case pq.ListenerEventReconnected:
		zap.L().Info("[LISTENER] reconnected", zap.String("channel", l.channel))
		l.setStatus(healthpb.HealthCheckResponse_SERVING)
	case pq.ListenerEventDisconnected:
		zap.L().Warn("[LISTENER] disconnected", zap.String("channel", l.channel), zap.Error(err))
		l.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	case pq.ListenerEventConnectionAttemptFailed:
		zap.L().Warn("[LISTENER] connection attempt failed", zap.String("channel", l.channel), zap.Error(err))
		l.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// Run blocks until ctx is cancelled. pq reconnects on its own between
// minReconnect and maxReconnect.
func (l *Listener) Run(ctx context.Context) error {
	pl := pq.NewListener(l.dsn, l.minReconnect, l.maxReconnect, l.onConnEvent)
	defer func() {
		if err := pl.Close(); err != nil {
			zap.L().Warn("[LISTENER] close failed", zap.Error(err))
		}
		l.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}()

	if err := pl.Listen(l.channel); err != nil {
		zap.L().Error("[LISTENER] listen failed", zap.String("channel", l.channel), zap.Error(err))
		return err
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-pl.Notify:
			if n == nil {
				zap.L().Warn("[LISTENER] connection re-established, notifications may have been missed")
				continue
			}
			l.handlePayload(ctx, []byte(n.Extra))
		case <-ticker.C:
			if err := pl.Ping(); err != nil {
				zap.L().Warn("[LISTENER] ping failed", zap.Error(err))
			}
		}
	}
}

func (l *Listener) handlePayload(ctx context.Context, payload []byte) {
	var row Log
	if err := json.Unmarshal(payload, &row); err != nil {
		zap.L().Error("[LISTENER] failed to decode notification", zap.ByteString("payload", payload), zap.Error(err))
		return
	}

	// Oversized rows arrive as {"id": n}.
	if row.CampaignID == uuid.Nil && row.ID != 0 && l.logs != nil {
		full, err := l.logs.Get(ctx, row.ID)
		if err != nil {
			zap.L().Error("[LISTENER] failed to load event row", zap.Int64("id", row.ID), zap.Error(err))
			return
		}
		row = full
	}

	ev, err := Classify(row)
	if err != nil {
		zap.L().Warn("[LISTENER] dropping notification", zap.Int64("id", row.ID), zap.Error(err))
		return
	}

	n := l.hub.Publish(ev)
	publishedEvents.WithLabelValues(ev.Kind.String()).Inc()
	zap.L().Info("Sent event to subscribers",
		zap.Int("receivers", n),
		zap.Int64("id", ev.ID),
		zap.Stringer("kind", ev.Kind),
	)
}
