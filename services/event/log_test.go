package event

import (
	"context"
	"testing"
	"time"

	"engage-ledger/pkg/db/jsonmap"
	"engage-ledger/pkg/db/pagination"
	"engage-ledger/pkg/errutil"
	"engage-ledger/services/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var t0 = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func seedLogs(t *testing.T, db *gorm.DB) []Log {
	t.Helper()

	project, campaign := uuid.New(), uuid.New()
	rows := []Log{
		{
			OrgID: uuid.New(), ProjectID: project, CampaignID: campaign,
			ChainID: 1, SignerAddress: "0xabc", UserID: "user-1",
			NewSubmissions: subs("t1"),
			CreatedAt:      t0,
		},
		{
			// accepted flipped to false: nothing to report
			OrgID: uuid.New(), ProjectID: project, CampaignID: campaign,
			ChainID: 1, SignerAddress: "0xabc", UserID: "user-1",
			OldSubmissions: subs("t1"), NewSubmissions: subs("t1"),
			OldAccepted: jsonmap.New(map[string]bool{"t1": true}), NewAccepted: jsonmap.New(map[string]bool{"t1": false}),
			CreatedAt: t0.Add(time.Minute),
		},
		{
			OrgID: uuid.New(), ProjectID: project, CampaignID: campaign,
			ChainID: 1, SignerAddress: "0xabc", UserID: "user-1",
			OldSubmissions: subs("t1"), NewSubmissions: subs("t1"),
			NewAccepted: jsonmap.New(map[string]bool{"t1": true}),
			CreatedAt:   t0.Add(2 * time.Minute),
		},
		{
			OrgID: uuid.New(), ProjectID: project, CampaignID: campaign,
			ChainID: 137, SignerAddress: "0xdef", UserID: "user-2",
			NewSubmissions: subs("t2"),
			CreatedAt:      t0.Add(3 * time.Minute),
		},
	}
	require.NoError(t, db.Create(&rows).Error)
	return rows
}

func kinds(events []Event) []Kind {
	out := make([]Kind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestLogReaderList(t *testing.T) {
	db := testutil.NewTestDB(t, &Log{})
	rows := seedLogs(t, db)

	reader, err := NewLogReader(db)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("oldest first without unknown rows", func(t *testing.T) {
		events, err := reader.List(ctx, pagination.ListParams{}, "")
		require.NoError(t, err)
		require.Equal(t, []Kind{KindSubmittedProof, KindSubmissionApproved, KindSubmittedProof}, kinds(events))
		require.Equal(t, rows[0].ID, events[0].ID)
		require.Equal(t, []string{"t1"}, events[1].TaskIDs)
		require.True(t, events[0].CreatedAt.Equal(t0))
	})

	t.Run("descending", func(t *testing.T) {
		events, err := reader.List(ctx, pagination.ListParams{Order: "-created_at"}, "")
		require.NoError(t, err)
		require.Len(t, events, 3)
		require.Equal(t, rows[3].ID, events[0].ID)
	})

	t.Run("paging", func(t *testing.T) {
		events, err := reader.List(ctx, pagination.ListParams{Offset: 2, Limit: 2}, "")
		require.NoError(t, err)
		require.Len(t, events, 2)
		require.Equal(t, rows[2].ID, events[0].ID)
	})

	t.Run("filter", func(t *testing.T) {
		events, err := reader.List(ctx, pagination.ListParams{}, `signer_address = "0xdef" AND chain_id = 137`)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, rows[3].ID, events[0].ID)
		require.Equal(t, int64(137), events[0].ChainID)
	})

	t.Run("filter by time", func(t *testing.T) {
		events, err := reader.List(ctx, pagination.ListParams{}, `created_at > timestamp("2026-10-18T09:01:30Z")`)
		require.NoError(t, err)
		require.Len(t, events, 2)
		require.Equal(t, rows[2].ID, events[0].ID)
	})

	t.Run("unsupported order", func(t *testing.T) {
		_, err := reader.List(ctx, pagination.ListParams{Order: "id"}, "")
		require.True(t, errutil.Is(err, errutil.StatusInvalidOrder))
	})

	t.Run("bad filter", func(t *testing.T) {
		_, err := reader.List(ctx, pagination.ListParams{}, `kind = 3`)
		require.True(t, errutil.Is(err, errutil.StatusBadRequest))
	})
}

func TestLogReaderGet(t *testing.T) {
	db := testutil.NewTestDB(t, &Log{})
	rows := seedLogs(t, db)

	reader, err := NewLogReader(db)
	require.NoError(t, err)

	row, err := reader.Get(context.Background(), rows[2].ID)
	require.NoError(t, err)
	require.Equal(t, rows[2].CampaignID, row.CampaignID)
	require.Equal(t, map[string]bool{"t1": true}, row.NewAccepted.Data())
	require.Empty(t, row.OldAccepted.Data())

	_, err = reader.Get(context.Background(), 9999)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}
