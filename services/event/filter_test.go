package event

import (
	"testing"
	"time"

	"engage-ledger/pkg/errutil"

	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		cond, err := ParseFilter("  ")
		require.NoError(t, err)
		require.Empty(t, cond.Clause)
		require.Empty(t, cond.Params)
	})

	t.Run("single comparison", func(t *testing.T) {
		cond, err := ParseFilter(`signer_address = "0xabc"`)
		require.NoError(t, err)
		require.Equal(t, "signer_address = ?", cond.Clause)
		require.Equal(t, []any{"0xabc"}, cond.Params)
	})

	t.Run("and", func(t *testing.T) {
		cond, err := ParseFilter(`chain_id = 1 AND signer_address = "0xabc"`)
		require.NoError(t, err)
		require.Equal(t, "(chain_id = ? AND signer_address = ?)", cond.Clause)
		require.Equal(t, []any{int64(1), "0xabc"}, cond.Params)
	})

	t.Run("timestamp", func(t *testing.T) {
		cond, err := ParseFilter(`created_at >= timestamp("2026-10-18T00:00:00Z")`)
		require.NoError(t, err)
		require.Equal(t, "created_at >= ?", cond.Clause)
		require.Equal(t, []any{time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)}, cond.Params)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := ParseFilter(`balance > 3`)
		require.True(t, errutil.Is(err, errutil.StatusBadRequest))
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := ParseFilter(`chain_id = `)
		require.True(t, errutil.Is(err, errutil.StatusBadRequest))
	})
}
