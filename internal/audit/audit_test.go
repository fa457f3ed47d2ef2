package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestLog_RecordWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Record(NewEvent("buy", 1, "alice", "BTC", decimal.RequireFromString("0.5"), nil))
	l.Record(NewEvent("sell", 1, "alice", "BTC", decimal.RequireFromString("0.6"),
		&domain.InsufficientFundsError{Code: "BTC"}))

	lines := decodeLines(t, buf.Bytes())
	require.Len(t, lines, 2)

	assert.Equal(t, "buy", lines[0]["action"])
	assert.Equal(t, "OK", lines[0]["result"])
	assert.Equal(t, "0.5", lines[0]["amount"])
	assert.Equal(t, 1.0, lines[0]["user_id"])
	assert.NotEmpty(t, lines[0]["id"])
	assert.NotEmpty(t, lines[0]["ts"])
	assert.NotContains(t, lines[0], "error_kind")

	assert.Equal(t, "ERROR", lines[1]["result"])
	assert.Equal(t, "InsufficientFundsError", lines[1]["error_kind"])
	assert.Contains(t, lines[1]["message"], "insufficient funds")
}

func TestOpen_AppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "actions.log")

	first, err := Open(path)
	require.NoError(t, err)
	first.Record(NewEvent("register", 1, "alice", "", decimal.Zero, nil))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	second.Record(NewEvent("login", 1, "alice", "", decimal.Zero, nil))
	require.NoError(t, second.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := decodeLines(t, data)
	require.Len(t, lines, 2)
	assert.Equal(t, "register", lines[0]["action"])
	assert.Equal(t, "login", lines[1]["action"])
}
