package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), nil, &out)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, out.String(), "usage: srctl")
}

func TestRunToken(t *testing.T) {
	path := writeConfig(t, "api: {jwt_secret: s3cret}\ndatabase: {type: memory}\n")
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"token", "-config", path}, &out))
	assert.Equal(t, 3, len(strings.Split(strings.TrimSpace(out.String()), ".")), "a compact JWT has three parts")
}

func TestRunCalcAndMonitorWithSQLite(t *testing.T) {
	db := filepath.Join(t.TempDir(), "levels.db")
	path := writeConfig(t, "data_source: {type: mock}\ndatabase: {type: sqlite, sqlite_path: "+db+"}\n")
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{"calc", "-config", path, "-symbols", "BTC", "-timeframes", "1h,4h"}, &out))
	assert.Contains(t, out.String(), "BTC 1h - Support/Resistance")
	assert.Contains(t, out.String(), "2/2 ok")

	out.Reset()
	require.NoError(t, run(ctx, []string{"view", "-config", path, "-symbols", "BTC", "-timeframes", "4h"}, &out))
	assert.Contains(t, out.String(), "BTC 4h - Support/Resistance")

	out.Reset()
	require.NoError(t, run(ctx, []string{"monitor", "-config", path, "-symbols", "BTC", "-timeframes", "1h,4h"}, &out))
	assert.Contains(t, out.String(), "records: 2 (valid 2, expired 0)")

	out.Reset()
	err := run(ctx, []string{"monitor", "-config", path, "-symbols", "BTC,BNB", "-timeframes", "1h"}, &out)
	require.Error(t, err)
	assert.Contains(t, out.String(), "BNB")
	assert.Contains(t, out.String(), "missing")
}

func TestRunUnknownCommand(t *testing.T) {
	path := writeConfig(t, "data_source: {type: mock}\ndatabase: {type: memory}\n")
	err := run(context.Background(), []string{"frobnicate", "-config", path}, &bytes.Buffer{})
	assert.ErrorIs(t, err, errUsage)
}
