package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fishercore/internal/config"
	"fishercore/internal/core"
	"fishercore/pkg/domain"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// testEnv is a scratch sqlite database, blob root and config file.
type testEnv struct {
	dir    string
	dbPath string
	config string
}

func newTestEnv(t *testing.T, archive bool) testEnv {
	t.Helper()
	dir := t.TempDir()
	e := testEnv{dir: dir, dbPath: filepath.Join(dir, "fishers.db"), config: filepath.Join(dir, "fisherctl.yaml")}
	yaml := fmt.Sprintf(`storage:
  driver: sqlite
  sqlite_path: %q
blob:
  driver: fs
  fs_root: %q
archive:
  enabled: %t
log:
  level: error
`, e.dbPath, filepath.Join(dir, "blobs"), archive)
	require.NoError(t, os.WriteFile(e.config, []byte(yaml), 0o600))
	return e
}

type result struct {
	stdout string
	stderr string
	code   int
}

func (e testEnv) run(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), append([]string{"--config", e.config}, args...), &stdout, &stderr)
	return result{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

func (e testEnv) keygen(t *testing.T, name string) (string, domain.Wallet) {
	t.Helper()
	path := filepath.Join(e.dir, name+".json")
	res := e.run(t, "--format", "json", "keygen", "--out", path)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var resp struct {
		Data IdentityView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	wallet, err := domain.ParseWallet(resp.Data.Wallet)
	require.NoError(t, err)
	assert.Equal(t, domain.DeriveAddress(wallet), resp.Data.Address)
	return path, wallet
}

// seed writes a record for wallet straight through the service, applying scores in order.
func (e testEnv) seed(t *testing.T, wallet domain.Wallet, scores ...int) {
	t.Helper()
	store, err := core.OpenPersistentStore(config.StorageConfig{Driver: config.StorageSQLite, SQLitePath: e.dbPath}, core.NewDefaultRulesEngine())
	require.NoError(t, err)
	svc := core.NewService(store)
	actor := domain.Actor{Wallet: wallet}
	_, err = svc.InitializeFisher(context.Background(), actor)
	require.NoError(t, err)
	for _, score := range scores {
		_, err := svc.RecordCatch(context.Background(), wallet, actor, "seed-token", score)
		require.NoError(t, err)
	}
	require.NoError(t, svc.Close())
}

func repeatWallet(b byte) domain.Wallet {
	var w domain.Wallet
	for i := range w {
		w[i] = b
	}
	return w
}

func decodeResponse(t *testing.T, out string) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestKeygenInitCatchStats(t *testing.T) {
	e := newTestEnv(t, false)
	key, wallet := e.keygen(t, "alice")

	res := e.run(t, "init", "--key", key)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Minnow")
	assert.Contains(t, res.stdout, "Fisher in 101 points")

	res = e.run(t, "catch", "--key", key, "--token", "tok-1", "--score", "85")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "big fish recorded: tok-1 scored 85")

	res = e.run(t, "--format", "json", "catch", "--key", key, "--token", "tok-2", "--score", "40")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var caught struct {
		Data CatchResultView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &caught))
	assert.False(t, caught.Data.BigFish)
	assert.Equal(t, uint64(60), caught.Data.Reputation)
	assert.Equal(t, uint64(2), caught.Data.TotalCatches)

	res = e.run(t, "--format", "json", "stats", "--wallet", wallet.String())
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var stats struct {
		Data StatsView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &stats))
	assert.Equal(t, StatsView{
		Wallet:         wallet.String(),
		TotalCatches:   2,
		BigFishSpotted: 1,
		Reputation:     60,
		Rank:           "Minnow",
		NextRank:       "Fisher",
		ToNextRank:     41,
	}, stats.Data)
}

func TestInitTwiceConflicts(t *testing.T) {
	e := newTestEnv(t, false)
	key, _ := e.keygen(t, "bob")
	require.Equal(t, ExitSuccess, e.run(t, "init", "--key", key).code)

	res := e.run(t, "--format", "json", "init", "--key", key)
	assert.Equal(t, ExitConflict, res.code)
	resp := decodeResponse(t, res.stdout)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeAlreadyExists, resp.Error.Code)
}

func TestCatchOnForeignRecordIsUnauthorized(t *testing.T) {
	e := newTestEnv(t, false)
	owner, ownerWallet := e.keygen(t, "owner")
	intruder, _ := e.keygen(t, "intruder")
	require.Equal(t, ExitSuccess, e.run(t, "init", "--key", owner).code)

	res := e.run(t, "catch", "--key", intruder, "--wallet", ownerWallet.String(), "--token", "tok", "--score", "99")
	assert.Equal(t, ExitUnauthorized, res.code)
	assert.Contains(t, res.stderr, "unauthorized")

	res = e.run(t, "--format", "json", "stats", "--key", owner)
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, `"total_catches":0`)
}

func TestCatchValidation(t *testing.T) {
	e := newTestEnv(t, false)
	key, _ := e.keygen(t, "carol")
	require.Equal(t, ExitSuccess, e.run(t, "init", "--key", key).code)

	cases := [][]string{
		{"catch", "--key", key, "--token", "tok"},
		{"catch", "--key", key, "--token", "tok", "--score", "101"},
		{"catch", "--key", key, "--score", "50"},
		{"catch", "--token", "tok", "--score", "50"},
	}
	for _, args := range cases {
		res := e.run(t, args...)
		assert.Equal(t, ExitInvalidInput, res.code, "args %v: %s", args, res.stderr)
	}
}

func TestCatchEchoesNormalizedTokenRef(t *testing.T) {
	e := newTestEnv(t, false)
	key, _ := e.keygen(t, "erin")
	require.Equal(t, ExitSuccess, e.run(t, "init", "--key", key).code)

	res := e.run(t, "--format", "json", "catch", "--key", key, "--token", "  cafe\u0301  ", "--score", "20")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var out struct {
		Data CatchResultView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, "caf\u00e9", out.Data.TokenRef)

	res = e.run(t, "catch", "--key", key, "--token", " tok-7 ", "--score", "20")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "recorded: tok-7 scored 20")
}

func TestStatsNotFoundAndBadWallet(t *testing.T) {
	e := newTestEnv(t, false)
	res := e.run(t, "stats", "--wallet", repeatWallet(0x0d).String())
	assert.Equal(t, ExitNotFound, res.code)
	assert.True(t, strings.HasPrefix(res.stderr, "error: "), res.stderr)

	res = e.run(t, "stats", "--wallet", "xyz")
	assert.Equal(t, ExitInvalidInput, res.code)

	res = e.run(t, "stats")
	assert.Equal(t, ExitInvalidInput, res.code)
}

func TestCatchesFromArchive(t *testing.T) {
	e := newTestEnv(t, true)
	key, wallet := e.keygen(t, "dave")
	require.Equal(t, ExitSuccess, e.run(t, "init", "--key", key).code)
	for i, score := range []int{90, 10, 75} {
		res := e.run(t, "catch", "--key", key, "--token", fmt.Sprintf("tok-%d", i), "--score", fmt.Sprint(score))
		require.Equal(t, ExitSuccess, res.code, res.stderr)
	}

	res := e.run(t, "--format", "json", "catches", "--wallet", wallet.String())
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var list struct {
		Data CatchListView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &list))
	require.Len(t, list.Data.Catches, 3)
	assert.Equal(t, "tok-0", list.Data.Catches[0].TokenRef)
	assert.Equal(t, uint64(110), list.Data.Catches[2].Reputation)
	assert.Equal(t, "Fisher", list.Data.Catches[2].Rank)

	res = e.run(t, "catches", "--key", key)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, 3, strings.Count(res.stdout, "\n"))
	assert.Contains(t, res.stdout, "tok-2")
}

func TestCatchesWithoutArchive(t *testing.T) {
	e := newTestEnv(t, false)
	key, _ := e.keygen(t, "erin")
	require.Equal(t, ExitSuccess, e.run(t, "init", "--key", key).code)
	res := e.run(t, "--format", "json", "catches", "--key", key)
	assert.Equal(t, ExitInvalidInput, res.code)
	assert.Equal(t, CodeArchiveDisabled, decodeResponse(t, res.stdout).Error.Code)
}

func TestAddressCommand(t *testing.T) {
	e := newTestEnv(t, false)
	wallet := repeatWallet(0x0e)
	res := e.run(t, "address", "--wallet", wallet.String())
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, domain.DeriveAddress(wallet))

	res = e.run(t, "address", "--wallet", wallet.String(), "--key", "k.json")
	assert.NotEqual(t, ExitSuccess, res.code)
}

func TestMetricsFile(t *testing.T) {
	e := newTestEnv(t, false)
	key, _ := e.keygen(t, "frank")
	metrics := filepath.Join(e.dir, "fisher.prom")
	res := e.run(t, "--metrics-file", metrics, "init", "--key", key)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `fishercore_operations_total{operation="initialize_fisher",status="success"} 1`)
}

func TestInvalidFormat(t *testing.T) {
	e := newTestEnv(t, false)
	res := e.run(t, "--format", "xml", "stats", "--wallet", repeatWallet(1).String())
	assert.Equal(t, ExitInvalidInput, res.code)
	assert.Contains(t, res.stderr, "invalid format")
}
