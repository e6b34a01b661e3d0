package ledgerd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  hmac_secret: s3cret
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":7090", cfg.ListenAddress)
	require.Equal(t, "ledger.db", cfg.DatabaseDSN)
	require.Equal(t, "scope", cfg.Auth.ScopeClaim)
	require.Equal(t, 2*time.Minute, cfg.Auth.ClockSkew.Duration)
	require.EqualValues(t, 600, cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, "UTC", cfg.Scheduler.Timezone)
	require.Equal(t, 14*24*time.Hour, cfg.Scheduler.AutoApproveAfter.Duration)
	require.Equal(t, 0, cfg.Scheduler.RunHour)
	require.Equal(t, 10*time.Second, cfg.Payout.Timeout.Duration)
	require.Empty(t, cfg.Payout.Endpoint)
}

func TestLoadConfigReadsOverrides(t *testing.T) {
	t.Setenv("LEDGERD_TEST_SECRET", "from-env")
	t.Setenv("LEDGERD_TEST_RAIL_KEY", "rail-key")
	path := writeConfig(t, `
listen: ":9000"
database: "postgres://ledger@localhost/ledger"
auth:
  hmac_secret_env: LEDGERD_TEST_SECRET
  issuer: shop
  clock_skew: 30s
scheduler:
  run_hour: 3
  run_minute: 15
  timezone: Europe/Moscow
  auto_approve_after: 72h
  export_statements: true
payout:
  endpoint: "https://rail.example/api"
  api_key_env: LEDGERD_TEST_RAIL_KEY
paused: [withdrawals]
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "from-env", cfg.Auth.HMACSecret)
	require.Equal(t, 30*time.Second, cfg.Auth.ClockSkew.Duration)
	require.Equal(t, 3, cfg.Scheduler.RunHour)
	require.Equal(t, 15, cfg.Scheduler.RunMinute)
	require.Equal(t, 72*time.Hour, cfg.Scheduler.AutoApproveAfter.Duration)
	require.True(t, cfg.Scheduler.ExportStatements)
	require.Equal(t, "rail-key", cfg.Payout.APIKey)
	require.Equal(t, []string{"withdrawals"}, cfg.Paused)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"missing secret": "listen: \":9000\"\n",
		"bad hour":       "auth:\n  hmac_secret: x\nscheduler:\n  run_hour: 24\n",
		"bad minute":     "auth:\n  hmac_secret: x\nscheduler:\n  run_minute: 60\n",
		"bad timezone":   "auth:\n  hmac_secret: x\nscheduler:\n  timezone: Mars/Olympus\n",
		"bad duration":   "auth:\n  hmac_secret: x\n  clock_skew: soon\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadConfigAllowsDisabledAuth(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "auth:\n  disabled: true\n"))
	require.NoError(t, err)
	require.True(t, cfg.Auth.Disabled)
}
