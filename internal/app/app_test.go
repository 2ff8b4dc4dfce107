package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldledger/fieldledger/internal/config"
	"github.com/fieldledger/fieldledger/internal/referral"
	"github.com/fieldledger/fieldledger/internal/web/jobs"
	"github.com/fieldledger/fieldledger/internal/web/ratelimit"
	"github.com/fieldledger/fieldledger/internal/web/router"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func build(t *testing.T, cfg *config.Config, rdb *redis.Client) *App {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)

	a, err := Build(cfg, conn, rdb, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		mock.ExpectClose()
		assert.NoError(t, a.Close())
	})
	return a
}

func hasRoute(routes []router.RouteInfo, method, pattern string) bool {
	for _, r := range routes {
		if r.Method == method && r.Pattern == pattern {
			return true
		}
	}
	return false
}

func TestBuildWiresTransport(t *testing.T) {
	a := build(t, testConfig(t), nil)
	routes := a.Handler().Routes()

	assert.True(t, hasRoute(routes, http.MethodGet, "/healthz"))
	assert.True(t, hasRoute(routes, "*", "/ws"))
	assert.True(t, hasRoute(routes, http.MethodPost, "/api/auth/login"))
	assert.True(t, hasRoute(routes, http.MethodGet, "/api/appstate"))

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildUsesMemoryLimiterWithoutRedis(t *testing.T) {
	a := build(t, testConfig(t), nil)
	assert.IsType(t, &ratelimit.MemoryLimiter{}, a.limiter)
}

func TestBuildUsesRedisWhenConfigured(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	a := build(t, testConfig(t), rdb)
	assert.IsType(t, &ratelimit.RedisLimiter{}, a.limiter)
}

func TestBuildWithoutAuthLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.AuthRateLimit = 0

	a := build(t, cfg, nil)
	assert.Nil(t, a.limiter)
}

func TestBuildRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Jobs.PurgeSpec = "every other tuesday"

	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	_, err = Build(cfg, conn, nil, nil)
	assert.Error(t, err)
}

func TestSchedules(t *testing.T) {
	tests := []struct {
		name    string
		purge   string
		expired int
	}{
		{"all enabled", "0 4 * * 0", 4},
		{"purge disabled", "", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Jobs.PurgeSpec = tt.purge

			a := build(t, cfg, nil)
			assert.Equal(t, tt.expired, a.scheduler.Len())
		})
	}
}

func TestIssueRewardRequiresReferral(t *testing.T) {
	a := build(t, testConfig(t), nil)

	job := jobs.NewJob("default", referral.JobIssueReward, map[string]interface{}{})
	err := a.issueReward(context.Background(), job)
	require.Error(t, err)
	assert.True(t, jobs.IsPermanent(err))
}

func TestRoutesWithoutStorage(t *testing.T) {
	routes := Routes(testConfig(t))

	assert.True(t, hasRoute(routes, "*", "/ws"))
	assert.True(t, hasRoute(routes, http.MethodPost, "/api/webhooks/billing"))
	assert.True(t, hasRoute(routes, http.MethodGet, "/api/clients"))
}
