package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@localhost:5432/app?sslmode=disable", "pgx5://u:p@localhost:5432/app?sslmode=disable"},
		{"postgresql://localhost/app", "pgx5://localhost/app"},
		{"pgx5://localhost/app", "pgx5://localhost/app"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DriverURL(tt.in))
		})
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups[strings.TrimSuffix(n, ".up.sql")] = true
		case strings.HasSuffix(n, ".down.sql"):
			downs[strings.TrimSuffix(n, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %s", n)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSchemaDefinesCoreTables(t *testing.T) {
	var all strings.Builder
	names, err := Names()
	require.NoError(t, err)
	for _, n := range names {
		if !strings.HasSuffix(n, ".up.sql") {
			continue
		}
		b, err := files.ReadFile("sql/" + n)
		require.NoError(t, err)
		all.Write(b)
	}

	for _, table := range []string{"accounts", "clients", "materials", "quotes", "invoices", "appointments", "trips", "referrals", "commissions", "purchases", "webhook_events", "jobs"} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}
