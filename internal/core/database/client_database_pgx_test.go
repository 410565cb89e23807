package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/vectorsync/internal/config"
)

func TestBuildDSN(t *testing.T) {
	_, err := buildDSN(config.DatabaseConfig{})
	require.Error(t, err)

	dsn, err := buildDSN(config.DatabaseConfig{URL: "postgres://u:p@db:5432/app"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/app", dsn)

	_, err = buildDSN(config.DatabaseConfig{URL: "postgres://db/app", SslCertPath: "/does/not/exist.pem"})
	require.Error(t, err)

	cert := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(cert, []byte("cert"), 0o600))
	dsn, err = buildDSN(config.DatabaseConfig{URL: "postgres://db/app?application_name=vs", SslCertPath: cert})
	require.NoError(t, err)
	assert.Contains(t, dsn, "sslmode=verify-ca")
	assert.Contains(t, dsn, "application_name=vs")
	assert.Contains(t, dsn, "sslrootcert=")
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%report%", likePattern("report"))
	assert.Equal(t, `%50\%\_off%`, likePattern("50%_off"))
	assert.Equal(t, `%a\\b%`, likePattern(`a\b`))
}

func TestAdvisoryKey(t *testing.T) {
	assert.Equal(t, advisoryKey("datasource_1"), advisoryKey("datasource_1"))
	assert.NotEqual(t, advisoryKey("datasource_1"), advisoryKey("datasource_2"))
}
