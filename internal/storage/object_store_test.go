package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bustrack/internal/config"
)

func TestExportKey(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 30, 15, 0, time.UTC)
	assert.Equal(t, "exports/2024-05-01/093015-buses.csv", ExportKey(at, "buses.csv"))
}

func TestNewObjectStoreParsesEndpoint(t *testing.T) {
	store, err := NewObjectStore(config.StorageConfig{
		Endpoint:      "https://minio.campus.internal:9000",
		AccessKey:     "key",
		SecretKey:     "secret",
		BucketExports: "exports",
		Region:        "us-east-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "minio.campus.internal:9000", store.client.EndpointURL().Host)
	assert.Equal(t, "https", store.client.EndpointURL().Scheme)
	assert.Equal(t, 15*time.Minute, store.expiry())
}
