package adapter_test

import (
	"testing"

	"github.com/eduanalytics/caaspp/pkg/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Import adapter packages to ensure adapters are registered via init()
	_ "github.com/eduanalytics/caaspp/pkg/adapters/duckdb"
	_ "github.com/eduanalytics/caaspp/pkg/adapters/postgres"
)

func TestListAdapters(t *testing.T) {
	adapters := adapter.ListAdapters()

	assert.Contains(t, adapters, "duckdb")
	assert.Contains(t, adapters, "postgres")
}

func TestIsRegistered(t *testing.T) {
	tests := []struct {
		name        string
		adapterName string
		expected    bool
	}{
		{"duckdb registered", "duckdb", true},
		{"postgres registered", "postgres", true},
		{"unknown not registered", "unknown_db", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, adapter.IsRegistered(tt.adapterName))
		})
	}
}

func TestNewAdapterFromRegistry(t *testing.T) {
	for _, name := range []string{"duckdb", "postgres"} {
		t.Run(name, func(t *testing.T) {
			w, err := adapter.NewAdapter(adapter.Config{Type: name}, nil)
			require.NoError(t, err)
			assert.NotNil(t, w)
		})
	}
}
