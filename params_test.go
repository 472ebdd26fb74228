package tdauth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadParameters(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("api_id: 42\napi_hash: abc\ndatabase_directory: /var/lib/td\nuse_test_dc: true\n"), 0o600))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("api_id: [1, 2"), 0o600))

	t.Run("overrides defaults", func(t *testing.T) {
		p, err := LoadParameters(good)
		require.NoError(t, err)
		want := DefaultParameters()
		want.APIID = 42
		want.APIHash = "abc"
		want.DatabaseDirectory = "/var/lib/td"
		want.UseTestDC = true
		assert.Equal(t, want, p)
		assert.True(t, p.hasCreds())
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadParameters(filepath.Join(dir, "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
	t.Run("invalid yaml", func(t *testing.T) {
		_, err := LoadParameters(bad)
		assert.Error(t, err)
	})
}

func TestParameters_ApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    func(p *Parameters)
		wantErr bool
	}{
		{
			name: "nothing set",
			want: func(p *Parameters) {},
		},
		{
			name: "all set",
			env: map[string]string{
				EnvAPIID:             "100",
				EnvAPIHash:           "hash",
				EnvDatabaseDirectory: "db",
				EnvUseTestDC:         "true",
			},
			want: func(p *Parameters) {
				p.APIID = 100
				p.APIHash = "hash"
				p.DatabaseDirectory = "db"
				p.UseTestDC = true
			},
		},
		{
			name:    "invalid id",
			env:     map[string]string{EnvAPIID: "one"},
			wantErr: true,
		},
		{
			name:    "invalid test dc",
			env:     map[string]string{EnvUseTestDC: "maybe"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{EnvAPIID, EnvAPIHash, EnvDatabaseDirectory, EnvUseTestDC} {
				t.Setenv(k, tt.env[k])
			}
			p := DefaultParameters()
			err := p.ApplyEnv()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			want := DefaultParameters()
			tt.want(&want)
			assert.Equal(t, want, p)
		})
	}
}

func TestParameters_request(t *testing.T) {
	p := testParams()
	req := p.request()
	assert.Equal(t, "setTdlibParameters", req.RequestType())
	assert.Equal(t, int32(12345), req.Parameters.APIID)
	assert.Equal(t, "very secure", req.Parameters.APIHash)
	assert.Equal(t, p.DatabaseDirectory, req.Parameters.DatabaseDirectory)
}
