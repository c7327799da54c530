package tlsutil

import (
	"crypto/tls"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTLSConfig(t *testing.T) {
	cfg := DefaultTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.NotEmpty(t, cfg.CipherSuites)

	for _, cs := range cfg.CipherSuites {
		assert.Contains(t, aeadSuites, cs, "unexpected suite %s", tls.CipherSuiteName(cs))
	}

	// 调用方改动返回值不影响包内表
	cfg.CipherSuites[0] = 0
	assert.NotZero(t, DefaultTLSConfig().CipherSuites[0])
}

func TestClientTLSConfig(t *testing.T) {
	cfg := ClientTLSConfig("redis.internal")
	assert.Equal(t, "redis.internal", cfg.ServerName)
	assert.Nil(t, cfg.RootCAs, "system roots")
	assert.Empty(t, DefaultTLSConfig().ServerName)
}

// writeServerCA 把 httptest TLS 服务端的证书写成 PEM 文件
func writeServerCA(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ca.pem")
	block := &pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func TestNewClientConfig_CAFile(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	// httptest 证书签发给 example.com
	cfg, err := NewClientConfig(ClientOptions{ServerName: "example.com", CAFile: writeServerCA(t, srv)})
	require.NoError(t, err)
	require.NotNil(t, cfg.RootCAs)

	client := &http.Client{Timeout: 5 * time.Second, Transport: &http.Transport{TLSClientConfig: cfg}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewClientConfig_DefaultRootsRejectPrivateCA(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()

	cfg, err := NewClientConfig(ClientOptions{ServerName: "example.com"})
	require.NoError(t, err)

	client := &http.Client{Timeout: 5 * time.Second, Transport: &http.Transport{TLSClientConfig: cfg}}
	_, err = client.Get(srv.URL)
	assert.Error(t, err)
}

func TestLoadRootCAs_Errors(t *testing.T) {
	_, err := LoadRootCAs(filepath.Join(t.TempDir(), "missing.pem"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))
	_, err = LoadRootCAs(garbage)
	assert.ErrorIs(t, err, ErrNoCertificates)

	_, err = NewClientConfig(ClientOptions{ServerName: "redis", CAFile: garbage})
	assert.ErrorIs(t, err, ErrNoCertificates)
}

func TestSecureHTTPClient(t *testing.T) {
	client := SecureHTTPClient(15 * time.Second)
	assert.Equal(t, 15*time.Second, client.Timeout)

	tr, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, tr.TLSClientConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
	assert.NotNil(t, tr.Proxy)
}
