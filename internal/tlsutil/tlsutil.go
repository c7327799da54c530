package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

// ErrNoCertificates CA 文件里没有可用的 PEM 证书
var ErrNoCertificates = errors.New("tlsutil: no PEM certificates found")

// aeadSuites TLS 1.2 下允许的套件，1.3 的套件由运行时固定
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// DefaultTLSConfig 每次返回一份新的加固配置
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: append([]uint16(nil), aeadSuites...),
	}
}

// ClientOptions 连接单个后端（如 Redis）时的 TLS 参数
type ClientOptions struct {
	// ServerName 参与证书校验的主机名
	ServerName string
	// CAFile 私有 CA 的 PEM 文件；为空时使用系统根证书
	CAFile string
}

// ClientTLSConfig 面向单个服务端的加固配置，使用系统根证书
func ClientTLSConfig(serverName string) *tls.Config {
	cfg := DefaultTLSConfig()
	cfg.ServerName = serverName
	return cfg
}

// NewClientConfig 按 opts 构造客户端配置，CAFile 读取或解析失败时返回错误
func NewClientConfig(opts ClientOptions) (*tls.Config, error) {
	cfg := ClientTLSConfig(opts.ServerName)
	if opts.CAFile == "" {
		return cfg, nil
	}
	pool, err := LoadRootCAs(opts.CAFile)
	if err != nil {
		return nil, err
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// LoadRootCAs 从 PEM 文件加载证书池，只包含文件中的证书
func LoadRootCAs(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%s: %w", path, ErrNoCertificates)
	}
	return pool, nil
}

// SecureHTTPClient CLI 子命令访问服务端时使用，代理取自环境变量
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: DefaultTLSConfig(),
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
