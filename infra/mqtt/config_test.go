package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o600))
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, tlsCfg.Certificates)
	assert.NotNil(t, tlsCfg.RootCAs)

	_, err = Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)

	opts, err = NewClientOptions(Config{Broker: "tcp://localhost:1883", AuthMethod: "certificate", Username: "u"})
	require.NoError(t, err)
	assert.Empty(t, opts.Username)
}

func TestSetDefaults(t *testing.T) {
	cfg := Config{Broker: "tcp://localhost:1883", TopicPrefix: "acme/"}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "acme", cfg.TopicPrefix)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, "acme/gateway/jobroute-gateway", cfg.LWTTopic)
	assert.Equal(t, "offline", cfg.LWTPayload)
	assert.True(t, cfg.LWTRetain)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Broker: "tcp://x", TopicPrefix: "a/#"}.Validate())
	assert.Error(t, Config{Broker: "tcp://x", AuthMethod: "kerberos"}.Validate())
}

func TestTopics(t *testing.T) {
	cfg := Config{TopicPrefix: "jobroute"}
	assert.Equal(t, "jobroute/presence/+/+/+", cfg.filter(kindPresence, 3))
	assert.Equal(t, "jobroute/inbox/p1/s1", cfg.inboxTopic("p1", "s1"))

	parts, ok := cfg.parseTopic("jobroute/presence/provider/p1/s1", kindPresence, 3)
	require.True(t, ok)
	assert.Equal(t, []string{"provider", "p1", "s1"}, parts)

	_, ok = cfg.parseTopic("jobroute/presence/provider/p1", kindPresence, 3)
	assert.False(t, ok)
	_, ok = cfg.parseTopic("other/presence/provider/p1/s1", kindPresence, 3)
	assert.False(t, ok)
	_, ok = cfg.parseTopic("jobroute/response//", kindResponse, 1)
	assert.False(t, ok)
}
