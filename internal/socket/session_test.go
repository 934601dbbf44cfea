package socket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vimo-ai/vlaude-daemon/internal/daemonerr"
)

func zapNop() *zap.Logger {
	return zap.NewNop()
}

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	raw, err := encodeFrame("daemon:etermOnline", timestampedData{Timestamp: "2026-07-31T00:00:00Z"})
	require.NoError(t, err)

	f, err := decodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, "daemon:etermOnline", f.Event)

	var decoded timestampedData
	require.NoError(t, json.Unmarshal(f.Payload, &decoded))
	assert.Equal(t, "2026-07-31T00:00:00Z", decoded.Timestamp)
}

func TestEncodeFrameWithAckCarriesAckID(t *testing.T) {
	raw, err := encodeFrameWithAck("daemon:register", registerData{Hostname: "h1"}, "ack-1")
	require.NoError(t, err)

	f, err := decodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, "ack-1", f.AckID)
}

func TestDecodeAckRequiresAckID(t *testing.T) {
	_, ok := decodeAck([]byte(`{"event":"x","payload":{}}`))
	assert.False(t, ok)

	ok2, valid := decodeAck([]byte(`{"ackId":"a1","payload":{"success":true}}`))
	assert.True(t, valid)
	assert.Equal(t, "a1", ok2.AckID)
}

func TestEmitWithoutConnectionFails(t *testing.T) {
	s := New(Config{ServerURL: "https://localhost:10005"}, nil, zapNop())
	err := s.Emit("daemon:etermOnline", timestampedData{})
	assert.ErrorIs(t, err, daemonerr.ErrNotConnected)
}

func TestBuildTLSConfigRejectsMutuallyExclusiveIdentities(t *testing.T) {
	cfg := TLSConfig{
		ClientCertPath: "cert.pem",
		ClientKeyPath:  "key.pem",
		PKCS12Path:     "bundle.p12",
	}
	_, err := buildTLSConfig(cfg, func(string) {})
	assert.ErrorIs(t, err, daemonerr.ErrInvalidInput)
}

func TestWsURLSchemeTranslation(t *testing.T) {
	s := New(Config{ServerURL: "https://localhost:10005", Namespace: "/daemon"}, nil, zapNop())
	u, err := s.wsURL(s.cfg.ServerURL)
	require.NoError(t, err)
	assert.Equal(t, "wss://localhost:10005/daemon", u)
}
