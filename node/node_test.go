package node

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taple-project/taple-core-go/config"
	"github.com/taple-project/taple-core-go/distribution"
	"github.com/taple-project/taple-core-go/identifier"
	"github.com/taple-project/taple-core-go/messages"
	"github.com/taple-project/taple-core-go/model"
	"github.com/taple-project/taple-core-go/storage"
)

type noopTransport struct{}

func (noopTransport) Send(ctx context.Context, peer string, msg messages.TapleMessage) error {
	return nil
}

type noopSink struct{}

func (noopSink) IngestEvent(subjectID identifier.Identifier, ev model.Event) error { return nil }

func TestLoadOrCreateIdentityMintsAndReloads(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		KeystorePath:          filepath.Join(dir, "keystore.json"),
		KeystorePassphraseEnv: "TAPLE_TEST_PASSPHRASE",
	}
	os.Setenv(cfg.KeystorePassphraseEnv, "correct horse battery staple")
	defer os.Unsetenv(cfg.KeystorePassphraseEnv)

	first, err := LoadOrCreateIdentity(cfg)
	require.NoError(t, err)

	second, err := LoadOrCreateIdentity(cfg)
	require.NoError(t, err)

	firstID, err := first.Public().Identifier()
	require.NoError(t, err)
	secondID, err := second.Public().Identifier()
	require.NoError(t, err)
	require.Equal(t, firstID, secondID)
}

func TestNewWiresAllComponents(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		KeystorePath:          filepath.Join(dir, "keystore.json"),
		KeystorePassphraseEnv: "TAPLE_TEST_PASSPHRASE_2",
		MessageTaskTimeoutMS:  1000,
		MessageTaskReplication: 0.5,
		MessageTaskRetries:    1,
	}
	os.Setenv(cfg.KeystorePassphraseEnv, "s3cr3t")
	defer os.Unsetenv(cfg.KeystorePassphraseEnv)

	identity, err := LoadOrCreateIdentity(cfg)
	require.NoError(t, err)

	n, err := New(cfg, storage.NewMemDB(), identity, noopTransport{}, noopSink{})
	require.NoError(t, err)
	require.NotNil(t, n.Ledger)
	require.NotNil(t, n.Evaluator)
	require.NotNil(t, n.Approver)
	require.NotNil(t, n.Notary)
	require.NotNil(t, n.Validator)
	require.NotNil(t, n.Distributor)
}
