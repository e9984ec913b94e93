package clientcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsfs-project/tsfs/internal/cryptox"
	"github.com/tsfs-project/tsfs/internal/keyring"
)

func TestPrepareUploadAtRootAndDecrypt(t *testing.T) {
	priv, err := cryptox.GenerateUserKeyPair()
	require.NoError(t, err)

	payload, ciphertext, err := PrepareUpload("notes.txt", []byte("hello world"), nil, &priv.PublicKey)
	require.NoError(t, err)

	recoveredKey, err := cryptox.UnwrapWithPrivateKey(priv, payload.WrappedKey)
	require.NoError(t, err)
	assert.Equal(t, payload.SymmetricKey, recoveredKey)

	plaintext, err := DecryptDownload(recoveredKey, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), plaintext)
}

func TestPrepareUploadUnderFolder(t *testing.T) {
	folderKey, err := cryptox.GenerateKey()
	require.NoError(t, err)

	payload, ciphertext, err := PrepareUpload("report.pdf", []byte("data"), folderKey, nil)
	require.NoError(t, err)

	recoveredKey, err := cryptox.Open(folderKey, payload.WrappedKey)
	require.NoError(t, err)
	assert.Equal(t, payload.SymmetricKey, recoveredKey)

	plaintext, err := DecryptDownload(recoveredKey, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), plaintext)
}

func TestPrepareShare(t *testing.T) {
	priv, err := cryptox.GenerateUserKeyPair()
	require.NoError(t, err)

	fileKey, err := cryptox.GenerateKey()
	require.NoError(t, err)

	wrapped, err := PrepareShare(fileKey, &priv.PublicKey)
	require.NoError(t, err)

	recovered, err := cryptox.UnwrapWithPrivateKey(priv, wrapped)
	require.NoError(t, err)
	assert.Equal(t, fileKey, recovered)
}

func TestResolvePath(t *testing.T) {
	tree := &keyring.PlaintextTree{
		Edges: []keyring.PlaintextEdge{
			{
				TargetID: "folder-1", TargetName: "Documents", IsFolder: true,
				Subtree: &keyring.PlaintextTree{
					Edges: []keyring.PlaintextEdge{
						{TargetID: "file-1", TargetName: "report.pdf"},
					},
				},
			},
		},
	}

	edge, err := ResolvePath(tree, []string{"Documents", "report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "file-1", edge.TargetID)

	_, err = ResolvePath(tree, []string{"Documents", "missing.txt"})
	assert.Error(t, err)

	_, err = ResolvePath(tree, []string{"report.pdf", "nested"})
	assert.Error(t, err, "walking into a non-folder must fail")
}
