package keyring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsfs-project/tsfs/internal/cryptox"
	"github.com/tsfs-project/tsfs/pkg/store"
	"github.com/tsfs-project/tsfs/pkg/store/memory"
)

func TestBuildAndDecryptRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()

	priv, err := cryptox.GenerateUserKeyPair()
	require.NoError(t, err)

	rootKR := "root-kr"
	require.NoError(t, db.CreateKeyring(ctx, rootKR))

	// A folder directly under root.
	folderKR := "folder-kr"
	require.NoError(t, db.CreateKeyring(ctx, folderKR))
	folderKey, err := cryptox.GenerateKey()
	require.NoError(t, err)

	folderNamePlain := []byte("Documents")
	folderNameSealed, err := cryptox.Seal(folderKey, folderNamePlain)
	require.NoError(t, err)

	folderID := "folder-1"
	require.NoError(t, db.CreateFile(ctx, &store.File{
		ID: folderID, EncryptedName: folderNameSealed, Mtime: time.Now(), FolderKeyringID: &folderKR,
	}))
	wrappedFolderKey, err := cryptox.WrapToPublicKey(&priv.PublicKey, folderKey)
	require.NoError(t, err)
	require.NoError(t, db.InsertEdge(ctx, store.Key{KeyringID: rootKR, Target: folderID, WrappedKey: wrappedFolderKey}))

	// A file inside the folder.
	fileKey, err := cryptox.GenerateKey()
	require.NoError(t, err)
	fileNameSealed, err := cryptox.Seal(fileKey, []byte("report.pdf"))
	require.NoError(t, err)

	fileID := "file-1"
	require.NoError(t, db.CreateFile(ctx, &store.File{
		ID: fileID, EncryptedName: fileNameSealed, Mtime: time.Now(), CiphertextData: []byte("ct"),
	}))
	wrappedFileKey, err := cryptox.Seal(folderKey, fileKey)
	require.NoError(t, err)
	require.NoError(t, db.InsertEdge(ctx, store.Key{KeyringID: folderKR, Target: fileID, WrappedKey: wrappedFileKey}))

	// A file directly under root.
	rootFileKey, err := cryptox.GenerateKey()
	require.NoError(t, err)
	rootFileNameSealed, err := cryptox.Seal(rootFileKey, []byte("notes.txt"))
	require.NoError(t, err)
	rootFileID := "file-2"
	require.NoError(t, db.CreateFile(ctx, &store.File{
		ID: rootFileID, EncryptedName: rootFileNameSealed, Mtime: time.Now(), CiphertextData: []byte("ct"),
	}))
	wrappedRootFileKey, err := cryptox.WrapToPublicKey(&priv.PublicKey, rootFileKey)
	require.NoError(t, err)
	require.NoError(t, db.InsertEdge(ctx, store.Key{KeyringID: rootKR, Target: rootFileID, WrappedKey: wrappedRootFileKey}))

	wire, err := Build(ctx, db, rootKR)
	require.NoError(t, err)
	assert.Equal(t, rootKR, wire.ID)
	assert.Len(t, wire.Edges, 2)

	plain, err := Decrypt(wire, priv)
	require.NoError(t, err)

	notes, ok := plain.GetByName("notes.txt")
	require.True(t, ok)
	assert.False(t, notes.IsFolder)
	assert.Equal(t, rootFileKey, notes.Key)

	docs, ok := plain.GetByName("Documents")
	require.True(t, ok)
	assert.True(t, docs.IsFolder)
	require.NotNil(t, docs.Subtree)

	report, ok := docs.Subtree.GetByName("report.pdf")
	require.True(t, ok)
	assert.Equal(t, fileKey, report.Key)

	byID, ok := plain.GetByID(fileID)
	require.True(t, ok)
	assert.Equal(t, "report.pdf", byID.TargetName)
}

func TestGetByNameMisses(t *testing.T) {
	tree := &PlaintextTree{ID: "root"}
	_, ok := tree.GetByName("nope")
	assert.False(t, ok)
}
