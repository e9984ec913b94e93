package fileops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsfs-project/tsfs/pkg/store"
	"github.com/tsfs-project/tsfs/pkg/store/memory"
)

func newUserWithRoot(t *testing.T, db store.Store, username, rootKeyring string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.CreateKeyring(ctx, rootKeyring))
	require.NoError(t, db.CreateUser(ctx, &store.User{
		Username:      username,
		RootKeyringID: rootKeyring,
		PublicKey:     []byte("pub-" + username),
	}))
}

func TestUploadCreatesNewFile(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	newUserWithRoot(t, db, "alice", "alice-root")
	svc := New(db)

	id, created, err := svc.Upload(ctx, UploadInput{
		RootKeyringID:  "alice-root",
		EncryptedName:  []byte("enc-name-1"),
		CiphertextData: []byte("ct-1"),
		WrappedKey:     []byte("wrapped-1"),
	})
	require.NoError(t, err)
	assert.True(t, created)

	f, err := db.GetFile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("ct-1"), f.CiphertextData)
}

func TestUploadWithOverwriteFileIDReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	newUserWithRoot(t, db, "alice", "alice-root")
	svc := New(db)

	id1, created1, err := svc.Upload(ctx, UploadInput{
		RootKeyringID: "alice-root", EncryptedName: []byte("enc-name-v1"),
		CiphertextData: []byte("v1"), WrappedKey: []byte("wk"),
	})
	require.NoError(t, err)
	assert.True(t, created1)

	id2, created2, err := svc.Upload(ctx, UploadInput{
		RootKeyringID: "alice-root", EncryptedName: []byte("enc-name-v2"),
		CiphertextData: []byte("v2"), OverwriteFileID: id1,
	})
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, id1, id2)

	f, err := db.GetFile(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), f.CiphertextData)
	assert.Equal(t, []byte("enc-name-v2"), f.EncryptedName)

	edges, err := db.ListEdges(ctx, "alice-root")
	require.NoError(t, err)
	assert.Len(t, edges, 1, "overwrite must not insert a second edge")
}

func TestUploadWithOverwriteFileIDOutsideParentIsNotFound(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	newUserWithRoot(t, db, "alice", "alice-root")
	svc := New(db)

	_, _, err := svc.Upload(ctx, UploadInput{
		RootKeyringID: "alice-root", EncryptedName: []byte("enc-name"),
		CiphertextData: []byte("v1"), OverwriteFileID: "no-such-file",
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateFolderAndUploadInto(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	newUserWithRoot(t, db, "alice", "alice-root")
	svc := New(db)

	folderID, err := svc.CreateFolder(ctx, CreateFolderInput{
		RootKeyringID: "alice-root", EncryptedName: []byte("docs"), WrappedKey: []byte("wk-folder"),
	})
	require.NoError(t, err)

	fileID, created, err := svc.Upload(ctx, UploadInput{
		RootKeyringID: "alice-root", ParentUID: folderID,
		EncryptedName: []byte("in-folder"), CiphertextData: []byte("ct"), WrappedKey: []byte("wk"),
	})
	require.NoError(t, err)
	assert.True(t, created)

	tree, err := svc.GetTree(ctx, "alice-root")
	require.NoError(t, err)
	require.Len(t, tree.Edges, 1)
	require.NotNil(t, tree.Edges[0].Target.Subtree)
	assert.Equal(t, fileID, tree.Edges[0].Target.Subtree.Edges[0].Target.ID)
}

func TestUploadToParentWithoutAccessIsForbidden(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	newUserWithRoot(t, db, "alice", "alice-root")
	newUserWithRoot(t, db, "bob", "bob-root")
	svc := New(db)

	bobFolder, err := svc.CreateFolder(ctx, CreateFolderInput{RootKeyringID: "bob-root", EncryptedName: []byte("bobs"), WrappedKey: []byte("wk")})
	require.NoError(t, err)

	_, _, err = svc.Upload(ctx, UploadInput{
		RootKeyringID: "alice-root", ParentUID: bobFolder,
		EncryptedName: []byte("x"), CiphertextData: []byte("ct"), WrappedKey: []byte("wk"),
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDeleteRequiresAccess(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	newUserWithRoot(t, db, "alice", "alice-root")
	newUserWithRoot(t, db, "bob", "bob-root")
	svc := New(db)

	id, _, err := svc.Upload(ctx, UploadInput{RootKeyringID: "alice-root", EncryptedName: []byte("n"), CiphertextData: []byte("ct"), WrappedKey: []byte("wk")})
	require.NoError(t, err)

	err = svc.Delete(ctx, "bob-root", id)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.Delete(ctx, "alice-root", id))
	_, err = db.GetFile(ctx, id)
	assert.True(t, store.IsNotFound(err))
}

func TestDeleteNonEmptyFolderRefused(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	newUserWithRoot(t, db, "alice", "alice-root")
	svc := New(db)

	folderID, err := svc.CreateFolder(ctx, CreateFolderInput{RootKeyringID: "alice-root", EncryptedName: []byte("docs"), WrappedKey: []byte("wk")})
	require.NoError(t, err)
	_, _, err = svc.Upload(ctx, UploadInput{RootKeyringID: "alice-root", ParentUID: folderID, EncryptedName: []byte("f"), CiphertextData: []byte("ct"), WrappedKey: []byte("wk")})
	require.NoError(t, err)

	err = svc.Delete(ctx, "alice-root", folderID)
	assert.ErrorIs(t, err, ErrFolderNotEmpty)
}

func TestShareGrantsAccessToTarget(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	newUserWithRoot(t, db, "alice", "alice-root")
	newUserWithRoot(t, db, "bob", "bob-root")
	svc := New(db)

	id, _, err := svc.Upload(ctx, UploadInput{RootKeyringID: "alice-root", EncryptedName: []byte("n"), CiphertextData: []byte("ct"), WrappedKey: []byte("wk")})
	require.NoError(t, err)

	require.NoError(t, svc.Share(ctx, "alice-root", id, "bob-root", []byte("wk-for-bob")))

	_, err = svc.Download(ctx, "bob-root", id)
	assert.NoError(t, err)
}

func TestShareWithoutAccessIsForbidden(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	newUserWithRoot(t, db, "alice", "alice-root")
	newUserWithRoot(t, db, "bob", "bob-root")
	newUserWithRoot(t, db, "carol", "carol-root")
	svc := New(db)

	id, _, err := svc.Upload(ctx, UploadInput{RootKeyringID: "alice-root", EncryptedName: []byte("n"), CiphertextData: []byte("ct"), WrappedKey: []byte("wk")})
	require.NoError(t, err)

	err = svc.Share(ctx, "bob-root", id, "carol-root", []byte("wk"))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUnshareRevokesOldEdgesAndRekeys(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	newUserWithRoot(t, db, "alice", "alice-root")
	newUserWithRoot(t, db, "bob", "bob-root")
	svc := New(db)

	id, _, err := svc.Upload(ctx, UploadInput{RootKeyringID: "alice-root", EncryptedName: []byte("n"), CiphertextData: []byte("ct"), WrappedKey: []byte("wk")})
	require.NoError(t, err)
	require.NoError(t, svc.Share(ctx, "alice-root", id, "bob-root", []byte("wk-bob")))

	err = svc.Unshare(ctx, UnshareInput{
		RootKeyringID: "alice-root", FileUID: id,
		WrappedKey: []byte("wk-new"), EncryptedName: []byte("new-name"), CiphertextData: []byte("new-ct"),
	})
	require.NoError(t, err)

	_, err = svc.Download(ctx, "bob-root", id)
	assert.ErrorIs(t, err, ErrForbidden, "unshare must revoke bob's prior access")

	f, err := svc.Download(ctx, "alice-root", id)
	require.NoError(t, err)
	assert.Equal(t, []byte("new-ct"), f.CiphertextData)
	assert.Equal(t, []byte("new-name"), f.EncryptedName)
}

func TestUnshareFolderRejected(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	newUserWithRoot(t, db, "alice", "alice-root")
	svc := New(db)

	folderID, err := svc.CreateFolder(ctx, CreateFolderInput{RootKeyringID: "alice-root", EncryptedName: []byte("docs"), WrappedKey: []byte("wk")})
	require.NoError(t, err)

	err = svc.Unshare(ctx, UnshareInput{RootKeyringID: "alice-root", FileUID: folderID, WrappedKey: []byte("wk"), EncryptedName: []byte("n"), CiphertextData: []byte("ct")})
	assert.ErrorIs(t, err, ErrUnshareFolder)
}

func TestGetPublicKeyKnownUser(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	newUserWithRoot(t, db, "alice", "alice-root")

	pk, err := GetPublicKey(ctx, db, "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("pub-alice"), pk)
}

func TestGetPublicKeyUnknownUserIsDeterministicDummy(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()

	pk1, err := GetPublicKey(ctx, db, "ghost")
	require.NoError(t, err)
	pk2, err := GetPublicKey(ctx, db, "ghost")
	require.NoError(t, err)
	assert.Equal(t, pk1, pk2)

	pk3, err := GetPublicKey(ctx, db, "different-ghost")
	require.NoError(t, err)
	assert.NotEqual(t, pk1, pk3)
}
