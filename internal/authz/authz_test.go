package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsfs-project/tsfs/pkg/store"
	"github.com/tsfs-project/tsfs/pkg/store/memory"
)

// buildGraph wires: root -> folderA -> fileX
//                   root -> fileY (direct)
func buildGraph(t *testing.T) (store.Store, string) {
	t.Helper()
	db := memory.NewStore()
	ctx := context.Background()

	root := "root-kr"
	folderKeyring := "folder-kr"
	require.NoError(t, db.CreateKeyring(ctx, root))
	require.NoError(t, db.CreateKeyring(ctx, folderKeyring))

	folderID := "folder-1"
	require.NoError(t, db.CreateFile(ctx, &store.File{
		ID: folderID, EncryptedName: []byte("folderA"), Mtime: time.Now(), FolderKeyringID: &folderKeyring,
	}))
	require.NoError(t, db.InsertEdge(ctx, store.Key{KeyringID: root, Target: folderID, WrappedKey: []byte("k1")}))

	fileX := "file-x"
	require.NoError(t, db.CreateFile(ctx, &store.File{
		ID: fileX, EncryptedName: []byte("x.txt"), Mtime: time.Now(), CiphertextData: []byte("ct"),
	}))
	require.NoError(t, db.InsertEdge(ctx, store.Key{KeyringID: folderKeyring, Target: fileX, WrappedKey: []byte("k2")}))

	fileY := "file-y"
	require.NoError(t, db.CreateFile(ctx, &store.File{
		ID: fileY, EncryptedName: []byte("y.txt"), Mtime: time.Now(), CiphertextData: []byte("ct"),
	}))
	require.NoError(t, db.InsertEdge(ctx, store.Key{KeyringID: root, Target: fileY, WrappedKey: []byte("k3")}))

	return db, root
}

func TestHasAccessDirectEdge(t *testing.T) {
	db, root := buildGraph(t)
	ok, err := HasAccess(context.Background(), db, root, "file-y")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasAccessThroughFolder(t *testing.T) {
	db, root := buildGraph(t)
	ok, err := HasAccess(context.Background(), db, root, "file-x")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasAccessDenied(t *testing.T) {
	db, root := buildGraph(t)
	ok, err := HasAccess(context.Background(), db, root, "file-does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasAccessIsolation(t *testing.T) {
	db, _ := buildGraph(t)
	ctx := context.Background()

	otherRoot := "other-root"
	require.NoError(t, db.CreateKeyring(ctx, otherRoot))

	ok, err := HasAccess(ctx, db, otherRoot, "file-x")
	require.NoError(t, err)
	assert.False(t, ok, "a keyring with no edges must not see another user's files")
}

func TestHasAccessCycleDefense(t *testing.T) {
	db := memory.NewStore()
	ctx := context.Background()

	krA, krB := "kr-a", "kr-b"
	require.NoError(t, db.CreateKeyring(ctx, krA))
	require.NoError(t, db.CreateKeyring(ctx, krB))

	folderA, folderB := "folder-a", "folder-b"
	require.NoError(t, db.CreateFile(ctx, &store.File{ID: folderA, EncryptedName: []byte("a"), Mtime: time.Now(), FolderKeyringID: &krB}))
	require.NoError(t, db.CreateFile(ctx, &store.File{ID: folderB, EncryptedName: []byte("b"), Mtime: time.Now(), FolderKeyringID: &krA}))
	require.NoError(t, db.InsertEdge(ctx, store.Key{KeyringID: krA, Target: folderA, WrappedKey: []byte("k")}))
	require.NoError(t, db.InsertEdge(ctx, store.Key{KeyringID: krB, Target: folderB, WrappedKey: []byte("k")}))

	done := make(chan bool, 1)
	go func() {
		ok, err := HasAccess(ctx, db, krA, "does-not-exist")
		require.NoError(t, err)
		done <- ok
	}()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("HasAccess did not terminate on a cyclic graph")
	}
}
