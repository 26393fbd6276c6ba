package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

func TestVectorStoreManager_Index(t *testing.T) {
	ctx := context.Background()

	t.Run("Should seed a new index and leave it empty", func(t *testing.T) {
		f := newFixture()
		f.opener.created = true

		idx, err := f.manager.Index(ctx)
		require.NoError(t, err)
		n, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, 1, f.index.adds)
		assert.Equal(t, 1, f.index.deletes)
	})

	t.Run("Should load an existing index without seeding", func(t *testing.T) {
		f := newFixture()
		_, err := f.manager.Index(ctx)
		require.NoError(t, err)
		assert.Zero(t, f.index.adds)
	})

	t.Run("Should open only once", func(t *testing.T) {
		f := newFixture()
		first, err := f.manager.Index(ctx)
		require.NoError(t, err)
		second, err := f.manager.Index(ctx)
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Equal(t, 1, f.opener.opens)
	})

	t.Run("Should retry after a failed open", func(t *testing.T) {
		f := newFixture()
		f.opener.err = errors.New("disk")
		_, err := f.manager.Index(ctx)
		require.Error(t, err)

		f.opener.err = nil
		_, err = f.manager.Index(ctx)
		require.NoError(t, err)
	})
}

func TestVectorStoreManager_AddDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("Should index chunks and record their ids", func(t *testing.T) {
		f := newFixture()
		ids, err := f.manager.AddDocument(ctx, "faq.csv", []byte("a\nb\nc\n"))
		require.NoError(t, err)
		assert.Len(t, ids, 3)
		assert.Equal(t, ids, f.mapping.data["faq.csv"])

		data, err := f.docs.Read(ctx, "faq.csv")
		require.NoError(t, err)
		assert.Equal(t, "a\nb\nc\n", string(data))

		n, _ := f.index.Count(ctx)
		assert.Equal(t, 3, n)
	})

	t.Run("Should overwrite the mapping when a name is re-added", func(t *testing.T) {
		f := newFixture()
		first, err := f.manager.AddDocument(ctx, "faq.json", []byte("a\n"))
		require.NoError(t, err)
		second, err := f.manager.AddDocument(ctx, "faq.json", []byte("b\nc\n"))
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
		assert.Equal(t, second, f.mapping.data["faq.json"])
		n, _ := f.index.Count(ctx)
		assert.Equal(t, 3, n)
	})

	t.Run("Should reject unsupported formats before writing", func(t *testing.T) {
		f := newFixture()
		_, err := f.manager.AddDocument(ctx, "notes.txt", []byte("hello"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
		names, _ := f.docs.List(ctx)
		assert.Empty(t, names)
		assert.Zero(t, f.index.adds)
	})

	t.Run("Should fail on an empty document and leave no trace", func(t *testing.T) {
		f := newFixture()
		_, err := f.manager.AddDocument(ctx, "empty.csv", []byte("\n\n"))
		assert.ErrorIs(t, err, ErrEmptyDocument)
		names, _ := f.docs.List(ctx)
		assert.Empty(t, names)
		assert.Zero(t, f.index.adds)
		assert.Zero(t, f.mapping.saves)
	})

	t.Run("Should remove the file when loading fails", func(t *testing.T) {
		f := newFixture()
		boom := errors.New("bad csv")
		f.manager.loader = lineLoader{err: boom}
		_, err := f.manager.AddDocument(ctx, "bad.csv", []byte("x"))
		assert.ErrorIs(t, err, boom)
		names, _ := f.docs.List(ctx)
		assert.Empty(t, names)
	})

	t.Run("Should not touch the mapping when the index rejects entries", func(t *testing.T) {
		f := newFixture()
		f.index.addErr = errors.New("full")
		_, err := f.manager.AddDocument(ctx, "a.csv", []byte("x"))
		require.Error(t, err)
		assert.Zero(t, f.mapping.saves)
	})

	t.Run("Should roll back index entries when the mapping cannot be saved", func(t *testing.T) {
		f := newFixture()
		f.mapping.saveErr = errors.New("read-only")
		_, err := f.manager.AddDocument(ctx, "a.csv", []byte("x\ny\n"))
		require.ErrorIs(t, err, f.mapping.saveErr)

		n, _ := f.index.Count(ctx)
		assert.Zero(t, n)
		assert.Equal(t, 1, f.index.adds)
		names, _ := f.docs.List(ctx)
		assert.Empty(t, names)
	})

	t.Run("Should hold the cross-process lock while writing", func(t *testing.T) {
		locker := &countingLocker{}
		f := newFixture(WithLocker(locker))
		_, err := f.manager.AddDocument(ctx, "a.csv", []byte("x"))
		require.NoError(t, err)
		assert.Equal(t, 1, locker.locks)
		assert.Equal(t, 1, locker.unlocks)
	})

	t.Run("Should fail when the lock cannot be acquired", func(t *testing.T) {
		f := newFixture(WithLocker(&countingLocker{err: errors.New("busy")}))
		_, err := f.manager.AddDocument(ctx, "a.csv", []byte("x"))
		require.Error(t, err)
		names, _ := f.docs.List(ctx)
		assert.Empty(t, names)
	})
}

func TestVectorStoreManager_ListDocuments(t *testing.T) {
	ctx := context.Background()

	t.Run("Should list uploads without the mapping file", func(t *testing.T) {
		f := newFixture()
		_, err := f.manager.AddDocument(ctx, "b.json", []byte("x"))
		require.NoError(t, err)
		_, err = f.manager.AddDocument(ctx, "a.csv", []byte("y"))
		require.NoError(t, err)

		names, err := f.manager.ListDocuments(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.csv", "b.json"}, names)
	})

	t.Run("Should return an empty list for an empty directory", func(t *testing.T) {
		names, err := newFixture().manager.ListDocuments(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

func TestVectorStoreManager_DeleteDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("Should remove the file and its entries", func(t *testing.T) {
		f := newFixture()
		_, err := f.manager.AddDocument(ctx, "a.csv", []byte("x\ny\n"))
		require.NoError(t, err)

		ok, err := f.manager.DeleteDocument(ctx, "a.csv")
		require.NoError(t, err)
		assert.True(t, ok)

		n, _ := f.index.Count(ctx)
		assert.Zero(t, n)
		names, _ := f.manager.ListDocuments(ctx)
		assert.NotContains(t, names, "a.csv")
		assert.Contains(t, f.mapping.data, "a.csv", "mapping is kept unless pruning is enabled")
	})

	t.Run("Should report not found for unknown names", func(t *testing.T) {
		ok, err := newFixture().manager.DeleteDocument(ctx, "missing.csv")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Should report not found on a second delete", func(t *testing.T) {
		f := newFixture()
		_, err := f.manager.AddDocument(ctx, "a.csv", []byte("x"))
		require.NoError(t, err)
		ok, err := f.manager.DeleteDocument(ctx, "a.csv")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = f.manager.DeleteDocument(ctx, "a.csv")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Should prune the mapping when enabled", func(t *testing.T) {
		f := newFixture(WithMappingPruning(true))
		_, err := f.manager.AddDocument(ctx, "a.csv", []byte("x"))
		require.NoError(t, err)
		ok, err := f.manager.DeleteDocument(ctx, "a.csv")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NotContains(t, f.mapping.data, "a.csv")

		ok, err = f.manager.DeleteDocument(ctx, "a.csv")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Should keep other documents intact", func(t *testing.T) {
		f := newFixture()
		_, err := f.manager.AddDocument(ctx, "a.csv", []byte("x"))
		require.NoError(t, err)
		keep, err := f.manager.AddDocument(ctx, "b.csv", []byte("y\nz\n"))
		require.NoError(t, err)

		_, err = f.manager.DeleteDocument(ctx, "a.csv")
		require.NoError(t, err)
		n, _ := f.index.Count(ctx)
		assert.Equal(t, len(keep), n)
	})
}

func TestVectorStoreManager_IndexExisting(t *testing.T) {
	ctx := context.Background()

	t.Run("Should index a dropped file once", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.docs.Save(ctx, "drop.csv", []byte("a\nb\n")))

		ids, ok, err := f.manager.IndexExisting(ctx, "drop.csv")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Len(t, ids, 2)

		_, ok, err = f.manager.IndexExisting(ctx, "drop.csv")
		require.NoError(t, err)
		assert.False(t, ok)
		n, _ := f.index.Count(ctx)
		assert.Equal(t, 2, n)
	})

	t.Run("Should re-index a file whose entries were deleted", func(t *testing.T) {
		f := newFixture()
		_, err := f.manager.AddDocument(ctx, "back.csv", []byte("a\n"))
		require.NoError(t, err)
		ok, err := f.manager.DeleteDocument(ctx, "back.csv")
		require.NoError(t, err)
		require.True(t, ok)
		require.NotEmpty(t, f.mapping.data["back.csv"])

		require.NoError(t, f.docs.Save(ctx, "back.csv", []byte("a\nb\n")))
		ids, ok, err := f.manager.IndexExisting(ctx, "back.csv")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, ids, f.mapping.data["back.csv"])
		n, _ := f.index.Count(ctx)
		assert.Equal(t, 2, n)
	})

	t.Run("Should keep an external file that fails to load", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.docs.Save(ctx, "empty.json", []byte("")))
		_, _, err := f.manager.IndexExisting(ctx, "empty.json")
		assert.ErrorIs(t, err, ErrEmptyDocument)
		_, err = f.docs.Read(ctx, "empty.json")
		assert.NoError(t, err)
	})
}

func TestVectorStoreManager_RefreshDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("Should replace the entries of a changed file", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.docs.Save(ctx, "grow.csv", []byte("a\n")))
		first, _, err := f.manager.IndexExisting(ctx, "grow.csv")
		require.NoError(t, err)

		require.NoError(t, f.docs.Save(ctx, "grow.csv", []byte("a\nb\nc\n")))
		ids, ok, err := f.manager.RefreshDocument(ctx, "grow.csv")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Len(t, ids, 3)
		assert.Equal(t, ids, f.mapping.data["grow.csv"])

		n, _ := f.index.Count(ctx)
		assert.Equal(t, 3, n)
		found, _ := f.index.Contains(ctx, first)
		assert.Empty(t, found)
	})

	t.Run("Should skip unchanged content", func(t *testing.T) {
		f := newFixture()
		ids, err := f.manager.AddDocument(ctx, "same.json", []byte("a\nb\n"))
		require.NoError(t, err)

		_, ok, err := f.manager.RefreshDocument(ctx, "same.json")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 1, f.index.adds)
		assert.Equal(t, ids, f.mapping.data["same.json"])
	})

	t.Run("Should keep the previous version when the new one fails", func(t *testing.T) {
		f := newFixture()
		ids, err := f.manager.AddDocument(ctx, "keep.csv", []byte("a\n"))
		require.NoError(t, err)

		require.NoError(t, f.docs.Save(ctx, "keep.csv", []byte("")))
		_, _, err = f.manager.RefreshDocument(ctx, "keep.csv")
		assert.ErrorIs(t, err, ErrEmptyDocument)

		found, _ := f.index.Contains(ctx, ids)
		assert.Equal(t, ids, found)
		assert.Equal(t, ids, f.mapping.data["keep.csv"])
	})
}

func TestVectorStoreManager_Reconcile(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.manager.AddDocument(ctx, "known.csv", []byte("k"))
	require.NoError(t, err)
	require.NoError(t, f.docs.Save(ctx, "new.json", []byte("n")))
	require.NoError(t, f.docs.Save(ctx, "empty.csv", []byte("")))
	require.NoError(t, f.docs.Save(ctx, "readme.txt", []byte("r")))

	indexed, err := f.manager.Reconcile(ctx)
	assert.ErrorIs(t, err, ErrEmptyDocument)
	assert.Equal(t, []string{"new.json"}, indexed)
}

func TestVectorStoreManager_SimilaritySearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.manager.AddDocument(ctx, "a.csv", []byte("one\ntwo\nthree\nfour\n"))
	require.NoError(t, err)

	results, err := f.manager.SimilaritySearch(ctx, "two", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	var _ Retriever = f.manager
	var _ ports.VectorIndex = f.index
}
