package tenantstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voice2note-be/internal/entity"
	"voice2note-be/internal/repository/unitofwork"
	"voice2note-be/internal/tenant"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// provisionedTenant returns a fresh tenant with one note.
func provisionedTenant(t *testing.T, poolSize int) (unitofwork.RepositoryFactory, *PoolManager, tenant.ID, string) {
	t.Helper()
	prov, store, pools := setupStore(t, poolSize, 5*time.Second)
	id := testTenant()
	require.NoError(t, prov.Provision(context.Background(), id))
	key := createNote(t, store, id, uuid.Must(uuid.NewV7()).String())
	return store, pools, id, key
}

func createNote(t *testing.T, store unitofwork.RepositoryFactory, id tenant.ID, key string) string {
	t.Helper()
	err := store.Run(context.Background(), id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		return uow.AudioNoteRepository().Create(ctx, &entity.AudioNote{
			AudioKey:  key,
			TenantId:  int64(id),
			RawUri:    id.String() + "/audios/raw/" + key + ".mp3",
			AudioType: entity.AudioTypeUploaded,
		})
	})
	require.NoError(t, err)
	return key
}

func chunksFor(key string, contents ...string) []*entity.NoteChunk {
	out := make([]*entity.NoteChunk, len(contents))
	for i, c := range contents {
		out[i] = &entity.NoteChunk{AudioKey: key, ContentChunk: c, Embedding: []float32{1, float32(i), 0}}
	}
	return out
}

func replaceChunks(ctx context.Context, uow unitofwork.UnitOfWork, key string, chunks []*entity.NoteChunk) error {
	if err := uow.NoteVectorRepository().DeleteByAudioKey(ctx, key); err != nil {
		return err
	}
	return uow.NoteVectorRepository().CreateBulk(ctx, chunks)
}

func countChunks(t *testing.T, store unitofwork.RepositoryFactory, id tenant.ID, key string) int64 {
	t.Helper()
	var n int64
	err := store.Run(context.Background(), id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		var err error
		n, err = uow.NoteVectorRepository().CountByAudioKey(ctx, key)
		return err
	})
	require.NoError(t, err)
	return n
}

func TestReplacingChunksTwiceLeavesOneSet(t *testing.T) {
	store, _, id, key := provisionedTenant(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
			return replaceChunks(ctx, uow, key, chunksFor(key, "first", "second"))
		})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(2), countChunks(t, store, id, key))
}

func TestConcurrentChunkReplacementIsSerializedByNoteLock(t *testing.T) {
	store, _, id, key := provisionedTenant(t, 2)
	ctx := context.Background()

	locked := make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
			ok, err := uow.AudioNoteRepository().LockByKey(ctx, key)
			if err != nil || !ok {
				close(locked)
				return err
			}
			if err := replaceChunks(ctx, uow, key, chunksFor(key, "a", "b", "c")); err != nil {
				close(locked)
				return err
			}
			close(locked)
			// hold the lock while the second writer queues behind it
			time.Sleep(300 * time.Millisecond)
			_, err = uow.AudioNoteRepository().AdvanceStatus(ctx, key, entity.StatusReady)
			return err
		})
	}()
	go func() {
		defer wg.Done()
		<-locked
		errs[1] = store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
			ok, err := uow.AudioNoteRepository().LockByKey(ctx, key)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("note not locked")
			}
			return replaceChunks(ctx, uow, key, chunksFor(key, "a", "b", "c"))
		})
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int64(3), countChunks(t, store, id, key))
}

func TestLockByKeyIgnoresDeletedNotes(t *testing.T) {
	store, _, id, key := provisionedTenant(t, 2)

	err := store.Run(context.Background(), id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		ok, err := uow.AudioNoteRepository().LockByKey(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)

		deleted, err := uow.AudioNoteRepository().SoftDelete(ctx, key)
		require.NoError(t, err)
		require.True(t, deleted)

		ok, err = uow.AudioNoteRepository().LockByKey(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestFindSearchableIsTenantScopedAndSkipsDeletedNotes(t *testing.T) {
	prov, store, _ := setupStore(t, 2, 5*time.Second)
	ctx := context.Background()

	a, b := testTenant(), testTenant()+1
	require.NoError(t, prov.Provision(ctx, a))
	require.NoError(t, prov.Provision(ctx, b))

	shared := uuid.Must(uuid.NewV7()).String()
	other := uuid.Must(uuid.NewV7()).String()
	createNote(t, store, a, shared)
	createNote(t, store, a, other)
	createNote(t, store, b, shared)

	write := func(id tenant.ID, key string, contents ...string) {
		err := store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
			return replaceChunks(ctx, uow, key, chunksFor(key, contents...))
		})
		require.NoError(t, err)
	}
	write(a, shared, "a1", "a2")
	write(a, other, "a3")
	write(b, shared, "b1")

	search := func(id tenant.ID) []*entity.NoteChunk {
		var out []*entity.NoteChunk
		err := store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
			var err error
			out, err = uow.NoteVectorRepository().FindSearchable(ctx)
			return err
		})
		require.NoError(t, err)
		return out
	}
	contents := func(chunks []*entity.NoteChunk) []string {
		var out []string
		for _, c := range chunks {
			out = append(out, c.ContentChunk)
		}
		return out
	}

	gotA := search(a)
	assert.Equal(t, []string{"a1", "a2", "a3"}, contents(gotA))
	for i := 1; i < len(gotA); i++ {
		assert.Less(t, gotA[i-1].VectorId, gotA[i].VectorId)
	}
	assert.Equal(t, []float32{1, 1, 0}, gotA[1].Embedding)
	assert.Equal(t, []string{"b1"}, contents(search(b)))

	err := store.Run(ctx, a, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		_, err := uow.AudioNoteRepository().SoftDelete(ctx, shared)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a3"}, contents(search(a)))
	assert.Equal(t, []string{"b1"}, contents(search(b)))
}

func TestAdvanceStatusMovesOnlyForwardAndClearsStageError(t *testing.T) {
	store, _, id, key := provisionedTenant(t, 2)
	ctx := context.Background()

	find := func() *entity.AudioNote {
		var n *entity.AudioNote
		err := store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
			var err error
			n, err = uow.AudioNoteRepository().FindByKey(ctx, key)
			return err
		})
		require.NoError(t, err)
		require.NotNil(t, n)
		return n
	}
	run := func(work unitofwork.Work) {
		require.NoError(t, store.Run(ctx, id, work))
	}

	tests := []struct {
		name    string
		advance entity.NoteStatus
		want    entity.NoteStatus
	}{
		{"forward", entity.StatusSummarized, entity.StatusSummarized},
		{"older event", entity.StatusTranscoded, entity.StatusSummarized},
		{"same status", entity.StatusSummarized, entity.StatusSummarized},
		{"to ready", entity.StatusReady, entity.StatusReady},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run(func(ctx context.Context, uow unitofwork.UnitOfWork) error {
				ok, err := uow.AudioNoteRepository().AdvanceStatus(ctx, key, tt.advance)
				require.True(t, ok)
				return err
			})
			assert.Equal(t, tt.want, find().Status)
		})
	}

	run(func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		return uow.AudioNoteRepository().MarkFailed(ctx, key, "transcription: timeout")
	})
	failed := find()
	assert.Equal(t, entity.StatusFailed, failed.EffectiveStatus())
	require.NotNil(t, failed.StageError)
	assert.Equal(t, "transcription: timeout", *failed.StageError)

	run(func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		_, err := uow.AudioNoteRepository().AdvanceStatus(ctx, key, entity.StatusReady)
		return err
	})
	recovered := find()
	assert.Nil(t, recovered.StageError)
	assert.Equal(t, entity.StatusReady, recovered.EffectiveStatus())

	run(func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		ok, err := uow.AudioNoteRepository().AdvanceStatus(ctx, uuid.NewString(), entity.StatusReady)
		assert.False(t, ok)
		return err
	})
}

func TestMergeMetadataKeepsExistingKeys(t *testing.T) {
	store, _, id, key := provisionedTenant(t, 2)
	ctx := context.Background()

	err := store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		notes := uow.AudioNoteRepository()
		if err := notes.MergeMetadata(ctx, key, map[string]interface{}{"format": "mp3", "size": 10}); err != nil {
			return err
		}
		return notes.MergeMetadata(ctx, key, map[string]interface{}{"size": 42, "duration": "00:00:05.00"})
	})
	require.NoError(t, err)

	err = store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		n, err := uow.AudioNoteRepository().FindByKey(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, n)
		assert.Equal(t, "mp3", n.MetadataString("format"))
		assert.Equal(t, "00:00:05.00", n.MetadataString("duration"))
		assert.EqualValues(t, 42, n.Metadata["size"])
		return nil
	})
	require.NoError(t, err)
}

func TestTranscriptUpsertAndMergeNeverOverwrite(t *testing.T) {
	store, _, id, key := provisionedTenant(t, 2)
	ctx := context.Background()
	rawUri := "archive://voice2note/" + id.String() + "/transcripts/raw/" + key + ".json"

	find := func() *entity.Transcript {
		var tr *entity.Transcript
		err := store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
			var err error
			tr, err = uow.TranscriptRepository().FindByKey(ctx, key)
			return err
		})
		require.NoError(t, err)
		require.NotNil(t, tr)
		return tr
	}

	err := store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		repo := uow.TranscriptRepository()
		if err := repo.Upsert(ctx, key, rawUri, map[string]interface{}{entity.TranscriptKeyText: "hello there"}); err != nil {
			return err
		}
		// redelivery converges
		if err := repo.Upsert(ctx, key, rawUri, map[string]interface{}{entity.TranscriptKeyText: "hello there"}); err != nil {
			return err
		}
		return repo.Upsert(ctx, key, "", map[string]interface{}{
			entity.TranscriptKeyTitle:   "Greeting",
			entity.TranscriptKeySummary: "You said hello.",
		})
	})
	require.NoError(t, err)

	tr := find()
	assert.Equal(t, rawUri, tr.RawUri, "an empty raw uri keeps the recorded one")
	assert.Equal(t, "hello there", tr.Text())
	assert.Equal(t, "Greeting", tr.Title())
	assert.Equal(t, "You said hello.", tr.Summary())

	err = store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		ok, err := uow.TranscriptRepository().Merge(ctx, key, map[string]interface{}{
			entity.TranscriptKeyTitle:    "Edited",
			entity.TranscriptKeyEditedAt: "2026-01-02T03:04:05Z",
		})
		require.True(t, ok)
		if err != nil {
			return err
		}
		ok, err = uow.TranscriptRepository().Merge(ctx, uuid.NewString(), map[string]interface{}{"x": "y"})
		assert.False(t, ok)
		return err
	})
	require.NoError(t, err)

	tr = find()
	assert.Equal(t, "Edited", tr.Title())
	assert.Equal(t, "hello there", tr.Text())
	assert.Equal(t, "You said hello.", tr.Summary())
	assert.Equal(t, "2026-01-02T03:04:05Z", tr.EditedAt())
}

func TestChatTitleIsSetOnlyWhileDefault(t *testing.T) {
	store, _, id, _ := provisionedTenant(t, 2)
	ctx := context.Background()
	chatId := uuid.NewString()

	err := store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		chats := uow.ChatRepository()
		require.NoError(t, chats.CreateIfAbsent(ctx, chatId))
		require.NoError(t, chats.CreateIfAbsent(ctx, chatId))

		chat, err := chats.FindByID(ctx, chatId)
		require.NoError(t, err)
		require.NotNil(t, chat)
		assert.True(t, chat.HasDefaultTitle())

		ok, err := chats.UpdateTitleIfDefault(ctx, chatId, "Holiday plans")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = chats.UpdateTitleIfDefault(ctx, chatId, "Something else")
		require.NoError(t, err)
		assert.False(t, ok)

		chat, err = chats.FindByID(ctx, chatId)
		require.NoError(t, err)
		assert.Equal(t, "Holiday plans", chat.Title)
		return nil
	})
	require.NoError(t, err)
}

func TestChatMessagesOrdering(t *testing.T) {
	store, _, id, _ := provisionedTenant(t, 2)
	ctx := context.Background()
	chatId := uuid.NewString()

	err := store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		require.NoError(t, uow.ChatRepository().CreateIfAbsent(ctx, chatId))
		msgs := uow.ChatMessageRepository()
		for _, content := range []string{"m1", "m2", "m3", "m4"} {
			require.NoError(t, msgs.Create(ctx, &entity.ChatMessage{ChatId: chatId, Role: entity.RoleUser, Content: content}))
		}
		require.NoError(t, msgs.Create(ctx, &entity.ChatMessage{
			ChatId: chatId, Role: entity.RoleAssistant, Content: "m5", SourceRefs: []string{"k1", "k2"},
		}))

		n, err := msgs.CountByChatID(ctx, chatId)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)

		first, err := msgs.FindFirst(ctx, chatId, 3)
		require.NoError(t, err)
		require.Len(t, first, 3)
		assert.Equal(t, []string{"m1", "m2", "m3"}, []string{first[0].Content, first[1].Content, first[2].Content})

		page, err := msgs.FindPage(ctx, chatId, 0, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "m5", page[0].Content)
		assert.Equal(t, []string{"k1", "k2"}, page[0].SourceRefs)
		assert.Nil(t, page[1].SourceRefs)
		return nil
	})
	require.NoError(t, err)
}

func TestPoolStatsReportOpenTenantPools(t *testing.T) {
	_, pools, id, _ := provisionedTenant(t, 3)

	stat, ok := pools.Stats()[id.String()]
	require.True(t, ok)
	assert.Equal(t, int32(3), stat.Max)
	assert.LessOrEqual(t, stat.Acquired, stat.Total)
	assert.LessOrEqual(t, stat.Total, stat.Max)
}
