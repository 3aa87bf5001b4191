package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"voice2note-be/internal/entity"
	"voice2note-be/internal/objectpath"
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/pkg/logger"
	"voice2note-be/internal/repository/contract"
	"voice2note-be/internal/repository/unitofwork"
	"voice2note-be/internal/tenant"
	"voice2note-be/pkg/archive"
	"voice2note-be/pkg/events"
	"voice2note-be/pkg/llm"
	"voice2note-be/pkg/media"
	"voice2note-be/pkg/stt"

	"github.com/stretchr/testify/require"
)

// fakeStore keeps every tenant in memory. Run works on a copy of the tenant and swaps it
// in on success, so a failed unit of work leaves nothing behind.
type fakeStore struct {
	mu      sync.Mutex
	tenants map[tenant.ID]*fakeTenant
}

func newFakeStore(ids ...tenant.ID) *fakeStore {
	s := &fakeStore{tenants: map[tenant.ID]*fakeTenant{}}
	for _, id := range ids {
		s.tenants[id] = newFakeTenant()
	}
	return s
}

func (s *fakeStore) Run(ctx context.Context, id tenant.ID, work unitofwork.Work) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[id]
	if !ok {
		return apperror.NotFound("tenant %s is not provisioned", id)
	}
	tx := t.clone()
	if err := work(ctx, &fakeUnitOfWork{id: id, t: tx}); err != nil {
		return err
	}
	s.tenants[id] = tx
	return nil
}

func (s *fakeStore) tenant(id tenant.ID) *fakeTenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenants[id]
}

type fakeTenant struct {
	notes       map[string]*entity.AudioNote
	transcripts map[string]*entity.Transcript
	vectors     []*entity.NoteChunk
	chats       map[string]*entity.Chat
	messages    []*entity.ChatMessage
	seq         int64
	// ops records lock and vector writes in call order.
	ops []string
}

func newFakeTenant() *fakeTenant {
	return &fakeTenant{
		notes:       map[string]*entity.AudioNote{},
		transcripts: map[string]*entity.Transcript{},
		chats:       map[string]*entity.Chat{},
	}
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (t *fakeTenant) clone() *fakeTenant {
	c := newFakeTenant()
	c.seq = t.seq
	c.ops = append([]string(nil), t.ops...)
	for k, n := range t.notes {
		cp := *n
		cp.Metadata = copyMap(n.Metadata)
		c.notes[k] = &cp
	}
	for k, tr := range t.transcripts {
		cp := *tr
		cp.Transcription = copyMap(tr.Transcription)
		c.transcripts[k] = &cp
	}
	for _, v := range t.vectors {
		cp := *v
		c.vectors = append(c.vectors, &cp)
	}
	for k, ch := range t.chats {
		cp := *ch
		c.chats[k] = &cp
	}
	for _, m := range t.messages {
		cp := *m
		c.messages = append(c.messages, &cp)
	}
	return c
}

func (t *fakeTenant) next() int64 {
	t.seq++
	return t.seq
}

func (t *fakeTenant) liveNote(key string) *entity.AudioNote {
	n, ok := t.notes[key]
	if !ok || n.DeletedAt != nil {
		return nil
	}
	return n
}

func (t *fakeTenant) liveTranscript(key string) *entity.Transcript {
	tr, ok := t.transcripts[key]
	if !ok || tr.DeletedAt != nil {
		return nil
	}
	return tr
}

type fakeUnitOfWork struct {
	id tenant.ID
	t  *fakeTenant
}

func (u *fakeUnitOfWork) Tenant() tenant.ID { return u.id }
func (u *fakeUnitOfWork) AudioNoteRepository() contract.AudioNoteRepository {
	return fakeNotes{u.t}
}
func (u *fakeUnitOfWork) TranscriptRepository() contract.TranscriptRepository {
	return fakeTranscripts{u.t}
}
func (u *fakeUnitOfWork) NoteVectorRepository() contract.NoteVectorRepository {
	return fakeVectors{u.t}
}
func (u *fakeUnitOfWork) ChatRepository() contract.ChatRepository {
	return fakeChats{u.t}
}
func (u *fakeUnitOfWork) ChatMessageRepository() contract.ChatMessageRepository {
	return fakeMessages{u.t}
}

type fakeNotes struct{ t *fakeTenant }

func (r fakeNotes) Create(_ context.Context, note *entity.AudioNote) error {
	if _, ok := r.t.notes[note.AudioKey]; ok {
		return fmt.Errorf("duplicate audio_key %s", note.AudioKey)
	}
	cp := *note
	cp.AudioId = r.t.next()
	cp.CreatedAt = time.Now().Add(time.Duration(cp.AudioId) * time.Millisecond)
	cp.Metadata = copyMap(note.Metadata)
	r.t.notes[note.AudioKey] = &cp
	return nil
}

func (r fakeNotes) FindByKey(_ context.Context, key string) (*entity.AudioNote, error) {
	n := r.t.liveNote(key)
	if n == nil {
		return nil, nil
	}
	cp := *n
	return &cp, nil
}

func (r fakeNotes) LockByKey(_ context.Context, key string) (bool, error) {
	r.t.ops = append(r.t.ops, "lock "+key)
	return r.t.liveNote(key) != nil, nil
}

func (r fakeNotes) FindAll(_ context.Context, offset, limit int) ([]*entity.AudioNote, error) {
	var out []*entity.AudioNote
	for _, n := range r.t.notes {
		if n.DeletedAt == nil {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AudioId > out[j].AudioId })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r fakeNotes) MergeMetadata(_ context.Context, key string, patch map[string]interface{}) error {
	n := r.t.liveNote(key)
	if n == nil {
		return nil
	}
	if n.Metadata == nil {
		n.Metadata = map[string]interface{}{}
	}
	for k, v := range patch {
		n.Metadata[k] = v
	}
	return nil
}

func (r fakeNotes) AdvanceStatus(_ context.Context, key string, status entity.NoteStatus) (bool, error) {
	n := r.t.liveNote(key)
	if n == nil {
		return false, nil
	}
	if n.Status.Rank() < status.Rank() {
		n.Status = status
	}
	n.StageError = nil
	return true, nil
}

func (r fakeNotes) MarkFailed(_ context.Context, key string, reason string) error {
	if n := r.t.liveNote(key); n != nil {
		n.StageError = &reason
	}
	return nil
}

func (r fakeNotes) SoftDelete(_ context.Context, key string) (bool, error) {
	n := r.t.liveNote(key)
	if n == nil {
		return false, nil
	}
	now := time.Now()
	n.DeletedAt = &now
	return true, nil
}

type fakeTranscripts struct{ t *fakeTenant }

func (r fakeTranscripts) Upsert(_ context.Context, key, rawUri string, patch map[string]interface{}) error {
	tr := r.t.liveTranscript(key)
	if tr == nil {
		tr = &entity.Transcript{TranscriptId: r.t.next(), AudioKey: key, Transcription: map[string]interface{}{}, CreatedAt: time.Now()}
		r.t.transcripts[key] = tr
	}
	if rawUri != "" {
		tr.RawUri = rawUri
	}
	for k, v := range patch {
		tr.Transcription[k] = v
	}
	return nil
}

func (r fakeTranscripts) Merge(_ context.Context, key string, patch map[string]interface{}) (bool, error) {
	tr := r.t.liveTranscript(key)
	if tr == nil {
		return false, nil
	}
	for k, v := range patch {
		tr.Transcription[k] = v
	}
	return true, nil
}

func (r fakeTranscripts) FindByKey(_ context.Context, key string) (*entity.Transcript, error) {
	tr := r.t.liveTranscript(key)
	if tr == nil {
		return nil, nil
	}
	cp := *tr
	cp.Transcription = copyMap(tr.Transcription)
	return &cp, nil
}

func (r fakeTranscripts) FindByKeys(ctx context.Context, keys []string) ([]*entity.Transcript, error) {
	var out []*entity.Transcript
	for _, k := range keys {
		if tr, _ := r.FindByKey(ctx, k); tr != nil {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (r fakeTranscripts) SoftDeleteByKey(_ context.Context, key string) error {
	if tr := r.t.liveTranscript(key); tr != nil {
		now := time.Now()
		tr.DeletedAt = &now
	}
	return nil
}

type fakeVectors struct{ t *fakeTenant }

func (r fakeVectors) DeleteByAudioKey(_ context.Context, key string) error {
	r.t.ops = append(r.t.ops, "delete vectors "+key)
	kept := r.t.vectors[:0]
	for _, v := range r.t.vectors {
		if v.AudioKey != key {
			kept = append(kept, v)
		}
	}
	r.t.vectors = kept
	return nil
}

func (r fakeVectors) CreateBulk(_ context.Context, chunks []*entity.NoteChunk) error {
	if len(chunks) > 0 {
		r.t.ops = append(r.t.ops, "insert vectors "+chunks[0].AudioKey)
	}
	for _, c := range chunks {
		cp := *c
		cp.VectorId = r.t.next()
		cp.CreatedAt = time.Now()
		r.t.vectors = append(r.t.vectors, &cp)
	}
	return nil
}

func (r fakeVectors) FindSearchable(context.Context) ([]*entity.NoteChunk, error) {
	var out []*entity.NoteChunk
	for _, v := range r.t.vectors {
		if v.DeletedAt == nil && r.t.liveNote(v.AudioKey) != nil {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VectorId < out[j].VectorId })
	return out, nil
}

func (r fakeVectors) CountByAudioKey(_ context.Context, key string) (int64, error) {
	var n int64
	for _, v := range r.t.vectors {
		if v.AudioKey == key && v.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

func (r fakeVectors) SoftDeleteByAudioKey(_ context.Context, key string) error {
	now := time.Now()
	for _, v := range r.t.vectors {
		if v.AudioKey == key && v.DeletedAt == nil {
			v.DeletedAt = &now
		}
	}
	return nil
}

type fakeChats struct{ t *fakeTenant }

func (r fakeChats) CreateIfAbsent(_ context.Context, chatId string) error {
	if _, ok := r.t.chats[chatId]; !ok {
		r.t.chats[chatId] = &entity.Chat{ChatId: chatId, Title: entity.DefaultChatTitle, CreatedAt: time.Now()}
	}
	return nil
}

func (r fakeChats) FindByID(_ context.Context, chatId string) (*entity.Chat, error) {
	c, ok := r.t.chats[chatId]
	if !ok || c.DeletedAt != nil {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r fakeChats) UpdateTitleIfDefault(_ context.Context, chatId, title string) (bool, error) {
	c, ok := r.t.chats[chatId]
	if !ok || c.DeletedAt != nil || c.Title != entity.DefaultChatTitle {
		return false, nil
	}
	c.Title = title
	return true, nil
}

func (r fakeChats) SoftDelete(_ context.Context, chatId string) (bool, error) {
	c, ok := r.t.chats[chatId]
	if !ok || c.DeletedAt != nil {
		return false, nil
	}
	now := time.Now()
	c.DeletedAt = &now
	return true, nil
}

type fakeMessages struct{ t *fakeTenant }

func (r fakeMessages) Create(_ context.Context, msg *entity.ChatMessage) error {
	msg.MessageId = r.t.next()
	msg.CreatedAt = time.Now()
	cp := *msg
	r.t.messages = append(r.t.messages, &cp)
	return nil
}

func (r fakeMessages) of(chatId string) []*entity.ChatMessage {
	var out []*entity.ChatMessage
	for _, m := range r.t.messages {
		if m.ChatId == chatId {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out
}

func (r fakeMessages) CountByChatID(_ context.Context, chatId string) (int64, error) {
	return int64(len(r.of(chatId))), nil
}

func (r fakeMessages) FindFirst(_ context.Context, chatId string, limit int) ([]*entity.ChatMessage, error) {
	out := r.of(chatId)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r fakeMessages) FindPage(_ context.Context, chatId string, offset, limit int) ([]*entity.ChatMessage, error) {
	out := r.of(chatId)
	sort.Slice(out, func(i, j int) bool { return out[i].MessageId > out[j].MessageId })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memArchive is an archive.Store over a map.
type memArchive struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
}

func newMemArchive() *memArchive {
	return &memArchive{bucket: "voice2note", objects: map[string][]byte{}}
}

func (a *memArchive) Bucket() string        { return a.bucket }
func (a *memArchive) URI(key string) string { return archive.URI(a.bucket, key) }

func (a *memArchive) Put(_ context.Context, key string, r io.Reader, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = b
	return nil
}

func (a *memArchive) Get(_ context.Context, key string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.objects[key]
	if !ok {
		return nil, archive.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (a *memArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.objects)
}

func (a *memArchive) Exists(_ context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.objects[key]
	return ok, nil
}

// queuePublisher records events so tests can drive the pipeline one hop at a time.
type queuePublisher struct {
	mu     sync.Mutex
	events []events.StageEvent
	err    error
}

func (p *queuePublisher) Publish(_ context.Context, ev events.StageEvent) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *queuePublisher) pop() (events.StageEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return events.StageEvent{}, false
	}
	ev := p.events[0]
	p.events = p.events[1:]
	return ev, true
}

func (p *queuePublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.ObjectKey
	}
	return out
}

// hashEmbedder buckets words into a fixed number of dimensions: identical texts score 1.
type hashEmbedder struct {
	dims  int
	calls int
	err   error
}

func (e *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	vec := make([]float32, e.dims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[int(h.Sum32())%e.dims]++
	}
	return vec, nil
}

// scriptedLLM answers through reply and records every history it was sent.
type scriptedLLM struct {
	mu      sync.Mutex
	reply   func(history []llm.Message) (string, error)
	history [][]llm.Message
	options []llm.Options
}

func (l *scriptedLLM) Chat(_ context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	l.mu.Lock()
	l.history = append(l.history, history)
	l.options = append(l.options, llm.Apply(llm.Options{}, options...))
	l.mu.Unlock()
	if l.reply == nil {
		return "ok", nil
	}
	return l.reply(history)
}

func (l *scriptedLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return l.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, options...)
}

func (l *scriptedLLM) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history)
}

type fakeMedia struct {
	probe    media.Metadata
	probeErr error
}

func (m *fakeMedia) ToWebM(_ context.Context, _ media.Format, in, out string) (string, error) {
	raw, err := os.ReadFile(in)
	if err != nil {
		return "", err
	}
	return "converted", os.WriteFile(out, append([]byte("webm:"), raw...), 0o600)
}

func (m *fakeMedia) Probe(context.Context, string) (media.Metadata, error) {
	return m.probe, m.probeErr
}

type fakeTranscriber struct {
	transcript string
	err        error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, req stt.Request, _ io.Reader) (*stt.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	doc, err := json.Marshal(map[string]interface{}{
		"job_id": "job-1",
		"results": map[string]interface{}{
			"language_code": "en-US",
			"transcripts":   []map[string]string{{"transcript": f.transcript}},
		},
	})
	if err != nil {
		return nil, err
	}
	return &stt.Result{JobID: "job-1", Document: doc, Transcript: f.transcript, LanguageCode: "en-US"}, nil
}

type recordedStatus struct {
	id       tenant.ID
	audioKey string
	status   entity.NoteStatus
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates []recordedStatus
}

func (n *recordingNotifier) NoteStatusChanged(_ context.Context, id tenant.ID, audioKey string, status entity.NoteStatus, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, recordedStatus{id, audioKey, status})
}

// harness wires every service against the fakes.
type harness struct {
	store      *fakeStore
	archive    *memArchive
	publisher  *queuePublisher
	embedder   *hashEmbedder
	llm        *scriptedLLM
	media      *fakeMedia
	stt        *fakeTranscriber
	notifier   *recordingNotifier
	retrieval  IRetrievalService
	dispatcher IDispatcherService
	audio      IAudioService
	notes      INoteService
	chat       IChatService
}

func newHarness(t *testing.T, ids ...tenant.ID) *harness {
	t.Helper()
	log := logger.NewNopLogger()
	h := &harness{
		store:     newFakeStore(ids...),
		archive:   newMemArchive(),
		publisher: &queuePublisher{},
		embedder:  &hashEmbedder{dims: 64},
		llm:       &scriptedLLM{},
		media:     &fakeMedia{probe: media.Metadata{Duration: "00:00:05.00", BitRate: "64 kb/s", Size: 42}},
		stt:       &fakeTranscriber{transcript: "plan the holiday trip to the beach in july"},
		notifier:  &recordingNotifier{},
	}
	h.retrieval = NewRetrievalService(h.store, h.embedder, 64, time.Second)

	deps := PipelineDeps{
		Store:     h.store,
		Archive:   h.archive,
		Publisher: h.publisher,
		Notifier:  h.notifier,
		Logger:    log,
	}
	h.dispatcher = NewDispatcherService(h.archive.Bucket(), StageSet{
		Transcoder:    NewTranscoderStage(deps, h.media, t.TempDir()),
		Transcription: NewTranscriptionStage(deps, h.stt),
		Summarization: NewSummarizationStage(deps, h.llm, time.Second),
		Vectorization: NewVectorizationStage(deps, h.retrieval, 0),
	}, log)
	h.audio = NewAudioService(h.store, h.archive, h.publisher, log)
	h.notes = NewNoteService(h.store, h.archive, h.publisher, nil, log)
	h.chat = NewChatService(h.store, h.retrieval, h.llm, ChatConfig{K: DefaultSearchK, Threshold: DefaultSearchThreshold}, log)
	return h
}

// drain delivers queued events until the queue is empty and returns the first error.
func (h *harness) drain(t *testing.T) error {
	t.Helper()
	var first error
	for i := 0; i < 50; i++ {
		ev, ok := h.publisher.pop()
		if !ok {
			return first
		}
		if err := h.dispatcher.Handle(context.Background(), ev); err != nil && first == nil {
			first = err
		}
	}
	t.Fatal("pipeline did not settle")
	return nil
}

// step delivers the next queued event.
func (h *harness) step(t *testing.T) error {
	t.Helper()
	ev, ok := h.publisher.pop()
	require.True(t, ok, "no event queued")
	return h.dispatcher.Handle(context.Background(), ev)
}

func (h *harness) upload(t *testing.T, id tenant.ID) string {
	t.Helper()
	res, err := h.audio.Upload(context.Background(), id, UploadAudioInput{
		File:        strings.NewReader("ID3 fake mp3"),
		Filename:    "memo.mp3",
		ContentType: "audio/mpeg",
		AudioType:   string(entity.AudioTypeRecorded),
	})
	require.NoError(t, err)
	return res.AudioKey
}

func (h *harness) note(t *testing.T, id tenant.ID, key string) *entity.AudioNote {
	t.Helper()
	n := h.store.tenant(id).notes[key]
	require.NotNil(t, n)
	return n
}

func mustKey(t *testing.T, key string) objectpath.Path {
	t.Helper()
	p, err := objectpath.Parse(key)
	require.NoError(t, err)
	return p
}

var errBoom = errors.New("boom")
