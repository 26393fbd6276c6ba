package usecases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

// mockEmbedder returns [len(text), 1] for every text.
type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// mockIndex assigns sequential ids and rejects deletes of unknown ids.
type mockIndex struct {
	mu      sync.Mutex
	next    int
	entries map[string]entities.Chunk
	adds    int
	deletes int
	results []entities.QueryResult
	addErr  error
}

func newMockIndex() *mockIndex { return &mockIndex{entries: map[string]entities.Chunk{}} }

func (m *mockIndex) Add(_ context.Context, chunks []entities.Chunk) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return nil, m.addErr
	}
	m.adds++
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		m.next++
		c.ID = fmt.Sprintf("id-%d", m.next)
		m.entries[c.ID] = c
		ids[i] = c.ID
	}
	return ids, nil
}

func (m *mockIndex) Search(_ context.Context, _ []float32, topK int) ([]entities.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results != nil {
		return m.results, nil
	}
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []entities.QueryResult
	for _, id := range ids {
		if len(out) == topK {
			break
		}
		out = append(out, entities.QueryResult{Chunk: m.entries[id], SourceDoc: m.entries[id].DocumentID})
	}
	return out, nil
}

func (m *mockIndex) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if _, ok := m.entries[id]; !ok {
			return errors.New("unknown id " + id)
		}
	}
	for _, id := range ids {
		delete(m.entries, id)
	}
	m.deletes++
	return nil
}

func (m *mockIndex) Contains(_ context.Context, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []string
	for _, id := range ids {
		if _, ok := m.entries[id]; ok {
			found = append(found, id)
		}
	}
	return found, nil
}

func (m *mockIndex) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

func (m *mockIndex) Close() error { return nil }

type mockOpener struct {
	index   *mockIndex
	created bool
	opens   int
	err     error
}

func (o *mockOpener) Open(context.Context) (ports.VectorIndex, bool, error) {
	o.opens++
	if o.err != nil {
		return nil, false, o.err
	}
	return o.index, o.created, nil
}

type mockDocs struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMockDocs() *mockDocs { return &mockDocs{files: map[string][]byte{}} }

func (d *mockDocs) Save(_ context.Context, name string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[name] = append([]byte(nil), data...)
	return nil
}

func (d *mockDocs) Read(_ context.Context, name string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (d *mockDocs) Remove(_ context.Context, name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.files[name]
	delete(d.files, name)
	return ok, nil
}

func (d *mockDocs) List(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.files))
	for n := range d.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// mockMapping also writes its file into docs so listing sees it.
type mockMapping struct {
	docs    *mockDocs
	data    map[string][]string
	saves   int
	saveErr error
}

func (m *mockMapping) Load(context.Context) (map[string][]string, error) {
	out := make(map[string][]string, len(m.data))
	for k, v := range m.data {
		out[k] = append([]string(nil), v...)
	}
	return out, nil
}

func (m *mockMapping) Save(ctx context.Context, mapping map[string][]string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data = mapping
	m.saves++
	return m.docs.Save(ctx, m.Name(), []byte("{}"))
}

func (m *mockMapping) Name() string { return "ids.json" }

// lineLoader yields one record per non-empty line.
type lineLoader struct {
	err error
}

func (l lineLoader) Load(_ context.Context, _ string, data []byte) ([]entities.Record, error) {
	if l.err != nil {
		return nil, l.err
	}
	var recs []entities.Record
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			recs = append(recs, entities.Record{Content: line})
		}
	}
	return recs, nil
}

func (lineLoader) SupportedExtensions() []string { return []string{".csv", ".json"} }

type recordSplitter struct{}

func (recordSplitter) Split(_ context.Context, doc string, recs []entities.Record) ([]entities.Chunk, error) {
	chunks := make([]entities.Chunk, len(recs))
	for i, r := range recs {
		chunks[i] = entities.Chunk{DocumentID: doc, Content: r.Content, Index: i}
	}
	return chunks, nil
}

type countingLocker struct {
	locks   int
	unlocks int
	err     error
}

func (l *countingLocker) Lock(context.Context) (func() error, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.locks++
	return func() error { l.unlocks++; return nil }, nil
}

type fixture struct {
	docs    *mockDocs
	mapping *mockMapping
	index   *mockIndex
	opener  *mockOpener
	manager *VectorStoreManager
}

func newFixture(opts ...ManagerOption) *fixture {
	docs := newMockDocs()
	f := &fixture{
		docs:    docs,
		mapping: &mockMapping{docs: docs, data: map[string][]string{}},
		index:   newMockIndex(),
	}
	f.opener = &mockOpener{index: f.index}
	f.manager = NewVectorStoreManager(docs, f.mapping, lineLoader{}, recordSplitter{}, &mockEmbedder{}, f.opener, opts...)
	return f
}

// wordCounter counts whitespace-separated words.
type wordCounter struct{}

func (wordCounter) CountTokens(_ context.Context, text string) (int, error) {
	return len(strings.Fields(text)), nil
}

// mapCounter returns fixed counts per text and sums joined texts.
type mapCounter map[string]int

func (m mapCounter) CountTokens(_ context.Context, text string) (int, error) {
	if n, ok := m[text]; ok {
		return n, nil
	}
	total := 0
	for _, part := range strings.Split(text, contextSeparator) {
		total += m[part]
	}
	return total, nil
}

type mockRetriever struct {
	results []entities.QueryResult
	err     error
	gotK    int
}

func (r *mockRetriever) SimilaritySearch(_ context.Context, _ string, k int) ([]entities.QueryResult, error) {
	r.gotK = k
	return r.results, r.err
}

func resultsOf(texts ...string) []entities.QueryResult {
	out := make([]entities.QueryResult, len(texts))
	for i, t := range texts {
		out[i] = entities.QueryResult{Chunk: entities.Chunk{Content: t}}
	}
	return out
}

// mockChatModel records the messages it receives.
type mockChatModel struct {
	answer    string
	fragments []string
	err       error
	got       []entities.ChatMessage
}

func (m *mockChatModel) Generate(_ context.Context, msgs []entities.ChatMessage) (string, error) {
	m.got = msgs
	return m.answer, m.err
}

func (m *mockChatModel) GenerateStream(_ context.Context, msgs []entities.ChatMessage) (<-chan ports.StreamToken, error) {
	m.got = msgs
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan ports.StreamToken, len(m.fragments)+1)
	for _, f := range m.fragments {
		ch <- ports.StreamToken{Content: f}
	}
	ch <- ports.StreamToken{Done: true}
	close(ch)
	return ch, nil
}
