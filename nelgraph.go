// Package nelgraph tags named entities in text, links them to a knowledge
// base and analyses the resulting entity graph.
package nelgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/nelgraph/export"
	"github.com/brunobiangulo/nelgraph/graph"
	"github.com/brunobiangulo/nelgraph/kb"
	"github.com/brunobiangulo/nelgraph/linker"
	"github.com/brunobiangulo/nelgraph/llm"
	"github.com/brunobiangulo/nelgraph/ner"
	"github.com/brunobiangulo/nelgraph/parser"
	"github.com/brunobiangulo/nelgraph/sparql"
	"github.com/brunobiangulo/nelgraph/store"
)

// Engine is the main entry point of the NER/NEL pipeline.
type Engine interface {
	// Process tags, links and stores a text. A text already stored is
	// processed again and its mentions replaced; Result.Duplicate is set.
	Process(ctx context.Context, text string, opts ...ProcessOption) (*Result, error)

	// ProcessFile extracts the text of a txt, md, pdf or xlsx file and
	// processes it.
	ProcessFile(ctx context.Context, path string, opts ...ProcessOption) (*Result, error)

	// Resolve links a single name. It returns ErrEntityNotFound when no
	// resolver finds it.
	Resolve(ctx context.Context, name string) (*linker.Link, error)

	// Suggest returns up to n index keys matching name as a subsequence.
	Suggest(name string, n int) []string

	// KB returns the current knowledge base.
	KB() *kb.KB

	// ImportKB replaces the knowledge base with the contents of a JSON,
	// YAML or XLSX file and returns the entity count.
	ImportKB(ctx context.Context, path string) (int, error)

	// Graph builds the knowledge graph from the KB and stored relations.
	Graph(ctx context.Context) (*graph.KnowledgeGraph, error)

	// Analyze computes graph and text metrics over everything processed.
	Analyze(ctx context.Context, opts graph.Options) (*graph.Report, error)

	// Communities detects and stores entity communities.
	Communities(ctx context.Context) ([]graph.Community, error)

	// WriteDOT writes the knowledge graph in Graphviz DOT.
	WriteDOT(ctx context.Context, w io.Writer) error

	// Push exports the knowledge graph to Neo4j.
	Push(ctx context.Context) (export.PushStats, error)

	// Documents lists processed texts.
	Documents(ctx context.Context) ([]store.Document, error)

	// Similar returns the n entities whose vectors are closest to id's.
	Similar(ctx context.Context, id string, n int) ([]store.Neighbor, error)

	// Neighbours returns the entities within depth hops of id in the
	// knowledge graph, id excluded, sorted.
	Neighbours(ctx context.Context, id string, depth int) ([]string, error)

	// Store returns the underlying store for diagnostic access.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// Result is the outcome of processing one text.
type Result struct {
	DocumentID int64            `json:"document_id"`
	RunID      string           `json:"run_id"`
	Source     string           `json:"source,omitempty"`
	Text       string           `json:"text"`
	Tagger     string           `json:"tagger"`
	Mentions   []ner.Mention    `json:"mentions"`
	Links      []linker.Link    `json:"links"`
	Unlinked   []ner.Mention    `json:"unlinked"`
	Relations  []graph.Relation `json:"relations"`
	Duplicate  bool             `json:"duplicate"`
	Elapsed    time.Duration    `json:"elapsed"`
}

// ProcessOption configures a Process call.
type ProcessOption func(*processOptions)

type processOptions struct {
	source string
	runID  string
}

// WithSource records where the text came from (a file name, a URL).
func WithSource(source string) ProcessOption {
	return func(o *processOptions) { o.source = source }
}

// WithRunID groups texts processed together. A random id is used otherwise.
func WithRunID(id string) ProcessOption {
	return func(o *processOptions) { o.runID = id }
}

type engine struct {
	cfg      Config
	store    *store.Store
	registry *parser.Registry
	chatLLM  llm.Provider
	embedLLM llm.Provider
	sparql   *sparql.Client
	redis    *sparql.RedisCache

	mu     sync.RWMutex
	pipe   pipeline
	sink   *export.Neo4jSink
	closed bool

	// vectors holds the entity vectors stored for vectorsKB.
	embedMu   sync.Mutex
	vectors   map[string][]float32
	vectorsKB *kb.KB
}

// pipeline is everything derived from one knowledge base.
type pipeline struct {
	kb     *kb.KB
	tagger ner.Tagger
	index  *linker.IndexResolver
	remote *linker.WikidataResolver
}

// resolver chains the index with the Wikidata fallback when enabled.
func (p pipeline) resolver() linker.Resolver {
	if p.remote == nil {
		return p.index
	}
	return linker.ChainResolver{p.index, p.remote}
}

// New creates a new nelgraph engine with the given configuration.
func New(cfg Config) (Engine, error) {
	return NewWithContext(context.Background(), cfg)
}

// NewWithContext is New with a context bounding the startup connections
// (Redis ping, knowledge-base load).
func NewWithContext(ctx context.Context, cfg Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dbPath := cfg.resolveDBPath()

	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = graph.DefaultSimulatedDim
	}
	if cfg.FuzzyCutoff == 0 {
		cfg.FuzzyCutoff = linker.DefaultCutoff
	}

	s, err := store.New(dbPath, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	e := &engine{cfg: cfg, store: s, registry: parser.NewRegistry()}

	if cfg.Chat.Provider != "" {
		e.chatLLM, err = llm.NewProvider(llm.Config{
			Provider: cfg.Chat.Provider,
			Model:    cfg.Chat.Model,
			BaseURL:  cfg.Chat.BaseURL,
			APIKey:   cfg.Chat.APIKey,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("creating chat provider: %w", err)
		}
	}

	if cfg.Embedding.Provider != "" {
		e.embedLLM, err = llm.NewProvider(llm.Config{
			Provider: cfg.Embedding.Provider,
			Model:    cfg.Embedding.Model,
			BaseURL:  cfg.Embedding.BaseURL,
			APIKey:   cfg.Embedding.APIKey,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("creating embedding provider: %w", err)
		}
	}

	if cfg.Wikidata.Enabled {
		cache, err := e.sparqlCache(ctx)
		if err != nil {
			s.Close()
			return nil, err
		}
		e.sparql = sparql.New(sparql.Config{
			Endpoint:  cfg.Wikidata.Endpoint,
			UserAgent: cfg.Wikidata.UserAgent,
			Timeout:   cfg.Wikidata.Timeout,
			CacheTTL:  cfg.Wikidata.CacheTTL,
		}, cache)
	}

	k, err := e.loadKB(ctx)
	if err != nil {
		e.closeConnections()
		return nil, err
	}
	if err := e.setKB(k); err != nil {
		e.closeConnections()
		return nil, err
	}

	slog.Info("engine: ready",
		"db", dbPath, "entities", k.Len(), "tagger", e.pipe.tagger.Name(),
		"wikidata", cfg.Wikidata.Enabled)
	return e, nil
}

// sparqlCache picks the response cache backing the Wikidata client.
func (e *engine) sparqlCache(ctx context.Context) (sparql.Cache, error) {
	switch e.cfg.Wikidata.Cache {
	case CacheNone:
		return nil, nil
	case CacheMemory:
		return sparql.NewMemoryCache(), nil
	case CacheRedis:
		rc, err := sparql.NewRedisCache(ctx, sparql.RedisConfig{
			Addr:     e.cfg.Redis.Addr,
			Password: e.cfg.Redis.Password,
			DB:       e.cfg.Redis.DB,
			Prefix:   e.cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting redis cache: %w", err)
		}
		e.redis = rc
		return rc, nil
	default:
		return e.store.SPARQLCache(), nil
	}
}

// loadKB reads the configured file, else the stored table, else the builtin
// table. File and builtin tables are written back to the store.
func (e *engine) loadKB(ctx context.Context) (*kb.KB, error) {
	if e.cfg.KBPath != "" {
		k, err := kb.LoadFile(e.cfg.KBPath)
		if err != nil {
			return nil, fmt.Errorf("loading knowledge base: %w", err)
		}
		if err := e.store.SaveKB(ctx, k); err != nil {
			return nil, fmt.Errorf("saving knowledge base: %w", err)
		}
		return k, nil
	}

	k, err := e.store.LoadKB(ctx)
	if err == nil {
		return k, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}

	k = kb.Builtin()
	if err := e.store.SaveKB(ctx, k); err != nil {
		return nil, fmt.Errorf("saving knowledge base: %w", err)
	}
	slog.Info("engine: seeded builtin knowledge base", "entities", k.Len())
	return k, nil
}

// setKB swaps in k and rebuilds everything derived from it.
func (e *engine) setKB(k *kb.KB) error {
	for _, problem := range k.Validate() {
		slog.Warn("engine: knowledge base problem", "detail", problem)
	}

	tagger, err := ner.New(e.cfg.Tagger, ner.Options{
		KB:     k,
		Fuzzy:  e.cfg.FuzzyTagging,
		Cutoff: e.cfg.FuzzyCutoff,
		Chat:   e.chatLLM,
		Model:  e.cfg.Chat.Model,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTaggerUnavailable, err)
	}

	p := pipeline{
		kb:     k,
		tagger: tagger,
		index:  linker.NewIndexResolver(k, e.cfg.FuzzyCutoff),
	}
	if e.sparql != nil {
		p.remote = linker.NewWikidataResolver(e.sparql, e.cfg.Wikidata.Language)
	}

	e.mu.Lock()
	e.pipe = p
	e.mu.Unlock()
	return nil
}

// snapshot returns the current pipeline under the read lock.
func (e *engine) snapshot() (pipeline, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return pipeline{}, ErrStoreClosed
	}
	return e.pipe, nil
}

// Process implements Engine.
func (e *engine) Process(ctx context.Context, text string, opts ...ProcessOption) (*Result, error) {
	start := time.Now()
	o := processOptions{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	p, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	k, tagger := p.kb, p.tagger

	mentions, err := tagger.Tag(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("tagging: %w", err)
	}
	slog.Debug("process: tagged", "source", o.source, "tagger", tagger.Name(), "mentions", len(mentions))

	outcomes, err := linker.LinkAll(ctx, p.index, mentions, e.cfg.LinkConcurrency)
	if err != nil {
		return nil, fmt.Errorf("linking: %w", err)
	}
	if p.remote != nil {
		outcomes = p.remote.LinkUnresolved(ctx, outcomes, e.cfg.LinkConcurrency)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	links, unlinked := linker.Split(outcomes)

	// Only knowledge-base links take part in relations and the graph.
	relations := graph.Extract(ner.Sentences(text), linker.Local(links), graph.DefaultRules)

	docID, created, err := e.store.SaveProcessed(ctx, store.Document{
		RunID:   o.runID,
		Source:  o.source,
		Content: text,
		Tagger:  tagger.Name(),
	}, storeMentions(k, outcomes), storeRelationships(relations))
	if err != nil {
		return nil, fmt.Errorf("storing document: %w", err)
	}

	res := &Result{
		DocumentID: docID,
		RunID:      o.runID,
		Source:     o.source,
		Text:       text,
		Tagger:     tagger.Name(),
		Mentions:   mentions,
		Links:      links,
		Unlinked:   unlinked,
		Relations:  relations,
		Duplicate:  !created,
		Elapsed:    time.Since(start),
	}
	slog.Info("process: document ready",
		"doc_id", docID, "source", o.source, "mentions", len(mentions),
		"linked", len(links), "relations", len(relations), "duplicate", !created,
		"elapsed", res.Elapsed.Round(time.Millisecond))
	return res, nil
}

// ProcessFile implements Engine.
func (e *engine) ProcessFile(ctx context.Context, path string, opts ...ProcessOption) (*Result, error) {
	text, err := parser.ExtractText(ctx, e.registry, path)
	if errors.Is(err, parser.ErrNoParser) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, parser.FormatOf(path))
	}
	if err != nil {
		return nil, err
	}
	opts = append([]ProcessOption{WithSource(path)}, opts...)
	return e.Process(ctx, text, opts...)
}

// Resolve implements Engine.
func (e *engine) Resolve(ctx context.Context, name string) (*linker.Link, error) {
	p, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	l, err := p.resolver().Resolve(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, fmt.Errorf("%w: %q", ErrEntityNotFound, name)
	}
	return l, nil
}

// Suggest implements Engine.
func (e *engine) Suggest(name string, n int) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pipe.index.Suggest(name, n)
}

// KB implements Engine.
func (e *engine) KB() *kb.KB {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pipe.kb
}

// ImportKB implements Engine.
func (e *engine) ImportKB(ctx context.Context, path string) (int, error) {
	if _, err := e.snapshot(); err != nil {
		return 0, err
	}
	k, err := kb.LoadFile(path)
	if err != nil {
		return 0, fmt.Errorf("loading knowledge base: %w", err)
	}
	if err := e.store.SaveKB(ctx, k); err != nil {
		return 0, fmt.Errorf("saving knowledge base: %w", err)
	}
	if err := e.setKB(k); err != nil {
		return 0, err
	}
	slog.Info("engine: imported knowledge base", "file", path, "entities", k.Len())
	return k.Len(), nil
}

// Graph implements Engine.
func (e *engine) Graph(ctx context.Context) (*graph.KnowledgeGraph, error) {
	p, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	rels, err := e.store.AllRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading relationships: %w", err)
	}
	kg := graph.FromKB(p.kb)
	for _, r := range rels {
		kg.AddRelation(graph.Relation{
			Source:   r.SourceKBID,
			Target:   r.TargetKBID,
			Type:     r.RelationType,
			Weight:   r.Weight,
			Sentence: r.Sentence,
		})
	}
	return kg, nil
}

// Analyze implements Engine. The configured embedding provider is used
// unless opts already carries one.
func (e *engine) Analyze(ctx context.Context, opts graph.Options) (*graph.Report, error) {
	kg, err := e.Graph(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := e.store.DocumentEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading document entities: %w", err)
	}
	if opts.Embedder == nil {
		opts.Embedder = e.embedLLM
	}
	if opts.SimulatedDim == 0 {
		opts.SimulatedDim = e.cfg.EmbeddingDim
	}
	return graph.Analyze(ctx, kg, e.KB(), docs, opts)
}

// Communities implements Engine.
func (e *engine) Communities(ctx context.Context) ([]graph.Community, error) {
	kg, err := e.Graph(ctx)
	if err != nil {
		return nil, err
	}
	comms := graph.DetectCommunities(kg)
	rows := make([]store.Community, len(comms))
	for i, c := range comms {
		rows[i] = store.Community{Level: c.Level, EntityIDs: c.EntityIDs}
	}
	if err := e.store.ReplaceCommunities(ctx, rows); err != nil {
		return nil, fmt.Errorf("storing communities: %w", err)
	}
	return comms, nil
}

// WriteDOT implements Engine.
func (e *engine) WriteDOT(ctx context.Context, w io.Writer) error {
	kg, err := e.Graph(ctx)
	if err != nil {
		return err
	}
	return graph.WriteDOT(w, kg)
}

// Push implements Engine.
func (e *engine) Push(ctx context.Context) (export.PushStats, error) {
	kg, err := e.Graph(ctx)
	if err != nil {
		return export.PushStats{}, err
	}
	sink, err := e.neo4jSink(ctx)
	if err != nil {
		return export.PushStats{}, err
	}
	return sink.Push(ctx, e.KB(), kg)
}

// neo4jSink connects on first use.
func (e *engine) neo4jSink(ctx context.Context) (*export.Neo4jSink, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sink != nil {
		return e.sink, nil
	}
	sink, err := export.NewNeo4jSink(ctx, export.Config{
		URI:      e.cfg.Neo4j.URI,
		User:     e.cfg.Neo4j.User,
		Password: e.cfg.Neo4j.Password,
		Database: e.cfg.Neo4j.Database,
	})
	if err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, ErrExportDisabled
	}
	e.sink = sink
	return sink, nil
}

// Documents implements Engine.
func (e *engine) Documents(ctx context.Context) ([]store.Document, error) {
	if _, err := e.snapshot(); err != nil {
		return nil, err
	}
	return e.store.ListDocuments(ctx)
}

// Similar implements Engine.
func (e *engine) Similar(ctx context.Context, id string, n int) ([]store.Neighbor, error) {
	p, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	if !p.kb.Has(id) {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	vecs, err := e.indexEmbeddings(ctx, p.kb)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = graph.DefaultTopK
	}
	// The entity itself is always its own nearest neighbour.
	found, err := e.store.NearestEntities(ctx, vecs[id], n+1)
	if err != nil {
		return nil, err
	}
	out := make([]store.Neighbor, 0, n)
	for _, nb := range found {
		if nb.KBID != id && len(out) < n {
			out = append(out, nb)
		}
	}
	return out, nil
}

// Neighbours implements Engine.
func (e *engine) Neighbours(ctx context.Context, id string, depth int) ([]string, error) {
	kg, err := e.Graph(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := kg.Node(id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	if depth <= 0 {
		depth = 1
	}
	var out []string
	for _, n := range graph.Neighbourhood(kg, []string{id}, depth) {
		if n != id {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

// indexEmbeddings returns a vector per entity of k. Vectors are computed and
// stored once per knowledge base; an import made meanwhile discards them.
func (e *engine) indexEmbeddings(ctx context.Context, k *kb.KB) (map[string][]float32, error) {
	if vecs := e.cachedVectors(k); vecs != nil {
		return vecs, nil
	}
	e.embedMu.Lock()
	defer e.embedMu.Unlock()
	if vecs := e.cachedVectors(k); vecs != nil {
		return vecs, nil
	}

	vecs, err := e.entityVectors(ctx, k)
	if err != nil {
		return nil, err
	}
	for _, id := range k.IDs() {
		if err := e.store.UpsertEmbedding(ctx, id, vecs[id]); err != nil {
			return nil, fmt.Errorf("storing embedding %s: %w", id, err)
		}
	}

	e.mu.Lock()
	current := e.pipe.kb == k
	if current {
		e.vectors, e.vectorsKB = vecs, k
	}
	e.mu.Unlock()
	if !current {
		slog.Warn("engine: knowledge base replaced while indexing vectors", "entities", k.Len())
	}
	slog.Info("engine: indexed entity vectors", "entities", k.Len(), "real", e.embedLLM != nil)
	return vecs, nil
}

func (e *engine) cachedVectors(k *kb.KB) map[string][]float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.vectorsKB == k {
		return e.vectors
	}
	return nil
}

// entityVectors embeds "name. description" per entity with the configured
// provider, else derives simulated vectors from the ids.
func (e *engine) entityVectors(ctx context.Context, k *kb.KB) (map[string][]float32, error) {
	ids := k.IDs()
	vecs := make(map[string][]float32, len(ids))
	if e.embedLLM == nil {
		for _, id := range ids {
			v := graph.SimulatedVector(id, e.cfg.EmbeddingDim)
			f := make([]float32, len(v))
			for i, x := range v {
				f[i] = float32(x)
			}
			vecs[id] = f
		}
		return vecs, nil
	}

	texts := make([]string, len(ids))
	for i, ent := range k.Entities() {
		texts[i] = ent.Name + ". " + ent.Description
	}
	out, err := e.embedLLM.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding entities: %w", err)
	}
	if len(out) != len(ids) {
		return nil, fmt.Errorf("embedding entities: got %d vectors for %d entities", len(out), len(ids))
	}
	for i, id := range ids {
		vecs[id] = out[i]
	}
	return vecs, nil
}

// Store implements Engine.
func (e *engine) Store() *store.Store {
	return e.store
}

// Close shuts down the engine.
func (e *engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	return e.closeConnections()
}

func (e *engine) closeConnections() error {
	var errs []error
	if e.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, e.sink.Close(ctx))
		cancel()
	}
	if e.redis != nil {
		errs = append(errs, e.redis.Close())
	}
	errs = append(errs, e.store.Close())
	return errors.Join(errs...)
}

// storeMentions converts outcomes into mention rows. Only knowledge-base ids
// are recorded as links.
func storeMentions(k *kb.KB, outcomes []linker.Outcome) []store.Mention {
	rows := make([]store.Mention, len(outcomes))
	for i, o := range outcomes {
		row := store.Mention{
			Text:  o.Mention.Text,
			Label: o.Mention.Label,
			Start: o.Mention.Start,
			End:   o.Mention.End,
		}
		if o.Link != nil {
			row.Score = o.Link.Score
			row.Method = o.Link.Method
			if linker.IsLocal(*o.Link) && k.Has(o.Link.EntityID) {
				row.KBID = o.Link.EntityID
			}
		}
		rows[i] = row
	}
	return rows
}

func storeRelationships(rs []graph.Relation) []store.Relationship {
	rows := make([]store.Relationship, len(rs))
	for i, r := range rs {
		rows[i] = store.Relationship{
			SourceKBID:   r.Source,
			TargetKBID:   r.Target,
			RelationType: r.Type,
			Weight:       r.Weight,
			Sentence:     r.Sentence,
		}
	}
	return rows
}
