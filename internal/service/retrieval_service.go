package service

import (
	"context"
	"time"

	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/repository/unitofwork"
	"voice2note-be/internal/tenant"
	"voice2note-be/pkg/embedding"
	"voice2note-be/pkg/retrieval"
)

const (
	DefaultSearchK         = 3
	DefaultSearchThreshold = 0.7
)

type IRetrievalService interface {
	// Embed turns text into a vector of the configured dimension.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Search embeds query and ranks the tenant's searchable chunks against it.
	Search(ctx context.Context, id tenant.ID, query string, k int, threshold float64) ([]retrieval.Hit, error)
	// SearchIn ranks inside an open unit of work, for callers that already hold one.
	SearchIn(ctx context.Context, uow unitofwork.UnitOfWork, query []float32, k int, threshold float64) ([]retrieval.Hit, error)
}

type retrievalService struct {
	store      unitofwork.RepositoryFactory
	embedder   embedding.EmbeddingProvider
	dimensions int
	timeout    time.Duration
}

func NewRetrievalService(
	store unitofwork.RepositoryFactory,
	embedder embedding.EmbeddingProvider,
	dimensions int,
	callTimeout time.Duration,
) IRetrievalService {
	return &retrievalService{
		store:      store,
		embedder:   embedder,
		dimensions: dimensions,
		timeout:    callTimeout,
	}
}

func (s *retrievalService) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, apperror.Upstream(err, "embedding")
	}
	if s.dimensions > 0 && len(vec) != s.dimensions {
		return nil, apperror.Upstream(nil, "embedding has %d dimensions, want %d", len(vec), s.dimensions)
	}
	return vec, nil
}

func (s *retrievalService) Search(ctx context.Context, id tenant.ID, query string, k int, threshold float64) ([]retrieval.Hit, error) {
	vec, err := s.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var hits []retrieval.Hit
	err = s.store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		hits, err = s.SearchIn(ctx, uow, vec, k, threshold)
		return err
	})
	return hits, err
}

func (s *retrievalService) SearchIn(ctx context.Context, uow unitofwork.UnitOfWork, query []float32, k int, threshold float64) ([]retrieval.Hit, error) {
	chunks, err := uow.NoteVectorRepository().FindSearchable(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]retrieval.Candidate, len(chunks))
	for i, c := range chunks {
		candidates[i] = retrieval.Candidate{
			VectorID:  c.VectorId,
			AudioKey:  c.AudioKey,
			Content:   c.ContentChunk,
			Embedding: c.Embedding,
		}
	}
	return retrieval.Rank(query, candidates, k, threshold), nil
}
