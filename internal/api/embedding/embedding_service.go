package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/sierge-ai/activity-engine/app/observability/metrics"
)

var _ Embedder = (*Service)(nil)

// Embedder turns text into a dense vector for semantic indexing.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service generates embeddings through the Gemini API.
type Service struct {
	client    *genai.Client
	model     string
	dimension int32
	logger    *slog.Logger
}

func NewService(ctx context.Context, model string, dimension int, logger *slog.Logger) (*Service, error) {
	ctx, span := otel.Tracer("Embedding").Start(ctx, "NewService")
	defer span.End()

	apiKey := os.Getenv("GOOGLE_GEMINI_API_KEY")
	if apiKey == "" {
		err := fmt.Errorf("GOOGLE_GEMINI_API_KEY environment variable is not set")
		span.RecordError(err)
		span.SetStatus(codes.Error, "API key not set")
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create Gemini client")
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	span.SetStatus(codes.Ok, "Embedding service created")
	return &Service{
		client:    client,
		model:     model,
		dimension: int32(dimension),
		logger:    logger,
	}, nil
}

// Embed returns the vector for a single piece of text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := otel.Tracer("Embedding").Start(ctx, "Embed", trace.WithAttributes(
		attribute.Int("text.length", len(text)),
		attribute.String("model", s.model),
	))
	defer span.End()

	start := time.Now()
	result, err := s.client.Models.EmbedContent(ctx, s.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr(s.dimension),
	})
	metrics.Get().EmbeddingDurationSeconds.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to embed content", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Embedding call failed")
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}

	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		err := fmt.Errorf("embedding response contained no values")
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("embedding.dimension", len(result.Embeddings[0].Values)))
	span.SetStatus(codes.Ok, "Content embedded")
	return result.Embeddings[0].Values, nil
}
