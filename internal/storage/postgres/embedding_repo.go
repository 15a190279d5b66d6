package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuease/copilot/internal/chat"
)

const (
	retrieverFetchLimit = 200
	retrieverTopK       = 5
)

// EmbeddingRepository stores and retrieves patient-context snippets for
// the chat assistant. Retrieval is keyword-overlap ranking over the
// patient's indexed snippets; scoring happens in process so the same SQL
// works on both backends.
type EmbeddingRepository struct {
	db *gorm.DB
}

// NewEmbeddingRepository creates an EmbeddingRepository.
func NewEmbeddingRepository(db *gorm.DB) *EmbeddingRepository {
	return &EmbeddingRepository{db: db}
}

// Index stores one snippet of patient context.
func (r *EmbeddingRepository) Index(ctx context.Context, patientID, contentType, contentText string) error {
	model := PatientEmbeddingModel{
		ID:          uuid.New(),
		PatientID:   patientID,
		ContentType: contentType,
		ContentText: contentText,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("indexing patient snippet: %w", err)
	}
	return nil
}

// Search returns up to five snippets ranked by term overlap with the query.
func (r *EmbeddingRepository) Search(ctx context.Context, query, patientID string) ([]chat.Snippet, error) {
	var models []PatientEmbeddingModel
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Limit(retrieverFetchLimit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("loading patient snippets: %w", err)
	}

	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	snippets := make([]chat.Snippet, 0, len(models))
	for i := range models {
		score := overlapScore(models[i].ContentText, terms)
		if score == 0 {
			continue
		}
		snippets = append(snippets, chat.Snippet{
			ContentType: models[i].ContentType,
			Text:        models[i].ContentText,
			Score:       score,
		})
	}

	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].Score > snippets[j].Score
	})
	if len(snippets) > retrieverTopK {
		snippets = snippets[:retrieverTopK]
	}
	return snippets, nil
}

// queryTerms lowercases and drops short stop-words.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

// overlapScore is the fraction of query terms present in the text.
func overlapScore(text string, terms []string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// compile-time interface check
var _ chat.Retriever = (*EmbeddingRepository)(nil)
