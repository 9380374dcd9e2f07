package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

// CorpusRepository reads the pre-embedded KTH research corpus. Vector and
// BM25 lookups go through the match_documents and search_documents_keyword
// procedures installed next to the documents table.
type CorpusRepository struct {
	db *sql.DB
}

func NewCorpusRepository(db *sql.DB) *CorpusRepository {
	return &CorpusRepository{db: db}
}

const documentColumns = `id, title, content, author, department, category, year, url, doi`

func (r *CorpusRepository) MatchDocuments(ctx context.Context, embedding []float32, vectorThreshold float64, count int) ([]domain.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`, similarity
FROM match_documents($1::vector, $2, $3)
`, vectorLiteral(embedding), vectorThreshold, count)
	if err != nil {
		return nil, classifyQueryError("match documents", err)
	}
	defer rows.Close()

	return scanCandidates(rows, "match documents")
}

func (r *CorpusRepository) SearchKeyword(ctx context.Context, text string, count int) ([]domain.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`, similarity
FROM search_documents_keyword($1, $2)
`, text, count)
	if err != nil {
		return nil, classifyQueryError("search keyword", err)
	}
	defer rows.Close()

	return scanCandidates(rows, "search keyword")
}

// ScanEmbeddings returns up to maxDocs documents with their stored vectors in
// text form, oldest id first. Rows without an embedding are skipped.
func (r *CorpusRepository) ScanEmbeddings(ctx context.Context, maxDocs int) ([]domain.StoredEmbedding, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`, embedding::text
FROM documents
WHERE embedding IS NOT NULL
ORDER BY id
LIMIT $1
`, maxDocs)
	if err != nil {
		return nil, classifyQueryError("scan embeddings", err)
	}
	defer rows.Close()

	out := make([]domain.StoredEmbedding, 0, maxDocs)
	for rows.Next() {
		var row domain.StoredEmbedding
		var embedding sql.NullString
		fields := documentFields{}
		if err := rows.Scan(append(fields.targets(&row.Document), &embedding)...); err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		fields.apply(&row.Document)
		row.Embedding = embedding.String
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyQueryError("scan embeddings", err)
	}
	return out, nil
}

func scanCandidates(rows *sql.Rows, op string) ([]domain.Candidate, error) {
	out := make([]domain.Candidate, 0)
	for rows.Next() {
		var candidate domain.Candidate
		var similarity sql.NullFloat64
		fields := documentFields{}
		if err := rows.Scan(append(fields.targets(&candidate.Document), &similarity)...); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		fields.apply(&candidate.Document)
		candidate.Similarity = similarity.Float64
		out = append(out, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyQueryError(op, err)
	}
	return out, nil
}

// documentFields holds the nullable metadata columns while a row is scanned.
type documentFields struct {
	title, content, author, department, category, url, doi sql.NullString
	year                                                   sql.NullInt64
}

func (f *documentFields) targets(doc *domain.Document) []any {
	return []any{&doc.ID, &f.title, &f.content, &f.author, &f.department, &f.category, &f.year, &f.url, &f.doi}
}

func (f *documentFields) apply(doc *domain.Document) {
	doc.Title = f.title.String
	doc.Content = f.content.String
	doc.Author = f.author.String
	doc.Department = f.department.String
	doc.Category = f.category.String
	doc.Year = int(f.year.Int64)
	doc.URL = f.url.String
	doc.DOI = f.doi.String
}

// vectorLiteral renders a pgvector input literal such as [0.1,0.2].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
