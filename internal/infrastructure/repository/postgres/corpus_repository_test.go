package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

var candidateColumns = []string{"id", "title", "content", "author", "department", "category", "year", "url", "doi", "similarity"}

func newCorpusWithMock(t *testing.T) (*CorpusRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewCorpusRepository(db), mock, func() { _ = db.Close() }
}

func TestMatchDocumentsPassesVectorLiteralAndScansNullableColumns(t *testing.T) {
	repo, mock, done := newCorpusWithMock(t)
	defer done()

	rows := sqlmock.NewRows(candidateColumns).
		AddRow("d1", "BECCS at KTH", "Bioenergy with carbon capture", "A. Author", "Energy", "publication", 2024, "https://kth.se/d1", nil, 0.71).
		AddRow("d2", nil, "untitled", nil, nil, nil, nil, nil, nil, 0.4)
	mock.ExpectQuery(regexp.QuoteMeta("FROM match_documents($1::vector, $2, $3)")).
		WithArgs("[0.5,-0.25,1]", 0.15, 100).
		WillReturnRows(rows)

	got, err := repo.MatchDocuments(context.Background(), []float32{0.5, -0.25, 1}, 0.15, 100)
	if err != nil {
		t.Fatalf("MatchDocuments() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Title != "BECCS at KTH" || got[0].Year != 2024 || got[0].Similarity != 0.71 {
		t.Fatalf("unexpected first candidate %+v", got[0])
	}
	if got[1].Title != "" || got[1].Year != 0 {
		t.Fatalf("expected zero values for NULL columns, got %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMatchDocumentsMissingProcedure(t *testing.T) {
	repo, mock, done := newCorpusWithMock(t)
	defer done()

	mock.ExpectQuery("match_documents").
		WillReturnError(&pgconn.PgError{Code: "42883", Message: "function match_documents(vector, double precision, integer) does not exist"})

	_, err := repo.MatchDocuments(context.Background(), []float32{1}, 0.1, 20)
	if !errors.Is(err, domain.ErrProcedureMissing) {
		t.Fatalf("expected procedure missing, got %v", err)
	}
}

func TestClassifyQueryError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "pg code", err: &pgconn.PgError{Code: "42883"}, want: domain.ErrProcedureMissing},
		{name: "message", err: errors.New("Could not find the function public.search_documents_keyword in the schema cache: not found"), want: domain.ErrProcedureMissing},
		{name: "dimensions", err: errors.New("ERROR: different vector dimensions 768 and 1536 (SQLSTATE 22000)"), want: domain.ErrDimensionMismatch},
		{name: "connection", err: errors.New("connection reset by peer"), want: domain.ErrTemporary},
	}
	for _, tc := range cases {
		if got := classifyQueryError("op", tc.err); !errors.Is(got, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestSearchKeywordReturnsRawScores(t *testing.T) {
	repo, mock, done := newCorpusWithMock(t)
	defer done()

	rows := sqlmock.NewRows(candidateColumns).
		AddRow("d1", "Hydrogen storage", "salt caverns", nil, nil, nil, 2021, nil, nil, 0.061)
	mock.ExpectQuery(regexp.QuoteMeta("FROM search_documents_keyword($1, $2)")).
		WithArgs("hydrogen storage", 10).
		WillReturnRows(rows)

	got, err := repo.SearchKeyword(context.Background(), "hydrogen storage", 10)
	if err != nil {
		t.Fatalf("SearchKeyword() error = %v", err)
	}
	if len(got) != 1 || got[0].Similarity != 0.061 {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestScanEmbeddingsIsBounded(t *testing.T) {
	repo, mock, done := newCorpusWithMock(t)
	defer done()

	columns := append(append([]string{}, candidateColumns[:9]...), "embedding")
	rows := sqlmock.NewRows(columns).
		AddRow("d1", "Solar", "solar cells", nil, nil, nil, nil, nil, nil, "[0.1,0.2]")
	mock.ExpectQuery("FROM documents").
		WithArgs(2000).
		WillReturnRows(rows)

	got, err := repo.ScanEmbeddings(context.Background(), 2000)
	if err != nil {
		t.Fatalf("ScanEmbeddings() error = %v", err)
	}
	if len(got) != 1 || got[0].Embedding != "[0.1,0.2]" || got[0].Content != "solar cells" {
		t.Fatalf("unexpected rows %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestVectorLiteral(t *testing.T) {
	if got := vectorLiteral([]float32{0.1, 2, -3.5}); got != "[0.1,2,-3.5]" {
		t.Fatalf("unexpected literal %q", got)
	}
	if got := vectorLiteral(nil); got != "[]" {
		t.Fatalf("unexpected empty literal %q", got)
	}
}
