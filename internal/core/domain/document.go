package domain

// Document is a corpus row. The corpus is embedded and stored elsewhere;
// this service only reads it.
type Document struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Content    string `json:"content,omitempty"`
	Author     string `json:"author,omitempty"`
	Department string `json:"department,omitempty"`
	Category   string `json:"category,omitempty"`
	Year       int    `json:"year,omitempty"`
	URL        string `json:"url,omitempty"`
	DOI        string `json:"doi,omitempty"`
}

// Candidate is a document returned by a corpus lookup together with the
// score the lookup assigned to it (cosine similarity or raw BM25).
type Candidate struct {
	Document
	Similarity float64
}

// StoredEmbedding is a corpus row with its embedding still in stored form.
type StoredEmbedding struct {
	Document
	Embedding string
}

// ScoredDocument is a per-request ranking result. It is never persisted.
type ScoredDocument struct {
	Document
	VectorScore  float64 `json:"vector_score"`
	KeywordScore float64 `json:"keyword_score"`
	Similarity   float64 `json:"similarity"`
}

// RetrievalPath names the branch of the pipeline that produced results.
type RetrievalPath string

const (
	PathVectorRPC    RetrievalPath = "vector_rpc"
	PathVectorScan   RetrievalPath = "vector_scan"
	PathKeywordBM25  RetrievalPath = "keyword_bm25"
	PathNoCandidates RetrievalPath = "none"
)
