package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lazypower/recall/internal/store"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
	Dimensions() int
}

// EmbedderConfig selects and configures an embedding provider.
type EmbedderConfig struct {
	Provider   string // auto, ollama, openai, tfidf or none
	OllamaURL  string
	Model      string
	OpenAIKey  string
	Dimensions int
}

const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultTFIDFTerms  = 512
)

// NewEmbedder builds the configured embedder. "auto" uses Ollama when it
// answers and falls back to TF-IDF over the indexed content. "none" returns
// a nil Embedder, which disables semantic search.
func NewEmbedder(cfg EmbedderConfig, view store.View) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		return NewOllamaEmbedder(cfg.OllamaURL, modelOr(cfg.Model, defaultOllamaModel), cfg.Dimensions), nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("openai embedder: %w: no API key", ErrInvalidInput)
		}
		return NewOpenAIEmbedder(cfg.OpenAIKey, modelOr(cfg.Model, defaultOpenAIModel), cfg.Dimensions), nil
	case "tfidf":
		return NewTFIDFEmbedder(view, defaultTFIDFTerms)
	case "none":
		return nil, nil
	case "", "auto":
		model := modelOr(cfg.Model, defaultOllamaModel)
		if cfg.OllamaURL != "" && ProbeOllama(cfg.OllamaURL, model) {
			return NewOllamaEmbedder(cfg.OllamaURL, model, cfg.Dimensions), nil
		}
		log.Printf("embedder: ollama unavailable at %s, using tfidf", cfg.OllamaURL)
		return NewTFIDFEmbedder(view, defaultTFIDFTerms)
	}
	return nil, fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidInput, cfg.Provider)
}

func modelOr(model, def string) string {
	if model == "" {
		return def
	}
	return model
}

// OllamaEmbedder uses Ollama's embedding API.
type OllamaEmbedder struct {
	url    string
	model  string
	dims   int
	client *http.Client
}

// NewOllamaEmbedder creates an embedder using Ollama's API.
func NewOllamaEmbedder(url, model string, dims int) *OllamaEmbedder {
	return &OllamaEmbedder{
		url:    strings.TrimRight(url, "/"),
		model:  model,
		dims:   dims,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (o *OllamaEmbedder) Model() string   { return "ollama:" + o.model }
func (o *OllamaEmbedder) Dimensions() int { return o.dims }

// Embed sends text to Ollama's embed endpoint and returns the embedding vector.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(map[string]any{
		"model": o.model,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.url+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed status %d: %s", resp.StatusCode, respBody)
	}

	var result struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}

	o.dims = len(result.Embeddings[0])
	return result.Embeddings[0], nil
}

// ProbeOllama checks if Ollama is reachable and the embedding model is available.
func ProbeOllama(url, model string) bool {
	client := &http.Client{Timeout: 3 * time.Second}
	reqBody, _ := json.Marshal(map[string]any{
		"model": model,
		"input": "test",
	})
	resp, err := client.Post(strings.TrimRight(url, "/")+"/api/embed", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// OpenAIEmbedder uses the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int
}

// NewOpenAIEmbedder creates an OpenAI embedder. dims of 0 keeps the model's
// native size.
func NewOpenAIEmbedder(apiKey, model string, dims int) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client: openai.NewClient(apiKey),
		model:  model,
		dims:   dims,
	}
}

func (e *OpenAIEmbedder) Model() string { return "openai:" + e.model }

func (e *OpenAIEmbedder) Dimensions() int {
	if e.dims > 0 {
		return e.dims
	}
	if e.model == string(openai.LargeEmbedding3) {
		return 3072
	}
	return 1536
}

// Embed requests a single embedding.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dims,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai returned no embeddings")
	}

	src := resp.Data[0].Embedding
	vec := make([]float64, len(src))
	for i, v := range src {
		vec[i] = float64(v)
	}
	return vec, nil
}

// TFIDFEmbedder generates TF-IDF bag-of-words embeddings as a fallback.
type TFIDFEmbedder struct {
	vocab []string           // ordered vocabulary (top terms by doc frequency)
	idf   map[string]float64 // inverse document frequency per term
	dims  int
	model string
}

// NewTFIDFEmbedder builds a TF-IDF embedder from the indexed memory files.
// The model name carries a fingerprint of the vocabulary, so vectors from an
// older vocabulary are recognised as stale.
func NewTFIDFEmbedder(view store.View, maxTerms int) (*TFIDFEmbedder, error) {
	if maxTerms <= 0 {
		maxTerms = defaultTFIDFTerms
	}

	files, err := view.ListFiles("")
	if err != nil {
		return nil, fmt.Errorf("list files for tfidf: %w", err)
	}

	var docs []string
	for _, f := range files {
		docs = append(docs, f.Title+"\n"+f.Content)
	}

	// Build document frequency
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range tokenize(doc) {
			if !seen[term] {
				df[term]++
				seen[term] = true
			}
		}
	}

	type termFreq struct {
		term string
		freq int
	}
	var terms []termFreq
	for t, f := range df {
		terms = append(terms, termFreq{t, f})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].freq != terms[j].freq {
			return terms[i].freq > terms[j].freq
		}
		return terms[i].term < terms[j].term
	})

	dims := maxTerms
	if len(terms) < dims {
		dims = len(terms)
	}
	if dims == 0 {
		dims = 1 // minimum dimension to avoid zero-length vectors
	}

	vocab := make([]string, dims)
	idf := make(map[string]float64)
	numDocs := float64(len(docs))
	if numDocs == 0 {
		numDocs = 1
	}

	h := fnv.New32a()
	for i := 0; i < dims && i < len(terms); i++ {
		vocab[i] = terms[i].term
		// IDF = log(N / df) + 1 (smoothed)
		idf[vocab[i]] = math.Log(numDocs/float64(terms[i].freq)) + 1.0
		h.Write([]byte(vocab[i]))
		h.Write([]byte{0})
	}

	return &TFIDFEmbedder{
		vocab: vocab,
		idf:   idf,
		dims:  dims,
		model: fmt.Sprintf("tfidf:%08x", h.Sum32()),
	}, nil
}

func (t *TFIDFEmbedder) Model() string   { return t.model }
func (t *TFIDFEmbedder) Dimensions() int { return t.dims }

// Embed generates a normalized TF-IDF vector for the given text.
func (t *TFIDFEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return make([]float64, t.dims), nil
	}

	tf := make(map[string]int)
	for _, tok := range tokens {
		tf[tok]++
	}

	vec := make([]float64, t.dims)
	maxTF := 0
	for _, c := range tf {
		if c > maxTF {
			maxTF = c
		}
	}

	for i, term := range t.vocab {
		count := tf[term]
		if count == 0 {
			continue
		}
		// Augmented TF to prevent bias towards longer documents
		augTF := 0.5 + 0.5*float64(count)/float64(maxTF)
		idf := t.idf[term]
		if idf == 0 {
			idf = 1.0
		}
		vec[i] = augTF * idf
	}

	normalize(vec)
	return vec, nil
}

// tokenize splits text into lowercase tokens, stripping punctuation.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var current strings.Builder
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			current.WriteRune(r)
		} else {
			if current.Len() > 1 { // skip single-char tokens
				tokens = append(tokens, current.String())
			}
			current.Reset()
		}
	}
	if current.Len() > 1 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// normalize performs in-place L2 normalization.
func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
