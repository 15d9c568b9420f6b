// Package answer answers questions from retrieved lecture chunks and writes
// topic summaries, keeping only citations that point at supplied context.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/bull/coursemap/internal/course"
	"github.com/bull/coursemap/internal/index"
)

// Embedder embeds the question.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator writes the answer.
type Generator interface {
	Generate(ctx context.Context, instruction, input string) (string, error)
}

// Catalog resolves session titles and topic material.
type Catalog interface {
	ListSessions(ctx context.Context, courseID string) ([]course.Session, error)
	GetTopic(ctx context.Context, courseID, topicID string) (course.Topic, []course.Appearance, error)
	SessionChunks(ctx context.Context, courseID string, sessionIDs []string, limit int) ([]course.Chunk, error)
}

// Config tunes retrieval and the confidence signal.
type Config struct {
	TopK                int
	LowConfidenceScore  float64
	HighConfidenceScore float64
	MinChunks           int
	SummaryChunkLimit   int
	ExcerptChars        int
}

// Confidence is advisory; it never suppresses an answer.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Request is a question about one course. CurrentSessionOrder, when set,
// hides material from later sessions.
type Request struct {
	CourseID            string
	Question            string
	TopK                int
	CurrentSessionOrder *int
}

// Citation points at a chunk that was supplied to the generator.
type Citation struct {
	Label        int     `json:"label"`
	ChunkID      string  `json:"chunk_id"`
	SessionID    string  `json:"session_id"`
	SessionTitle string  `json:"session_title"`
	SessionOrder int     `json:"session_order"`
	Position     int     `json:"position"`
	Score        float64 `json:"score"`
	Excerpt      string  `json:"excerpt"`
}

// Answer is the engine's reply.
type Answer struct {
	Text       string     `json:"text"`
	Citations  []Citation `json:"citations"`
	Confidence Confidence `json:"confidence"`
	TopScore   float64    `json:"top_score"`
	Retrieved  int        `json:"retrieved"`
}

// NoMaterialAnswer is returned when retrieval finds nothing.
const NoMaterialAnswer = "I couldn't find relevant material in the lectures covered so far to answer this question."

const answerInstruction = `You are a teaching assistant for a university course.
Answer the student's question using ONLY the lecture excerpts provided.
Each excerpt starts with a label such as [Source 1]. Cite the excerpts you use
with exactly those labels. Never cite a label that is not in the excerpts and
never invent sources. If the excerpts do not contain the answer, say so.`

// Engine answers questions and summarizes topics.
type Engine struct {
	embedder  Embedder
	generator Generator
	searcher  index.Searcher
	catalog   Catalog
	cfg       Config
	logger    *slog.Logger
}

func NewEngine(embedder Embedder, generator Generator, searcher index.Searcher, catalog Catalog, cfg Config, logger *slog.Logger) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MinChunks <= 0 {
		cfg.MinChunks = 2
	}
	if cfg.LowConfidenceScore == 0 {
		cfg.LowConfidenceScore = 0.35
	}
	if cfg.HighConfidenceScore == 0 {
		cfg.HighConfidenceScore = 0.6
	}
	if cfg.SummaryChunkLimit <= 0 {
		cfg.SummaryChunkLimit = 20
	}
	if cfg.ExcerptChars <= 0 {
		cfg.ExcerptChars = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{embedder: embedder, generator: generator, searcher: searcher, catalog: catalog, cfg: cfg, logger: logger}
}

// Answer embeds the question, retrieves chunks (filtered by
// CurrentSessionOrder when set), and generates a cited answer.
func (e *Engine) Answer(ctx context.Context, req Request) (*Answer, error) {
	courseID := course.NormalizeCourseID(req.CourseID)
	question := strings.TrimSpace(req.Question)
	if courseID == "" || question == "" {
		return nil, course.WrapStage(courseID, course.StageRetrieve, course.ErrorfInput("course and question are required"))
	}
	k := req.TopK
	if k <= 0 {
		k = e.cfg.TopK
	}

	vecs, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageEmbed, err)
	}
	if len(vecs) != 1 {
		return nil, course.WrapStage(courseID, course.StageEmbed, fmt.Errorf("expected 1 query vector, got %d", len(vecs)))
	}

	hits, err := e.searcher.Search(ctx, vecs[0], courseID, k, req.CurrentSessionOrder)
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageRetrieve, err)
	}
	if len(hits) == 0 {
		return &Answer{Text: NoMaterialAnswer, Citations: []Citation{}, Confidence: ConfidenceLow}, nil
	}

	titles, err := e.sessionTitles(ctx, courseID)
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageRetrieve, err)
	}
	sources := make([]source, len(hits))
	for i, h := range hits {
		sources[i] = source{chunk: h.Chunk, score: h.Score, title: titles[h.SessionID]}
	}

	input := fmt.Sprintf("Lecture excerpts:\n\n%s\nQuestion: %s", formatContext(sources, true), question)
	raw, err := e.generator.Generate(ctx, answerInstruction, input)
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageGenerate, err)
	}

	text, citations := e.verifyCitations(raw, sources)
	ans := &Answer{
		Text:       text,
		Citations:  citations,
		TopScore:   hits[0].Score,
		Retrieved:  len(hits),
		Confidence: e.confidence(hits[0].Score, len(hits)),
	}
	e.logger.Info("answered question", "course", courseID, "chunks", len(hits),
		"citations", len(citations), "confidence", ans.Confidence)
	return ans, nil
}

func (e *Engine) confidence(top float64, n int) Confidence {
	switch {
	case top < e.cfg.LowConfidenceScore || n < e.cfg.MinChunks:
		return ConfidenceLow
	case top >= e.cfg.HighConfidenceScore:
		return ConfidenceHigh
	default:
		return ConfidenceMedium
	}
}

func (e *Engine) sessionTitles(ctx context.Context, courseID string) (map[string]string, error) {
	sessions, err := e.catalog.ListSessions(ctx, courseID)
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(sessions))
	for _, s := range sessions {
		titles[s.ID] = s.Title
	}
	return titles, nil
}

type source struct {
	chunk course.Chunk
	score float64
	title string
}

// formatContext labels sources [Source 1..n] with session title, order and
// position.
func formatContext(sources []source, withScore bool) string {
	var b strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&b, "[Source %d] Session %d \"%s\", position %d", i+1, s.chunk.SessionOrder, s.title, s.chunk.Position)
		if withScore {
			fmt.Fprintf(&b, " (relevance %.2f)", s.score)
		}
		fmt.Fprintf(&b, "\n%s\n\n", strings.TrimSpace(s.chunk.Text))
	}
	return b.String()
}

var (
	citationPattern = regexp.MustCompile(`(?i)\[sources?\s+([^\]]*)\]`)
	labelNumber     = regexp.MustCompile(`\d+`)
)

// verifyCitations keeps labels that name a supplied source, in first-mention
// order. Grouped, plural and lower-case labels are rewritten to the canonical
// [Source N] form with only the valid numbers; a bracket left with none is
// removed.
func (e *Engine) verifyCitations(raw string, sources []source) (string, []Citation) {
	seen := make(map[int]bool)
	citations := []Citation{}
	dropped := 0
	text := citationPattern.ReplaceAllStringFunc(raw, func(m string) string {
		inner := citationPattern.FindStringSubmatch(m)[1]
		var kept []string
		for _, num := range labelNumber.FindAllString(inner, -1) {
			n, err := strconv.Atoi(num)
			if err != nil || n < 1 || n > len(sources) {
				dropped++
				continue
			}
			kept = append(kept, fmt.Sprintf("Source %d", n))
			if seen[n] {
				continue
			}
			seen[n] = true
			s := sources[n-1]
			citations = append(citations, Citation{
				Label:        n,
				ChunkID:      s.chunk.ID,
				SessionID:    s.chunk.SessionID,
				SessionTitle: s.title,
				SessionOrder: s.chunk.SessionOrder,
				Position:     s.chunk.Position,
				Score:        s.score,
				Excerpt:      excerpt(s.chunk.Text, e.cfg.ExcerptChars),
			})
		}
		if len(kept) == 0 {
			if len(labelNumber.FindAllString(inner, -1)) == 0 {
				dropped++
			}
			return ""
		}
		return "[" + strings.Join(kept, ", ") + "]"
	})
	if dropped > 0 {
		e.logger.Warn("dropped unverifiable citations", "count", dropped)
		text = tidySpaces(text)
	}
	return strings.TrimSpace(text), citations
}

var spaceRun = regexp.MustCompile(`[ \t]{2,}`)
var spaceBeforePunct = regexp.MustCompile(`[ \t]+([.,;:!?])`)

func tidySpaces(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	return spaceBeforePunct.ReplaceAllString(s, "$1")
}

func excerpt(text string, n int) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
