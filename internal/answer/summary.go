package answer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bull/coursemap/internal/course"
)

const summaryInstruction = `You are a teaching assistant summarizing how one topic develops across a course.
Use ONLY the lecture excerpts provided; they are ordered by session.
Describe how the topic is introduced and how later sessions build on or apply it.
Cite excerpts with their [Source N] labels and never invent labels.
Reply in this format:
SUMMARY: <a short narrative paragraph>
KEY POINTS:
- <point>
- <point>`

// SummarySource is one session where the topic appears.
type SummarySource struct {
	SessionID    string `json:"session_id"`
	SessionTitle string `json:"session_title"`
	SessionOrder int    `json:"session_order"`
	Frequency    int    `json:"frequency"`
}

// TopicSummary narrates a topic's evolution across sessions.
type TopicSummary struct {
	TopicID   string          `json:"topic_id"`
	TopicName string          `json:"topic_name"`
	Summary   string          `json:"summary"`
	KeyPoints []string        `json:"key_points"`
	Citations []Citation      `json:"citations"`
	Sources   []SummarySource `json:"sources"`
}

// SummarizeTopic builds context from the chunks of the topic's member
// sessions, ordered by session, and asks for an evolution narrative.
func (e *Engine) SummarizeTopic(ctx context.Context, courseID, topicID string) (*TopicSummary, error) {
	courseID = course.NormalizeCourseID(courseID)
	topic, apps, err := e.catalog.GetTopic(ctx, courseID, topicID)
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageRetrieve, err)
	}
	titles, err := e.sessionTitles(ctx, courseID)
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageRetrieve, err)
	}

	sessionIDs := make([]string, 0, len(apps))
	sources := make([]SummarySource, 0, len(apps))
	for _, a := range apps {
		sessionIDs = append(sessionIDs, a.SessionID)
		sources = append(sources, SummarySource{
			SessionID:    a.SessionID,
			SessionTitle: titles[a.SessionID],
			SessionOrder: a.SessionOrder,
			Frequency:    a.Frequency,
		})
	}

	chunks, err := e.catalog.SessionChunks(ctx, courseID, sessionIDs, e.cfg.SummaryChunkLimit)
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageRetrieve, err)
	}
	summary := &TopicSummary{TopicID: topic.ID, TopicName: topic.Name, Sources: sources, Citations: []Citation{}}
	if len(chunks) == 0 {
		summary.Summary = fmt.Sprintf("No lecture material is stored for %s.", topic.Name)
		return summary, nil
	}
	course.SortChunks(chunks)

	ctxSources := make([]source, len(chunks))
	for i, c := range chunks {
		ctxSources[i] = source{chunk: c, title: titles[c.SessionID]}
	}
	input := fmt.Sprintf("Topic: %s\nDescription: %s\n\nLecture excerpts:\n\n%s",
		topic.Name, topic.Description, formatContext(ctxSources, false))
	raw, err := e.generator.Generate(ctx, summaryInstruction, input)
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageGenerate, err)
	}

	text, citations := e.verifyCitations(raw, ctxSources)
	summary.Summary, summary.KeyPoints = parseSummary(text)
	summary.Citations = citations
	return summary, nil
}

var (
	summaryMarker   = regexp.MustCompile(`(?i)SUMMARY:`)
	keyPointsMarker = regexp.MustCompile(`(?i)KEY POINTS:`)
)

// parseSummary splits a SUMMARY:/KEY POINTS: reply. Without markers the
// whole text is the summary. Markers are matched on the original text so
// offsets stay valid for any UTF-8 input.
func parseSummary(text string) (string, []string) {
	body := text
	var points []string
	if loc := keyPointsMarker.FindStringIndex(text); loc != nil {
		body = text[:loc[0]]
		for _, line := range strings.Split(text[loc[1]:], "\n") {
			line = strings.TrimSpace(line)
			line = strings.TrimLeft(line, "-*• ")
			if line != "" {
				points = append(points, line)
			}
		}
	}
	if loc := summaryMarker.FindStringIndex(body); loc != nil {
		body = body[loc[1]:]
	}
	return strings.TrimSpace(body), points
}
