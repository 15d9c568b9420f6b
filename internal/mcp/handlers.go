package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/coursemap/internal/answer"
	"github.com/bull/coursemap/internal/course"
	"github.com/bull/coursemap/internal/topics"
)

// Answerer answers questions and writes topic summaries.
type Answerer interface {
	Answer(ctx context.Context, req answer.Request) (*answer.Answer, error)
	SummarizeTopic(ctx context.Context, courseID, topicID string) (*answer.TopicSummary, error)
}

// Detector rebuilds a course's topic generation.
type Detector interface {
	Detect(ctx context.Context, courseID string, opts topics.Options) (*topics.Result, error)
}

// Catalog reads stored sessions and generations.
type Catalog interface {
	ListCourses(ctx context.Context) ([]string, error)
	ListSessions(ctx context.Context, courseID string) ([]course.Session, error)
	CurrentGeneration(ctx context.Context, courseID string) (course.Generation, error)
	CountChunks(ctx context.Context, courseID string) (int64, error)
}

// SessionRemover deletes a session with its chunks and vectors.
type SessionRemover interface {
	RemoveSession(ctx context.Context, courseID, sessionID string) (course.Session, error)
}

// toolError prefixes the error class so clients can tell bad input from an
// unavailable provider.
func toolError(action string, err error) error {
	return fmt.Errorf("%s_error: %s: %w", course.Class(err), action, err)
}

func requireCourse(id string) (string, error) {
	id = course.NormalizeCourseID(id)
	if id == "" {
		return "", course.ErrorfInput("course_id is required")
	}
	return id, nil
}

// makeAskHandler creates the ask_question tool handler.
func makeAskHandler(answers Answerer) func(
	context.Context, *mcp.CallToolRequest, AskQuestionInput,
) (*mcp.CallToolResult, AskQuestionOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskQuestionInput) (
		*mcp.CallToolResult, AskQuestionOutput, error,
	) {
		courseID, err := requireCourse(input.CourseID)
		if err != nil {
			return nil, AskQuestionOutput{}, toolError("ask", err)
		}
		r := answer.Request{CourseID: courseID, Question: input.Question, TopK: input.TopK}
		if input.CurrentSession > 0 {
			order := input.CurrentSession
			r.CurrentSessionOrder = &order
		}

		a, err := answers.Answer(ctx, r)
		if errors.Is(err, course.ErrEmptyIndex) {
			return nil, AskQuestionOutput{
				Message: fmt.Sprintf("No lectures have been ingested for %s yet.", courseID),
			}, nil
		}
		if err != nil {
			return nil, AskQuestionOutput{}, toolError("ask", err)
		}

		out := AskQuestionOutput{Answer: *a}
		if a.Confidence == answer.ConfidenceLow {
			out.Message = "Low confidence: the retrieved lecture material may not cover this question well."
		}
		return nil, out, nil
	}
}

// makeDetectHandler creates the detect_topics tool handler.
func makeDetectHandler(detector Detector) func(
	context.Context, *mcp.CallToolRequest, DetectTopicsInput,
) (*mcp.CallToolResult, DetectTopicsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input DetectTopicsInput) (
		*mcp.CallToolResult, DetectTopicsOutput, error,
	) {
		courseID, err := requireCourse(input.CourseID)
		if err != nil {
			return nil, DetectTopicsOutput{}, toolError("detect", err)
		}
		res, err := detector.Detect(ctx, courseID, topics.Options{
			Method:         strings.ToLower(input.Method),
			MinClusterSize: input.MinClusterSize,
		})
		if err != nil {
			return nil, DetectTopicsOutput{}, toolError("detect", err)
		}
		return nil, DetectTopicsOutput{
			CourseID:   courseID,
			Method:     res.Method,
			Topics:     len(res.Generation.Topics),
			Edges:      len(res.Generation.Edges),
			Chunks:     res.Chunks,
			Noise:      res.Noise,
			DurationMS: res.Duration.Milliseconds(),
		}, nil
	}
}

// makeTopicMapHandler creates the get_topic_map tool handler. Appearances
// are listed in session order.
func makeTopicMapHandler(catalog Catalog) func(
	context.Context, *mcp.CallToolRequest, CourseInput,
) (*mcp.CallToolResult, TopicMapOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input CourseInput) (
		*mcp.CallToolResult, TopicMapOutput, error,
	) {
		courseID, err := requireCourse(input.CourseID)
		if err != nil {
			return nil, TopicMapOutput{}, toolError("topic map", err)
		}
		out, err := buildTopicMap(ctx, catalog, courseID)
		if err != nil {
			return nil, TopicMapOutput{}, toolError("topic map", err)
		}
		return nil, out, nil
	}
}

func buildTopicMap(ctx context.Context, catalog Catalog, courseID string) (TopicMapOutput, error) {
	gen, err := catalog.CurrentGeneration(ctx, courseID)
	if err != nil {
		return TopicMapOutput{}, err
	}
	sessions, err := catalog.ListSessions(ctx, courseID)
	if err != nil {
		return TopicMapOutput{}, err
	}
	titles := make(map[string]string, len(sessions))
	for _, s := range sessions {
		titles[s.ID] = s.Title
	}

	out := TopicMapOutput{CourseID: courseID, Topics: []TopicNode{}, Edges: []TopicEdge{}}
	if len(gen.Topics) == 0 {
		out.Message = "No topics yet. Run detect_topics after ingesting at least three sessions."
		return out, nil
	}

	byTopic := make(map[string][]AppearanceView)
	for _, a := range gen.Appearances {
		byTopic[a.TopicID] = append(byTopic[a.TopicID], AppearanceView{
			SessionID:     a.SessionID,
			SessionTitle:  titles[a.SessionID],
			SessionOrder:  a.SessionOrder,
			Frequency:     a.Frequency,
			FirstPosition: a.FirstPosition,
		})
	}
	names := make(map[string]string, len(gen.Topics))
	for _, t := range gen.Topics {
		names[t.ID] = t.Name
		apps := byTopic[t.ID]
		if apps == nil {
			apps = []AppearanceView{}
		}
		out.Topics = append(out.Topics, TopicNode{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			Size:        len(apps),
			Appearances: apps,
		})
	}
	for _, e := range gen.Edges {
		out.Edges = append(out.Edges, TopicEdge{
			From:     e.FromTopicID,
			To:       e.ToTopicID,
			FromName: names[e.FromTopicID],
			ToName:   names[e.ToTopicID],
		})
	}
	return out, nil
}

// makeSummarizeHandler creates the summarize_topic tool handler.
func makeSummarizeHandler(answers Answerer) func(
	context.Context, *mcp.CallToolRequest, SummarizeTopicInput,
) (*mcp.CallToolResult, SummarizeTopicOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SummarizeTopicInput) (
		*mcp.CallToolResult, SummarizeTopicOutput, error,
	) {
		courseID, err := requireCourse(input.CourseID)
		if err != nil {
			return nil, SummarizeTopicOutput{}, toolError("summarize", err)
		}
		s, err := answers.SummarizeTopic(ctx, courseID, input.TopicID)
		if err != nil {
			return nil, SummarizeTopicOutput{}, toolError("summarize", err)
		}
		return nil, SummarizeTopicOutput{Summary: *s}, nil
	}
}

// makeListSessionsHandler creates the list_sessions tool handler.
func makeListSessionsHandler(catalog Catalog) func(
	context.Context, *mcp.CallToolRequest, CourseInput,
) (*mcp.CallToolResult, ListSessionsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input CourseInput) (
		*mcp.CallToolResult, ListSessionsOutput, error,
	) {
		courseID, err := requireCourse(input.CourseID)
		if err != nil {
			return nil, ListSessionsOutput{}, toolError("list sessions", err)
		}
		sessions, err := catalog.ListSessions(ctx, courseID)
		if err != nil {
			return nil, ListSessionsOutput{}, toolError("list sessions", err)
		}
		views := make([]SessionView, len(sessions))
		for i, s := range sessions {
			views[i] = sessionView(s)
		}
		return nil, ListSessionsOutput{CourseID: courseID, Sessions: views, Count: len(views)}, nil
	}
}

func sessionView(s course.Session) SessionView {
	return SessionView{ID: s.ID, Order: s.Order, Title: s.Title, PageCount: s.PageCount}
}

// makeDeleteSessionHandler creates the delete_session tool handler.
func makeDeleteSessionHandler(remover SessionRemover) func(
	context.Context, *mcp.CallToolRequest, DeleteSessionInput,
) (*mcp.CallToolResult, DeleteSessionOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input DeleteSessionInput) (
		*mcp.CallToolResult, DeleteSessionOutput, error,
	) {
		courseID, err := requireCourse(input.CourseID)
		if err != nil {
			return nil, DeleteSessionOutput{}, toolError("delete session", err)
		}
		s, err := remover.RemoveSession(ctx, courseID, input.SessionID)
		if err != nil {
			return nil, DeleteSessionOutput{}, toolError("delete session", err)
		}
		return nil, DeleteSessionOutput{
			Deleted: sessionView(s),
			Message: "Session deleted. Run detect_topics to refresh the topic map.",
		}, nil
	}
}

// makeListCoursesHandler creates the list_courses tool handler.
func makeListCoursesHandler(catalog Catalog) func(
	context.Context, *mcp.CallToolRequest, ListCoursesInput,
) (*mcp.CallToolResult, ListCoursesOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListCoursesInput) (
		*mcp.CallToolResult, ListCoursesOutput, error,
	) {
		ids, err := catalog.ListCourses(ctx)
		if err != nil {
			return nil, ListCoursesOutput{}, toolError("list courses", err)
		}
		if ids == nil {
			ids = []string{}
		}
		return nil, ListCoursesOutput{Courses: ids, Count: len(ids)}, nil
	}
}

// makeStatusHandler creates the course_status tool handler.
func makeStatusHandler(catalog Catalog) func(
	context.Context, *mcp.CallToolRequest, CourseInput,
) (*mcp.CallToolResult, CourseStatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input CourseInput) (
		*mcp.CallToolResult, CourseStatusOutput, error,
	) {
		courseID, err := requireCourse(input.CourseID)
		if err != nil {
			return nil, CourseStatusOutput{}, toolError("status", err)
		}
		sessions, err := catalog.ListSessions(ctx, courseID)
		if err != nil {
			return nil, CourseStatusOutput{}, toolError("status", err)
		}
		chunks, err := catalog.CountChunks(ctx, courseID)
		if err != nil {
			return nil, CourseStatusOutput{}, toolError("status", err)
		}
		gen, err := catalog.CurrentGeneration(ctx, courseID)
		if err != nil {
			return nil, CourseStatusOutput{}, toolError("status", err)
		}

		out := CourseStatusOutput{
			CourseID: courseID,
			Sessions: len(sessions),
			Chunks:   chunks,
			Topics:   len(gen.Topics),
			Edges:    len(gen.Edges),
		}
		if len(gen.Topics) > 0 {
			covered := make(map[string]bool)
			for _, a := range gen.Appearances {
				covered[a.SessionID] = true
			}
			if missing := len(sessions) - len(covered); missing > 0 {
				out.StaleWarning = fmt.Sprintf("%d sessions have no topic appearances. Run detect_topics if they were added after the last detection.", missing)
			}
		}
		return nil, out, nil
	}
}
