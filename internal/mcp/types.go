// Package mcp exposes course ingestion results, topic maps and question
// answering as Model Context Protocol tools.
package mcp

import (
	"github.com/bull/coursemap/internal/answer"
)

// AskQuestionInput defines the input parameters for the ask_question tool.
type AskQuestionInput struct {
	CourseID string `json:"course_id" jsonschema:"the course code, e.g. CS101"`
	Question string `json:"question" jsonschema:"the student's question"`
	// CurrentSession hides material from sessions after it. Zero means no limit.
	CurrentSession int `json:"current_session,omitempty" jsonschema:"only use lectures up to and including this session order"`
	TopK           int `json:"top_k,omitempty" jsonschema:"number of lecture chunks to retrieve (default 5)"`
}

// AskQuestionOutput wraps the cited answer.
type AskQuestionOutput struct {
	Answer  answer.Answer `json:"answer"`
	Message string        `json:"message,omitempty"`
}

// DetectTopicsInput defines the input parameters for the detect_topics tool.
type DetectTopicsInput struct {
	CourseID       string `json:"course_id" jsonschema:"the course code"`
	Method         string `json:"method,omitempty" jsonschema:"clustering method: density or centroid"`
	MinClusterSize int    `json:"min_cluster_size,omitempty" jsonschema:"smallest group of chunks that forms a topic"`
}

// DetectTopicsOutput summarizes a detection run.
type DetectTopicsOutput struct {
	CourseID   string `json:"course_id"`
	Method     string `json:"method"`
	Topics     int    `json:"topics"`
	Edges      int    `json:"edges"`
	Chunks     int    `json:"chunks"`
	Noise      int    `json:"noise"`
	DurationMS int64  `json:"duration_ms"`
}

// CourseInput selects a course.
type CourseInput struct {
	CourseID string `json:"course_id" jsonschema:"the course code"`
}

// TopicMapOutput is the current topic generation of a course.
type TopicMapOutput struct {
	CourseID string      `json:"course_id"`
	Topics   []TopicNode `json:"topics"`
	Edges    []TopicEdge `json:"edges"`
	Message  string      `json:"message,omitempty"`
}

// TopicNode is a topic with the sessions it appears in. Size is the number
// of appearances.
type TopicNode struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Size        int              `json:"size"`
	Appearances []AppearanceView `json:"appearances"`
}

type AppearanceView struct {
	SessionID     string `json:"session_id"`
	SessionTitle  string `json:"session_title"`
	SessionOrder  int    `json:"session_order"`
	Frequency     int    `json:"frequency"`
	FirstPosition int    `json:"first_position"`
}

// TopicEdge reads "From is a prerequisite of To".
type TopicEdge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	FromName string `json:"from_name"`
	ToName   string `json:"to_name"`
}

// SummarizeTopicInput defines the input parameters for the summarize_topic tool.
type SummarizeTopicInput struct {
	CourseID string `json:"course_id" jsonschema:"the course code"`
	TopicID  string `json:"topic_id" jsonschema:"topic id from get_topic_map"`
}

type SummarizeTopicOutput struct {
	Summary answer.TopicSummary `json:"summary"`
}

// SessionView is one lecture session.
type SessionView struct {
	ID        string `json:"id"`
	Order     int    `json:"order"`
	Title     string `json:"title"`
	PageCount int    `json:"page_count"`
}

type ListSessionsOutput struct {
	CourseID string        `json:"course_id"`
	Sessions []SessionView `json:"sessions"`
	Count    int           `json:"count"`
}

// DeleteSessionInput defines the input parameters for the delete_session tool.
type DeleteSessionInput struct {
	CourseID  string `json:"course_id" jsonschema:"the course code"`
	SessionID string `json:"session_id" jsonschema:"session id from list_sessions"`
}

type DeleteSessionOutput struct {
	Deleted SessionView `json:"deleted"`
	Message string      `json:"message"`
}

// ListCoursesInput takes no parameters.
type ListCoursesInput struct{}

type ListCoursesOutput struct {
	Courses []string `json:"courses"`
	Count   int      `json:"count"`
}

// CourseStatusOutput reports what is stored for a course.
type CourseStatusOutput struct {
	CourseID string `json:"course_id"`
	Sessions int    `json:"sessions"`
	Chunks   int64  `json:"chunks"`
	Topics   int    `json:"topics"`
	Edges    int    `json:"edges"`
	// StaleWarning is set when sessions have no topic appearances, which
	// happens after ingesting without re-running detection.
	StaleWarning string `json:"stale_warning,omitempty"`
}
