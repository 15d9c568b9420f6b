package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Generator is the text-generation collaborator.
type Generator interface {
	Generate(ctx context.Context, instruction, input string) (string, error)
}

// Label is a topic's human-facing name.
type Label struct {
	Name        string
	Description string
}

// Namer turns sample texts of one cluster into a Label. index is the
// cluster's 0-based id, used for fallback names.
type Namer interface {
	Name(ctx context.Context, index int, samples []string) (Label, error)
}

const namingInstruction = `You label topics in university lecture material.
Given excerpts that belong to one topic, reply with exactly two lines:
TOPIC: <a concise topic name of 2-5 words>
DESCRIPTION: <one sentence describing the topic>`

// LLMNamer asks the generator for a name. Output it cannot parse falls back
// to "Topic N" without a second call; only transport errors are returned.
type LLMNamer struct {
	gen    Generator
	logger *slog.Logger
}

func NewLLMNamer(gen Generator, logger *slog.Logger) *LLMNamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMNamer{gen: gen, logger: logger}
}

func (n *LLMNamer) Name(ctx context.Context, index int, samples []string) (Label, error) {
	var b strings.Builder
	for i, s := range samples {
		fmt.Fprintf(&b, "Excerpt %d:\n%s\n\n", i+1, s)
	}
	out, err := n.gen.Generate(ctx, namingInstruction, b.String())
	if err != nil {
		return Label{}, fmt.Errorf("name topic %d: %w", index+1, err)
	}
	label, ok := ParseLabel(out)
	if !ok {
		n.logger.Warn("unparseable topic name, using fallback", "topic", index+1)
		return FallbackLabel(index), nil
	}
	return label, nil
}

// FallbackLabel is used when no usable name was produced.
func FallbackLabel(index int) Label {
	return Label{Name: fmt.Sprintf("Topic %d", index+1), Description: "Auto-generated topic"}
}

// ParseLabel reads TOPIC:/DESCRIPTION: lines, or a {"name","description"}
// JSON object.
func ParseLabel(out string) (Label, bool) {
	var label Label
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "TOPIC:"):
			label.Name = cleanField(line[len("TOPIC:"):])
		case strings.HasPrefix(upper, "DESCRIPTION:"):
			label.Description = cleanField(line[len("DESCRIPTION:"):])
		}
	}
	if label.Name == "" {
		var js struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		trimmed := strings.TrimSpace(out)
		if err := json.Unmarshal([]byte(trimmed), &js); err == nil {
			label = Label{Name: cleanField(js.Name), Description: cleanField(js.Description)}
		}
	}
	if label.Name == "" {
		return Label{}, false
	}
	if label.Description == "" {
		label.Description = "Auto-generated topic"
	}
	return label, true
}

func cleanField(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"*`)
}

// sampleTexts picks up to size texts evenly spaced through members, each cut
// to maxChars runes.
func sampleTexts(texts []string, size, maxChars int) []string {
	if size <= 0 || len(texts) == 0 {
		return nil
	}
	var picked []string
	if len(texts) <= size {
		picked = texts
	} else {
		for i := 0; i < size; i++ {
			picked = append(picked, texts[i*len(texts)/size])
		}
	}
	out := make([]string, len(picked))
	for i, t := range picked {
		out[i] = truncate(t, maxChars)
	}
	return out
}

func truncate(s string, maxChars int) string {
	r := []rune(s)
	if maxChars <= 0 || len(r) <= maxChars {
		return s
	}
	return string(r[:maxChars])
}
