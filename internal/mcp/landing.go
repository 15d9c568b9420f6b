package mcp

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>coursemap</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; max-width: 640px; margin: 3rem auto; padding: 0 1rem; color: #1f2937; }
  h1 { font-size: 1.6rem; }
  code, pre { font-family: Menlo, monospace; background: #f3f4f6; border-radius: 4px; }
  pre { padding: 0.75rem; overflow-x: auto; }
  li { margin: 0.3rem 0; }
</style>
</head>
<body>
<h1>coursemap</h1>
<p>Topic maps and cited answers over course lectures, served through the Model Context Protocol.</p>
<h2>Endpoints</h2>
<ul>
  <li><a href="/mcp"><code>/mcp</code></a> MCP Streamable HTTP</li>
  <li><a href="/health"><code>/health</code></a> database and provider health</li>
</ul>
<h2>Tools</h2>
<ul>
  <li><code>ask_question</code>, <code>summarize_topic</code></li>
  <li><code>detect_topics</code>, <code>get_topic_map</code>, <code>course_status</code></li>
  <li><code>list_courses</code>, <code>list_sessions</code>, <code>delete_session</code></li>
</ul>
</body>
</html>`

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(landingHTML))
	}
}
