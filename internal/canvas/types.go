package canvas

// Course is one active enrollment, from GET /api/v1/courses.
type Course struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	CourseCode string `json:"course_code,omitempty"`
}

// Assignment is one upcoming assignment, from
// GET /api/v1/courses/{id}/assignments. DueAt is RFC 3339 (UTC) or empty when
// the instructor never set a due date.
type Assignment struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	DueAt    string `json:"due_at,omitempty"`
	HTMLURL  string `json:"html_url,omitempty"`
	CourseID int    `json:"course_id,omitempty"`
}

// errorBody is the standard Canvas error response shape.
type errorBody struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}
