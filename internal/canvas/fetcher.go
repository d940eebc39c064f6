package canvas

import (
	"context"
	"fmt"

	"duesync/internal/assignment"
)

// Fetcher adapts the Canvas client to the runner's source interface.
type Fetcher struct {
	client *Client
}

// NewFetcher returns a Fetcher backed by the given client.
func NewFetcher(client *Client) *Fetcher {
	return &Fetcher{client: client}
}

// Name identifies this source in summaries and logs.
func (f *Fetcher) Name() string { return assignment.SourceAPI }

// Fetch walks courses and their upcoming assignments, producing raw records.
// Assignments without a due date are skipped; they cannot appear on a
// calendar.
func (f *Fetcher) Fetch(ctx context.Context) ([]assignment.Raw, error) {
	courses, err := f.client.ListCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch assignments: %w", err)
	}

	var raws []assignment.Raw
	for _, course := range courses {
		items, err := f.client.ListAssignments(ctx, course.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch assignments: course %q: %w", course.Name, err)
		}
		courseName := course.CourseCode
		if courseName == "" {
			courseName = course.Name
		}
		for _, a := range items {
			if a.DueAt == "" {
				continue
			}
			raws = append(raws, assignment.Raw{
				Source: assignment.SourceAPI,
				Title:  a.Name,
				Course: courseName,
				DueRaw: a.DueAt,
				URL:    a.HTMLURL,
			})
		}
	}
	return raws, nil
}
