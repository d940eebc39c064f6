package gradescope

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"duesync/internal/assignment"
)

// courseRef is one course tile from the dashboard.
type courseRef struct {
	Name string
	URL  string
}

// parseCourseList extracts course tiles from the rendered dashboard HTML.
// Pure function over the page source so layout-drift handling is testable
// without a browser.
func parseCourseList(html string) ([]courseRef, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse dashboard: %w", err)
	}

	var courses []courseRef
	doc.Find("a.courseBox").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		name := strings.TrimSpace(s.Find(".courseBox--shortname").Text())
		if name == "" {
			name = strings.TrimSpace(s.Find(".courseBox--name").Text())
		}
		if name == "" {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = baseURL + href
		}
		courses = append(courses, courseRef{Name: name, URL: href})
	})

	if len(courses) == 0 {
		return nil, fmt.Errorf("parse dashboard: no course tiles found")
	}
	return courses, nil
}

// parseAssignments extracts raw assignment records from a rendered course
// page. Rows without a due date (ungraded material, past-due hidden rows) are
// skipped. An unrecognizable page is an error; the caller treats it as a
// partial failure for that course only.
func parseAssignments(html string, course courseRef) ([]assignment.Raw, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse course %q: %w", course.Name, err)
	}

	table := doc.Find("table#assignments-student-table tbody tr")
	if table.Length() == 0 {
		return nil, fmt.Errorf("parse course %q: assignments table not found", course.Name)
	}

	var raws []assignment.Raw
	table.Each(func(_ int, row *goquery.Selection) {
		title := strings.TrimSpace(row.Find("th a").First().Text())
		url, _ := row.Find("th a").First().Attr("href")
		if title == "" {
			title = strings.TrimSpace(row.Find("th").First().Text())
		}
		if title == "" {
			return
		}

		due := dueFromRow(row)
		if due == "" {
			return
		}

		if strings.HasPrefix(url, "/") {
			url = baseURL + url
		}
		raws = append(raws, assignment.Raw{
			Source: assignment.SourceScrape,
			Title:  title,
			Course: course.Name,
			DueRaw: due,
			URL:    url,
		})
	})
	return raws, nil
}

// dueFromRow pulls the due timestamp from a row, preferring the machine
// readable datetime attribute over the display text.
func dueFromRow(row *goquery.Selection) string {
	t := row.Find("time.submissionTimeChart--dueDate").First()
	if dt, ok := t.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
		return strings.TrimSpace(dt)
	}
	return strings.TrimSpace(t.Text())
}
