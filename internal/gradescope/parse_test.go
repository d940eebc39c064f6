package gradescope

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"duesync/internal/assignment"
)

const dashboardHTML = `<html><body>
<div class="courseList">
  <a class="courseBox" href="/courses/111">
    <h3 class="courseBox--shortname">CS101</h3>
    <div class="courseBox--name">Intro to Computer Science</div>
  </a>
  <a class="courseBox" href="/courses/222">
    <h3 class="courseBox--shortname">EE20</h3>
    <div class="courseBox--name">Circuits</div>
  </a>
  <a class="courseBox courseBox-new" href="/courses/new"></a>
</div>
</body></html>`

const courseHTML = `<html><body>
<table id="assignments-student-table">
  <thead><tr><th>Name</th><th>Status</th><th>Released</th><th>Due</th></tr></thead>
  <tbody>
    <tr>
      <th><a href="/courses/111/assignments/9001">  HW 3 </a></th>
      <td>No Submission</td>
      <td><time datetime="2024-02-20T00:00">Feb 20</time></td>
      <td><time class="submissionTimeChart--dueDate" datetime="2024-03-01T23:59">Mar 01 at 11:59PM</time></td>
    </tr>
    <tr>
      <th><a href="/courses/111/assignments/9002">Project Proposal</a></th>
      <td>Submitted</td>
      <td><time datetime="2024-02-01T00:00">Feb 01</time></td>
      <td><time class="submissionTimeChart--dueDate" datetime="2024-03-15T17:00">Mar 15 at 5:00PM</time></td>
    </tr>
    <tr>
      <th>Syllabus quiz (no deadline)</th>
      <td>Optional</td>
      <td></td>
      <td></td>
    </tr>
  </tbody>
</table>
</body></html>`

func TestParseCourseList(t *testing.T) {
	courses, err := parseCourseList(dashboardHTML)
	if err != nil {
		t.Fatalf("parseCourseList: %v", err)
	}
	want := []courseRef{
		{Name: "CS101", URL: "https://www.gradescope.com/courses/111"},
		{Name: "EE20", URL: "https://www.gradescope.com/courses/222"},
	}
	if diff := cmp.Diff(want, courses, cmp.AllowUnexported(courseRef{})); diff != "" {
		t.Errorf("courses mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCourseList_EmptyDashboard(t *testing.T) {
	_, err := parseCourseList("<html><body><p>Welcome!</p></body></html>")
	if err == nil || !strings.Contains(err.Error(), "no course tiles") {
		t.Errorf("expected no-course-tiles error, got: %v", err)
	}
}

func TestParseAssignments(t *testing.T) {
	raws, err := parseAssignments(courseHTML, courseRef{Name: "CS101", URL: "https://www.gradescope.com/courses/111"})
	if err != nil {
		t.Fatalf("parseAssignments: %v", err)
	}
	want := []assignment.Raw{
		{
			Source: assignment.SourceScrape,
			Title:  "HW 3",
			Course: "CS101",
			DueRaw: "2024-03-01T23:59",
			URL:    "https://www.gradescope.com/courses/111/assignments/9001",
		},
		{
			Source: assignment.SourceScrape,
			Title:  "Project Proposal",
			Course: "CS101",
			DueRaw: "2024-03-15T17:00",
			URL:    "https://www.gradescope.com/courses/111/assignments/9002",
		},
	}
	if diff := cmp.Diff(want, raws); diff != "" {
		t.Errorf("raws mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAssignments_MissingTableIsAnError(t *testing.T) {
	_, err := parseAssignments("<html><body><div>layout changed</div></body></html>",
		courseRef{Name: "CS101"})
	if err == nil || !strings.Contains(err.Error(), "assignments table not found") {
		t.Errorf("expected table-not-found error, got: %v", err)
	}
}

func TestParseAssignments_DueDateFallsBackToText(t *testing.T) {
	html := `<html><body><table id="assignments-student-table"><tbody>
<tr>
  <th><a href="/courses/111/assignments/1">Lab 1</a></th>
  <td><time class="submissionTimeChart--dueDate">2024-04-01 10:00</time></td>
</tr>
</tbody></table></body></html>`

	raws, err := parseAssignments(html, courseRef{Name: "CS101"})
	if err != nil {
		t.Fatalf("parseAssignments: %v", err)
	}
	if len(raws) != 1 || raws[0].DueRaw != "2024-04-01 10:00" {
		t.Errorf("unexpected raws: %+v", raws)
	}
}

func TestParseAssignments_RawTitleWhitespacePreserved(t *testing.T) {
	// Title canonicalization belongs to the normalizer; the parser only trims.
	raws, err := parseAssignments(courseHTML, courseRef{Name: "CS101"})
	if err != nil {
		t.Fatal(err)
	}
	if raws[0].Title != "HW 3" {
		t.Errorf("title: got %q", raws[0].Title)
	}
}
