package email

import (
	"strings"
	"testing"
)

func sampleTask() TaskEmail {
	return TaskEmail{
		TaskID:       "0c1f8f3e-5a7a-4d27-9f2a-8f0a2f6a1b2c",
		Title:        "Review out-of-range lab result",
		Description:  "LBORRES value 25.5 is outside reference range [13, 17]",
		Priority:     "high",
		AssignedRole: "Data Manager",
		TrialID:      "CT-001",
		Domain:       "LB",
		RecordID:     "LB-100",
		Source:       "central_lab",
		DueDate:      "2025-06-05",
		TaskURL:      "https://trialops.example.com/tasks/0c1f8f3e-5a7a-4d27-9f2a-8f0a2f6a1b2c",
	}
}

func TestRenderTaskCreatedTemplate(t *testing.T) {
	html, err := renderEmailTemplate("task_created.html", taskCreatedEmailData{
		baseEmailData: baseEmailData{
			Title:    "New data review task",
			Heading:  "New data review task",
			CTALabel: "Open task",
			CTAURL:   "https://trialops.example.com/tasks/abc",
		},
		Task: sampleTask(),
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	for _, want := range []string{
		"Review out-of-range lab result",
		"CT-001",
		"LB / LB-100",
		"central_lab",
		"2025-06-05",
		"Data Manager",
		"https://trialops.example.com/tasks/abc",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered email missing %q", want)
		}
	}
}

func TestRenderTaskResolvedTemplate(t *testing.T) {
	task := sampleTask()
	task.ResolutionNote = "The underlying discrepancy is no longer present in the source data."
	task.AutoCompleted = true

	html, err := renderEmailTemplate("task_resolved.html", taskResolvedEmailData{
		baseEmailData: baseEmailData{
			Title:   "Task resolved",
			Heading: "Task resolved",
		},
		Task: task,
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	for _, want := range []string{
		"Review out-of-range lab result",
		"CT-001",
		"no longer present",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered email missing %q", want)
		}
	}
}

func TestRenderEscapesHTML(t *testing.T) {
	task := sampleTask()
	task.Description = `<script>alert("x")</script>`

	html, err := renderEmailTemplate("task_created.html", taskCreatedEmailData{Task: task})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("description was not escaped")
	}
}
