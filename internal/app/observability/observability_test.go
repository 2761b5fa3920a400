package observability

import "testing"

func TestNormalizedPath(t *testing.T) {
	got := normalizedPath("/api/v1/exams/6f1d9f9a-2b34-4c1d-9a0e-1f2a3b4c5d6e/attempts")
	want := "/api/v1/exams/{id}/attempts"
	if got != want {
		t.Fatalf("normalizedPath mismatch got=%s want=%s", got, want)
	}
	if got := normalizedPath("/api/v1/exams/123/report"); got != "/api/v1/exams/{id}/report" {
		t.Fatalf("numeric id not normalized, got=%s", got)
	}
}

func TestExtractExamID(t *testing.T) {
	id := "6f1d9f9a-2b34-4c1d-9a0e-1f2a3b4c5d6e"
	if got := extractExamID("/api/v1/exams/" + id + "/attempts"); got != id {
		t.Fatalf("expected %s, got %s", id, got)
	}
	if got := extractExamID("/api/v1/attempts/current"); got != "" {
		t.Fatalf("expected empty for non-exam path, got %s", got)
	}
}
