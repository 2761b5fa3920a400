package roster

import (
	"context"
	"database/sql"
	"reflect"
	"strings"
	"testing"

	internaldb "examlms/internal/db"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	conn, err := internaldb.Open(context.Background(), internaldb.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestReplaceDedupesAndTrims(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newTestDB(t))

	kept, err := svc.Replace(ctx, "exam-1", []string{" s1 ", "s2", "s1", "", "s3"}, "teacher-1")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if !reflect.DeepEqual(kept, []string{"s1", "s2", "s3"}) {
		t.Fatalf("expected [s1 s2 s3], got %v", kept)
	}

	listed, err := svc.AssignedStudents(ctx, "exam-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(listed, []string{"s1", "s2", "s3"}) {
		t.Fatalf("expected sorted roster, got %v", listed)
	}
}

func TestReplaceSwapsWholeRoster(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newTestDB(t))

	if _, err := svc.Replace(ctx, "exam-1", []string{"s1", "s2"}, "teacher-1"); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if _, err := svc.Replace(ctx, "exam-1", []string{"s3"}, "teacher-1"); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	listed, err := svc.AssignedStudents(ctx, "exam-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(listed, []string{"s3"}) {
		t.Fatalf("expected roster fully replaced, got %v", listed)
	}

	assigned, err := svc.IsAssigned(ctx, "exam-1", "s1")
	if err != nil {
		t.Fatalf("is assigned: %v", err)
	}
	if assigned {
		t.Fatalf("expected s1 dropped from roster")
	}
}

func TestReplaceLeavesOtherExamsAlone(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newTestDB(t))

	if _, err := svc.Replace(ctx, "exam-1", []string{"s1"}, "teacher-1"); err != nil {
		t.Fatalf("replace exam-1: %v", err)
	}
	if _, err := svc.Replace(ctx, "exam-2", []string{"s2"}, "teacher-1"); err != nil {
		t.Fatalf("replace exam-2: %v", err)
	}
	if _, err := svc.Replace(ctx, "exam-1", nil, "teacher-1"); err != nil {
		t.Fatalf("clear exam-1: %v", err)
	}

	other, err := svc.AssignedStudents(ctx, "exam-2")
	if err != nil {
		t.Fatalf("list exam-2: %v", err)
	}
	if !reflect.DeepEqual(other, []string{"s2"}) {
		t.Fatalf("exam-2 roster disturbed: %v", other)
	}
}

func TestIsAssigned(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newTestDB(t))

	if _, err := svc.Replace(ctx, "exam-1", []string{"s1"}, "teacher-1"); err != nil {
		t.Fatalf("replace: %v", err)
	}

	ok, err := svc.IsAssigned(ctx, "exam-1", "s1")
	if err != nil || !ok {
		t.Fatalf("expected s1 assigned, got ok=%v err=%v", ok, err)
	}
	ok, err = svc.IsAssigned(ctx, "exam-1", "s2")
	if err != nil || ok {
		t.Fatalf("expected s2 not assigned, got ok=%v err=%v", ok, err)
	}
}
