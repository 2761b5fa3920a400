// Package roster is the engine-side adapter for the class/roster
// collaborator. The exam engine only asks membership questions; the roster
// data itself is maintained by teachers through the replace endpoint.
package roster

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type Service struct {
	db    *sql.DB
	nowFn func() time.Time
}

func NewService(conn *sql.DB) *Service {
	return &Service{db: conn, nowFn: time.Now}
}

func (s *Service) IsAssigned(ctx context.Context, examID, studentID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM exam_assignments
		WHERE exam_id = $1 AND student_id = $2
	`, examID, studentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return exists > 0, nil
}

func (s *Service) AssignedStudents(ctx context.Context, examID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id FROM exam_assignments
		WHERE exam_id = $1
		ORDER BY student_id
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan assignment row: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return out, nil
}

// Replace swaps the full assignment list for an exam. Duplicate and blank
// ids in the input are dropped.
func (s *Service) Replace(ctx context.Context, examID string, studentIDs []string, assignedBy string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM exam_assignments WHERE exam_id = $1`, examID); err != nil {
		return nil, fmt.Errorf("clear assignments: %w", err)
	}

	now := s.nowFn().Unix()
	seen := make(map[string]struct{}, len(studentIDs))
	kept := make([]string, 0, len(studentIDs))
	for _, id := range studentIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO exam_assignments (exam_id, student_id, assigned_by, assigned_at)
			VALUES ($1, $2, $3, $4)
		`, examID, id, assignedBy, now); err != nil {
			return nil, fmt.Errorf("insert assignment: %w", err)
		}
		kept = append(kept, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace: %w", err)
	}
	return kept, nil
}
