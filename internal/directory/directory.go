package directory

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bookinghub/interpreter-assignment/internal/domain"
)

// Store reads interpreter profiles from the employee directory. The engine
// only observes activity, the INTERPRETER role link, languages, and
// environment membership; directory CRUD lives outside the core.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a directory store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type profileRow struct {
	EmpCode  string `db:"emp_code"`
	IsActive bool   `db:"is_active"`
	DeptPath string `db:"dept_path"`
}

// ActiveInterpreters returns every active employee holding the INTERPRETER
// role, with languages attached.
func (s *Store) ActiveInterpreters(ctx context.Context) ([]domain.InterpreterProfile, error) {
	var rows []profileRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT e.emp_code, e.is_active, e.dept_path
		FROM employees e
		JOIN employee_roles r ON r.emp_code = e.emp_code AND r.role = 'INTERPRETER'
		WHERE e.is_active = TRUE
		ORDER BY e.emp_code
	`)
	if err != nil {
		return nil, fmt.Errorf("active interpreters query: %w", err)
	}
	return s.attachLanguages(ctx, rows)
}

// ActiveInterpretersInEnvironment restricts the scope to one environment's
// interpreter membership.
func (s *Store) ActiveInterpretersInEnvironment(ctx context.Context, envID int64) ([]domain.InterpreterProfile, error) {
	var rows []profileRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT e.emp_code, e.is_active, e.dept_path
		FROM employees e
		JOIN employee_roles r ON r.emp_code = e.emp_code AND r.role = 'INTERPRETER'
		JOIN environment_interpreters ei ON ei.emp_code = e.emp_code
		WHERE e.is_active = TRUE AND ei.environment_id = $1
		ORDER BY e.emp_code
	`, envID)
	if err != nil {
		return nil, fmt.Errorf("environment interpreters query: %w", err)
	}
	return s.attachLanguages(ctx, rows)
}

// IsActiveInterpreter reports whether empCode is an active INTERPRETER and,
// when envID is set, a member of that environment.
func (s *Store) IsActiveInterpreter(ctx context.Context, empCode string, envID *int64) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM employees e
		JOIN employee_roles r ON r.emp_code = e.emp_code AND r.role = 'INTERPRETER'
		WHERE e.is_active = TRUE AND e.emp_code = $1
	`
	args := []interface{}{empCode}
	if envID != nil {
		query += ` AND EXISTS (
			SELECT 1 FROM environment_interpreters ei
			WHERE ei.emp_code = e.emp_code AND ei.environment_id = $2
		)`
		args = append(args, *envID)
	}

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return false, fmt.Errorf("interpreter membership query: %w", err)
	}
	return count > 0, nil
}

type languageRow struct {
	EmpCode      string `db:"emp_code"`
	LanguageCode string `db:"language_code"`
}

func (s *Store) attachLanguages(ctx context.Context, rows []profileRow) ([]domain.InterpreterProfile, error) {
	profiles := make([]domain.InterpreterProfile, 0, len(rows))
	byCode := make(map[string]int, len(rows))
	for i, r := range rows {
		profiles = append(profiles, domain.InterpreterProfile{
			EmpCode:  r.EmpCode,
			IsActive: r.IsActive,
			DeptPath: r.DeptPath,
		})
		byCode[r.EmpCode] = i
	}
	if len(profiles) == 0 {
		return profiles, nil
	}

	var langs []languageRow
	err := s.db.SelectContext(ctx, &langs, `
		SELECT il.emp_code, il.language_code
		FROM interpreter_languages il
		JOIN employees e ON e.emp_code = il.emp_code
		WHERE e.is_active = TRUE
	`)
	if err != nil {
		return nil, fmt.Errorf("interpreter languages query: %w", err)
	}
	for _, l := range langs {
		if i, ok := byCode[l.EmpCode]; ok {
			profiles[i].Languages = append(profiles[i].Languages, l.LanguageCode)
		}
	}
	return profiles, nil
}
