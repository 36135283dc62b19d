package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/warp/storeops-engine/generic"
	"github.com/warp/storeops-engine/incentive"
)

// =============================================================================
// WORKER POINTS
// =============================================================================

const workerColumns = `employee_id, employee_name, site_id, role, total_points, today_points,
	weekly_points, monthly_points, current_streak, longest_streak, average_accuracy,
	average_time_per_job, total_jobs_completed, achievements_json`

// SaveWorker upserts a worker's points snapshot.
func (s *Store) SaveWorker(ctx context.Context, w incentive.WorkerPoints) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	achievements, err := json.Marshal(w.Achievements)
	if err != nil {
		return fmt.Errorf("failed to encode achievements: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO worker_points (`+workerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id) DO UPDATE SET
			employee_name = excluded.employee_name,
			site_id = excluded.site_id,
			role = excluded.role,
			total_points = excluded.total_points,
			today_points = excluded.today_points,
			weekly_points = excluded.weekly_points,
			monthly_points = excluded.monthly_points,
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			average_accuracy = excluded.average_accuracy,
			average_time_per_job = excluded.average_time_per_job,
			total_jobs_completed = excluded.total_jobs_completed,
			achievements_json = excluded.achievements_json`,
		w.EmployeeID, w.EmployeeName, w.SiteID, nullString(w.Role),
		w.TotalPoints.String(), w.TodayPoints.String(), w.WeeklyPoints.String(), w.MonthlyPoints.String(),
		w.CurrentStreak, w.LongestStreak, w.AverageAccuracy.String(), w.AverageTimePerJob.String(),
		w.TotalJobsCompleted, string(achievements),
	)
	if err != nil {
		return fmt.Errorf("failed to save worker: %w", err)
	}
	return nil
}

// Worker returns one worker's points.
func (s *Store) Worker(ctx context.Context, employeeID string) (incentive.WorkerPoints, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workerColumns+` FROM worker_points WHERE employee_id = ?`, employeeID)
	if err != nil {
		return incentive.WorkerPoints{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return incentive.WorkerPoints{}, err
		}
		return incentive.WorkerPoints{}, &generic.NotFoundError{Kind: "worker", Key: employeeID}
	}
	return scanWorker(rows)
}

// Workers returns every worker at siteID, or all workers when siteID is
// empty, in insertion order.
func (s *Store) Workers(ctx context.Context, siteID string) ([]incentive.WorkerPoints, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + workerColumns + ` FROM worker_points`
	var args []any
	if siteID != "" {
		query += ` WHERE site_id = ?`
		args = append(args, siteID)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workers: %w", err)
	}
	defer rows.Close()

	var out []incentive.WorkerPoints
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// SitePoints sums metric across every worker at siteID into TotalPoints.
// It feeds the store bonus tiers.
func (s *Store) SitePoints(ctx context.Context, siteID string, metric incentive.Metric) (incentive.WorkerPoints, error) {
	workers, err := s.Workers(ctx, siteID)
	if err != nil {
		return incentive.WorkerPoints{}, err
	}
	total := incentive.WorkerPoints{EmployeeID: siteID, SiteID: siteID}
	for _, w := range workers {
		v := w.Value(metric)
		total.TotalPoints = total.TotalPoints.Add(v)
	}
	return total, nil
}

func scanWorker(rows *sql.Rows) (incentive.WorkerPoints, error) {
	var (
		w                             incentive.WorkerPoints
		role, achievements            sql.NullString
		total, today, weekly, monthly string
		accuracy, timePerJob          string
	)
	err := rows.Scan(&w.EmployeeID, &w.EmployeeName, &w.SiteID, &role, &total, &today, &weekly, &monthly,
		&w.CurrentStreak, &w.LongestStreak, &accuracy, &timePerJob, &w.TotalJobsCompleted, &achievements)
	if err != nil {
		return w, fmt.Errorf("failed to scan worker: %w", err)
	}
	w.Role = role.String
	w.TotalPoints = parseDecimal(total)
	w.TodayPoints = parseDecimal(today)
	w.WeeklyPoints = parseDecimal(weekly)
	w.MonthlyPoints = parseDecimal(monthly)
	w.AverageAccuracy = parseDecimal(accuracy)
	w.AverageTimePerJob = parseDecimal(timePerJob)
	if achievements.Valid && achievements.String != "" && achievements.String != "null" {
		_ = json.Unmarshal([]byte(achievements.String), &w.Achievements)
	}
	return w, nil
}

// =============================================================================
// PROGRAMS
// =============================================================================

// ProgramRecord is a stored incentive program with its JSON config.
type ProgramRecord struct {
	Name       string
	ConfigJSON string
	Version    int
}

// SaveProgram upserts a program, bumping its version.
func (s *Store) SaveProgram(ctx context.Context, name, configJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO programs (name, config_json, version, updated_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(name) DO UPDATE SET
			config_json = excluded.config_json,
			version = programs.version + 1,
			updated_at = excluded.updated_at`,
		name, configJSON, formatTime(s.now()))
	return err
}

// Program returns a stored program, or NotFoundError.
func (s *Store) Program(ctx context.Context, name string) (ProgramRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p ProgramRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT name, config_json, version FROM programs WHERE name = ?`, name).
		Scan(&p.Name, &p.ConfigJSON, &p.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return p, &generic.NotFoundError{Kind: "program", Key: name}
	}
	return p, err
}
