package storage

import "fmt"

// Prune deletes events whose exit_time is older than eventsDays, cascading
// to their snapshots, forensic captures, and captures' child rows. Open
// events (exit_time IS NULL) are never pruned.
func (s *Store) Prune(eventsDays int) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("storage: begin prune tx: %w", err)
	}
	defer tx.Rollback()

	horizon := fmt.Sprintf("-%d days", eventsDays)

	if _, err := tx.Exec(`DELETE FROM buffer_context WHERE capture_id IN (
		SELECT fc.id FROM forensic_captures fc
		JOIN process_events e ON e.id = fc.event_id
		WHERE e.exit_time IS NOT NULL AND e.exit_time < strftime('%s','now', ?))`, horizon); err != nil {
		return 0, fmt.Errorf("storage: prune buffer_context: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM log_entries WHERE capture_id IN (
		SELECT fc.id FROM forensic_captures fc
		JOIN process_events e ON e.id = fc.event_id
		WHERE e.exit_time IS NOT NULL AND e.exit_time < strftime('%s','now', ?))`, horizon); err != nil {
		return 0, fmt.Errorf("storage: prune log_entries: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM spindump_threads WHERE process_id IN (
		SELECT sp.id FROM spindump_processes sp
		JOIN forensic_captures fc ON fc.id = sp.capture_id
		JOIN process_events e ON e.id = fc.event_id
		WHERE e.exit_time IS NOT NULL AND e.exit_time < strftime('%s','now', ?))`, horizon); err != nil {
		return 0, fmt.Errorf("storage: prune spindump_threads: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM spindump_processes WHERE capture_id IN (
		SELECT fc.id FROM forensic_captures fc
		JOIN process_events e ON e.id = fc.event_id
		WHERE e.exit_time IS NOT NULL AND e.exit_time < strftime('%s','now', ?))`, horizon); err != nil {
		return 0, fmt.Errorf("storage: prune spindump_processes: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM forensic_captures WHERE event_id IN (
		SELECT id FROM process_events WHERE exit_time IS NOT NULL AND exit_time < strftime('%s','now', ?))`, horizon); err != nil {
		return 0, fmt.Errorf("storage: prune forensic_captures: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM process_snapshots WHERE event_id IN (
		SELECT id FROM process_events WHERE exit_time IS NOT NULL AND exit_time < strftime('%s','now', ?))`, horizon); err != nil {
		return 0, fmt.Errorf("storage: prune process_snapshots: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM process_events WHERE exit_time IS NOT NULL AND exit_time < strftime('%s','now', ?)`, horizon)
	if err != nil {
		return 0, fmt.Errorf("storage: prune process_events: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage: commit prune tx: %w", err)
	}
	return n, nil
}
