package storage

const ddlSchemaVersion = `
CREATE TABLE IF NOT EXISTS schema_version (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL
);`

// dropStatements removes every table this package owns. Order matters:
// children before parents, so foreign-key-unaware drops never leave an
// orphaned dependent table behind mid-recreate.
var dropStatements = []string{
	`DROP TABLE IF EXISTS buffer_context`,
	`DROP TABLE IF EXISTS log_entries`,
	`DROP TABLE IF EXISTS spindump_threads`,
	`DROP TABLE IF EXISTS spindump_processes`,
	`DROP TABLE IF EXISTS forensic_captures`,
	`DROP TABLE IF EXISTS process_snapshots`,
	`DROP TABLE IF EXISTS process_events`,
	`DROP TABLE IF EXISTS daemon_state`,
}

// createStatements rebuilds the full schema from scratch.
// process_snapshots mirrors every MetricValue as current/low/high triples,
// plus the scalar scoring columns.
var createStatements = []string{
	`CREATE TABLE process_events (
		id               TEXT PRIMARY KEY,
		pid              INTEGER NOT NULL,
		command          TEXT NOT NULL,
		boot_time        REAL NOT NULL,
		entry_time       INTEGER NOT NULL,
		exit_time        INTEGER,
		entry_band       TEXT NOT NULL,
		peak_band        TEXT NOT NULL,
		peak_score       INTEGER NOT NULL,
		peak_snapshot_id TEXT
	)`,
	`CREATE INDEX idx_process_events_open ON process_events (pid, exit_time)`,
	`CREATE INDEX idx_process_events_exit_time ON process_events (exit_time)`,

	`CREATE TABLE process_snapshots (
		id                    TEXT PRIMARY KEY,
		event_id              TEXT NOT NULL REFERENCES process_events(id),
		snapshot_type         TEXT NOT NULL,
		captured_at           REAL NOT NULL,
		command               TEXT NOT NULL,

		cpu_current           REAL NOT NULL, cpu_low REAL NOT NULL, cpu_high REAL NOT NULL,
		mem_current           INTEGER NOT NULL, mem_low INTEGER NOT NULL, mem_high INTEGER NOT NULL,
		mem_peak              INTEGER NOT NULL,
		pageins               INTEGER NOT NULL, pageins_rate REAL NOT NULL,
		faults                INTEGER NOT NULL, faults_rate REAL NOT NULL,
		disk_io_current       INTEGER NOT NULL, disk_io_low INTEGER NOT NULL, disk_io_high INTEGER NOT NULL,
		disk_io_rate          REAL NOT NULL,
		csw                   INTEGER NOT NULL, csw_rate REAL NOT NULL,
		syscalls              INTEGER NOT NULL, syscalls_rate REAL NOT NULL,
		threads               INTEGER NOT NULL,
		mach_msgs             INTEGER NOT NULL, mach_msgs_rate REAL NOT NULL,
		instructions          INTEGER NOT NULL, cycles INTEGER NOT NULL, ipc REAL NOT NULL,
		energy                INTEGER NOT NULL, energy_rate REAL NOT NULL,
		wakeups               INTEGER NOT NULL, wakeups_rate REAL NOT NULL,
		runnable_time         INTEGER NOT NULL, runnable_time_rate REAL NOT NULL,
		qos_interactive       INTEGER NOT NULL, qos_interactive_rate REAL NOT NULL,
		state_current         TEXT NOT NULL, state_low TEXT NOT NULL, state_high TEXT NOT NULL,
		priority_current      INTEGER NOT NULL, priority_low INTEGER NOT NULL, priority_high INTEGER NOT NULL,

		score                 INTEGER NOT NULL,
		band_current          TEXT NOT NULL, band_low TEXT NOT NULL, band_high TEXT NOT NULL,
		cpu_share             REAL NOT NULL, gpu_share REAL NOT NULL, mem_share REAL NOT NULL,
		disk_share            REAL NOT NULL, wakeups_share REAL NOT NULL,
		disproportionality    REAL NOT NULL,
		dominant_resource     TEXT NOT NULL
	)`,
	`CREATE INDEX idx_process_snapshots_event ON process_snapshots (event_id)`,

	`CREATE TABLE forensic_captures (
		id                TEXT PRIMARY KEY,
		event_id          TEXT NOT NULL REFERENCES process_events(id),
		captured_at       INTEGER NOT NULL,
		trigger           TEXT NOT NULL,
		tailspin_status   TEXT NOT NULL,
		logs_status       TEXT NOT NULL
	)`,
	`CREATE INDEX idx_forensic_captures_event ON forensic_captures (event_id)`,

	`CREATE TABLE spindump_processes (
		id             TEXT PRIMARY KEY,
		capture_id     TEXT NOT NULL REFERENCES forensic_captures(id),
		pid            INTEGER NOT NULL,
		name           TEXT NOT NULL,
		path           TEXT,
		parent_pid     INTEGER,
		parent_name    TEXT,
		footprint_mb   REAL,
		cpu_time_sec   REAL,
		thread_count   INTEGER
	)`,
	`CREATE INDEX idx_spindump_processes_capture ON spindump_processes (capture_id)`,

	`CREATE TABLE spindump_threads (
		id            TEXT PRIMARY KEY,
		process_id    TEXT NOT NULL REFERENCES spindump_processes(id),
		thread_id     TEXT NOT NULL,
		thread_name   TEXT,
		sample_count  INTEGER,
		priority      INTEGER,
		cpu_time_sec  REAL,
		state         TEXT,
		blocked_on    TEXT
	)`,
	`CREATE INDEX idx_spindump_threads_process ON spindump_threads (process_id)`,

	`CREATE TABLE log_entries (
		id              TEXT PRIMARY KEY,
		capture_id      TEXT NOT NULL REFERENCES forensic_captures(id),
		timestamp       INTEGER NOT NULL,
		mach_timestamp  INTEGER,
		subsystem       TEXT,
		category        TEXT,
		process_name    TEXT,
		process_id      INTEGER,
		message_type    TEXT,
		event_message   TEXT
	)`,
	`CREATE INDEX idx_log_entries_capture ON log_entries (capture_id)`,

	`CREATE TABLE buffer_context (
		id            TEXT PRIMARY KEY,
		capture_id    TEXT NOT NULL REFERENCES forensic_captures(id),
		sample_count  INTEGER NOT NULL,
		peak_score    INTEGER NOT NULL,
		culprits      TEXT NOT NULL
	)`,

	`CREATE TABLE daemon_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}
