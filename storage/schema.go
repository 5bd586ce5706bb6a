package storage

// Segment schema. Timestamps are stored as microseconds since the Unix
// epoch; NULL columns mean the message never parsed far enough to fill
// them. The Connection recent_msg_id_* columns are forward pointers to the
// rows a restarting gateway needs to replay sensor state.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS Version (
	id INTEGER PRIMARY KEY,
	variant TEXT NOT NULL,
	version INTEGER NOT NULL,
	conversion_enabled INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS RolloverFilename (
	id INTEGER PRIMARY KEY,
	relative_filepath TEXT NOT NULL,
	absolute_filepath TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS Connection (
	id INTEGER PRIMARY KEY,
	client_type TEXT NOT NULL,
	peer TEXT NOT NULL,
	connect_time INTEGER NOT NULL,
	disconnect_time INTEGER,
	disconnect_reason TEXT,
	recent_msg_id_registration INTEGER,
	recent_msg_id_status_new INTEGER,
	recent_msg_id_status_unchanged INTEGER,
	recent_msg_id_detection INTEGER
);

CREATE TABLE IF NOT EXISTS Message (
	id INTEGER PRIMARY KEY,
	connection_id INTEGER NOT NULL REFERENCES Connection(id),
	timestamp_received INTEGER NOT NULL,
	timestamp_decoded INTEGER,
	timestamp_saved INTEGER,
	sapient_version TEXT,
	xml TEXT,
	proto BLOB,
	json TEXT,
	forwarded_count INTEGER NOT NULL,
	parsed_type TEXT,
	parsed_node_id TEXT,
	parsed_timestamp INTEGER,
	registration_node_type TEXT,
	status_report_system TEXT,
	status_report_is_unchanged INTEGER,
	error_severity TEXT,
	error_description TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS index_message_connection_id
	ON Message (connection_id, id);
CREATE INDEX IF NOT EXISTS index_message_connection_type
	ON Message (connection_id, parsed_type, id);
CREATE INDEX IF NOT EXISTS index_message_error_connection_type
	ON Message (connection_id, parsed_type, id)
	WHERE error_severity IS NOT NULL;
`

// Audit writes favor throughput over durability; a crash loses at most the
// tail of the segment, which the live gateway can regenerate.
const pragmaDDL = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = OFF;
PRAGMA mmap_size = 1000000000;
`
