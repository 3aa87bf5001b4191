package tenant

import "fmt"

// ManagementSchema is applied once per database by the migrate command.
const ManagementSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS public.tenants (
    tenant_id   BIGINT PRIMARY KEY,
    schema_name VARCHAR(64) NOT NULL UNIQUE,
    role_name   VARCHAR(64) NOT NULL UNIQUE,
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS public.archive_objects (
    bucket       VARCHAR(255) NOT NULL,
    object_key   TEXT NOT NULL,
    content_type VARCHAR(128) NOT NULL DEFAULT 'application/octet-stream',
    data         BYTEA NOT NULL,
    size         BIGINT NOT NULL,
    updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (bucket, object_key)
);
`

// SchemaStatements returns the DDL that brings a tenant namespace to its current shape.
// Every statement is idempotent.
func SchemaStatements(ns Namespace) []string {
	audios := ns.Table(TableAudios)
	transcripts := ns.Table(TableTranscripts)
	chats := ns.Table(TableChats)
	messages := ns.Table(TableChatMessages)
	vectors := ns.Table(TableNoteVectors)

	return []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, ns.Schema()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    audio_id    SERIAL PRIMARY KEY,
    audio_key   VARCHAR(64) NOT NULL UNIQUE,
    tenant_id   BIGINT NOT NULL,
    raw_uri     TEXT NOT NULL,
    audio_type  VARCHAR(8) NOT NULL CHECK (audio_type IN ('recorded', 'uploaded')),
    status      VARCHAR(16) NOT NULL DEFAULT 'RAW_UPLOADED',
    stage_error TEXT NULL,
    metadata    JSONB NULL,
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at  TIMESTAMP NULL
)`, audios),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    transcript_id SERIAL PRIMARY KEY,
    audio_key     VARCHAR(64) NOT NULL UNIQUE,
    raw_uri       TEXT NULL,
    transcription JSONB NULL,
    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    TIMESTAMP NULL
)`, transcripts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    chat_id    VARCHAR(255) PRIMARY KEY,
    title      VARCHAR(255) NOT NULL DEFAULT 'New Chat',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at TIMESTAMP NULL
)`, chats),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    message_id  SERIAL PRIMARY KEY,
    chat_id     VARCHAR(255) NOT NULL REFERENCES %s (chat_id),
    role        VARCHAR(10) NOT NULL CHECK (role IN ('user', 'assistant')),
    content     TEXT NOT NULL,
    source_refs JSONB NULL,
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, messages, chats),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    vector_id     SERIAL PRIMARY KEY,
    audio_key     VARCHAR(64) NOT NULL REFERENCES %s (audio_key),
    content_chunk TEXT NOT NULL,
    embedding     vector NOT NULL,
    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    TIMESTAMP NULL
)`, vectors, audios),
		// index names are schema-local
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS note_vectors_audio_key_idx ON %s (audio_key)`, vectors),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS chat_messages_chat_id_idx ON %s (chat_id, created_at)`, messages),
	}
}

// GrantStatements gives the tenant role access to its own namespace and nothing else.
func GrantStatements(ns Namespace) []string {
	return []string{
		fmt.Sprintf(`GRANT USAGE ON SCHEMA %s TO %s`, ns.Schema(), ns.Role()),
		fmt.Sprintf(`GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA %s TO %s`, ns.Schema(), ns.Role()),
		fmt.Sprintf(`GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA %s TO %s`, ns.Schema(), ns.Role()),
		fmt.Sprintf(`ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT SELECT, INSERT, UPDATE, DELETE ON TABLES TO %s`, ns.Schema(), ns.Role()),
		fmt.Sprintf(`ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT USAGE, SELECT ON SEQUENCES TO %s`, ns.Schema(), ns.Role()),
	}
}
