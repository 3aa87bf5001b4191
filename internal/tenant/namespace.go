package tenant

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Table is one of the tables provisioned inside every tenant schema.
type Table string

const (
	TableAudios       Table = "audios"
	TableTranscripts  Table = "transcripts"
	TableChats        Table = "chats"
	TableChatMessages Table = "chat_messages"
	TableNoteVectors  Table = "note_vectors"
)

var tables = map[Table]struct{}{
	TableAudios:       {},
	TableTranscripts:  {},
	TableChats:        {},
	TableChatMessages: {},
	TableNoteVectors:  {},
}

// Tables lists the tenant tables in creation order (parents before children).
func Tables() []Table {
	return []Table{TableAudios, TableTranscripts, TableChats, TableChatMessages, TableNoteVectors}
}

// Namespace is the schema of one tenant. It can only be obtained from a validated ID,
// which is what makes interpolating it into SQL text safe.
type Namespace struct {
	schema string
}

func (id ID) Namespace() Namespace {
	return Namespace{schema: id.String()}
}

// Name is the raw schema name, e.g. tenant_12.
func (n Namespace) Name() string {
	return n.schema
}

// Schema is the quoted schema identifier.
func (n Namespace) Schema() string {
	return pgx.Identifier{n.schema}.Sanitize()
}

// Role is the quoted identifier of the tenant's owner role.
func (n Namespace) Role() string {
	return pgx.Identifier{n.schema}.Sanitize()
}

// Table returns the schema-qualified, quoted table identifier.
func (n Namespace) Table(t Table) string {
	if _, ok := tables[t]; !ok {
		panic(fmt.Sprintf("tenant: table %q is not a tenant table", t))
	}
	return pgx.Identifier{n.schema, string(t)}.Sanitize()
}

// Relation is the unquoted schema.table name for gorm's Table, which splits on the dot
// and quotes each part itself.
func (n Namespace) Relation(t Table) string {
	if _, ok := tables[t]; !ok {
		panic(fmt.Sprintf("tenant: table %q is not a tenant table", t))
	}
	return n.schema + "." + string(t)
}

// Column qualifies a column with its tenant table, for joins.
func (n Namespace) Column(t Table, column string) string {
	return n.Table(t) + "." + pgx.Identifier{column}.Sanitize()
}
