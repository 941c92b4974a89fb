package db

// SchemaSQL contains the database schema initialization SQL.
// Every statement is idempotent so InitSchema can run on each start.
const SchemaSQL = `
    -- ==========================================================================
    -- CONVERSATION TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS owner ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS model ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS language ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON conversation TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON conversation TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS conversation_owner ON conversation FIELDS owner;

    -- ==========================================================================
    -- MESSAGE TABLE
    -- ==========================================================================
    -- Messages are append-only; they are removed only with their conversation.
    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation ON message TYPE record<conversation>;
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS transcript ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS audio_url ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS is_user ON message TYPE bool;
    DEFINE FIELD IF NOT EXISTS latency_ms ON message TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS message_conversation ON message FIELDS conversation;

    -- ==========================================================================
    -- PERFORMANCE TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS performance SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS owner ON performance TYPE string;
    DEFINE FIELD IF NOT EXISTS model ON performance TYPE string;
    DEFINE FIELD IF NOT EXISTS language ON performance TYPE string;
    DEFINE FIELD IF NOT EXISTS latency_ms ON performance TYPE float;
    DEFINE FIELD IF NOT EXISTS quality_score ON performance TYPE float ASSERT $value >= 0 AND $value <= 5;
    DEFINE FIELD IF NOT EXISTS expressivity_score ON performance TYPE float ASSERT $value >= 0 AND $value <= 5;
    DEFINE FIELD IF NOT EXISTS created_at ON performance TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS performance_owner ON performance FIELDS owner;
    DEFINE INDEX IF NOT EXISTS performance_model ON performance FIELDS model;
`
