package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- HARVEST JOBS
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS harvest_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS source ON harvest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON harvest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS created_by ON harvest_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS total ON harvest_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS progress ON harvest_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS stats ON harvest_job TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS error ON harvest_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS started_at ON harvest_job TYPE datetime;
    DEFINE FIELD IF NOT EXISTS completed_at ON harvest_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS harvest_job_source ON harvest_job FIELDS source;
    DEFINE INDEX IF NOT EXISTS harvest_job_started ON harvest_job FIELDS started_at;

    -- ==========================================================================
    -- HARVEST OBJECTS (one queued dataset record per job)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS harvest_object SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS guid ON harvest_object TYPE string;
    DEFINE FIELD IF NOT EXISTS job_id ON harvest_object TYPE string;
    DEFINE FIELD IF NOT EXISTS source ON harvest_object TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON harvest_object TYPE string;
    DEFINE FIELD IF NOT EXISTS current ON harvest_object TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS package_id ON harvest_object TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS outcome ON harvest_object TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON harvest_object TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS harvest_object_guid ON harvest_object FIELDS guid, current;
    DEFINE INDEX IF NOT EXISTS harvest_object_job ON harvest_object FIELDS job_id;

    -- ==========================================================================
    -- HARVEST ERRORS (gather errors and object errors)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS harvest_error SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS job_id ON harvest_error TYPE string;
    DEFINE FIELD IF NOT EXISTS object_id ON harvest_error TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS stage ON harvest_error TYPE string;
    DEFINE FIELD IF NOT EXISTS message ON harvest_error TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON harvest_error TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS harvest_error_job ON harvest_error FIELDS job_id;
`
