package catalog

// Tables in a catalog artifact. Only entries is required.
const (
	TableEntries    = "entries"
	TableCategories = "categories"
	TableMetadata   = "metadata"
)

// Schema creates the artifact tables. rating and year are declared without a
// type so numbers and strings keep their source form.
const Schema = `
CREATE TABLE entries (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    title         TEXT NOT NULL,
    description   TEXT,
    main_category TEXT,
    sub_category  TEXT,
    country       TEXT,
    poster        TEXT,
    thumbnail     TEXT,
    rating,
    duration      TEXT,
    year,
    servers_json  TEXT,
    seasons_json  TEXT,
    related_json  TEXT
);
CREATE INDEX idx_entries_title ON entries(title);
CREATE INDEX idx_entries_main_category ON entries(main_category);

CREATE TABLE categories (
    main_category  TEXT PRIMARY KEY,
    sub_categories TEXT
);

CREATE TABLE metadata (
    last_updated  TEXT,
    source_url    TEXT,
    total_entries INTEGER,
    version       TEXT
);
`

// lightColumns is the scalar display projection. It must never include
// description or the *_json payload columns.
const lightColumns = `id, title, sub_category, country, poster, thumbnail, rating, duration, year, main_category`

const fullColumns = lightColumns + `, description, servers_json, seasons_json, related_json`
