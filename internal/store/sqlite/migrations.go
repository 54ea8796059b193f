package sqlite

import "database/sql"

// schema creates the circulation tables. Timestamps are stored as unix
// seconds (UTC); loan and fine status values match internal/circ constants.
const schema = `
CREATE TABLE IF NOT EXISTS books (
    id TEXT PRIMARY KEY,
    isbn TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL,
    author TEXT NOT NULL DEFAULT '',
    total_copies INTEGER NOT NULL CHECK (total_copies >= 1),
    available_copies INTEGER NOT NULL CHECK (available_copies >= 0),
    active INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    CHECK (available_copies <= total_copies)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_books_isbn ON books(isbn) WHERE isbn <> '';

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL CHECK (role IN ('ADMIN','LIBRARIAN','STUDENT')),
    active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS loans (
    id TEXT PRIMARY KEY,
    book_id TEXT NOT NULL REFERENCES books(id),
    user_id TEXT NOT NULL REFERENCES users(id),
    borrow_date INTEGER NOT NULL,
    due_date INTEGER NOT NULL,
    return_date INTEGER,
    status TEXT NOT NULL CHECK (status IN ('BORROWED','RETURNED')),
    reissued INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_loans_user ON loans(user_id, status);
CREATE INDEX IF NOT EXISTS idx_loans_book ON loans(book_id, status);

CREATE TABLE IF NOT EXISTS fines (
    id TEXT PRIMARY KEY,
    loan_id TEXT NOT NULL UNIQUE REFERENCES loans(id),
    amount INTEGER NOT NULL CHECK (amount >= 0),
    status TEXT NOT NULL CHECK (status IN ('PENDING','PAID','WAIVED')),
    created_at INTEGER NOT NULL,
    paid_at INTEGER
);

CREATE TABLE IF NOT EXISTS notifications (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id),
    message TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    read INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);
`

// runMigrations executes the schema setup on startup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
