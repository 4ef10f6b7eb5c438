package user

type SQLiteRepository struct {
	repository
}

func NewSQLiteRepository() *SQLiteRepository {
	return &SQLiteRepository{repository{q: queries{
		create: `
			INSERT INTO users (
				username, password, created_at
			)
			VALUES (?, ?, ?)
			ON CONFLICT (username) DO NOTHING
			RETURNING id
		`,
		getByUsername: `
			SELECT id, username, password, created_at
			FROM users
			WHERE username = ?
		`,
		list: `
			SELECT id, username, created_at
			FROM users
			ORDER BY id
		`,
		count: `SELECT COUNT(*) FROM users`,
	}}}
}
