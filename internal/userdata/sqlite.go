package userdata

type SQLiteRepository struct {
	repository
}

func NewSQLiteRepository() *SQLiteRepository {
	return &SQLiteRepository{repository{q: queries{
		get: `
			SELECT user_id, key, value, updated_at
			FROM user_data
			WHERE user_id = ? AND key = ?
		`,
		upsert: `
			INSERT INTO user_data (user_id, key, value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, key) DO UPDATE
			SET value = excluded.value, updated_at = excluded.updated_at
		`,
		listByUser: `
			SELECT user_id, key, value, updated_at
			FROM user_data
			WHERE user_id = ?
			ORDER BY key
		`,
		count: `SELECT COUNT(*) FROM user_data`,
	}}}
}
