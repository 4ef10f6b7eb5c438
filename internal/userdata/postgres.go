package userdata

type PostgresRepository struct {
	repository
}

func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{repository{q: queries{
		get: `
			SELECT user_id, key, value, updated_at
			FROM user_data
			WHERE user_id = $1 AND key = $2
		`,
		upsert: `
			INSERT INTO user_data (user_id, key, value, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, key) DO UPDATE
			SET value = excluded.value, updated_at = excluded.updated_at
		`,
		listByUser: `
			SELECT user_id, key, value, updated_at
			FROM user_data
			WHERE user_id = $1
			ORDER BY key
		`,
		count: `SELECT COUNT(*) FROM user_data`,
	}}}
}
