package user

type PostgresRepository struct {
	repository
}

func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{repository{q: queries{
		create: `
			INSERT INTO users (
				username, password, created_at
			)
			VALUES ($1, $2, $3)
			ON CONFLICT (username) DO NOTHING
			RETURNING id
		`,
		getByUsername: `
			SELECT id, username, password, created_at
			FROM users
			WHERE username = $1
		`,
		list: `
			SELECT id, username, created_at
			FROM users
			ORDER BY id
		`,
		count: `SELECT COUNT(*) FROM users`,
	}}}
}
