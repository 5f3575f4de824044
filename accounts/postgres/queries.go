package postgres

const (
	_SQL_GET_ACCOUNT = `
		SELECT username, password_hash, home, disabled, created_at, updated_at
		FROM accounts
		WHERE username = $1`

	_SQL_CREATE_ACCOUNT = `
		INSERT INTO accounts (username, password_hash, home, disabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_SQL_UPDATE_ACCOUNT = `
		UPDATE accounts
		SET password_hash = $1, home = $2, disabled = $3, updated_at = $4
		WHERE username = $5`

	_SQL_DELETE_ACCOUNT = `
		DELETE FROM accounts
		WHERE username = $1`

	_SQL_LIST_ACCOUNTS = `
		SELECT username, password_hash, home, disabled, created_at, updated_at
		FROM accounts
		ORDER BY username ASC`
)
