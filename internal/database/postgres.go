package database

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"
)

var PostgresDB *sql.DB

// ConnectPostgres connects to PostgreSQL database
func ConnectPostgres(postgresURI string) error {
	var err error

	PostgresDB, err = sql.Open("postgres", postgresURI)
	if err != nil {
		return err
	}

	// Set connection pool settings
	PostgresDB.SetMaxOpenConns(25)
	PostgresDB.SetMaxIdleConns(5)
	PostgresDB.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err = PostgresDB.Ping(); err != nil {
		return err
	}

	log.Println("✅ Connected to PostgreSQL")

	// Initialize tables
	if err = InitPostgresTables(); err != nil {
		return err
	}

	return nil
}

// InitPostgresTables creates all necessary tables if they don't exist.
// Message ids are generated by the application (snowflake), never by the
// database, so both message tables use plain BIGINT primary keys.
func InitPostgresTables() error {
	queries := []string{
		// Private (1:1) messages; read state lives on the row
		`CREATE TABLE IF NOT EXISTS private_message (
			id BIGINT PRIMARY KEY,
			send_id BIGINT NOT NULL,
			recv_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			type SMALLINT NOT NULL DEFAULT 0,
			status SMALLINT NOT NULL DEFAULT 0,
			send_time TIMESTAMPTZ NOT NULL
		)`,

		// Group messages; per-user read state is derived from the
		// read-position store, never persisted here
		`CREATE TABLE IF NOT EXISTS group_message (
			id BIGINT PRIMARY KEY,
			group_id BIGINT NOT NULL,
			send_id BIGINT NOT NULL,
			send_nick_name VARCHAR(255) NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			type SMALLINT NOT NULL DEFAULT 0,
			status SMALLINT NOT NULL DEFAULT 0,
			send_time TIMESTAMPTZ NOT NULL,
			at_user_ids TEXT NOT NULL DEFAULT ''
		)`,

		// Friend relations, maintained by the friend service
		`CREATE TABLE IF NOT EXISTS friend (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			friend_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(user_id, friend_id)
		)`,

		// Groups and memberships, maintained by the group service
		`CREATE TABLE IF NOT EXISTS im_group (
			id BIGINT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			owner_id BIGINT NOT NULL,
			deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS group_member (
			id BIGSERIAL PRIMARY KEY,
			group_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			nick_name VARCHAR(255) NOT NULL DEFAULT '',
			quit BOOLEAN NOT NULL DEFAULT FALSE,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(group_id, user_id)
		)`,

		// Create indexes for better performance
		`CREATE INDEX IF NOT EXISTS idx_private_message_recv_status ON private_message(recv_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_private_message_send_recv ON private_message(send_id, recv_id)`,
		`CREATE INDEX IF NOT EXISTS idx_private_message_send_time ON private_message(send_time)`,
		`CREATE INDEX IF NOT EXISTS idx_group_message_group_id ON group_message(group_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_group_message_send_time ON group_message(send_time)`,
		`CREATE INDEX IF NOT EXISTS idx_friend_user_id ON friend(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_group_member_group_id ON group_member(group_id)`,
		`CREATE INDEX IF NOT EXISTS idx_group_member_user_id ON group_member(user_id)`,
	}

	for _, query := range queries {
		if _, err := PostgresDB.Exec(query); err != nil {
			return err
		}
	}

	log.Println("✅ PostgreSQL tables initialized")
	return nil
}

// DisconnectPostgres closes the PostgreSQL connection
func DisconnectPostgres() error {
	if PostgresDB != nil {
		return PostgresDB.Close()
	}
	return nil
}
