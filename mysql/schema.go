package mysql

import "fmt"

const queueSchemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BINARY(16) NOT NULL,
	queue VARCHAR(64) NOT NULL,
	tag VARCHAR(64) NOT NULL,
	payload BLOB NOT NULL,
	lease_id BINARY(16) NULL,
	lease_until TIMESTAMP(6) NULL,
	lease_count INT NOT NULL DEFAULT 0,
	created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	PRIMARY KEY (id),
	INDEX idx_queue_tag_lease (queue, tag, lease_until),
	INDEX idx_lease (lease_id)
);`

const taskSchemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BINARY(16) NOT NULL,
	queue VARCHAR(64) NOT NULL,
	action VARCHAR(255) NOT NULL,
	service VARCHAR(64) NOT NULL,
	params JSON NOT NULL,
	run_at TIMESTAMP(6) NOT NULL,
	created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	dispatched_at TIMESTAMP(6) NULL,
	PRIMARY KEY (id),
	INDEX idx_queue_due (queue, dispatched_at, run_at),
	INDEX idx_dispatched (dispatched_at)
);`

// Schema returns the queue table definition.
func Schema(table string) (string, error) {
	return buildSchema(queueSchemaTemplate, table)
}

// TaskSchema returns the verify task table definition.
func TaskSchema(table string) (string, error) {
	return buildSchema(taskSchemaTemplate, table)
}

func buildSchema(template, table string) (string, error) {
	name, err := quoteTableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(template, name), nil
}
