package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				trigger_type VARCHAR(50) NOT NULL,
				trigger_condition JSONB,
				recurrence VARCHAR(255) NOT NULL DEFAULT '',
				priority INT NOT NULL DEFAULT 0,
				max_executions INT NOT NULL DEFAULT 0,
				execution_count INT NOT NULL DEFAULT 0,
				last_execution TIMESTAMP WITH TIME ZONE,
				next_execution TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_next_execution ON workflows(next_execution);

			CREATE TABLE actions (
				id VARCHAR(64) PRIMARY KEY,
				workflow_id VARCHAR(64) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				sequence_order INT NOT NULL,
				type VARCHAR(50) NOT NULL,
				params JSONB,
				is_required BOOLEAN NOT NULL DEFAULT false,
				max_retries INT NOT NULL DEFAULT 0,
				retry_delay_seconds INT NOT NULL DEFAULT 0,
				timeout_seconds INT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_actions_workflow_id ON actions(workflow_id);
			CREATE UNIQUE INDEX idx_actions_workflow_sequence ON actions(workflow_id, sequence_order);

			CREATE TABLE executions (
				id VARCHAR(64) PRIMARY KEY,
				workflow_id VARCHAR(64) NOT NULL,
				status VARCHAR(50) NOT NULL,
				trigger_data JSONB,
				variables JSONB,
				next_action_index INT NOT NULL DEFAULT 0,
				resume_at TIMESTAMP WITH TIME ZONE,
				actions_completed INT NOT NULL DEFAULT 0,
				actions_failed INT NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status_resume_at ON executions(status, resume_at);

			CREATE TABLE action_executions (
				id VARCHAR(64) PRIMARY KEY,
				execution_id VARCHAR(64) NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				action_id VARCHAR(64) NOT NULL,
				status VARCHAR(50) NOT NULL,
				attempt_number INT NOT NULL DEFAULT 0,
				retry_count INT NOT NULL DEFAULT 0,
				result JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_action_executions_execution_id ON action_executions(execution_id);

			CREATE TABLE rules (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				condition JSONB NOT NULL,
				workflow_id VARCHAR(64) NOT NULL DEFAULT '',
				priority INT NOT NULL DEFAULT 0,
				active BOOLEAN NOT NULL DEFAULT true,
				valid_from TIMESTAMP WITH TIME ZONE,
				valid_until TIMESTAMP WITH TIME ZONE,
				execution_count INT NOT NULL DEFAULT 0,
				execution_limit INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_rules_active_priority ON rules(active, priority DESC);

			CREATE TABLE scheduled_messages (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				content TEXT NOT NULL,
				channel VARCHAR(50) NOT NULL,
				recipients JSONB NOT NULL,
				schedule_type VARCHAR(50) NOT NULL,
				recurrence VARCHAR(255) NOT NULL DEFAULT '',
				condition JSONB,
				variables JSONB,
				next_send TIMESTAMP WITH TIME ZONE,
				last_sent TIMESTAMP WITH TIME ZONE,
				status VARCHAR(50) NOT NULL,
				sent_count INT NOT NULL DEFAULT 0,
				max_sends INT NOT NULL DEFAULT 0,
				max_attempts INT NOT NULL DEFAULT 0,
				expires_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_scheduled_messages_status_next_send ON scheduled_messages(status, next_send);

			CREATE TABLE message_deliveries (
				id VARCHAR(64) PRIMARY KEY,
				message_id VARCHAR(64) NOT NULL REFERENCES scheduled_messages(id) ON DELETE CASCADE,
				recipient VARCHAR(255) NOT NULL,
				channel VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL,
				attempt_count INT NOT NULL DEFAULT 0,
				max_attempts INT NOT NULL DEFAULT 0,
				next_retry TIMESTAMP WITH TIME ZONE,
				last_error TEXT NOT NULL DEFAULT '',
				provider_message_id VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_message_deliveries_message_id ON message_deliveries(message_id);
			CREATE INDEX idx_message_deliveries_status_next_retry ON message_deliveries(status, next_retry);
		`,
	}
}
