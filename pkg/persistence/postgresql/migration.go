package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_definitions (
				id UUID PRIMARY KEY,
				code VARCHAR(255) NOT NULL UNIQUE,
				name VARCHAR(255) NOT NULL,
				model_name VARCHAR(255) NOT NULL,
				states JSONB NOT NULL,
				default_state VARCHAR(255) NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT true,
				description TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_definitions_model_name ON workflow_definitions(model_name);

			CREATE TABLE workflow_transitions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflow_definitions(id) ON DELETE CASCADE,
				code VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				from_state VARCHAR(255) NOT NULL,
				to_state VARCHAR(255) NOT NULL,
				guard JSONB NOT NULL DEFAULT '{}',
				action_id VARCHAR(255) NOT NULL DEFAULT '',
				action_code VARCHAR(255) NOT NULL DEFAULT '',
				inline_code TEXT NOT NULL DEFAULT '',
				ui JSONB NOT NULL DEFAULT '{}',
				sequence INT NOT NULL DEFAULT 0,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (workflow_id, code)
			);

			CREATE INDEX idx_workflow_transitions_from ON workflow_transitions(workflow_id, from_state);

			CREATE TABLE workflow_states (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflow_definitions(id) ON DELETE CASCADE,
				model_name VARCHAR(255) NOT NULL,
				record_id VARCHAR(255) NOT NULL,
				current_state VARCHAR(255) NOT NULL,
				previous_state VARCHAR(255) NOT NULL DEFAULT '',
				history JSONB NOT NULL DEFAULT '[]',
				last_transition_id VARCHAR(255) NOT NULL DEFAULT '',
				last_changed_by VARCHAR(255) NOT NULL DEFAULT '',
				last_changed_at TIMESTAMP WITH TIME ZONE,
				version BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (workflow_id, model_name, record_id)
			);

			CREATE INDEX idx_workflow_states_record ON workflow_states(model_name, record_id);
			CREATE INDEX idx_workflow_states_current ON workflow_states(workflow_id, current_state);

			CREATE TABLE workflow_activities (
				id UUID PRIMARY KEY,
				workflow_id UUID REFERENCES workflow_definitions(id) ON DELETE SET NULL,
				transition_id UUID REFERENCES workflow_transitions(id) ON DELETE SET NULL,
				transition_code VARCHAR(255) NOT NULL DEFAULT '',
				model_name VARCHAR(255) NOT NULL,
				record_id VARCHAR(255) NOT NULL,
				from_state VARCHAR(255) NOT NULL,
				to_state VARCHAR(255) NOT NULL,
				actor_id VARCHAR(255) NOT NULL DEFAULT '',
				actor_name VARCHAR(255) NOT NULL DEFAULT '',
				note TEXT NOT NULL DEFAULT '',
				context JSONB,
				is_automatic BOOLEAN NOT NULL DEFAULT false,
				action_error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_activities_record ON workflow_activities(model_name, record_id);
			CREATE INDEX idx_workflow_activities_created_at ON workflow_activities(created_at);
		`,
		2: `
			CREATE TABLE server_actions (
				id VARCHAR(255) PRIMARY KEY,
				code VARCHAR(255) NOT NULL UNIQUE,
				name VARCHAR(255) NOT NULL,
				model_name VARCHAR(255) NOT NULL DEFAULT '',
				sequence INT NOT NULL DEFAULT 0,
				active BOOLEAN NOT NULL DEFAULT true,
				kind VARCHAR(50) NOT NULL,
				spec JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE automation_rules (
				id UUID PRIMARY KEY,
				code VARCHAR(255) NOT NULL UNIQUE,
				name VARCHAR(255) NOT NULL,
				model_name VARCHAR(255) NOT NULL,
				trigger VARCHAR(50) NOT NULL
					CHECK (trigger IN ('on_create', 'on_write', 'on_delete', 'on_time', 'manual')),
				domain JSONB,
				before_domain JSONB,
				time_field VARCHAR(255) NOT NULL DEFAULT '',
				time_delta INT NOT NULL DEFAULT 0,
				last_run TIMESTAMP WITH TIME ZONE,
				action_id VARCHAR(255) NOT NULL DEFAULT '',
				action_code VARCHAR(255) NOT NULL DEFAULT '',
				inline_code TEXT NOT NULL DEFAULT '',
				sequence INT NOT NULL DEFAULT 0,
				active BOOLEAN NOT NULL DEFAULT true,
				max_records_per_run INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_automation_rules_model_trigger ON automation_rules(model_name, trigger) WHERE active;
		`,
	}
}
