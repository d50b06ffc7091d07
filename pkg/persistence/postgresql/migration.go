package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create automations table
			CREATE TABLE automations (
				id UUID PRIMARY KEY,
				owner VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				webhook_url TEXT NOT NULL DEFAULT '',
				webhook_method VARCHAR(10) NOT NULL DEFAULT 'POST',
				webhook_headers JSONB NOT NULL DEFAULT '{}',
				webhook_params JSONB NOT NULL DEFAULT '{}',
				schedule VARCHAR(255) NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_automations_owner ON automations(owner);
			CREATE INDEX idx_automations_is_active ON automations(is_active);
			CREATE INDEX idx_automations_created_at ON automations(created_at);

			-- Create automation_executions table
			CREATE TABLE automation_executions (
				id UUID PRIMARY KEY,
				automation_id UUID NOT NULL REFERENCES automations(id) ON DELETE CASCADE,
				status VARCHAR(20) NOT NULL CHECK (status IN ('running', 'success', 'error')),
				execution_data JSONB,
				error_message TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_automation_executions_automation_id ON automation_executions(automation_id);
			CREATE INDEX idx_automation_executions_status ON automation_executions(status);
			CREATE INDEX idx_automation_executions_created_at ON automation_executions(created_at);

			-- Create settings table. A NULL user_id means a global default,
			-- so uniqueness has to go through COALESCE.
			CREATE TABLE settings (
				id UUID PRIMARY KEY,
				user_id VARCHAR(255),
				category VARCHAR(255) NOT NULL,
				key VARCHAR(255) NOT NULL,
				value JSONB NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				is_public BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_settings_scope_key ON settings(COALESCE(user_id, ''), category, key);
			CREATE INDEX idx_settings_user_id ON settings(user_id);
			CREATE INDEX idx_settings_is_public ON settings(is_public);

			-- Create automation_settings link table
			CREATE TABLE automation_settings (
				id UUID PRIMARY KEY,
				automation_id UUID NOT NULL REFERENCES automations(id) ON DELETE CASCADE,
				setting_id UUID NOT NULL REFERENCES settings(id) ON DELETE CASCADE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE(automation_id, setting_id)
			);

			CREATE INDEX idx_automation_settings_automation_id ON automation_settings(automation_id);
			CREATE INDEX idx_automation_settings_setting_id ON automation_settings(setting_id);

			-- Create csv_imports table
			CREATE TABLE csv_imports (
				id UUID PRIMARY KEY,
				owner VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				filename VARCHAR(255) NOT NULL DEFAULT '',
				columns JSONB NOT NULL DEFAULT '[]',
				data JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE(owner, name)
			);

			CREATE INDEX idx_csv_imports_owner ON csv_imports(owner);
			CREATE INDEX idx_csv_imports_created_at ON csv_imports(created_at);
		`,
	}
}
