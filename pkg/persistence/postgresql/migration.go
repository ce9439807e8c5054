package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Core action queue table
			CREATE TABLE actions (
				id UUID PRIMARY KEY,
				kind VARCHAR(50) NOT NULL,
				state VARCHAR(50) NOT NULL CHECK (state IN (
					'draft', 'pending_review', 'approved', 'applied',
					'audited', 'learned', 'rejected'
				)),
				draft TEXT NOT NULL,
				agent VARCHAR(255),
				evidence JSONB NOT NULL DEFAULT '{}',
				impact JSONB NOT NULL DEFAULT '{}',
				risk JSONB NOT NULL DEFAULT '{}',
				rollback JSONB NOT NULL DEFAULT '{}',
				ranking_factors JSONB NOT NULL DEFAULT '{}',
				realized_roi JSONB,
				calls JSONB,
				receipts JSONB,
				approved_by VARCHAR(255),
				applied_by VARCHAR(255),
				version BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_actions_state ON actions(state);
			CREATE INDEX idx_actions_kind ON actions(kind);
			CREATE INDEX idx_actions_agent ON actions(agent);
			CREATE INDEX idx_actions_created_at ON actions(created_at);
			CREATE INDEX idx_actions_deleted_at ON actions(deleted_at);
		`,
		2: `
			-- Append-only approval decision ledger
			CREATE TABLE approval_decisions (
				id UUID PRIMARY KEY,
				action_id UUID NOT NULL REFERENCES actions(id),
				event VARCHAR(50) NOT NULL,
				from_state VARCHAR(50) NOT NULL,
				to_state VARCHAR(50) NOT NULL,
				actor VARCHAR(255),
				reason TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_approval_decisions_action_id ON approval_decisions(action_id);
			CREATE INDEX idx_approval_decisions_created_at ON approval_decisions(created_at);
		`,
	}
}
