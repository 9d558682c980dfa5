package secrets

// DefaultRules returns the detection rules applied to prompts and responses:
// model provider keys first, then source hosting tokens, then generic
// credential shapes that tend to appear in shell output.
func DefaultRules() []Rule {
	rules := providerRules()
	rules = append(rules, hostingRules()...)
	return append(rules, credentialRules()...)
}

func providerRules() []Rule {
	return []Rule{
		{ID: "anthropic-api-key", Description: "Anthropic API key", Pattern: `sk-ant-[A-Za-z0-9_\-]{20,}`, Severity: "high"},
		{ID: "openai-api-key", Description: "OpenAI API key", Pattern: `sk-(?:proj-)?[A-Za-z0-9]{40,}`, Severity: "high"},
		{ID: "google-api-key", Description: "Google API key", Pattern: `AIza[A-Za-z0-9_\-]{35}`, Severity: "high"},
		{
			ID:          "aws-access-key-id",
			Description: "AWS access key id",
			Pattern:     `(?:A3T[A-Z0-9]|AKIA|ASIA)[A-Z0-9]{16}`,
			Severity:    "high",
		},
		{
			ID:          "aws-secret-access-key",
			Description: "AWS secret access key",
			Pattern:     `(?i)(?:aws_secret_access_key|secret_access_key)\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`,
			Keywords:    []string{"aws", "secret"},
			Severity:    "high",
		},
	}
}

func hostingRules() []Rule {
	return []Rule{
		{ID: "github-token", Description: "GitHub token", Pattern: `gh[pousr]_[A-Za-z0-9]{36}`, Severity: "high"},
		{ID: "github-fine-grained", Description: "GitHub fine-grained token", Pattern: `github_pat_[A-Za-z0-9_]{22,}`, Severity: "high"},
		{ID: "gitlab-token", Description: "GitLab token", Pattern: `glpat-[A-Za-z0-9\-]{20,}`, Severity: "high"},
		{ID: "npm-token", Description: "npm token", Pattern: `npm_[A-Za-z0-9]{36}`, Severity: "high"},
		{ID: "slack-token", Description: "Slack token", Pattern: `xox[baprs]-[A-Za-z0-9\-]{10,}`, Severity: "high"},
	}
}

func credentialRules() []Rule {
	return []Rule{
		{
			ID:          "private-key",
			Description: "PEM private key header",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`,
			Severity:    "high",
		},
		{
			ID:          "generic-api-key",
			Description: "API key assignment",
			Pattern:     `(?i)(?:api[_-]?key|apikey)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}['"]?`,
			Keywords:    []string{"api"},
			Severity:    "high",
		},
		{
			ID:          "generic-secret",
			Description: "password or secret assignment",
			Pattern:     `(?i)(?:secret|password|passwd|pwd)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
			Keywords:    []string{"secret", "password", "passwd", "pwd"},
			Severity:    "high",
		},
		{
			ID:          "bearer-token",
			Description: "bearer token",
			Pattern:     `(?i)bearer\s+[A-Za-z0-9_\-\.=]{20,}`,
			Keywords:    []string{"bearer"},
			Severity:    "medium",
		},
		{
			ID:          "database-url",
			Description: "connection URL with credentials",
			Pattern:     `(?i)(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^:\s]+:[^@\s]+@\S+`,
			Severity:    "high",
		},
		{
			ID:          "jwt",
			Description: "JSON web token",
			Pattern:     `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`,
			Severity:    "medium",
		},
		{
			ID:          "env-credential",
			Description: "credential environment variable",
			Pattern:     `(?i)(?:^|[^A-Za-z0-9_])(?:[A-Z0-9_]*_(?:PASSWORD|SECRET|TOKEN)|SECRET_KEY|PRIVATE_KEY|ENCRYPTION_KEY)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
			Severity:    "high",
		},
	}
}
