package config

import "github.com/joho/godotenv"

// AuditConfig is what cmd/audit-consumer needs.  It shares .env with the
// server but requires none of the server's variables.
type AuditConfig struct {
	Env       string
	LogLevel  string
	RabbitURL string
	LogDir    string
}

// LoadAudit reads .env (if any) and the audit consumer's variables.
func LoadAudit() AuditConfig {
	_ = godotenv.Load()
	return AuditConfig{
		Env:       envStr("APP_ENV", "dev"),
		LogLevel:  envStr("LOG_LEVEL", ""),
		RabbitURL: envStr("RABBITMQ_URL", envStr("AMQP_URL", defaultAMQPURL)),
		LogDir:    envStr("AUDIT_LOG_DIR", "logs"),
	}
}
