package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}

	if cfg.Port != "8080" || cfg.StorageDriver != StorageMemory || cfg.LockBackend != LockLocal || cfg.Notifier != NotifierLog {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Accrual.Period != 24*time.Hour {
		t.Fatalf("expected 24h period, got %s", cfg.Accrual.Period)
	}
	if !cfg.Accrual.ElevatedRate.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected elevated rate 12.50, got %s", cfg.Accrual.ElevatedRate)
	}
	if !cfg.Accrual.InitialBalance.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected initial balance 1.00, got %s", cfg.Accrual.InitialBalance)
	}
	if cfg.Withdrawal.RequireVerification {
		t.Fatalf("verification gate must default to off")
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"STORAGE_DRIVER": "postgres",
		"POSTGRES_DSN":   "postgres://localhost/accrual",
		"RATE_BASE":      "2.25",
		"ACCRUAL_PERIOD": "1h",
		"MIN_WITHDRAWAL": "10",
		"SMTP_TO":        "a@x,b@x",
	}))
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if !cfg.Accrual.BaseRate.Equal(decimal.RequireFromString("2.25")) || cfg.Accrual.Period != time.Hour {
		t.Fatalf("overrides not applied: %+v", cfg.Accrual)
	}
	if len(cfg.SMTP.To) != 2 {
		t.Fatalf("expected two recipients, got %v", cfg.SMTP.To)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "sqlite"}, "STORAGE_DRIVER"},
		{"postgres without dsn", map[string]string{"STORAGE_DRIVER": "postgres"}, "POSTGRES_DSN"},
		{"smtp without host", map[string]string{"NOTIFIER": "smtp"}, "SMTP_HOST"},
		{"production without secret", map[string]string{"ENV": "production"}, "JWT_SECRET"},
		{"negative rate", map[string]string{"RATE_WITHDRAWN": "-1"}, "RATE_WITHDRAWN"},
		{"zero period", map[string]string{"ACCRUAL_PERIOD": "0s"}, "ACCRUAL_PERIOD"},
		{"sub-millisecond period", map[string]string{"ACCRUAL_PERIOD": "1h500us"}, "ACCRUAL_PERIOD"},
		{"short redis lease", map[string]string{"LOCK_BACKEND": "redis", "REDIS_LOCK_TTL": "5s", "NOTIFY_TIMEOUT": "10s"}, "REDIS_LOCK_TTL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(context.Background(), envconfig.MapLookuper(tc.env))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}
