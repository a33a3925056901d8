// Package config содержит логику чтения конфигурации сервиса хастлхаб.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса хастлхаб.
type Config struct {
	RunAddress          string `env:"RUN_ADDRESS"`
	DatabaseURI         string `env:"DATABASE_URI"`
	AuthSecret          string `env:"AUTH_SECRET"`
	CommissionPercent   int64  `env:"COMMISSION_PERCENT"`
	CommissionDueDays   int    `env:"COMMISSION_DUE_DAYS"`
	CompletionXP        int64  `env:"COMPLETION_XP"`
	ReferralBonusPoints int64  `env:"REFERRAL_BONUS_POINTS"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных
// окружения. Значения из окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envAuthSecret := cfg.AuthSecret
	envCommissionPercent := cfg.CommissionPercent
	envCommissionDueDays := cfg.CommissionDueDays
	envCompletionXP := cfg.CompletionXP
	envReferralBonus := cfg.ReferralBonusPoints

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret key for auth token signing")
	flag.Int64Var(&cfg.CommissionPercent, "c", 20, "platform commission percentage")
	flag.IntVar(&cfg.CommissionDueDays, "w", 14, "days until a commission becomes overdue")
	flag.Int64Var(&cfg.CompletionXP, "x", 100, "XP granted to a freelancer per completed job")
	flag.Int64Var(&cfg.ReferralBonusPoints, "b", 100, "loyalty points credited for a successful referral")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	// Для числовых ключей валидным значением может быть и 0, поэтому
	// признак "задано" определяется по наличию переменной, а не по значению.
	if _, ok := os.LookupEnv("COMMISSION_PERCENT"); ok {
		cfg.CommissionPercent = envCommissionPercent
	}
	if _, ok := os.LookupEnv("COMMISSION_DUE_DAYS"); ok {
		cfg.CommissionDueDays = envCommissionDueDays
	}
	if _, ok := os.LookupEnv("COMPLETION_XP"); ok {
		cfg.CompletionXP = envCompletionXP
	}
	if _, ok := os.LookupEnv("REFERRAL_BONUS_POINTS"); ok {
		cfg.ReferralBonusPoints = envReferralBonus
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if cfg.CommissionPercent < 0 || cfg.CommissionPercent > 100 {
		return nil, fmt.Errorf("commission percent must be within [0, 100], got %d", cfg.CommissionPercent)
	}

	return cfg, nil
}
