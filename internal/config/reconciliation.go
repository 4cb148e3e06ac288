package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ReconciliationConfig tunes shift reconciliation and payment application.
type ReconciliationConfig struct {
	// CashVarianceTolerance is the absolute variance still reported as balanced.
	CashVarianceTolerance string `mapstructure:"cashVarianceTolerance"`
	// PaymentApplyAttempts bounds optimistic retries when applying a payment to an invoice.
	PaymentApplyAttempts int `mapstructure:"paymentApplyAttempts"`
	// DefaultPaymentTerms is assigned to customers created without terms.
	DefaultPaymentTerms string `mapstructure:"defaultPaymentTerms"`
}

func DefaultReconciliationConfig() ReconciliationConfig {
	return ReconciliationConfig{
		CashVarianceTolerance: "0.50",
		PaymentApplyAttempts:  5,
		DefaultPaymentTerms:   "Net 30",
	}
}

// Tolerance returns CashVarianceTolerance as a decimal.
func (c ReconciliationConfig) Tolerance() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(c.CashVarianceTolerance))
	if err != nil {
		return decimal.Zero
	}
	return d.Abs()
}

type ReconciliationConfigHolder struct {
	current atomic.Value // holds ReconciliationConfig
}

// NewStaticReconciliationConfigHolder returns a holder that never reloads.
func NewStaticReconciliationConfigHolder(cfg ReconciliationConfig) *ReconciliationConfigHolder {
	holder := &ReconciliationConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewReconciliationConfigHolder() (*ReconciliationConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("reconciliation")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/fuelledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FUELLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReconciliationConfig()
	v.SetDefault("reconciliation.cashVarianceTolerance", defaults.CashVarianceTolerance)
	v.SetDefault("reconciliation.paymentApplyAttempts", defaults.PaymentApplyAttempts)
	v.SetDefault("reconciliation.defaultPaymentTerms", defaults.DefaultPaymentTerms)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg ReconciliationConfig
	if err := v.UnmarshalKey("reconciliation", &cfg); err != nil {
		return nil, err
	}
	if err := validateReconciliationConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticReconciliationConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReconciliationConfig
		if err := v.UnmarshalKey("reconciliation", &updated); err != nil {
			log.Printf("[reconciliation-config] reload failed: %v", err)
			return
		}
		if err := validateReconciliationConfig(updated); err != nil {
			log.Printf("[reconciliation-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[reconciliation-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *ReconciliationConfigHolder) Get() ReconciliationConfig {
	if h == nil {
		return DefaultReconciliationConfig()
	}
	return h.current.Load().(ReconciliationConfig)
}

func validateReconciliationConfig(cfg ReconciliationConfig) error {
	if _, err := decimal.NewFromString(strings.TrimSpace(cfg.CashVarianceTolerance)); err != nil {
		return errors.New("reconciliation.cashVarianceTolerance must be a decimal")
	}
	if cfg.PaymentApplyAttempts <= 0 {
		return errors.New("reconciliation.paymentApplyAttempts must be positive")
	}
	if strings.TrimSpace(cfg.DefaultPaymentTerms) == "" {
		return errors.New("reconciliation.defaultPaymentTerms cannot be empty")
	}
	return nil
}
