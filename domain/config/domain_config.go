package config

import (
	"errors"
	"time"
)

// DomainConfig holds all configurable business rules and constraints
type DomainConfig struct {
	// Blueprint constraints
	MaxNodesPerBlueprint int
	MaxEdgesPerBlueprint int
	AllowSelfConnections bool

	// Reconciliation
	SurfaceSuperseded     bool
	MaxUndoDepth          int
	MaxProposalsPerMinute int

	// Time constraints
	SessionTimeout time.Duration
	PreviewTimeout time.Duration
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		// Blueprint constraints
		MaxNodesPerBlueprint: 2000,
		MaxEdgesPerBlueprint: 10000,
		AllowSelfConnections: false,

		// Reconciliation
		SurfaceSuperseded:     false,
		MaxUndoDepth:          100,
		MaxProposalsPerMinute: 30,

		// Time constraints
		SessionTimeout: 2 * time.Hour,
		PreviewTimeout: 30 * time.Second,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// More restrictive limits for production
	config.MaxNodesPerBlueprint = 1000
	config.MaxEdgesPerBlueprint = 5000
	config.MaxProposalsPerMinute = 10

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// More permissive for development
	config.MaxNodesPerBlueprint = 100000
	config.MaxEdgesPerBlueprint = 500000
	config.AllowSelfConnections = true
	config.SurfaceSuperseded = true
	config.MaxProposalsPerMinute = 600

	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks if the configuration is valid
func (c *DomainConfig) Validate() error {
	if c.MaxNodesPerBlueprint <= 0 || c.MaxEdgesPerBlueprint <= 0 {
		return errors.New("blueprint limits must be positive")
	}
	if c.MaxUndoDepth <= 0 {
		return errors.New("max undo depth must be positive")
	}
	if c.SessionTimeout <= 0 {
		return errors.New("session timeout must be positive")
	}
	return nil
}
