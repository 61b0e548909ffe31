package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// CliOptions abstracts configuration options for reading parameters from the
// command line.
type CliOptions interface {
	// Flags returns the option groups as named flag sets.
	Flags() cliflag.NamedFlagSets

	// Complete fills in defaults derived from other fields.
	Complete() error

	// Validate checks the options and returns an aggregate error.
	Validate() error
}

// NamedFlagSetOptions is the contract command options must satisfy to be
// managed by App.
type NamedFlagSetOptions interface {
	CliOptions
}
