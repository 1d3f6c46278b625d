// Package constants provides shared constants for the goalseek application.
package constants

import "time"

// Parameter kinds recognised in configuration.
const (
	// KindAmount is a monetary parameter, searched at whole-unit resolution.
	KindAmount = "amount"

	// KindRatio is a ratio-like parameter such as a margin or coefficient.
	KindRatio = "ratio"

	// KindNumber is any other scalar parameter.
	KindNumber = "number"
)

// Precision defaults used for cache rounding and bisection bracket width.
const (
	// AmountPrecision rounds monetary parameters to whole units.
	AmountPrecision = 1.0

	// RatioPrecision rounds ratio parameters to five decimal places.
	RatioPrecision = 1e-5

	// NumberPrecisionDigits is how many orders of magnitude below the range span a
	// generic parameter is resolved to.
	NumberPrecisionDigits = 5
)

// Solver defaults
const (
	// DefaultMaxIterations caps every bisection loop.
	DefaultMaxIterations = 50

	// DefaultCoarseSamples is the number of coarse grid points per axis.
	DefaultCoarseSamples = 7

	// MinCoarseSamples and MaxCoarseSamples bound the coarse grid.
	MinCoarseSamples = 2
	MaxCoarseSamples = 11

	// DefaultRefineSamples is the number of refinement grid points per axis.
	DefaultRefineSamples = 5

	// DefaultRefineSpan is the refinement half-width measured in coarse steps.
	DefaultRefineSpan = 1.0

	// DefaultPolishRounds is the number of alternating local bisection passes.
	DefaultPolishRounds = 3

	// DefaultGradientIterations caps gradient descent.
	DefaultGradientIterations = 20

	// DefaultGradientStepFraction is the descent step as a fraction of the range span.
	DefaultGradientStepFraction = 0.01

	// DefaultDifferenceFraction is the finite-difference offset as a fraction of the span.
	DefaultDifferenceFraction = 0.001

	// DefaultMaxAlternatives is the number of trade-off candidates generated.
	DefaultMaxAlternatives = 3

	// DefaultTolerance applies when a metric omits its tolerance.
	DefaultTolerance = 0.009
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON is the JSON output format
	OutputFormatJSON = "json"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"

	// EnvPrefix prefixes environment overrides of configuration keys.
	EnvPrefix = "GOALSEEK"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum request body size (256 KB)
	DefaultMaxUploadSizeBytes int64 = 256 * 1024

	// DefaultRequestTimeout bounds a single solve request.
	DefaultRequestTimeout = 2 * time.Minute

	// DefaultJournalListLimit caps journal listings when no limit is given.
	DefaultJournalListLimit = 50
)
