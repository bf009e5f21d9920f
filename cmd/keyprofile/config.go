package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/keyprofile/internal/binner"
	"github.com/verte-zerg/keyprofile/internal/generator"
	"github.com/verte-zerg/keyprofile/internal/recorder"
)

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyInt64Config(cmd *cobra.Command, name string, target, value *int64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# keyprofile configuration
# Uncomment a value to enable it. CLI flags override config values.

[record]
# scale-factor = %d     # Multiplier applied to intervals in ms
# min-gap-ms = 0          # Lower bound for pp, rr and rp intervals (exclusive)
# max-gap-ms = %d         # Upper bound for pp, rr and rp intervals (exclusive)
# min-hold-ms = 0         # Lower bound for pr intervals (exclusive)
# max-hold-ms = %d        # Upper bound for pr intervals (exclusive)

[binner]
# temp-bins = %d            # Temporary histogram size
# window = %d               # Dense window width in temporary bins
# coarse = %d                # Coarse bins on each side of the dense window
# fine = %d                 # Fine bins across the dense window
# default-width = %d    # Bin width used for empty series

[practice]
# words = %d                # Words per prompt
# caps = %.2f             # Probability of capitalized first letter (0-1)
# punct = %.2f            # Punctuation probability per word (0-1)
# punct-set = %q      # Punctuation set
# wordlist = ""            # Word list file (default: embedded English list)
# keys = ""                # Only use words typable with these keys
# max-word-len = 0         # Drop longer words (0 disables)
# save = true              # Store finished sessions

[serve]
# addr = %q
# cors-origins = []        # Empty allows any origin
# max-body-kb = %d

[log]
# level = %q
# format = "text"          # text or json
`,
		recorder.DefaultScaleFactor,
		recorder.DefaultMaxGapMs,
		recorder.DefaultMaxHoldMs,
		binner.DefaultTempBins,
		binner.DefaultWindow,
		binner.DefaultCoarse,
		binner.DefaultFine,
		binner.DefaultDefaultWidth,
		defaultWords,
		defaultCaps,
		defaultPunct,
		generator.DefaultPunctSet,
		defaultAddr,
		defaultMaxBodyKB,
		defaultLogLevel,
	)
}
