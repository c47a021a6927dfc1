package enums

import "strings"

// StoreEnvironment mirrors the aggregator's purchase environment flag.
type StoreEnvironment string

const (
	StoreEnvironmentSandbox    StoreEnvironment = "SANDBOX"
	StoreEnvironmentProduction StoreEnvironment = "PRODUCTION"
)

// String implements fmt.Stringer.
func (e StoreEnvironment) String() string {
	return string(e)
}

// ParseStoreEnvironment defaults unknown values to PRODUCTION, matching the
// aggregator's own default.
func ParseStoreEnvironment(value string) StoreEnvironment {
	if strings.EqualFold(strings.TrimSpace(value), string(StoreEnvironmentSandbox)) {
		return StoreEnvironmentSandbox
	}
	return StoreEnvironmentProduction
}

// EnvironmentFromSandboxFlag maps the snapshot's isSandbox boolean.
func EnvironmentFromSandboxFlag(isSandbox bool) StoreEnvironment {
	if isSandbox {
		return StoreEnvironmentSandbox
	}
	return StoreEnvironmentProduction
}
