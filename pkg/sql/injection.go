package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a literal value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Column      string // Column the value was meant to be compared against
	Value       any    // The value that was checked
}

// CheckValueForInjection uses libinjection to detect SQL injection patterns
// in a filter literal taken from user text or model output.
//
// Only string values are checked. Returns nil if no injection is detected.
//
//	CheckValueForInjection("status", "Active")                 // nil
//	CheckValueForInjection("status", "x' OR '1'='1")           // IsSQLi == true
func CheckValueForInjection(column string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Column:      column,
			Value:       value,
		}
	}

	return nil
}
