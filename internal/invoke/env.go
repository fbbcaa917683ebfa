// SPDX-License-Identifier: MPL-2.0

package invoke

import "os"

// hostEnviron returns the host environment, filtering out any gateway
// variables left over from a parent invocation so nested submissions never
// inherit a stale operation payload.
func hostEnviron() []string {
	environ := os.Environ()
	result := make([]string, 0, len(environ))
	for _, e := range environ {
		if hasGatewayPrefix(e) {
			continue
		}
		result = append(result, e)
	}
	return result
}

// hasGatewayPrefix reports whether an environment entry belongs to the
// gateway's child-process contract.
func hasGatewayPrefix(e string) bool {
	const prefix = "DATAGATE_"
	return len(e) > len(prefix) && e[:len(prefix)] == prefix
}
