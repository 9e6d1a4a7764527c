/*
Copyright 2026 The SAMFMS Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package eventbus

import "strings"

// MatchesPattern reports whether routingKey matches pattern, where
// pattern may use "*" to match exactly one dot-separated segment. Per
// spec §4.3, segment counts must match exactly — "vehicle.*" never
// matches "vehicle.fleet.created", only "vehicle.created". The broker's
// own topic exchange already applies this rule when routing messages to
// a queue; this function lets a single queue's consumer dispatch among
// several bound patterns in-process once a message arrives.
func MatchesPattern(pattern, routingKey string) bool {
	patternSegments := strings.Split(pattern, ".")
	keySegments := strings.Split(routingKey, ".")

	if len(patternSegments) != len(keySegments) {
		return false
	}
	for i, seg := range patternSegments {
		if seg == "*" {
			continue
		}
		if seg != keySegments[i] {
			return false
		}
	}
	return true
}
