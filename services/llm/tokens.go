// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

// charsPerToken is the deterministic estimate used when a provider does
// not report usage. Deliberately coarse; token accounting here feeds
// dashboards, not billing.
const charsPerToken = 4

// EstimateTokens estimates the token count of text as len/4.
func EstimateTokens(text string) int {
	return len(text) / charsPerToken
}

// EstimateMessages sums EstimateTokens over the content of all messages.
func EstimateMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}
