// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import "testing"

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"under one token", "abc", 0},
		{"exact", "abcd", 1},
		{"rounds down", "abcdefg", 1},
		{"longer", "The quick brown fox jumps over the lazy dog", 11},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EstimateTokens(tc.in); got != tc.want {
				t.Errorf("EstimateTokens(%q) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestEstimateMessages(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "12345678"},
		{Role: RoleUser, Content: "1234"},
	}
	if got := EstimateMessages(msgs); got != 3 {
		t.Errorf("EstimateMessages = %d, want 3", got)
	}
	if got := EstimateMessages(nil); got != 0 {
		t.Errorf("EstimateMessages(nil) = %d, want 0", got)
	}
}
