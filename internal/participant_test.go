package internal_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/reaction-duel/internal"
)

// TestValidateName 測試名稱驗證與正規化
func TestValidateName(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    string
		expectedErr error
	}{
		{name: "minimum length", input: "ab", expected: "ab"},
		{name: "maximum length", input: strings.Repeat("a", 16), expected: strings.Repeat("a", 16)},
		{name: "trimmed", input: "  ab  ", expected: "ab"},
		{name: "keeps case", input: "KirbY", expected: "KirbY"},
		{name: "inner space underscore hyphen", input: "a b_c-d", expected: "a b_c-d"},
		{name: "unicode letters", input: "小明", expected: "小明"},
		{name: "unicode counted by rune", input: strings.Repeat("明", 16), expected: strings.Repeat("明", 16)},
		{name: "digits", input: "player42", expected: "player42"},
		{name: "too short", input: "a", expectedErr: internal.ErrNameTooShort},
		{name: "empty", input: "", expectedErr: internal.ErrNameTooShort},
		{name: "only spaces", input: "   ", expectedErr: internal.ErrNameTooShort},
		{name: "too long", input: strings.Repeat("a", 17), expectedErr: internal.ErrNameTooLong},
		{name: "too long unicode", input: strings.Repeat("明", 17), expectedErr: internal.ErrNameTooLong},
		{name: "punctuation", input: "a!b", expectedErr: internal.ErrNameCharset},
		{name: "markup", input: "<script>", expectedErr: internal.ErrNameCharset},
		{name: "emoji", input: "ab😀", expectedErr: internal.ErrNameCharset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := internal.ValidateName(tt.input)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

// TestParticipant_DisplayName 測試顯示名稱
func TestParticipant_DisplayName(t *testing.T) {
	tests := []struct {
		name        string
		participant internal.Participant
		expected    string
	}{
		{
			name:        "named",
			participant: internal.Participant{ID: "3f2a9c1e", Name: "kirby"},
			expected:    "kirby",
		},
		{
			name:        "falls back to id prefix",
			participant: internal.Participant{ID: "3f2a9c1e"},
			expected:    "3f2a",
		},
		{
			name:        "short id",
			participant: internal.Participant{ID: "ab"},
			expected:    "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.participant.DisplayName())
		})
	}
}
