package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckVersionCompatibility(t *testing.T) {
	tests := []struct {
		name          string
		engineVersion string
		limitsVersion string
		expectError   bool
		errorContains string
	}{
		// Compatible cases
		{
			name:          "exact match",
			engineVersion: "1.2.0",
			limitsVersion: "1.2.0",
			expectError:   false,
		},
		{
			name:          "engine patch higher",
			engineVersion: "1.2.1",
			limitsVersion: "1.2.0",
			expectError:   false,
		},
		{
			name:          "limits patch higher",
			engineVersion: "1.2.0",
			limitsVersion: "1.2.5",
			expectError:   false,
		},
		{
			name:          "v prefix stripped",
			engineVersion: "v1.2.0",
			limitsVersion: "1.2.3",
			expectError:   false,
		},
		{
			name:          "dev engine skips check",
			engineVersion: "main",
			limitsVersion: "1.2.0",
			expectError:   false,
		},
		{
			name:          "dev limits skips check",
			engineVersion: "1.2.0",
			limitsVersion: "main",
			expectError:   false,
		},

		// Incompatible cases
		{
			name:          "minor mismatch",
			engineVersion: "1.3.0",
			limitsVersion: "1.2.0",
			expectError:   true,
			errorContains: "minor version mismatch",
		},
		{
			name:          "major mismatch",
			engineVersion: "2.0.0",
			limitsVersion: "1.2.0",
			expectError:   true,
			errorContains: "major version mismatch",
		},

		// Invalid versions
		{
			name:          "invalid engine version",
			engineVersion: "not-a-version",
			limitsVersion: "1.2.0",
			expectError:   true,
			errorContains: "invalid engine version",
		},
		{
			name:          "invalid limits version",
			engineVersion: "1.2.0",
			limitsVersion: "not-a-version",
			expectError:   true,
			errorContains: "invalid limits version",
		},
		{
			name:          "empty limits version",
			engineVersion: "1.2.0",
			limitsVersion: "",
			expectError:   true,
			errorContains: "invalid limits version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckVersionCompatibility(tt.engineVersion, tt.limitsVersion)

			if tt.expectError {
				require.Error(t, err)
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	assert.Equal(t, Version, v)
}
