package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "***SET***", maskSecret("short"))
	assert.Equal(t, "abcdefghij...0123456789", maskSecret("abcdefghijKLMNOPQRST0123456789"))
}

func TestReportCredentials(t *testing.T) {
	var buf bytes.Buffer
	missing := reportCredentials(&buf, []credential{
		{"secapi.token", "", true},
		{"finnhub.key", "fk", false},
		{"store.database_url", "", false},
	})

	assert.Equal(t, 1, missing)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "MISSING  secapi.token")
	assert.Contains(t, lines[1], "***SET***")
	assert.NotContains(t, buf.String(), "fk\n")
	assert.Contains(t, lines[2], "(optional)")
}
