package mfa

import (
	"strings"

	"github.com/MrEthical07/authguard/internal"
)

func canonicalBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, " ", "")
}

// backupCodeHash binds the code to its owner so equal codes of two users
// hash differently.
func backupCodeHash(userID, canonical string) string {
	return internal.HashToken(userID + "\x00" + canonical)
}

// formatBackupCodes splits each code in half with a dash for readability.
func formatBackupCodes(codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		if len(c) >= 8 {
			mid := len(c) / 2
			c = c[:mid] + "-" + c[mid:]
		}
		out[i] = c
	}
	return out
}
