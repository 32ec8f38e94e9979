package storage

import "encoding/base64"

// Obfuscate shifts every byte up by one and base64-encodes the result. It is
// reversible by anyone and gives no confidentiality; it only keeps stored
// envelopes from being readable at a glance.
func Obfuscate(s string) string {
	shifted := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		shifted[i] = s[i] + 1
	}
	return base64.StdEncoding.EncodeToString(shifted)
}

// Deobfuscate reverses Obfuscate. It fails when s is not valid base64.
func Deobfuscate(s string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	for i := range decoded {
		decoded[i]--
	}
	return string(decoded), nil
}
