// Package auth resolves the generative-API key from the OS keychain, the
// environment, or an interactive terminal prompt, and stores it back to the
// keychain for the `keys` CLI subcommands.
package auth

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	serviceName = "kotoba"
	account     = "gemini-api-key"
	envVar      = "GEMINI_API_KEY"
)

// GetKey retrieves the API key from the keychain, falling back to the
// environment variable when allowEnv is true. It returns the key and a
// human-readable source label, or ("", "") if no key was found.
func GetKey(allowEnv bool) (string, string) {
	key, err := keyring.Get(serviceName, account)
	if err == nil && key != "" {
		return strings.TrimSpace(key), "Keychain"
	}

	if allowEnv {
		if key := os.Getenv(envVar); key != "" {
			return strings.TrimSpace(key), "Environment Variable"
		}
	}

	return "", ""
}

// SaveKey saves the key to the OS Keychain.
func SaveKey(key string) error {
	return keyring.Set(serviceName, account, strings.TrimSpace(key))
}

// DeleteKey removes the key from the OS Keychain.
func DeleteKey() error {
	return keyring.Delete(serviceName, account)
}

// GetStatus returns whether a key exists in the keychain.
func GetStatus() bool {
	key, err := keyring.Get(serviceName, account)
	return err == nil && key != ""
}

// PromptForAPIKey securely prompts the user for their API key.
func PromptForAPIKey(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(string(bytePassword)), nil
}

// GetEnvKeys retrieves the keys from the environment variable only, split on
// commas to support the multi-key pool.
func GetEnvKeys() ([]string, bool) {
	raw := strings.TrimSpace(os.Getenv(envVar))
	if raw == "" {
		return nil, false
	}
	var keys []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			keys = append(keys, part)
		}
	}
	if len(keys) == 0 {
		return nil, false
	}
	return keys, true
}
