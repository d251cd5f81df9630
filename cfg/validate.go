// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg

import "fmt"

func isValidLogRotateConfig(config *LogRotateLoggingConfig) error {
	if config.MaxFileSizeMb <= 0 {
		return fmt.Errorf("max-file-size-mb should be at least 1")
	}
	if config.BackupFileCount < 0 {
		return fmt.Errorf("backup-file-count should be 0 (to retain all backup files) or a positive value")
	}
	return nil
}

func isValidMailConfig(m *MailConfig) error {
	if m.Host == "" {
		return fmt.Errorf("host is required")
	}
	if m.Port <= 0 || m.Port > 65535 {
		return fmt.Errorf("port must be in [1, 65535], got %d", m.Port)
	}
	if m.User == "" {
		return fmt.Errorf("user is required")
	}
	if m.Password == "" {
		return fmt.Errorf("password is required")
	}
	if m.Passphrase == "" {
		return fmt.Errorf("passphrase is required")
	}
	if m.Mailbox == "" {
		return fmt.Errorf("mailbox is required")
	}
	if m.Rounds <= 0 {
		return fmt.Errorf("rounds must be positive, got %d", m.Rounds)
	}
	return nil
}

// ValidateConfig returns a non-nil error if the config is invalid.
func ValidateConfig(config *Config) error {
	if err := isValidLogRotateConfig(&config.Logging.LogRotate); err != nil {
		return fmt.Errorf("error parsing log-rotate config: %w", err)
	}

	if err := isValidMailConfig(&config.Mail); err != nil {
		return fmt.Errorf("error parsing mail config: %w", err)
	}

	return nil
}
